package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ActionHandler executes a named action on behalf of a connected
// context. The returned error travels back in the ack frame.
type ActionHandler func(ctx context.Context, action string) error

// Hub manages WebSocket connections and fans frames out to every
// connected context. The daemon runs exactly one hub.
type Hub struct {
	addr     string
	listener net.Listener
	server   *http.Server
	handler  ActionHandler

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Frame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// HubConfig holds hub configuration.
type HubConfig struct {
	// Addr to listen on (default: 127.0.0.1:8991).
	Addr string

	// Handler executes incoming action frames. Nil rejects all actions.
	Handler ActionHandler

	// Logger for hub activity (default: the standard logger).
	Logger *log.Logger
}

// NewHub creates a hub; Start begins serving.
func NewHub(config *HubConfig) *Hub {
	if config == nil {
		config = &HubConfig{}
	}
	addr := config.Addr
	if addr == "" {
		addr = "127.0.0.1:8991"
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		addr:      addr,
		handler:   config.Handler,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Frame, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start begins the HTTP server and WebSocket handler.
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("/health", h.handleHealth)

	h.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 0, // connections are long-lived
	}

	h.wg.Add(1)
	go h.broadcastLoop()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.logger.Printf("Bus listening on %s", ln.Addr())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Printf("Bus server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the hub down.
func (h *Hub) Stop() error {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "daemon shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("bus shutdown error: %w", err)
	}

	h.wg.Wait()
	return nil
}

// Broadcast queues a frame for delivery to all connected contexts.
func (h *Hub) Broadcast(frame Frame) {
	select {
	case h.broadcast <- frame:
	case <-h.ctx.Done():
	default:
		h.logger.Println("Warning: broadcast channel full, dropping frame")
	}
}

// Addr returns the hub's listening address.
func (h *Hub) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// ClientCount returns the number of connected contexts.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case frame := <-h.broadcast:
			if frame.Timestamp.IsZero() {
				frame.Timestamp = time.Now()
			}
			data, err := json.Marshal(frame)
			if err != nil {
				h.logger.Printf("Failed to marshal frame: %v", err)
				continue
			}

			h.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.clientsMu.RUnlock()

			// Write outside the read lock so a slow client cannot
			// block new registrations.
			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					h.logger.Printf("Failed to send to client: %v", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Printf("Context connected (total: %d)", count)

	go h.readLoop(conn)
}

// readLoop receives frames from one context. Action frames run through
// the handler and are acknowledged with the same correlation ID.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		_, data, err := conn.Read(h.ctx)
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Printf("Dropping malformed frame: %v", err)
			continue
		}
		if frame.Kind != KindAction {
			continue
		}

		ack := Frame{Kind: KindAck, ID: frame.ID, OK: true, Timestamp: time.Now()}
		if h.handler == nil {
			ack.OK = false
			ack.Error = "no action handler"
		} else if err := h.handler(h.ctx, frame.Action); err != nil {
			ack.OK = false
			ack.Error = err.Error()
		}

		payload, err := json.Marshal(ack)
		if err != nil {
			h.logger.Printf("Failed to marshal ack: %v", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			h.logger.Printf("Failed to ack action %q: %v", frame.Action, err)
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; exists {
		delete(h.clients, conn)
		count := len(h.clients)
		h.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Printf("Context disconnected (total: %d)", count)
		return
	}
	h.clientsMu.Unlock()
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.clientsMu.RLock()
	count := len(h.clients)
	h.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": count,
	})
}
