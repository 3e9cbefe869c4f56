package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Client is one context's connection to the daemon's hub.
type Client struct {
	conn   *websocket.Conn
	logger *log.Logger

	pendingMu sync.Mutex
	pending   map[string]chan Frame

	events chan Frame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects to the hub at addr (host:port). If logger is nil, the
// standard logger is used.
func Dial(ctx context.Context, addr string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Default()
	}

	conn, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to reach daemon at %s: %w", addr, err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan Frame),
		events:  make(chan Frame, 100),
		ctx:     cctx,
		cancel:  cancel,
	}

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// Close tears the connection down. Pending action waiters are released
// with an error.
func (c *Client) Close() error {
	c.cancel()
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.wg.Wait()
	return err
}

// Events returns broadcast frames from the hub. The channel is closed
// when the connection ends.
func (c *Client) Events() <-chan Frame {
	return c.events
}

// TriggerBackgroundAction sends a named action to the daemon and waits
// for its acknowledgement. It returns nil when the daemon completed the
// action, the daemon's error when it failed, and the context's error on
// timeout or disconnect.
func (c *Client) TriggerBackgroundAction(ctx context.Context, action string) error {
	id := uuid.NewString()
	ack := make(chan Frame, 1)

	c.pendingMu.Lock()
	c.pending[id] = ack
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	frame := Frame{Kind: KindAction, ID: id, Action: action, Timestamp: time.Now()}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send action %q: %w", action, err)
	}

	select {
	case reply := <-ack:
		if !reply.OK {
			return fmt.Errorf("action %q failed: %s", action, reply.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ack of %q: %w", action, ctx.Err())
	case <-c.ctx.Done():
		return fmt.Errorf("connection closed while waiting for ack of %q", action)
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.cancel()
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Printf("Dropping malformed frame: %v", err)
			continue
		}

		switch frame.Kind {
		case KindAck:
			c.pendingMu.Lock()
			ch := c.pending[frame.ID]
			c.pendingMu.Unlock()
			if ch != nil {
				ch <- frame
			}

		case KindEvent:
			select {
			case c.events <- frame:
			default:
				// Consumers that fall behind lose events; they re-read
				// from the store anyway.
			}
		}
	}
}
