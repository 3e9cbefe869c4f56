// Package bus relays actions and change notifications between timekeep
// contexts (CLI invocations, the daemon) over a local WebSocket channel.
//
// Two message shapes travel the bus:
//   - action/ack: a request to the daemon ("flush updates") with a
//     correlated acknowledgement once the work completed or failed
//   - event: a fire-and-forget broadcast ("data changed", "table
//     changed") fanned out to every connected context
package bus

import (
	"encoding/json"
	"time"
)

// Kind discriminates bus frames.
type Kind string

const (
	// KindAction requests the daemon perform a named action.
	KindAction Kind = "action"

	// KindAck acknowledges an action, correlated by frame ID.
	KindAck Kind = "ack"

	// KindEvent is a fire-and-forget broadcast.
	KindEvent Kind = "event"
)

// Actions understood by the daemon.
const (
	// ActionFlush asks the daemon to flush the update queue now.
	ActionFlush = "flush updates"
)

// Events broadcast on the bus.
const (
	// EventDataChanged signals that a flush synced entries and caches
	// were invalidated; contexts should re-read.
	EventDataChanged = "data changed"

	// EventTableChanged signals that a store table's value changed.
	// The Table field names it.
	EventTableChanged = "table changed"
)

// Frame is the wire message.
type Frame struct {
	Kind      Kind            `json:"kind"`
	ID        string          `json:"id,omitempty"`
	Action    string          `json:"action,omitempty"`
	OK        bool            `json:"ok,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     string          `json:"event,omitempty"`
	Table     string          `json:"table,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
