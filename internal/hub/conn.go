package hub

import "errors"

var (
	// ErrConnectionLost reports a delivery target that is closed or too slow
	// to keep up. It is soft: the event is dropped and the connection removed.
	ErrConnectionLost = errors.New("connection lost")
	ErrNotRegistered  = errors.New("connection is not registered")
)

// Event is a single server -> client frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Conn is a live client connection. Send must not block; it enqueues the
// event or fails with ErrConnectionLost.
type Conn interface {
	ID() string
	Send(ev Event) error
	Close()
}
