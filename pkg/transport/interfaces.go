package transport

import (
	"context"
	"fmt"
)

// ControlType identifies a control frame seen by a Channel.
type ControlType uint8

const (
	ControlPing ControlType = iota
	ControlPong
)

// String returns the control type name.
func (c ControlType) String() string {
	switch c {
	case ControlPing:
		return "PING"
	case ControlPong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// Channel is one established WebSocket connection.
// Implemented by wsChannel.
type Channel interface {
	// ReadMessage blocks until the next data frame. It returns a
	// *CloseError once the connection is closed.
	ReadMessage() (binary bool, data []byte, err error)

	// WriteText writes one text frame.
	WriteText(data []byte) error

	// WriteClose sends a close frame without waiting for the reply.
	WriteClose(code int, reason string) error

	// Close closes the underlying network connection immediately.
	Close() error

	// RemoteAddr returns the broker address.
	RemoteAddr() string
}

// Dialer opens Channels. onControl is called from the channel's reader
// for every ping and pong received.
// Implemented by WSDialer.
type Dialer interface {
	Dial(ctx context.Context, onControl func(ControlType)) (Channel, error)
}

// Handler receives Session events. All methods are called on the
// session's loop.
type Handler interface {
	// OnOpen is called when a connection is established.
	OnOpen()

	// OnClose is called once per connection, and when connecting is given up.
	OnClose(code int)

	// OnError is called for dial and write failures.
	OnError(err error)

	// OnMessage is called for every inbound text frame.
	OnMessage(data []byte)
}

// CloseError reports how a connection ended.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("websocket closed: %d", e.Code)
	}
	return fmt.Sprintf("websocket closed: %d %s", e.Code, e.Text)
}

// Compile-time interface satisfaction checks.
var (
	_ Channel = (*wsChannel)(nil)
	_ Dialer  = (*WSDialer)(nil)
)
