package log

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// MaxFrameData is the number of frame bytes kept in a FrameEvent.
const MaxFrameData = 4096

// Event is one protocol trace record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the WebSocket connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// Broker is the broker URL.
	Broker string `cbor:"6,keyasint,omitempty"`

	// Project and User identify the login (set after the handshake).
	Project string `cbor:"7,keyasint,omitempty"`
	User    string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// ParseDirection parses "in" or "out" (case-insensitive).
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(s) {
	case "in":
		return DirectionIn, true
	case "out":
		return DirectionOut, true
	}
	return 0, false
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the WebSocket layer (raw frames).
	LayerTransport Layer = 0
	// LayerWire is the envelope layer (decoded JSON-RPC).
	LayerWire Layer = 1
	// LayerService is the broker session layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// ParseLayer parses a layer name as printed by String (case-insensitive).
func ParseLayer(s string) (Layer, bool) {
	for _, l := range []Layer{LayerTransport, LayerWire, LayerService} {
		if strings.EqualFold(s, l.String()) {
			return l, true
		}
	}
	return 0, false
}

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryControl Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a raw WebSocket text frame.
type FrameEvent struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the frame payload, truncated to MaxFrameData.
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent captures data, truncating long frames.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameData {
		fe.Data = append([]byte(nil), data[:MaxFrameData]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// MessageEvent captures a decoded JSON-RPC envelope.
type MessageEvent struct {
	Kind wire.Kind `cbor:"1,keyasint"`

	// ID is the correlation id (absent for notifications).
	ID *uint16 `cbor:"2,keyasint,omitempty"`

	// Method is set for requests and notifications. For results and
	// errors the session fills in the method of the matching request.
	Method string `cbor:"3,keyasint,omitempty"`

	// ErrorCode and ErrorMessage are set for error envelopes.
	ErrorCode    *int   `cbor:"4,keyasint,omitempty"`
	ErrorMessage string `cbor:"5,keyasint,omitempty"`

	// Payload is the decoded params or result.
	Payload any `cbor:"6,keyasint,omitempty"`

	// Latency is the time from the first send of the request to its
	// result or error.
	Latency *time.Duration `cbor:"7,keyasint,omitempty"`

	// Retry is the retry count of an outbound request (0 on first send).
	Retry int `cbor:"8,keyasint,omitempty"`
}

// NewMessageEvent describes env as classified by kind.
func NewMessageEvent(env *wire.Envelope, kind wire.Kind) *MessageEvent {
	me := &MessageEvent{Kind: kind}
	if env == nil {
		return me
	}
	if env.ID != nil {
		id := *env.ID
		me.ID = &id
	}
	me.Method = env.Method

	var raw json.RawMessage
	switch {
	case env.Error != nil:
		code := env.Error.Code
		me.ErrorCode = &code
		me.ErrorMessage = env.Error.Message
	case env.Result != nil:
		raw = env.Result
	default:
		raw = env.Params
	}
	if len(raw) > 0 {
		var payload any
		if json.Unmarshal(raw, &payload) == nil {
			me.Payload = payload
		}
	}
	return me
}

// StateChangeEvent captures transport and session lifecycle changes.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityConnection is the WebSocket transport session.
	StateEntityConnection StateEntity = 0
	// StateEntitySession is the broker session.
	StateEntitySession StateEntity = 1
	// StateEntitySubscription is a single path subscription.
	StateEntitySubscription StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures WebSocket control frames.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`

	// CloseCode is set for close frames.
	CloseCode *int `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control frame.
type ControlMsgType uint8

const (
	ControlMsgPing  ControlMsgType = 0
	ControlMsgPong  ControlMsgType = 1
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the RPC error or close code, if any.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes the operation being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
