package wire

import (
	"encoding/json"
	"fmt"
)

// Version is the only JSON-RPC version accepted on the wire.
const Version = "2.0"

// Kind classifies an envelope.
type Kind uint8

const (
	KindRequest Kind = iota + 1
	KindNotification
	KindResult
	KindError
	KindRequestRouted
	KindNotificationRouted
	KindResultRouted
	KindErrorRouted
	KindInvalid
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindNotification:
		return "NOTIFICATION"
	case KindResult:
		return "RESULT"
	case KindError:
		return "ERROR"
	case KindRequestRouted:
		return "REQUEST_ROUTED"
	case KindNotificationRouted:
		return "NOTIFICATION_ROUTED"
	case KindResultRouted:
		return "RESULT_ROUTED"
	case KindErrorRouted:
		return "ERROR_ROUTED"
	case KindInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// IsRouted reports whether the kind carries a _server routing tag.
func (k Kind) IsRouted() bool {
	return k >= KindRequestRouted && k <= KindErrorRouted
}

// Envelope is one JSON-RPC message unit.
//
// Params, Result and Server are kept as raw JSON so that inbound values
// can be decoded lazily into method-specific types.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	ID      *uint16         `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Server  json.RawMessage `json:"_server,omitempty"`
}

// HasID reports whether the envelope carries a correlation id.
func (e *Envelope) HasID() bool {
	return e != nil && e.ID != nil
}

// IDValue returns the correlation id, or 0 if absent.
func (e *Envelope) IDValue() uint16 {
	if e == nil || e.ID == nil {
		return 0
	}
	return *e.ID
}

// DecodeParams unmarshals the params member into v.
func (e *Envelope) DecodeParams(v any) error {
	if len(e.Params) == 0 {
		return fmt.Errorf("%s: missing params", e.Method)
	}
	if err := json.Unmarshal(e.Params, v); err != nil {
		return fmt.Errorf("%s: invalid params: %w", e.Method, err)
	}
	return nil
}

// DecodeResult unmarshals the result member into v.
func (e *Envelope) DecodeResult(v any) error {
	if len(e.Result) == 0 {
		return fmt.Errorf("missing result")
	}
	return json.Unmarshal(e.Result, v)
}

// String returns a compact description used in log output.
func (e *Envelope) String() string {
	if e == nil {
		return "<nil>"
	}
	id := "-"
	if e.ID != nil {
		id = fmt.Sprintf("%d", *e.ID)
	}
	switch {
	case e.Method != "":
		return fmt.Sprintf("%s#%s", e.Method, id)
	case e.Error != nil:
		return fmt.Sprintf("error#%s(%d %s)", id, e.Error.Code, e.Error.Message)
	default:
		return fmt.Sprintf("result#%s", id)
	}
}
