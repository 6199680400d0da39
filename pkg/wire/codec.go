package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Member names used during classification.
const (
	memberJSONRPC = "jsonrpc"
	memberMethod  = "method"
	memberID      = "id"
	memberParams  = "params"
	memberResult  = "result"
	memberError   = "error"
	memberServer  = "_server"
)

var jsonNull = json.RawMessage("null")

// Decode parses a single frame.
//
// Malformed JSON returns ErrParse. A frame that is valid JSON but violates
// the envelope structure returns KindInvalid with a nil error and whatever
// could be decoded, so that callers can still log it or reply with the id.
func Decode(data []byte) (*Envelope, Kind, error) {
	if !json.Valid(data) {
		return nil, KindInvalid, ErrParse
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil || members == nil {
		return nil, KindInvalid, nil
	}

	env := &Envelope{}
	kind := classify(members, env)
	return env, kind, nil
}

// Classify returns the envelope kind of data. Malformed JSON is Invalid.
func Classify(data []byte) Kind {
	_, kind, _ := Decode(data)
	return kind
}

// classify checks member presence and fills env with what it can decode.
func classify(m map[string]json.RawMessage, env *Envelope) Kind {
	if raw, ok := m[memberJSONRPC]; !ok || json.Unmarshal(raw, &env.JSONRPC) != nil || env.JSONRPC != Version {
		return KindInvalid
	}

	if raw, ok := m[memberID]; ok && !isNull(raw) {
		var id uint16
		if err := json.Unmarshal(raw, &id); err != nil {
			return KindInvalid
		}
		env.ID = &id
	}

	server, routed := m[memberServer]
	if routed {
		env.Server = server
	}

	result, hasResult := m[memberResult]
	errRaw, hasError := m[memberError]
	rawMethod, hasMethod := m[memberMethod]

	switch {
	case hasMethod:
		if hasResult || hasError {
			return KindInvalid
		}
		if json.Unmarshal(rawMethod, &env.Method) != nil || env.Method == "" {
			return KindInvalid
		}
		if params, ok := m[memberParams]; ok {
			if !isStructured(params) {
				return KindInvalid
			}
			env.Params = params
		}
		if env.ID == nil {
			return routedKind(KindNotification, routed)
		}
		return routedKind(KindRequest, routed)

	case hasResult:
		if hasError {
			return KindInvalid
		}
		env.Result = result
		return routedKind(KindResult, routed)

	case hasError:
		var probe map[string]json.RawMessage
		if json.Unmarshal(errRaw, &probe) != nil || probe == nil {
			return KindInvalid
		}
		if _, ok := probe["code"]; !ok {
			return KindInvalid
		}
		if _, ok := probe["message"]; !ok {
			return KindInvalid
		}
		var e Error
		if json.Unmarshal(errRaw, &e) != nil {
			return KindInvalid
		}
		env.Error = &e
		return routedKind(KindError, routed)
	}

	return KindInvalid
}

func routedKind(k Kind, routed bool) Kind {
	if !routed {
		return k
	}
	return k + (KindRequestRouted - KindRequest)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

// isStructured reports whether raw is a JSON object or array.
func isStructured(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && (t[0] == '{' || t[0] == '[')
}

// Encode serializes an envelope to a text frame.
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("wire: nil envelope")
	}
	if env.JSONRPC == "" {
		env.JSONRPC = Version
	}
	return json.Marshal(env)
}

// marshalRaw converts v to raw JSON. Raw messages pass through unchanged.
func marshalRaw(v any) (json.RawMessage, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return t, nil
	case []byte:
		return json.RawMessage(t), nil
	}
	return json.Marshal(v)
}

// NewRequest builds a request. server is the optional routing tag.
func NewRequest(method string, id uint16, params any, server json.RawMessage) (*Envelope, error) {
	p, err := marshalRaw(params)
	if err != nil {
		return nil, fmt.Errorf("%s params: %w", method, err)
	}
	if p != nil && !isStructured(p) {
		return nil, fmt.Errorf("%s params must be an object or array", method)
	}
	return &Envelope{JSONRPC: Version, Method: method, ID: &id, Params: p, Server: server}, nil
}

// NewNotification builds a request without an id.
func NewNotification(method string, params any, server json.RawMessage) (*Envelope, error) {
	env, err := NewRequest(method, 0, params, server)
	if err != nil {
		return nil, err
	}
	env.ID = nil
	return env, nil
}

// NewResult builds a result for request id. A nil result encodes as null.
func NewResult(id uint16, result any, server json.RawMessage) (*Envelope, error) {
	r, err := marshalRaw(result)
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	if r == nil {
		r = jsonNull
	}
	return &Envelope{JSONRPC: Version, ID: &id, Result: r, Server: server}, nil
}

// NewError builds an error reply. Kolibri codes are mapped to the
// reserved JSON-RPC range.
func NewError(id uint16, e *Error, server json.RawMessage) *Envelope {
	if e == nil {
		e = ErrorFromCode(CodeInternalError)
	}
	return &Envelope{JSONRPC: Version, ID: &id, Error: e.Outbound(), Server: server}
}
