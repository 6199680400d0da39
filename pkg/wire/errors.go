package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrParse is returned by Decode when a frame is not valid JSON.
var ErrParse = errors.New("wire: parse error")

// Kolibri protocol error codes.
const (
	CodeGeneralError          = 1
	CodeInvalidOpcode         = 2
	CodeInvalidOption         = 3
	CodeInvalidProtocol       = 4
	CodeAccessDenied          = 5
	CodeInvalidPath           = 6
	CodeInvalidNodeType       = 7
	CodeInvalidNodeIndex      = 8
	CodeInvalidNodeProperty   = 9
	CodeInvalidNodeState      = 10
	CodeInvalidSequenceNumber = 11
	CodeInvalidDataType       = 12
	CodeInvalidRecipient      = 13
	CodeProtocolError         = 14
	CodeMissingParameter      = 15
	CodeInvalidParameter      = 16
	CodeInvalidValue          = 17
	CodeItemNotFound          = 18
	CodeItemExists            = 19
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Kolibri codes 0..99 are carried in the reserved range -31999..-31900.
const (
	kolibriBase = -31900
	kolibriMax  = 99
)

var codeMessages = map[int]string{
	CodeGeneralError:          "general error",
	CodeInvalidOpcode:         "invalid opcode",
	CodeInvalidOption:         "invalid option",
	CodeInvalidProtocol:       "invalid protocol version",
	CodeAccessDenied:          "access denied",
	CodeInvalidPath:           "invalid path",
	CodeInvalidNodeType:       "invalid node type",
	CodeInvalidNodeIndex:      "invalid node index",
	CodeInvalidNodeProperty:   "invalid node property",
	CodeInvalidNodeState:      "invalid node state",
	CodeInvalidSequenceNumber: "invalid sequence number",
	CodeInvalidDataType:       "invalid data type",
	CodeInvalidRecipient:      "invalid recipient",
	CodeProtocolError:         "protocol error",
	CodeMissingParameter:      "missing parameter",
	CodeInvalidParameter:      "invalid parameter",
	CodeInvalidValue:          "invalid value",
	CodeItemNotFound:          "item not found",
	CodeItemExists:            "item exists",

	CodeParseError:     "parse error",
	CodeInvalidRequest: "invalid request",
	CodeMethodNotFound: "method not found",
	CodeInvalidParams:  "invalid parameters",
	CodeInternalError:  "internal error",
	CodeServerError:    "server error",
}

// Error is the error member of a JSON-RPC envelope.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ErrorFromCode returns a new Error with the registered message for code.
// Unknown codes get a generic message.
func ErrorFromCode(code int) *Error {
	msg, ok := codeMessages[code]
	if !ok {
		msg = fmt.Sprintf("error %d", code)
	}
	return &Error{Code: code, Message: msg}
}

// CodeMessage returns the registered message for code, or "" if unknown.
func CodeMessage(code int) string {
	return codeMessages[code]
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithData returns a copy of e carrying v as its data member.
func (e *Error) WithData(v any) *Error {
	c := *e
	if raw, err := json.Marshal(v); err == nil {
		c.Data = raw
	}
	return &c
}

// IsKolibri reports whether the code is a plain Kolibri code (0..99).
func (e *Error) IsKolibri() bool {
	return e.Code >= 0 && e.Code <= kolibriMax
}

// Outbound returns the error as sent on the wire. Kolibri codes are
// shifted into the reserved JSON-RPC range; other codes are unchanged.
func (e *Error) Outbound() *Error {
	c := *e
	if e.IsKolibri() {
		c.Code = kolibriBase - e.Code
	}
	return &c
}

// Kolibri reverses Outbound. Codes outside the reserved range are
// returned unchanged. An empty message is filled from the code table.
func (e *Error) Kolibri() *Error {
	c := *e
	if e.Code <= kolibriBase && e.Code >= kolibriBase-kolibriMax {
		c.Code = kolibriBase - e.Code
	}
	if c.Message == "" {
		c.Message = codeMessages[c.Code]
	}
	return &c
}

// HasCode reports whether err is an *Error with the given code, after
// mapping reserved-range codes back to Kolibri codes.
func HasCode(err error, code int) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kolibri().Code == code
}

// Close codes used on the WebSocket connection.
const (
	CloseNormal    = 1000
	CloseAbnormal  = 1006
	CloseKeepalive = 4000
	CloseScope     = 4001
	CloseUser      = 4002
	CloseRetry     = 4003
	CloseProtocol  = 4004
	CloseThrottle  = 4005
)

// CloseText returns a short description of a close code.
func CloseText(code int) string {
	switch code {
	case CloseNormal:
		return "normal closure"
	case CloseAbnormal:
		return "abnormal closure"
	case CloseKeepalive:
		return "keepalive timeout"
	case CloseScope:
		return "scope"
	case CloseUser:
		return "user"
	case CloseRetry:
		return "retry"
	case CloseProtocol:
		return "protocol error"
	case CloseThrottle:
		return "throttle"
	default:
		return fmt.Sprintf("close %d", code)
	}
}
