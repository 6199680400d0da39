package broker

import (
	"errors"
)

// Session errors.
var (
	ErrClosed        = errors.New("session closed")
	ErrNotConnected  = errors.New("not connected")
	ErrEmptyPath     = errors.New("empty path")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// State is the broker session state.
type State uint8

const (
	// StateDisconnected - no connection and none being set up.
	StateDisconnected State = iota

	// StateConnecting - the transport is dialing.
	StateConnecting

	// StateAwaitingChallenge - open, kolibri.getChallenge sent.
	StateAwaitingChallenge

	// StateAwaitingLogin - kolibri.login sent.
	StateAwaitingLogin

	// StateConnected - logged in.
	StateConnected

	// StateClosing - Disconnect requested, waiting for the transport close.
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingChallenge:
		return "AWAITING_CHALLENGE"
	case StateAwaitingLogin:
		return "AWAITING_LOGIN"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// handshaking reports whether a connection attempt is in progress.
func (s State) handshaking() bool {
	return s == StateConnecting || s == StateAwaitingChallenge || s == StateAwaitingLogin
}

// Level is the severity of a Status.
type Level uint8

const (
	// LevelOK - connected and working.
	LevelOK Level = iota

	// LevelWarning - transient or local problem.
	LevelWarning

	// LevelError - no connection or unusable path.
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelOK:
		return "OK"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Status texts.
const (
	TextConnecting       = "connecting"
	TextConnected        = "connected"
	TextDisconnected     = "disconnected"
	TextConnectionFailed = "connection failed"
	TextInvalidSettings  = "invalid broker settings"
	TextInvalidPath      = "invalid path"
)

// Status is reported to listeners on every session state change and on
// path specific failures.
type Status struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`

	// Path is set for statuses that concern a single data point.
	Path string `json:"path,omitempty"`
}

// String formats the status for logs.
func (s Status) String() string {
	if s.Path != "" {
		return s.Level.String() + " " + s.Path + ": " + s.Text
	}
	return s.Level.String() + ": " + s.Text
}

// Listener is a collaborator bound to a session, such as an input or
// output node for one data point.
type Listener interface {
	// ID identifies the listener. Registering the same ID twice replaces
	// the earlier listener.
	ID() string

	// Path is the data point the listener is bound to, or "".
	Path() string

	// SetStatus receives status updates on the session loop.
	SetStatus(Status)
}

// StatusFunc observes every status the session reports.
type StatusFunc func(Status)
