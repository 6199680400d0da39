package log

import (
	"sync"
	"time"

	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// Recorder stamps events with the current connection and login identity
// before passing them to a Logger. A nil *Recorder or nil Logger records
// nothing.
type Recorder struct {
	logger Logger
	now    func() time.Time

	mu      sync.RWMutex
	connID  string
	broker  string
	project string
	user    string
}

// NewRecorder creates a recorder for the broker at url.
func NewRecorder(logger Logger, url string) *Recorder {
	return &Recorder{logger: logger, broker: url, now: time.Now}
}

// SetClock replaces the timestamp source.
func (r *Recorder) SetClock(now func() time.Time) {
	if r == nil || now == nil {
		return
	}
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// SetConnection sets the connection id stamped on later events.
func (r *Recorder) SetConnection(id string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.connID = id
	r.mu.Unlock()
}

// ConnectionID returns the current connection id.
func (r *Recorder) ConnectionID() string {
	if r == nil {
		return ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connID
}

// SetLogin sets the project and user stamped on later events.
func (r *Recorder) SetLogin(project, user string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.project, r.user = project, user
	r.mu.Unlock()
}

// Enabled reports whether events are recorded.
func (r *Recorder) Enabled() bool {
	if r == nil || r.logger == nil {
		return false
	}
	_, noop := r.logger.(NoopLogger)
	return !noop
}

func (r *Recorder) emit(e Event) {
	if !r.Enabled() {
		return
	}
	r.mu.RLock()
	e.Timestamp = r.now()
	e.ConnectionID = r.connID
	e.Broker = r.broker
	e.Project = r.project
	e.User = r.user
	r.mu.RUnlock()
	r.logger.Log(e)
}

// Frame records a raw text frame.
func (r *Recorder) Frame(dir Direction, data []byte) {
	if !r.Enabled() {
		return
	}
	r.emit(Event{Direction: dir, Layer: LayerTransport, Category: CategoryMessage, Frame: NewFrameEvent(data)})
}

// Message records a decoded envelope. method and latency may be zero.
func (r *Recorder) Message(dir Direction, env *wire.Envelope, kind wire.Kind, method string, retry int, latency time.Duration) {
	if !r.Enabled() {
		return
	}
	me := NewMessageEvent(env, kind)
	if me.Method == "" {
		me.Method = method
	}
	me.Retry = retry
	if latency > 0 {
		me.Latency = &latency
	}
	r.emit(Event{Direction: dir, Layer: LayerWire, Category: CategoryMessage, Message: me})
}

// Control records a ping, pong or close frame. code is used for close only.
func (r *Recorder) Control(dir Direction, t ControlMsgType, code int) {
	if !r.Enabled() {
		return
	}
	cm := &ControlMsgEvent{Type: t}
	if t == ControlMsgClose {
		cm.CloseCode = &code
	}
	r.emit(Event{Direction: dir, Layer: LayerTransport, Category: CategoryControl, ControlMsg: cm})
}

// State records a state transition.
func (r *Recorder) State(entity StateEntity, oldState, newState, reason string) {
	if !r.Enabled() {
		return
	}
	r.emit(Event{
		Direction: DirectionIn,
		Layer:     LayerService,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// Error records an error. code is omitted when nil.
func (r *Recorder) Error(layer Layer, err error, context string, code *int) {
	if !r.Enabled() || err == nil {
		return
	}
	r.emit(Event{
		Direction: DirectionIn,
		Layer:     layer,
		Category:  CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Code:    code,
			Context: context,
		},
	})
}
