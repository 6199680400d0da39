package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kolibri-protocol/kolibri-go/pkg/connection"
	"github.com/kolibri-protocol/kolibri-go/pkg/log"
	"github.com/kolibri-protocol/kolibri-go/pkg/loop"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// State is the transport session state.
type State uint8

const (
	// StateIdle indicates the session has never been started.
	StateIdle State = iota

	// StateConnecting indicates a dial or a dial retry is pending.
	StateConnecting

	// StateOpen indicates an established connection.
	StateOpen

	// StateClosing indicates a close frame was sent and the reply is awaited.
	StateClosing

	// StateClosed indicates the connection ended.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session errors.
var (
	ErrNotOpen        = errors.New("transport not open")
	ErrAlreadyStarted = errors.New("transport already started")
)

// Defaults.
const (
	DefaultConnectRetries = 100
	DefaultCloseTimeout   = 5 * time.Second
	DefaultDialTimeout    = 30 * time.Second
)

// Config configures a Session.
type Config struct {
	// ConnectRetries is the number of redials after a failed dial.
	// Zero gives up after the first failure; connection.Unlimited never does.
	ConnectRetries int

	// Backoff is the redial schedule (default: 2s doubling to 60s).
	Backoff connection.BackoffConfig

	KeepAlive KeepAliveConfig

	// CloseTimeout is how long Stop waits for the broker's close reply.
	CloseTimeout time.Duration

	// DialTimeout bounds a single dial attempt.
	DialTimeout time.Duration

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// Recorder receives protocol trace events. Nil disables tracing.
	Recorder *log.Recorder
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() Config {
	return Config{
		ConnectRetries: DefaultConnectRetries,
		Backoff:        connection.DefaultBackoffConfig(),
		KeepAlive:      DefaultKeepAliveConfig(),
		CloseTimeout:   DefaultCloseTimeout,
		DialTimeout:    DefaultDialTimeout,
	}
}

// Session maintains one WebSocket connection at a time.
//
// Start, Stop, Terminate and Send must be called on the scheduler's loop.
// Dials and reads run on their own goroutines and post their results to
// the loop; results belonging to an earlier connection are discarded.
type Session struct {
	config  Config
	sched   loop.Scheduler
	dialer  Dialer
	handler Handler
	logger  *slog.Logger
	rec     *log.Recorder

	state State

	// gen identifies the current connection attempt.
	gen uint64

	ch         Channel
	connID     string
	cancelDial context.CancelFunc
	closeTimer loop.Timer
	closeCode  int

	retrier  *connection.Retrier
	watchdog *Watchdog
}

// NewSession creates an idle session.
func NewSession(sched loop.Scheduler, dialer Dialer, handler Handler, config Config) *Session {
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = DefaultCloseTimeout
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Session{
		config:  config,
		sched:   sched,
		dialer:  dialer,
		handler: handler,
		logger:  config.Logger,
		rec:     config.Recorder,
		retrier: connection.NewRetrier(sched, connection.RetrierConfig{
			Backoff:    config.Backoff,
			MaxRetries: config.ConnectRetries,
		}),
	}
	s.watchdog = NewWatchdog(sched, config.KeepAlive, s.keepaliveExpired)
	return s
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// ConnectionID returns the id of the current or last connection.
func (s *Session) ConnectionID() string {
	return s.connID
}

// Start begins connecting. It is valid only when idle or closed.
func (s *Session) Start() error {
	if s.state != StateIdle && s.state != StateClosed {
		return ErrAlreadyStarted
	}
	s.retrier.Reset()
	s.dial()
	return nil
}

// Stop closes the connection gracefully with code (0 selects 1000).
// A pending connect is abandoned and reported as closed.
func (s *Session) Stop(code int) {
	if code == 0 {
		code = wire.CloseNormal
	}

	switch s.state {
	case StateConnecting:
		s.abandonConnect(code)

	case StateOpen:
		s.setState(StateClosing, wire.CloseText(code))
		s.closeCode = code
		s.rec.Control(log.DirectionOut, log.ControlMsgClose, code)
		if err := s.ch.WriteClose(code, ""); err != nil {
			s.logger.Debug("close frame write failed", "err", err)
			s.finish(code)
			return
		}
		gen := s.gen
		s.closeTimer = s.sched.AfterFunc(s.config.CloseTimeout, func() {
			if gen != s.gen {
				return
			}
			s.logger.Debug("close handshake timed out", "code", code)
			s.finish(code)
		})
	}
}

// Terminate drops the connection without a close handshake and reports
// code as the close code.
func (s *Session) Terminate(code int) {
	switch s.state {
	case StateConnecting:
		s.abandonConnect(code)
	case StateOpen, StateClosing:
		s.finish(code)
	}
}

// Send writes one text frame.
func (s *Session) Send(data []byte) error {
	if s.state != StateOpen {
		return ErrNotOpen
	}
	s.rec.Frame(log.DirectionOut, data)
	if err := s.ch.WriteText(data); err != nil {
		s.rec.Error(log.LayerTransport, err, "write", nil)
		return err
	}
	return nil
}

func (s *Session) dial() {
	s.gen++
	gen := s.gen
	s.setState(StateConnecting, "")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	s.cancelDial = cancel

	onControl := func(t ControlType) {
		s.sched.Post(func() { s.control(gen, t) })
	}

	go func() {
		ch, err := s.dialer.Dial(ctx, onControl)
		cancel()
		s.sched.Post(func() { s.dialed(gen, ch, err) })
	}()
}

func (s *Session) dialed(gen uint64, ch Channel, err error) {
	if gen != s.gen || s.state != StateConnecting {
		if ch != nil {
			ch.Close()
		}
		return
	}
	s.cancelDial = nil

	if err != nil {
		s.logger.Debug("dial failed", "err", err, "attempt", s.retrier.Attempts()+1)
		s.rec.Error(log.LayerTransport, err, "dial", nil)
		s.handler.OnError(err)
		if gen != s.gen {
			// The handler stopped or restarted the session.
			return
		}
		if _, rerr := s.retrier.Schedule(s.dial); rerr != nil {
			s.logger.Debug("giving up connecting", "retries", s.retrier.Attempts())
			s.setState(StateClosed, "connect retries exhausted")
			s.handler.OnClose(wire.CloseAbnormal)
		}
		return
	}

	s.ch = ch
	s.connID = uuid.NewString()
	s.closeCode = 0
	s.rec.SetConnection(s.connID)
	s.retrier.Reset()
	s.setState(StateOpen, "")
	s.watchdog.Start()

	go s.readLoop(gen, ch)

	s.handler.OnOpen()
}

func (s *Session) readLoop(gen uint64, ch Channel) {
	for {
		binary, data, err := ch.ReadMessage()
		if err != nil {
			s.sched.Post(func() { s.readFailed(gen, err) })
			return
		}
		s.sched.Post(func() { s.received(gen, binary, data) })
	}
}

func (s *Session) current(gen uint64) bool {
	return gen == s.gen && (s.state == StateOpen || s.state == StateClosing)
}

func (s *Session) received(gen uint64, binary bool, data []byte) {
	if !s.current(gen) {
		return
	}
	s.watchdog.Feed()

	if binary {
		s.logger.Debug("dropping binary frame", "size", len(data))
		return
	}
	s.rec.Frame(log.DirectionIn, data)
	s.handler.OnMessage(data)
}

func (s *Session) control(gen uint64, t ControlType) {
	if !s.current(gen) {
		return
	}
	s.watchdog.Feed()
	switch t {
	case ControlPing:
		s.rec.Control(log.DirectionIn, log.ControlMsgPing, 0)
	case ControlPong:
		s.rec.Control(log.DirectionIn, log.ControlMsgPong, 0)
	}
}

func (s *Session) readFailed(gen uint64, err error) {
	if !s.current(gen) {
		return
	}
	code := wire.CloseAbnormal
	var ce *CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	if s.closeCode != 0 {
		// We initiated the close; report our own code.
		code = s.closeCode
	}
	s.rec.Control(log.DirectionIn, log.ControlMsgClose, code)
	s.finish(code)
}

func (s *Session) keepaliveExpired() {
	if s.state != StateOpen && s.state != StateClosing {
		return
	}
	s.logger.Warn("keepalive timeout", "after", s.config.KeepAlive.DetectionDelay())
	s.finish(wire.CloseKeepalive)
}

// finish tears down the current connection and emits its close event.
func (s *Session) finish(code int) {
	s.gen++
	s.watchdog.Stop()
	if s.closeTimer != nil {
		s.closeTimer.Stop()
		s.closeTimer = nil
	}
	if s.ch != nil {
		s.ch.Close()
		s.ch = nil
	}
	s.closeCode = 0
	s.setState(StateClosed, wire.CloseText(code))
	s.handler.OnClose(code)
}

func (s *Session) abandonConnect(code int) {
	s.gen++
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	s.retrier.Cancel()
	s.setState(StateClosed, "connect abandoned")
	s.handler.OnClose(code)
}

func (s *Session) setState(next State, reason string) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	s.logger.Debug("transport state", "from", prev.String(), "to", next.String())
	s.rec.State(log.StateEntityConnection, prev.String(), next.String(), reason)
}
