package interaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kolibri-protocol/kolibri-go/pkg/log"
	"github.com/kolibri-protocol/kolibri-go/pkg/loop"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// Ledger errors.
var (
	ErrDuplicateID = errors.New("request id already pending")
	ErrMissingID   = errors.New("request has no id")
	ErrUnsolicited = errors.New("unsolicited reply")
	ErrLedgerFull  = errors.New("no free request id")
)

// Ledger defaults.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultRequestRetries = 2
)

// Sender writes an encoded frame to the connection.
type Sender interface {
	Send(data []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(data []byte) error

// Send calls f(data).
func (f SenderFunc) Send(data []byte) error { return f(data) }

// Request is an outbound request awaiting its reply.
type Request struct {
	Envelope *wire.Envelope

	// Retries counts resends after the first send.
	Retries int

	// Sent is the time of the first send.
	Sent time.Time

	timer loop.Timer
}

// ID returns the correlation id.
func (r *Request) ID() uint16 {
	return r.Envelope.IDValue()
}

// Method returns the request method.
func (r *Request) Method() string {
	return r.Envelope.Method
}

// Params returns the raw request params.
func (r *Request) Params() json.RawMessage {
	return r.Envelope.Params
}

// LedgerConfig configures a Ledger.
type LedgerConfig struct {
	// Timeout is the wait for a reply before resending (default: 30s).
	Timeout time.Duration

	// MaxRetries is the number of resends before a request is dropped.
	MaxRetries int

	Logger   *slog.Logger
	Recorder *log.Recorder

	// Now is the clock used for Request.Sent (default: time.Now).
	Now func() time.Time
}

// DefaultLedgerConfig returns the default ledger configuration.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Timeout:    DefaultRequestTimeout,
		MaxRetries: DefaultRequestRetries,
	}
}

// Ledger tracks pending outbound requests.
type Ledger struct {
	config  LedgerConfig
	sched   loop.Scheduler
	sender  Sender
	logger  *slog.Logger
	rec     *log.Recorder
	pending map[uint16]*Request

	sid uint16
	tid uint16
}

// NewLedger creates an empty ledger that sends through sender and arms
// its timeouts on sched.
func NewLedger(sched loop.Scheduler, sender Sender, config LedgerConfig) *Ledger {
	if config.Timeout <= 0 {
		config.Timeout = DefaultRequestTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Ledger{
		config:  config,
		sched:   sched,
		sender:  sender,
		logger:  config.Logger,
		rec:     config.Recorder,
		pending: make(map[uint16]*Request),
	}
}

// NextID allocates the next free correlation id.
func (l *Ledger) NextID() (uint16, error) {
	for i := 0; i < 65535; i++ {
		l.sid++
		if l.sid == 0 {
			l.sid = 1
		}
		if _, busy := l.pending[l.sid]; !busy {
			return l.sid, nil
		}
	}
	return 0, ErrLedgerFull
}

// NextTID returns the next transaction number (1..65535, wrapping).
func (l *Ledger) NextTID() uint16 {
	l.tid++
	if l.tid == 0 {
		l.tid = 1
	}
	return l.tid
}

// Add registers env as pending without sending it or arming a timeout.
func (l *Ledger) Add(env *wire.Envelope) error {
	if env == nil || env.ID == nil {
		return ErrMissingID
	}
	id := *env.ID
	if _, ok := l.pending[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	l.pending[id] = &Request{Envelope: env, Sent: l.config.Now()}
	return nil
}

// Get returns the pending request with id.
func (l *Ledger) Get(id uint16) (*Request, bool) {
	r, ok := l.pending[id]
	return r, ok
}

// Retries returns the retry count of a pending request.
func (l *Ledger) Retries(id uint16) (int, bool) {
	r, ok := l.pending[id]
	if !ok {
		return 0, false
	}
	return r.Retries, true
}

// Delete removes a pending request and cancels its timeout.
// Deleting an unknown id is a no-op; it reports whether id was pending.
func (l *Ledger) Delete(id uint16) bool {
	r, ok := l.pending[id]
	if !ok {
		return false
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	delete(l.pending, id)
	return true
}

// Resolve removes and returns the request answered by a reply with id.
func (l *Ledger) Resolve(id uint16) (*Request, error) {
	r, ok := l.pending[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnsolicited, id)
	}
	l.Delete(id)
	return r, nil
}

// Len returns the number of pending requests.
func (l *Ledger) Len() int {
	return len(l.pending)
}

// Clear drops all pending requests and cancels their timeouts.
func (l *Ledger) Clear() {
	for id := range l.pending {
		l.Delete(id)
	}
}

// Send sends a request once and keeps it pending until its reply.
func (l *Ledger) Send(method string, params any, server json.RawMessage) (uint16, error) {
	req, err := l.register(method, params, server)
	if err != nil {
		return 0, err
	}
	if err := l.transmit(req); err != nil {
		l.logger.Debug("request send failed", "method", method, "id", req.ID(), "err", err)
	}
	return req.ID(), nil
}

// SendWithRetry sends a request and resends it on timeout up to
// MaxRetries times. A failed send is treated like a lost request.
func (l *Ledger) SendWithRetry(method string, params any, server json.RawMessage) (uint16, error) {
	req, err := l.register(method, params, server)
	if err != nil {
		return 0, err
	}
	if err := l.transmit(req); err != nil {
		l.logger.Debug("request send failed", "method", method, "id", req.ID(), "err", err)
	}
	l.arm(req)
	return req.ID(), nil
}

func (l *Ledger) register(method string, params any, server json.RawMessage) (*Request, error) {
	id, err := l.NextID()
	if err != nil {
		return nil, err
	}
	env, err := wire.NewRequest(method, id, params, server)
	if err != nil {
		return nil, err
	}
	if err := l.Add(env); err != nil {
		return nil, err
	}
	return l.pending[id], nil
}

func (l *Ledger) arm(req *Request) {
	id := req.ID()
	req.timer = l.sched.AfterFunc(l.config.Timeout, func() {
		l.timedOut(id, req)
	})
}

func (l *Ledger) timedOut(id uint16, req *Request) {
	if cur, ok := l.pending[id]; !ok || cur != req {
		return
	}
	req.timer = nil

	if req.Retries >= l.config.MaxRetries {
		l.logger.Warn("request abandoned", "method", req.Method(), "id", id, "retries", req.Retries)
		delete(l.pending, id)
		return
	}

	req.Retries++
	l.logger.Debug("request timed out, resending", "method", req.Method(), "id", id, "retry", req.Retries)
	if err := l.transmit(req); err != nil {
		l.logger.Debug("request resend failed", "method", req.Method(), "id", id, "err", err)
	}
	l.arm(req)
}

func (l *Ledger) transmit(req *Request) error {
	if l.rec.Enabled() {
		kind := wire.KindRequest
		if req.Envelope.Server != nil {
			kind = wire.KindRequestRouted
		}
		l.rec.Message(log.DirectionOut, req.Envelope, kind, "", req.Retries, 0)
	}
	return Transmit(l.sender, req.Envelope)
}

// Transmit encodes env and sends it.
func Transmit(s Sender, env *wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}
	return s.Send(data)
}
