package broker

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kolibri-protocol/kolibri-go/pkg/connection"
	"github.com/kolibri-protocol/kolibri-go/pkg/interaction"
	"github.com/kolibri-protocol/kolibri-go/pkg/log"
	"github.com/kolibri-protocol/kolibri-go/pkg/loop"
	"github.com/kolibri-protocol/kolibri-go/pkg/persistence"
	"github.com/kolibri-protocol/kolibri-go/pkg/subscription"
	"github.com/kolibri-protocol/kolibri-go/pkg/transport"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// Options supplies the collaborators of a Session. All fields are optional.
type Options struct {
	// Loop runs the session. When nil the session starts a private loop
	// and stops it on Close.
	Loop loop.Executor

	// Dialer opens broker connections (default: WebSocket dialer for the
	// configured URL).
	Dialer transport.Dialer

	// Hasher computes the login hash (default: HMACHasher).
	Hasher Hasher

	// Store persists the client id assigned at login.
	Store persistence.Store

	// Trace receives protocol trace events.
	Trace log.Logger

	// Now is the clock (default: time.Now).
	Now func() time.Time
}

// Session is a consumer session with one Kolibri broker.
type Session struct {
	config  Config
	logger  *slog.Logger
	exec    loop.Executor
	owned   *loop.Loop
	hasher  Hasher
	store   persistence.Store
	rec     *log.Recorder
	now     func() time.Time
	project string

	// Loop-owned state.
	state      State
	transport  *transport.Session
	ledger     *interaction.Ledger
	dispatcher *interaction.Dispatcher
	subs       *subscription.Set
	reconnect  *connection.Retrier
	listeners  map[string]Listener
	onStatus   []StatusFunc
	status     Status
	clientID   string
	loggedIn   bool
	closed     bool

	// connectAfterClose restarts the session once a pending close completes.
	connectAfterClose bool

	// stateV mirrors state for lock-free reads.
	stateV   atomic.Uint32
	closeMu  sync.Mutex
	isClosed bool
}

// NewSession validates cfg and creates a disconnected session.
func NewSession(cfg Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Hasher == nil {
		opts.Hasher = HMACHasher{}
	}

	dialer := opts.Dialer
	if dialer == nil {
		d, err := transport.NewDialer(cfg.DialerConfig())
		if err != nil {
			return nil, err
		}
		dialer = d
	}

	s := &Session{
		config:     cfg,
		logger:     cfg.Logger.With("broker", cfg.URL()),
		hasher:     opts.Hasher,
		store:      opts.Store,
		now:        opts.Now,
		project:    cfg.ProjectName(),
		clientID:   cfg.ClientID,
		dispatcher: interaction.NewDispatcher(),
		subs:       subscription.NewSetWithConfig(subscription.Config{MaxSubscriptions: cfg.MaxSubscriptions}),
		listeners:  make(map[string]Listener),
		status:     Status{Level: LevelError, Text: TextDisconnected},
	}

	if opts.Trace != nil {
		s.rec = log.NewRecorder(opts.Trace, cfg.URL())
		s.rec.SetClock(opts.Now)
		s.rec.SetLogin(s.project, cfg.User)
	}

	if s.clientID == "" && s.store != nil {
		id, err := s.store.Load(s.storeKey())
		if err != nil {
			s.logger.Warn("failed to load client id", "err", err)
		} else if id != nil {
			s.clientID = id.ClientID
		}
	}

	s.exec = opts.Loop
	if s.exec == nil {
		s.owned = loop.New()
		s.owned.Start()
		s.exec = s.owned
	}

	s.transport = transport.NewSession(s.exec, dialer, transportEvents{s}, cfg.TransportConfig(s.logger, s.rec))
	s.ledger = interaction.NewLedger(s.exec, s.transport, cfg.LedgerConfig(s.logger, s.rec, opts.Now))
	s.reconnect = connection.NewRetrier(s.exec, cfg.ReconnectConfig())
	s.reconnect.OnRetry(func(attempt int, delay time.Duration) {
		s.logger.Info("reconnecting", "attempt", attempt, "delay", delay)
	})

	s.dispatcher.Handle(wire.MethodGetRPCInfo, s.handleGetRPCInfo)
	s.dispatcher.Handle(wire.MethodWrite, s.handleWrite)
	s.dispatcher.Handle(wire.MethodUnsubscribed, s.handleUnsubscribed)

	return s, nil
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.config
}

// Project returns the project name used at login.
func (s *Session) Project() string {
	return s.project
}

func (s *Session) storeKey() string {
	return persistence.Key(s.config.URL(), s.project, s.config.User)
}

func (s *Session) post(fn func()) error {
	s.closeMu.Lock()
	closed := s.isClosed
	s.closeMu.Unlock()
	if closed {
		return ErrClosed
	}
	s.exec.Post(fn)
	return nil
}

// Connect starts connecting. It is a no-op while connected or connecting.
func (s *Session) Connect() error {
	return s.post(func() {
		s.reconnect.Reset()
		s.connect()
	})
}

// Disconnect closes the connection and stops reconnecting. Subscriptions
// are kept for the next Connect.
func (s *Session) Disconnect() error {
	return s.post(s.disconnect)
}

// Subscribe sets the desired state of path to subscribed and binds h to
// it. The subscribe request is sent now when connected, else after the
// next login.
func (s *Session) Subscribe(path string, h subscription.Handler) error {
	if path == "" {
		return ErrEmptyPath
	}
	return s.post(func() { s.subscribe(path, h) })
}

// Unsubscribe sets the desired state of path to unsubscribed.
func (s *Session) Unsubscribe(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	return s.post(func() { s.unsubscribe(path) })
}

// Write sends p to the broker. It fails with ErrNotConnected unless the
// session is logged in.
func (s *Session) Write(p wire.PointState) error {
	if p.Path == "" {
		return ErrEmptyPath
	}
	if !s.Connected() {
		return ErrNotConnected
	}
	return s.post(func() { s.write(p) })
}

// Register adds l. The first listener connects the session.
func (s *Session) Register(l Listener) error {
	return s.post(func() { s.register(l) })
}

// Deregister removes l. Removing the last listener disconnects the session.
func (s *Session) Deregister(l Listener) error {
	return s.post(func() { s.deregister(l) })
}

// OnStatus adds an observer for every reported status.
func (s *Session) OnStatus(fn StatusFunc) error {
	return s.post(func() { s.onStatus = append(s.onStatus, fn) })
}

// Connected reports whether the session is logged in.
func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

// State returns the current session state.
func (s *Session) State() State {
	return State(s.stateV.Load())
}

// Status returns the last session wide status.
func (s *Session) Status() Status {
	var st Status
	if err := s.exec.Call(func() { st = s.status }); err != nil {
		return Status{Level: LevelError, Text: TextDisconnected}
	}
	return st
}

// Subscriptions returns a snapshot of the subscription set.
func (s *Session) Subscriptions() []subscription.Info {
	var infos []subscription.Info
	if err := s.exec.Call(func() { infos = s.subs.Infos() }); err != nil {
		return nil
	}
	return infos
}

// Pending returns the number of requests awaiting a reply.
func (s *Session) Pending() int {
	n := 0
	if err := s.exec.Call(func() { n = s.ledger.Len() }); err != nil {
		return 0
	}
	return n
}

// ClientID returns the client id presented at the next login.
func (s *Session) ClientID() string {
	var id string
	if err := s.exec.Call(func() { id = s.clientID }); err != nil {
		return ""
	}
	return id
}

// Close disconnects and releases the session. A private loop is stopped
// once the close has been processed. Close must not be called from a
// handler or listener.
func (s *Session) Close() error {
	s.closeMu.Lock()
	if s.isClosed {
		s.closeMu.Unlock()
		return nil
	}
	s.isClosed = true
	s.closeMu.Unlock()

	err := s.exec.Call(func() {
		s.closed = true
		s.disconnect()
		if s.state != StateDisconnected {
			// Do not wait for the broker's close reply.
			s.transport.Terminate(wire.CloseNormal)
		}
		s.listeners = make(map[string]Listener)
	})
	if s.owned != nil {
		s.owned.Stop()
	}
	if err != nil && !errors.Is(err, loop.ErrStopped) {
		return err
	}
	return nil
}

func (s *Session) setState(next State, reason string) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	s.stateV.Store(uint32(next))
	s.logger.Debug("session state", "from", prev.String(), "to", next.String(), "reason", reason)
	s.rec.State(log.StateEntitySession, prev.String(), next.String(), reason)
}
