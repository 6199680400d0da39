package broker

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/kolibri-protocol/kolibri-go/pkg/log"
	"github.com/kolibri-protocol/kolibri-go/pkg/persistence"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// transportEvents receives transport callbacks on the session loop.
type transportEvents struct {
	s *Session
}

func (e transportEvents) OnOpen()               { e.s.opened() }
func (e transportEvents) OnClose(code int)      { e.s.closedWith(code) }
func (e transportEvents) OnError(err error)     { e.s.transportError(err) }
func (e transportEvents) OnMessage(data []byte) { e.s.received(data) }

func (s *Session) connect() {
	switch {
	case s.closed:
		return
	case s.state == StateClosing:
		s.connectAfterClose = true
		return
	case s.state == StateConnected || s.state.handshaking():
		return
	}

	s.reconnect.Cancel()
	s.setState(StateConnecting, "")
	s.notify(Status{Level: LevelWarning, Text: TextConnecting})
	if err := s.transport.Start(); err != nil {
		s.logger.Error("failed to start transport", "err", err)
	}
}

func (s *Session) disconnect() {
	s.reconnect.Cancel()
	s.connectAfterClose = false

	switch s.state {
	case StateDisconnected, StateClosing:
		return
	}
	s.setState(StateClosing, "disconnect")
	s.transport.Stop(wire.CloseNormal)
}

func (s *Session) opened() {
	if s.state != StateConnecting {
		return
	}
	s.logger.Debug("transport open", "conn", s.transport.ConnectionID())
	s.setState(StateAwaitingChallenge, "")
	if _, err := s.ledger.SendWithRetry(wire.MethodGetChallenge, wire.Empty{}, nil); err != nil {
		s.logger.Error("failed to send getChallenge", "err", err)
	}
}

func (s *Session) transportError(err error) {
	s.logger.Info("connection error", "err", err)
}

func (s *Session) closedWith(code int) {
	wasLoggedIn := s.loggedIn
	closing := s.state == StateClosing

	s.loggedIn = false
	s.ledger.Clear()
	s.subs.UnconfirmAll()
	s.setState(StateDisconnected, wire.CloseText(code))

	if wasLoggedIn {
		s.logger.Info("disconnected", "code", code, "reason", wire.CloseText(code))
		s.notify(Status{Level: LevelError, Text: TextDisconnected})
	} else {
		s.logger.Info("connect failed", "code", code)
	}

	if s.closed {
		return
	}
	if closing {
		if s.connectAfterClose {
			s.connectAfterClose = false
			s.connect()
		} else if !wasLoggedIn {
			s.notify(Status{Level: LevelError, Text: TextDisconnected})
		}
		return
	}

	if _, err := s.reconnect.Schedule(s.connect); err != nil {
		s.logger.Warn("giving up reconnecting", "attempts", s.reconnect.Attempts())
		s.notify(Status{Level: LevelError, Text: TextConnectionFailed})
	}
}

func (s *Session) login(challenge json.RawMessage) {
	hash := s.hasher.Hash(secretParts(s.config.Password, s.config.User, s.project), ChallengeBytes(challenge))
	params := wire.LoginParams{
		Version:             wire.ProtocolVersion,
		User:                s.config.User,
		Password:            hex.EncodeToString(hash),
		Interval:            seconds(s.config.KeepAliveInterval),
		Timeout:             seconds(s.config.KeepAliveTimeout),
		PendingTransactions: false,
		Client:              s.clientID,
	}
	s.setState(StateAwaitingLogin, "")
	if _, err := s.ledger.SendWithRetry(wire.MethodLogin, params, nil); err != nil {
		s.logger.Error("failed to send login", "err", err)
	}
}

func (s *Session) loginSucceeded(env *wire.Envelope) {
	var res wire.LoginResult
	if err := env.DecodeResult(&res); err == nil && res.Client != "" && res.Client != s.clientID {
		s.clientID = res.Client
		s.saveClientID()
	}

	s.loggedIn = true
	s.setState(StateConnected, "")
	s.reconnect.Reset()
	s.logger.Info("connected", "project", s.project, "user", s.config.User)
	s.notify(Status{Level: LevelOK, Text: TextConnected})

	if paths := s.subs.Replay(); len(paths) > 0 {
		s.sendSubscribe(paths...)
	}
}

func (s *Session) loginFailed(rpcErr *wire.Error) {
	s.logger.Error("login failed", "code", rpcErr.Code, "err", rpcErr.Message)
	s.rec.Error(log.LayerService, rpcErr, wire.MethodLogin, &rpcErr.Code)

	text := rpcErr.Message
	if strings.EqualFold(text, "access denied") || wire.HasCode(rpcErr, wire.CodeAccessDenied) {
		text = TextInvalidSettings
	}
	s.notify(Status{Level: LevelError, Text: text})

	s.transport.Terminate(wire.CloseAbnormal)
}

func (s *Session) saveClientID() {
	if s.store == nil {
		return
	}
	id := &persistence.Identity{
		Key:      s.storeKey(),
		ClientID: s.clientID,
		Project:  s.project,
		User:     s.config.User,
	}
	if err := s.store.Save(id); err != nil {
		s.logger.Warn("failed to save client id", "err", err)
	}
}
