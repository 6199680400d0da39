package broker

import (
	"github.com/kolibri-protocol/kolibri-go/pkg/log"
	"github.com/kolibri-protocol/kolibri-go/pkg/subscription"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

func (s *Session) subscribe(path string, h subscription.Handler) {
	sub, err := s.subs.Want(path, h)
	if err != nil {
		s.logger.Warn("subscribe rejected", "path", path, "err", err)
		s.notify(Status{Level: LevelWarning, Text: err.Error(), Path: path})
		return
	}
	s.rec.State(log.StateEntitySubscription, "", "WANTED", path)
	if s.state == StateConnected && !sub.Subscribed {
		s.sendSubscribe(path)
	}
}

func (s *Session) unsubscribe(path string) {
	sub, err := s.subs.Unwant(path)
	if err != nil {
		s.logger.Warn("unsubscribe rejected", "path", path, "err", err)
		return
	}
	s.rec.State(log.StateEntitySubscription, "", "UNWANTED", path)
	if s.state == StateConnected && sub.Subscribed {
		s.sendUnsubscribe(path)
	}
}

func (s *Session) write(p wire.PointState) {
	if s.state != StateConnected {
		s.logger.Debug("dropping write while not connected", "path", p.Path)
		return
	}
	params := wire.WriteParams{Nodes: []wire.PointState{p}}
	if _, err := s.ledger.SendWithRetry(wire.MethodWrite, params, nil); err != nil {
		s.logger.Error("failed to send write", "path", p.Path, "err", err)
	}
}

func (s *Session) sendSubscribe(paths ...string) {
	if _, err := s.ledger.SendWithRetry(wire.MethodSubscribe, wire.PathParams(paths...), nil); err != nil {
		s.logger.Error("failed to send subscribe", "paths", paths, "err", err)
	}
}

func (s *Session) sendUnsubscribe(paths ...string) {
	if _, err := s.ledger.SendWithRetry(wire.MethodUnsubscribe, wire.PathParams(paths...), nil); err != nil {
		s.logger.Error("failed to send unsubscribe", "paths", paths, "err", err)
	}
}

func (s *Session) register(l Listener) {
	if l == nil {
		return
	}
	s.listeners[l.ID()] = l
	l.SetStatus(s.status)
	if len(s.listeners) == 1 {
		s.reconnect.Reset()
		s.connect()
	}
}

func (s *Session) deregister(l Listener) {
	if l == nil {
		return
	}
	if _, ok := s.listeners[l.ID()]; !ok {
		return
	}
	delete(s.listeners, l.ID())
	if len(s.listeners) == 0 {
		s.disconnect()
	}
}

// notify reports st to the matching listeners and all status observers.
// Session wide statuses also become the status returned by Status.
func (s *Session) notify(st Status) {
	if st.Path == "" {
		s.status = st
	}
	for _, l := range s.listeners {
		if st.Path == "" || l.Path() == st.Path {
			l.SetStatus(st)
		}
	}
	for _, fn := range s.onStatus {
		fn(st)
	}
}
