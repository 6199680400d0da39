package broker

import (
	"encoding/json"

	"github.com/kolibri-protocol/kolibri-go/pkg/interaction"
	"github.com/kolibri-protocol/kolibri-go/pkg/log"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

func (s *Session) received(data []byte) {
	env, kind, err := wire.Decode(data)
	if err != nil {
		s.logger.Warn("dropping malformed envelope", "err", err, "size", len(data))
		s.rec.Error(log.LayerWire, err, "decode", nil)
		return
	}

	switch kind {
	case wire.KindRequest:
		s.rec.Message(log.DirectionIn, env, kind, "", 0, 0)
		s.handleRequest(env)
	case wire.KindResult, wire.KindError:
		s.handleReply(env, kind)
	case wire.KindInvalid:
		s.rec.Message(log.DirectionIn, env, kind, "", 0, 0)
		s.logger.Warn("dropping invalid envelope", "envelope", env.String())
	default:
		s.rec.Message(log.DirectionIn, env, kind, "", 0, 0)
		s.logger.Debug("ignoring envelope", "kind", kind.String(), "method", env.Method)
	}
}

func (s *Session) handleRequest(env *wire.Envelope) {
	reply := s.dispatcher.Dispatch(env)
	if reply == nil {
		return
	}
	kind := wire.KindResult
	if reply.Error != nil {
		kind = wire.KindError
		s.logger.Info("rejecting request", "method", env.Method, "code", reply.Error.Code)
	}
	s.rec.Message(log.DirectionOut, reply, kind, env.Method, 0, 0)
	if err := interaction.Transmit(s.transport, reply); err != nil {
		s.logger.Warn("failed to send reply", "method", env.Method, "err", err)
	}
}

func (s *Session) handleReply(env *wire.Envelope, kind wire.Kind) {
	if !env.HasID() {
		s.rec.Message(log.DirectionIn, env, kind, "", 0, 0)
		s.logger.Info("received unsolicited reply without id", "kind", kind.String())
		return
	}
	req, err := s.ledger.Resolve(env.IDValue())
	if err != nil {
		s.rec.Message(log.DirectionIn, env, kind, "", 0, 0)
		s.logger.Info("received unsolicited reply", "id", env.IDValue(), "kind", kind.String())
		return
	}
	s.rec.Message(log.DirectionIn, env, kind, req.Method(), req.Retries, s.now().Sub(req.Sent))

	if kind == wire.KindResult {
		s.handleResult(req, env)
	} else {
		s.handleError(req, env.Error)
	}
}

func (s *Session) handleResult(req *interaction.Request, env *wire.Envelope) {
	switch req.Method() {
	case wire.MethodGetChallenge:
		if s.state == StateAwaitingChallenge {
			s.login(env.Result)
		}
	case wire.MethodLogin:
		if s.state == StateAwaitingLogin {
			s.loginSucceeded(env)
		}
	case wire.MethodSubscribe:
		var stale []string
		for _, path := range requestPaths(req) {
			if s.subs.Confirm(path) > 0 {
				s.rec.State(log.StateEntitySubscription, "PENDING", "SUBSCRIBED", path)
			}
			if sub, ok := s.subs.Get(path); ok && !sub.Want {
				stale = append(stale, path)
			}
		}
		// Unsubscribe calls made while the request was in flight.
		if len(stale) > 0 && s.state == StateConnected {
			s.sendUnsubscribe(stale...)
		}
	case wire.MethodUnsubscribe:
		var wanted []string
		for _, path := range requestPaths(req) {
			if s.subs.Unconfirm(path) > 0 {
				s.rec.State(log.StateEntitySubscription, "SUBSCRIBED", "UNSUBSCRIBED", path)
			}
			if sub, ok := s.subs.Get(path); ok && sub.Want {
				wanted = append(wanted, path)
			}
		}
		// Subscribe calls made while the request was in flight.
		if len(wanted) > 0 && s.state == StateConnected {
			s.sendSubscribe(wanted...)
		}
	case wire.MethodWrite:
	default:
		s.logger.Debug("received result", "method", req.Method(), "result", string(env.Result))
	}
}

func (s *Session) handleError(req *interaction.Request, rpcErr *wire.Error) {
	rpcErr = rpcErr.Kolibri()

	switch req.Method() {
	case wire.MethodGetChallenge:
		if s.state != StateAwaitingChallenge {
			return
		}
		s.logger.Error("getChallenge failed", "code", rpcErr.Code, "err", rpcErr.Message)
		s.notify(Status{Level: LevelError, Text: rpcErr.Message})
		s.transport.Terminate(wire.CloseAbnormal)
	case wire.MethodLogin:
		if s.state == StateAwaitingLogin {
			s.loginFailed(rpcErr)
		}
	case wire.MethodSubscribe:
		paths := requestPaths(req)
		s.logger.Warn("subscribe failed", "paths", paths, "code", rpcErr.Code, "err", rpcErr.Message)
		for _, path := range paths {
			s.notify(Status{Level: LevelWarning, Text: rpcErr.Message, Path: path})
		}
	case wire.MethodWrite:
		var p wire.WriteParams
		_ = json.Unmarshal(req.Params(), &p)
		s.logger.Warn("write failed", "code", rpcErr.Code, "err", rpcErr.Message)
		if !s.config.WriteFailureStatus {
			return
		}
		for _, n := range p.Nodes {
			s.notify(Status{Level: LevelWarning, Text: rpcErr.Message, Path: n.Path})
		}
	default:
		s.logger.Warn("received RPC error", "method", req.Method(), "code", rpcErr.Code, "err", rpcErr.Message)
	}
}

// requestPaths returns the paths of a subscribe or unsubscribe request.
func requestPaths(req *interaction.Request) []string {
	var params []wire.PathParam
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return nil
	}
	paths := make([]string, 0, len(params))
	for _, p := range params {
		paths = append(paths, p.Path)
	}
	return paths
}

func (s *Session) handleGetRPCInfo(*wire.Envelope) (any, *wire.Error) {
	methods := make([]string, len(wire.ConsumerMethods))
	copy(methods, wire.ConsumerMethods)
	return wire.RPCInfo{Version: wire.ProtocolVersion, Methods: methods}, nil
}

func (s *Session) handleWrite(env *wire.Envelope) (any, *wire.Error) {
	var p wire.WriteParams
	if err := env.DecodeParams(&p); err != nil {
		return nil, wire.ErrorFromCode(wire.CodeInvalidParams).WithData(err.Error())
	}
	for _, n := range p.Nodes {
		if !s.subs.Deliver(n) {
			s.logger.Debug("no handler for point", "path", n.Path)
		}
	}
	return 0, nil
}

func (s *Session) handleUnsubscribed(env *wire.Envelope) (any, *wire.Error) {
	entries, err := unsubscribedEntries(env)
	if err != nil {
		return nil, wire.ErrorFromCode(wire.CodeInvalidParams).WithData(err.Error())
	}

	var resubscribe []string
	for _, e := range entries {
		sub, ok := s.subs.Get(e.Path)
		if !ok {
			if !e.Subscribe {
				s.notify(Status{Level: LevelError, Text: TextInvalidPath, Path: e.Path})
			}
			continue
		}
		if e.Subscribe {
			s.subs.Unconfirm(e.Path)
			s.rec.State(log.StateEntitySubscription, "SUBSCRIBED", "PENDING", e.Path)
			if sub.Want {
				resubscribe = append(resubscribe, e.Path)
			}
			continue
		}
		s.logger.Warn("broker revoked subscription", "path", e.Path)
		s.subs.Remove(e.Path)
		s.rec.State(log.StateEntitySubscription, "SUBSCRIBED", "REMOVED", e.Path)
		s.notify(Status{Level: LevelError, Text: TextInvalidPath, Path: e.Path})
	}

	if len(resubscribe) > 0 && s.state == StateConnected {
		s.sendSubscribe(resubscribe...)
	}
	return 0, nil
}

// unsubscribedEntries accepts both a bare array and {"nodes": [...]}.
func unsubscribedEntries(env *wire.Envelope) ([]wire.UnsubscribedEntry, error) {
	var entries []wire.UnsubscribedEntry
	err := env.DecodeParams(&entries)
	if err == nil {
		return entries, nil
	}
	var wrapped struct {
		Nodes []wire.UnsubscribedEntry `json:"nodes"`
	}
	if werr := env.DecodeParams(&wrapped); werr == nil && wrapped.Nodes != nil {
		return wrapped.Nodes, nil
	}
	return nil, err
}
