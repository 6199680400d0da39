package interaction

import (
	"sort"

	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// HandlerFunc handles one inbound request. It returns the result, or an
// RPC error to send instead. A nil result is sent as null.
type HandlerFunc func(env *wire.Envelope) (any, *wire.Error)

// Dispatcher routes inbound requests by method.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Handle registers h for method, replacing any earlier handler.
func (d *Dispatcher) Handle(method string, h HandlerFunc) {
	d.handlers[method] = h
}

// Methods returns the registered method names in sorted order.
func (d *Dispatcher) Methods() []string {
	out := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Has reports whether method has a handler.
func (d *Dispatcher) Has(method string) bool {
	_, ok := d.handlers[method]
	return ok
}

// Dispatch runs the handler for env and returns the reply to send. The
// reply carries the request's id and routing tag. Notifications are
// handled but never answered, so the reply is nil.
func (d *Dispatcher) Dispatch(env *wire.Envelope) *wire.Envelope {
	h, ok := d.handlers[env.Method]
	if !ok {
		if !env.HasID() {
			return nil
		}
		return wire.NewError(*env.ID, wire.ErrorFromCode(wire.CodeMethodNotFound), env.Server)
	}

	result, rpcErr := h(env)
	if !env.HasID() {
		return nil
	}
	if rpcErr != nil {
		return wire.NewError(*env.ID, rpcErr, env.Server)
	}

	reply, err := wire.NewResult(*env.ID, result, env.Server)
	if err != nil {
		return wire.NewError(*env.ID, wire.ErrorFromCode(wire.CodeInternalError).WithData(err.Error()), env.Server)
	}
	return reply
}
