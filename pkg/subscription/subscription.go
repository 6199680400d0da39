package subscription

import (
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// Handler receives point updates pushed by the broker for one path.
type Handler func(p wire.PointState)

// Subscription is the local state of one data point path.
type Subscription struct {
	// Path is the broker data point path and the key in the Set.
	Path string

	// Want is the desired state.
	Want bool

	// Subscribed is true once the broker acknowledged a subscribe request.
	Subscribed bool

	// Handler receives updates. It may be nil for entries created by Unwant.
	Handler Handler

	// Last is the most recent update delivered.
	Last *wire.PointState

	// Updates counts delivered updates.
	Updates uint64
}

// Pending reports whether the desired and confirmed states differ.
func (s *Subscription) Pending() bool {
	return s.Want != s.Subscribed
}

// Info returns a read-only snapshot.
func (s *Subscription) Info() Info {
	info := Info{
		Path:       s.Path,
		Want:       s.Want,
		Subscribed: s.Subscribed,
		Updates:    s.Updates,
	}
	if s.Last != nil {
		last := *s.Last
		info.Last = &last
	}
	return info
}

// Info is a snapshot of a Subscription safe to hand out of the session loop.
type Info struct {
	Path       string           `json:"path" yaml:"path"`
	Want       bool             `json:"want" yaml:"want"`
	Subscribed bool             `json:"subscribed" yaml:"subscribed"`
	Updates    uint64           `json:"updates" yaml:"updates"`
	Last       *wire.PointState `json:"last,omitempty" yaml:"last,omitempty"`
}
