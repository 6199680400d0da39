package subscription

import (
	"errors"
	"sort"

	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// Subscription errors.
var (
	ErrResourceExhausted = errors.New("maximum subscriptions reached")
	ErrEmptyPath         = errors.New("empty subscription path")
)

// DefaultMaxSubscriptions bounds the number of tracked paths.
const DefaultMaxSubscriptions = 10000

// Config holds Set limits.
type Config struct {
	// MaxSubscriptions is the maximum number of tracked paths.
	MaxSubscriptions int `yaml:"max_subscriptions"`
}

// DefaultConfig returns the default Set configuration.
func DefaultConfig() Config {
	return Config{MaxSubscriptions: DefaultMaxSubscriptions}
}

// Set is the subscription table of one broker session, keyed by path.
type Set struct {
	config Config
	subs   map[string]*Subscription
}

// NewSet creates a Set with default configuration.
func NewSet() *Set {
	return NewSetWithConfig(DefaultConfig())
}

// NewSetWithConfig creates a Set with custom configuration.
func NewSetWithConfig(config Config) *Set {
	if config.MaxSubscriptions <= 0 {
		config.MaxSubscriptions = DefaultMaxSubscriptions
	}
	return &Set{
		config: config,
		subs:   make(map[string]*Subscription),
	}
}

func (s *Set) entry(path string) (*Subscription, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if sub, ok := s.subs[path]; ok {
		return sub, nil
	}
	if len(s.subs) >= s.config.MaxSubscriptions {
		return nil, ErrResourceExhausted
	}
	sub := &Subscription{Path: path}
	s.subs[path] = sub
	return sub, nil
}

// Want marks path as desired. A non-nil handler replaces the current one.
func (s *Set) Want(path string, h Handler) (*Subscription, error) {
	sub, err := s.entry(path)
	if err != nil {
		return nil, err
	}
	sub.Want = true
	if h != nil {
		sub.Handler = h
	}
	return sub, nil
}

// Unwant marks path as no longer desired, creating the entry if needed.
func (s *Set) Unwant(path string) (*Subscription, error) {
	sub, err := s.entry(path)
	if err != nil {
		return nil, err
	}
	sub.Want = false
	return sub, nil
}

// Get returns the entry for path.
func (s *Set) Get(path string) (*Subscription, bool) {
	sub, ok := s.subs[path]
	return sub, ok
}

// Remove deletes the entry for path and reports whether it existed.
func (s *Set) Remove(path string) bool {
	if _, ok := s.subs[path]; !ok {
		return false
	}
	delete(s.subs, path)
	return true
}

// Confirm marks the given paths as acknowledged by the broker. Unknown paths
// are skipped. It returns the number of entries changed.
func (s *Set) Confirm(paths ...string) int {
	return s.mark(true, paths)
}

// Unconfirm clears the acknowledged flag of the given paths.
func (s *Set) Unconfirm(paths ...string) int {
	return s.mark(false, paths)
}

func (s *Set) mark(subscribed bool, paths []string) int {
	n := 0
	for _, path := range paths {
		sub, ok := s.subs[path]
		if !ok || sub.Subscribed == subscribed {
			continue
		}
		sub.Subscribed = subscribed
		n++
	}
	return n
}

// UnconfirmAll drops every confirmation, as after a transport close.
func (s *Set) UnconfirmAll() {
	for _, sub := range s.subs {
		sub.Subscribed = false
	}
}

// Replay returns the sorted paths with Want set.
func (s *Set) Replay() []string {
	var paths []string
	for path, sub := range s.subs {
		if sub.Want {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Deliver hands p to the handler of its path. It reports whether a handler
// was invoked.
func (s *Set) Deliver(p wire.PointState) bool {
	sub, ok := s.subs[p.Path]
	if !ok || sub.Handler == nil {
		return false
	}
	last := p
	sub.Last = &last
	sub.Updates++
	sub.Handler(p)
	return true
}

// Infos returns snapshots of all entries sorted by path.
func (s *Set) Infos() []Info {
	infos := make([]Info, 0, len(s.subs))
	for _, sub := range s.subs {
		infos = append(infos, sub.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

// Len returns the number of tracked paths.
func (s *Set) Len() int {
	return len(s.subs)
}
