// Package watchers keeps per-match tallies fed by the engine's event bus.
package watchers

import (
	"sync"

	"github.com/donbattle/optcg-server-go/internal/game/rules"
	"github.com/donbattle/optcg-server-go/internal/game/state"
)

// Scope controls when a watcher is reset.
type Scope int

const (
	// ScopeGame watchers count for the whole match.
	ScopeGame Scope = iota
	// ScopeTurn watchers are reset when a turn ends.
	ScopeTurn
)

// Watcher observes engine events.
type Watcher interface {
	Key() string
	Scope() Scope
	Watch(event rules.Event)
	Reset()
	Copy() Watcher
}

// sideCounts is a mutex-guarded tally per side shared by the watchers below.
type sideCounts struct {
	key   string
	scope Scope
	mu    sync.RWMutex
	count [2]int
}

func (c *sideCounts) Key() string  { return c.key }
func (c *sideCounts) Scope() Scope { return c.scope }

func (c *sideCounts) add(side state.Side) {
	if !side.Valid() {
		return
	}
	c.mu.Lock()
	c.count[side]++
	c.mu.Unlock()
}

// Count returns the tally for the side.
func (c *sideCounts) Count(side state.Side) int {
	if !side.Valid() {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count[side]
}

// Reset clears the tally.
func (c *sideCounts) Reset() {
	c.mu.Lock()
	c.count = [2]int{}
	c.mu.Unlock()
}

func (c *sideCounts) copyCounts() [2]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// AttacksWatcher counts declared battles by attacking side.
type AttacksWatcher struct {
	sideCounts
}

// NewAttacksWatcher creates an attack counter with the given scope. The key
// depends on the scope so both kinds can share a set.
func NewAttacksWatcher(scope Scope) *AttacksWatcher {
	key := "AttacksWatcher"
	if scope == ScopeTurn {
		key = "AttacksThisTurnWatcher"
	}
	return &AttacksWatcher{sideCounts{key: key, scope: scope}}
}

// Watch implements Watcher.
func (w *AttacksWatcher) Watch(event rules.Event) {
	if p, ok := event.Payload.(rules.BattleDeclared); ok {
		w.add(p.Side)
	}
}

// Copy implements Watcher.
func (w *AttacksWatcher) Copy() Watcher {
	out := NewAttacksWatcher(w.scope)
	out.count = w.copyCounts()
	return out
}

// RemovalsWatcher counts instances trashed from the field, by owner.
type RemovalsWatcher struct {
	sideCounts
}

// NewRemovalsWatcher creates a game-scoped removal counter.
func NewRemovalsWatcher() *RemovalsWatcher {
	return &RemovalsWatcher{sideCounts{key: "RemovalsWatcher", scope: ScopeGame}}
}

// Watch implements Watcher.
func (w *RemovalsWatcher) Watch(event rules.Event) {
	if p, ok := event.Payload.(rules.Removed); ok {
		w.add(p.Side)
	}
}

// Copy implements Watcher.
func (w *RemovalsWatcher) Copy() Watcher {
	out := NewRemovalsWatcher()
	out.count = w.copyCounts()
	return out
}

// LifeLostWatcher counts life cards taken from each side.
type LifeLostWatcher struct {
	sideCounts
}

// NewLifeLostWatcher creates a game-scoped life counter.
func NewLifeLostWatcher() *LifeLostWatcher {
	return &LifeLostWatcher{sideCounts{key: "LifeLostWatcher", scope: ScopeGame}}
}

// Watch implements Watcher.
func (w *LifeLostWatcher) Watch(event rules.Event) {
	if p, ok := event.Payload.(rules.LifeDamaged); ok {
		w.add(p.Side)
	}
}

// Copy implements Watcher.
func (w *LifeLostWatcher) Copy() Watcher {
	out := NewLifeLostWatcher()
	out.count = w.copyCounts()
	return out
}

// Set dispatches bus events to its watchers and resets turn-scoped ones when
// a turn ends.
type Set struct {
	mu       sync.RWMutex
	watchers map[string]Watcher
	handle   int
	bus      *rules.EventBus
}

// NewSet creates an empty watcher set.
func NewSet() *Set {
	return &Set{watchers: make(map[string]Watcher), handle: -1}
}

// Add registers a watcher, replacing any with the same key.
func (s *Set) Add(w Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[w.Key()] = w
}

// Get returns the watcher registered under key.
func (s *Set) Get(key string) (Watcher, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.watchers[key]
	return w, ok
}

// Attach subscribes the set to every event on the bus.
func (s *Set) Attach(bus *rules.EventBus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus != nil {
		s.bus.Unsubscribe(s.handle)
	}
	s.bus = bus
	s.handle = bus.Subscribe(s.Watch)
}

// Detach stops receiving events.
func (s *Set) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus != nil {
		s.bus.Unsubscribe(s.handle)
		s.bus = nil
		s.handle = -1
	}
}

// Watch hands the event to every watcher.
func (s *Set) Watch(event rules.Event) {
	s.mu.RLock()
	watchers := make([]Watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.RUnlock()

	for _, w := range watchers {
		w.Watch(event)
	}
	if event.Type == rules.EventTurnEnded {
		for _, w := range watchers {
			if w.Scope() == ScopeTurn {
				w.Reset()
			}
		}
	}
}
