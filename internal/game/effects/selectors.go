package effects

import (
	"github.com/donbattle/optcg-server-go/internal/game/state"
	"go.uber.org/zap"
)

// CountSelector evaluates a perCount modifier's selector against the live
// board. The modifier's Side is the side the selector counts from.
type CountSelector interface {
	Count(gs *state.GameState, effect *state.ContinuousEffect) int
}

// CountSelectorFunc adapts a function to CountSelector.
type CountSelectorFunc func(gs *state.GameState, effect *state.ContinuousEffect) int

// Count calls f.
func (f CountSelectorFunc) Count(gs *state.GameState, effect *state.ContinuousEffect) int {
	return f(gs, effect)
}

// Built-in selector names.
const (
	SelectorOwnCharacters      = "ownCharacters"
	SelectorOpponentCharacters = "opponentCharacters"
	SelectorOwnDonGiven        = "ownDonGiven"
	SelectorOwnTrash           = "ownTrash"
	SelectorOwnHand            = "ownHand"
)

func builtinSelectors() map[string]CountSelector {
	zoneSize := func(zone state.Zone, opponent bool) CountSelector {
		return CountSelectorFunc(func(gs *state.GameState, effect *state.ContinuousEffect) int {
			side := effect.Side
			if opponent {
				side = side.Opponent()
			}
			player := gs.Player(side)
			if player == nil {
				return 0
			}
			return len(player.ZoneSlice(zone))
		})
	}
	return map[string]CountSelector{
		SelectorOwnCharacters:      zoneSize(state.ZoneChar, false),
		SelectorOpponentCharacters: zoneSize(state.ZoneChar, true),
		SelectorOwnTrash:           zoneSize(state.ZoneTrash, false),
		SelectorOwnHand:            zoneSize(state.ZoneHand, false),
		SelectorOwnDonGiven: CountSelectorFunc(func(gs *state.GameState, effect *state.ContinuousEffect) int {
			player := gs.Player(effect.Side)
			if player == nil {
				return 0
			}
			total := 0
			for _, zone := range []state.Zone{state.ZoneLeader, state.ZoneChar, state.ZoneStage} {
				for _, card := range player.ZoneSlice(zone) {
					total += card.GivenDon
				}
			}
			return total
		}),
	}
}

// RegisterSelector installs or replaces a count selector.
func (e *Engine) RegisterSelector(name string, selector CountSelector) {
	if name == "" || selector == nil {
		e.logger.Warn("ignoring invalid count selector registration", zap.String("selector", name))
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selectors[name] = selector
}

// HasSelector reports whether a selector is registered under name.
func (e *Engine) HasSelector(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.selectors[name]
	return ok
}

func (e *Engine) count(gs *state.GameState, effect *state.ContinuousEffect) int {
	e.mu.RLock()
	selector, ok := e.selectors[effect.Selector]
	e.mu.RUnlock()
	if !ok {
		e.logger.Warn("unknown count selector, modifier contributes nothing",
			zap.String("selector", effect.Selector),
			zap.String("modifier_id", effect.ID))
		return 0
	}
	return selector.Count(gs, effect)
}
