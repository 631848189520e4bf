// Package effects tracks stat modifiers on a game state and computes derived
// power, cost and counter values from them.
package effects

import (
	"errors"
	"fmt"
	"sync"

	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/donbattle/optcg-server-go/internal/game/zones"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DonPowerBonus is the power each attached DON!! grants on its owner's turn.
const DonPowerBonus = 1000

// ErrInvalidModifier is wrapped by every AddModifier validation failure.
var ErrInvalidModifier = errors.New("invalid modifier")

// TriggerKind is a lifecycle point at which modifiers may expire.
type TriggerKind string

const (
	TriggerTurnEnd   TriggerKind = "turnEnd"
	TriggerBattleEnd TriggerKind = "battleEnd"
	TriggerTurnStart TriggerKind = "turnStart"
)

// Trigger identifies a lifecycle point. Side is used by turnStart, BattleID by
// battleEnd; a zero BattleID expires every thisBattle modifier.
type Trigger struct {
	Kind     TriggerKind
	Side     state.Side
	BattleID int
}

// StatOptions carries the context of a stat computation.
type StatOptions struct {
	IsOwnerTurn bool
}

// Engine validates, stores and evaluates modifiers. The modifiers themselves
// live on the game state; the engine only holds the count selector registry.
type Engine struct {
	mu        sync.RWMutex
	selectors map[string]CountSelector
	logger    *zap.Logger
}

// NewEngine creates an engine with the built-in count selectors registered.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		selectors: make(map[string]CountSelector),
		logger:    logger,
	}
	for name, sel := range builtinSelectors() {
		e.selectors[name] = sel
	}
	return e
}

// AddModifier validates the modifier, stamps its id, sequence and creation
// context, and appends it to the game state. The caller's value is not kept.
func (e *Engine) AddModifier(gs *state.GameState, effect state.ContinuousEffect) (*state.ContinuousEffect, error) {
	if gs == nil {
		return nil, fmt.Errorf("%w: no game state", ErrInvalidModifier)
	}
	if err := Validate(effect); err != nil {
		return nil, err
	}

	added := effect.Copy()
	if added.ID == "" {
		added.ID = uuid.NewString()
	}
	added.Seq = gs.AllocEffectSeq()
	if added.CreatedTurn == 0 {
		added.CreatedTurn = gs.Turn
	}
	if added.CreatedPhase == "" {
		added.CreatedPhase = gs.Phase
	}
	gs.ContinuousEffects = append(gs.ContinuousEffects, added)

	e.logger.Debug("added modifier",
		zap.String("modifier_id", added.ID),
		zap.Int("seq", added.Seq),
		zap.String("stat", string(added.Stat)),
		zap.String("mode", string(added.Mode)),
		zap.Int("amount", added.Amount),
		zap.Strings("targets", added.TargetIDs),
		zap.String("duration", string(added.Duration)))
	return added, nil
}

// Validate checks a modifier without adding it.
func Validate(effect state.ContinuousEffect) error {
	if !effect.Stat.Valid() {
		return fmt.Errorf("%w: unknown stat %q", ErrInvalidModifier, effect.Stat)
	}
	if !effect.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidModifier, effect.Mode)
	}
	if len(effect.TargetIDs) == 0 {
		return fmt.Errorf("%w: no targets", ErrInvalidModifier)
	}
	for _, id := range effect.TargetIDs {
		if id == "" {
			return fmt.Errorf("%w: empty target id", ErrInvalidModifier)
		}
	}
	if effect.Duration == "" {
		return fmt.Errorf("%w: missing duration", ErrInvalidModifier)
	}
	if !effect.Duration.Valid() {
		return fmt.Errorf("%w: unknown duration %q", ErrInvalidModifier, effect.Duration)
	}
	if effect.Mode == state.ModePerCount {
		if effect.Selector == "" {
			return fmt.Errorf("%w: perCount needs a selector", ErrInvalidModifier)
		}
		if effect.PerUnit == 0 {
			return fmt.Errorf("%w: perCount needs a per-unit amount", ErrInvalidModifier)
		}
	}
	return nil
}

// RemoveModifiersForInstance strips the instance from every modifier and
// returns how many modifiers referenced it.
func (e *Engine) RemoveModifiersForInstance(gs *state.GameState, instanceID string) int {
	removed := gs.StripEffectsFor(instanceID)
	if removed > 0 {
		e.logger.Debug("removed modifiers for instance",
			zap.String("instance_id", instanceID),
			zap.Int("removed", removed))
	}
	return removed
}

// ExpireModifiers removes the modifiers whose duration ends at the trigger
// and returns how many were removed.
func (e *Engine) ExpireModifiers(gs *state.GameState, trigger Trigger) int {
	if gs == nil {
		return 0
	}
	kept := gs.ContinuousEffects[:0]
	removed := 0
	for _, effect := range gs.ContinuousEffects {
		if expires(effect, trigger) {
			removed++
			continue
		}
		kept = append(kept, effect)
	}
	for i := len(kept); i < len(gs.ContinuousEffects); i++ {
		gs.ContinuousEffects[i] = nil
	}
	gs.ContinuousEffects = kept

	if removed > 0 {
		e.logger.Debug("expired modifiers",
			zap.String("trigger", string(trigger.Kind)),
			zap.Int("side", int(trigger.Side)),
			zap.Int("battle_id", trigger.BattleID),
			zap.Int("removed", removed))
	}
	return removed
}

func expires(effect *state.ContinuousEffect, trigger Trigger) bool {
	switch trigger.Kind {
	case TriggerTurnEnd:
		return effect.Duration == state.DurationThisTurn
	case TriggerBattleEnd:
		if effect.Duration != state.DurationThisBattle {
			return false
		}
		return trigger.BattleID == 0 || effect.BattleID == trigger.BattleID
	case TriggerTurnStart:
		return effect.Duration == state.DurationUntilOwnerNextTurn && effect.Side == trigger.Side
	}
	return false
}

// ModifiersFor lists the modifiers targeting the instance and stat in
// sequence order.
func ModifiersFor(gs *state.GameState, instanceID string, stat state.Stat) []*state.ContinuousEffect {
	if gs == nil {
		return nil
	}
	var out []*state.ContinuousEffect
	for _, effect := range gs.ContinuousEffects {
		if effect.Stat == stat && effect.Targets(instanceID) {
			out = append(out, effect)
		}
	}
	return out
}

// ComputedStat derives a stat value. The order is fixed: base, then the
// setBase modifier with the highest sequence, then every add and perCount
// modifier, then the DON!! bonus for power on the owner's turn.
func (e *Engine) ComputedStat(gs *state.GameState, instanceID string, stat state.Stat, base int, opts StatOptions) int {
	value := base

	var setBase *state.ContinuousEffect
	sum := 0
	for _, effect := range ModifiersFor(gs, instanceID, stat) {
		switch effect.Mode {
		case state.ModeSetBase:
			if setBase == nil || effect.Seq > setBase.Seq {
				setBase = effect
			}
		case state.ModeAdd:
			sum += effect.Amount
		case state.ModePerCount:
			sum += effect.PerUnit * e.count(gs, effect)
		}
	}
	if setBase != nil {
		value = setBase.Amount
	}
	value += sum

	if stat == state.StatPower && opts.IsOwnerTurn {
		if loc := zones.FindInstance(gs, instanceID); loc != nil {
			value += DonPowerBonus * loc.Instance.GivenDon
		}
	}
	return value
}
