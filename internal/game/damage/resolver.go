// Package damage deals leader damage one life card at a time, offering Trigger
// activation for each revealed life card.
package damage

import (
	"context"
	"fmt"
	"time"

	"github.com/donbattle/optcg-server-go/internal/cards"
	"github.com/donbattle/optcg-server-go/internal/game/actions"
	"github.com/donbattle/optcg-server-go/internal/game/prompt"
	"github.com/donbattle/optcg-server-go/internal/game/rules"
	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/donbattle/optcg-server-go/internal/game/zones"
	"go.uber.org/zap"
)

// Options controls a damage sequence.
type Options struct {
	AllowTriggers bool
	Banish        bool // life cards go to the trash and never trigger
	BattleID      int  // battle dealing the damage, zero outside battle
}

// Result summarises a damage sequence.
type Result struct {
	Success   bool
	Reason    string
	Dealt     int
	Defeated  bool
	ToHand    []string // card ids added to hand
	Triggered []string // card ids whose Trigger was activated
	Trashed   []string // card ids trashed without triggering
}

// Resolver deals leader damage.
type Resolver struct {
	cards         *cards.Store
	exec          actions.Executor
	prompts       *prompt.Registry
	bus           *rules.EventBus
	promptTimeout time.Duration
	logger        *zap.Logger
}

// NewResolver creates a damage resolver. A zero promptTimeout waits for
// Trigger answers indefinitely.
func NewResolver(store *cards.Store, exec actions.Executor, prompts *prompt.Registry, bus *rules.EventBus, promptTimeout time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = rules.NewEventBus()
	}
	if prompts == nil {
		prompts = prompt.NewRegistry("", bus, logger)
	}
	return &Resolver{
		cards:         store,
		exec:          exec,
		prompts:       prompts,
		bus:           bus,
		promptTimeout: promptTimeout,
		logger:        logger,
	}
}

// DealDamageToLeader deals count damage to side's leader. Each unit fully
// resolves, including its Trigger prompt, before the next starts. Running
// out of life ends the game and stops the sequence.
func (r *Resolver) DealDamageToLeader(ctx context.Context, gs *state.GameState, side state.Side, count int, opts Options) Result {
	if gs.Player(side) == nil {
		return Result{Reason: fmt.Sprintf("unknown side %s", side)}
	}
	if count < 0 {
		return Result{Reason: "damage cannot be negative"}
	}

	result := Result{Success: true}
	for unit := 0; unit < count; unit++ {
		if gs.Over {
			break
		}
		// trigger abilities may restore gs, so the player is looked up per unit
		if len(gs.Players[side].Life) == 0 {
			r.defeat(gs, side)
			result.Defeated = true
			break
		}
		r.dealOne(ctx, gs, side, opts, &result)
		result.Dealt++
	}
	return result
}

func (r *Resolver) dealOne(ctx context.Context, gs *state.GameState, side state.Side, opts Options, result *Result) {
	player := gs.Players[side]
	top := player.Life[0]
	top.FaceUp = true
	instanceID := top.InstanceID
	cardID := top.CardID
	meta := r.meta(cardID)

	if opts.Banish {
		zones.MoveInstance(gs, instanceID, side, state.ZoneTrash)
		result.Trashed = append(result.Trashed, cardID)
		r.logger.Debug("life card banished", zap.String("card_id", cardID), zap.Int("side", int(side)))
		r.bus.Publish(rules.NewEvent(gs.GameID, rules.LifeDamaged{Side: side, CardID: cardID}))
		return
	}

	hasTrigger := top.HasKeyword(cards.KeywordTrigger) || meta.HasKeyword(cards.KeywordTrigger)
	if hasTrigger && opts.AllowTriggers && r.askTrigger(ctx, gs, side, instanceID, cardID) {
		if r.activate(ctx, gs, side, instanceID, meta, opts.BattleID) {
			zones.MoveInstance(gs, instanceID, side, state.ZoneTrash)
			result.Triggered = append(result.Triggered, cardID)
			r.bus.Publish(rules.NewEvent(gs.GameID, rules.LifeDamaged{Side: side, CardID: cardID, Trigger: true}))
			r.bus.Publish(rules.NewEvent(gs.GameID, rules.TriggerResolved{Side: side, CardID: cardID, Success: true}))
			return
		}
		r.bus.Publish(rules.NewEvent(gs.GameID, rules.TriggerResolved{Side: side, CardID: cardID, Success: false}))
	}

	zones.MoveInstance(gs, instanceID, side, state.ZoneHand)
	result.ToHand = append(result.ToHand, cardID)
	r.logger.Debug("life card added to hand", zap.String("card_id", cardID), zap.Int("side", int(side)))
	r.bus.Publish(rules.NewEvent(gs.GameID, rules.LifeDamaged{Side: side, CardID: cardID, ToHand: true}))
}

func (r *Resolver) askTrigger(ctx context.Context, gs *state.GameState, side state.Side, instanceID, cardID string) bool {
	sel := r.prompts.Ask(ctx, gs, gs.Players[side].PlayerID, rules.ChoiceSpec{
		Kind:    rules.ChoiceLifeTrigger,
		Message: "Activate this card's Trigger or add it to your hand",
		Options: []rules.ChoiceOption{{ID: instanceID, CardID: cardID, Label: r.meta(cardID).Name}},
		Actions: []string{rules.TriggerActivate, rules.TriggerAddToHand},
	}, prompt.Options{Timeout: r.promptTimeout})
	return sel != nil && sel.Action == rules.TriggerActivate
}

// activate runs the card's trigger abilities as one unit. If any ability
// fails the state is restored to what it was before the first one and the
// card goes to hand instead.
func (r *Resolver) activate(ctx context.Context, gs *state.GameState, side state.Side, instanceID string, meta cards.Meta, battleID int) bool {
	if r.exec == nil {
		return true
	}
	snapshot := gs.Clone()
	for _, ability := range meta.AbilitiesWith(cards.TimingTrigger) {
		res := actions.ExecuteAll(ctx, r.exec, gs, ability.Actions, actions.Context{
			Controller: side,
			SourceID:   instanceID,
			BattleID:   battleID,
		})
		if !res.Success {
			gs.Restore(snapshot)
			r.logger.Warn("trigger ability failed",
				zap.String("card_id", meta.CardID),
				zap.String("ability_id", ability.ID),
				zap.String("reason", res.Reason))
			return false
		}
	}
	return true
}

func (r *Resolver) defeat(gs *state.GameState, side state.Side) {
	winner := side.Opponent()
	gs.Declare(winner)
	r.logger.Info("player defeated",
		zap.String("game_id", gs.GameID),
		zap.String("loser", gs.Players[side].PlayerID),
		zap.String("winner", gs.Players[winner].PlayerID))
	r.bus.Publish(rules.NewEvent(gs.GameID, rules.Defeat{
		Loser:  side,
		Winner: winner,
		Reason: "took damage with no life remaining",
	}))
}

func (r *Resolver) meta(cardID string) cards.Meta {
	if r.cards == nil {
		return cards.Placeholder(cardID)
	}
	return r.cards.Meta(cardID)
}
