// Package removal trashes fielded instances, giving their static replacement
// abilities a chance to substitute another outcome first.
package removal

import (
	"context"
	"fmt"

	"github.com/donbattle/optcg-server-go/internal/cards"
	"github.com/donbattle/optcg-server-go/internal/game/actions"
	"github.com/donbattle/optcg-server-go/internal/game/counters"
	"github.com/donbattle/optcg-server-go/internal/game/rules"
	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/donbattle/optcg-server-go/internal/game/zones"
	"go.uber.org/zap"
)

// Cause is why an instance is being removed.
type Cause string

const (
	CauseEffect Cause = "effect"
	CauseBattle Cause = "battle"
)

// Request describes a removal.
type Request struct {
	TargetID   string
	SourceID   string
	SourceSide state.Side
	Cause      Cause
	BattleID   int // set when the removal happens inside a battle
}

// Result reports how a removal ended. Replaced is set when a static ability
// took the removal's place; TrashedID is the instance id in the trash
// otherwise.
type Result struct {
	Success   bool
	Reason    string
	Replaced  bool
	AbilityID string
	TrashedID string
	DonReturn int
}

func fail(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Resolver applies removals.
type Resolver struct {
	cards  *cards.Store
	exec   actions.Executor
	bus    *rules.EventBus
	logger *zap.Logger
}

// NewResolver creates a removal resolver.
func NewResolver(store *cards.Store, exec actions.Executor, bus *rules.EventBus, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = rules.NewEventBus()
	}
	return &Resolver{cards: store, exec: exec, bus: bus, logger: logger}
}

// Remove removes a fielded instance to its owner's trash unless one of its
// replacement abilities applies.
func (r *Resolver) Remove(ctx context.Context, gs *state.GameState, req Request) Result {
	loc := zones.FindInstance(gs, req.TargetID)
	if loc == nil {
		return fail("instance %s not found", req.TargetID)
	}
	if !loc.Zone.OnField() {
		return fail("only cards on the field can be removed")
	}

	if req.SourceSide != loc.Owner && (loc.Zone == state.ZoneLeader || loc.Zone == state.ZoneChar) {
		if result, ok := r.replace(ctx, gs, loc, req); ok {
			return result
		}
	}

	owner := loc.Owner
	cardID := loc.Instance.CardID
	given := loc.Instance.GivenDon
	trashed := zones.MoveInstance(gs, req.TargetID, owner, state.ZoneTrash)
	if trashed == nil {
		return fail("cannot move %s to the trash", req.TargetID)
	}
	returned := zones.ReturnDon(gs, owner, given)

	r.logger.Info("removed instance",
		zap.String("game_id", gs.GameID),
		zap.String("instance_id", req.TargetID),
		zap.String("card_id", cardID),
		zap.String("cause", string(req.Cause)),
		zap.Int("don_returned", returned))
	r.bus.Publish(rules.NewEvent(gs.GameID, rules.Removed{
		InstanceID: req.TargetID,
		CardID:     cardID,
		Side:       owner,
		Cause:      string(req.Cause),
		DonReturn:  returned,
	}))
	return Result{Success: true, TrashedID: trashed.InstanceID, DonReturn: returned}
}

// replace tries each matching replacement ability in printed order.
func (r *Resolver) replace(ctx context.Context, gs *state.GameState, loc *zones.Location, req Request) (Result, bool) {
	if r.cards == nil || r.exec == nil {
		return Result{}, false
	}
	instanceID := loc.Instance.InstanceID
	owner := loc.Owner
	cardID := loc.Instance.CardID
	meta := r.cards.Meta(cardID)

	for _, ability := range meta.AbilitiesWith(cards.TimingStatic) {
		if !matches(ability, req.Cause) {
			continue
		}
		inst := zones.FindInstance(gs, instanceID)
		if inst == nil {
			break
		}
		uses := inst.Instance.Uses
		if ability.OncePerTurn && uses.ThisTurn(ability.ID) > 0 {
			continue
		}
		if ability.MaxTriggers > 0 && uses.Total(ability.ID) >= ability.MaxTriggers {
			continue
		}

		result := actions.ExecuteAll(ctx, r.exec, gs, ability.Actions, actions.Context{
			Controller: owner,
			SourceID:   instanceID,
			BattleID:   req.BattleID,
		})
		if !result.Success {
			r.logger.Debug("replacement ability did not apply",
				zap.String("instance_id", instanceID),
				zap.String("ability_id", ability.ID),
				zap.String("reason", result.Reason))
			continue
		}

		if still := zones.FindInstance(gs, instanceID); still != nil {
			if still.Instance.Uses == nil {
				still.Instance.Uses = counters.NewUsage()
			}
			still.Instance.Uses.Record(ability.ID)
		}

		r.logger.Info("removal replaced",
			zap.String("game_id", gs.GameID),
			zap.String("instance_id", instanceID),
			zap.String("card_id", cardID),
			zap.String("ability_id", ability.ID),
			zap.String("cause", string(req.Cause)))
		r.bus.Publish(rules.NewEvent(gs.GameID, rules.RemovalReplaced{
			InstanceID: instanceID,
			CardID:     cardID,
			AbilityID:  ability.ID,
			Side:       owner,
		}))
		return Result{Success: true, Replaced: true, AbilityID: ability.ID}, true
	}
	return Result{}, false
}

func matches(ability cards.Ability, cause Cause) bool {
	if ability.Target != actions.TargetSelf {
		return false
	}
	switch ability.Event {
	case cards.EventWouldBeRemovedByOpponentEffect:
		return cause == CauseEffect
	case cards.EventWouldBeKOd:
		return true
	}
	return false
}
