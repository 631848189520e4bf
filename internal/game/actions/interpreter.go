package actions

import (
	"context"
	"fmt"

	"github.com/donbattle/optcg-server-go/internal/game/effects"
	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/donbattle/optcg-server-go/internal/game/zones"
	"go.uber.org/zap"
)

// Context is the situation an action runs in.
type Context struct {
	Controller state.Side
	SourceID   string // instance owning the ability
	TargetID   string // instance supplied by the caller
	BattleID   int    // battle in progress, for thisBattle modifiers
}

// Result reports the outcome of an action. Prevented is set when a
// preventKO action ran.
type Result struct {
	Success   bool
	Reason    string
	Prevented bool
}

func fail(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Executor applies actions to a game state.
type Executor interface {
	Execute(ctx context.Context, gs *state.GameState, action Action, actx Context) Result
}

// Interpreter is the default Executor.
type Interpreter struct {
	effects *effects.Engine
	logger  *zap.Logger
}

// NewInterpreter creates an interpreter that adds modifiers through engine.
func NewInterpreter(engine *effects.Engine, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = effects.NewEngine(logger)
	}
	return &Interpreter{effects: engine, logger: logger}
}

// Execute applies one action. A failed action leaves gs untouched.
func (in *Interpreter) Execute(ctx context.Context, gs *state.GameState, action Action, actx Context) Result {
	if gs == nil || action == nil {
		return fail("nothing to execute")
	}
	if err := ctx.Err(); err != nil {
		return fail("action aborted: %v", err)
	}

	var result Result
	switch a := action.(type) {
	case Noop:
		result = Result{Success: true}
	case PreventKO:
		result = Result{Success: true, Prevented: true}
	case ModifyStat:
		result = in.modifyStat(gs, a, actx)
	case GiveDon:
		result = in.giveDon(gs, a, actx)
	case MoveCard:
		result = in.moveCard(gs, a, actx)
	case Draw:
		result = in.draw(gs, a, actx)
	default:
		result = fail("unsupported action %q", action.Kind())
	}

	if !result.Success {
		in.logger.Debug("action failed",
			zap.String("kind", string(action.Kind())),
			zap.String("source_id", actx.SourceID),
			zap.String("reason", result.Reason))
	}
	return result
}

// ExecuteAll applies actions in order with the given executor. If any action
// fails the state is restored to what it was before the first one, so
// pointers into gs taken before the call must be looked up again.
func ExecuteAll(ctx context.Context, exec Executor, gs *state.GameState, list []Action, actx Context) Result {
	snapshot := gs.Clone()
	combined := Result{Success: true}
	for _, action := range list {
		result := exec.Execute(ctx, gs, action, actx)
		if !result.Success {
			gs.Restore(snapshot)
			return result
		}
		combined.Prevented = combined.Prevented || result.Prevented
	}
	return combined
}

func (in *Interpreter) resolve(gs *state.GameState, target Target, actx Context) (*zones.Location, string) {
	var id string
	switch target {
	case TargetSelf:
		id = actx.SourceID
	case TargetContext:
		id = actx.TargetID
	case TargetOwnLeader:
		player := gs.Player(actx.Controller)
		if player == nil || player.Leader == nil {
			return nil, "no leader to target"
		}
		id = player.Leader.InstanceID
	default:
		return nil, fmt.Sprintf("unknown target %q", target)
	}
	loc := zones.FindInstance(gs, id)
	if loc == nil {
		return nil, fmt.Sprintf("target %s not found", target)
	}
	return loc, ""
}

func (in *Interpreter) modifyStat(gs *state.GameState, a ModifyStat, actx Context) Result {
	loc, reason := in.resolve(gs, a.Target, actx)
	if loc == nil {
		return fail("%s", reason)
	}
	_, err := in.effects.AddModifier(gs, state.ContinuousEffect{
		Stat:      a.Stat,
		Mode:      a.Mode,
		Amount:    a.Amount,
		TargetIDs: []string{loc.Instance.InstanceID},
		Duration:  a.Duration,
		SourceID:  actx.SourceID,
		Side:      actx.Controller,
		BattleID:  actx.BattleID,
	})
	if err != nil {
		return fail("%v", err)
	}
	return Result{Success: true}
}

func (in *Interpreter) giveDon(gs *state.GameState, a GiveDon, actx Context) Result {
	loc, reason := in.resolve(gs, a.Target, actx)
	if loc == nil {
		return fail("%s", reason)
	}
	if !loc.Zone.OnField() || loc.Zone == state.ZoneStage {
		return fail("DON!! can only be given to a leader or character")
	}
	return GiveDonTo(gs, actx.Controller, loc.Instance.InstanceID, a.Count)
}

// GiveDonTo moves count active DON!! from the side's cost area onto the
// instance.
func GiveDonTo(gs *state.GameState, side state.Side, instanceID string, count int) Result {
	player := gs.Player(side)
	if player == nil {
		return fail("unknown side")
	}
	loc := zones.FindInstance(gs, instanceID)
	if loc == nil {
		return fail("instance %s not found", instanceID)
	}
	active := player.ActiveDon()
	if len(active) < count {
		return fail("not enough active DON!! (have %d, need %d)", len(active), count)
	}
	for _, don := range active[:count] {
		zones.RemoveInstance(gs, don.InstanceID)
	}
	loc.Instance.GivenDon += count
	return Result{Success: true}
}

func (in *Interpreter) moveCard(gs *state.GameState, a MoveCard, actx Context) Result {
	loc, reason := in.resolve(gs, a.Target, actx)
	if loc == nil {
		return fail("%s", reason)
	}
	pos := zones.Bottom
	if a.Top {
		pos = zones.Top
	}
	given := loc.Instance.GivenDon
	owner := loc.Owner
	from := loc.Zone
	if zones.MoveInstanceAt(gs, loc.Instance.InstanceID, owner, a.To, pos) == nil {
		return fail("cannot move card to %s", a.To)
	}
	// a zone change always sheds given DON!!, even between field zones
	if from.OnField() {
		zones.ReturnDon(gs, owner, given)
	}
	return Result{Success: true}
}

func (in *Interpreter) draw(gs *state.GameState, a Draw, actx Context) Result {
	player := gs.Player(actx.Controller)
	if player == nil {
		return fail("unknown side")
	}
	if len(player.Deck) < a.Count {
		return fail("deck has %d cards, cannot draw %d", len(player.Deck), a.Count)
	}
	for i := 0; i < a.Count; i++ {
		zones.MoveInstance(gs, player.Deck[0].InstanceID, actx.Controller, state.ZoneHand)
	}
	return Result{Success: true}
}
