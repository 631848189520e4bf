package actions

import (
	"context"
	"testing"

	"github.com/donbattle/optcg-server-go/internal/game/effects"
	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/donbattle/optcg-server-go/internal/game/zones"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type board struct {
	gs     *state.GameState
	leader *state.CardInstance
	char   *state.CardInstance
}

func newBoard(t *testing.T) *board {
	t.Helper()
	gs := state.NewGameState("game", "alice", "bob")
	b := &board{
		gs:     gs,
		leader: zones.CreateAndAdd(gs, "ST01-001", state.SideFirst, state.ZoneLeader),
		char:   zones.CreateAndAdd(gs, "ST01-004", state.SideFirst, state.ZoneChar),
	}
	for i := 0; i < 3; i++ {
		zones.CreateAndAdd(gs, state.DonCardID, state.SideFirst, state.ZoneCostArea)
		zones.CreateAndAdd(gs, "ST01-010", state.SideFirst, state.ZoneDeck)
	}
	return b
}

func newInterpreter(t *testing.T) (*Interpreter, *effects.Engine) {
	logger := zaptest.NewLogger(t)
	engine := effects.NewEngine(logger)
	return NewInterpreter(engine, logger), engine
}

func TestModifyStatTargets(t *testing.T) {
	in, engine := newInterpreter(t)
	b := newBoard(t)
	ctx := context.Background()

	result := in.Execute(ctx, b.gs, ModifyStat{Target: TargetSelf, Stat: state.StatPower, Mode: state.ModeAdd, Amount: 2000, Duration: state.DurationThisTurn},
		Context{Controller: state.SideFirst, SourceID: b.char.InstanceID})
	require.True(t, result.Success, result.Reason)
	assert.Equal(t, 6000, engine.ComputedStat(b.gs, b.char.InstanceID, state.StatPower, 4000, effects.StatOptions{}))

	result = in.Execute(ctx, b.gs, ModifyStat{Target: TargetOwnLeader, Stat: state.StatPower, Mode: state.ModeAdd, Amount: 1000, Duration: state.DurationThisBattle},
		Context{Controller: state.SideFirst, SourceID: b.char.InstanceID, BattleID: 4})
	require.True(t, result.Success, result.Reason)
	mods := effects.ModifiersFor(b.gs, b.leader.InstanceID, state.StatPower)
	require.Len(t, mods, 1)
	assert.Equal(t, 4, mods[0].BattleID)
	assert.Equal(t, b.char.InstanceID, mods[0].SourceID)

	result = in.Execute(ctx, b.gs, ModifyStat{Target: TargetContext, Stat: state.StatPower, Mode: state.ModeAdd, Amount: 1000, Duration: state.DurationThisTurn},
		Context{Controller: state.SideFirst, TargetID: "missing"})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Reason)
}

func TestGiveDon(t *testing.T) {
	in, _ := newInterpreter(t)
	b := newBoard(t)
	actx := Context{Controller: state.SideFirst, SourceID: b.char.InstanceID}

	result := in.Execute(context.Background(), b.gs, GiveDon{Target: TargetSelf, Count: 2}, actx)
	require.True(t, result.Success, result.Reason)
	assert.Equal(t, 2, b.char.GivenDon)
	assert.Len(t, b.gs.Players[state.SideFirst].CostArea, 1)

	result = in.Execute(context.Background(), b.gs, GiveDon{Target: TargetSelf, Count: 2}, actx)
	assert.False(t, result.Success)
	assert.Equal(t, 2, b.char.GivenDon)
	assert.Len(t, b.gs.Players[state.SideFirst].CostArea, 1)
}

func TestMoveCardReturnsDon(t *testing.T) {
	in, _ := newInterpreter(t)
	b := newBoard(t)
	b.char.GivenDon = 2

	result := in.Execute(context.Background(), b.gs, MoveCard{Target: TargetSelf, To: state.ZoneHand},
		Context{Controller: state.SideFirst, SourceID: b.char.InstanceID})
	require.True(t, result.Success, result.Reason)

	player := b.gs.Players[state.SideFirst]
	assert.Empty(t, player.Char)
	require.Len(t, player.Hand, 1)
	assert.Equal(t, "ST01-004", player.Hand[0].CardID)
	assert.Len(t, player.CostArea, 5)
	assert.Nil(t, zones.FindInstance(b.gs, b.char.InstanceID))
}

func TestMoveCardWithinFieldReturnsDon(t *testing.T) {
	in, _ := newInterpreter(t)
	b := newBoard(t)
	b.char.GivenDon = 2

	result := in.Execute(context.Background(), b.gs, MoveCard{Target: TargetSelf, To: state.ZoneChar},
		Context{Controller: state.SideFirst, SourceID: b.char.InstanceID})
	require.True(t, result.Success, result.Reason)

	player := b.gs.Players[state.SideFirst]
	require.Len(t, player.Char, 1)
	assert.NotEqual(t, b.char.InstanceID, player.Char[0].InstanceID)
	assert.Zero(t, player.Char[0].GivenDon)
	assert.Len(t, player.CostArea, 5)
}

func TestDraw(t *testing.T) {
	in, _ := newInterpreter(t)
	b := newBoard(t)
	actx := Context{Controller: state.SideFirst}

	require.True(t, in.Execute(context.Background(), b.gs, Draw{Count: 2}, actx).Success)
	player := b.gs.Players[state.SideFirst]
	assert.Len(t, player.Hand, 2)
	assert.Len(t, player.Deck, 1)
	assert.True(t, player.Hand[0].FaceUp)

	checksum := b.gs.Checksum()
	assert.False(t, in.Execute(context.Background(), b.gs, Draw{Count: 2}, actx).Success)
	assert.Equal(t, checksum, b.gs.Checksum())
}

func TestExecuteAllIsAtomic(t *testing.T) {
	in, _ := newInterpreter(t)
	b := newBoard(t)
	before := b.gs.Checksum()

	result := ExecuteAll(context.Background(), in, b.gs, []Action{
		ModifyStat{Target: TargetSelf, Stat: state.StatPower, Mode: state.ModeAdd, Amount: 1000, Duration: state.DurationThisTurn},
		Draw{Count: 1},
		GiveDon{Target: TargetSelf, Count: 10},
	}, Context{Controller: state.SideFirst, SourceID: b.char.InstanceID})

	assert.False(t, result.Success)
	assert.Equal(t, before, b.gs.Checksum())
}

func TestExecuteAllReportsPrevention(t *testing.T) {
	in, _ := newInterpreter(t)
	b := newBoard(t)

	result := ExecuteAll(context.Background(), in, b.gs, []Action{Noop{}, PreventKO{}},
		Context{Controller: state.SideFirst, SourceID: b.char.InstanceID})
	assert.True(t, result.Success)
	assert.True(t, result.Prevented)
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	in, _ := newInterpreter(t)
	b := newBoard(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := in.Execute(ctx, b.gs, Noop{}, Context{})
	assert.False(t, result.Success)
}
