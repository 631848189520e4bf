package effects

import (
	"errors"
	"testing"

	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/donbattle/optcg-server-go/internal/game/zones"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newBoard(t *testing.T) (*state.GameState, *state.CardInstance) {
	t.Helper()
	gs := state.NewGameState("game", "alice", "bob")
	char := zones.CreateAndAdd(gs, "OP01-006", state.SideFirst, state.ZoneChar)
	require.NotNil(t, char)
	return gs, char
}

func powerMod(mode state.Mode, amount int, duration state.Duration, targets ...string) state.ContinuousEffect {
	return state.ContinuousEffect{
		Stat:      state.StatPower,
		Mode:      mode,
		Amount:    amount,
		TargetIDs: targets,
		Duration:  duration,
	}
}

func TestAddModifierValidation(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t))
	gs, char := newBoard(t)

	tests := []struct {
		name   string
		effect state.ContinuousEffect
	}{
		{"unknown stat", state.ContinuousEffect{Stat: "speed", Mode: state.ModeAdd, TargetIDs: []string{char.InstanceID}, Duration: state.DurationThisTurn}},
		{"unknown mode", state.ContinuousEffect{Stat: state.StatPower, Mode: "double", TargetIDs: []string{char.InstanceID}, Duration: state.DurationThisTurn}},
		{"no targets", powerMod(state.ModeAdd, 1000, state.DurationThisTurn)},
		{"empty target", powerMod(state.ModeAdd, 1000, state.DurationThisTurn, "")},
		{"no duration", powerMod(state.ModeAdd, 1000, "", char.InstanceID)},
		{"unknown duration", powerMod(state.ModeAdd, 1000, "forever", char.InstanceID)},
		{"perCount without selector", state.ContinuousEffect{Stat: state.StatPower, Mode: state.ModePerCount, PerUnit: 1000, TargetIDs: []string{char.InstanceID}, Duration: state.DurationThisTurn}},
		{"perCount without unit", state.ContinuousEffect{Stat: state.StatPower, Mode: state.ModePerCount, Selector: SelectorOwnHand, TargetIDs: []string{char.InstanceID}, Duration: state.DurationThisTurn}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, err := engine.AddModifier(gs, tt.effect)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidModifier))
			assert.Nil(t, added)
			assert.Empty(t, gs.ContinuousEffects)
		})
	}
}

func TestAddModifierStampsSequence(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t))
	gs, char := newBoard(t)
	gs.Turn = 3

	first, err := engine.AddModifier(gs, powerMod(state.ModeAdd, 1000, state.DurationThisTurn, char.InstanceID))
	require.NoError(t, err)
	second, err := engine.AddModifier(gs, powerMod(state.ModeAdd, 1000, state.DurationThisTurn, char.InstanceID))
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Less(t, first.Seq, second.Seq)
	assert.Equal(t, 3, first.CreatedTurn)
	assert.Equal(t, state.PhaseMain, first.CreatedPhase)
	assert.Len(t, gs.ContinuousEffects, 2)
}

func TestComputedStatLayering(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t))
	gs, char := newBoard(t)

	_, err := engine.AddModifier(gs, powerMod(state.ModeSetBase, 0, state.DurationThisTurn, char.InstanceID))
	require.NoError(t, err)
	_, err = engine.AddModifier(gs, powerMod(state.ModeAdd, 2000, state.DurationThisTurn, char.InstanceID))
	require.NoError(t, err)

	assert.Equal(t, 2000, engine.ComputedStat(gs, char.InstanceID, state.StatPower, 5000, StatOptions{}))
}

func TestComputedStatNewestSetBaseWins(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t))
	gs, char := newBoard(t)

	_, err := engine.AddModifier(gs, powerMod(state.ModeSetBase, 3000, state.DurationThisTurn, char.InstanceID))
	require.NoError(t, err)
	_, err = engine.AddModifier(gs, powerMod(state.ModeSetBase, 8000, state.DurationThisTurn, char.InstanceID))
	require.NoError(t, err)

	// reordering the list must not change precedence
	gs.ContinuousEffects[0], gs.ContinuousEffects[1] = gs.ContinuousEffects[1], gs.ContinuousEffects[0]
	assert.Equal(t, 8000, engine.ComputedStat(gs, char.InstanceID, state.StatPower, 5000, StatOptions{}))
}

func TestComputedStatDonBonus(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t))
	gs, char := newBoard(t)
	char.GivenDon = 2

	assert.Equal(t, 7000, engine.ComputedStat(gs, char.InstanceID, state.StatPower, 5000, StatOptions{IsOwnerTurn: true}))
	assert.Equal(t, 5000, engine.ComputedStat(gs, char.InstanceID, state.StatPower, 5000, StatOptions{IsOwnerTurn: false}))
	assert.Equal(t, 4, engine.ComputedStat(gs, char.InstanceID, state.StatCost, 4, StatOptions{IsOwnerTurn: true}), "DON only affects power")
}

func TestComputedStatIgnoresOtherStatsAndTargets(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t))
	gs, char := newBoard(t)
	other := zones.CreateAndAdd(gs, "OP01-007", state.SideFirst, state.ZoneChar)

	_, err := engine.AddModifier(gs, state.ContinuousEffect{Stat: state.StatCost, Mode: state.ModeAdd, Amount: -1, TargetIDs: []string{char.InstanceID}, Duration: state.DurationThisTurn})
	require.NoError(t, err)
	_, err = engine.AddModifier(gs, powerMod(state.ModeAdd, 1000, state.DurationThisTurn, other.InstanceID))
	require.NoError(t, err)

	assert.Equal(t, 5000, engine.ComputedStat(gs, char.InstanceID, state.StatPower, 5000, StatOptions{}))
	assert.Equal(t, 3, engine.ComputedStat(gs, char.InstanceID, state.StatCost, 4, StatOptions{}))
}

func TestPerCountSelectors(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t))
	gs, char := newBoard(t)
	zones.CreateAndAdd(gs, "OP01-007", state.SideFirst, state.ZoneChar)
	zones.CreateAndAdd(gs, "OP01-008", state.SideSecond, state.ZoneChar)

	_, err := engine.AddModifier(gs, state.ContinuousEffect{
		Stat:      state.StatPower,
		Mode:      state.ModePerCount,
		Selector:  SelectorOwnCharacters,
		PerUnit:   1000,
		TargetIDs: []string{char.InstanceID},
		Duration:  state.DurationPermanent,
		Side:      state.SideFirst,
	})
	require.NoError(t, err)
	assert.Equal(t, 7000, engine.ComputedStat(gs, char.InstanceID, state.StatPower, 5000, StatOptions{}))

	_, err = engine.AddModifier(gs, state.ContinuousEffect{
		Stat:      state.StatPower,
		Mode:      state.ModePerCount,
		Selector:  SelectorOpponentCharacters,
		PerUnit:   -500,
		TargetIDs: []string{char.InstanceID},
		Duration:  state.DurationPermanent,
		Side:      state.SideFirst,
	})
	require.NoError(t, err)
	assert.Equal(t, 6500, engine.ComputedStat(gs, char.InstanceID, state.StatPower, 5000, StatOptions{}))
}

func TestPerCountUnknownSelectorContributesNothing(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t))
	gs, char := newBoard(t)

	_, err := engine.AddModifier(gs, state.ContinuousEffect{
		Stat:      state.StatPower,
		Mode:      state.ModePerCount,
		Selector:  "ownRedCards",
		PerUnit:   1000,
		TargetIDs: []string{char.InstanceID},
		Duration:  state.DurationThisTurn,
	})
	require.NoError(t, err)
	assert.Equal(t, 5000, engine.ComputedStat(gs, char.InstanceID, state.StatPower, 5000, StatOptions{}))

	engine.RegisterSelector("ownRedCards", CountSelectorFunc(func(*state.GameState, *state.ContinuousEffect) int { return 2 }))
	assert.True(t, engine.HasSelector("ownRedCards"))
	assert.Equal(t, 7000, engine.ComputedStat(gs, char.InstanceID, state.StatPower, 5000, StatOptions{}))
}

func TestExpireModifiers(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t))
	gs, char := newBoard(t)
	id := char.InstanceID

	mods := []state.ContinuousEffect{
		powerMod(state.ModeAdd, 1000, state.DurationThisTurn, id),
		powerMod(state.ModeAdd, 1000, state.DurationPermanent, id),
	}
	battle1 := powerMod(state.ModeAdd, 2000, state.DurationThisBattle, id)
	battle1.BattleID = 1
	battle2 := powerMod(state.ModeAdd, 2000, state.DurationThisBattle, id)
	battle2.BattleID = 2
	untilFirst := powerMod(state.ModeAdd, 3000, state.DurationUntilOwnerNextTurn, id)
	untilFirst.Side = state.SideFirst
	untilSecond := powerMod(state.ModeAdd, 3000, state.DurationUntilOwnerNextTurn, id)
	untilSecond.Side = state.SideSecond
	mods = append(mods, battle1, battle2, untilFirst, untilSecond)
	for _, m := range mods {
		_, err := engine.AddModifier(gs, m)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, engine.ExpireModifiers(gs, Trigger{Kind: TriggerBattleEnd, BattleID: 1}))
	assert.Equal(t, 1, engine.ExpireModifiers(gs, Trigger{Kind: TriggerTurnEnd}))
	assert.Equal(t, 1, engine.ExpireModifiers(gs, Trigger{Kind: TriggerTurnStart, Side: state.SideSecond}))
	assert.Equal(t, 0, engine.ExpireModifiers(gs, Trigger{Kind: TriggerTurnEnd}))
	assert.Equal(t, 1, engine.ExpireModifiers(gs, Trigger{Kind: TriggerBattleEnd}))

	remaining := ModifiersFor(gs, id, state.StatPower)
	require.Len(t, remaining, 2)
	assert.Equal(t, state.DurationPermanent, remaining[0].Duration)
	assert.Equal(t, state.DurationUntilOwnerNextTurn, remaining[1].Duration)
	assert.Equal(t, state.SideFirst, remaining[1].Side)
}

func TestRemoveModifiersForInstance(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t))
	gs, char := newBoard(t)
	other := zones.CreateAndAdd(gs, "OP01-007", state.SideFirst, state.ZoneChar)

	_, err := engine.AddModifier(gs, powerMod(state.ModeAdd, 1000, state.DurationThisTurn, char.InstanceID))
	require.NoError(t, err)
	_, err = engine.AddModifier(gs, powerMod(state.ModeAdd, 1000, state.DurationThisTurn, char.InstanceID, other.InstanceID))
	require.NoError(t, err)

	assert.Equal(t, 2, engine.RemoveModifiersForInstance(gs, char.InstanceID))
	assert.Empty(t, ModifiersFor(gs, char.InstanceID, state.StatPower))
	assert.Len(t, ModifiersFor(gs, other.InstanceID, state.StatPower), 1)
	assert.Equal(t, 0, engine.RemoveModifiersForInstance(gs, char.InstanceID))
}
