package damage

import (
	"context"
	"testing"

	"github.com/donbattle/optcg-server-go/internal/cards"
	"github.com/donbattle/optcg-server-go/internal/game/actions"
	"github.com/donbattle/optcg-server-go/internal/game/effects"
	"github.com/donbattle/optcg-server-go/internal/game/gametest"
	"github.com/donbattle/optcg-server-go/internal/game/rules"
	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(h *gametest.Harness) *Resolver {
	return NewResolver(h.Cards, h.Exec, h.Prompts, h.Bus, 0, h.Logger)
}

func defineTriggerCard(h *gametest.Harness) {
	h.Define(cards.Meta{
		CardID:   "T-1",
		Category: cards.CategoryEvent,
		Keywords: []string{cards.KeywordTrigger},
		Abilities: []cards.Ability{{
			ID:     "T-1-trigger",
			Timing: cards.TimingTrigger,
			Actions: []actions.Action{
				actions.ModifyStat{Target: actions.TargetOwnLeader, Stat: state.StatPower, Mode: state.ModeAdd, Amount: 1000, Duration: state.DurationThisTurn},
			},
		}},
	})
}

func TestLeaderDamageMovesTopLifeToHand(t *testing.T) {
	h := gametest.New(t)
	h.Character("P-1", 1000, 0)
	h.Character("P-2", 2000, 0)
	h.Life(state.SideSecond, "P-1", "P-2")

	result := newResolver(h).DealDamageToLeader(context.Background(), h.State, state.SideSecond, 1, Options{AllowTriggers: true})
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Dealt)
	assert.Equal(t, []string{"P-1"}, result.ToHand)

	assert.Equal(t, []string{"P-2"}, h.CardIDs(state.SideSecond, state.ZoneLife))
	assert.Equal(t, []string{"P-1"}, h.CardIDs(state.SideSecond, state.ZoneHand))
	assert.True(t, h.Zone(state.SideSecond, state.ZoneHand)[0].FaceUp)
	assert.False(t, h.State.Over)
	h.AssertPartition()
}

func TestDamageIsDealtOneUnitAtATime(t *testing.T) {
	h := gametest.New(t)
	defineTriggerCard(h)
	h.Character("P-1", 1000, 0)
	h.Life(state.SideSecond, "T-1", "P-1")
	h.Answer(rules.ChoiceLifeTrigger, rules.TriggerAddToHand)

	result := newResolver(h).DealDamageToLeader(context.Background(), h.State, state.SideSecond, 2, Options{AllowTriggers: true})
	require.True(t, result.Success)
	assert.Equal(t, 2, result.Dealt)
	assert.Equal(t, []string{"T-1", "P-1"}, result.ToHand)
	require.Len(t, h.Requested(), 1)
	assert.Equal(t, gametest.Bob, h.Requested()[0].PlayerID)
	assert.Equal(t, []string{rules.TriggerActivate, rules.TriggerAddToHand}, h.Requested()[0].Choice.Actions)

	// the prompt snapshot shows the revealed card still on top of life
	snap := h.Requested()[0].Snapshot
	require.Len(t, snap.Players[state.SideSecond].Life, 2)
	assert.True(t, snap.Players[state.SideSecond].Life[0].FaceUp)
}

func TestActivatedTriggerRunsAbilityAndTrashesCard(t *testing.T) {
	h := gametest.New(t)
	defineTriggerCard(h)
	h.LeaderCard("L-1", 5000, 1)
	leader := h.Place(state.SideSecond, state.ZoneLeader, "L-1")
	h.Life(state.SideSecond, "T-1")
	h.Answer(rules.ChoiceLifeTrigger, rules.TriggerActivate)

	result := newResolver(h).DealDamageToLeader(context.Background(), h.State, state.SideSecond, 1, Options{AllowTriggers: true})
	require.True(t, result.Success)
	assert.Equal(t, []string{"T-1"}, result.Triggered)
	assert.Empty(t, h.Zone(state.SideSecond, state.ZoneHand))
	assert.Equal(t, []string{"T-1"}, h.CardIDs(state.SideSecond, state.ZoneTrash))
	assert.Equal(t, 6000, h.Effects.ComputedStat(h.State, leader, state.StatPower, 5000, effects.StatOptions{}))
	assert.Contains(t, h.EventTypes(), rules.EventTriggerResolved)
}

func TestTriggerWithoutListenerGoesToHand(t *testing.T) {
	h := gametest.New(t)
	defineTriggerCard(h)
	h.Life(state.SideSecond, "T-1")

	result := newResolver(h).DealDamageToLeader(context.Background(), h.State, state.SideSecond, 1, Options{AllowTriggers: true})
	require.True(t, result.Success)
	assert.Equal(t, []string{"T-1"}, h.CardIDs(state.SideSecond, state.ZoneHand))
}

func TestTriggersNotAllowed(t *testing.T) {
	h := gametest.New(t)
	defineTriggerCard(h)
	h.Life(state.SideSecond, "T-1")
	h.Answer(rules.ChoiceLifeTrigger, rules.TriggerActivate)

	newResolver(h).DealDamageToLeader(context.Background(), h.State, state.SideSecond, 1, Options{AllowTriggers: false})
	assert.Empty(t, h.Requested())
	assert.Equal(t, []string{"T-1"}, h.CardIDs(state.SideSecond, state.ZoneHand))
}

func TestFailedTriggerFallsBackToHand(t *testing.T) {
	h := gametest.New(t)
	h.Define(cards.Meta{
		CardID:   "T-2",
		Category: cards.CategoryEvent,
		Keywords: []string{cards.KeywordTrigger},
		Abilities: []cards.Ability{{
			ID:      "T-2-trigger",
			Timing:  cards.TimingTrigger,
			Actions: []actions.Action{actions.Draw{Count: 3}},
		}},
	})
	h.Life(state.SideSecond, "T-2")
	h.Answer(rules.ChoiceLifeTrigger, rules.TriggerActivate)

	result := newResolver(h).DealDamageToLeader(context.Background(), h.State, state.SideSecond, 1, Options{AllowTriggers: true})
	require.True(t, result.Success)
	assert.Empty(t, result.Triggered)
	assert.Equal(t, []string{"T-2"}, h.CardIDs(state.SideSecond, state.ZoneHand))
}

func TestFailedTriggerRollsBackEarlierAbilities(t *testing.T) {
	h := gametest.New(t)
	h.LeaderCard("L-1", 5000, 1)
	leader := h.Place(state.SideSecond, state.ZoneLeader, "L-1")
	h.Define(cards.Meta{
		CardID:   "T-3",
		Category: cards.CategoryEvent,
		Keywords: []string{cards.KeywordTrigger},
		Abilities: []cards.Ability{
			{
				ID:     "T-3-power",
				Timing: cards.TimingTrigger,
				Actions: []actions.Action{
					actions.ModifyStat{Target: actions.TargetOwnLeader, Stat: state.StatPower, Mode: state.ModeAdd, Amount: 1000, Duration: state.DurationThisTurn},
				},
			},
			{
				ID:      "T-3-draw",
				Timing:  cards.TimingTrigger,
				Actions: []actions.Action{actions.Draw{Count: 3}},
			},
		},
	})
	h.Life(state.SideSecond, "T-3")
	h.Answer(rules.ChoiceLifeTrigger, rules.TriggerActivate)

	result := newResolver(h).DealDamageToLeader(context.Background(), h.State, state.SideSecond, 1, Options{AllowTriggers: true})
	require.True(t, result.Success)
	assert.Empty(t, result.Triggered)
	assert.Equal(t, []string{"T-3"}, result.ToHand)
	assert.Empty(t, h.State.ContinuousEffects)
	assert.Equal(t, 5000, h.Effects.ComputedStat(h.State, leader, state.StatPower, 5000, effects.StatOptions{}))
	h.AssertPartition()
}

func TestBanishTrashesWithoutTrigger(t *testing.T) {
	h := gametest.New(t)
	defineTriggerCard(h)
	h.Life(state.SideSecond, "T-1")
	h.Answer(rules.ChoiceLifeTrigger, rules.TriggerActivate)

	result := newResolver(h).DealDamageToLeader(context.Background(), h.State, state.SideSecond, 1, Options{AllowTriggers: true, Banish: true})
	require.True(t, result.Success)
	assert.Equal(t, []string{"T-1"}, result.Trashed)
	assert.Empty(t, h.Requested())
	assert.Empty(t, h.Zone(state.SideSecond, state.ZoneHand))
	assert.Equal(t, []string{"T-1"}, h.CardIDs(state.SideSecond, state.ZoneTrash))
}

func TestDefeatStopsRemainingDamage(t *testing.T) {
	h := gametest.New(t)
	h.Character("P-1", 1000, 0)
	h.Life(state.SideSecond, "P-1")

	result := newResolver(h).DealDamageToLeader(context.Background(), h.State, state.SideSecond, 3, Options{AllowTriggers: true})
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Dealt)
	assert.True(t, result.Defeated)
	assert.True(t, h.State.Over)
	assert.Equal(t, state.SideFirst, h.State.Winner)

	var defeats int
	for _, e := range h.Events() {
		if d, ok := e.Payload.(rules.Defeat); ok {
			defeats++
			assert.Equal(t, state.SideSecond, d.Loser)
		}
	}
	assert.Equal(t, 1, defeats)

	// a finished game takes no more damage
	again := newResolver(h).DealDamageToLeader(context.Background(), h.State, state.SideSecond, 1, Options{})
	assert.Equal(t, 0, again.Dealt)
	assert.False(t, again.Defeated)
}

func TestDamageValidation(t *testing.T) {
	h := gametest.New(t)
	r := newResolver(h)
	assert.False(t, r.DealDamageToLeader(context.Background(), h.State, state.Side(5), 1, Options{}).Success)
	assert.False(t, r.DealDamageToLeader(context.Background(), h.State, state.SideFirst, -1, Options{}).Success)
}
