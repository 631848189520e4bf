package session

import (
	"context"
	"testing"
	"time"

	"github.com/donbattle/optcg-server-go/internal/cards"
	"github.com/donbattle/optcg-server-go/internal/game/battle"
	"github.com/donbattle/optcg-server-go/internal/game/rules"
	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/donbattle/optcg-server-go/internal/game/zones"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	alice = "alice"
	bob   = "bob"
)

func testStore() *cards.Store {
	store := cards.NewStore(nil)
	store.Put(cards.Meta{CardID: "L-RED", Name: "Red Leader", Category: cards.CategoryLeader, Power: 5000, Life: 4})
	store.Put(cards.Meta{CardID: "C-1K", Name: "Grunt", Category: cards.CategoryCharacter, Power: 3000, Counter: 1000})
	store.Put(cards.Meta{CardID: "C-BLK", Name: "Wall", Category: cards.CategoryCharacter, Power: 2000, Keywords: []string{cards.KeywordBlocker}})
	return store
}

func deckOf(n int) Deck {
	list := make([]string, n)
	for i := range list {
		list[i] = "C-1K"
	}
	return Deck{Leader: "L-RED", Cards: list}
}

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	return New("g1", alice, bob, testStore(), opts, zaptest.NewLogger(t))
}

func setUp(t *testing.T, opts Options, aliceCards, bobCards int) *Session {
	t.Helper()
	s := newSession(t, opts)
	res := s.Setup([2]Deck{deckOf(aliceCards), deckOf(bobCards)})
	require.True(t, res.Success, res.Reason)
	return s
}

func openOptions() Options {
	opts := DefaultOptions()
	opts.RestrictFirstTurnAttacks = false
	opts.PromptTimeout = 0
	return opts
}

func stateChanges(s *Session) *[]rules.StateChanged {
	var seen []rules.StateChanged
	s.Bus().Subscribe(func(e rules.Event) {
		if p, ok := e.Payload.(rules.StateChanged); ok {
			seen = append(seen, p)
		}
	})
	return &seen
}

func TestSetupDealsOpeningBoard(t *testing.T) {
	s := newSession(t, DefaultOptions())
	changes := stateChanges(s)

	res := s.Setup([2]Deck{deckOf(12), deckOf(12)})
	require.True(t, res.Success, res.Reason)

	gs := s.Snapshot()
	assert.Equal(t, 1, gs.Turn)
	assert.Equal(t, state.SideFirst, gs.TurnPlayer)
	assert.Equal(t, state.PhaseMain, gs.Phase)
	for _, p := range gs.Players {
		require.NotNil(t, p.Leader)
		assert.Equal(t, "L-RED", p.Leader.CardID)
		assert.Len(t, p.Hand, 5)
		assert.Len(t, p.Life, 4)
		assert.Len(t, p.Deck, 3)
		for _, life := range p.Life {
			assert.False(t, life.FaceUp)
		}
	}
	assert.Len(t, gs.Players[0].CostArea, 1)
	assert.Len(t, gs.Players[0].DonDeck, 9)
	assert.Empty(t, gs.Players[1].CostArea)
	assert.Len(t, gs.Players[1].DonDeck, 10)

	require.Len(t, *changes, 1)
	assert.Equal(t, "setup", (*changes)[0].Reason)
	assert.Equal(t, gs.Checksum(), (*changes)[0].Checksum)
}

func TestSetupRejectsBadDecks(t *testing.T) {
	s := newSession(t, DefaultOptions())

	res := s.Setup([2]Deck{{Leader: "C-1K", Cards: deckOf(12).Cards}, deckOf(12)})
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "not a leader")

	res = s.Setup([2]Deck{deckOf(12), deckOf(8)})
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "needs at least 9")

	// nothing was placed by the failed attempts
	assert.Nil(t, s.Snapshot().Players[0].Leader)

	require.True(t, s.Setup([2]Deck{deckOf(12), deckOf(12)}).Success)
	assert.False(t, s.Setup([2]Deck{deckOf(12), deckOf(12)}).Success)
}

func TestActionsBeforeSetupFail(t *testing.T) {
	s := newSession(t, DefaultOptions())
	res := s.EndTurn(alice)
	assert.False(t, res.Success)
	assert.Equal(t, "match not set up", res.Reason)
}

func TestGiveDon(t *testing.T) {
	s := setUp(t, DefaultOptions(), 12, 12)
	gs := s.Snapshot()
	leader := gs.Players[0].Leader.InstanceID
	enemy := gs.Players[1].Leader.InstanceID

	res := s.GiveDon(bob, gs.Players[1].Leader.InstanceID)
	assert.False(t, res.Success)
	assert.Equal(t, "not your turn", res.Reason)

	res = s.GiveDon(alice, enemy)
	assert.False(t, res.Success)

	res = s.GiveDon(alice, leader)
	require.True(t, res.Success, res.Reason)
	gs = s.Snapshot()
	assert.Equal(t, 1, gs.Players[0].Leader.GivenDon)
	assert.Empty(t, gs.Players[0].CostArea)

	res = s.GiveDon(alice, leader)
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "not enough active DON!!")
}

func TestEndTurnRunsOpponentTurnStart(t *testing.T) {
	s := setUp(t, DefaultOptions(), 12, 12)
	var ended []rules.TurnEnded
	rules.On(s.Bus(), func(_ rules.Event, p rules.TurnEnded) { ended = append(ended, p) })

	leader := s.Snapshot().Players[0].Leader.InstanceID
	require.True(t, s.GiveDon(alice, leader).Success)

	res := s.EndTurn(bob)
	assert.False(t, res.Success)

	require.True(t, s.EndTurn(alice).Success)
	gs := s.Snapshot()
	assert.Equal(t, 2, gs.Turn)
	assert.Equal(t, state.SideSecond, gs.TurnPlayer)
	assert.Equal(t, state.PhaseMain, gs.Phase)
	assert.Len(t, gs.Players[1].Hand, 6)
	assert.Len(t, gs.Players[1].CostArea, 2)
	assert.Len(t, gs.Players[1].DonDeck, 8)
	// Alice's DON!! stays attached until her own refresh phase
	assert.Equal(t, 1, gs.Players[0].Leader.GivenDon)

	require.True(t, s.EndTurn(bob).Success)
	gs = s.Snapshot()
	assert.Equal(t, 3, gs.Turn)
	assert.Equal(t, 0, gs.Players[0].Leader.GivenDon)
	assert.Len(t, gs.Players[0].CostArea, 3)
	for _, don := range gs.Players[0].CostArea {
		assert.True(t, don.IsActive())
	}
	assert.Len(t, gs.Players[0].DonDeck, 7)
	assert.Len(t, gs.Players[0].Hand, 6)

	require.Len(t, ended, 2)
	assert.Equal(t, rules.TurnEnded{Side: state.SideFirst, Turn: 1}, ended[0])
	assert.Equal(t, rules.TurnEnded{Side: state.SideSecond, Turn: 2}, ended[1])
}

func TestEndTurnExpiresModifiers(t *testing.T) {
	s := setUp(t, DefaultOptions(), 12, 12)
	gs := s.gs
	leader := gs.Players[0].Leader.InstanceID
	enemy := gs.Players[1].Leader.InstanceID

	_, err := s.effects.AddModifier(gs, state.ContinuousEffect{
		Stat: state.StatPower, Mode: state.ModeAdd, Amount: 1000,
		TargetIDs: []string{leader}, Duration: state.DurationThisTurn,
	})
	require.NoError(t, err)
	_, err = s.effects.AddModifier(gs, state.ContinuousEffect{
		Stat: state.StatPower, Mode: state.ModeAdd, Amount: -1000,
		TargetIDs: []string{enemy}, Duration: state.DurationUntilOwnerNextTurn, Side: state.SideFirst,
	})
	require.NoError(t, err)
	gs.Players[0].Leader.Uses.Record("L-RED#0")

	require.True(t, s.EndTurn(alice).Success)
	require.Len(t, s.gs.ContinuousEffects, 1)
	assert.Equal(t, state.DurationUntilOwnerNextTurn, s.gs.ContinuousEffects[0].Duration)
	assert.Equal(t, 0, s.gs.Players[0].Leader.Uses.ThisTurn("L-RED#0"))
	assert.Equal(t, 1, s.gs.Players[0].Leader.Uses.Total("L-RED#0"))

	require.True(t, s.EndTurn(bob).Success)
	assert.Empty(t, s.gs.ContinuousEffects)
}

func TestDeckOutOnDraw(t *testing.T) {
	s := setUp(t, DefaultOptions(), 12, 9)
	var defeats []rules.Defeat
	rules.On(s.Bus(), func(_ rules.Event, p rules.Defeat) { defeats = append(defeats, p) })

	require.True(t, s.EndTurn(alice).Success)
	gs := s.Snapshot()
	assert.True(t, gs.Over)
	assert.Equal(t, state.SideFirst, gs.Winner)
	assert.Equal(t, state.PhaseDraw, gs.Phase)
	require.Len(t, defeats, 1)
	assert.Equal(t, rules.Defeat{Loser: state.SideSecond, Winner: state.SideFirst, Reason: "deck out"}, defeats[0])

	res := s.EndTurn(bob)
	assert.False(t, res.Success)
	assert.Equal(t, "game is over", res.Reason)
}

func TestAttackFirstTurnRestricted(t *testing.T) {
	s := setUp(t, DefaultOptions(), 12, 12)
	gs := s.Snapshot()
	before := gs.Checksum()

	res := s.Attack(context.Background(), alice, gs.Players[0].Leader.InstanceID, gs.Players[1].Leader.InstanceID)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Reason)
	assert.Equal(t, before, s.Snapshot().Checksum())
	assert.False(t, s.InBattle())
}

func TestAttackLeaderWithoutResponders(t *testing.T) {
	s := setUp(t, openOptions(), 12, 12)
	changes := stateChanges(s)
	gs := s.Snapshot()

	res := s.Attack(context.Background(), bob, gs.Players[1].Leader.InstanceID, gs.Players[0].Leader.InstanceID)
	assert.False(t, res.Success)
	assert.Equal(t, "not your turn", res.Reason)

	res = s.Attack(context.Background(), alice, gs.Players[0].Leader.InstanceID, gs.Players[1].Leader.InstanceID)
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, battle.WinnerAttacker, res.Winner)
	assert.Equal(t, 1, res.LeaderDamage)

	gs = s.Snapshot()
	assert.Len(t, gs.Players[1].Life, 3)
	assert.Len(t, gs.Players[1].Hand, 6)
	assert.Equal(t, state.Rested, gs.Players[0].Leader.State)
	require.Len(t, *changes, 1)
	assert.Equal(t, "attack", (*changes)[0].Reason)
}

func TestSecondAttackWhileBattlePending(t *testing.T) {
	s := setUp(t, openOptions(), 12, 12)
	prompts := make(chan rules.PromptRequested, 4)
	rules.On(s.Bus(), func(_ rules.Event, p rules.PromptRequested) { prompts <- p })

	gs := s.Snapshot()
	attacker := gs.Players[0].Leader.InstanceID
	target := gs.Players[1].Leader.InstanceID

	done := make(chan battle.Result, 1)
	go func() {
		done <- s.Attack(context.Background(), alice, attacker, target)
	}()

	var p rules.PromptRequested
	select {
	case p = <-prompts:
	case <-time.After(5 * time.Second):
		t.Fatal("no counter prompt raised")
	}
	assert.Equal(t, rules.ChoiceCounter, p.Choice.Kind)
	assert.Equal(t, bob, p.PlayerID)
	assert.True(t, s.InBattle())

	second := s.Attack(context.Background(), alice, attacker, target)
	assert.False(t, second.Success)
	assert.Equal(t, "a battle is already in progress", second.Reason)
	assert.Equal(t, "a battle is in progress", s.EndTurn(alice).Reason)

	// the view is served while the battle waits
	require.NotNil(t, s.Snapshot())
	assert.Len(t, s.PendingPrompts(bob), 1)

	wrong := s.SubmitChoice(p.ID, alice, rules.Selection{})
	assert.False(t, wrong.Success)

	answer := s.SubmitChoice(p.ID, bob, rules.Selection{OptionIDs: []string{p.Choice.Options[0].ID}})
	require.True(t, answer.Success, answer.Reason)

	var res battle.Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("battle did not finish")
	}
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, battle.WinnerDefender, res.Winner)
	assert.Equal(t, 6000, res.TargetPower)
	assert.False(t, s.InBattle())

	gs = s.Snapshot()
	assert.Len(t, gs.Players[1].Life, 4)
	assert.Len(t, gs.Players[1].Hand, 4)
	assert.Equal(t, []string{"C-1K"}, cardIDs(gs.Players[1].Trash))
}

func TestStatsTallies(t *testing.T) {
	s := setUp(t, openOptions(), 12, 12)
	gs := s.Snapshot()

	res := s.Attack(context.Background(), alice, gs.Players[0].Leader.InstanceID, gs.Players[1].Leader.InstanceID)
	require.True(t, res.Success, res.Reason)

	stats := s.Stats()
	assert.Equal(t, [2]int{1, 0}, stats.Attacks)
	assert.Equal(t, [2]int{1, 0}, stats.AttacksThisTurn)
	assert.Equal(t, [2]int{0, 1}, stats.LifeLost)
	assert.Equal(t, [2]int{0, 0}, stats.Removals)

	require.True(t, s.EndTurn(alice).Success)
	stats = s.Stats()
	assert.Equal(t, [2]int{1, 0}, stats.Attacks)
	assert.Equal(t, [2]int{0, 0}, stats.AttacksThisTurn)
}

func TestConcede(t *testing.T) {
	s := setUp(t, DefaultOptions(), 12, 12)
	res := s.Concede(bob)
	require.True(t, res.Success, res.Reason)
	gs := s.Snapshot()
	assert.True(t, gs.Over)
	assert.Equal(t, state.SideFirst, gs.Winner)

	assert.False(t, s.Concede(alice).Success)
	assert.False(t, s.Concede("mallory").Success)
}

func TestConcedeDuringBattleReleasesSession(t *testing.T) {
	s := setUp(t, openOptions(), 12, 12)
	blocker := zones.CreateAndAdd(s.gs, "C-BLK", state.SideSecond, state.ZoneChar)
	require.NotNil(t, blocker)

	prompts := make(chan rules.PromptRequested, 4)
	rules.On(s.Bus(), func(_ rules.Event, p rules.PromptRequested) { prompts <- p })

	gs := s.gs.Clone()
	done := make(chan battle.Result, 1)
	go func() {
		done <- s.Attack(context.Background(), alice, gs.Players[0].Leader.InstanceID, gs.Players[1].Leader.InstanceID)
	}()

	select {
	case p := <-prompts:
		assert.Equal(t, rules.ChoiceBlocker, p.Choice.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("no blocker prompt raised")
	}

	conceded := make(chan Result, 1)
	go func() { conceded <- s.Concede(bob) }()
	select {
	case res := <-conceded:
		require.True(t, res.Success, res.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("concede waited on the battle's prompts")
	}

	select {
	case res := <-done:
		assert.True(t, res.Success, res.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("battle did not finish")
	}
	assert.Empty(t, prompts, "no prompt is raised after conceding")
	assert.Empty(t, s.PendingPrompts(bob))

	final := s.Snapshot()
	assert.True(t, final.Over)
	assert.Equal(t, state.SideFirst, final.Winner)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := setUp(t, DefaultOptions(), 12, 12)
	gs := s.Snapshot()
	gs.Players[0].Hand = nil
	assert.Len(t, s.Snapshot().Players[0].Hand, 5)
	assert.Equal(t, [2]string{alice, bob}, s.Players())
}

func cardIDs(list []*state.CardInstance) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.CardID)
	}
	return out
}
