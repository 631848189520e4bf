// Package session hosts a single match. A Session owns the game state and
// serializes the players' actions against it; battles may suspend on prompts
// while the other player answers through SubmitChoice.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/donbattle/optcg-server-go/internal/cards"
	"github.com/donbattle/optcg-server-go/internal/config"
	"github.com/donbattle/optcg-server-go/internal/game/actions"
	"github.com/donbattle/optcg-server-go/internal/game/battle"
	"github.com/donbattle/optcg-server-go/internal/game/damage"
	"github.com/donbattle/optcg-server-go/internal/game/effects"
	"github.com/donbattle/optcg-server-go/internal/game/prompt"
	"github.com/donbattle/optcg-server-go/internal/game/removal"
	"github.com/donbattle/optcg-server-go/internal/game/rules"
	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/donbattle/optcg-server-go/internal/game/watchers"
	"github.com/donbattle/optcg-server-go/internal/game/zones"
	"go.uber.org/zap"
)

// Options are the match rules a session runs with.
type Options struct {
	PromptTimeout            time.Duration
	RestrictFirstTurnAttacks bool
	StartingHand             int
	DonPerTurn               int
	DonDeckSize              int
	ReplayDir                string
}

// DefaultOptions returns the standard match rules.
func DefaultOptions() Options {
	return Options{
		PromptTimeout:            60 * time.Second,
		RestrictFirstTurnAttacks: true,
		StartingHand:             5,
		DonPerTurn:               2,
		DonDeckSize:              10,
	}
}

// OptionsFromConfig maps the game section of the server configuration.
func OptionsFromConfig(cfg config.GameConfig) Options {
	return Options{
		PromptTimeout:            cfg.PromptTimeout,
		RestrictFirstTurnAttacks: cfg.RestrictFirstTurnAttacks,
		StartingHand:             cfg.StartingHand,
		DonPerTurn:               cfg.DonPerTurn,
		DonDeckSize:              cfg.DonDeckSize,
		ReplayDir:                cfg.ReplayDir,
	}
}

// Deck is one player's list. Cards are in draw order, index 0 on top.
type Deck struct {
	Leader string   `json:"leader"`
	Cards  []string `json:"cards"`
}

// Result reports the outcome of a player action.
type Result struct {
	Success bool
	Reason  string
}

func fail(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Session is the single owner of one match's state.
type Session struct {
	id     string
	opts   Options
	logger *zap.Logger

	bus     *rules.EventBus
	cards   *cards.Store
	effects *effects.Engine
	prompts *prompt.Registry
	exec    *actions.Interpreter
	removal *removal.Resolver
	damage  *damage.Resolver
	battle  *battle.Resolver

	mu       sync.Mutex // serializes player actions
	gs       *state.GameState
	ready    bool
	inBattle atomic.Bool

	viewMu sync.RWMutex
	view   *state.GameState
	replay *Replay

	attacks     *watchers.AttacksWatcher
	turnAttacks *watchers.AttacksWatcher
	removals    *watchers.RemovalsWatcher
	lifeLost    *watchers.LifeLostWatcher
	watchers    *watchers.Set
}

// New creates a session for two players. The first player id takes the first
// side. Nothing is on the board until Setup is called.
func New(gameID, firstPlayerID, secondPlayerID string, store *cards.Store, opts Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = cards.NewStore(logger)
	}
	logger = logger.With(zap.String("game_id", gameID))

	bus := rules.NewEventBus()
	engine := effects.NewEngine(logger)
	prompts := prompt.NewRegistry(gameID, bus, logger)
	exec := actions.NewInterpreter(engine, logger)
	rem := removal.NewResolver(store, exec, bus, logger)
	dmg := damage.NewResolver(store, exec, prompts, bus, opts.PromptTimeout, logger)

	s := &Session{
		id:      gameID,
		opts:    opts,
		logger:  logger,
		bus:     bus,
		cards:   store,
		effects: engine,
		prompts: prompts,
		exec:    exec,
		removal: rem,
		damage:  dmg,
		gs:      state.NewGameState(gameID, firstPlayerID, secondPlayerID),
	}
	s.battle = battle.NewResolver(battle.Deps{
		Cards:   store,
		Effects: engine,
		Prompts: prompts,
		Exec:    exec,
		Damage:  dmg,
		Removal: rem,
		Bus:     bus,
	}, battle.Options{
		PromptTimeout:            opts.PromptTimeout,
		RestrictFirstTurnAttacks: opts.RestrictFirstTurnAttacks,
	}, logger)
	s.view = s.gs.Clone()
	s.replay = NewReplay(gameID)

	s.attacks = watchers.NewAttacksWatcher(watchers.ScopeGame)
	s.turnAttacks = watchers.NewAttacksWatcher(watchers.ScopeTurn)
	s.removals = watchers.NewRemovalsWatcher()
	s.lifeLost = watchers.NewLifeLostWatcher()
	s.watchers = watchers.NewSet()
	for _, w := range []watchers.Watcher{s.attacks, s.turnAttacks, s.removals, s.lifeLost} {
		s.watchers.Add(w)
	}
	s.watchers.Attach(bus)

	// Catch-all so the view cache never counts as a prompt responder.
	bus.Subscribe(func(e rules.Event) {
		if p, ok := e.Payload.(rules.PromptRequested); ok && p.Snapshot != nil {
			s.setView(p.Snapshot)
		}
	})
	return s
}

// ID returns the game id.
func (s *Session) ID() string { return s.id }

// Bus returns the event bus transports subscribe to.
func (s *Session) Bus() *rules.EventBus { return s.bus }

// seat looks up a player's side from the published view without waiting for
// an action in progress.
func (s *Session) seat(playerID string) (state.Side, bool) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view.SideOf(playerID)
}

// Players returns the player ids of the first and second side.
func (s *Session) Players() [2]string {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return [2]string{s.view.Players[0].PlayerID, s.view.Players[1].PlayerID}
}

// Snapshot returns a deep copy of the most recently published state. It
// never waits for an action in progress.
func (s *Session) Snapshot() *state.GameState {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view.Clone()
}

func (s *Session) setView(gs *state.GameState) {
	s.viewMu.Lock()
	s.view = gs
	s.viewMu.Unlock()
}

// commit refreshes the view and publishes a state change. Callers hold mu.
func (s *Session) commit(reason string) {
	view := s.gs.Clone()
	checksum := view.Checksum()
	s.setView(view)
	s.replay.Record(Frame{Reason: reason, Checksum: checksum, State: view})
	s.bus.Publish(rules.NewEvent(s.id, rules.StateChanged{
		Reason:   reason,
		Turn:     view.Turn,
		Checksum: checksum,
	}))
}

// Stats are per-side match tallies, indexed by side.
type Stats struct {
	Attacks         [2]int `json:"attacks"`
	AttacksThisTurn [2]int `json:"attacks_this_turn"`
	Removals        [2]int `json:"removals"`
	LifeLost        [2]int `json:"life_lost"`
}

// Stats returns the current tallies.
func (s *Session) Stats() Stats {
	var out Stats
	for _, side := range []state.Side{state.SideFirst, state.SideSecond} {
		out.Attacks[side] = s.attacks.Count(side)
		out.AttacksThisTurn[side] = s.turnAttacks.Count(side)
		out.Removals[side] = s.removals.Count(side)
		out.LifeLost[side] = s.lifeLost.Count(side)
	}
	return out
}

// Replay returns the recording of every committed state.
func (s *Session) Replay() *Replay {
	return s.replay
}

// Setup places both leaders, builds the decks, life and DON!! decks, draws the
// opening hands and runs the first player's DON phase.
func (s *Session) Setup(decks [2]Deck) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return fail("match already set up")
	}

	for i, deck := range decks {
		side := state.Side(i)
		leader := s.cards.Meta(deck.Leader)
		if leader.Category != cards.CategoryLeader {
			return fail("side %s: %q is not a leader", side, deck.Leader)
		}
		if need := s.opts.StartingHand + leader.Life; len(deck.Cards) < need {
			return fail("side %s: deck has %d cards, needs at least %d", side, len(deck.Cards), need)
		}
	}

	for i, deck := range decks {
		side := state.Side(i)
		s.place(side, state.ZoneLeader, deck.Leader)
		for _, cardID := range deck.Cards {
			s.place(side, state.ZoneDeck, cardID)
		}
		for n := 0; n < s.opts.DonDeckSize; n++ {
			s.place(side, state.ZoneDonDeck, state.DonCardID)
		}
		s.drawN(side, state.ZoneHand, s.opts.StartingHand)
		s.drawN(side, state.ZoneLife, s.cards.Meta(deck.Leader).Life)
	}

	s.gs.Turn = 1
	s.gs.TurnPlayer = state.SideFirst
	s.gs.Phase = state.PhaseDon
	s.addDon(state.SideFirst, rules.DonForTurn(s.gs.Turn, s.opts.DonPerTurn))
	s.gs.Phase = state.PhaseMain
	s.ready = true

	s.logger.Info("match set up",
		zap.String("first", s.gs.Players[0].PlayerID),
		zap.String("second", s.gs.Players[1].PlayerID))
	s.commit("setup")
	return Result{Success: true}
}

func (s *Session) place(side state.Side, zone state.Zone, cardID string) {
	inst := zones.CreateAndAdd(s.gs, cardID, side, zone)
	if inst != nil {
		inst.Keywords = append([]string(nil), s.cards.Meta(cardID).Keywords...)
	}
}

// drawN moves up to n cards from the top of the deck into the zone and
// returns how many moved.
func (s *Session) drawN(side state.Side, zone state.Zone, n int) int {
	moved := 0
	for ; moved < n; moved++ {
		player := s.gs.Players[side]
		if len(player.Deck) == 0 {
			break
		}
		zones.MoveInstance(s.gs, player.Deck[0].InstanceID, side, zone)
	}
	return moved
}

func (s *Session) addDon(side state.Side, n int) int {
	added := 0
	for ; added < n; added++ {
		player := s.gs.Players[side]
		if len(player.DonDeck) == 0 {
			break
		}
		zones.MoveInstance(s.gs, player.DonDeck[0].InstanceID, side, state.ZoneCostArea)
	}
	return added
}

// turnPlayer resolves the acting side and rejects players who may not act.
// Callers hold mu.
func (s *Session) turnPlayer(playerID string) (state.Side, string) {
	if !s.ready {
		return 0, "match not set up"
	}
	if s.gs.Over {
		return 0, "game is over"
	}
	side, ok := s.gs.SideOf(playerID)
	if !ok {
		return 0, fmt.Sprintf("player %s is not in this game", playerID)
	}
	if !s.gs.IsTurnOf(side) {
		return 0, "not your turn"
	}
	if s.gs.Phase != state.PhaseMain {
		return 0, fmt.Sprintf("cannot act during %s phase", s.gs.Phase)
	}
	return side, ""
}

// Attack conducts a battle. Only one battle may be unresolved at a time; a
// second attack fails instead of waiting.
func (s *Session) Attack(ctx context.Context, playerID, attackerID, targetID string) battle.Result {
	if !s.inBattle.CompareAndSwap(false, true) {
		return battle.Result{Reason: "a battle is already in progress"}
	}
	defer s.inBattle.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, reason := s.turnPlayer(playerID); reason != "" {
		return battle.Result{Reason: reason}
	}

	result := s.battle.Conduct(ctx, s.gs, attackerID, targetID)
	if result.Success {
		s.logger.Info("battle resolved",
			zap.Int("battle_id", result.BattleID),
			zap.String("winner", string(result.Winner)),
			zap.Int("attacker_power", result.AttackerPower),
			zap.Int("target_power", result.TargetPower))
		s.commit("attack")
	}
	return result
}

// InBattle reports whether a battle is unresolved.
func (s *Session) InBattle() bool {
	return s.inBattle.Load()
}

// SubmitChoice answers a pending prompt. It does not wait for the action in
// progress, which is usually the battle that raised the prompt.
func (s *Session) SubmitChoice(promptID, playerID string, selection rules.Selection) prompt.Result {
	return s.prompts.SubmitChoice(promptID, playerID, selection)
}

// CancelPrompt withdraws a pending prompt.
func (s *Session) CancelPrompt(promptID, reason string) prompt.Result {
	return s.prompts.CancelPrompt(promptID, reason)
}

// PendingPrompts lists the prompts waiting on the player.
func (s *Session) PendingPrompts(playerID string) []*prompt.Pending {
	return s.prompts.PendingFor(playerID)
}

// GiveDon attaches one active DON!! from the player's cost area to their
// leader or one of their characters.
func (s *Session) GiveDon(playerID, targetID string) Result {
	if s.inBattle.Load() {
		return fail("a battle is in progress")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	side, reason := s.turnPlayer(playerID)
	if reason != "" {
		return fail("%s", reason)
	}
	loc := zones.FindInstance(s.gs, targetID)
	if loc == nil {
		return fail("instance %s not found", targetID)
	}
	if loc.Owner != side || (loc.Zone != state.ZoneLeader && loc.Zone != state.ZoneChar) {
		return fail("DON!! can only be given to your leader or characters")
	}
	if res := actions.GiveDonTo(s.gs, side, targetID, 1); !res.Success {
		return fail("%s", res.Reason)
	}
	s.commit("giveDon")
	return Result{Success: true}
}

// EndTurn closes the player's turn and runs the opponent's refresh, draw and
// DON phases up to their main phase.
func (s *Session) EndTurn(playerID string) Result {
	if s.inBattle.Load() {
		return fail("a battle is in progress")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	side, reason := s.turnPlayer(playerID)
	if reason != "" {
		return fail("%s", reason)
	}
	gs := s.gs

	gs.Phase = state.PhaseEnd
	expired := s.effects.ExpireModifiers(gs, effects.Trigger{Kind: effects.TriggerTurnEnd})
	for _, loc := range zones.AllInstances(gs) {
		loc.Instance.Uses.ResetTurn()
	}
	s.bus.Publish(rules.NewEvent(s.id, rules.TurnEnded{Side: side, Turn: gs.Turn}))

	next := side.Opponent()
	gs.TurnPlayer = next
	gs.Turn++
	for phase, _ := rules.NextPhase(gs.Phase); phase != state.PhaseMain && !gs.Over; phase, _ = rules.NextPhase(phase) {
		gs.Phase = phase
		switch phase {
		case state.PhaseRefresh:
			s.refresh(next)
		case state.PhaseDraw:
			if s.drawN(next, state.ZoneHand, 1) == 0 {
				s.deckOut(next)
			}
		case state.PhaseDon:
			s.addDon(next, rules.DonForTurn(gs.Turn, s.opts.DonPerTurn))
		}
	}
	if !gs.Over {
		gs.Phase = state.PhaseMain
	}

	s.logger.Info("turn ended",
		zap.String("side", side.String()),
		zap.Int("turn", gs.Turn),
		zap.Int("modifiers_expired", expired))
	s.commit("endTurn")
	return Result{Success: true}
}

// refresh returns attached DON!! to the cost area and sets the side's cards
// active.
func (s *Session) refresh(side state.Side) {
	s.effects.ExpireModifiers(s.gs, effects.Trigger{Kind: effects.TriggerTurnStart, Side: side})
	player := s.gs.Players[side]
	for _, zone := range []state.Zone{state.ZoneLeader, state.ZoneChar, state.ZoneStage} {
		for _, inst := range player.ZoneSlice(zone) {
			zones.ReturnDon(s.gs, side, inst.GivenDon)
			inst.GivenDon = 0
			inst.State = state.Active
		}
	}
	for _, don := range player.CostArea {
		don.State = state.Active
	}
}

func (s *Session) deckOut(side state.Side) {
	s.defeat(side, "deck out")
}

// defeat ends the match against the side. Callers hold mu.
func (s *Session) defeat(loser state.Side, reason string) {
	s.gs.Declare(loser.Opponent())
	s.logger.Info("match over",
		zap.String("loser", loser.String()),
		zap.String("reason", reason))
	s.bus.Publish(rules.NewEvent(s.id, rules.Defeat{
		Loser:  loser,
		Winner: loser.Opponent(),
		Reason: reason,
	}))
}

// Concede ends the match in the opponent's favour. The prompt registry is
// closed first so an unresolved battle declines every remaining step and
// releases the session.
func (s *Session) Concede(playerID string) Result {
	if _, ok := s.seat(playerID); !ok {
		return fail("player %s is not in this game", playerID)
	}
	s.prompts.Close("player conceded")
	s.mu.Lock()
	defer s.mu.Unlock()
	side, ok := s.gs.SideOf(playerID)
	if !ok {
		return fail("player %s is not in this game", playerID)
	}
	if s.gs.Over {
		return fail("game is over")
	}
	s.defeat(side, "concede")
	s.commit("concede")
	return Result{Success: true}
}

// Close withdraws every pending prompt and declines any raised later. The
// session must not be used after.
func (s *Session) Close() {
	if n := s.prompts.Close("session closed"); n > 0 {
		s.logger.Debug("cancelled pending prompts", zap.Int("count", n))
	}
	s.watchers.Detach()
}
