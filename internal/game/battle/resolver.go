// Package battle runs the attack sequence: declare, block, counter, damage
// and cleanup. Every step runs to completion before the next one starts and
// the only waits are the defender's blocker and counter prompts.
package battle

import (
	"context"
	"fmt"
	"time"

	"github.com/donbattle/optcg-server-go/internal/cards"
	"github.com/donbattle/optcg-server-go/internal/game/actions"
	"github.com/donbattle/optcg-server-go/internal/game/damage"
	"github.com/donbattle/optcg-server-go/internal/game/effects"
	"github.com/donbattle/optcg-server-go/internal/game/prompt"
	"github.com/donbattle/optcg-server-go/internal/game/removal"
	"github.com/donbattle/optcg-server-go/internal/game/rules"
	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/donbattle/optcg-server-go/internal/game/zones"
	"go.uber.org/zap"
)

// Winner names the side that won a battle.
type Winner string

const (
	WinnerAttacker Winner = "attacker"
	WinnerDefender Winner = "defender"
)

// Result describes a finished battle, or why it could not start.
type Result struct {
	Success       bool
	Reason        string
	BattleID      int
	Winner        Winner
	AttackerID    string
	FinalTarget   string
	BlockedBy     string
	Counters      []string // card ids used as counters
	KO            []string
	LeaderDamage  int
	AttackerPower int
	TargetPower   int
}

func invalid(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Options holds the battle rules that vary per session.
type Options struct {
	PromptTimeout            time.Duration
	RestrictFirstTurnAttacks bool
}

// Deps are the components a resolver works with.
type Deps struct {
	Cards   *cards.Store
	Effects *effects.Engine
	Prompts *prompt.Registry
	Exec    actions.Executor
	Damage  *damage.Resolver
	Removal *removal.Resolver
	Bus     *rules.EventBus
}

// Resolver conducts battles.
type Resolver struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// NewResolver creates a battle resolver.
func NewResolver(deps Deps, opts Options, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Bus == nil {
		deps.Bus = rules.NewEventBus()
	}
	if deps.Cards == nil {
		deps.Cards = cards.NewStore(logger)
	}
	if deps.Effects == nil {
		deps.Effects = effects.NewEngine(logger)
	}
	if deps.Prompts == nil {
		deps.Prompts = prompt.NewRegistry("", deps.Bus, logger)
	}
	if deps.Exec == nil {
		deps.Exec = actions.NewInterpreter(deps.Effects, logger)
	}
	if deps.Damage == nil {
		deps.Damage = damage.NewResolver(deps.Cards, deps.Exec, deps.Prompts, deps.Bus, opts.PromptTimeout, logger)
	}
	if deps.Removal == nil {
		deps.Removal = removal.NewResolver(deps.Cards, deps.Exec, deps.Bus, logger)
	}
	return &Resolver{deps: deps, opts: opts, logger: logger}
}

// battle is the ephemeral record of one combat. Instances are tracked by id
// because action rollbacks replace the state's instances.
type battle struct {
	id         int
	attackerID string
	targetID   string
	attacker   state.Side
	defender   state.Side
	result     Result
}

// Conduct runs a battle between attackerID and targetID. Validation failures
// leave the state untouched and are reported in the result.
func (r *Resolver) Conduct(ctx context.Context, gs *state.GameState, attackerID, targetID string) Result {
	if reason := r.validate(gs, attackerID, targetID); reason != "" {
		r.logger.Debug("attack rejected",
			zap.String("attacker_id", attackerID),
			zap.String("target_id", targetID),
			zap.String("reason", reason))
		return invalid("%s", reason)
	}

	attacker := zones.FindInstance(gs, attackerID)
	b := &battle{
		id:         gs.AllocBattleID(),
		attackerID: attackerID,
		targetID:   targetID,
		attacker:   attacker.Owner,
		defender:   attacker.Owner.Opponent(),
	}
	b.result = Result{Success: true, BattleID: b.id, AttackerID: attackerID}

	r.declare(gs, b)
	r.block(ctx, gs, b)
	r.counter(ctx, gs, b)
	r.damage(ctx, gs, b)
	r.cleanup(gs, b)

	b.result.FinalTarget = b.targetID
	return b.result
}

func (r *Resolver) validate(gs *state.GameState, attackerID, targetID string) string {
	if gs == nil {
		return "no game in progress"
	}
	if gs.Over {
		return "the game is over"
	}
	attacker := zones.FindInstance(gs, attackerID)
	if attacker == nil {
		return "attacker not found"
	}
	target := zones.FindInstance(gs, targetID)
	if target == nil {
		return "target not found"
	}
	if attacker.Zone != state.ZoneLeader && attacker.Zone != state.ZoneChar {
		return "attacker must be your leader or a character on the field"
	}
	if attacker.Owner != gs.TurnPlayer {
		return "only the turn player can attack"
	}
	if !attacker.Instance.IsActive() {
		return "attacker must be active"
	}
	if target.Owner == attacker.Owner {
		return "you cannot attack your own cards"
	}
	switch target.Zone {
	case state.ZoneLeader:
	case state.ZoneChar:
		if target.Instance.IsActive() {
			return "target must be a rested character"
		}
	default:
		return "target must be the opponent's leader or a rested character"
	}
	if !rules.CanAttackOnTurn(gs.Turn, r.opts.RestrictFirstTurnAttacks) {
		return "no attacks are allowed during each player's first turn"
	}
	return ""
}

func (r *Resolver) declare(gs *state.GameState, b *battle) {
	zones.SetActivity(gs, b.attackerID, state.Rested)
	r.logger.Info("attack declared",
		zap.String("game_id", gs.GameID),
		zap.Int("battle_id", b.id),
		zap.String("attacker_id", b.attackerID),
		zap.String("target_id", b.targetID))
	r.deps.Bus.Publish(rules.NewEvent(gs.GameID, rules.BattleDeclared{
		BattleID:   b.id,
		Side:       b.attacker,
		AttackerID: b.attackerID,
		TargetID:   b.targetID,
	}))
}

func (r *Resolver) block(ctx context.Context, gs *state.GameState, b *battle) {
	if r.hasKeyword(gs, b.attackerID, cards.KeywordUnblockable) {
		return
	}
	var options []rules.ChoiceOption
	for _, char := range gs.Players[b.defender].Char {
		if char.IsActive() && char.InstanceID != b.targetID && r.hasKeyword(gs, char.InstanceID, cards.KeywordBlocker) {
			options = append(options, r.option(gs, char))
		}
	}
	if len(options) == 0 {
		return
	}

	choice := rules.ChoiceSpec{
		Kind:     rules.ChoiceBlocker,
		Message:  "Choose a Blocker to protect the attacked card, or decline",
		Options:  options,
		Max:      1,
		BattleID: b.id,
	}
	sel := r.deps.Prompts.Ask(ctx, gs, gs.Players[b.defender].PlayerID, choice, prompt.Options{Timeout: r.opts.PromptTimeout})
	if sel == nil || len(sel.OptionIDs) == 0 {
		return
	}

	blockerID := sel.OptionIDs[0]
	blocker := zones.FindInstance(gs, blockerID)
	if blocker == nil || blocker.Owner != b.defender || blocker.Zone != state.ZoneChar || !blocker.Instance.IsActive() {
		r.logger.Warn("ignoring stale blocker choice", zap.String("blocker_id", blockerID))
		return
	}
	zones.SetActivity(gs, blockerID, state.Rested)
	b.targetID = blockerID
	b.result.BlockedBy = blockerID

	r.logger.Debug("blocker declared", zap.Int("battle_id", b.id), zap.String("blocker_id", blockerID))
	r.deps.Bus.Publish(rules.NewEvent(gs.GameID, rules.BlockerDeclared{BattleID: b.id, BlockerID: blockerID}))
}

func (r *Resolver) counter(ctx context.Context, gs *state.GameState, b *battle) {
	defender := gs.Players[b.defender]
	activeDon := len(defender.ActiveDon())

	var options []rules.ChoiceOption
	for _, card := range defender.Hand {
		meta := r.deps.Cards.Meta(card.CardID)
		if meta.Counter > 0 && meta.Category != cards.CategoryEvent {
			opt := r.option(gs, card)
			opt.Value = meta.Counter
			options = append(options, opt)
			continue
		}
		if ability, ok := counterAbility(meta); ok && ability.Cost <= activeDon {
			opt := r.option(gs, card)
			opt.Label = fmt.Sprintf("%s (event, cost %d)", opt.Label, ability.Cost)
			options = append(options, opt)
		}
	}
	if len(options) == 0 {
		return
	}

	choice := rules.ChoiceSpec{
		Kind:     rules.ChoiceCounter,
		Message:  "Choose counter cards to use, or decline",
		Options:  options,
		Max:      len(options),
		BattleID: b.id,
	}
	sel := r.deps.Prompts.Ask(ctx, gs, defender.PlayerID, choice, prompt.Options{Timeout: r.opts.PromptTimeout})
	if sel == nil {
		return
	}
	for _, id := range sel.OptionIDs {
		r.useCounter(ctx, gs, b, id)
	}
}

func (r *Resolver) useCounter(ctx context.Context, gs *state.GameState, b *battle, instanceID string) {
	loc := zones.FindInstance(gs, instanceID)
	if loc == nil || loc.Owner != b.defender || loc.Zone != state.ZoneHand {
		r.logger.Warn("ignoring stale counter choice", zap.String("instance_id", instanceID))
		return
	}
	cardID := loc.Instance.CardID
	meta := r.deps.Cards.Meta(cardID)

	if meta.Counter > 0 && meta.Category != cards.CategoryEvent {
		if zones.MoveInstance(gs, instanceID, b.defender, state.ZoneTrash) == nil {
			return
		}
		_, err := r.deps.Effects.AddModifier(gs, state.ContinuousEffect{
			Stat:      state.StatPower,
			Mode:      state.ModeAdd,
			Amount:    meta.Counter,
			TargetIDs: []string{b.targetID},
			Duration:  state.DurationThisBattle,
			SourceID:  instanceID,
			Side:      b.defender,
			BattleID:  b.id,
		})
		if err != nil {
			r.logger.Error("counter modifier rejected", zap.Error(err))
			return
		}
		r.counted(gs, b, cardID, meta.Counter, false)
		return
	}

	ability, ok := counterAbility(meta)
	if !ok {
		return
	}
	snapshot := gs.Clone()
	if !restDon(gs, b.defender, ability.Cost) {
		r.logger.Debug("cannot pay counter event cost", zap.String("card_id", cardID), zap.Int("cost", ability.Cost))
		return
	}
	res := actions.ExecuteAll(ctx, r.deps.Exec, gs, ability.Actions, actions.Context{
		Controller: b.defender,
		SourceID:   instanceID,
		TargetID:   b.targetID,
		BattleID:   b.id,
	})
	if !res.Success {
		gs.Restore(snapshot)
		r.logger.Debug("counter event failed", zap.String("card_id", cardID), zap.String("reason", res.Reason))
		return
	}
	zones.MoveInstance(gs, instanceID, b.defender, state.ZoneTrash)
	r.counted(gs, b, cardID, 0, true)
}

func (r *Resolver) counted(gs *state.GameState, b *battle, cardID string, amount int, event bool) {
	b.result.Counters = append(b.result.Counters, cardID)
	r.deps.Bus.Publish(rules.NewEvent(gs.GameID, rules.CounterApplied{
		BattleID: b.id,
		TargetID: b.targetID,
		CardID:   cardID,
		Amount:   amount,
		Event:    event,
	}))
}

func (r *Resolver) damage(ctx context.Context, gs *state.GameState, b *battle) {
	attacker := zones.FindInstance(gs, b.attackerID)
	target := zones.FindInstance(gs, b.targetID)
	if attacker == nil || target == nil {
		// a counter event moved one of the combatants away
		if attacker == nil {
			b.result.Winner = WinnerDefender
		} else {
			b.result.Winner = WinnerAttacker
		}
		return
	}

	// DON!! bonuses do not count during battle
	b.result.AttackerPower = r.Power(gs, b.attackerID, false)
	b.result.TargetPower = r.Power(gs, b.targetID, false)
	if b.result.AttackerPower < b.result.TargetPower {
		b.result.Winner = WinnerDefender
		return
	}
	b.result.Winner = WinnerAttacker

	if target.Zone == state.ZoneLeader {
		count := 1
		if r.hasKeyword(gs, b.attackerID, cards.KeywordDoubleAttack) {
			count = 2
		}
		dealt := r.deps.Damage.DealDamageToLeader(ctx, gs, b.defender, count, damage.Options{
			AllowTriggers: true,
			Banish:        r.hasKeyword(gs, b.attackerID, cards.KeywordBanish),
			BattleID:      b.id,
		})
		b.result.LeaderDamage = dealt.Dealt
		return
	}

	removed := r.deps.Removal.Remove(ctx, gs, removal.Request{
		TargetID:   b.targetID,
		SourceID:   b.attackerID,
		SourceSide: b.attacker,
		Cause:      removal.CauseBattle,
		BattleID:   b.id,
	})
	if removed.Success && !removed.Replaced {
		b.result.KO = append(b.result.KO, b.targetID)
	}
}

func (r *Resolver) cleanup(gs *state.GameState, b *battle) {
	r.deps.Effects.ExpireModifiers(gs, effects.Trigger{Kind: effects.TriggerBattleEnd, BattleID: b.id})

	r.logger.Info("battle resolved",
		zap.String("game_id", gs.GameID),
		zap.Int("battle_id", b.id),
		zap.String("winner", string(b.result.Winner)),
		zap.Int("attacker_power", b.result.AttackerPower),
		zap.Int("target_power", b.result.TargetPower),
		zap.Strings("ko", b.result.KO),
		zap.Int("leader_damage", b.result.LeaderDamage))
	r.deps.Bus.Publish(rules.NewEvent(gs.GameID, rules.BattleResolved{
		BattleID:      b.id,
		Winner:        string(b.result.Winner),
		AttackerPower: b.result.AttackerPower,
		TargetPower:   b.result.TargetPower,
		FinalTarget:   b.targetID,
		KO:            b.result.KO,
		LeaderDamage:  b.result.LeaderDamage,
	}))
}

// Power computes an instance's power from its definition or base override.
func (r *Resolver) Power(gs *state.GameState, instanceID string, isOwnerTurn bool) int {
	loc := zones.FindInstance(gs, instanceID)
	if loc == nil {
		return 0
	}
	base := r.deps.Cards.Meta(loc.Instance.CardID).Power
	if loc.Instance.BasePower != nil {
		base = *loc.Instance.BasePower
	}
	return r.deps.Effects.ComputedStat(gs, instanceID, state.StatPower, base, effects.StatOptions{IsOwnerTurn: isOwnerTurn})
}

func (r *Resolver) hasKeyword(gs *state.GameState, instanceID, keyword string) bool {
	loc := zones.FindInstance(gs, instanceID)
	if loc == nil {
		return false
	}
	return loc.Instance.HasKeyword(keyword) || r.deps.Cards.Meta(loc.Instance.CardID).HasKeyword(keyword)
}

func (r *Resolver) option(gs *state.GameState, inst *state.CardInstance) rules.ChoiceOption {
	meta := r.deps.Cards.Meta(inst.CardID)
	return rules.ChoiceOption{
		ID:     inst.InstanceID,
		CardID: inst.CardID,
		Label:  meta.Name,
		Value:  r.Power(gs, inst.InstanceID, false),
	}
}

func counterAbility(meta cards.Meta) (cards.Ability, bool) {
	if meta.Category != cards.CategoryEvent {
		return cards.Ability{}, false
	}
	abilities := meta.AbilitiesWith(cards.TimingCounter)
	if len(abilities) == 0 {
		return cards.Ability{}, false
	}
	return abilities[0], true
}

// restDon rests count active DON!! in the side's cost area.
func restDon(gs *state.GameState, side state.Side, count int) bool {
	active := gs.Players[side].ActiveDon()
	if len(active) < count {
		return false
	}
	for _, don := range active[:count] {
		don.State = state.Rested
	}
	return true
}
