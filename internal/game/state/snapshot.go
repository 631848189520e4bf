package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// checksumVersion changes whenever the canonical representation changes.
const checksumVersion = 1

// CopyInstance returns a deep copy of a card instance.
func CopyInstance(card *CardInstance) *CardInstance {
	if card == nil {
		return nil
	}
	out := *card
	if card.BasePower != nil {
		power := *card.BasePower
		out.BasePower = &power
	}
	out.Keywords = append([]string(nil), card.Keywords...)
	out.Uses = card.Uses.Copy()
	return &out
}

func copyInstances(cards []*CardInstance) []*CardInstance {
	out := make([]*CardInstance, len(cards))
	for i, card := range cards {
		out[i] = CopyInstance(card)
	}
	return out
}

func copyPlayer(p *PlayerState) *PlayerState {
	if p == nil {
		return nil
	}
	return &PlayerState{
		PlayerID: p.PlayerID,
		Leader:   CopyInstance(p.Leader),
		Deck:     copyInstances(p.Deck),
		DonDeck:  copyInstances(p.DonDeck),
		Hand:     copyInstances(p.Hand),
		Trash:    copyInstances(p.Trash),
		Char:     copyInstances(p.Char),
		Stage:    CopyInstance(p.Stage),
		CostArea: copyInstances(p.CostArea),
		Life:     copyInstances(p.Life),
	}
}

// Clone returns a deep copy of the game state. The copy shares nothing with
// the original and is safe to hand to external renderers.
func (gs *GameState) Clone() *GameState {
	if gs == nil {
		return nil
	}
	out := *gs
	out.Players = [2]*PlayerState{copyPlayer(gs.Players[0]), copyPlayer(gs.Players[1])}
	out.ContinuousEffects = make([]*ContinuousEffect, len(gs.ContinuousEffects))
	for i, effect := range gs.ContinuousEffects {
		out.ContinuousEffects[i] = effect.Copy()
	}
	return &out
}

// Restore overwrites gs with a deep copy of snapshot. Pointers previously
// obtained from gs are stale afterwards.
func (gs *GameState) Restore(snapshot *GameState) {
	if gs == nil || snapshot == nil {
		return
	}
	*gs = *snapshot.Clone()
}

// Checksum computes a deterministic SHA-256 over the game state. Two states
// with the same checksum are indistinguishable to the rules engine.
func (gs *GameState) Checksum() string {
	sum := sha256.Sum256([]byte(gs.canonical()))
	return hex.EncodeToString(sum[:])
}

func (gs *GameState) canonical() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "V%d|GAME:%s|%d|%d|%s|%t|%d|%d|%d|%d\n",
		checksumVersion,
		gs.GameID,
		gs.Turn,
		gs.TurnPlayer,
		gs.Phase,
		gs.Over,
		gs.Winner,
		gs.NextInstanceID,
		gs.NextEffectSeq,
		gs.NextBattleID,
	)
	for side, p := range gs.Players {
		if p == nil {
			continue
		}
		fmt.Fprintf(&buf, "PLAYER:%d|%s\n", side, p.PlayerID)
		for _, zone := range AllZones {
			buf.WriteString("ZONE:" + string(zone) + "\n")
			// zone order is game-relevant (deck, life), so it is kept as is
			for _, card := range p.ZoneSlice(zone) {
				writeInstance(&buf, card)
			}
		}
	}
	for _, effect := range gs.ContinuousEffects {
		fmt.Fprintf(&buf, "EFFECT:%s|%d|%s|%s|%d|%s|%d|%s|%s|%s|%d|%s|%d|%d\n",
			effect.ID,
			effect.Seq,
			effect.Stat,
			effect.Mode,
			effect.Amount,
			effect.Selector,
			effect.PerUnit,
			strings.Join(effect.TargetIDs, ","),
			effect.Duration,
			effect.SourceID,
			effect.CreatedTurn,
			effect.CreatedPhase,
			effect.Side,
			effect.BattleID,
		)
	}
	return buf.String()
}

func writeInstance(buf *bytes.Buffer, card *CardInstance) {
	basePower := "-"
	if card.BasePower != nil {
		basePower = fmt.Sprintf("%d", *card.BasePower)
	}
	uses := ""
	if card.Uses != nil && len(card.Uses.Counters) > 0 {
		names := make([]string, 0, len(card.Uses.Counters))
		for name, counter := range card.Uses.Counters {
			names = append(names, fmt.Sprintf("%s=%d", name, counter.Count))
		}
		sort.Strings(names)
		uses = strings.Join(names, ",")
	}
	fmt.Fprintf(buf, "CARD:%s|%s|%d|%s|%s|%s|%d|%s|%t|%s\n",
		card.InstanceID,
		card.CardID,
		card.Owner,
		card.Zone,
		card.State,
		basePower,
		card.GivenDon,
		strings.Join(card.Keywords, ","),
		card.FaceUp,
		uses,
	)
}
