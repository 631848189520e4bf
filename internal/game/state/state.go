package state

import (
	"fmt"
	"strings"

	"github.com/donbattle/optcg-server-go/internal/game/counters"
)

// Side identifies one of the two seats of a match.
type Side int

const (
	SideFirst Side = iota
	SideSecond
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideFirst {
		return SideSecond
	}
	return SideFirst
}

// Valid reports whether s names one of the two seats.
func (s Side) Valid() bool {
	return s == SideFirst || s == SideSecond
}

func (s Side) String() string {
	switch s {
	case SideFirst:
		return "first"
	case SideSecond:
		return "second"
	}
	return fmt.Sprintf("SIDE_%d", int(s))
}

// Zone names a per-player location holding card instances.
type Zone string

const (
	ZoneLeader   Zone = "leader"
	ZoneDeck     Zone = "deck"
	ZoneDonDeck  Zone = "donDeck"
	ZoneHand     Zone = "hand"
	ZoneTrash    Zone = "trash"
	ZoneChar     Zone = "char"
	ZoneStage    Zone = "stage"
	ZoneCostArea Zone = "costArea"
	ZoneLife     Zone = "life"
)

// AllZones lists every zone in a fixed scan order.
var AllZones = []Zone{
	ZoneLeader,
	ZoneDeck,
	ZoneDonDeck,
	ZoneHand,
	ZoneTrash,
	ZoneChar,
	ZoneStage,
	ZoneCostArea,
	ZoneLife,
}

// SingleSlot reports whether the zone holds at most one instance.
func (z Zone) SingleSlot() bool {
	return z == ZoneLeader || z == ZoneStage
}

// OnField reports whether instances in the zone are on the field.
func (z Zone) OnField() bool {
	return z == ZoneLeader || z == ZoneChar || z == ZoneStage
}

// Valid reports whether z is a known zone.
func (z Zone) Valid() bool {
	for _, known := range AllZones {
		if z == known {
			return true
		}
	}
	return false
}

// Activity is the active/rested orientation of an instance.
type Activity string

const (
	Active Activity = "active"
	Rested Activity = "rested"
)

// Phase is the step of the turn currently in progress.
type Phase string

const (
	PhaseRefresh Phase = "refresh"
	PhaseDraw    Phase = "draw"
	PhaseDon     Phase = "don"
	PhaseMain    Phase = "main"
	PhaseEnd     Phase = "end"
)

// DonCardID is the card id used for DON!! instances.
const DonCardID = "DON"

// CardInstance is a single in-play occurrence of a card.
type CardInstance struct {
	InstanceID string
	CardID     string
	Owner      Side
	Zone       Zone
	State      Activity
	BasePower  *int // overrides the printed power when set
	GivenDon   int
	Keywords   []string
	FaceUp     bool
	Uses       *counters.Usage
}

// HasKeyword reports whether the instance carries the runtime keyword.
func (c *CardInstance) HasKeyword(keyword string) bool {
	if c == nil {
		return false
	}
	for _, k := range c.Keywords {
		if strings.EqualFold(strings.TrimSpace(k), keyword) {
			return true
		}
	}
	return false
}

// IsActive reports whether the instance is untapped.
func (c *CardInstance) IsActive() bool {
	return c != nil && c.State == Active
}

// PlayerState is everything one side owns.
type PlayerState struct {
	PlayerID string
	Leader   *CardInstance
	Deck     []*CardInstance
	DonDeck  []*CardInstance
	Hand     []*CardInstance
	Trash    []*CardInstance
	Char     []*CardInstance
	Stage    *CardInstance
	CostArea []*CardInstance
	Life     []*CardInstance // index 0 is the top of the stack
}

// NewPlayerState creates an empty player state for the given player id.
func NewPlayerState(playerID string) *PlayerState {
	return &PlayerState{
		PlayerID: playerID,
		Deck:     make([]*CardInstance, 0),
		DonDeck:  make([]*CardInstance, 0),
		Hand:     make([]*CardInstance, 0),
		Trash:    make([]*CardInstance, 0),
		Char:     make([]*CardInstance, 0),
		CostArea: make([]*CardInstance, 0),
		Life:     make([]*CardInstance, 0),
	}
}

// ZoneSlice returns the instances held in a multi-slot zone or a one-element
// view of a single-slot zone.
func (p *PlayerState) ZoneSlice(zone Zone) []*CardInstance {
	switch zone {
	case ZoneLeader:
		if p.Leader == nil {
			return nil
		}
		return []*CardInstance{p.Leader}
	case ZoneStage:
		if p.Stage == nil {
			return nil
		}
		return []*CardInstance{p.Stage}
	case ZoneDeck:
		return p.Deck
	case ZoneDonDeck:
		return p.DonDeck
	case ZoneHand:
		return p.Hand
	case ZoneTrash:
		return p.Trash
	case ZoneChar:
		return p.Char
	case ZoneCostArea:
		return p.CostArea
	case ZoneLife:
		return p.Life
	}
	return nil
}

// SetZoneSlice replaces the contents of a multi-slot zone.
func (p *PlayerState) SetZoneSlice(zone Zone, cards []*CardInstance) {
	switch zone {
	case ZoneDeck:
		p.Deck = cards
	case ZoneDonDeck:
		p.DonDeck = cards
	case ZoneHand:
		p.Hand = cards
	case ZoneTrash:
		p.Trash = cards
	case ZoneChar:
		p.Char = cards
	case ZoneCostArea:
		p.CostArea = cards
	case ZoneLife:
		p.Life = cards
	}
}

// ActiveDon returns the active DON!! instances in the cost area.
func (p *PlayerState) ActiveDon() []*CardInstance {
	var out []*CardInstance
	for _, don := range p.CostArea {
		if don.IsActive() {
			out = append(out, don)
		}
	}
	return out
}

// GameState is the authoritative state of a match. It is owned by a single
// session and has no internal locking.
type GameState struct {
	GameID            string
	Turn              int
	TurnPlayer        Side
	Phase             Phase
	Players           [2]*PlayerState
	ContinuousEffects []*ContinuousEffect
	NextInstanceID    int
	NextEffectSeq     int
	NextBattleID      int
	Over              bool
	Winner            Side
}

// NewGameState creates a game with two empty player states.
func NewGameState(gameID, firstPlayerID, secondPlayerID string) *GameState {
	return &GameState{
		GameID:            gameID,
		Turn:              1,
		TurnPlayer:        SideFirst,
		Phase:             PhaseMain,
		Players:           [2]*PlayerState{NewPlayerState(firstPlayerID), NewPlayerState(secondPlayerID)},
		ContinuousEffects: make([]*ContinuousEffect, 0),
	}
}

// Player returns the state for a side, or nil for an unknown side.
func (gs *GameState) Player(side Side) *PlayerState {
	if gs == nil || !side.Valid() {
		return nil
	}
	return gs.Players[side]
}

// SideOf returns the side whose player id matches.
func (gs *GameState) SideOf(playerID string) (Side, bool) {
	for i, p := range gs.Players {
		if p != nil && p.PlayerID == playerID {
			return Side(i), true
		}
	}
	return SideFirst, false
}

// IsTurnOf reports whether it is currently the given side's turn.
func (gs *GameState) IsTurnOf(side Side) bool {
	return gs.TurnPlayer == side
}

// AllocInstanceID hands out the next unique instance id.
func (gs *GameState) AllocInstanceID() string {
	gs.NextInstanceID++
	return fmt.Sprintf("i%d", gs.NextInstanceID)
}

// AllocEffectSeq hands out the next modifier sequence number.
func (gs *GameState) AllocEffectSeq() int {
	gs.NextEffectSeq++
	return gs.NextEffectSeq
}

// AllocBattleID hands out the next battle id.
func (gs *GameState) AllocBattleID() int {
	gs.NextBattleID++
	return gs.NextBattleID
}

// Declare the match over with the given winner.
func (gs *GameState) Declare(winner Side) {
	gs.Over = true
	gs.Winner = winner
}

// StripEffectsFor removes the instance id from every modifier's target list,
// dropping modifiers left with no targets. It returns the number of modifiers
// that referenced the id.
func (gs *GameState) StripEffectsFor(instanceID string) int {
	if gs == nil || instanceID == "" {
		return 0
	}
	touched := 0
	kept := gs.ContinuousEffects[:0]
	for _, effect := range gs.ContinuousEffects {
		if !effect.Targets(instanceID) {
			kept = append(kept, effect)
			continue
		}
		touched++
		remaining := make([]string, 0, len(effect.TargetIDs))
		for _, id := range effect.TargetIDs {
			if id != instanceID {
				remaining = append(remaining, id)
			}
		}
		if len(remaining) > 0 {
			effect.TargetIDs = remaining
			kept = append(kept, effect)
		}
	}
	for i := len(kept); i < len(gs.ContinuousEffects); i++ {
		gs.ContinuousEffects[i] = nil
	}
	gs.ContinuousEffects = kept
	return touched
}
