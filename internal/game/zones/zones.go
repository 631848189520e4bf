// Package zones owns the placement of card instances inside a game state.
//
// Every function reports failure through a nil or false result and leaves the
// state untouched when it fails, so callers branch on the result instead of
// recovering from errors.
package zones

import (
	"github.com/donbattle/optcg-server-go/internal/game/counters"
	"github.com/donbattle/optcg-server-go/internal/game/state"
)

// Location describes where an instance currently sits.
type Location struct {
	Instance *state.CardInstance
	Owner    state.Side
	Zone     state.Zone
	Index    int
}

// Position selects where an instance is inserted into an ordered zone.
type Position int

const (
	// Bottom appends after the existing instances.
	Bottom Position = iota
	// Top inserts before the existing instances.
	Top
)

// faceUpIn reports whether instances entering the zone are revealed.
func faceUpIn(zone state.Zone) bool {
	switch zone {
	case state.ZoneDeck, state.ZoneDonDeck, state.ZoneLife:
		return false
	}
	return true
}

// NewInstance builds an instance with a fresh id without placing it.
func NewInstance(gs *state.GameState, cardID string, side state.Side, zone state.Zone) *state.CardInstance {
	return &state.CardInstance{
		InstanceID: gs.AllocInstanceID(),
		CardID:     cardID,
		Owner:      side,
		Zone:       zone,
		State:      state.Active,
		FaceUp:     faceUpIn(zone),
		Uses:       counters.NewUsage(),
	}
}

// CanAdd reports whether the zone of the side can accept another instance.
func CanAdd(gs *state.GameState, side state.Side, zone state.Zone) bool {
	player := gs.Player(side)
	if player == nil || !zone.Valid() {
		return false
	}
	if zone == state.ZoneLeader {
		return player.Leader == nil
	}
	if zone == state.ZoneStage {
		return player.Stage == nil
	}
	return true
}

// CreateAndAdd constructs an instance of cardID and appends it to the zone.
func CreateAndAdd(gs *state.GameState, cardID string, side state.Side, zone state.Zone) *state.CardInstance {
	if gs == nil || cardID == "" || !CanAdd(gs, side, zone) {
		return nil
	}
	instance := NewInstance(gs, cardID, side, zone)
	if !AddInstance(gs, instance, side, zone, Bottom) {
		return nil
	}
	return instance
}

// AddInstance places an existing instance into a zone.
func AddInstance(gs *state.GameState, instance *state.CardInstance, side state.Side, zone state.Zone, pos Position) bool {
	if gs == nil || instance == nil || !CanAdd(gs, side, zone) {
		return false
	}
	player := gs.Players[side]
	instance.Owner = side
	instance.Zone = zone

	switch zone {
	case state.ZoneLeader:
		player.Leader = instance
	case state.ZoneStage:
		player.Stage = instance
	default:
		cards := player.ZoneSlice(zone)
		if pos == Top {
			cards = append([]*state.CardInstance{instance}, cards...)
		} else {
			cards = append(cards, instance)
		}
		player.SetZoneSlice(zone, cards)
	}
	return true
}

// FindInstance scans both sides' zones for the instance id.
func FindInstance(gs *state.GameState, instanceID string) *Location {
	if gs == nil || instanceID == "" {
		return nil
	}
	for i, player := range gs.Players {
		if player == nil {
			continue
		}
		for _, zone := range state.AllZones {
			for idx, card := range player.ZoneSlice(zone) {
				if card != nil && card.InstanceID == instanceID {
					return &Location{
						Instance: card,
						Owner:    state.Side(i),
						Zone:     zone,
						Index:    idx,
					}
				}
			}
		}
	}
	return nil
}

// RemoveInstance takes the instance out of its zone and returns it.
func RemoveInstance(gs *state.GameState, instanceID string) *state.CardInstance {
	loc := FindInstance(gs, instanceID)
	if loc == nil {
		return nil
	}
	player := gs.Players[loc.Owner]
	switch loc.Zone {
	case state.ZoneLeader:
		player.Leader = nil
	case state.ZoneStage:
		player.Stage = nil
	default:
		cards := player.ZoneSlice(loc.Zone)
		out := make([]*state.CardInstance, 0, len(cards)-1)
		out = append(out, cards[:loc.Index]...)
		out = append(out, cards[loc.Index+1:]...)
		player.SetZoneSlice(loc.Zone, out)
	}
	return loc.Instance
}

// MoveInstance moves an instance to a zone under a new identity: the returned
// instance has a fresh id, is active, carries no attached DON!! or usage, and
// every modifier that targeted the old id is gone.
func MoveInstance(gs *state.GameState, instanceID string, side state.Side, zone state.Zone) *state.CardInstance {
	return MoveInstanceAt(gs, instanceID, side, zone, Bottom)
}

// MoveInstanceAt is MoveInstance with an explicit insertion position.
func MoveInstanceAt(gs *state.GameState, instanceID string, side state.Side, zone state.Zone, pos Position) *state.CardInstance {
	loc := FindInstance(gs, instanceID)
	if loc == nil {
		return nil
	}
	// a single-slot destination may be occupied by the instance itself
	if !CanAdd(gs, side, zone) && !(loc.Owner == side && loc.Zone == zone) {
		return nil
	}

	old := RemoveInstance(gs, instanceID)
	gs.StripEffectsFor(instanceID)

	moved := NewInstance(gs, old.CardID, side, zone)
	moved.Keywords = append([]string(nil), old.Keywords...)
	AddInstance(gs, moved, side, zone, pos)
	return moved
}

// SetActivity flips an instance between active and rested without a zone
// change, so its identity is preserved.
func SetActivity(gs *state.GameState, instanceID string, activity state.Activity) bool {
	loc := FindInstance(gs, instanceID)
	if loc == nil {
		return false
	}
	loc.Instance.State = activity
	return true
}

// ReturnDon puts count DON!! cards into the side's cost area, rested.
func ReturnDon(gs *state.GameState, side state.Side, count int) int {
	if gs.Player(side) == nil || count <= 0 {
		return 0
	}
	for i := 0; i < count; i++ {
		don := NewInstance(gs, state.DonCardID, side, state.ZoneCostArea)
		don.State = state.Rested
		AddInstance(gs, don, side, state.ZoneCostArea, Bottom)
	}
	return count
}

// AllInstances lists every instance on both sides.
func AllInstances(gs *state.GameState) []Location {
	var out []Location
	for i, player := range gs.Players {
		if player == nil {
			continue
		}
		for _, zone := range state.AllZones {
			for idx, card := range player.ZoneSlice(zone) {
				out = append(out, Location{Instance: card, Owner: state.Side(i), Zone: zone, Index: idx})
			}
		}
	}
	return out
}
