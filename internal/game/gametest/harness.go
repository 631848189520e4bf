// Package gametest builds boards and scripted prompt responders for rules
// tests.
package gametest

import (
	"sync"
	"testing"

	"github.com/donbattle/optcg-server-go/internal/cards"
	"github.com/donbattle/optcg-server-go/internal/game/actions"
	"github.com/donbattle/optcg-server-go/internal/game/effects"
	"github.com/donbattle/optcg-server-go/internal/game/prompt"
	"github.com/donbattle/optcg-server-go/internal/game/rules"
	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/donbattle/optcg-server-go/internal/game/zones"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Player ids of the two seats.
const (
	Alice = "alice"
	Bob   = "bob"
)

// Responder answers one prompt.
type Responder func(p rules.PromptRequested) rules.Selection

// Harness wires the rules components around a fresh game state.
type Harness struct {
	t       *testing.T
	Logger  *zap.Logger
	State   *state.GameState
	Bus     *rules.EventBus
	Cards   *cards.Store
	Effects *effects.Engine
	Prompts *prompt.Registry
	Exec    *actions.Interpreter

	mu         sync.Mutex
	responders map[rules.ChoiceKind]Responder
	listening  bool
	requested  []rules.PromptRequested
	events     []rules.Event
}

// New creates a harness with Alice on the first side and Bob on the second.
// It is Alice's main phase of turn 1.
func New(t *testing.T) *Harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := rules.NewEventBus()
	engine := effects.NewEngine(logger)
	h := &Harness{
		t:          t,
		Logger:     logger,
		State:      state.NewGameState("test-game", Alice, Bob),
		Bus:        bus,
		Cards:      cards.NewStore(logger),
		Effects:    engine,
		Prompts:    prompt.NewRegistry("test-game", bus, logger),
		Exec:       actions.NewInterpreter(engine, logger),
		responders: make(map[rules.ChoiceKind]Responder),
	}
	bus.Subscribe(func(e rules.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, e)
	})
	return h
}

// Define registers a card definition.
func (h *Harness) Define(meta cards.Meta) {
	h.Cards.Put(meta)
}

// Character defines a plain character card.
func (h *Harness) Character(cardID string, power, counter int, keywords ...string) {
	h.Define(cards.Meta{
		CardID:   cardID,
		Name:     cardID,
		Category: cards.CategoryCharacter,
		Power:    power,
		Counter:  counter,
		Keywords: keywords,
	})
}

// LeaderCard defines a leader card.
func (h *Harness) LeaderCard(cardID string, power, life int) {
	h.Define(cards.Meta{
		CardID:   cardID,
		Name:     cardID,
		Category: cards.CategoryLeader,
		Power:    power,
		Life:     life,
	})
}

// Place creates an instance of cardID in the zone and returns its id. The
// instance carries its definition's keywords.
func (h *Harness) Place(side state.Side, zone state.Zone, cardID string) string {
	h.t.Helper()
	inst := zones.CreateAndAdd(h.State, cardID, side, zone)
	if inst == nil {
		h.t.Fatalf("cannot place %s in %s of side %s", cardID, zone, side)
	}
	inst.Keywords = append([]string(nil), h.Cards.Meta(cardID).Keywords...)
	return inst.InstanceID
}

// PlaceRested places a rested instance.
func (h *Harness) PlaceRested(side state.Side, zone state.Zone, cardID string) string {
	id := h.Place(side, zone, cardID)
	h.Rest(id)
	return id
}

// Life stacks the given cards into the side's life, first id on top.
func (h *Harness) Life(side state.Side, cardIDs ...string) {
	for _, cardID := range cardIDs {
		h.Place(side, state.ZoneLife, cardID)
	}
}

// Don adds active DON!! to the side's cost area.
func (h *Harness) Don(side state.Side, count int) {
	for i := 0; i < count; i++ {
		h.Place(side, state.ZoneCostArea, state.DonCardID)
	}
}

// Rest rests an instance.
func (h *Harness) Rest(instanceID string) {
	h.t.Helper()
	if !zones.SetActivity(h.State, instanceID, state.Rested) {
		h.t.Fatalf("instance %s not found", instanceID)
	}
}

// Find returns the location of an instance or nil.
func (h *Harness) Find(instanceID string) *zones.Location {
	return zones.FindInstance(h.State, instanceID)
}

// Zone returns the instances in a zone.
func (h *Harness) Zone(side state.Side, zone state.Zone) []*state.CardInstance {
	return h.State.Players[side].ZoneSlice(zone)
}

// CardIDs returns the card ids in a zone, in zone order.
func (h *Harness) CardIDs(side state.Side, zone state.Zone) []string {
	var out []string
	for _, inst := range h.Zone(side, zone) {
		out = append(out, inst.CardID)
	}
	return out
}

// Respond installs a scripted answer for a prompt kind. Prompts of kinds
// without a responder are declined. Until the first call no prompt listener
// exists and every prompt resolves empty on its own.
func (h *Harness) Respond(kind rules.ChoiceKind, responder Responder) {
	h.mu.Lock()
	h.responders[kind] = responder
	listening := h.listening
	h.listening = true
	h.mu.Unlock()

	if listening {
		return
	}
	rules.On(h.Bus, func(_ rules.Event, p rules.PromptRequested) {
		h.mu.Lock()
		h.requested = append(h.requested, p)
		respond := h.responders[p.Choice.Kind]
		h.mu.Unlock()

		var selection rules.Selection
		if respond != nil {
			selection = respond(p)
		}
		if result := h.Prompts.SubmitChoice(p.ID, p.PlayerID, selection); !result.Success {
			h.t.Errorf("scripted answer to %s prompt rejected: %s", p.Choice.Kind, result.Reason)
		}
	})
}

// Choose answers prompts of kind with the given option ids.
func (h *Harness) Choose(kind rules.ChoiceKind, optionIDs ...string) {
	h.Respond(kind, func(rules.PromptRequested) rules.Selection {
		return rules.Selection{OptionIDs: optionIDs}
	})
}

// Answer answers prompts of kind with a named action.
func (h *Harness) Answer(kind rules.ChoiceKind, action string) {
	h.Respond(kind, func(rules.PromptRequested) rules.Selection {
		return rules.Selection{Action: action}
	})
}

// Requested returns the prompts seen by scripted responders.
func (h *Harness) Requested() []rules.PromptRequested {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]rules.PromptRequested(nil), h.requested...)
}

// Events returns every published event.
func (h *Harness) Events() []rules.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]rules.Event(nil), h.events...)
}

// EventTypes returns the types of every published event.
func (h *Harness) EventTypes() []rules.EventType {
	var out []rules.EventType
	for _, e := range h.Events() {
		out = append(out, e.Type)
	}
	return out
}

// AssertPartition fails the test if any instance id appears twice.
func (h *Harness) AssertPartition() {
	h.t.Helper()
	seen := make(map[string]bool)
	for _, loc := range zones.AllInstances(h.State) {
		if seen[loc.Instance.InstanceID] {
			h.t.Fatalf("instance %s held by more than one slot", loc.Instance.InstanceID)
		}
		seen[loc.Instance.InstanceID] = true
	}
}
