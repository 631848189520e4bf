package rules

import (
	"sync"
	"time"

	"github.com/donbattle/optcg-server-go/internal/game/state"
)

// EventType indicates the category of an engine event.
type EventType string

const (
	// Prompt lifecycle
	EventPrompt          EventType = "prompt"
	EventPromptAnswered  EventType = "promptAnswered"
	EventPromptCancelled EventType = "promptCancelled"
	EventPromptTimedOut  EventType = "promptTimedOut"

	// State events
	EventStateChange EventType = "stateChange"
	EventTurnEnded   EventType = "turnEnded"
	EventDefeat      EventType = "defeat"

	// Battle events
	EventBattleDeclared  EventType = "battleDeclared"
	EventBlockerDeclared EventType = "blockerDeclared"
	EventCounterApplied  EventType = "counterApplied"
	EventBattleResolved  EventType = "battleResolved"

	// Life and removal events
	EventLifeDamage      EventType = "lifeDamage"
	EventTriggerResolved EventType = "triggerResolved"
	EventRemoved         EventType = "removed"
	EventRemovalReplaced EventType = "removalReplaced"
)

// Payload is the closed set of event bodies. Each payload type reports the
// event type it travels under.
type Payload interface {
	EventType() EventType
}

// Event is a state change other subsystems may react to.
type Event struct {
	Type      EventType
	GameID    string
	Timestamp time.Time
	Payload   Payload
}

// NewEvent wraps a payload in an event stamped with the current time.
func NewEvent(gameID string, payload Payload) Event {
	return Event{
		Type:      payload.EventType(),
		GameID:    gameID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// PromptRequested asks a player for a decision.
type PromptRequested struct {
	ID        string
	PlayerID  string
	Choice    ChoiceSpec
	Snapshot  *state.GameState
	Checksum  string
	CreatedAt time.Time
	Timeout   time.Duration
}

func (PromptRequested) EventType() EventType { return EventPrompt }

// PromptAnswered reports an accepted answer.
type PromptAnswered struct {
	ID        string
	PlayerID  string
	Selection Selection
}

func (PromptAnswered) EventType() EventType { return EventPromptAnswered }

// PromptCancelled reports a prompt withdrawn before it was answered.
type PromptCancelled struct {
	ID       string
	PlayerID string
	Reason   string
}

func (PromptCancelled) EventType() EventType { return EventPromptCancelled }

// PromptTimedOut reports a prompt nobody answered in time.
type PromptTimedOut struct {
	ID       string
	PlayerID string
}

func (PromptTimedOut) EventType() EventType { return EventPromptTimedOut }

// StateChanged is published after every accepted player action.
type StateChanged struct {
	Reason   string
	Turn     int
	Checksum string
}

func (StateChanged) EventType() EventType { return EventStateChange }

// TurnEnded is published when a side hands the turn over.
type TurnEnded struct {
	Side state.Side
	Turn int
}

func (TurnEnded) EventType() EventType { return EventTurnEnded }

// Defeat is published when a side loses the match.
type Defeat struct {
	Loser  state.Side
	Winner state.Side
	Reason string
}

func (Defeat) EventType() EventType { return EventDefeat }

// BattleDeclared is published once the attacker has been rested.
type BattleDeclared struct {
	BattleID   int
	Side       state.Side
	AttackerID string
	TargetID   string
}

func (BattleDeclared) EventType() EventType { return EventBattleDeclared }

// BlockerDeclared is published when a blocker replaces the battle target.
type BlockerDeclared struct {
	BattleID  int
	BlockerID string
}

func (BlockerDeclared) EventType() EventType { return EventBlockerDeclared }

// CounterApplied is published for every counter card used in a battle.
type CounterApplied struct {
	BattleID int
	TargetID string
	CardID   string
	Amount   int
	Event    bool
}

func (CounterApplied) EventType() EventType { return EventCounterApplied }

// BattleResolved summarises a finished battle.
type BattleResolved struct {
	BattleID      int
	Winner        string
	AttackerPower int
	TargetPower   int
	FinalTarget   string
	KO            []string
	LeaderDamage  int
}

func (BattleResolved) EventType() EventType { return EventBattleResolved }

// LifeDamaged is published for each life card taken by damage.
type LifeDamaged struct {
	Side    state.Side
	CardID  string
	ToHand  bool
	Trigger bool
}

func (LifeDamaged) EventType() EventType { return EventLifeDamage }

// TriggerResolved is published after a life Trigger was activated.
type TriggerResolved struct {
	Side    state.Side
	CardID  string
	Success bool
}

func (TriggerResolved) EventType() EventType { return EventTriggerResolved }

// Removed is published when a fielded instance is trashed.
type Removed struct {
	InstanceID string
	CardID     string
	Side       state.Side
	Cause      string
	DonReturn  int
}

func (Removed) EventType() EventType { return EventRemoved }

// RemovalReplaced is published when a static ability replaced a removal.
type RemovalReplaced struct {
	InstanceID string
	CardID     string
	AbilityID  string
	Side       state.Side
}

func (RemovalReplaced) EventType() EventType { return EventRemovalReplaced }

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type
// filtering. Listeners run on the publishing goroutine, outside the bus lock,
// so a listener may publish or unsubscribe.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// On subscribes fn to the event type carried by payload type P. The callback
// only sees events whose payload really is a P.
func On[P Payload](bus *EventBus, fn func(Event, P)) int {
	if fn == nil {
		return -1
	}
	var zero P
	return bus.SubscribeTyped(zero.EventType(), func(e Event) {
		if payload, ok := e.Payload.(P); ok {
			fn(e, payload)
		}
	})
}

// Unsubscribe removes the listener identified by the provided handle.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// ListenerCount returns how many typed listeners are registered for the event
// type. Catch-all listeners are not counted: they observe, they never answer.
func (bus *EventBus) ListenerCount(eventType EventType) int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.typedListeners[eventType])
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	if event.Type == "" && event.Payload != nil {
		event.Type = event.Payload.EventType()
	}

	bus.mu.RLock()
	listeners := make([]Listener, 0, len(bus.listeners))
	for _, listener := range bus.listeners {
		listeners = append(listeners, listener)
	}
	typed := append([]TypedListener(nil), bus.typedListeners[event.Type]...)
	bus.mu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
	for _, listener := range typed {
		listener.Callback(event)
	}
}
