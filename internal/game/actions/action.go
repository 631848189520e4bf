// Package actions is the boundary where card ability text becomes concrete
// state mutation. Actions are decoded and validated once, when card data is
// loaded, and executed against a game state by an Executor.
package actions

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/donbattle/optcg-server-go/internal/game/state"
)

// ErrInvalidAction is wrapped by every decode or validation failure.
var ErrInvalidAction = errors.New("invalid action")

// Kind tags an action variant.
type Kind string

const (
	KindNoop       Kind = "noop"
	KindModifyStat Kind = "modifyStat"
	KindPreventKO  Kind = "preventKO"
	KindGiveDon    Kind = "giveDon"
	KindMoveCard   Kind = "moveCard"
	KindDraw       Kind = "draw"
)

// Target selects the instance an action applies to.
type Target string

const (
	// TargetSelf is the card the ability belongs to.
	TargetSelf Target = "self"
	// TargetContext is the instance supplied by the caller, e.g. the
	// current battle target for a counter event.
	TargetContext Target = "context"
	// TargetOwnLeader is the controller's leader.
	TargetOwnLeader Target = "ownLeader"
)

func (t Target) valid() bool {
	return t == TargetSelf || t == TargetContext || t == TargetOwnLeader
}

// Action is one validated action variant.
type Action interface {
	Kind() Kind
	Validate() error
}

// Noop does nothing and always succeeds.
type Noop struct{}

func (Noop) Kind() Kind      { return KindNoop }
func (Noop) Validate() error { return nil }

// ModifyStat adds a stat modifier to the target.
type ModifyStat struct {
	Target   Target         `json:"target"`
	Stat     state.Stat     `json:"stat"`
	Mode     state.Mode     `json:"mode"`
	Amount   int            `json:"amount"`
	Duration state.Duration `json:"duration"`
}

func (ModifyStat) Kind() Kind { return KindModifyStat }

func (a ModifyStat) Validate() error {
	if !a.Target.valid() {
		return fmt.Errorf("%w: modifyStat target %q", ErrInvalidAction, a.Target)
	}
	if !a.Stat.Valid() {
		return fmt.Errorf("%w: modifyStat stat %q", ErrInvalidAction, a.Stat)
	}
	if a.Mode != state.ModeAdd && a.Mode != state.ModeSetBase {
		return fmt.Errorf("%w: modifyStat mode %q", ErrInvalidAction, a.Mode)
	}
	if !a.Duration.Valid() {
		return fmt.Errorf("%w: modifyStat duration %q", ErrInvalidAction, a.Duration)
	}
	return nil
}

// PreventKO keeps the target on the field. It only has meaning as part of a
// replacement ability, where succeeding replaces the removal.
type PreventKO struct{}

func (PreventKO) Kind() Kind      { return KindPreventKO }
func (PreventKO) Validate() error { return nil }

// GiveDon attaches active DON!! from the controller's cost area.
type GiveDon struct {
	Target Target `json:"target"`
	Count  int    `json:"count"`
}

func (GiveDon) Kind() Kind { return KindGiveDon }

func (a GiveDon) Validate() error {
	if !a.Target.valid() {
		return fmt.Errorf("%w: giveDon target %q", ErrInvalidAction, a.Target)
	}
	if a.Count <= 0 {
		return fmt.Errorf("%w: giveDon count must be positive", ErrInvalidAction)
	}
	return nil
}

// MoveCard moves the target to one of its owner's zones.
type MoveCard struct {
	Target Target     `json:"target"`
	To     state.Zone `json:"to"`
	Top    bool       `json:"top,omitempty"`
}

func (MoveCard) Kind() Kind { return KindMoveCard }

func (a MoveCard) Validate() error {
	if !a.Target.valid() {
		return fmt.Errorf("%w: moveCard target %q", ErrInvalidAction, a.Target)
	}
	if !a.To.Valid() {
		return fmt.Errorf("%w: moveCard zone %q", ErrInvalidAction, a.To)
	}
	return nil
}

// Draw moves cards from the top of the controller's deck to hand.
type Draw struct {
	Count int `json:"count"`
}

func (Draw) Kind() Kind { return KindDraw }

func (a Draw) Validate() error {
	if a.Count <= 0 {
		return fmt.Errorf("%w: draw count must be positive", ErrInvalidAction)
	}
	return nil
}

type envelope struct {
	Type Kind `json:"type"`
}

// Decode parses and validates one action from its JSON form, which carries
// the variant in a "type" field.
func Decode(raw json.RawMessage) (Action, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	var action Action
	var err error
	switch env.Type {
	case KindNoop:
		action = Noop{}
	case KindPreventKO:
		action = PreventKO{}
	case KindModifyStat:
		a := ModifyStat{Target: TargetSelf, Stat: state.StatPower, Mode: state.ModeAdd, Duration: state.DurationThisTurn}
		err = json.Unmarshal(raw, &a)
		action = a
	case KindGiveDon:
		a := GiveDon{Target: TargetSelf, Count: 1}
		err = json.Unmarshal(raw, &a)
		action = a
	case KindMoveCard:
		a := MoveCard{Target: TargetSelf}
		err = json.Unmarshal(raw, &a)
		action = a
	case KindDraw:
		a := Draw{Count: 1}
		err = json.Unmarshal(raw, &a)
		action = a
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidAction)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAction, env.Type, err)
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}

// DecodeList decodes a list of actions, failing on the first invalid one.
func DecodeList(raws []json.RawMessage) ([]Action, error) {
	out := make([]Action, 0, len(raws))
	for i, raw := range raws {
		action, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, action)
	}
	return out, nil
}
