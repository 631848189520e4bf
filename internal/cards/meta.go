// Package cards holds the read-only card definitions. Definitions are loaded
// once, validated, and compiled into typed abilities before any game uses
// them.
package cards

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/donbattle/optcg-server-go/internal/game/actions"
)

// ErrInvalidCard is wrapped by every definition validation failure.
var ErrInvalidCard = errors.New("invalid card definition")

// Category is the printed card type.
type Category string

const (
	CategoryLeader    Category = "leader"
	CategoryCharacter Category = "character"
	CategoryEvent     Category = "event"
	CategoryStage     Category = "stage"
	CategoryDon       Category = "don"
)

// Timing is when an ability may apply.
type Timing string

const (
	TimingStatic  Timing = "static"
	TimingTrigger Timing = "trigger"
	TimingCounter Timing = "counter"
	TimingOnPlay  Timing = "onPlay"
	TimingMain    Timing = "main"
)

func (t Timing) valid() bool {
	switch t {
	case TimingStatic, TimingTrigger, TimingCounter, TimingOnPlay, TimingMain:
		return true
	}
	return false
}

// EventFamily names the event a static replacement ability watches for.
type EventFamily string

const (
	EventWouldBeRemovedByOpponentEffect EventFamily = "wouldBeRemovedByOpponentEffect"
	EventWouldBeKOd                     EventFamily = "wouldBeKOd"
)

func (e EventFamily) valid() bool {
	return e == EventWouldBeRemovedByOpponentEffect || e == EventWouldBeKOd
}

// Keywords with rules meaning.
const (
	KeywordBlocker      = "Blocker"
	KeywordTrigger      = "Trigger"
	KeywordDoubleAttack = "Double Attack"
	KeywordBanish       = "Banish"
	KeywordRush         = "Rush"
	KeywordUnblockable  = "Unblockable"
)

// Ability is a compiled card ability.
type Ability struct {
	ID          string
	Timing      Timing
	Event       EventFamily // static replacement abilities only
	Target      actions.Target
	OncePerTurn bool
	MaxTriggers int // zero means unlimited
	Cost        int // DON!! rested to activate, for counter events
	Actions     []actions.Action
}

// Meta is the static definition of a card.
type Meta struct {
	CardID      string
	Name        string
	Category    Category
	Power       int
	Cost        int
	Counter     int
	Life        int
	Keywords    []string
	Colors      []string
	Types       []string
	Text        string
	Abilities   []Ability
	Placeholder bool
}

// HasKeyword reports whether the printed keywords include keyword.
func (m Meta) HasKeyword(keyword string) bool {
	for _, k := range m.Keywords {
		if strings.EqualFold(strings.TrimSpace(k), keyword) {
			return true
		}
	}
	return false
}

// AbilitiesWith returns the abilities with the given timing.
func (m Meta) AbilitiesWith(timing Timing) []Ability {
	var out []Ability
	for _, ability := range m.Abilities {
		if ability.Timing == timing {
			out = append(out, ability)
		}
	}
	return out
}

// Placeholder is returned for card ids the store does not know.
func Placeholder(cardID string) Meta {
	return Meta{
		CardID:      cardID,
		Name:        "Unknown card",
		Placeholder: true,
	}
}

// Record is the serialized form of a card definition.
type Record struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  Category        `json:"category"`
	Power     int             `json:"power"`
	Cost      int             `json:"cost"`
	Counter   int             `json:"counter"`
	Life      int             `json:"life"`
	Keywords  []string        `json:"keywords"`
	Colors    []string        `json:"colors"`
	Types     []string        `json:"types"`
	Text      string          `json:"text"`
	Abilities []AbilityRecord `json:"abilities"`
}

// AbilityRecord is the serialized form of an ability.
type AbilityRecord struct {
	ID          string            `json:"id"`
	Timing      Timing            `json:"timing"`
	Event       EventFamily       `json:"event,omitempty"`
	Target      actions.Target    `json:"target,omitempty"`
	OncePerTurn bool              `json:"oncePerTurn,omitempty"`
	MaxTriggers int               `json:"maxTriggers,omitempty"`
	Cost        int               `json:"cost,omitempty"`
	Actions     []json.RawMessage `json:"actions"`
}

// Compile validates a record and builds its Meta.
func Compile(rec Record) (Meta, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return Meta{}, fmt.Errorf("%w: missing id", ErrInvalidCard)
	}
	switch rec.Category {
	case CategoryLeader, CategoryCharacter, CategoryEvent, CategoryStage, CategoryDon:
	default:
		return Meta{}, fmt.Errorf("%w: %s: unknown category %q", ErrInvalidCard, rec.ID, rec.Category)
	}
	if rec.Power < 0 || rec.Cost < 0 || rec.Counter < 0 || rec.Life < 0 {
		return Meta{}, fmt.Errorf("%w: %s: negative stat", ErrInvalidCard, rec.ID)
	}
	if rec.Category == CategoryLeader && rec.Life == 0 {
		return Meta{}, fmt.Errorf("%w: %s: leader without life", ErrInvalidCard, rec.ID)
	}

	meta := Meta{
		CardID:   rec.ID,
		Name:     rec.Name,
		Category: rec.Category,
		Power:    rec.Power,
		Cost:     rec.Cost,
		Counter:  rec.Counter,
		Life:     rec.Life,
		Keywords: append([]string(nil), rec.Keywords...),
		Colors:   append([]string(nil), rec.Colors...),
		Types:    append([]string(nil), rec.Types...),
		Text:     rec.Text,
	}
	for i, raw := range rec.Abilities {
		ability, err := compileAbility(raw)
		if err != nil {
			return Meta{}, fmt.Errorf("%s ability %d: %w", rec.ID, i, err)
		}
		if ability.ID == "" {
			ability.ID = fmt.Sprintf("%s#%d", rec.ID, i)
		}
		meta.Abilities = append(meta.Abilities, ability)
	}
	return meta, nil
}

func compileAbility(rec AbilityRecord) (Ability, error) {
	if !rec.Timing.valid() {
		return Ability{}, fmt.Errorf("%w: unknown timing %q", ErrInvalidCard, rec.Timing)
	}
	if rec.Event != "" && !rec.Event.valid() {
		return Ability{}, fmt.Errorf("%w: unknown event %q", ErrInvalidCard, rec.Event)
	}
	if rec.Timing == TimingStatic && rec.Event == "" {
		return Ability{}, fmt.Errorf("%w: static ability without event", ErrInvalidCard)
	}
	if rec.MaxTriggers < 0 || rec.Cost < 0 {
		return Ability{}, fmt.Errorf("%w: negative limit", ErrInvalidCard)
	}
	target := rec.Target
	if target == "" {
		target = actions.TargetSelf
	}
	list, err := actions.DecodeList(rec.Actions)
	if err != nil {
		return Ability{}, fmt.Errorf("%w: %v", ErrInvalidCard, err)
	}
	return Ability{
		ID:          rec.ID,
		Timing:      rec.Timing,
		Event:       rec.Event,
		Target:      target,
		OncePerTurn: rec.OncePerTurn,
		MaxTriggers: rec.MaxTriggers,
		Cost:        rec.Cost,
		Actions:     list,
	}, nil
}
