package wsrelay

import (
	"encoding/json"
	"time"

	"github.com/donbattle/optcg-server-go/internal/game/rules"
	"github.com/donbattle/optcg-server-go/internal/session"
)

// Client to server message types.
const (
	TypeCreateGame = "create_game"
	TypeJoinGame   = "join_game"
	TypeGetState   = "get_state"
	TypeGetStats   = "get_stats"
	TypeAttack     = "attack"
	TypeGiveDon    = "give_don"
	TypeEndTurn    = "end_turn"
	TypeAnswer     = "answer"
	TypeConcede    = "concede"
)

// Server to client message types.
const (
	TypeGameCreated  = "game_created"
	TypeGameState    = "game_state"
	TypeGameStats    = "game_stats"
	TypePrompt       = "prompt"
	TypeEvent        = "event"
	TypeActionResult = "action_result"
	TypeError        = "error"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Type     string          `json:"type"`
	GameID   string          `json:"game_id,omitempty"`
	PlayerID string          `json:"player_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// CreateGameData starts a match. The sender joins as the first player unless
// PlayerID names the second one.
type CreateGameData struct {
	GameID  string          `json:"game_id,omitempty"`
	Players [2]string       `json:"players"`
	Decks   [2]session.Deck `json:"decks"`
}

type GameCreatedData struct {
	GameID string `json:"game_id"`
}

type AttackData struct {
	AttackerID string `json:"attacker_id"`
	TargetID   string `json:"target_id"`
}

type GiveDonData struct {
	TargetID string `json:"target_id"`
}

type AnswerData struct {
	PromptID  string   `json:"prompt_id"`
	OptionIDs []string `json:"option_ids,omitempty"`
	Action    string   `json:"action,omitempty"`
}

// PromptData is the part of a prompt a player needs to answer it.
type PromptData struct {
	ID        string               `json:"id"`
	Kind      rules.ChoiceKind     `json:"kind"`
	Message   string               `json:"message"`
	Options   []rules.ChoiceOption `json:"options"`
	Actions   []string             `json:"actions,omitempty"`
	Min       int                  `json:"min"`
	Max       int                  `json:"max"`
	BattleID  int                  `json:"battle_id,omitempty"`
	Checksum  string               `json:"checksum,omitempty"`
	TimeoutMS int64                `json:"timeout_ms,omitempty"`
}

func promptData(id string, choice rules.ChoiceSpec, checksum string, timeout time.Duration) PromptData {
	return PromptData{
		ID:        id,
		Kind:      choice.Kind,
		Message:   choice.Message,
		Options:   choice.Options,
		Actions:   choice.Actions,
		Min:       choice.Min,
		Max:       choice.Max,
		BattleID:  choice.BattleID,
		Checksum:  checksum,
		TimeoutMS: timeout.Milliseconds(),
	}
}

type EventData struct {
	Type    rules.EventType `json:"type"`
	Payload rules.Payload   `json:"payload"`
}

// ActionResultData answers every player action. Detail carries the battle
// result for attacks.
type ActionResultData struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Detail  any    `json:"detail,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func encode(msgType, gameID, playerID string, data any) ([]byte, error) {
	msg := Message{Type: msgType, GameID: gameID, PlayerID: playerID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}
