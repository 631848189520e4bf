// Package wsrelay connects players to sessions over websockets. It forwards
// prompts to the player they are addressed to, relays answers back through
// SubmitChoice and broadcasts engine events and state to every client of a
// game.
package wsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/donbattle/optcg-server-go/internal/config"
	"github.com/donbattle/optcg-server-go/internal/game/rules"
	"github.com/donbattle/optcg-server-go/internal/session"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options configures connection limits.
type Options struct {
	ReadLimit      int64
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	SendBufferSize int
}

// OptionsFromConfig maps the websocket section of the server configuration.
func OptionsFromConfig(cfg config.WebSocketConfig) Options {
	return Options{
		ReadLimit:      cfg.ReadLimit,
		WriteTimeout:   cfg.WriteTimeout,
		PongTimeout:    cfg.PongTimeout,
		SendBufferSize: cfg.SendBufferSize,
	}
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 * 1024
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 64
	}
	return o
}

// Hub tracks connected clients and the games they watch.
type Hub struct {
	logger   *zap.Logger
	opts     Options
	manager  *session.Manager
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]bool
	watched map[string]bool
}

// NewHub creates a hub serving the manager's sessions.
func NewHub(manager *session.Manager, opts Options, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		opts:    opts.withDefaults(),
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*Client]bool),
		watched: make(map[string]bool),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := newClient(h, conn)
	h.register(client)

	go client.writePump()
	client.readPump()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("remote", c.conn.RemoteAddr().String()))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
		h.logger.Debug("client disconnected",
			zap.String("game_id", c.gameID()),
			zap.String("player_id", c.playerID()))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

// watch subscribes the hub to a session's bus once. The prompt subscription
// makes the hub the session's prompt responder.
func (h *Hub) watch(s *session.Session) {
	h.mu.Lock()
	if h.watched[s.ID()] {
		h.mu.Unlock()
		return
	}
	h.watched[s.ID()] = true
	h.mu.Unlock()

	gameID := s.ID()
	rules.On(s.Bus(), func(_ rules.Event, p rules.PromptRequested) {
		h.sendToPlayer(gameID, p.PlayerID, TypePrompt, promptData(p.ID, p.Choice, p.Checksum, p.Timeout))
	})
	s.Bus().Subscribe(func(e rules.Event) {
		switch payload := e.Payload.(type) {
		case rules.PromptRequested:
			return
		case rules.StateChanged:
			h.broadcast(gameID, TypeEvent, EventData{Type: e.Type, Payload: payload})
			h.broadcast(gameID, TypeGameState, s.Snapshot())
		default:
			h.broadcast(gameID, TypeEvent, EventData{Type: e.Type, Payload: payload})
		}
	})
}

func (h *Hub) gameClients(gameID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Client
	for c := range h.clients {
		if c.gameID() == gameID {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) broadcast(gameID, msgType string, data any) {
	frame, err := encode(msgType, gameID, "", data)
	if err != nil {
		h.logger.Error("encoding broadcast failed", zap.String("type", msgType), zap.Error(err))
		return
	}
	for _, c := range h.gameClients(gameID) {
		c.enqueue(frame)
	}
}

func (h *Hub) sendToPlayer(gameID, playerID, msgType string, data any) {
	frame, err := encode(msgType, gameID, playerID, data)
	if err != nil {
		h.logger.Error("encoding message failed", zap.String("type", msgType), zap.Error(err))
		return
	}
	delivered := false
	for _, c := range h.gameClients(gameID) {
		if c.playerID() == playerID {
			c.enqueue(frame)
			delivered = true
		}
	}
	if !delivered {
		h.logger.Debug("player not connected, message held",
			zap.String("game_id", gameID),
			zap.String("player_id", playerID),
			zap.String("type", msgType))
	}
}

var errNotJoined = errors.New("join a game first")

// session returns the game the client has joined.
func (h *Hub) session(c *Client) (*session.Session, error) {
	gameID := c.gameID()
	if gameID == "" {
		return nil, errNotJoined
	}
	return h.manager.Get(gameID)
}

func (h *Hub) handleMessage(c *Client, msg Message) {
	h.logger.Debug("message received",
		zap.String("type", msg.Type),
		zap.String("game_id", c.gameID()),
		zap.String("player_id", c.playerID()))

	var err error
	switch msg.Type {
	case TypeCreateGame:
		err = h.createGame(c, msg)
	case TypeJoinGame:
		err = h.joinGame(c, msg)
	case TypeGetState:
		err = h.sendState(c)
	case TypeGetStats:
		var s *session.Session
		if s, err = h.session(c); err == nil {
			c.send(TypeGameStats, s.Stats())
		}
	case TypeAttack:
		err = h.attack(c, msg)
	case TypeGiveDon:
		err = h.giveDon(c, msg)
	case TypeEndTurn:
		err = h.simple(c, TypeEndTurn, (*session.Session).EndTurn)
	case TypeConcede:
		err = h.simple(c, TypeConcede, (*session.Session).Concede)
	case TypeAnswer:
		err = h.answer(c, msg)
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}
	if err != nil {
		c.send(TypeError, ErrorData{Message: err.Error()})
	}
}

func (h *Hub) createGame(c *Client, msg Message) error {
	var data CreateGameData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return fmt.Errorf("decoding %s: %w", TypeCreateGame, err)
	}
	var (
		s   *session.Session
		err error
	)
	if data.GameID != "" {
		s, err = h.manager.CreateWithID(data.GameID, data.Players[0], data.Players[1])
	} else {
		s, err = h.manager.Create(data.Players[0], data.Players[1])
	}
	if err != nil {
		return err
	}
	h.watch(s)

	playerID := msg.PlayerID
	if playerID == "" {
		playerID = data.Players[0]
	}
	c.attach(s.ID(), playerID)
	c.send(TypeGameCreated, GameCreatedData{GameID: s.ID()})

	if res := s.Setup(data.Decks); !res.Success {
		_ = h.manager.Remove(s.ID())
		h.mu.Lock()
		delete(h.watched, s.ID())
		h.mu.Unlock()
		c.attach("", "")
		return fmt.Errorf("setting up game: %s", res.Reason)
	}
	return nil
}

func (h *Hub) joinGame(c *Client, msg Message) error {
	s, err := h.manager.Get(msg.GameID)
	if err != nil {
		return err
	}
	// TODO: bind player ids to authenticated connections. Until then any
	// client may join as either seat, so SubmitChoice's player check only
	// holds if the deployment authenticates in front of the relay.
	players := s.Players()
	if msg.PlayerID != players[0] && msg.PlayerID != players[1] {
		return fmt.Errorf("player %s is not in game %s", msg.PlayerID, msg.GameID)
	}
	h.watch(s)
	c.attach(s.ID(), msg.PlayerID)
	if err := h.sendState(c); err != nil {
		return err
	}
	// resend prompts raised while the player was away
	for _, p := range s.PendingPrompts(msg.PlayerID) {
		c.send(TypePrompt, promptData(p.ID, p.Choice, "", p.Timeout))
	}
	return nil
}

func (h *Hub) sendState(c *Client) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	c.send(TypeGameState, s.Snapshot())
	return nil
}

// attack runs on its own goroutine so the connection keeps reading while the
// battle waits for prompts.
func (h *Hub) attack(c *Client, msg Message) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var data AttackData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return fmt.Errorf("decoding %s: %w", TypeAttack, err)
	}
	go func(ctx context.Context, playerID string) {
		res := s.Attack(ctx, playerID, data.AttackerID, data.TargetID)
		c.send(TypeActionResult, ActionResultData{
			Action:  TypeAttack,
			Success: res.Success,
			Reason:  res.Reason,
			Detail:  res,
		})
	}(c.ctx, c.playerID())
	return nil
}

func (h *Hub) giveDon(c *Client, msg Message) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var data GiveDonData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return fmt.Errorf("decoding %s: %w", TypeGiveDon, err)
	}
	res := s.GiveDon(c.playerID(), data.TargetID)
	c.send(TypeActionResult, ActionResultData{Action: TypeGiveDon, Success: res.Success, Reason: res.Reason})
	return nil
}

func (h *Hub) simple(c *Client, action string, fn func(*session.Session, string) session.Result) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	res := fn(s, c.playerID())
	c.send(TypeActionResult, ActionResultData{Action: action, Success: res.Success, Reason: res.Reason})
	return nil
}

func (h *Hub) answer(c *Client, msg Message) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var data AnswerData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return fmt.Errorf("decoding %s: %w", TypeAnswer, err)
	}
	res := s.SubmitChoice(data.PromptID, c.playerID(), rules.Selection{
		OptionIDs: data.OptionIDs,
		Action:    data.Action,
	})
	c.send(TypeActionResult, ActionResultData{Action: TypeAnswer, Success: res.Success, Reason: res.Reason})
	return nil
}
