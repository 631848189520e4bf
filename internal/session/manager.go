package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/donbattle/optcg-server-go/internal/cards"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrGameExists is returned when a game id is already in use.
	ErrGameExists = errors.New("game already exists")
	// ErrGameNotFound is returned for an unknown game id.
	ErrGameNotFound = errors.New("game not found")
)

// Manager keeps the running sessions by game id.
type Manager struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
	cards    *cards.Store
	opts     Options
}

// NewManager creates a manager whose sessions share the card store.
func NewManager(store *cards.Store, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = cards.NewStore(logger)
	}
	return &Manager{
		logger:   logger,
		sessions: make(map[string]*Session),
		cards:    store,
		opts:     opts,
	}
}

// Create starts a session under a fresh game id.
func (m *Manager) Create(firstPlayerID, secondPlayerID string) (*Session, error) {
	return m.CreateWithID(uuid.NewString(), firstPlayerID, secondPlayerID)
}

// CreateWithID starts a session under the given game id.
func (m *Manager) CreateWithID(gameID, firstPlayerID, secondPlayerID string) (*Session, error) {
	if gameID == "" {
		return nil, fmt.Errorf("gameID is required")
	}
	if firstPlayerID == "" || secondPlayerID == "" || firstPlayerID == secondPlayerID {
		return nil, fmt.Errorf("two distinct players required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[gameID]; exists {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrGameExists)
	}
	s := New(gameID, firstPlayerID, secondPlayerID, m.cards, m.opts, m.logger)
	m.sessions[gameID] = s

	m.logger.Info("game created",
		zap.String("game_id", gameID),
		zap.String("first", firstPlayerID),
		zap.String("second", secondPlayerID))
	return s, nil
}

// Get returns the session for the game id.
func (m *Manager) Get(gameID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[gameID]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrGameNotFound)
	}
	return s, nil
}

// Remove closes and forgets the session.
func (m *Manager) Remove(gameID string) error {
	m.mu.Lock()
	s, ok := m.sessions[gameID]
	delete(m.sessions, gameID)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("game %s: %w", gameID, ErrGameNotFound)
	}
	s.Close()
	m.logger.Info("game removed", zap.String("game_id", gameID))
	return m.saveReplay(s)
}

// saveReplay writes the session's replay when a replay directory is set.
func (m *Manager) saveReplay(s *Session) error {
	if m.opts.ReplayDir == "" || s.Replay().Size() == 0 {
		return nil
	}
	if err := s.Replay().SaveToFile(m.opts.ReplayDir); err != nil {
		return fmt.Errorf("game %s: %w", s.ID(), err)
	}
	m.logger.Info("saved replay",
		zap.String("game_id", s.ID()),
		zap.Int("frames", s.Replay().Size()),
		zap.String("directory", m.opts.ReplayDir))
	return nil
}

// IDs lists the running game ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes every session, typically on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		if err := m.saveReplay(s); err != nil {
			m.logger.Warn("saving replay failed", zap.Error(err))
		}
	}
	if len(sessions) > 0 {
		m.logger.Info("closed all games", zap.Int("count", len(sessions)))
	}
}
