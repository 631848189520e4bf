package cards

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Source produces card records.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// Store is a concurrency-safe, read-mostly card definition lookup.
type Store struct {
	mu     sync.RWMutex
	cards  map[string]Meta
	logger *zap.Logger
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cards:  make(map[string]Meta),
		logger: logger,
	}
}

// Load compiles every record of src and replaces the store contents. If any
// record is invalid nothing is replaced and all failures are returned.
func (s *Store) Load(ctx context.Context, src Source) error {
	records, err := src.Records(ctx)
	if err != nil {
		return fmt.Errorf("load card records: %w", err)
	}

	compiled := make(map[string]Meta, len(records))
	var errs []error
	for _, rec := range records {
		meta, err := Compile(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := compiled[meta.CardID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate id %s", ErrInvalidCard, meta.CardID))
			continue
		}
		compiled[meta.CardID] = meta
	}
	if len(errs) > 0 {
		s.logger.Error("card definitions rejected", zap.Int("invalid", len(errs)), zap.Int("total", len(records)))
		return errors.Join(errs...)
	}

	s.mu.Lock()
	s.cards = compiled
	s.mu.Unlock()

	s.logger.Info("loaded card definitions", zap.Int("cards", len(compiled)))
	return nil
}

// Put adds or replaces a single definition.
func (s *Store) Put(meta Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[meta.CardID] = meta
}

// Meta returns the definition for cardID or a placeholder when unknown.
func (s *Store) Meta(cardID string) Meta {
	s.mu.RLock()
	meta, ok := s.cards[cardID]
	s.mu.RUnlock()
	if !ok {
		return Placeholder(cardID)
	}
	return meta
}

// Has reports whether cardID is defined.
func (s *Store) Has(cardID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cards[cardID]
	return ok
}

// Len returns the number of definitions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cards)
}
