package match

import (
	"context"
	"errors"
	"sync"

	"github.com/mcdev12/shuuro/go/internal/models"
)

// ErrNotFound is returned when a match id is unknown.
var ErrNotFound = errors.New("match not found")

// Store is the durable document store for matches.
type Store interface {
	// LoadUnfinished returns every match whose status is below zero.
	LoadUnfinished(ctx context.Context) ([]models.Match, error)
	// Upsert stores m. A finished document is never replaced.
	Upsert(ctx context.Context, m models.Match) error
	// AppendMove adds one ply to the stage history and stores the clock it left.
	AppendMove(ctx context.Context, id string, ply models.Ply) error
	Exists(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (models.Match, error)
}

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]models.Match
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]models.Match)}
}

func (s *MemoryStore) LoadUnfinished(_ context.Context) ([]models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Match
	for _, m := range s.docs {
		if m.Status < 0 {
			out = append(out, copyMatch(m))
		}
	}
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, m models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.docs[m.ID]; ok && old.Status >= 0 {
		return nil
	}
	s.docs[m.ID] = copyMatch(m)
	return nil
}

func (s *MemoryStore) AppendMove(_ context.Context, id string, ply models.Ply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.docs[id]
	if !ok {
		return ErrNotFound
	}
	m = copyMatch(m)
	switch ply.Stage {
	case models.StageShop:
		m.History.Shop = append(m.History.Shop, ply.Move)
	case models.StageDeploy:
		m.History.Deploy = append(m.History.Deploy, ply.Move)
	default:
		m.History.Fight = append(m.History.Fight, ply.Move)
	}
	m.Clock = ply.Clock
	m.DrawOffers = [2]bool{}
	s.docs[id] = m
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[id]
	return ok, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.docs[id]
	if !ok {
		return models.Match{}, ErrNotFound
	}
	return copyMatch(m), nil
}

func copyMatch(m models.Match) models.Match {
	m.History = models.History{
		Shop:   cloneMoves(m.History.Shop),
		Deploy: cloneMoves(m.History.Deploy),
		Fight:  cloneMoves(m.History.Fight),
	}
	return m
}
