package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/cheese-arena/internal/domain"
)

// memoryRepository keeps records in process; used for memory:// URLs and tests.
type memoryRepository struct {
	mu    sync.RWMutex
	games map[string]*domain.GameRecord
	order []string
}

func NewMemoryRepository() Repository {
	return &memoryRepository{games: make(map[string]*domain.GameRecord)}
}

func (m *memoryRepository) InsertGame(ctx context.Context, rec *domain.GameRecord) error {
	if rec == nil {
		return ErrDuplicateGame
	}
	key := strings.TrimSpace(rec.ID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.games[key]; exists {
		return ErrDuplicateGame
	}
	m.games[key] = cloneRecord(rec)
	m.order = append(m.order, key)
	return nil
}

func (m *memoryRepository) GetGame(ctx context.Context, id string) (*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(g), nil
}

func (m *memoryRepository) ListGames(ctx context.Context, f Filter) ([]*domain.GameRecord, error) {
	m.mu.RLock()
	items := make([]*domain.GameRecord, 0, len(m.order))
	for _, id := range m.order {
		if g := m.games[id]; f.Match(g) {
			items = append(items, cloneRecord(g))
		}
	}
	m.mu.RUnlock()

	// newest first, insertion order breaks ties
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].StartedAt.After(items[j].StartedAt)
	})
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, nil
}

func (m *memoryRepository) Close() error { return nil }

func cloneRecord(g *domain.GameRecord) *domain.GameRecord {
	c := *g
	c.Moves = append([]domain.MoveRecord(nil), g.Moves...)
	return &c
}
