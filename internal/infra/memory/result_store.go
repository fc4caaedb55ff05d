package memory

import (
	"context"
	"sort"
	"sync"

	"challenge-service/internal/domain"
)

// ResultStore keeps challenge results in memory; used when no database is configured.
type ResultStore struct {
	mu      sync.RWMutex
	results []domain.ChallengeResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) RecordResult(_ context.Context, result domain.ChallengeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *ResultStore) ListByUser(_ context.Context, userID string, limit int) ([]domain.ChallengeResult, error) {
	s.mu.RLock()
	out := make([]domain.ChallengeResult, 0)
	for _, r := range s.results {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every recorded result in insertion order.
func (s *ResultStore) All() []domain.ChallengeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ChallengeResult(nil), s.results...)
}
