package risk

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	scores map[int64]*Score // invoiceID → latest score
}

// NewMemoryStore creates an in-memory risk score store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scores: make(map[int64]*Score)}
}

// Upsert replaces the invoice's score record wholesale under one lock, so a
// concurrent Get sees either the full previous set or the full new one.
func (s *MemoryStore) Upsert(ctx context.Context, score *Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *score
	cp.Contributors = append([]WaterfallEntry(nil), score.Contributors...)
	s.scores[score.InvoiceID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, invoiceID int64) (*Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.scores[invoiceID]
	if !ok {
		return nil, ErrNoScore
	}
	cp := *score
	cp.Contributors = append([]WaterfallEntry(nil), score.Contributors...)
	return &cp, nil
}
