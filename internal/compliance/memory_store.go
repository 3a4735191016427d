package compliance

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	checks map[int64][]*Check // invoiceID → checks in insertion order
	nextID int64
}

// NewMemoryStore creates an in-memory compliance check store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checks: make(map[int64][]*Check)}
}

// Record appends a check result. Seeding helper for demo mode and tests.
func (s *MemoryStore) Record(invoiceID int64, checkType CheckType, status Status, details []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.checks[invoiceID] = append(s.checks[invoiceID], &Check{
		ID:        s.nextID,
		InvoiceID: invoiceID,
		Type:      checkType,
		Status:    status,
		Details:   details,
		CheckedAt: time.Now(),
	})
}

func (s *MemoryStore) ChecksFor(ctx context.Context, invoiceID int64) (map[CheckType]*Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[CheckType]*Check)
	// Later entries win: the latest check per type is what the pipeline sees.
	for _, c := range s.checks[invoiceID] {
		cp := *c
		result[c.Type] = &cp
	}
	return result, nil
}
