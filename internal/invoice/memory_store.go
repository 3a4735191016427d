package invoice

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	invoices map[int64]*Invoice
}

// NewMemoryStore creates an in-memory invoice store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{invoices: make(map[int64]*Invoice)}
}

// Put inserts or replaces an invoice. Seeding helper for demo mode and tests;
// not part of the Store interface because the risk subsystem never creates invoices.
func (s *MemoryStore) Put(inv *Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *inv
	if cp.RiskStatus == "" {
		cp.RiskStatus = RiskPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	s.invoices[cp.ID] = &cp
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) SetRiskStatus(ctx context.Context, id int64, status RiskStatus, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.RiskStatus = status
	inv.RiskNotes = notes
	inv.UpdatedAt = time.Now()
	return nil
}

// MemoryEventStore is an in-memory implementation of EventStore.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[int64][]*Event // invoiceID → events in append order
}

// NewMemoryEventStore creates an in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[int64][]*Event)}
}

func (s *MemoryEventStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	s.events[event.InvoiceID] = append(s.events[event.InvoiceID], &cp)
	return nil
}

func (s *MemoryEventStore) List(ctx context.Context, invoiceID int64, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.events[invoiceID]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}

	result := make([]*Event, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		cp := *all[i]
		result = append(result, &cp)
	}
	return result, nil
}
