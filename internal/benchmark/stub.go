package benchmark

import (
	"context"
	"sync"
	"time"
)

// Stub is an in-memory Service for demo mode and tests. Summaries are
// registered per invoice; unregistered invoices benchmark to all zeros.
type Stub struct {
	mu        sync.RWMutex
	summaries map[int64]*Summary
	ingested  map[int64]int
}

var _ Service = (*Stub)(nil)

// NewStub creates an empty benchmark stub.
func NewStub() *Stub {
	return &Stub{
		summaries: make(map[int64]*Summary),
		ingested:  make(map[int64]int),
	}
}

// SetSummary registers the summary returned for an invoice.
func (s *Stub) SetSummary(invoiceID int64, summary *Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[invoiceID] = summary
}

// IngestCount reports how many times ingestion ran for an invoice.
func (s *Stub) IngestCount(invoiceID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ingested[invoiceID]
}

func (s *Stub) IngestLineItems(ctx context.Context, invoiceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingested[invoiceID]++
	return nil
}

func (s *Stub) BenchmarkInvoice(ctx context.Context, invoiceID int64) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if summary, ok := s.summaries[invoiceID]; ok {
		cp := *summary
		cp.Lines = append([]Line(nil), summary.Lines...)
		return &cp, nil
	}
	return &Summary{ComputedAt: time.Now()}, nil
}
