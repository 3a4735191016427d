//go:build integration

package risk

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shahram8708/Finvela/internal/testutil"
)

func seedInvoice(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(`
		INSERT INTO invoices (number, vendor_name, currency, total_amount)
		VALUES ('INV-1001', 'Acme Supplies', 'INR', 11800)
		RETURNING id
	`).Scan(&id)
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return id
}

func TestPostgresStore_UpsertAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	invoiceID := seedInvoice(t, db)

	if _, err := store.Get(ctx, invoiceID); !errors.Is(err, ErrNoScore) {
		t.Fatalf("expected ErrNoScore, got %v", err)
	}

	score := &Score{
		InvoiceID:     invoiceID,
		Composite:     0.45,
		Version:       Version,
		PolicyVersion: "seed",
		Contributors: []WaterfallEntry{
			{Name: MarketOutlier, Weight: 0.5, RawScore: 0.4, Contribution: 0.2, Details: []byte(`{"topOutliers":[]}`)},
			{Name: Arithmetic, Weight: 0.2, RawScore: 1.0, Contribution: 0.2},
			{Name: GSTVendor, Weight: 0.1, RawScore: 0.5, Contribution: 0.05},
		},
		ComputedAt: time.Now().UTC(),
	}
	if err := store.Upsert(ctx, score); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.Get(ctx, invoiceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Composite != 0.45 || got.Version != Version || got.PolicyVersion != "seed" {
		t.Errorf("got %+v", got)
	}
	if len(got.Contributors) != 3 {
		t.Fatalf("got %d contributors, want 3", len(got.Contributors))
	}
	// Ordered by |contribution| descending, insertion order on ties.
	if got.Contributors[0].Name != MarketOutlier || got.Contributors[1].Name != Arithmetic {
		t.Errorf("contributor order: %s, %s, %s",
			got.Contributors[0].Name, got.Contributors[1].Name, got.Contributors[2].Name)
	}
	if string(got.Contributors[0].Details) != `{"topOutliers": []}` &&
		string(got.Contributors[0].Details) != `{"topOutliers":[]}` {
		t.Errorf("details = %s", got.Contributors[0].Details)
	}
}

func TestPostgresStore_RerunReplacesRow(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	invoiceID := seedInvoice(t, db)

	first := &Score{
		InvoiceID:     invoiceID,
		Composite:     0.2,
		Version:       Version,
		PolicyVersion: "seed",
		Contributors: []WaterfallEntry{
			{Name: MarketOutlier, Weight: 0.5, RawScore: 0.4, Contribution: 0.2},
			{Name: Duplicate, Weight: 0, RawScore: 0, Contribution: 0},
		},
		ComputedAt: time.Now().UTC(),
	}
	if err := store.Upsert(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := &Score{
		InvoiceID:     invoiceID,
		Composite:     0.9,
		Version:       Version,
		PolicyVersion: "2026-q1",
		Contributors: []WaterfallEntry{
			{Name: Arithmetic, Weight: 0.9, RawScore: 1.0, Contribution: 0.9},
		},
		ComputedAt: time.Now().UTC(),
	}
	if err := store.Upsert(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM risk_scores WHERE invoice_id = $1`, invoiceID).Scan(&rows); err != nil {
		t.Fatalf("count scores: %v", err)
	}
	if rows != 1 {
		t.Errorf("risk_scores has %d rows for invoice, want 1", rows)
	}

	got, err := store.Get(ctx, invoiceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Composite != 0.9 || got.PolicyVersion != "2026-q1" {
		t.Errorf("got %+v, want the second run's values", got)
	}
	if len(got.Contributors) != 1 || got.Contributors[0].Name != Arithmetic {
		t.Errorf("leftover contributors from first run: %+v", got.Contributors)
	}
}
