package risk

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shahram8708/Finvela/internal/benchmark"
	"github.com/shahram8708/Finvela/internal/compliance"
	"github.com/shahram8708/Finvela/internal/invoice"
)

func setupCollector(t *testing.T) (*Collector, *invoice.MemoryStore, *benchmark.Stub, *compliance.MemoryStore) {
	t.Helper()
	invoices := invoice.NewMemoryStore()
	benchmarks := benchmark.NewStub()
	checks := compliance.NewMemoryStore()
	collector := NewCollector(invoices, benchmarks, checks, CollectorConfig{})
	return collector, invoices, benchmarks, checks
}

func TestCollect_FixedOrder(t *testing.T) {
	collector, invoices, benchmarks, _ := setupCollector(t)
	invoices.Put(&invoice.Invoice{ID: 1})
	benchmarks.SetSummary(1, &benchmark.Summary{AvgOutlierScore: 0.4})

	contributors, err := collector.Collect(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	want := []ContributorName{MarketOutlier, Arithmetic, HSNRate, GSTVendor, GSTCompany, Duplicate}
	if len(contributors) != len(want) {
		t.Fatalf("got %d contributors, want %d", len(contributors), len(want))
	}
	for i, name := range want {
		if contributors[i].Name != name {
			t.Errorf("contributors[%d] = %s, want %s", i, contributors[i].Name, name)
		}
	}
}

func TestCollect_MissingInvoice(t *testing.T) {
	collector, _, _, _ := setupCollector(t)

	_, err := collector.Collect(context.Background(), 404, nil)
	if !errors.Is(err, invoice.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCollect_MissingChecksScoreZero(t *testing.T) {
	collector, invoices, benchmarks, _ := setupCollector(t)
	invoices.Put(&invoice.Invoice{ID: 1})
	benchmarks.SetSummary(1, &benchmark.Summary{AvgOutlierScore: 0.4})

	contributors, err := collector.Collect(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	// Absent checks are not failures: every compliance contributor scores 0.
	for _, contrib := range contributors[1:5] {
		if contrib.Raw != 0 {
			t.Errorf("%s raw = %f, want 0 for absent check", contrib.Name, contrib.Raw)
		}
	}

	// Full pipeline with seed weights: only market_outlier contributes.
	composite, _ := ComputeComposite(contributors, DefaultWeights(), 8)
	if !almostEqual(composite, 0.20) {
		t.Errorf("composite = %f, want 0.20", composite)
	}
}

func TestCollect_FailingArithmeticCheck(t *testing.T) {
	collector, invoices, benchmarks, checks := setupCollector(t)
	invoices.Put(&invoice.Invoice{ID: 1})
	benchmarks.SetSummary(1, &benchmark.Summary{AvgOutlierScore: 0.4})
	checks.Record(1, compliance.CheckArithmetic, compliance.StatusFail, []byte(`{"delta":12.5}`))

	contributors, err := collector.Collect(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	arithmetic := contributors[1]
	if arithmetic.Raw != 1.0 {
		t.Errorf("arithmetic raw = %f, want 1.0 for FAIL", arithmetic.Raw)
	}
	if string(arithmetic.Details) != `{"delta":12.5}` {
		t.Errorf("arithmetic details = %s, want check details carried through", arithmetic.Details)
	}

	composite, _ := ComputeComposite(contributors, DefaultWeights(), 8)
	if !almostEqual(composite, 0.40) {
		t.Errorf("composite = %f, want 0.40", composite)
	}
}

func TestCollect_StatusMapping(t *testing.T) {
	tests := []struct {
		status compliance.Status
		want   float64
	}{
		{compliance.StatusPass, 0.0},
		{compliance.StatusWarn, 0.5},
		{compliance.StatusFail, 1.0},
		{compliance.StatusError, 1.0},
		{compliance.StatusNeedsAPI, 0.5},
		{compliance.StatusUnknown, 0.5},
	}

	for _, tt := range tests {
		collector, invoices, benchmarks, checks := setupCollector(t)
		invoices.Put(&invoice.Invoice{ID: 1})
		benchmarks.SetSummary(1, &benchmark.Summary{})
		checks.Record(1, compliance.CheckGSTVendor, tt.status, nil)

		contributors, err := collector.Collect(context.Background(), 1, nil)
		if err != nil {
			t.Fatalf("collect with %s: %v", tt.status, err)
		}
		if got := contributors[3].Raw; got != tt.want {
			t.Errorf("status %s → raw %f, want %f", tt.status, got, tt.want)
		}
	}
}

func TestCollect_LatestCheckWins(t *testing.T) {
	collector, invoices, benchmarks, checks := setupCollector(t)
	invoices.Put(&invoice.Invoice{ID: 1})
	benchmarks.SetSummary(1, &benchmark.Summary{})
	checks.Record(1, compliance.CheckHSNRate, compliance.StatusFail, nil)
	checks.Record(1, compliance.CheckHSNRate, compliance.StatusPass, nil)

	contributors, err := collector.Collect(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if contributors[2].Raw != 0 {
		t.Errorf("hsn_rate raw = %f, want 0 (latest check is PASS)", contributors[2].Raw)
	}
}

func TestCollect_MarketOutlierTopLines(t *testing.T) {
	invoices := invoice.NewMemoryStore()
	benchmarks := benchmark.NewStub()
	checks := compliance.NewMemoryStore()
	collector := NewCollector(invoices, benchmarks, checks, CollectorConfig{MaxContribs: 4})

	invoices.Put(&invoice.Invoice{ID: 1})
	benchmarks.SetSummary(1, &benchmark.Summary{
		AvgOutlierScore: 0.7,
		Currency:        "INR",
		ComputedAt:      time.Now(),
		Lines: []benchmark.Line{
			{Description: "low", OutlierScore: 0.1},
			{Description: "high", OutlierScore: 0.9},
			{Description: "mid", OutlierScore: 0.5},
		},
	})

	contributors, err := collector.Collect(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	var details outlierDetails
	if err := json.Unmarshal(contributors[0].Details, &details); err != nil {
		t.Fatalf("unmarshal outlier details: %v", err)
	}

	// MaxContribs 4 → top 2 lines, worst first.
	if len(details.TopOutliers) != 2 {
		t.Fatalf("got %d top outliers, want 2", len(details.TopOutliers))
	}
	if details.TopOutliers[0].Description != "high" || details.TopOutliers[1].Description != "mid" {
		t.Errorf("top outliers = [%s, %s], want [high, mid]",
			details.TopOutliers[0].Description, details.TopOutliers[1].Description)
	}
	if details.Currency != "INR" {
		t.Errorf("currency = %s, want INR", details.Currency)
	}
}

func TestCollect_TopKNeverBelowOne(t *testing.T) {
	invoices := invoice.NewMemoryStore()
	benchmarks := benchmark.NewStub()
	checks := compliance.NewMemoryStore()
	collector := NewCollector(invoices, benchmarks, checks, CollectorConfig{MaxContribs: 1})

	invoices.Put(&invoice.Invoice{ID: 1})
	benchmarks.SetSummary(1, &benchmark.Summary{
		Lines: []benchmark.Line{
			{Description: "a", OutlierScore: 0.2},
			{Description: "b", OutlierScore: 0.8},
		},
	})

	contributors, err := collector.Collect(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	var details outlierDetails
	if err := json.Unmarshal(contributors[0].Details, &details); err != nil {
		t.Fatalf("unmarshal outlier details: %v", err)
	}
	if len(details.TopOutliers) != 1 || details.TopOutliers[0].Description != "b" {
		t.Errorf("want exactly the single worst line, got %+v", details.TopOutliers)
	}
}

func TestCollect_PrecomputedSummarySkipsBenchmarkCall(t *testing.T) {
	collector, invoices, benchmarks, _ := setupCollector(t)
	invoices.Put(&invoice.Invoice{ID: 1})

	summary := &benchmark.Summary{AvgOutlierScore: 0.9}
	contributors, err := collector.Collect(context.Background(), 1, summary)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if contributors[0].Raw != 0.9 {
		t.Errorf("market_outlier raw = %f, want 0.9 from the passed summary", contributors[0].Raw)
	}
	if benchmarks.IngestCount(1) != 0 {
		t.Error("collector should not touch the benchmark service when a summary is supplied")
	}
}

func TestCollect_DuplicateStub(t *testing.T) {
	collector, invoices, benchmarks, _ := setupCollector(t)
	invoices.Put(&invoice.Invoice{ID: 1})
	benchmarks.SetSummary(1, &benchmark.Summary{})

	contributors, err := collector.Collect(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	dup := contributors[5]
	if dup.Name != Duplicate || dup.Raw != 0 {
		t.Errorf("duplicate stub = %+v, want raw 0", dup)
	}
	var payload map[string]string
	if err := json.Unmarshal(dup.Details, &payload); err != nil {
		t.Fatalf("unmarshal duplicate details: %v", err)
	}
	if payload["message"] == "" {
		t.Error("duplicate stub should explain itself in details")
	}
}
