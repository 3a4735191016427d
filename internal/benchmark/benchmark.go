// Package benchmark defines the interface to the external market-price
// benchmark service. Outlier detection itself happens in that service;
// the risk pipeline only triggers line-item ingestion and reads summaries.
package benchmark

import (
	"context"
	"time"
)

// Line is one benchmarked line item with its outlier score.
type Line struct {
	Description  string  `json:"description,omitempty"`
	Quantity     float64 `json:"quantity,omitempty"`
	UnitPrice    float64 `json:"unitPrice,omitempty"`
	MarketPrice  float64 `json:"marketPrice,omitempty"`
	OutlierScore float64 `json:"outlierScore"`
}

// Summary is the benchmark result for one invoice.
type Summary struct {
	AvgOutlierScore float64   `json:"avgOutlierScore"`
	Lines           []Line    `json:"lines"`
	Currency        string    `json:"currency,omitempty"`
	ComputedAt      time.Time `json:"computedAt"`
}

// Service is the narrow collaborator interface the risk pipeline consumes.
type Service interface {
	// IngestLineItems pushes the invoice's line items into the benchmark
	// service so they are available for outlier analysis.
	IngestLineItems(ctx context.Context, invoiceID int64) error
	// BenchmarkInvoice computes (or fetches) the outlier summary.
	BenchmarkInvoice(ctx context.Context, invoiceID int64) (*Summary, error)
}
