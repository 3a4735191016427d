package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shahram8708/Finvela/internal/benchmark"
	"github.com/shahram8708/Finvela/internal/compliance"
	"github.com/shahram8708/Finvela/internal/invoice"
)

// Default raw-score mapping for compliance check statuses.
const (
	DefaultCheckFailValue = 1.0
	DefaultCheckWarnValue = 0.5
)

var emptyDetails = json.RawMessage("{}")

// Collector gathers the fixed, ordered set of risk contributors for an
// invoice from the benchmark service and the compliance check store.
type Collector struct {
	invoices    invoice.Store
	benchmarks  benchmark.Service
	checks      compliance.Store
	maxContribs int
	failValue   float64
	warnValue   float64
}

// CollectorConfig tunes the collector. Zero values fall back to defaults
// (8 max contributors, fail 1.0, warn 0.5).
type CollectorConfig struct {
	MaxContribs int
	FailValue   float64
	WarnValue   float64
}

// NewCollector creates a contributor collector over the given collaborators.
func NewCollector(invoices invoice.Store, benchmarks benchmark.Service, checks compliance.Store, cfg CollectorConfig) *Collector {
	if cfg.MaxContribs <= 0 {
		cfg.MaxContribs = 8
	}
	if cfg.FailValue == 0 {
		cfg.FailValue = DefaultCheckFailValue
	}
	if cfg.WarnValue == 0 {
		cfg.WarnValue = DefaultCheckWarnValue
	}
	return &Collector{
		invoices:    invoices,
		benchmarks:  benchmarks,
		checks:      checks,
		maxContribs: cfg.MaxContribs,
		failValue:   cfg.FailValue,
		warnValue:   cfg.WarnValue,
	}
}

// outlierDetails is the audit payload attached to the market_outlier
// contributor: the worst line items plus benchmark metadata.
type outlierDetails struct {
	TopOutliers []benchmark.Line `json:"topOutliers"`
	Currency    string           `json:"currency,omitempty"`
	ComputedAt  time.Time        `json:"computedAt"`
}

// Collect gathers the six contributors for an invoice, in fixed order:
// market_outlier, arithmetic, hsn_rate, gst_vendor, gst_company, duplicate.
// A precomputed benchmark summary may be passed to avoid a second expensive
// benchmark call; pass nil to fetch one.
func (c *Collector) Collect(ctx context.Context, invoiceID int64, summary *benchmark.Summary) ([]Contributor, error) {
	if _, err := c.invoices.Get(ctx, invoiceID); err != nil {
		return nil, err
	}

	if summary == nil {
		var err error
		summary, err = c.benchmarks.BenchmarkInvoice(ctx, invoiceID)
		if err != nil {
			return nil, fmt.Errorf("benchmark invoice %d: %w", invoiceID, err)
		}
	}

	contributors := make([]Contributor, 0, 6)
	contributors = append(contributors, c.marketOutlier(summary))

	checks, err := c.checks.ChecksFor(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("load compliance checks for invoice %d: %w", invoiceID, err)
	}

	contributors = append(contributors,
		c.fromCheck(Arithmetic, checks[compliance.CheckArithmetic]),
		c.fromCheck(HSNRate, checks[compliance.CheckHSNRate]),
		c.fromCheck(GSTVendor, checks[compliance.CheckGSTVendor]),
		c.fromCheck(GSTCompany, checks[compliance.CheckGSTCompany]),
		Contributor{
			Name:    Duplicate,
			Raw:     0.0,
			Details: json.RawMessage(`{"message":"Duplicate detection pending implementation."}`),
		},
	)

	return contributors, nil
}

// marketOutlier builds the contributor from the aggregate outlier score,
// attaching the top maxContribs/2 (min 1) highest-scoring lines as detail.
func (c *Collector) marketOutlier(summary *benchmark.Summary) Contributor {
	lines := append([]benchmark.Line(nil), summary.Lines...)
	// Stable: ties keep original line order.
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].OutlierScore > lines[j].OutlierScore
	})

	topK := c.maxContribs / 2
	if topK < 1 {
		topK = 1
	}
	if len(lines) > topK {
		lines = lines[:topK]
	}

	details, err := json.Marshal(outlierDetails{
		TopOutliers: lines,
		Currency:    summary.Currency,
		ComputedAt:  summary.ComputedAt,
	})
	if err != nil {
		details = emptyDetails
	}

	return Contributor{
		Name:    MarketOutlier,
		Raw:     summary.AvgOutlierScore,
		Details: details,
	}
}

// fromCheck maps one compliance check to a contributor. Absence of a check
// is not treated as failure: the contributor scores 0.
func (c *Collector) fromCheck(name ContributorName, check *compliance.Check) Contributor {
	if check == nil {
		return Contributor{Name: name, Raw: 0.0, Details: emptyDetails}
	}
	details := check.Details
	if len(details) == 0 {
		details = emptyDetails
	}
	return Contributor{
		Name:    name,
		Raw:     c.scoreForStatus(check.Status),
		Details: details,
	}
}

// scoreForStatus is total over the Status enum: every variant, including
// Unknown, maps to a defined raw score.
func (c *Collector) scoreForStatus(status compliance.Status) float64 {
	switch status {
	case compliance.StatusFail, compliance.StatusError:
		return c.failValue
	case compliance.StatusWarn, compliance.StatusNeedsAPI, compliance.StatusUnknown:
		return c.warnValue
	case compliance.StatusPass:
		return 0.0
	default:
		return c.warnValue
	}
}
