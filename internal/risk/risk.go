// Package risk implements the composite invoice risk scoring pipeline.
//
// Heterogeneous per-invoice signals (market-price outlier analysis and
// compliance check results) are combined into one bounded composite score
// with a weighted, ranked waterfall breakdown. The orchestrator drives the
// invoice risk lifecycle (PENDING → IN_PROGRESS → READY | ERROR), persists
// scores transactionally, and emits an append-only event and audit trail.
package risk

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Version tags the scoring algorithm in effect. Bump when the composite
// computation changes in a way that makes old scores incomparable.
const Version = "v1"

// ErrNoScore is returned when no score has been computed for an invoice yet.
var ErrNoScore = errors.New("no risk score computed")

// ContributorName identifies a risk signal. The set is fixed: the collector
// always produces exactly these six, in this order.
type ContributorName string

const (
	MarketOutlier ContributorName = "market_outlier"
	Arithmetic    ContributorName = "arithmetic"
	HSNRate       ContributorName = "hsn_rate"
	GSTVendor     ContributorName = "gst_vendor"
	GSTCompany    ContributorName = "gst_company"
	Duplicate     ContributorName = "duplicate"
)

// Contributor is one raw risk signal gathered for a single pipeline run.
// Contributors are transient: only the derived waterfall entries survive.
type Contributor struct {
	Name    ContributorName `json:"name"`
	Raw     float64         `json:"rawScore"`
	Details json.RawMessage `json:"details,omitempty"`
}

// WaterfallEntry is one ranked line of the composite score breakdown.
// RawScore is the clamped input and Contribution = Weight × RawScore.
type WaterfallEntry struct {
	Name         ContributorName `json:"name"`
	Weight       float64         `json:"weight"`
	RawScore     float64         `json:"rawScore"`
	Contribution float64         `json:"contribution"`
	Details      json.RawMessage `json:"details,omitempty"`
}

// Score is the persisted composite risk score for an invoice.
// At most one Score exists per invoice; recomputation updates it in place
// and atomically replaces its contributors.
type Score struct {
	InvoiceID     int64            `json:"invoiceId"`
	Composite     float64          `json:"composite"`
	Version       string           `json:"version"`
	PolicyVersion string           `json:"policyVersion"`
	Contributors  []WaterfallEntry `json:"contributors"`
	ComputedAt    time.Time        `json:"computedAt"`
}

// Store persists composite scores and their contributor breakdowns.
type Store interface {
	// Upsert inserts the score on first run or updates the existing row in
	// place, replacing the full contributor set in the same transaction.
	// A reader must never observe a partial or stale contributor set.
	Upsert(ctx context.Context, score *Score) error
	// Get returns the latest persisted score, or ErrNoScore.
	Get(ctx context.Context, invoiceID int64) (*Score, error)
}

// WeightResolver supplies the active weight-per-contributor mapping and the
// opaque policy version in effect. Implementations must be side-effect-free
// and cheap enough to call on every scoring run.
type WeightResolver interface {
	Resolve() (map[ContributorName]float64, string)
}
