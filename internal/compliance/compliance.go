// Package compliance exposes the compliance-check store the risk pipeline
// reads from. How checks are computed is outside this service; the pipeline
// only consumes the latest result per check type.
package compliance

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// CheckType enumerates the compliance checks an invoice can carry.
type CheckType string

const (
	CheckArithmetic CheckType = "ARITHMETIC"
	CheckHSNRate    CheckType = "HSN_RATE"
	CheckGSTVendor  CheckType = "GST_VENDOR"
	CheckGSTCompany CheckType = "GST_COMPANY"
)

// CheckTypes lists all check types in reporting order.
var CheckTypes = []CheckType{CheckArithmetic, CheckHSNRate, CheckGSTVendor, CheckGSTCompany}

// Status is the enumerated outcome of a compliance check. Raw strings from
// upstream are normalized through ParseStatus at the store boundary so the
// rest of the pipeline only ever sees these variants.
type Status string

const (
	StatusPass     Status = "PASS"
	StatusWarn     Status = "WARN"
	StatusFail     Status = "FAIL"
	StatusError    Status = "ERROR"
	StatusNeedsAPI Status = "NEEDS_API"
	StatusUnknown  Status = "UNKNOWN"
)

// ParseStatus normalizes an upstream status string to a Status variant.
// Anything unrecognized maps to StatusUnknown.
func ParseStatus(s string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPass:
		return StatusPass
	case StatusWarn:
		return StatusWarn
	case StatusFail:
		return StatusFail
	case StatusError:
		return StatusError
	case StatusNeedsAPI:
		return StatusNeedsAPI
	default:
		return StatusUnknown
	}
}

// Check is the latest result of one compliance check for an invoice.
type Check struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoiceId"`
	Type      CheckType       `json:"type"`
	Status    Status          `json:"status"`
	Details   json.RawMessage `json:"details,omitempty"`
	CheckedAt time.Time       `json:"checkedAt"`
}

// Store reads compliance checks for the risk pipeline.
type Store interface {
	// ChecksFor returns the latest check per type for an invoice.
	// Types with no recorded check are absent from the map.
	ChecksFor(ctx context.Context, invoiceID int64) (map[CheckType]*Check, error)
}
