// Package invoice defines the invoice entity referenced by the risk
// pipeline, its risk lifecycle states, and the append-only event trail.
//
// The risk subsystem never creates or deletes invoices; it only reads
// them and advances risk_status/risk_notes through the Store.
package invoice

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an invoice does not exist.
var ErrNotFound = errors.New("invoice not found")

// RiskStatus is the risk lifecycle state of an invoice.
type RiskStatus string

const (
	// RiskPending is the implicit initial state: no run has happened yet.
	RiskPending    RiskStatus = "PENDING"
	RiskInProgress RiskStatus = "IN_PROGRESS"
	RiskReady      RiskStatus = "READY"
	RiskError      RiskStatus = "ERROR"
)

// Invoice is the external entity the risk pipeline operates on.
type Invoice struct {
	ID          int64      `json:"id"`
	Number      string     `json:"number"`
	VendorName  string     `json:"vendorName"`
	Currency    string     `json:"currency"`
	TotalAmount float64    `json:"totalAmount"`
	RiskStatus  RiskStatus `json:"riskStatus"`
	RiskNotes   string     `json:"riskNotes,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Store reads invoices and mutates their risk lifecycle fields.
type Store interface {
	Get(ctx context.Context, id int64) (*Invoice, error)
	// SetRiskStatus updates risk_status and replaces risk_notes.
	// An empty notes string clears the previous note.
	SetRiskStatus(ctx context.Context, id int64, status RiskStatus, notes string) error
}
