package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shahram8708/Finvela/internal/idgen"
)

// EventType identifies a risk lifecycle milestone.
type EventType string

const (
	EventRiskStarted EventType = "RISK_STARTED"
	EventRiskSummary EventType = "RISK_SUMMARY"
	EventRiskReady   EventType = "RISK_READY"
	EventRiskError   EventType = "RISK_ERROR"
)

// Event is an immutable record of something that happened to an invoice.
// Events are append-only: they are never updated or deleted.
type Event struct {
	ID        string          `json:"id"`
	InvoiceID int64           `json:"invoiceId"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEvent builds an event with a fresh id and the payload marshaled to JSON.
func NewEvent(invoiceID int64, eventType EventType, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        idgen.WithPrefix("evt_"),
		InvoiceID: invoiceID,
		Type:      eventType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventStore persists invoice events.
type EventStore interface {
	Append(ctx context.Context, event *Event) error
	// List returns events for an invoice, most recent first, up to limit.
	List(ctx context.Context, invoiceID int64, limit int) ([]*Event, error)
}
