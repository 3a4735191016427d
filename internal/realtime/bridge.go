package realtime

import (
	"context"

	"github.com/shahram8708/Finvela/internal/invoice"
)

// EventBridge decorates an invoice.EventStore so every appended event is
// also fanned out to the hub. The store write is authoritative: broadcast
// happens only after a successful append, and broadcast drops are invisible
// to the pipeline.
type EventBridge struct {
	inner invoice.EventStore
	hub   *Hub
}

var _ invoice.EventStore = (*EventBridge)(nil)

// NewEventBridge wraps the given store.
func NewEventBridge(inner invoice.EventStore, hub *Hub) *EventBridge {
	return &EventBridge{inner: inner, hub: hub}
}

func (b *EventBridge) Append(ctx context.Context, event *invoice.Event) error {
	if err := b.inner.Append(ctx, event); err != nil {
		return err
	}
	b.hub.Broadcast(event)
	return nil
}

func (b *EventBridge) List(ctx context.Context, invoiceID int64, limit int) ([]*invoice.Event, error) {
	return b.inner.List(ctx, invoiceID, limit)
}
