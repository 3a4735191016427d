// Package audit provides the append-only audit trail for risk runs.
// Logging is fire-and-forget from the pipeline's perspective: entries are
// batched asynchronously and a failed flush never fails a risk run.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is a single audit record.
type Entry struct {
	ID        int64           `json:"id"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  int64           `json:"entityId"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store persists audit entries in batches.
type Store interface {
	AppendBatch(ctx context.Context, entries []*Entry) error
	Query(ctx context.Context, entity string, entityID int64, limit int) ([]*Entry, error)
}

// Logger is the interface the risk pipeline logs through.
type Logger interface {
	// Log records an audit entry. data is marshaled to JSON; marshal
	// failures are swallowed after logging (best-effort trail).
	Log(action, entity string, entityID int64, data any)
}
