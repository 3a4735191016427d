package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shahram8708/Finvela/internal/metrics"
)

const (
	writerChanSize  = 1024
	writerBatchSize = 50
	writerFlushMs   = 500
)

// Writer asynchronously batches audit entries to a Store.
type Writer struct {
	store   Store
	logger  *slog.Logger
	ch      chan *Entry
	stop    chan struct{}
	running atomic.Bool
	dropped atomic.Int64
}

var _ Logger = (*Writer)(nil)

// NewWriter creates an async audit writer.
func NewWriter(store Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:  store,
		logger: logger,
		ch:     make(chan *Entry, writerChanSize),
		stop:   make(chan struct{}),
	}
}

// Log enqueues an audit entry. Non-blocking: drops and increments a counter
// if the channel is full.
func (w *Writer) Log(action, entity string, entityID int64, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		w.logger.Error("audit marshal failed", "action", action, "error", err)
		raw = []byte("{}")
	}
	entry := &Entry{
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Data:      raw,
		CreatedAt: time.Now().UTC(),
	}
	select {
	case w.ch <- entry:
	default:
		w.dropped.Add(1)
		metrics.AuditEntriesDropped.Inc()
	}
}

// Dropped returns the number of entries dropped due to a full channel.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// Start begins draining the channel and flushing batches. Call in a goroutine.
func (w *Writer) Start(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	ticker := time.NewTicker(writerFlushMs * time.Millisecond)
	defer ticker.Stop()

	var buf []*Entry

	for {
		select {
		case <-ctx.Done():
			w.flush(buf)
			return
		case <-w.stop:
			w.flush(buf)
			return
		case entry := <-w.ch:
			buf = append(buf, entry)
			if len(buf) >= writerBatchSize {
				w.flush(buf)
				buf = nil
			}
		case <-ticker.C:
			if len(buf) > 0 {
				w.flush(buf)
				buf = nil
			}
		}
	}
}

// Stop signals the writer to flush remaining entries and exit.
func (w *Writer) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

// Running reports whether the writer loop is active.
func (w *Writer) Running() bool {
	return w.running.Load()
}

func (w *Writer) flush(buf []*Entry) {
	if len(buf) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in audit writer flush", "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.store.AppendBatch(ctx, buf); err != nil {
		w.logger.Error("audit writer flush failed", "error", err, "count", len(buf))
	}
}
