package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shahram8708/Finvela/internal/audit"
	"github.com/shahram8708/Finvela/internal/benchmark"
	"github.com/shahram8708/Finvela/internal/compliance"
	"github.com/shahram8708/Finvela/internal/invoice"
	"github.com/shahram8708/Finvela/internal/metrics"
	"github.com/shahram8708/Finvela/internal/syncutil"
	"github.com/shahram8708/Finvela/internal/traces"
)

const (
	defaultWorkers    = 4
	defaultQueueSize  = 64
	defaultRunTimeout = 2 * time.Minute
)

// OrchestratorDeps are the collaborators the pipeline runs against, wired
// once at process start and passed down explicitly.
type OrchestratorDeps struct {
	Invoices   invoice.Store
	Events     invoice.EventStore
	Benchmarks benchmark.Service
	Checks     compliance.Store
	Scores     Store
	Weights    WeightResolver
	Audit      audit.Logger
	Logger     *slog.Logger
}

// OrchestratorConfig tunes the pipeline. Zero values fall back to defaults.
type OrchestratorConfig struct {
	Workers    int           // concurrent pipeline workers
	QueueSize  int           // pending trigger queue capacity
	MaxItems   int           // waterfall truncation size
	FailValue  float64       // raw score for FAIL/ERROR compliance checks
	WarnValue  float64       // raw score for WARN/NEEDS_API/unknown checks
	RunTimeout time.Duration // bound on one pipeline run
}

type runRequest struct {
	invoiceID int64
	actor     string
}

// Orchestrator drives the per-invoice risk lifecycle. Runs execute on a
// bounded worker pool detached from the triggering request, with at most
// one in-flight run per invoice.
type Orchestrator struct {
	deps      OrchestratorDeps
	collector *Collector
	gate      *syncutil.InflightGate
	tasks     chan runRequest
	workers   int
	maxItems  int
	timeout   time.Duration
}

// NewOrchestrator creates a risk pipeline orchestrator.
func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 8
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}

	return &Orchestrator{
		deps: deps,
		collector: NewCollector(deps.Invoices, deps.Benchmarks, deps.Checks, CollectorConfig{
			MaxContribs: cfg.MaxItems,
			FailValue:   cfg.FailValue,
			WarnValue:   cfg.WarnValue,
		}),
		gate:     syncutil.NewInflightGate(),
		tasks:    make(chan runRequest, cfg.QueueSize),
		workers:  cfg.Workers,
		maxItems: cfg.MaxItems,
		timeout:  cfg.RunTimeout,
	}
}

// Collector exposes the orchestrator's contributor collector.
func (o *Orchestrator) Collector() *Collector {
	return o.collector
}

// Start launches the worker pool. Workers run against ctx, not the contexts
// of triggering requests: a caller may return (and its context close) long
// before its detached run completes. Blocks until ctx is done.
func (o *Orchestrator) Start(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < o.workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case req := <-o.tasks:
					o.runGated(ctx, req)
				}
			}
		}()
	}
	for i := 0; i < o.workers; i++ {
		<-done
	}
}

// Trigger requests an asynchronous risk run for an invoice and reports
// whether it was queued. Returns false when a run for the same invoice is
// already in flight (or queued), or when the queue is full. The caller
// should surface this as "busy", not as an error.
func (o *Orchestrator) Trigger(invoiceID int64, actor string) bool {
	key := strconv.FormatInt(invoiceID, 10)
	if !o.gate.TryAcquire(key) {
		metrics.RiskRunsTotal.WithLabelValues("busy").Inc()
		return false
	}

	select {
	case o.tasks <- runRequest{invoiceID: invoiceID, actor: actor}:
		return true
	default:
		o.gate.Release(key)
		metrics.RiskRunsTotal.WithLabelValues("busy").Inc()
		o.deps.Logger.Warn("risk run queue full", "invoice_id", invoiceID)
		return false
	}
}

func (o *Orchestrator) runGated(ctx context.Context, req runRequest) {
	defer o.gate.Release(strconv.FormatInt(req.invoiceID, 10))
	o.Run(ctx, req.invoiceID, req.actor)
}

// runOutcome is the success arm of a pipeline run: everything the READY
// transition and its events need.
type runOutcome struct {
	composite     float64
	waterfall     []WaterfallEntry
	policyVersion string
	summary       *benchmark.Summary
}

// Run executes the risk scoring workflow synchronously. It never returns a
// failure to the caller: the contract is that the invoice always ends in a
// terminal, inspectable state (READY or ERROR), not that the run succeeds.
func (o *Orchestrator) Run(ctx context.Context, invoiceID int64, actor string) {
	ctx, span := traces.StartSpan(ctx, "risk.run", traces.InvoiceID(invoiceID), traces.Actor(actor))
	defer span.End()

	started := time.Now()
	metrics.RiskRunsInflight.Inc()
	defer metrics.RiskRunsInflight.Dec()

	if _, err := o.deps.Invoices.Get(ctx, invoiceID); err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			// Nothing to mark: missing invoices are a no-op, not an error state.
			o.deps.Logger.Warn("risk pipeline invoked for missing invoice", "invoice_id", invoiceID)
			metrics.RiskRunsTotal.WithLabelValues("missing").Inc()
			return
		}
		o.deps.Logger.Error("risk pipeline could not resolve invoice", "invoice_id", invoiceID, "error", err)
		metrics.RiskRunsTotal.WithLabelValues("error").Inc()
		return
	}

	if err := o.begin(ctx, invoiceID, actor); err != nil {
		o.fail(ctx, invoiceID, err)
		metrics.RiskRunsTotal.WithLabelValues("error").Inc()
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	outcome, err := o.execute(runCtx, invoiceID)
	cancel()

	if err != nil {
		o.fail(ctx, invoiceID, err)
		metrics.RiskRunsTotal.WithLabelValues("error").Inc()
		return
	}

	o.finish(ctx, invoiceID, outcome)
	metrics.RiskRunsTotal.WithLabelValues("ready").Inc()
	metrics.RiskRunDuration.Observe(time.Since(started).Seconds())
	metrics.RiskComposite.Observe(outcome.composite)

	o.deps.Logger.Info("risk pipeline completed",
		"invoice_id", invoiceID,
		"composite", outcome.composite,
		"policy_version", outcome.policyVersion,
	)
}

// begin transitions the invoice to IN_PROGRESS, clears stale notes, and
// records the start of the run in the event and audit trails.
func (o *Orchestrator) begin(ctx context.Context, invoiceID int64, actor string) error {
	if err := o.deps.Invoices.SetRiskStatus(ctx, invoiceID, invoice.RiskInProgress, ""); err != nil {
		return fmt.Errorf("mark invoice %d in progress: %w", invoiceID, err)
	}

	if err := o.emit(ctx, invoiceID, invoice.EventRiskStarted, map[string]any{
		"invoice_id": invoiceID,
		"actor":      actor,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}

	o.deps.Audit.Log("risk_run_started", "invoice", invoiceID, map[string]any{"actor": actor})
	return nil
}

// execute runs the scoring stages and persists the result. Any failure here
// leaves the invoice in IN_PROGRESS for fail() to resolve; the score row is
// only touched inside the store's transaction, so a failed run never leaves
// a partial score visible.
func (o *Orchestrator) execute(ctx context.Context, invoiceID int64) (*runOutcome, error) {
	if err := o.deps.Benchmarks.IngestLineItems(ctx, invoiceID); err != nil {
		return nil, fmt.Errorf("ingest line items: %w", err)
	}

	summary, err := o.deps.Benchmarks.BenchmarkInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("benchmark invoice: %w", err)
	}

	contributors, err := o.collector.Collect(ctx, invoiceID, summary)
	if err != nil {
		return nil, fmt.Errorf("collect contributors: %w", err)
	}

	weights, policyVersion := o.deps.Weights.Resolve()
	composite, waterfall := ComputeComposite(contributors, weights, o.maxItems)

	score := &Score{
		InvoiceID:     invoiceID,
		Composite:     composite,
		Version:       Version,
		PolicyVersion: policyVersion,
		Contributors:  waterfall,
		ComputedAt:    time.Now().UTC(),
	}
	persistCtx, span := traces.StartSpan(ctx, "risk.persist",
		traces.InvoiceID(invoiceID), traces.Composite(composite), traces.PolicyVersion(policyVersion))
	err = o.deps.Scores.Upsert(persistCtx, score)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("persist risk score: %w", err)
	}

	return &runOutcome{
		composite:     composite,
		waterfall:     waterfall,
		policyVersion: policyVersion,
		summary:       summary,
	}, nil
}

// finish transitions the invoice to READY and emits the summary trail.
// Trail failures after the state transition are logged, not retried: the
// persisted score is already the source of truth.
func (o *Orchestrator) finish(ctx context.Context, invoiceID int64, outcome *runOutcome) {
	note := fmt.Sprintf("Composite risk score %.2f", outcome.composite)
	if err := o.deps.Invoices.SetRiskStatus(ctx, invoiceID, invoice.RiskReady, note); err != nil {
		o.fail(ctx, invoiceID, fmt.Errorf("mark invoice %d ready: %w", invoiceID, err))
		return
	}

	top := make([]map[string]any, 0, len(outcome.waterfall))
	for _, entry := range outcome.waterfall {
		top = append(top, map[string]any{
			"name":         entry.Name,
			"weight":       entry.Weight,
			"raw_score":    entry.RawScore,
			"contribution": entry.Contribution,
		})
	}

	if err := o.emit(ctx, invoiceID, invoice.EventRiskSummary, map[string]any{
		"invoice_id":        invoiceID,
		"composite":         outcome.composite,
		"avg_outlier_score": outcome.summary.AvgOutlierScore,
		"contributors":      top,
	}); err != nil {
		o.deps.Logger.Error("risk summary event failed", "invoice_id", invoiceID, "error", err)
	}
	if err := o.emit(ctx, invoiceID, invoice.EventRiskReady, map[string]any{
		"invoice_id":     invoiceID,
		"composite":      outcome.composite,
		"version":        Version,
		"policy_version": outcome.policyVersion,
	}); err != nil {
		o.deps.Logger.Error("risk ready event failed", "invoice_id", invoiceID, "error", err)
	}

	o.deps.Audit.Log("risk_run_completed", "invoice", invoiceID, map[string]any{
		"composite":    outcome.composite,
		"contributors": top,
	})
}

// fail is the explicit error branch of the lifecycle: the invoice moves to
// ERROR with the failure recorded as its notes. This path itself must not
// blow up; degraded reporting is logged and dropped, never raised.
func (o *Orchestrator) fail(ctx context.Context, invoiceID int64, runErr error) {
	o.deps.Logger.Error("risk pipeline failed", "invoice_id", invoiceID, "error", runErr)

	if _, err := o.deps.Invoices.Get(ctx, invoiceID); err != nil {
		o.deps.Logger.Error("could not reload invoice after pipeline failure",
			"invoice_id", invoiceID, "error", err)
		return
	}
	if err := o.deps.Invoices.SetRiskStatus(ctx, invoiceID, invoice.RiskError, runErr.Error()); err != nil {
		o.deps.Logger.Error("could not mark invoice errored", "invoice_id", invoiceID, "error", err)
		return
	}
	if err := o.emit(ctx, invoiceID, invoice.EventRiskError, map[string]any{
		"invoice_id": invoiceID,
		"error":      runErr.Error(),
	}); err != nil {
		o.deps.Logger.Error("risk error event failed", "invoice_id", invoiceID, "error", err)
	}
}

func (o *Orchestrator) emit(ctx context.Context, invoiceID int64, eventType invoice.EventType, payload map[string]any) error {
	event, err := invoice.NewEvent(invoiceID, eventType, payload)
	if err != nil {
		return err
	}
	if err := o.deps.Events.Append(ctx, event); err != nil {
		return fmt.Errorf("append %s event: %w", eventType, err)
	}
	return nil
}
