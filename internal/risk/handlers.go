package risk

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shahram8708/Finvela/internal/invoice"
)

// Handler provides the HTTP surface of the risk pipeline: an asynchronous
// trigger and a read-only status snapshot.
type Handler struct {
	invoices invoice.Store
	scores   Store
	weights  WeightResolver
	orch     *Orchestrator
	logger   *slog.Logger
}

// NewHandler creates a risk HTTP handler.
func NewHandler(invoices invoice.Store, scores Store, weights WeightResolver, orch *Orchestrator, logger *slog.Logger) *Handler {
	return &Handler{invoices: invoices, scores: scores, weights: weights, orch: orch, logger: logger}
}

// RegisterRoutes sets up risk routes. triggerMW is applied to the trigger
// route only: it spawns background work, so it gets a tighter budget than
// the read-only status route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, triggerMW ...gin.HandlerFunc) {
	r.POST("/invoices/:id/risk/run", append(triggerMW, h.RunRisk)...)
	r.GET("/invoices/:id/risk", h.GetRisk)
}

// RunRisk handles POST /invoices/:id/risk/run. It queues an asynchronous
// run and returns immediately; completion (or failure) is observable via
// the status endpoint and the event trail.
func (h *Handler) RunRisk(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}

	inv, err := h.invoices.Get(c.Request.Context(), id)
	if err != nil {
		h.invoiceError(c, id, err)
		return
	}

	actor := c.GetHeader("X-Actor")
	if actor == "" {
		actor = "system"
	}

	if !h.orch.Trigger(inv.ID, actor) {
		c.JSON(http.StatusConflict, gin.H{
			"queued":     false,
			"invoice_id": inv.ID,
			"error":      "risk_run_in_progress",
			"message":    "A risk run for this invoice is already in flight",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": true, "invoice_id": inv.ID})
}

// GetRisk handles GET /invoices/:id/risk: a snapshot of the latest
// persisted state, including the active weight policy.
func (h *Handler) GetRisk(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}

	inv, err := h.invoices.Get(c.Request.Context(), id)
	if err != nil {
		h.invoiceError(c, id, err)
		return
	}

	weights, policyVersion := h.weights.Resolve()

	score, err := h.scores.Get(c.Request.Context(), inv.ID)
	if errors.Is(err, ErrNoScore) {
		c.JSON(http.StatusOK, gin.H{
			"invoice_id":     inv.ID,
			"computed":       false,
			"risk_status":    inv.RiskStatus,
			"risk_notes":     inv.RiskNotes,
			"weights":        weights,
			"policy_version": policyVersion,
		})
		return
	}
	if err != nil {
		h.logger.Error("risk score lookup failed", "invoice_id", inv.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "score_error", "message": "Failed to load risk score"})
		return
	}

	contributors := make([]gin.H, 0, len(score.Contributors))
	for _, entry := range score.Contributors {
		details := entry.Details
		if len(details) == 0 {
			details = json.RawMessage("{}")
		}
		contributors = append(contributors, gin.H{
			"name":         entry.Name,
			"weight":       entry.Weight,
			"raw_score":    entry.RawScore,
			"contribution": entry.Contribution,
			"details":      details,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"invoice_id":     inv.ID,
		"computed":       true,
		"risk_status":    inv.RiskStatus,
		"risk_notes":     inv.RiskNotes,
		"composite":      score.Composite,
		"version":        score.Version,
		"policy_version": score.PolicyVersion,
		"weights":        weights,
		"contributors":   contributors,
	})
}

func (h *Handler) invoiceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_invoice_id", "message": "Invoice id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *Handler) invoiceError(c *gin.Context, id int64, err error) {
	if errors.Is(err, invoice.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice_not_found", "invoice_id": id})
		return
	}
	h.logger.Error("invoice lookup failed", "invoice_id", id, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "invoice_error", "message": "Failed to load invoice"})
}
