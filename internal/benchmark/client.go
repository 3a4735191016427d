package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shahram8708/Finvela/internal/retry"
)

const (
	defaultTimeout = 15 * time.Second
	retryAttempts  = 3
	retryBaseDelay = 200 * time.Millisecond
)

// Client talks to the benchmark service over HTTP. A hung benchmark call
// would otherwise hang the whole risk run, so every request is bounded by
// the client timeout and the caller's context. Transient failures (network
// errors, 5xx) are retried with backoff; 4xx responses are not.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ Service = (*Client)(nil)

// NewClient creates an HTTP benchmark client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

func (c *Client) IngestLineItems(ctx context.Context, invoiceID int64) error {
	url := fmt.Sprintf("%s/invoices/%d/ingest", c.baseURL, invoiceID)

	return retry.Do(ctx, retryAttempts, retryBaseDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("benchmark ingest for invoice %d: %w", invoiceID, err)
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		err = fmt.Errorf("benchmark ingest for invoice %d: status %d", invoiceID, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Permanent(err)
		}
		return err
	})
}

func (c *Client) BenchmarkInvoice(ctx context.Context, invoiceID int64) (*Summary, error) {
	url := fmt.Sprintf("%s/invoices/%d/benchmark", c.baseURL, invoiceID)

	var summary Summary
	err := retry.Do(ctx, retryAttempts, retryBaseDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("benchmark summary for invoice %d: %w", invoiceID, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			err = fmt.Errorf("benchmark summary for invoice %d: status %d", invoiceID, resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Permanent(err)
			}
			return err
		}

		summary = Summary{}
		if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
			return retry.Permanent(fmt.Errorf("decode benchmark summary for invoice %d: %w", invoiceID, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("benchmark summary fetched",
		"invoice_id", invoiceID,
		"avg_outlier_score", summary.AvgOutlierScore,
		"lines", len(summary.Lines),
	)
	return &summary, nil
}
