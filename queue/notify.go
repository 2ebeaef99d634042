package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Notifier receives jobs as they reach a terminal state.
type Notifier interface {
	Notify(ctx context.Context, job Job) error
}

// notify fans the terminal snapshot out to the configured notifier.
// Delivery failures are logged, never propagated to the job.
func (q *Queue) notify(job Job) {
	if q.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := q.notifier.Notify(ctx, job); err != nil {
		q.logger.Warn("queue: notify failed", "id", job.ID, "error", err)
	}
}

// LogNotifier writes terminal jobs to the structured log. Useful as a
// default when no webhook is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, job Job) error {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("job finished",
		"id", job.ID,
		"status", job.Status,
		"customer", job.Customer,
		"ads_found", job.Collected.AdsFound,
	)
	return nil
}

// WebhookNotifier POSTs terminal jobs as JSON with retry and exponential
// backoff.
type WebhookNotifier struct {
	url        string
	client     *http.Client
	maxRetries int
	logger     *slog.Logger
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *WebhookNotifier) { w.maxRetries = n }
}

// WithWebhookClient overrides the HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *WebhookNotifier) { w.client = c }
}

// NewWebhookNotifier creates a notifier targeting the given URL.
func NewWebhookNotifier(url string, logger *slog.Logger, opts ...WebhookOption) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	w := &WebhookNotifier{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		logger:     logger,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

type webhookEnvelope struct {
	Event string `json:"event"`
	Job   Job    `json:"job"`
}

func (w *WebhookNotifier) Notify(ctx context.Context, job Job) error {
	body, err := json.Marshal(webhookEnvelope{Event: "job." + string(job.Status), Job: job})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			w.logger.Warn("webhook: request failed", "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook: status %d", resp.StatusCode)
		w.logger.Warn("webhook: bad status", "attempt", attempt+1, "status", resp.StatusCode)
	}
	return fmt.Errorf("webhook: all retries exhausted: %w", lastErr)
}
