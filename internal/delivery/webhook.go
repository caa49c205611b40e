// Package delivery sends finished lead records to the Clay webhook.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/engager-cli/internal/model"
)

const (
	defaultBatchSize = 50
	maxLoggedBody    = 300
)

// Report summarizes a delivery.
type Report struct {
	Batches       int
	FailedBatches int
	Sent          int
	Failed        int
}

// Webhook posts record batches to a fixed URL.
type Webhook struct {
	url       string
	batchSize int
	http      *http.Client
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithBatchSize overrides the default of 50 records per request.
func WithBatchSize(n int) Option {
	return func(w *Webhook) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(w *Webhook) {
		w.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(w *Webhook) {
		if d > 0 {
			w.http = &http.Client{Timeout: d}
		}
	}
}

// NewWebhook creates a Webhook for url.
func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:       url,
		batchSize: defaultBatchSize,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Batch splits records into chunks of at most size.
func Batch[T any](records []T, size int) [][]T {
	if size <= 0 {
		size = defaultBatchSize
	}
	var out [][]T
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}

// Send posts records in batches. A failed batch is logged and counted but
// neither retried nor allowed to stop the remaining batches.
func (w *Webhook) Send(ctx context.Context, records []model.EnrichedRecord) Report {
	var rep Report
	if len(records) == 0 {
		zap.L().Info("delivery: no leads to send")
		return rep
	}

	batches := Batch(records, w.batchSize)
	rep.Batches = len(batches)
	zap.L().Info("delivery: sending leads",
		zap.Int("leads", len(records)),
		zap.Int("batches", len(batches)),
	)

	for i, batch := range batches {
		log := zap.L().With(zap.Int("batch", i+1), zap.Int("size", len(batch)))
		status, err := w.post(ctx, batch)
		if err != nil {
			rep.FailedBatches++
			rep.Failed += len(batch)
			log.Error("delivery: batch failed", zap.Int("status", status), zap.Error(err))
			continue
		}
		rep.Sent += len(batch)
		log.Info("delivery: batch sent", zap.Int("status", status))
	}
	return rep
}

func (w *Webhook) post(ctx context.Context, batch []model.EnrichedRecord) (int, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return 0, eris.Wrap(err, "delivery: marshal batch")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return 0, eris.Wrap(err, "delivery: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "delivery: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
		return resp.StatusCode, eris.Errorf("delivery: webhook returned status %d: %s", resp.StatusCode, string(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
