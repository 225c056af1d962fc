package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Uploader periodically posts spooled reports to the collector.
type Uploader struct {
	store    *Store
	endpoint string
	client   *http.Client
	interval time.Duration
	maxBatch int
}

type UploaderOption func(*Uploader)

// WithDrainInterval sets the cadence of spool drains.
func WithDrainInterval(interval time.Duration) UploaderOption {
	return func(u *Uploader) { u.interval = interval }
}

// WithRequestTimeout bounds one collector request.
func WithRequestTimeout(timeout time.Duration) UploaderOption {
	return func(u *Uploader) { u.client.Timeout = timeout }
}

// WithMaxBatch caps how many reports one drain posts.
func WithMaxBatch(n int) UploaderOption {
	return func(u *Uploader) { u.maxBatch = n }
}

func NewUploader(store *Store, endpoint string, opts ...UploaderOption) *Uploader {
	uploader := &Uploader{
		store:    store,
		endpoint: endpoint,
		interval: 30 * time.Second,
		maxBatch: 64,
		client: &http.Client{
			Timeout: 5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
					return operationName + " " + request.URL.Path
				}),
			),
		},
	}
	for _, opt := range opts {
		opt(uploader)
	}
	return uploader
}

// Run drains the spool on a fixed cadence until the context ends. A failed
// drain keeps its reports spooled for the next tick.
func (u *Uploader) Run(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.Drain(ctx); err != nil {
				logger.Warn("Failed to drain delivery reports", "error", err)
			}
		}
	}
}

// Drain posts one batch of spooled reports and deletes what the collector
// accepted.
func (u *Uploader) Drain(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "drain delivery reports")
	defer span.End()

	records, err := u.store.Pending(ctx, u.maxBatch)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("reports.count", len(records)))
	if len(records) == 0 {
		return nil
	}

	body, err := json.Marshal(struct {
		Reports []Record `json:"reports"`
	}{Reports: records})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to encode reports: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to reach report collector: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := fmt.Errorf("report collector replied %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ids := make([]string, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}
	if err := u.store.Remove(ctx, ids); err != nil {
		span.RecordError(err)
		return err
	}
	logger.Debug("Drained delivery reports", "count", len(records))
	return nil
}
