package reporting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	delivery "github.com/Till-X/xiaozhi-sever-DIY/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("failed to open spool: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type collector struct {
	mu       sync.Mutex
	status   int
	requests int
	received []Record
}

func (c *collector) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.requests++

		var body struct {
			Reports []Record `json:"reports"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if c.status != 0 && c.status != http.StatusOK {
			w.WriteHeader(c.status)
			return
		}
		c.received = append(c.received, body.Reports...)
	}
}

func (c *collector) setStatus(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

func (c *collector) receivedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

func (c *collector) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

func TestChunkRecord(t *testing.T) {
	chunk := delivery.AudioChunk{
		Sentence: delivery.SentenceLast,
		Frames:   [][]byte{{1}, {2}, {3}},
		Text:     "good night",
	}

	record := ChunkRecord("unit-7", chunk)
	if record.DeviceID != "unit-7" || record.Kind != "last" || record.FrameCount != 3 || record.Text != "good night" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestStoreSpoolsOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, kind := range []string{"first", "middle", "last"} {
		record := Record{ID: kind, DeviceID: "unit", Kind: kind, FrameCount: i, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := store.Append(ctx, record); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}

	records, err := store.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, kind := range []string{"first", "middle", "last"} {
		if records[i].Kind != kind {
			t.Errorf("record %d out of order: %+v", i, records[i])
		}
	}
	if !records[1].CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("timestamp did not round-trip: %v", records[1].CreatedAt)
	}

	if err := store.Remove(ctx, []string{"first", "middle"}); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	count, err := store.PendingCount(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record left, got %d", count)
	}
}

func TestStoreFillsMissingIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, Record{DeviceID: "unit", Kind: "middle", FrameCount: 1}); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	records, err := store.Pending(ctx, 1)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ID == "" {
		t.Error("expected a generated report id")
	}
	if records[0].CreatedAt.IsZero() {
		t.Error("expected a generated timestamp")
	}
}

func TestDrainPostsAndClearsSpool(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		if err := store.Append(ctx, Record{DeviceID: "unit", Kind: "middle", FrameCount: 2, Text: "hello"}); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}

	sink := &collector{}
	server := httptest.NewServer(sink.handler())
	t.Cleanup(server.Close)

	uploader := NewUploader(store, server.URL, WithMaxBatch(10), WithRequestTimeout(2*time.Second))
	if err := uploader.Drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	if sink.receivedCount() != 3 {
		t.Errorf("expected 3 reports at the collector, got %d", sink.receivedCount())
	}
	count, err := store.PendingCount(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected an empty spool, got %d records", count)
	}
}

func TestDrainKeepsSpoolOnRejection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, Record{DeviceID: "unit", Kind: "last", FrameCount: 1}); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	sink := &collector{}
	sink.setStatus(http.StatusInternalServerError)
	server := httptest.NewServer(sink.handler())
	t.Cleanup(server.Close)

	uploader := NewUploader(store, server.URL, WithRequestTimeout(2*time.Second))
	if err := uploader.Drain(ctx); err == nil {
		t.Fatal("expected an error from a rejecting collector")
	}
	count, err := store.PendingCount(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Fatalf("rejected reports must stay spooled, got %d", count)
	}

	sink.setStatus(http.StatusOK)
	if err := uploader.Drain(ctx); err != nil {
		t.Fatalf("retry drain failed: %v", err)
	}
	count, _ = store.PendingCount(ctx)
	if count != 0 {
		t.Errorf("expected the retry to clear the spool, got %d records", count)
	}
}

func TestDrainSkipsCollectorWhenEmpty(t *testing.T) {
	store := newTestStore(t)

	sink := &collector{}
	server := httptest.NewServer(sink.handler())
	t.Cleanup(server.Close)

	uploader := NewUploader(store, server.URL)
	if err := uploader.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if sink.requestCount() != 0 {
		t.Errorf("expected no collector request for an empty spool, got %d", sink.requestCount())
	}
}
