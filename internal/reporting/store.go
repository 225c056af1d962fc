// Package reporting spools per-chunk delivery reports locally and drains
// them to a collector endpoint. Reports survive restarts; a drain that
// fails leaves its batch spooled for the next attempt.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	delivery "github.com/Till-X/xiaozhi-sever-DIY/core"
)

// Record is one spooled delivery report.
type Record struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	Kind       string    `json:"kind"`
	Text       string    `json:"text,omitempty"`
	FrameCount int       `json:"frame_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkRecord builds the report for one delivered audio chunk.
func ChunkRecord(deviceID string, chunk delivery.AudioChunk) Record {
	return Record{
		DeviceID:   deviceID,
		Kind:       string(chunk.Sentence),
		Text:       chunk.Text,
		FrameCount: len(chunk.Frames),
	}
}

// Store is a sqlite-backed report spool.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates the spool database and its schema if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create spool directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping spool database: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare spool schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS delivery_reports (
    report_id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    text TEXT,
    frame_count INTEGER NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_created ON delivery_reports(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append spools one report. A missing ID or timestamp is filled in.
func (s *Store) Append(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_reports(report_id, device_id, kind, text, frame_count, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		record.ID, record.DeviceID, record.Kind, record.Text, record.FrameCount,
		record.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to spool report: %w", err)
	}
	return nil
}

// Pending returns up to limit spooled reports, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report_id, device_id, kind, text, frame_count, created_at
		 FROM delivery_reports ORDER BY created_at ASC, report_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list spooled reports: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		var created string
		if err := rows.Scan(&record.ID, &record.DeviceID, &record.Kind, &record.Text, &record.FrameCount, &created); err != nil {
			return nil, fmt.Errorf("failed to scan spooled report: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			record.CreatedAt = ts
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Remove deletes the reports the collector accepted.
func (s *Store) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM delivery_reports WHERE report_id = ?`, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to delete report %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// PendingCount reports how many spooled reports wait for upload.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_reports`).Scan(&count)
	return count, err
}
