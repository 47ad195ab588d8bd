package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"winwatch/internal/event"
	"winwatch/internal/storage"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteQueue struct {
	db     *sql.DB
	dbPath string
	log    *slog.Logger
}

func NewSQLiteQueue(dbPath string, logger *slog.Logger) storage.Queue {
	return &SQLiteQueue{dbPath: dbPath, log: logger}
}

// newWithDB wraps an already open handle. Init must not be called on it.
func newWithDB(db *sql.DB, logger *slog.Logger) *SQLiteQueue {
	return &SQLiteQueue{db: db, log: logger}
}

const createPendingTableSQL = `
CREATE TABLE IF NOT EXISTS pending_heartbeats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	bucket TEXT NOT NULL,
	client TEXT NOT NULL,
	hostname TEXT NOT NULL,
	type TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	duration_ns INTEGER NOT NULL DEFAULT 0,
	labels TEXT NOT NULL,
	pulsetime_ns INTEGER NOT NULL
);
`

const selectPendingSQL = `SELECT id, client, hostname, type, timestamp, duration_ns, labels, pulsetime_ns
	FROM pending_heartbeats`

func (s *SQLiteQueue) Init(ctx context.Context) error {
	dir := filepath.Dir(s.dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create queue directory %s: %w", dir, err)
	}

	s.log.Info("Opening heartbeat queue", "path", s.dbPath)
	db, err := sql.Open("sqlite3", s.dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s.db = db

	// One writer; the queue is tiny and sqlite serializes writes anyway.
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)
	s.db.SetConnMaxLifetime(time.Minute * 5)

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, createPendingTableSQL); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to create pending_heartbeats table: %w", err)
	}
	return nil
}

func (s *SQLiteQueue) Push(ctx context.Context, p storage.Pending) (int64, error) {
	labels, err := json.Marshal(p.Event.Labels)
	if err != nil {
		return 0, fmt.Errorf("failed to encode labels: %w", err)
	}
	query := `INSERT INTO pending_heartbeats (bucket, client, hostname, type, timestamp, duration_ns, labels, pulsetime_ns)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		p.Stream.BucketID(), p.Stream.Client, p.Stream.Hostname, p.Stream.Type,
		p.Event.Timestamp.UTC(), int64(p.Event.Duration), string(labels), int64(p.Pulsetime))
	if err != nil {
		return 0, fmt.Errorf("failed to insert heartbeat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

func (s *SQLiteQueue) Last(ctx context.Context) (*storage.Pending, error) {
	return s.one(ctx, selectPendingSQL+" ORDER BY id DESC LIMIT 1")
}

func (s *SQLiteQueue) Peek(ctx context.Context) (*storage.Pending, error) {
	return s.one(ctx, selectPendingSQL+" ORDER BY id ASC LIMIT 1")
}

func (s *SQLiteQueue) one(ctx context.Context, query string) (*storage.Pending, error) {
	var (
		p          storage.Pending
		durationNs int64
		pulseNs    int64
		labels     string
	)
	err := s.db.QueryRowContext(ctx, query).Scan(
		&p.ID, &p.Stream.Client, &p.Stream.Hostname, &p.Stream.Type,
		&p.Event.Timestamp, &durationNs, &labels, &pulseNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan heartbeat row: %w", err)
	}
	if err := json.Unmarshal([]byte(labels), &p.Event.Labels); err != nil {
		return nil, fmt.Errorf("failed to decode labels of heartbeat %d: %w", p.ID, err)
	}
	p.Event.Timestamp = p.Event.Timestamp.UTC()
	p.Event.Duration = time.Duration(durationNs)
	p.Pulsetime = time.Duration(pulseNs)
	return &p, nil
}

func (s *SQLiteQueue) Update(ctx context.Context, id int64, e event.Event) error {
	labels, err := json.Marshal(e.Labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_heartbeats SET timestamp = ?, duration_ns = ?, labels = ? WHERE id = ?`,
		e.Timestamp.UTC(), int64(e.Duration), string(labels), id)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("heartbeat %d not found", id)
	}
	return nil
}

func (s *SQLiteQueue) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_heartbeats WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete heartbeat %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteQueue) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_heartbeats`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count heartbeats: %w", err)
	}
	return n, nil
}

func (s *SQLiteQueue) Close() error {
	if s.db != nil {
		s.log.Debug("Closing heartbeat queue")
		return s.db.Close()
	}
	return nil
}
