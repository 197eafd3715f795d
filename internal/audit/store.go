package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

type Store interface {
	Record(ctx context.Context, e *Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

const defaultLimit = 100

// PostgresStore appends entries to the audit_log table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, e *Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	const q = `INSERT INTO audit_log (time, actor, action, detail) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := s.db.QueryRowContext(ctx, q, e.Time, e.Actor, e.Action, e.Detail).Scan(&e.ID); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	const q = `SELECT id, time, actor, action, detail FROM audit_log ORDER BY id DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Time, &e.Actor, &e.Action, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MemoryStore keeps a bounded ring of recent entries in memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	nextID  int64
	cap     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cap: 1000}
}

func (s *MemoryStore) Record(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	s.entries = append(s.entries, *e)
	if len(s.entries) > s.cap {
		s.entries = s.entries[len(s.entries)-s.cap:]
	}
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
