package passkey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is the store-level miss; the service maps it to the
// caller-facing credential error.
var ErrNotFound = errors.New("passkey credential not found")

// CredentialStore holds registered credentials keyed by id.
// Implementations must be safe for concurrent use.
type CredentialStore interface {
	Put(ctx context.Context, c *Credential) error
	Get(ctx context.Context, id string) (*Credential, error)
	Update(ctx context.Context, c *Credential) error
	// Delete reports whether the credential existed.
	Delete(ctx context.Context, id string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*Credential, error)
}

// MemoryCredentialStore is the in-process CredentialStore.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string]*Credential)}
}

func (s *MemoryCredentialStore) Put(ctx context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.creds[c.ID]; exists {
		return fmt.Errorf("credential %q already exists", c.ID)
	}
	copy := *c
	s.creds[c.ID] = &copy
	return nil
}

func (s *MemoryCredentialStore) Get(ctx context.Context, id string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *c
	return &copy, nil
}

func (s *MemoryCredentialStore) Update(ctx context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[c.ID]; !ok {
		return ErrNotFound
	}
	copy := *c
	s.creds[c.ID] = &copy
	return nil
}

func (s *MemoryCredentialStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.creds[id]
	delete(s.creds, id)
	return ok, nil
}

func (s *MemoryCredentialStore) ListByUser(ctx context.Context, userID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Credential
	for _, c := range s.creds {
		if c.UserID == userID {
			copy := *c
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PostgresCredentialStore persists credentials so registered passkeys
// survive restarts, unlike sessions.
type PostgresCredentialStore struct {
	db *sql.DB
}

func NewPostgresCredentialStore(db *sql.DB) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db}
}

func (s *PostgresCredentialStore) Put(ctx context.Context, c *Credential) error {
	const q = `
		INSERT INTO passkey_credentials (id, user_id, device_label, fingerprint, public_key, challenge, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, q, c.ID, c.UserID, c.DeviceLabel, c.Fingerprint, c.PublicKey, c.Challenge, c.CreatedAt, c.LastUsedAt)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresCredentialStore) Get(ctx context.Context, id string) (*Credential, error) {
	const q = `SELECT id, user_id, device_label, fingerprint, public_key, challenge, created_at, last_used_at FROM passkey_credentials WHERE id = $1`
	c := &Credential{}
	err := s.db.QueryRowContext(ctx, q, id).
		Scan(&c.ID, &c.UserID, &c.DeviceLabel, &c.Fingerprint, &c.PublicKey, &c.Challenge, &c.CreatedAt, &c.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return c, nil
}

func (s *PostgresCredentialStore) Update(ctx context.Context, c *Credential) error {
	const q = `UPDATE passkey_credentials SET challenge = $2, last_used_at = $3 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, c.ID, c.Challenge, c.LastUsedAt)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresCredentialStore) Delete(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM passkey_credentials WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresCredentialStore) ListByUser(ctx context.Context, userID string) ([]*Credential, error) {
	const q = `SELECT id, user_id, device_label, fingerprint, public_key, challenge, created_at, last_used_at FROM passkey_credentials WHERE user_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()
	var out []*Credential
	for rows.Next() {
		c := &Credential{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.DeviceLabel, &c.Fingerprint, &c.PublicKey, &c.Challenge, &c.CreatedAt, &c.LastUsedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
