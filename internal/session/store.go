package session

import (
	"context"
	"sync"
	"time"
)

// Store holds live sessions keyed by token. Implementations must be safe
// for concurrent use; a concurrent expire-delete and logout of the same
// token both converge to "absent".
type Store interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, token string) (*Session, bool, error)
	Update(ctx context.Context, s *Session) error
	// Delete reports whether a session existed for the token.
	Delete(ctx context.Context, token string) (bool, error)
	// DeleteByUser revokes every session owned by userID and returns the
	// number removed.
	DeleteByUser(ctx context.Context, userID string) (int, error)
	// ScanExpired returns the tokens of sessions dead at now under pol.
	ScanExpired(ctx context.Context, pol Policy, now time.Time) ([]string, error)
}

// MemoryStore is the in-process Store. Sessions are deliberately not
// persisted; a restart logs everyone out.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Put(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *sess
	s.sessions[sess.Token] = &copy
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) (*Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, false, nil
	}
	copy := *sess
	return &copy, true, nil
}

func (s *MemoryStore) Update(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.Token]; !ok {
		// Deleted concurrently; the delete wins.
		return nil
	}
	copy := *sess
	s.sessions[sess.Token] = &copy
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[token]
	delete(s.sessions, token)
	return ok, nil
}

func (s *MemoryStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tok, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, tok)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ScanExpired(ctx context.Context, pol Policy, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var dead []string
	for tok, sess := range s.sessions {
		if pol.Expired(sess, now) {
			dead = append(dead, tok)
		}
	}
	return dead, nil
}

// Len reports the number of live sessions. Used by tests and the sweeper log line.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
