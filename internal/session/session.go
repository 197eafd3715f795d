// Package session holds the server-side session records that opaque
// bearer tokens resolve to, and the policy deciding when they die.
package session

import "time"

type Session struct {
	Token      string    `json:"token"`
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
	LastAccess time.Time `json:"lastAccess"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Policy is the single expiry discipline shared by the password and
// passkey session families. Absolute expiry (the default) bounds a
// session to Lifetime from creation no matter how active it is; the
// sliding variant instead expires Lifetime after the last access.
type Policy struct {
	Lifetime time.Duration
	Sliding  bool
}

// New mints a session record under this policy.
func (p Policy) New(token, userID, username, role string, now time.Time) *Session {
	return &Session{
		Token:      token,
		UserID:     userID,
		Username:   username,
		Role:       role,
		CreatedAt:  now,
		LastAccess: now,
		ExpiresAt:  now.Add(p.Lifetime),
	}
}

// Expired reports whether s is dead at now.
func (p Policy) Expired(s *Session, now time.Time) bool {
	if p.Sliding {
		return now.After(s.LastAccess.Add(p.Lifetime))
	}
	return now.After(s.ExpiresAt)
}

// Touch records an access. Under the absolute policy this is bookkeeping
// only; under the sliding policy it extends the session's life.
func (p Policy) Touch(s *Session, now time.Time) {
	s.LastAccess = now
	if p.Sliding {
		s.ExpiresAt = now.Add(p.Lifetime)
	}
}
