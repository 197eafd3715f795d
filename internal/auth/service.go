package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"nexusauth/internal/audit"
	"nexusauth/internal/lockout"
	"nexusauth/internal/session"
	"nexusauth/internal/token"
)

// Service is the password authenticator: it verifies credentials against
// the user store, mints sessions, validates tokens against the expiry
// policy, and gates operations by role.
type Service struct {
	users    UserStore
	sessions session.Store
	policy   session.Policy
	tokens   token.Generator
	trail    audit.Store
	lockouts *lockout.Tracker
	logger   *slog.Logger

	// RedirectHint is surfaced with password-flow failures so the UI
	// collaborator knows where to send the caller. The core never acts
	// on it.
	RedirectHint string

	now func() time.Time
}

func NewService(users UserStore, sessions session.Store, policy session.Policy, trail audit.Store, lockouts *lockout.Tracker, logger *slog.Logger) *Service {
	return &Service{
		users:        users,
		sessions:     sessions,
		policy:       policy,
		trail:        trail,
		lockouts:     lockouts,
		logger:       logger,
		RedirectHint: "/login",
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the wall clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Result is the success payload of Authenticate.
type Result struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Authenticate verifies username/password and mints a session. Unknown
// user, wrong password, and deactivated account all fail with
// ErrInvalidCredentials; the caller cannot tell which.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Result, error) {
	now := s.now()

	if s.lockouts != nil && s.lockouts.Locked(username, now) {
		s.record(ctx, username, audit.ActionLoginFailed, "account locked")
		return nil, ErrAccountLocked
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, s.failLogin(ctx, username, now, "unknown user")
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.Active {
		return nil, s.failLogin(ctx, username, now, "inactive account")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, s.failLogin(ctx, username, now, "password mismatch")
	}

	if s.lockouts != nil {
		s.lockouts.Clear(username)
	}
	if err := s.users.TouchLastLogin(ctx, username, now); err != nil {
		s.logger.Warn("touch last login", "user", username, "err", err)
	}

	tok, err := s.tokens.NewToken()
	if err != nil {
		return nil, err
	}
	sess := s.policy.New(tok, user.ID, user.Username, string(user.Role), now)
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.record(ctx, username, audit.ActionLoginOK, "")
	s.logger.Info("login", "user", username, "role", user.Role)
	return &Result{Token: tok, UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

func (s *Service) failLogin(ctx context.Context, username string, now time.Time, detail string) error {
	if s.lockouts != nil && s.lockouts.RecordFailure(username, now) {
		s.record(ctx, username, audit.ActionAccountLocked, detail)
		s.logger.Warn("account locked", "user", username)
		return ErrInvalidCredentials
	}
	s.record(ctx, username, audit.ActionLoginFailed, detail)
	return ErrInvalidCredentials
}

// Validate resolves a bearer token to an identity. Expired sessions are
// deleted on detection; re-validating the same token then reports
// ErrUnauthenticated, not an internal error.
func (s *Service) Validate(ctx context.Context, tok string) (*Identity, error) {
	if tok == "" {
		return nil, ErrUnauthenticated
	}
	sess, ok, err := s.sessions.Get(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, ErrUnauthenticated
	}
	now := s.now()
	if s.policy.Expired(sess, now) {
		if _, err := s.sessions.Delete(ctx, tok); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		s.record(ctx, sess.Username, audit.ActionSessionExpired, "")
		return nil, ErrSessionExpired
	}
	s.policy.Touch(sess, now)
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &Identity{UserID: sess.UserID, Username: sess.Username, Role: Role(sess.Role)}, nil
}

// Logout deletes the session. The returned bool reports whether one
// existed; a second logout with the same token is a no-op that reports
// false.
func (s *Service) Logout(ctx context.Context, tok string) (bool, error) {
	if tok == "" {
		return false, nil
	}
	sess, ok, err := s.sessions.Get(ctx, tok)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	existed, err := s.sessions.Delete(ctx, tok)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if existed && ok {
		s.record(ctx, sess.Username, audit.ActionLogout, "")
	}
	return existed, nil
}

// Authorize gates an operation behind a minimum role. It assumes the
// identity came from a successful Validate.
func (s *Service) Authorize(role, required Role) error {
	if !role.AtLeast(required) {
		return ErrInsufficientPermission
	}
	return nil
}

// Users lists all accounts. Admin surface.
func (s *Service) Users(ctx context.Context) ([]*User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return users, nil
}

// Deactivate disables an account and revokes its live sessions.
func (s *Service) Deactivate(ctx context.Context, username string) (bool, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	done, err := s.users.Deactivate(ctx, username)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !done {
		return false, nil
	}
	if n, err := s.sessions.DeleteByUser(ctx, user.ID); err != nil {
		s.logger.Error("revoke sessions for deactivated user", "user", username, "err", err)
	} else if n > 0 {
		s.logger.Info("revoked sessions", "user", username, "count", n)
	}
	s.record(ctx, username, audit.ActionUserDeactivated, "")
	return true, nil
}

func (s *Service) record(ctx context.Context, actor, action, detail string) {
	if s.trail == nil {
		return
	}
	e := &audit.Entry{Time: s.now(), Actor: actor, Action: action, Detail: detail}
	if err := s.trail.Record(ctx, e); err != nil {
		s.logger.Error("record audit entry", "action", action, "err", err)
	}
}
