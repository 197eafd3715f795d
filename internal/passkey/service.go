package passkey

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nexusauth/internal/audit"
	"nexusauth/internal/auth"
	"nexusauth/internal/session"
	"nexusauth/internal/token"
)

// Service is the passkey authenticator. Signatures are verified with
// real Ed25519 against the registered public key; the challenge a client
// signs is minted by the server and rotated after every attempt.
type Service struct {
	creds      CredentialStore
	sessions   session.Store
	policy     session.Policy
	tokens     token.Generator
	challenges *ChallengeSigner
	trail      audit.Store
	logger     *slog.Logger

	// Directory optionally resolves a credential's owner so minted
	// sessions carry the username and role alongside the user id. A
	// credential that outlived its user still mints; the session then
	// carries the id only.
	Directory auth.UserStore

	now func() time.Time
}

func NewService(creds CredentialStore, sessions session.Store, policy session.Policy, challenges *ChallengeSigner, trail audit.Store, logger *slog.Logger) *Service {
	return &Service{
		creds:      creds,
		sessions:   sessions,
		policy:     policy,
		challenges: challenges,
		trail:      trail,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the wall clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Register stores a new credential for userID and returns its id plus
// the first challenge for out-of-band signing. publicKey is the client's
// Ed25519 public key, base64 encoded.
func (s *Service) Register(ctx context.Context, userID, deviceLabel, publicKey string) (*Registration, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	raw, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be a base64 ed25519 key")
	}

	now := s.now()
	id := s.tokens.NewCredentialID()
	challenge, err := s.challenges.Mint(id, now)
	if err != nil {
		return nil, err
	}
	cred := &Credential{
		ID:          id,
		UserID:      userID,
		DeviceLabel: deviceLabel,
		Fingerprint: s.tokens.NewFingerprint(),
		PublicKey:   publicKey,
		Challenge:   challenge,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	if err := s.creds.Put(ctx, cred); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}
	s.record(ctx, id, audit.ActionPasskeyRegister, "user "+userID)
	s.logger.Info("passkey registered", "user", userID, "credential", id, "device", deviceLabel)
	return &Registration{CredentialID: id, Challenge: challenge}, nil
}

// Challenge rotates and returns a fresh challenge for the credential.
// Each authentication attempt should sign the latest one.
func (s *Service) Challenge(ctx context.Context, credentialID string) (string, error) {
	cred, err := s.creds.Get(ctx, credentialID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", auth.ErrCredentialNotFound
		}
		return "", fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}
	challenge, err := s.rotateChallenge(ctx, cred)
	if err != nil {
		return "", err
	}
	return challenge, nil
}

// Authenticate verifies signature over the credential's outstanding
// challenge and mints a passkey session. Any verification failure, a
// stale challenge included, reports ErrSignatureInvalid; the challenge
// rotates regardless of outcome.
func (s *Service) Authenticate(ctx context.Context, credentialID, signature string) (*Auth, error) {
	cred, err := s.creds.Get(ctx, credentialID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}

	now := s.now()
	challenge := cred.Challenge
	if _, err := s.rotateChallenge(ctx, cred); err != nil {
		return nil, err
	}

	if err := s.verify(cred, challenge, signature, now); err != nil {
		s.record(ctx, credentialID, audit.ActionPasskeyAuthFail, err.Error())
		return nil, auth.ErrSignatureInvalid
	}

	cred.LastUsedAt = now
	if err := s.creds.Update(ctx, cred); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}

	sessionID, err := s.tokens.NewToken()
	if err != nil {
		return nil, err
	}
	username, role, err := s.owner(ctx, cred.UserID)
	if err != nil {
		return nil, err
	}
	sess := s.policy.New(sessionID, cred.UserID, username, role, now)
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}

	s.record(ctx, credentialID, audit.ActionPasskeyAuthOK, "user "+cred.UserID)
	s.logger.Info("passkey authenticated", "user", cred.UserID, "credential", credentialID)
	return &Auth{SessionID: sessionID, UserID: cred.UserID}, nil
}

func (s *Service) owner(ctx context.Context, userID string) (username, role string, err error) {
	if s.Directory == nil {
		return "", "", nil
	}
	u, err := s.Directory.GetByID(ctx, userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}
	return u.Username, string(u.Role), nil
}

func (s *Service) verify(cred *Credential, challenge, signature string, now time.Time) error {
	if challenge == "" {
		return errors.New("no outstanding challenge")
	}
	if err := s.challenges.Check(challenge, cred.ID, now); err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(cred.PublicKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return errors.New("stored public key is malformed")
	}
	if !ed25519.Verify(ed25519.PublicKey(raw), []byte(challenge), sig) {
		return errors.New("ed25519 verification failed")
	}
	return nil
}

func (s *Service) rotateChallenge(ctx context.Context, cred *Credential) (string, error) {
	challenge, err := s.challenges.Mint(cred.ID, s.now())
	if err != nil {
		return "", err
	}
	cred.Challenge = challenge
	if err := s.creds.Update(ctx, cred); err != nil {
		return "", fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}
	return challenge, nil
}

// ValidateSession reports whether sessionID names a live passkey
// session and, if so, its owning user. Expired sessions are deleted on
// detection. No last-access refresh happens in this family.
func (s *Service) ValidateSession(ctx context.Context, sessionID string) (string, bool, error) {
	if sessionID == "" {
		return "", false, nil
	}
	sess, ok, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}
	if !ok {
		return "", false, nil
	}
	if s.policy.Expired(sess, s.now()) {
		if _, err := s.sessions.Delete(ctx, sessionID); err != nil {
			return "", false, fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
		}
		s.record(ctx, sess.UserID, audit.ActionSessionExpired, "passkey session")
		return "", false, nil
	}
	return sess.UserID, true, nil
}

// Revoke deletes a credential; subsequent authentications with its id
// fail with ErrCredentialNotFound. Reports whether it existed.
func (s *Service) Revoke(ctx context.Context, credentialID string) (bool, error) {
	existed, err := s.creds.Delete(ctx, credentialID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}
	if existed {
		s.record(ctx, credentialID, audit.ActionPasskeyRevoke, "")
	}
	return existed, nil
}

// Credentials lists a user's registered passkeys.
func (s *Service) Credentials(ctx context.Context, userID string) ([]*Credential, error) {
	creds, err := s.creds.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}
	return creds, nil
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
