package auth

import "errors"

// Every failure the core reports is one of these sentinels, possibly
// wrapped with context. Callers branch with errors.Is.
var (
	// ErrInvalidCredentials covers unknown username, wrong password, and
	// deactivated accounts alike; the causes are deliberately
	// indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated means no session exists for the presented token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrSessionExpired means the token named a session whose lifetime
	// elapsed; the session has been deleted.
	ErrSessionExpired = errors.New("session expired")

	// ErrInsufficientPermission means the caller's role ranks below the
	// required tier.
	ErrInsufficientPermission = errors.New("insufficient permission")

	// ErrCredentialNotFound means no passkey credential has the given id.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrSignatureInvalid means the presented signature did not verify
	// against the credential's public key and outstanding challenge.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrAccountLocked means too many recent failed logins; the account
	// refuses authentication until the cooldown passes.
	ErrAccountLocked = errors.New("account locked")

	// ErrStoreUnavailable wraps credential/session storage failures.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUserNotFound is internal to user lookups; the authenticator maps
	// it to ErrInvalidCredentials before it reaches a caller.
	ErrUserNotFound = errors.New("user not found")
)
