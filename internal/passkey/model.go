// Package passkey implements the public-key credential flow that runs in
// parallel with password login: register a credential, prove possession
// of its private key by signing a server challenge, receive a session.
package passkey

import "time"

// Credential is a registered public key. A user may hold many; IDs are
// unique across all users.
type Credential struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	DeviceLabel string    `json:"deviceLabel"`
	Fingerprint string    `json:"fingerprint"`
	// PublicKey is the raw Ed25519 public key, base64 encoded.
	PublicKey string `json:"-"`
	// Challenge is the outstanding signed challenge. It rotates on
	// registration, on explicit refresh, and after every authentication
	// attempt, so a captured signature cannot be replayed.
	Challenge  string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// Registration is returned to the caller for out-of-band signing.
type Registration struct {
	CredentialID string `json:"credentialId"`
	Challenge    string `json:"challenge"`
}

// Auth is the success payload of Authenticate.
type Auth struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}
