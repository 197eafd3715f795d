package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces the opaque identifiers used across the service:
// bearer session tokens, passkey credential IDs, and device fingerprints.
type Generator struct{}

// NewToken returns a 256-bit random token, URL-safe base64 encoded.
// Bearer tokens carry no embedded claims; all state lives server-side.
func (Generator) NewToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// NewCredentialID returns a unique identifier for a passkey credential.
func (Generator) NewCredentialID() string {
	return uuid.NewString()
}

// NewFingerprint returns a device fingerprint for a registration.
func (Generator) NewFingerprint() string {
	return "dev-" + uuid.NewString()
}
