package passkey

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ChallengeSigner mints and checks the challenges clients sign. A
// challenge is an HS256-signed token bound to one credential with its
// own short expiry, so it carries freshness and binding without a
// separate challenge table.
type ChallengeSigner struct {
	secret []byte
	ttl    time.Duration
}

const defaultChallengeTTL = 5 * time.Minute

func NewChallengeSigner(secret string) *ChallengeSigner {
	return &ChallengeSigner{secret: []byte(secret), ttl: defaultChallengeTTL}
}

type challengeClaims struct {
	jwt.RegisteredClaims
}

// Mint issues a fresh challenge for credentialID.
func (c *ChallengeSigner) Mint(credentialID string, now time.Time) (string, error) {
	claims := challengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   credentialID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.secret)
}

// Check verifies that challenge was minted for credentialID and has not
// expired.
func (c *ChallengeSigner) Check(challenge, credentialID string, now time.Time) error {
	parsed, err := jwt.ParseWithClaims(challenge, &challengeClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return fmt.Errorf("parse challenge: %w", err)
	}
	claims, ok := parsed.Claims.(*challengeClaims)
	if !ok || !parsed.Valid {
		return fmt.Errorf("challenge not valid")
	}
	if claims.Subject != credentialID {
		return fmt.Errorf("challenge bound to another credential")
	}
	return nil
}
