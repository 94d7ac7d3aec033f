package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is how long a minted session token stays valid.
const DefaultSessionTTL = 24 * time.Hour

// tokenIssuerName is the iss claim on minted tokens.
const tokenIssuerName = "signbridge"

// ErrInvalidToken indicates a session token that is malformed, forged, or
// expired.
var ErrInvalidToken = errors.New("auth: invalid session token")

// Claims is the payload of a session token.
type Claims struct {
	jwt.RegisteredClaims

	// Superuser mirrors the account flag at mint time so the back-office can
	// gate without a store round trip.
	Superuser bool `json:"su,omitempty"`
}

// TokenIssuer mints and verifies HMAC-signed session tokens. Safe for
// concurrent use.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer signing with the given secret. A zero
// ttl means DefaultSessionTTL.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("auth: session secret must be at least 32 bytes, got %d", len(secret))
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenIssuer{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Mint signs a session token for the account.
func (t *TokenIssuer) Mint(accountID string, superuser bool) (string, error) {
	if accountID == "" {
		return "", errors.New("auth: mint: account id must not be empty")
	}
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuerName,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Superuser: superuser,
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims. Returns
// an error wrapping [ErrInvalidToken] for anything other than a well-formed,
// correctly signed, unexpired token.
func (t *TokenIssuer) Verify(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuerName),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
