// Package auth proves caller identity. Callers sign a short-lived EdDSA JWT
// with their own Ed25519 key and put the hex public key in the subject, so
// the token verifies against the identity it claims.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// ErrUnauthenticated is returned for any token that does not prove its
// subject.
var ErrUnauthenticated = errors.New("unauthenticated")

// Config controls token validation.
type Config struct {
	Audience string
	Leeway   time.Duration
	Now      func() time.Time
}

// Verifier validates caller tokens.
type Verifier struct {
	cfg    Config
	parser *jwt.Parser
}

// NewVerifier creates a verifier.
func NewVerifier(cfg Config) *Verifier {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{cfg: cfg, parser: jwt.NewParser(opts...)}
}

// Verify returns the identity the token proves.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: empty token", ErrUnauthenticated)
	}

	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		id, err := domain.ParseIdentity(claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("subject is not an identity: %w", err)
		}
		return id.PublicKey(), nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return domain.ParseIdentity(claims.Subject)
}

// Sign issues a token for the key's identity, valid for ttl from now.
func Sign(priv ed25519.PrivateKey, audience string, ttl time.Duration, now time.Time) (string, error) {
	id, err := domain.IdentityFromPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return "", err
	}
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
}
