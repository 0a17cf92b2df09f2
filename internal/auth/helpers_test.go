package auth

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func jwtWithSubject(t *testing.T, priv ed25519.PrivateKey, subject string, now time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{"sessiongate"},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}).SignedString(priv)
	require.NoError(t, err)
	return token
}
