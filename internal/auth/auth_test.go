package auth

import (
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

func newKey(t *testing.T) (domain.Identity, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	id, err := domain.IdentityFromPublicKey(pub)
	require.NoError(t, err)
	return id, priv
}

func TestVerifyRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	id, priv := newKey(t)
	v := NewVerifier(Config{Audience: "sessiongate", Now: func() time.Time { return now }})

	token, err := Sign(priv, "sessiongate", time.Minute, now)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestVerifyRejects(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewVerifier(Config{Audience: "sessiongate", Now: func() time.Time { return now }})
	_, priv := newKey(t)
	other, _ := newKey(t)

	expired, err := Sign(priv, "sessiongate", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	wrongAud, err := Sign(priv, "elsewhere", time.Minute, now)
	require.NoError(t, err)

	// A token whose subject claims someone else's key fails verification.
	forged := jwtWithSubject(t, priv, other.String(), now)

	for name, token := range map[string]string{
		"empty":    "",
		"garbage":  "not-a-token",
		"expired":  expired,
		"audience": wrongAud,
		"forged":   forged,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestMiddleware(t *testing.T) {
	now := time.Now()
	id, priv := newKey(t)
	v := NewVerifier(Config{})
	token, err := Sign(priv, "", time.Minute, now)
	require.NoError(t, err)

	e := echo.New()
	e.Use(Middleware(v))
	e.GET("/whoami", func(c echo.Context) error {
		caller, ok := Caller(c)
		require.True(t, ok)
		return c.String(http.StatusOK, caller.String())
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id.String(), rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/whoami?token="+token, nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
