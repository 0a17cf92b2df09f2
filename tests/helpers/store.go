package helpers

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
	"github.com/xiaot623/gogo/sessiongate/internal/repository"
)

func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// NewKey returns a fresh Ed25519 key pair and its identity.
func NewKey(t *testing.T) (domain.Identity, ed25519.PrivateKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	id, err := domain.IdentityFromPublicKey(pub)
	if err != nil {
		t.Fatalf("failed to build identity: %v", err)
	}
	return id, priv
}

// Clock is a settable time source for tests.
type Clock struct {
	Unix int64
}

func (c *Clock) Now() time.Time { return time.Unix(c.Unix, 0) }

// Advance moves the clock forward by secs.
func (c *Clock) Advance(secs int64) { c.Unix += secs }
