package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "owner.key")
	require.NoError(t, WriteKey(path, priv))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := ReadKey(path)
	require.NoError(t, err)
	assert.True(t, priv.Equal(loaded))

	id, err := identityOf(loaded)
	require.NoError(t, err)
	assert.Equal(t, []byte(priv.Public().(ed25519.PublicKey)), id[:])
}

func TestReadKeyErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadKey("")
	assert.Error(t, err)

	_, err = ReadKey(filepath.Join(dir, "missing.key"))
	assert.Error(t, err)

	short := filepath.Join(dir, "short.key")
	require.NoError(t, os.WriteFile(short, []byte("abcd\n"), 0o600))
	_, err = ReadKey(short)
	assert.ErrorContains(t, err, "seed")

	notHex := filepath.Join(dir, "nothex.key")
	require.NoError(t, os.WriteFile(notHex, []byte("zz"), 0o600))
	_, err = ReadKey(notHex)
	assert.Error(t, err)
}
