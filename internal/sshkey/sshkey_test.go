package sshkey

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesUsableKeypair(t *testing.T) {
	pair, err := Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(pair.AuthLine, "ssh-ed25519 "))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(pair.AuthLine), "intar-run"))
	assert.NotNil(t, pair.Signer)
}

func TestGenerateIsNotDeterministic(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	assert.NotEqual(t, a.AuthLine, b.AuthLine)
}

func TestClientConfigUsesSigner(t *testing.T) {
	pair, err := Generate()
	require.NoError(t, err)

	cfg := pair.ClientConfig("intar")
	assert.Equal(t, "intar", cfg.User)
	require.Len(t, cfg.Auth, 1)
}

func TestWritePrivateKeyThenLoadPrivateKeyRoundTrips(t *testing.T) {
	pair, err := Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, pair.WritePrivateKey(path))

	loaded, err := LoadPrivateKey(path)
	require.NoError(t, err)

	assert.Equal(t, pair.AuthLine, loaded.AuthLine)
	assert.Equal(t, pair.Signer.PublicKey().Marshal(), loaded.Signer.PublicKey().Marshal())

	cfg := loaded.ClientConfig("intar")
	require.Len(t, cfg.Auth, 1)
}

func TestWritePrivateKeyModeIsOwnerOnly(t *testing.T) {
	pair, err := Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, pair.WritePrivateKey(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", info.Mode().String())
}

func TestLoadPrivateKeyMissingFileFails(t *testing.T) {
	_, err := LoadPrivateKey(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
