package vault

import (
	"bytes"
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyringKeySource(t *testing.T) {
	src := NewKeyringKeySource(keyring.NewArrayKeyring(nil))

	_, err := src.Key()
	assert.ErrorIs(t, err, ErrKeyNotStored)

	key := bytes.Repeat([]byte{0x09}, KeySize)
	require.NoError(t, src.Store(key))

	got, err := src.Key()
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestKeyringKeySourceRejectsBadKeys(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	src := NewKeyringKeySource(ring)

	assert.ErrorIs(t, src.Store([]byte("too-short")), ErrInvalidKey)

	require.NoError(t, ring.Set(keyring.Item{Key: keyringItem, Data: []byte("also-short")}))
	_, err := src.Key()
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyringKeyOpensVault(t *testing.T) {
	src := NewKeyringKeySource(keyring.NewArrayKeyring(nil))
	require.NoError(t, src.Store(testKey))

	key, err := src.Key()
	require.NoError(t, err)

	path := t.TempDir() + "/tokens.json"
	require.NoError(t, openVault(t, path, key).Upsert("secret-code", "y0_token", ""))

	got, err := openVault(t, path, testKey).Resolve("secret-code")
	require.NoError(t, err)
	assert.Equal(t, "y0_token", got.Token)
}

func TestTTYPromptWritesToGivenStream(t *testing.T) {
	var stderr bytes.Buffer
	prompt := ttyPrompt(&stderr, func() ([]byte, error) { return []byte("hunter22"), nil })

	password, err := prompt("Password for dirctl keyring")
	require.NoError(t, err)
	assert.Equal(t, "hunter22", password)
	assert.Equal(t, "Password for dirctl keyring: \n", stderr.String())

	failing := ttyPrompt(&stderr, func() ([]byte, error) { return nil, ErrNoTerminal })
	_, err = failing("Password")
	assert.True(t, errors.Is(err, ErrNoTerminal))
}
