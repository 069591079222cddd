package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	k1 := DeriveKey([]byte("correct horse"), salt, 1000)
	k2 := DeriveKey([]byte("correct horse"), salt, 1000)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, KeySize)

	other := DeriveKey([]byte("battery staple"), salt, 1000)
	assert.NotEqual(t, k1, other)
}

func TestEncryptorRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	enc, err := NewEncryptor(key)
	require.NoError(t, err)
	require.True(t, enc.Enabled())

	sealed, err := enc.EncryptString("sensitive metadata")
	require.NoError(t, err)
	assert.NotEqual(t, "sensitive metadata", sealed)

	plain, err := enc.DecryptString(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sensitive metadata", plain)
}

func TestEncryptorRejectsTamperedCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	sealed, err := enc.EncryptString("payload")
	require.NoError(t, err)

	_, err = enc.DecryptString("AAAA" + sealed[4:])
	assert.Error(t, err)
}

func TestDisabledEncryptorPassesThrough(t *testing.T) {
	enc, err := NewEncryptor(nil)
	require.NoError(t, err)
	assert.False(t, enc.Enabled())

	sealed, err := enc.EncryptString("as-is")
	require.NoError(t, err)
	assert.Equal(t, "as-is", sealed)

	plain, err := enc.DecryptString(sealed)
	require.NoError(t, err)
	assert.Equal(t, "as-is", plain)
}

func TestNewEncryptorRejectsShortKey(t *testing.T) {
	_, err := NewEncryptor([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}
