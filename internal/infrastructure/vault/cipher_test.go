package vault

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *TokenCipher {
	t.Helper()
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	c, err := NewTokenCipher(key)
	require.NoError(t, err)
	return c
}

func TestNewTokenCipher(t *testing.T) {
	t.Run("rejects non-base64 key", func(t *testing.T) {
		_, err := NewTokenCipher("not base64!!!")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("rejects short key", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString([]byte("too short"))
		_, err := NewTokenCipher(short)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestTokenCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	tokens := []string{
		"shpat_0123456789abcdef",
		"Atza|IwEBIJq...",
		"a",
		"token with spaces and ünïcode",
	}
	for _, token := range tokens {
		encrypted, err := c.Encrypt(token)
		require.NoError(t, err)
		assert.NotEqual(t, token, encrypted)

		decrypted, err := c.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, token, decrypted)
	}
}

func TestTokenCipher_EmptyString(t *testing.T) {
	c := newTestCipher(t)

	encrypted, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, encrypted)

	decrypted, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, decrypted)
}

func TestTokenCipher_NoncesAreFresh(t *testing.T) {
	c := newTestCipher(t)

	first, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := c.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenCipher_FailsClosedOnTamper(t *testing.T) {
	c := newTestCipher(t)

	encrypted, err := c.Encrypt("secret-token")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)

	// Flip one byte anywhere in nonce or ciphertext
	for _, pos := range []int{0, len(raw) / 2, len(raw) - 1} {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[pos] ^= 0x01

		decrypted, err := c.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		assert.ErrorIs(t, err, ErrDecryptionFailed, "tamper at byte %d must fail", pos)
		assert.Empty(t, decrypted)
	}
}

func TestTokenCipher_MalformedCiphertext(t *testing.T) {
	c := newTestCipher(t)

	t.Run("not base64", func(t *testing.T) {
		_, err := c.Decrypt("%%%not-base64%%%")
		assert.ErrorIs(t, err, ErrInvalidCiphertext)
	})

	t.Run("too short", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString([]byte("tiny"))
		_, err := c.Decrypt(short)
		assert.ErrorIs(t, err, ErrInvalidCiphertext)
	})
}

func TestTokenCipher_DifferentKeysCannotDecrypt(t *testing.T) {
	a := newTestCipher(t)
	b := newTestCipher(t)

	encrypted, err := a.Encrypt("secret-token")
	require.NoError(t, err)

	_, err = b.Decrypt(encrypted)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
