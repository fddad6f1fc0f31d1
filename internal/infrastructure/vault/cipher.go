package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Cipher errors
var (
	ErrInvalidKey        = errors.New("vault: master key must be 32 bytes base64")
	ErrInvalidCiphertext = errors.New("vault: ciphertext is malformed")
	ErrDecryptionFailed  = errors.New("vault: decryption failed")
)

// keyContext binds derived keys to this use so the same master secret can
// never be reused for another purpose with the same key material.
const keyContext = "channelhub-credential-vault-v1"

// TokenCipher encrypts and decrypts credential tokens with AES-256-GCM.
// The AEAD key is derived from the master key with HKDF-SHA256. Every
// ciphertext carries its own random nonce; decryption fails closed on any
// tamper or truncation, it never returns partial plaintext.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a cipher from a base64-encoded 32-byte master key
func NewTokenCipher(masterKeyB64 string) (*TokenCipher, error) {
	masterKey, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(masterKey) != 32 {
		return nil, ErrInvalidKey
	}

	derived := make([]byte, 32)
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte(keyContext))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("vault: key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher init failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: aead init failed: %w", err)
	}

	return &TokenCipher{aead: aead}, nil
}

// Encrypt seals a plaintext token and returns base64(nonce || ciphertext)
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: nonce generation failed: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64(nonce || ciphertext) value. Any tag mismatch or
// malformed input yields ErrDecryptionFailed or ErrInvalidCiphertext.
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// GenerateMasterKey returns a fresh random base64-encoded 32-byte key,
// used by operators to bootstrap configuration.
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("vault: key generation failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
