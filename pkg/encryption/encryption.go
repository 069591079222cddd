// Package encryption provides at-rest encryption support for the
// substrate: PBKDF2 key derivation from an operator passphrase (the
// derived key feeds Badger's native AES encryption of SSTables and
// value log), plus an AES-256-GCM Encryptor for individual metadata
// fields that must stay opaque even in exported archives.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// SaltSize is the PBKDF2 salt length in bytes.
const SaltSize = 16

// DefaultIterations is the PBKDF2 iteration count.
const DefaultIterations = 600_000

var (
	ErrInvalidKey       = errors.New("encryption: key must be 32 bytes")
	ErrInvalidData      = errors.New("encryption: invalid encrypted data")
	ErrDecryptionFailed = errors.New("encryption: decryption failed")
)

// DeriveKey stretches password into a 32-byte AES key via
// PBKDF2-SHA256. The same (password, salt, iterations) always derives
// the same key; the salt must be persisted alongside the data it
// protects.
func DeriveKey(password, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// GenerateSalt returns a fresh random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// GenerateKey returns a fresh random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// SecureWipe zeroes key material in place.
func SecureWipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// Encryptor seals and opens individual values with AES-256-GCM. A
// disabled Encryptor passes values through unchanged, so callers never
// branch on whether encryption is configured.
type Encryptor struct {
	aead    cipher.AEAD
	enabled bool
}

// NewEncryptor builds an Encryptor over key. A nil key yields a
// disabled pass-through Encryptor.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if key == nil {
		return &Encryptor{}, nil
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead, enabled: true}, nil
}

// Enabled reports whether values are actually encrypted.
func (e *Encryptor) Enabled() bool { return e.enabled }

// EncryptString seals plaintext, returning a base64 ciphertext with
// the nonce prepended. Disabled Encryptors return plaintext unchanged.
func (e *Encryptor) EncryptString(plaintext string) (string, error) {
	if !e.enabled {
		return plaintext, nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a ciphertext produced by EncryptString.
func (e *Encryptor) DecryptString(ciphertext string) (string, error) {
	if !e.enabled {
		return ciphertext, nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidData
	}
	if len(raw) < e.aead.NonceSize() {
		return "", ErrInvalidData
	}
	nonce, sealed := raw[:e.aead.NonceSize()], raw[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
