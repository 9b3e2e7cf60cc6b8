// Package crypto encrypts stored credentials, currently the per-user
// watchlist tokens, so a copied database file does not leak them.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptedPrefix marks encrypted values in the database. Values
// without it are treated as legacy plaintext and returned as-is.
const EncryptedPrefix = "enc:v1:"

const (
	kdfIterations = 100000
	keyLength     = 32 // AES-256
	saltLength    = 16
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// SecretStore encrypts and decrypts secret values with a key derived
// from the operator-configured secret.
type SecretStore struct {
	key []byte
}

// NewSecretStore derives an encryption key from the given secret and
// salt. The salt must be persisted alongside the data it protects; a
// new salt makes existing ciphertexts unreadable.
func NewSecretStore(secret string, salt []byte) *SecretStore {
	key := pbkdf2.Key([]byte(secret), salt, kdfIterations, keyLength, sha256.New)
	return &SecretStore{key: key}
}

// GenerateSalt creates a random key-derivation salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// Encrypt seals a plaintext with AES-256-GCM and returns it prefixed
// and base64-encoded. Empty input stays empty.
func (s *SecretStore) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values without the prefix predate
// encryption and pass through unchanged.
func (s *SecretStore) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value carries the encryption
// prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}
