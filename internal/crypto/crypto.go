// Package crypto provides the low-level primitives used by the auth flow:
// CSPRNG-backed random values, SHA-256 hashing, base64url encoding, and
// constant-time comparison. It also provides application-level encryption
// (AES-256-GCM) for sensitive values stored in the database, such as PKCE
// code verifiers held in the auth state table.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// prefix identifies encrypted values so they can be distinguished
	// from plaintext written before a key was configured.
	prefix = "enc:v1:"
)

// RandomBytes returns n cryptographically secure random bytes.
// There is no fallback source; a failing CSPRNG is returned as an error
// and callers must treat it as fatal.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// RandomString returns a base64url string of length n derived from the CSPRNG.
func RandomString(n int) (string, error) {
	// base64 expands 3 bytes into 4 chars; over-provision and truncate.
	b, err := RandomBytes((n*3+3)/4 + 3)
	if err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	return s[:n], nil
}

// SHA256 returns the SHA-256 digest of b.
func SHA256(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// EncodeBase64URL encodes b as unpadded base64url.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeBase64URL decodes an unpadded base64url string.
func DecodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// ConstantTimeEquals compares two strings without short-circuiting on the
// first mismatch. Use for any comparison involving secret material.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Encryptor handles AES-256-GCM encryption and decryption of secret values.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor creates a new Encryptor from a hex-encoded 32-byte key.
// Returns nil if keyHex is empty (encryption disabled).
func NewEncryptor(keyHex string) (*Encryptor, error) {
	if keyHex == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// Encrypt encrypts plaintext and returns an "enc:v1:<base64>" string.
// Returns plaintext unchanged if e is nil (encryption disabled).
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if e == nil || plaintext == "" {
		return plaintext, nil
	}

	nonce, err := RandomBytes(e.gcm.NonceSize())
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts an "enc:v1:<base64>" string back to plaintext.
// Returns the input unchanged if it doesn't have the encryption prefix
// (supports reading values written before encryption was enabled).
// Returns the input unchanged if e is nil (encryption disabled).
func (e *Encryptor) Decrypt(value string) (string, error) {
	if e == nil {
		return value, nil
	}
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}
