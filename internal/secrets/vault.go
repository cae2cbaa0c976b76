// Package secrets provides authenticated encryption for tenant OAuth client
// secrets. The key is loaded once at process start; a malformed key fails
// startup. Plaintext never appears in logs, error messages, or error chains.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// keySize is the AES-256 key length in bytes.
	keySize = 32

	// MaxPlaintextLen bounds a single secret at 1 MiB.
	MaxPlaintextLen = 1 << 20

	// ciphertextVersion identifies the key/format generation. It is the
	// first byte of every ciphertext so the format stays self-describing.
	ciphertextVersion = 0x01
)

var (
	// ErrBadKey signals malformed key material at startup.
	ErrBadKey = errors.New("vault key is malformed")

	// ErrCorrupt signals a ciphertext that failed authentication or has an
	// unknown layout.
	ErrCorrupt = errors.New("ciphertext is corrupt")

	// ErrPlaintextTooLarge signals a plaintext above MaxPlaintextLen.
	ErrPlaintextTooLarge = errors.New("plaintext exceeds maximum size")
)

// Vault performs AES-256-GCM encryption of small secrets.
//
// Ciphertext layout: version byte || 12-byte nonce || sealed payload
// (ciphertext + 16-byte GCM tag).
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a base64-encoded 32-byte key.
func New(keyBase64 string) (*Vault, error) {
	if keyBase64 == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrBadKey)
	}

	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64", ErrBadKey)
	}

	return NewFromKey(key)
}

// NewFromKey creates a Vault from raw 32-byte key material.
func NewFromKey(key []byte) (*Vault, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrBadKey, keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext into a self-describing ciphertext. Each call uses
// a fresh random nonce, so encrypting the same input twice yields different
// ciphertexts.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) > MaxPlaintextLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPlaintextTooLarge, len(plaintext))
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+v.aead.Overhead())
	out = append(out, ciphertextVersion)
	out = append(out, nonce...)
	out = v.aead.Seal(out, nonce, plaintext, nil)

	return out, nil
}

// Decrypt opens a ciphertext produced by Encrypt. On failure only the
// ciphertext length is reported; neither plaintext nor ciphertext bytes are
// ever part of the error.
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	if len(ciphertext) < 1+nonceSize+v.aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes is below minimum", ErrCorrupt, len(ciphertext))
	}

	if ciphertext[0] != ciphertextVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorrupt, ciphertext[0])
	}

	nonce := ciphertext[1 : 1+nonceSize]
	sealed := ciphertext[1+nonceSize:]

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// The GCM error never contains payload bytes; length is the only
		// detail safe to surface.
		return nil, fmt.Errorf("%w: authentication failed for %d-byte ciphertext", ErrCorrupt, len(ciphertext))
	}

	return plaintext, nil
}

// EncryptString seals a string secret.
func (v *Vault) EncryptString(plaintext string) ([]byte, error) {
	return v.Encrypt([]byte(plaintext))
}

// DecryptString opens a ciphertext into a string secret.
func (v *Vault) DecryptString(ciphertext []byte) (string, error) {
	plaintext, err := v.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// GenerateKey returns a fresh random key encoded for configuration use.
// Intended for operator tooling and tests.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
