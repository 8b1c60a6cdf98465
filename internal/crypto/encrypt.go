// Package crypto seals short secrets, such as channel webhooks, for storage
// in company settings.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrOpen is returned when a sealed value was produced with another key or
// another binding, or was tampered with.
var ErrOpen = errors.New("crypto: cannot open sealed value")

// Box seals values with AES-256-GCM. Each value is bound to a context string
// (the owning company id), so a sealed value copied to another owner does not open.
type Box struct {
	aead cipher.AEAD
}

// NewBox derives the AES-256 key from masterKey.
func NewBox(masterKey string) (*Box, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("crypto: master key is empty")
	}
	key := sha256.Sum256([]byte(masterKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return &Box{aead: gcm}, nil
}

// Seal returns nonce||ciphertext.
func (b *Box) Seal(plaintext []byte, binding string) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, plaintext, []byte(binding)), nil
}

func (b *Box) Open(sealed []byte, binding string) ([]byte, error) {
	n := b.aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrOpen
	}
	plain, err := b.aead.Open(nil, sealed[:n], sealed[n:], []byte(binding))
	if err != nil {
		return nil, ErrOpen
	}
	return plain, nil
}

// SealString seals s and encodes the result as base64 for text columns.
func (b *Box) SealString(s, binding string) (string, error) {
	sealed, err := b.Seal([]byte(s), binding)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *Box) OpenString(enc, binding string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpen, err)
	}
	plain, err := b.Open(raw, binding)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
