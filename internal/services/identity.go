package services

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrUserIDCiphertext = errors.New("identity: malformed encrypted user id")

// UserIDCipher produces the encryptedUserId handed to clients in place of the
// internal user id.
type UserIDCipher struct {
	aead cipher.AEAD
}

// NewUserIDCipher creates a cipher from a 32-byte key.
func NewUserIDCipher(key []byte) (*UserIDCipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	return &UserIDCipher{aead: aead}, nil
}

// Seal encrypts a user id under a random nonce. It is called once, when the
// identity is created; the result is stored and never recomputed.
func (c *UserIDCipher) Seal(userID string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(userID)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := c.aead.Seal(nonce, nonce, []byte(userID), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open recovers the user id.
func (c *UserIDCipher) Open(encrypted string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encrypted)
	if err != nil || len(raw) < c.aead.NonceSize() {
		return "", ErrUserIDCiphertext
	}
	nonce, ct := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	pt, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrUserIDCiphertext
	}
	return string(pt), nil
}
