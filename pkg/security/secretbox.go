package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24

	// sealedPrefix marks values written by Seal
	sealedPrefix = "sb1:"
)

var (
	ErrInvalidKey    = errors.New("secretbox key must be 32 bytes, base64 encoded")
	ErrInvalidSealed = errors.New("sealed value is malformed or was sealed with another key")
	ErrNoKey         = errors.New("sealed value found but no secretbox key is configured")
)

// Box seals short secrets (bot tokens) before they are stored. A nil *Box
// stores values as given.
type Box struct {
	key  [keySize]byte
	rand io.Reader
}

// NewBox parses a base64 key. An empty key returns a nil Box.
func NewBox(encodedKey string) (*Box, error) {
	if encodedKey == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(raw) != keySize {
		return nil, ErrInvalidKey
	}
	b := &Box{rand: rand.Reader}
	copy(b.key[:], raw)
	return b, nil
}

// Seal encrypts plaintext. Empty strings stay empty.
func (b *Box) Seal(plaintext string) (string, error) {
	if b == nil || plaintext == "" {
		return plaintext, nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(b.rand, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned unchanged.
func (b *Box) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if b == nil {
		return "", ErrNoKey
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrInvalidSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrInvalidSealed
	}
	return string(plain), nil
}

// IsSealed reports whether value was produced by Seal
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
