// Package envelope wraps signing-key material under a single 256-bit master
// key using AES-GCM. Only the wrapped form is ever persisted; the master key
// itself is supplied at construction and never stored.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize is the required master key length in bytes.
	KeySize = 32

	nonceSize = 12
	tagSize   = 16
)

// ErrDecrypt is returned for any failed unwrap: integrity-tag mismatch,
// malformed encoding, or the wrong master key. The cause is deliberately not
// distinguished; callers must treat all of them as tampering.
var ErrDecrypt = errors.New("envelope: decryption failed")

// Sealer performs AEAD wrap and unwrap with a fixed master key.
//
// Sealer instances are configured during initialization and then treated as
// immutable; they are safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// New builds a Sealer from a 32-byte master key.
func New(masterKey []byte) (*Sealer, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("envelope: master key must be %d bytes, got %d", KeySize, len(masterKey))
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce and returns the opaque
// storable form: three base64 segments joined by ':' — nonce, authentication
// tag, ciphertext. Sealing identical plaintext twice yields different output.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, ":"), nil
}

// Open reverses Seal. It never returns corrupted plaintext: any integrity or
// format failure surfaces as ErrDecrypt.
func (s *Sealer) Open(encoded string) ([]byte, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 3 {
		return nil, ErrDecrypt
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return nil, ErrDecrypt
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return nil, ErrDecrypt
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrDecrypt
	}

	plaintext, err := s.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
