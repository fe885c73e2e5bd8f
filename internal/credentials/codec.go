// Package credentials encodes provider API keys for storage at rest.
package credentials

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

// ErrInvalidCiphertext is returned when stored data cannot be decoded.
var ErrInvalidCiphertext = errors.New("credentials: invalid ciphertext")

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// gcmPrefix tags values sealed by AESGCM so that plaintext rows are never
// mistaken for ciphertext.
const gcmPrefix = "v1:"

// Codec converts between stored and plaintext credential values.
type Codec interface {
	Encode(plaintext string) (string, error)
	Decode(stored string) (string, error)
}

// AESGCM seals values with AES-256-GCM and a random nonce per value.
type AESGCM struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewAESGCM creates a codec from a 32-byte key.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("credentials: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	return &AESGCM{aead: aead, rand: rand.Reader}, nil
}

// ParseKey decodes a base64 (standard or URL) key.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(encoded); err == nil {
			if len(key) != KeySize {
				return nil, fmt.Errorf("credentials: key must decode to %d bytes, got %d", KeySize, len(key))
			}
			return key, nil
		}
	}
	return nil, errors.New("credentials: key is not valid base64")
}

func (c *AESGCM) Encode(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("credentials: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return gcmPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *AESGCM) Decode(stored string) (string, error) {
	body, ok := strings.CutPrefix(stored, gcmPrefix)
	if !ok {
		return "", ErrInvalidCiphertext
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	size := c.aead.NonceSize()
	if len(raw) < size+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, raw[:size], raw[size:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

// Plaintext stores values as-is. It is meant for local development only.
type Plaintext struct{}

func (Plaintext) Encode(plaintext string) (string, error) { return plaintext, nil }
func (Plaintext) Decode(stored string) (string, error)    { return stored, nil }

// FromConfig returns an AESGCM codec for a non-empty base64 key and the
// plaintext codec otherwise.
func FromConfig(encodedKey string) (Codec, error) {
	if strings.TrimSpace(encodedKey) == "" {
		return Plaintext{}, nil
	}
	key, err := ParseKey(encodedKey)
	if err != nil {
		return nil, err
	}
	return NewAESGCM(key)
}
