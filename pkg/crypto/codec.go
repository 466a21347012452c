package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrDecryption is returned for any integrity or key failure. The caller
// never sees partial plaintext.
var ErrDecryption = errors.New("cannot decrypt secret")

// SecretCodec encrypts opaque string secrets under a 256-bit key with
// AES-GCM. The GCM tag travels appended to the ciphertext; the nonce is
// returned separately so it can be stored in its own column.
type SecretCodec struct {
	aead cipher.AEAD
}

// NewSecretCodec builds a codec from a raw 32-byte key. A key of any other
// length is a configuration error, surfaced here so the process fails at
// startup instead of at the first secret.
func NewSecretCodec(key []byte) (*SecretCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	return &SecretCodec{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. It returns the
// base64-encoded ciphertext (tag appended) and the base64-encoded nonce.
func (c *SecretCodec) Encrypt(plaintext string) (ciphertext, iv string, err error) {
	// GCM requires a unique nonce per encryption under the same key.
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("read nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(sealed),
		base64.RawStdEncoding.EncodeToString(nonce), nil
}

func (c *SecretCodec) Decrypt(ciphertext, iv string) (string, error) {
	sealed, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryption
	}

	nonce, err := base64.RawStdEncoding.DecodeString(iv)
	if err != nil {
		return "", ErrDecryption
	}

	if len(nonce) != c.aead.NonceSize() {
		return "", ErrDecryption
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryption
	}

	return string(plaintext), nil
}
