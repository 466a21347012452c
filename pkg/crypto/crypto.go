package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// GenerateRandomString returns 32 bytes of cryptographic randomness encoded
// as 43 unpadded url-safe base64 characters. Used for OAuth state values and
// lock owner tokens.
func GenerateRandomString() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func SHA256(b []byte) string {
	hashed := sha256.Sum256(b)
	return base64.RawURLEncoding.EncodeToString(hashed[:])
}
