package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// PKCEChallengeMethod is the only challenge method this backend offers. The
// weaker plain method is never used as a fallback.
const PKCEChallengeMethod = "S256"

type PKCEPair struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE returns a verifier of 32 random bytes (43 url-safe base64
// characters) and its S256 challenge.
func GeneratePKCE() (PKCEPair, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return PKCEPair{}, fmt.Errorf("cannot generate pkce verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(b)
	return PKCEPair{
		Verifier:  verifier,
		Challenge: SHA256([]byte(verifier)),
	}, nil
}
