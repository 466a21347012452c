package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratePKCE(t *testing.T) {
	pair, err := GeneratePKCE()
	require.NoError(t, err)

	require.Len(t, pair.Verifier, 43)

	hashed := sha256.Sum256([]byte(pair.Verifier))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(hashed[:]), pair.Challenge)
}

func TestGeneratePKCEUnique(t *testing.T) {
	p1, err := GeneratePKCE()
	require.NoError(t, err)
	p2, err := GeneratePKCE()
	require.NoError(t, err)

	require.NotEqual(t, p1.Verifier, p2.Verifier)
}
