package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecretCodecRoundTrip(t *testing.T) {
	codec, err := NewSecretCodec(bytes.Repeat([]byte("k"), 32))
	require.NoError(t, err)

	for _, plaintext := range []string{"", "secret", "ntn_token_1234567890"} {
		ciphertext, iv, err := codec.Encrypt(plaintext)
		require.NoError(t, err)

		decrypted, err := codec.Decrypt(ciphertext, iv)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	}
}

func TestSecretCodecFreshNonces(t *testing.T) {
	codec, err := NewSecretCodec(bytes.Repeat([]byte("k"), 32))
	require.NoError(t, err)

	c1, iv1, err := codec.Encrypt("secret")
	require.NoError(t, err)
	c2, iv2, err := codec.Encrypt("secret")
	require.NoError(t, err)

	require.NotEqual(t, iv1, iv2)
	require.NotEqual(t, c1, c2)
}

func TestSecretCodecWrongKey(t *testing.T) {
	codec, err := NewSecretCodec(bytes.Repeat([]byte("k"), 32))
	require.NoError(t, err)

	ciphertext, iv, err := codec.Encrypt("secret")
	require.NoError(t, err)

	another, err := NewSecretCodec(bytes.Repeat([]byte("x"), 32))
	require.NoError(t, err)

	decrypted, err := another.Decrypt(ciphertext, iv)
	require.ErrorIs(t, err, ErrDecryption)
	require.Empty(t, decrypted)
}

func TestSecretCodecTamperedCiphertext(t *testing.T) {
	codec, err := NewSecretCodec(bytes.Repeat([]byte("k"), 32))
	require.NoError(t, err)

	ciphertext, iv, err := codec.Encrypt("secret")
	require.NoError(t, err)

	tampered := []byte(ciphertext)
	tampered[0] ^= 'z'

	decrypted, err := codec.Decrypt(string(tampered), iv)
	require.ErrorIs(t, err, ErrDecryption)
	require.Empty(t, decrypted)
}

func TestSecretCodecInvalidKeyLength(t *testing.T) {
	_, err := NewSecretCodec([]byte("too-short"))
	require.Error(t, err)

	_, err = NewSecretCodec(bytes.Repeat([]byte("k"), 16))
	require.Error(t, err)
}
