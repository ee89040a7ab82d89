package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeypairFromBase58_RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	kp, err := KeypairFromBase58(base58.Encode(priv))
	require.NoError(t, err)

	assert.Equal(t, base58.Encode(pub), kp.PublicKey().Base58())

	msg := []byte("cycle 12345")
	sig := kp.Sign(msg)
	assert.True(t, ed25519.Verify(pub, msg, sig[:]))
}

func TestKeypairFromBase58_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"not base58", "0OIl+/"},
		{"wrong length", base58.Encode([]byte{1, 2, 3})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KeypairFromBase58(tt.secret)
			assert.Error(t, err)
		})
	}
}

func TestDecodePublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pk, err := DecodePublicKey(base58.Encode(pub))
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(pub), pk.Base58())
	assert.True(t, pk.IsOnCurve())

	_, err = DecodePublicKey("tooshort")
	assert.Error(t, err)
}
