// Package wallet holds the operating keypair and address utilities.
package wallet

import (
	"crypto/ed25519"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKey is a 32-byte ed25519 public key (a Solana address).
type PublicKey [32]byte

// DecodePublicKey parses a base58 address.
func DecodePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != len(pk) {
		return pk, fmt.Errorf("decode address: expected 32 bytes, got %d", len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// Base58 renders the address.
func (pk PublicKey) Base58() string {
	return base58.Encode(pk[:])
}

// IsOnCurve reports whether the key decompresses to a valid curve point.
// Wallet addresses must be on-curve; program-derived addresses must not be.
func (pk PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// Keypair is the operating wallet's signing identity.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  PublicKey
}

// KeypairFromBase58 parses a base58-encoded 64-byte ed25519 secret key
// (seed || public key), the format wallet exporters produce.
func KeypairFromBase58(secret string) (*Keypair, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("decode secret key: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}

	priv := ed25519.PrivateKey(raw)
	var pub PublicKey
	copy(pub[:], priv.Public().(ed25519.PublicKey))

	if !pub.IsOnCurve() {
		return nil, fmt.Errorf("secret key yields off-curve public key")
	}

	return &Keypair{priv: priv, pub: pub}, nil
}

// PublicKey returns the wallet address.
func (k *Keypair) PublicKey() PublicKey {
	return k.pub
}

// Sign signs a message with the wallet key.
func (k *Keypair) Sign(message []byte) [64]byte {
	var sig [64]byte
	copy(sig[:], ed25519.Sign(k.priv, message))
	return sig
}
