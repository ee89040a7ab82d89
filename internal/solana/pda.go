package solana

import (
	"crypto/sha256"
	"fmt"

	"fee-lottery/internal/wallet"
)

// FindProgramAddress derives a program address from seeds, walking bump
// values down from 255 until the result lands off the ed25519 curve.
func FindProgramAddress(seeds [][]byte, programID wallet.PublicKey) (wallet.PublicKey, byte, error) {
	for bump := 255; bump >= 0; bump-- {
		candidate, err := createProgramAddress(seeds, byte(bump), programID)
		if err == nil {
			return candidate, byte(bump), nil
		}
	}
	return wallet.PublicKey{}, 0, fmt.Errorf("no viable program address bump for seeds")
}

// createProgramAddress hashes seeds with the bump and program id; fails if
// the result is a valid curve point, which would make it signable.
func createProgramAddress(seeds [][]byte, bump byte, programID wallet.PublicKey) (wallet.PublicKey, error) {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write(programID[:])
	h.Write([]byte("ProgramDerivedAddress"))

	var pk wallet.PublicKey
	copy(pk[:], h.Sum(nil))

	if pk.IsOnCurve() {
		return wallet.PublicKey{}, fmt.Errorf("derived address is on curve")
	}
	return pk, nil
}
