package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fee-lottery/internal/wallet"
)

func testKeypair(t *testing.T) *wallet.Keypair {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	kp, err := wallet.KeypairFromBase58(base58.Encode(priv))
	require.NoError(t, err)
	return kp
}

func testBlockhash() string {
	return base58.Encode(bytes.Repeat([]byte{7}, 32))
}

func TestCompactU16_RoundTrip(t *testing.T) {
	tests := []struct {
		value   int
		encoded []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		writeCompactU16(&buf, tt.value)
		assert.Equal(t, tt.encoded, buf.Bytes(), "encode %d", tt.value)

		decoded, n, err := readCompactU16(tt.encoded)
		require.NoError(t, err)
		assert.Equal(t, tt.value, decoded)
		assert.Equal(t, len(tt.encoded), n)
	}
}

func TestReadCompactU16_Truncated(t *testing.T) {
	_, _, err := readCompactU16(nil)
	assert.Error(t, err)

	_, _, err = readCompactU16([]byte{0x80})
	assert.Error(t, err)
}

func TestNewTransferInstruction_Data(t *testing.T) {
	from := testKeypair(t).PublicKey()
	to := testKeypair(t).PublicKey()

	ins := NewTransferInstruction(from, to, 4_500_000)

	require.Len(t, ins.Data, 12)
	assert.Equal(t, uint32(systemTransferIndex), binary.LittleEndian.Uint32(ins.Data[0:4]))
	assert.Equal(t, uint64(4_500_000), binary.LittleEndian.Uint64(ins.Data[4:12]))
	assert.Equal(t, SystemProgramID, ins.ProgramID.Base58())
	assert.True(t, ins.Accounts[0].IsSigner)
	assert.True(t, ins.Accounts[0].IsWritable)
	assert.False(t, ins.Accounts[1].IsSigner)
}

func TestBuildTransaction_SignatureVerifies(t *testing.T) {
	kp := testKeypair(t)
	to := testKeypair(t).PublicKey()

	tx, err := BuildTransaction(kp, testBlockhash(),
		NewTransferInstruction(kp.PublicKey(), to, 1000))
	require.NoError(t, err)

	// One signature slot, then 64-byte signature, then the message.
	numSigs, n, err := readCompactU16(tx)
	require.NoError(t, err)
	require.Equal(t, 1, numSigs)

	sig := tx[n : n+64]
	message := tx[n+64:]

	pub, err := wallet.DecodePublicKey(kp.PublicKey().Base58())
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub[:], message, sig))

	// Message header: 1 signer, 0 readonly signed, 1 readonly unsigned
	// (the system program).
	assert.Equal(t, byte(1), message[0])
	assert.Equal(t, byte(0), message[1])
	assert.Equal(t, byte(1), message[2])
}

func TestBuildTransaction_TwoTransfersShareAccounts(t *testing.T) {
	kp := testKeypair(t)
	winner := testKeypair(t).PublicKey()
	jackpot := testKeypair(t).PublicKey()

	tx, err := BuildTransaction(kp, testBlockhash(),
		NewTransferInstruction(kp.PublicKey(), winner, 900),
		NewTransferInstruction(kp.PublicKey(), jackpot, 100))
	require.NoError(t, err)

	_, n, err := readCompactU16(tx)
	require.NoError(t, err)
	message := tx[n+64:]

	// 4 unique accounts: payer, winner, jackpot, system program.
	numKeys, _, err := readCompactU16(message[3:])
	require.NoError(t, err)
	assert.Equal(t, 4, numKeys)

	// Payer appears first.
	var payer wallet.PublicKey
	copy(payer[:], message[4:36])
	assert.Equal(t, kp.PublicKey(), payer)
}

func TestBuildTransaction_BadBlockhash(t *testing.T) {
	kp := testKeypair(t)
	_, err := BuildTransaction(kp, "not-a-hash",
		NewTransferInstruction(kp.PublicKey(), kp.PublicKey(), 1))
	assert.Error(t, err)
}

func TestSignSerializedTransaction(t *testing.T) {
	kp := testKeypair(t)
	message := []byte("versioned message bytes from the portal")

	// Emulate an unsigned transaction with one empty signature slot.
	raw := append([]byte{1}, make([]byte, 64)...)
	raw = append(raw, message...)

	signed, sigB58, err := SignSerializedTransaction(raw, kp)
	require.NoError(t, err)

	sig, err := base58.Decode(sigB58)
	require.NoError(t, err)

	pub, _ := wallet.DecodePublicKey(kp.PublicKey().Base58())
	assert.True(t, ed25519.Verify(pub[:], message, sig))
	assert.Equal(t, sig, signed[1:65])
	assert.Equal(t, message, signed[65:])

	// Original slice untouched.
	assert.Equal(t, make([]byte, 64), raw[1:65])
}

func TestSignSerializedTransaction_Invalid(t *testing.T) {
	kp := testKeypair(t)

	_, _, err := SignSerializedTransaction(nil, kp)
	assert.Error(t, err)

	// Two signature slots are not supported.
	raw := append([]byte{2}, make([]byte, 129)...)
	_, _, err = SignSerializedTransaction(raw, kp)
	assert.Error(t, err)

	// Truncated body.
	_, _, err = SignSerializedTransaction([]byte{1, 0, 0}, kp)
	assert.Error(t, err)
}
