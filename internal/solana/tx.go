package solana

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"

	"fee-lottery/internal/wallet"
)

// AccountMeta describes how an instruction references an account.
type AccountMeta struct {
	PubKey     wallet.PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is one program invocation within a transaction.
type Instruction struct {
	ProgramID wallet.PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// System program transfer instruction index.
const systemTransferIndex = 2

// NewTransferInstruction builds a system-program SOL transfer.
func NewTransferInstruction(from, to wallet.PublicKey, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	program, _ := wallet.DecodePublicKey(SystemProgramID)
	return Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			{PubKey: from, IsSigner: true, IsWritable: true},
			{PubKey: to, IsSigner: false, IsWritable: true},
		},
		Data: data,
	}
}

// BuildTransaction assembles and signs a legacy transaction with a single
// fee payer. Payer must be the keypair's public key.
func BuildTransaction(kp *wallet.Keypair, blockhash string, instructions ...Instruction) ([]byte, error) {
	message, err := serializeMessage(kp.PublicKey(), blockhash, instructions)
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}

	sig := kp.Sign(message)

	var buf bytes.Buffer
	writeCompactU16(&buf, 1)
	buf.Write(sig[:])
	buf.Write(message)
	return buf.Bytes(), nil
}

// serializeMessage encodes a legacy message: header, account keys, recent
// blockhash, instructions. Account ordering: writable signers, readonly
// signers, writable non-signers, readonly non-signers; payer first.
func serializeMessage(payer wallet.PublicKey, blockhash string, instructions []Instruction) ([]byte, error) {
	type accountFlags struct {
		signer   bool
		writable bool
	}
	flags := map[wallet.PublicKey]*accountFlags{
		payer: {signer: true, writable: true},
	}
	order := []wallet.PublicKey{payer}

	note := func(key wallet.PublicKey, signer, writable bool) {
		f, ok := flags[key]
		if !ok {
			f = &accountFlags{}
			flags[key] = f
			order = append(order, key)
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}

	for _, ins := range instructions {
		for _, acc := range ins.Accounts {
			note(acc.PubKey, acc.IsSigner, acc.IsWritable)
		}
		note(ins.ProgramID, false, false)
	}

	// Partition into the canonical message ordering.
	var keys []wallet.PublicKey
	pick := func(signer, writable bool) {
		for _, key := range order {
			f := flags[key]
			if f.signer == signer && f.writable == writable {
				keys = append(keys, key)
			}
		}
	}
	pick(true, true)
	pick(true, false)
	pick(false, true)
	pick(false, false)

	index := make(map[wallet.PublicKey]byte, len(keys))
	var numSigners, numReadonlySigned, numReadonlyUnsigned byte
	for i, key := range keys {
		index[key] = byte(i)
		f := flags[key]
		if f.signer {
			numSigners++
			if !f.writable {
				numReadonlySigned++
			}
		} else if !f.writable {
			numReadonlyUnsigned++
		}
	}

	hash, err := base58.Decode(blockhash)
	if err != nil {
		return nil, fmt.Errorf("decode blockhash: %w", err)
	}
	if len(hash) != 32 {
		return nil, fmt.Errorf("blockhash must be 32 bytes, got %d", len(hash))
	}

	var buf bytes.Buffer
	buf.WriteByte(numSigners)
	buf.WriteByte(numReadonlySigned)
	buf.WriteByte(numReadonlyUnsigned)

	writeCompactU16(&buf, len(keys))
	for _, key := range keys {
		buf.Write(key[:])
	}

	buf.Write(hash)

	writeCompactU16(&buf, len(instructions))
	for _, ins := range instructions {
		buf.WriteByte(index[ins.ProgramID])
		writeCompactU16(&buf, len(ins.Accounts))
		for _, acc := range ins.Accounts {
			buf.WriteByte(index[acc.PubKey])
		}
		writeCompactU16(&buf, len(ins.Data))
		buf.Write(ins.Data)
	}

	return buf.Bytes(), nil
}

// SignSerializedTransaction signs a pre-built transaction (legacy or
// versioned) in place as the fee payer and returns the signed bytes with
// the base58 signature. The externally supplied transaction must reserve
// exactly one signature slot.
func SignSerializedTransaction(raw []byte, kp *wallet.Keypair) ([]byte, string, error) {
	numSigs, n, err := readCompactU16(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse signature count: %w", err)
	}
	if numSigs != 1 {
		return nil, "", fmt.Errorf("expected 1 signature slot, got %d", numSigs)
	}

	messageStart := n + numSigs*64
	if len(raw) <= messageStart {
		return nil, "", fmt.Errorf("transaction truncated: %d bytes", len(raw))
	}

	sig := kp.Sign(raw[messageStart:])
	signed := make([]byte, len(raw))
	copy(signed, raw)
	copy(signed[n:n+64], sig[:])

	return signed, base58.Encode(sig[:]), nil
}

// writeCompactU16 encodes a length in the compact-u16 format used by
// Solana's short-vec arrays.
func writeCompactU16(buf *bytes.Buffer, value int) {
	v := uint16(value)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}

// readCompactU16 decodes a compact-u16 value, returning it and the number
// of bytes consumed.
func readCompactU16(data []byte) (int, int, error) {
	var value int
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("unexpected end of data")
		}
		b := data[i]
		value |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}
