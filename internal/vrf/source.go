// Package vrf adapts the Orao on-chain verifiable randomness service.
//
// One request is one 32-byte seed: the adapter submits a request
// instruction, waits a settle interval, then polls the seed's randomness
// account until the 64-byte fulfillment appears or the deadline passes.
// There is no local fallback randomness; a request that does not fulfill
// in time fails, and the caller cancels the distribution for the cycle.
package vrf

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mr-tron/base58"

	"fee-lottery/internal/solana"
	"fee-lottery/internal/wallet"
)

// ProgramID is the Orao VRF program address.
const ProgramID = "VRFzZoJdhFWL8rkvu87LpKM3RbcVezpMEc6X5GVDr7y"

// SourceName labels the randomness provenance in audit records.
const SourceName = "orao_vrf"

// PDA seeds defined by the VRF program.
var (
	networkStateSeed = []byte("orao-vrf-network-configuration")
	randomnessSeed   = []byte("orao-vrf-randomness-request")
)

// requestDiscriminator is the anchor discriminator of the request
// instruction: sha256("global:request")[:8].
var requestDiscriminator = []byte{0x2e, 0x65, 0x43, 0x0b, 0x4c, 0x89, 0x0c, 0xad}

// Randomness account layout offsets (after the 8-byte discriminator).
const (
	randomnessSeedOffset  = 8
	randomnessBytesOffset = 40
	randomnessBytesLen    = 64
	randomnessAccountMin  = randomnessBytesOffset + randomnessBytesLen

	// networkStateTreasuryOffset points at the treasury pubkey inside the
	// network-state account: discriminator(8) + authority(32).
	networkStateTreasuryOffset = 40
)

// ErrTimeout is returned when fulfillment does not arrive within the bound.
var ErrTimeout = errors.New("vrf: fulfillment timeout")

// Randomness is one fulfilled request with its provenance.
type Randomness struct {
	Seed      [32]byte
	Signature string // request transaction signature
	Bytes     [randomnessBytesLen]byte
}

// SeedBase58 renders the seed for audit records.
func (r *Randomness) SeedBase58() string {
	return base58.Encode(r.Seed[:])
}

// U64 folds the first 8 bytes of the fulfillment into an unsigned scalar.
// Byte i contributes byte[i] * 256^-(i+1), i.e. the big-endian u64 over 2^64.
func (r *Randomness) U64() uint64 {
	return binary.BigEndian.Uint64(r.Bytes[:8])
}

// Scalar is the float64 view of U64()/2^64, a value in [0,1). Selection
// itself uses the exact integer form; this view is for audit records.
func (r *Randomness) Scalar() float64 {
	return float64(r.U64()) / (1 << 32) / (1 << 32)
}

// Config bounds the request lifecycle.
type Config struct {
	// SettleDelay is the wait between submitting the request and the
	// first fulfillment poll.
	SettleDelay time.Duration
	// PollInterval is the wait between fulfillment polls.
	PollInterval time.Duration
	// Timeout bounds the whole request, submission included.
	Timeout time.Duration
}

// DefaultConfig mirrors the service's observed fulfillment latency.
func DefaultConfig() Config {
	return Config{
		SettleDelay:  8 * time.Second,
		PollInterval: 2 * time.Second,
		Timeout:      90 * time.Second,
	}
}

// Source requests verifiable randomness on behalf of the operating wallet.
type Source struct {
	rpc     solana.RPCClient
	keypair *wallet.Keypair
	config  Config
	logger  *log.Logger

	program wallet.PublicKey
}

// New creates a Source. Fails only on a malformed program id override.
func New(rpc solana.RPCClient, kp *wallet.Keypair, config Config, logger *log.Logger) (*Source, error) {
	defaults := DefaultConfig()
	if config.SettleDelay <= 0 {
		config.SettleDelay = defaults.SettleDelay
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	program, err := wallet.DecodePublicKey(ProgramID)
	if err != nil {
		return nil, fmt.Errorf("decode vrf program id: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Source{
		rpc:     rpc,
		keypair: kp,
		config:  config,
		logger:  logger,
		program: program,
	}, nil
}

// Request draws a fresh seed, submits the request and waits for
// fulfillment. The returned randomness is immutable provenance for the
// audit record.
func (s *Source) Request(ctx context.Context) (*Randomness, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("draw seed: %w", err)
	}

	sig, err := s.submitRequest(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("submit vrf request: %w", err)
	}
	s.logger.Printf("VRF request submitted: seed=%s tx=%s", base58.Encode(seed[:]), sig)

	if err := sleepCtx(ctx, s.config.SettleDelay); err != nil {
		return nil, mapDeadline(err)
	}

	fulfillment, err := s.waitFulfilled(ctx, seed)
	if err != nil {
		return nil, err
	}

	r := &Randomness{Seed: seed, Signature: sig}
	copy(r.Bytes[:], fulfillment)
	return r, nil
}

// submitRequest builds, signs and sends the request instruction.
func (s *Source) submitRequest(ctx context.Context, seed [32]byte) (string, error) {
	networkState, _, err := solana.FindProgramAddress([][]byte{networkStateSeed}, s.program)
	if err != nil {
		return "", fmt.Errorf("derive network state: %w", err)
	}

	treasury, err := s.fetchTreasury(ctx, networkState)
	if err != nil {
		return "", err
	}

	randomnessAccount, err := s.randomnessAddress(seed)
	if err != nil {
		return "", err
	}

	systemProgram, _ := wallet.DecodePublicKey(solana.SystemProgramID)

	data := make([]byte, 0, len(requestDiscriminator)+len(seed))
	data = append(data, requestDiscriminator...)
	data = append(data, seed[:]...)

	instruction := solana.Instruction{
		ProgramID: s.program,
		Accounts: []solana.AccountMeta{
			{PubKey: s.keypair.PublicKey(), IsSigner: true, IsWritable: true},
			{PubKey: networkState, IsWritable: true},
			{PubKey: treasury, IsWritable: true},
			{PubKey: randomnessAccount, IsWritable: true},
			{PubKey: systemProgram},
		},
		Data: data,
	}

	blockhash, err := s.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w", err)
	}

	tx, err := solana.BuildTransaction(s.keypair, blockhash.Hash, instruction)
	if err != nil {
		return "", err
	}

	return s.rpc.SendTransaction(ctx, tx)
}

// fetchTreasury reads the service treasury address from the network-state
// account.
func (s *Source) fetchTreasury(ctx context.Context, networkState wallet.PublicKey) (wallet.PublicKey, error) {
	var treasury wallet.PublicKey

	info, err := s.rpc.GetAccountInfo(ctx, networkState.Base58())
	if err != nil {
		return treasury, fmt.Errorf("fetch network state: %w", err)
	}
	if info == nil || len(info.Data) < networkStateTreasuryOffset+32 {
		return treasury, fmt.Errorf("network state account malformed")
	}

	copy(treasury[:], info.Data[networkStateTreasuryOffset:networkStateTreasuryOffset+32])
	return treasury, nil
}

// randomnessAddress derives the per-seed randomness account.
func (s *Source) randomnessAddress(seed [32]byte) (wallet.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{randomnessSeed, seed[:]}, s.program)
	if err != nil {
		return wallet.PublicKey{}, fmt.Errorf("derive randomness account: %w", err)
	}
	return addr, nil
}

// waitFulfilled polls the randomness account until the fulfillment bytes
// are non-zero.
func (s *Source) waitFulfilled(ctx context.Context, seed [32]byte) ([]byte, error) {
	account, err := s.randomnessAddress(seed)
	if err != nil {
		return nil, err
	}
	address := account.Base58()

	for {
		info, err := s.rpc.GetAccountInfo(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("poll randomness account: %w", err)
		}

		if info != nil && len(info.Data) >= randomnessAccountMin {
			fulfillment := info.Data[randomnessBytesOffset : randomnessBytesOffset+randomnessBytesLen]
			if !allZero(fulfillment) {
				if !bytes.Equal(info.Data[randomnessSeedOffset:randomnessSeedOffset+32], seed[:]) {
					return nil, fmt.Errorf("randomness account seed mismatch")
				}
				return fulfillment, nil
			}
		}

		if err := sleepCtx(ctx, s.config.PollInterval); err != nil {
			return nil, mapDeadline(err)
		}
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func mapDeadline(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
