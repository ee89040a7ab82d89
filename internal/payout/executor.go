// Package payout moves claimed funds to the winner and the optional
// jackpot pool in one atomic transaction.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/bits"
	"time"

	"fee-lottery/internal/solana"
	"fee-lottery/internal/wallet"
)

// Payout errors.
var (
	// ErrNothingToDistribute means the claimed amount does not cover the
	// fee buffer; no transfer is attempted.
	ErrNothingToDistribute = errors.New("nothing to distribute after fee buffer")

	// ErrUnconfirmed means the transfer was submitted but did not reach
	// confirmed commitment within the bound. Not retried automatically.
	ErrUnconfirmed = errors.New("transfer not confirmed in time")

	// ErrTransferFailed means the transfer executed with an on-chain error.
	ErrTransferFailed = errors.New("transfer failed on chain")
)

// Basis-point denominator for the split ratio.
const bpsDenominator = 10_000

// DefaultWinnerShareBps is the winner's share when a jackpot is configured.
const DefaultWinnerShareBps = 9_000

// rpcClient is the RPC surface the executor needs.
type rpcClient interface {
	GetLatestBlockhash(ctx context.Context) (*solana.Blockhash, error)
	SendTransaction(ctx context.Context, serialized []byte) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error)
}

// Split is the exact division of distributable funds.
type Split struct {
	Distributable uint64
	Winner        uint64
	Jackpot       uint64 // zero when no jackpot is configured
}

// ComputeSplit derives the transfer amounts. The two parts always sum
// exactly to distributable; nothing is lost to rounding.
func ComputeSplit(total, feeBuffer uint64, winnerShareBps uint64, hasJackpot bool) (Split, error) {
	if total <= feeBuffer {
		return Split{}, ErrNothingToDistribute
	}
	distributable := total - feeBuffer

	if !hasJackpot {
		return Split{Distributable: distributable, Winner: distributable}, nil
	}

	// floor(distributable * bps / 10000) in full 128-bit precision.
	hi, lo := bits.Mul64(distributable, winnerShareBps)
	winner, _ := bits.Div64(hi, lo, bpsDenominator)

	return Split{
		Distributable: distributable,
		Winner:        winner,
		Jackpot:       distributable - winner,
	}, nil
}

// Config for the executor.
type Config struct {
	// FeeBuffer in lamports retained for transaction fees.
	FeeBuffer uint64
	// WinnerShareBps is the winner's share of the distributable amount,
	// in basis points, when a jackpot address is set.
	WinnerShareBps uint64
	// JackpotAddress receives the remainder; nil sends 100% to the winner.
	JackpotAddress *wallet.PublicKey
	// ConfirmTimeout bounds the confirmation wait.
	ConfirmTimeout time.Duration
	// StatusPollInterval is the RPC polling cadence when the WebSocket
	// watcher is unavailable.
	StatusPollInterval time.Duration
}

// Receipt describes one executed payout.
type Receipt struct {
	Signature     string
	Distributable uint64
	WinnerAmount  uint64
	JackpotAmount uint64
}

// Executor submits payout transfers. A failed payout is surfaced to the
// caller and never retried here; the next cycle is the only retry.
type Executor struct {
	rpc     rpcClient
	watcher solana.SignatureWatcher // may be nil
	keypair *wallet.Keypair
	config  Config
	logger  *log.Logger
}

// New creates an Executor. watcher may be nil, in which case confirmation
// falls back to RPC status polling.
func New(rpc rpcClient, watcher solana.SignatureWatcher, kp *wallet.Keypair, config Config, logger *log.Logger) *Executor {
	if config.WinnerShareBps == 0 || config.WinnerShareBps > bpsDenominator {
		config.WinnerShareBps = DefaultWinnerShareBps
	}
	if config.ConfirmTimeout <= 0 {
		config.ConfirmTimeout = 60 * time.Second
	}
	if config.StatusPollInterval <= 0 {
		config.StatusPollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		rpc:     rpc,
		watcher: watcher,
		keypair: kp,
		config:  config,
		logger:  logger,
	}
}

// Payout splits the claimed total and transfers both parts in a single
// transaction: either both land or neither does.
func (e *Executor) Payout(ctx context.Context, total uint64, winner wallet.PublicKey) (*Receipt, error) {
	split, err := ComputeSplit(total, e.config.FeeBuffer, e.config.WinnerShareBps, e.config.JackpotAddress != nil)
	if err != nil {
		return nil, err
	}

	instructions := []solana.Instruction{
		solana.NewTransferInstruction(e.keypair.PublicKey(), winner, split.Winner),
	}
	if e.config.JackpotAddress != nil {
		instructions = append(instructions,
			solana.NewTransferInstruction(e.keypair.PublicKey(), *e.config.JackpotAddress, split.Jackpot))
	}

	blockhash, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest blockhash: %w", err)
	}

	tx, err := solana.BuildTransaction(e.keypair, blockhash.Hash, instructions...)
	if err != nil {
		return nil, fmt.Errorf("build payout transaction: %w", err)
	}

	sig, err := e.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("send payout transaction: %w", err)
	}
	e.logger.Printf("payout sent: %s (winner=%d jackpot=%d)", sig, split.Winner, split.Jackpot)

	if err := e.confirm(ctx, sig); err != nil {
		return nil, err
	}

	return &Receipt{
		Signature:     sig,
		Distributable: split.Distributable,
		WinnerAmount:  split.Winner,
		JackpotAmount: split.Jackpot,
	}, nil
}

// confirm waits for confirmed commitment, preferring the WebSocket
// subscription and degrading to status polling.
func (e *Executor) confirm(ctx context.Context, sig string) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.ConfirmTimeout)
	defer cancel()

	if e.watcher != nil {
		result, err := e.watcher.WaitForSignature(ctx, sig)
		if err == nil {
			if result.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransferFailed, result.Err)
			}
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrUnconfirmed
		}
		e.logger.Printf("websocket confirmation unavailable (%v), polling statuses", err)
	}

	return e.pollStatus(ctx, sig)
}

// pollStatus polls getSignatureStatuses until confirmation or deadline.
func (e *Executor) pollStatus(ctx context.Context, sig string) error {
	ticker := time.NewTicker(e.config.StatusPollInterval)
	defer ticker.Stop()

	for {
		statuses, err := e.rpc.GetSignatureStatuses(ctx, []string{sig})
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			if statuses[0].Err != nil {
				return fmt.Errorf("%w: %v", ErrTransferFailed, statuses[0].Err)
			}
			if statuses[0].Confirmed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ErrUnconfirmed
		case <-ticker.C:
		}
	}
}
