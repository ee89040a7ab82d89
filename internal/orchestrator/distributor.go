// Package orchestrator sequences one distribution cycle:
// claim fees → select a holder → pay out → persist the audit record.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fee-lottery/internal/cycle"
	"fee-lottery/internal/domain"
	"fee-lottery/internal/payout"
	"fee-lottery/internal/selector"
	"fee-lottery/internal/storage"
	"fee-lottery/internal/wallet"
)

// DefaultMinThreshold in lamports. A claim delta at or below this is not
// worth distributing.
const DefaultMinThreshold = 5_000_000

// DefaultSettleWait is how long to let the claim transaction settle before
// measuring the balance delta.
const DefaultSettleWait = 10 * time.Second

// BalanceReader reads the operating wallet's lamport balance.
type BalanceReader interface {
	GetBalance(ctx context.Context, address string) (uint64, error)
}

// Claimer triggers the external creator-fee sweep. The claimed amount is
// never taken from its response; the distributor measures it as a balance
// delta around the call.
type Claimer interface {
	Claim(ctx context.Context) (string, error)
}

// HolderSelector picks one weighted-random holder.
type HolderSelector interface {
	Select(ctx context.Context) (*selector.Result, error)
}

// Payer moves the claimed funds to the winner and the optional jackpot.
type Payer interface {
	Payout(ctx context.Context, total uint64, winner wallet.PublicKey) (*payout.Receipt, error)
}

// MetricsRecorder receives per-cycle observations. Optional.
type MetricsRecorder interface {
	CycleCompleted(status string, claimedLamports, distributedLamports uint64)
	SelectionDuration(d time.Duration)
}

// Options for creating a Distributor. All collaborators are injected;
// there is no package-level shared state.
type Options struct {
	Clock    cycle.Clock
	Balances BalanceReader
	Claimer  Claimer
	Selector HolderSelector
	Payer    Payer
	Winners  storage.WinnerStore

	// Events receives analytics rows best-effort. May be nil.
	Events storage.CycleEventSink
	// Metrics may be nil.
	Metrics MetricsRecorder

	// OperatingAddress is the wallet whose balance delta measures the claim.
	OperatingAddress string
	// JackpotAddress recorded on distributed cycles; empty when no jackpot.
	JackpotAddress string

	// MinThreshold in lamports; a claim delta at or below it is NO_FUNDS.
	MinThreshold uint64
	// SettleWait between claim submission and the balance-after read.
	SettleWait time.Duration

	Logger *log.Logger
}

// Distributor runs the per-cycle state machine. One invocation is strictly
// sequential; duplicate invocations for the same cycle are resolved by the
// store's uniqueness constraint.
type Distributor struct {
	clock    cycle.Clock
	balances BalanceReader
	claimer  Claimer
	selector HolderSelector
	payer    Payer
	winners  storage.WinnerStore
	events   storage.CycleEventSink
	metrics  MetricsRecorder

	operating    string
	jackpot      string
	minThreshold uint64
	settleWait   time.Duration
	logger       *log.Logger
}

// New creates a Distributor.
func New(opts Options) *Distributor {
	if opts.MinThreshold == 0 {
		opts.MinThreshold = DefaultMinThreshold
	}
	if opts.SettleWait <= 0 {
		opts.SettleWait = DefaultSettleWait
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Distributor{
		clock:        opts.Clock,
		balances:     opts.Balances,
		claimer:      opts.Claimer,
		selector:     opts.Selector,
		payer:        opts.Payer,
		winners:      opts.Winners,
		events:       opts.Events,
		metrics:      opts.Metrics,
		operating:    opts.OperatingAddress,
		jackpot:      opts.JackpotAddress,
		minThreshold: opts.MinThreshold,
		settleWait:   opts.SettleWait,
		logger:       opts.Logger,
	}
}

// Run executes one distribution for the cycle containing now.
//
// Expected domain outcomes (already processed, no funds, randomness
// failure) come back as an Outcome; claim, payout and persistence errors
// come back as plain errors with no audit record written. Once fees are
// claimed the invocation runs to a terminal state; cancellation is not
// honored mid-cycle beyond what the collaborators themselves enforce.
func (d *Distributor) Run(ctx context.Context) (*Outcome, error) {
	cyc := d.clock.At(time.Now())
	d.logger.Printf("cycle %d: distribution starting (window %s..%s)",
		cyc.ID, cyc.Start.Format(time.RFC3339), cyc.End.Format(time.RFC3339))

	// Fast-path read. The insert at persist time stays authoritative for
	// concurrent triggers; this only avoids claiming twice in the common
	// sequential-retrigger case.
	existing, err := d.winners.GetByCycle(ctx, cyc.ID)
	if err == nil {
		d.logger.Printf("cycle %d: already processed (status=%s)", cyc.ID, existing.Status)
		return d.alreadyProcessed(cyc, existing), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}

	claim, err := d.claimFees(ctx)
	if err != nil {
		return nil, err
	}
	d.logger.Printf("cycle %d: claimed %d lamports (balance %d -> %d)",
		cyc.ID, claim.Claimed, claim.BalanceBefore, claim.BalanceAfter)

	if claim.Claimed <= d.minThreshold {
		return d.finishNoFunds(ctx, cyc, claim)
	}

	selStart := time.Now()
	sel, err := d.selector.Select(ctx)
	if d.metrics != nil {
		d.metrics.SelectionDuration(time.Since(selStart))
	}
	if err != nil {
		d.logger.Printf("cycle %d: selection failed, cancelling distribution: %v", cyc.ID, err)
		return d.finishRandomnessFailed(ctx, cyc, claim, err)
	}

	winnerPub, err := wallet.DecodePublicKey(sel.Winner.Address)
	if err != nil {
		return d.finishRandomnessFailed(ctx, cyc, claim, fmt.Errorf("decode winner address: %w", err))
	}

	receipt, err := d.payer.Payout(ctx, claim.Claimed, winnerPub)
	if err != nil {
		// Funds are claimed and a winner is selected, but no record is
		// written: the next invocation for this cycle retries from the top.
		return nil, fmt.Errorf("execute payout: %w", err)
	}

	return d.finishDistributed(ctx, cyc, claim, sel, receipt)
}

// claimFees runs the claim and measures the resulting balance delta.
func (d *Distributor) claimFees(ctx context.Context) (ClaimReport, error) {
	before, err := d.balances.GetBalance(ctx, d.operating)
	if err != nil {
		return ClaimReport{}, fmt.Errorf("balance before claim: %w", err)
	}

	sig, err := d.claimer.Claim(ctx)
	if err != nil {
		return ClaimReport{}, fmt.Errorf("claim fees: %w", err)
	}

	sleepCtx(ctx, d.settleWait)

	after, err := d.balances.GetBalance(ctx, d.operating)
	if err != nil {
		return ClaimReport{}, fmt.Errorf("balance after claim: %w", err)
	}

	var claimed uint64
	if after > before {
		claimed = after - before
	}
	return ClaimReport{
		Signature:     sig,
		BalanceBefore: before,
		BalanceAfter:  after,
		Claimed:       claimed,
	}, nil
}

func (d *Distributor) finishNoFunds(ctx context.Context, cyc cycle.Cycle, claim ClaimReport) (*Outcome, error) {
	record := &domain.WinnerRecord{
		CycleID:   cyc.ID,
		Status:    domain.StatusNoFunds,
		CreatedAt: time.Now().UnixMilli(),
	}

	stored, dup, err := d.persist(ctx, record)
	if err != nil {
		return nil, err
	}
	if dup {
		return d.alreadyProcessed(cyc, stored), nil
	}

	d.observe(ctx, cyc, domain.StatusNoFunds, claim.Claimed, 0, 0)
	return &Outcome{
		Cycle:   cyc,
		Status:  StatusNoFunds,
		NoFunds: &NoFundsOutcome{Claim: claim, Record: stored},
	}, nil
}

func (d *Distributor) finishRandomnessFailed(ctx context.Context, cyc cycle.Cycle, claim ClaimReport, cause error) (*Outcome, error) {
	msg := cause.Error()
	record := &domain.WinnerRecord{
		CycleID:   cyc.ID,
		Status:    domain.StatusRandomnessFailed,
		VRFError:  &msg,
		CreatedAt: time.Now().UnixMilli(),
	}

	stored, dup, err := d.persist(ctx, record)
	if err != nil {
		return nil, err
	}
	if dup {
		return d.alreadyProcessed(cyc, stored), nil
	}

	d.observe(ctx, cyc, domain.StatusRandomnessFailed, claim.Claimed, 0, 0)
	return &Outcome{
		Cycle:            cyc,
		Status:           StatusRandomnessFailed,
		RandomnessFailed: &RandomnessFailedOutcome{Claim: claim, Err: cause, Record: stored},
	}, nil
}

func (d *Distributor) finishDistributed(ctx context.Context, cyc cycle.Cycle, claim ClaimReport, sel *selector.Result, receipt *payout.Receipt) (*Outcome, error) {
	seed := sel.Randomness.SeedBase58()
	scalar := sel.Randomness.Scalar()

	record := &domain.WinnerRecord{
		CycleID:        cyc.ID,
		Status:         domain.StatusDistributed,
		Wallet:         &sel.Winner.Address,
		AmountSOL:      float64(receipt.WinnerAmount) / domain.LamportsPerSOL,
		Signature:      &receipt.Signature,
		VRFSeed:        &seed,
		VRFTx:          &sel.Randomness.Signature,
		VRFRandomness:  sel.Randomness.Bytes[:],
		VRFRandomValue: &scalar,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if receipt.JackpotAmount > 0 && d.jackpot != "" {
		jackpotSOL := float64(receipt.JackpotAmount) / domain.LamportsPerSOL
		record.JackpotAddress = &d.jackpot
		record.JackpotAmountSOL = &jackpotSOL
		record.JackpotSignature = &receipt.Signature
	}

	stored, dup, err := d.persist(ctx, record)
	if err != nil {
		return nil, err
	}
	if dup {
		return d.alreadyProcessed(cyc, stored), nil
	}

	d.logger.Printf("cycle %d: distributed %d lamports to %s (jackpot %d), tx %s",
		cyc.ID, receipt.WinnerAmount, sel.Winner.Address, receipt.JackpotAmount, receipt.Signature)
	d.observe(ctx, cyc, domain.StatusDistributed, claim.Claimed, receipt.Distributable, uint32(sel.EligibleCount))
	return &Outcome{
		Cycle:  cyc,
		Status: StatusDistributed,
		Distributed: &DistributedOutcome{
			Claim:     claim,
			Selection: sel,
			Receipt:   receipt,
			Record:    stored,
		},
	}, nil
}

// persist inserts the record. A duplicate key means another invocation won
// the cycle; the stored record is fetched and returned with dup=true.
func (d *Distributor) persist(ctx context.Context, record *domain.WinnerRecord) (*domain.WinnerRecord, bool, error) {
	err := d.winners.InsertIfAbsent(ctx, record)
	if err == nil {
		return record, false, nil
	}
	if errors.Is(err, storage.ErrDuplicateKey) {
		existing, getErr := d.winners.GetByCycle(ctx, record.CycleID)
		if getErr != nil {
			return nil, false, fmt.Errorf("fetch record after duplicate insert: %w", getErr)
		}
		return existing, true, nil
	}
	return nil, false, fmt.Errorf("persist winner record: %w", err)
}

func (d *Distributor) alreadyProcessed(cyc cycle.Cycle, record *domain.WinnerRecord) *Outcome {
	return &Outcome{
		Cycle:            cyc,
		Status:           StatusAlreadyProcessed,
		AlreadyProcessed: &AlreadyProcessedOutcome{Record: record},
	}
}

// observe emits metrics and the analytics row. Both are best-effort and
// never affect the outcome.
func (d *Distributor) observe(ctx context.Context, cyc cycle.Cycle, status domain.DistributionStatus, claimed, distributed uint64, eligible uint32) {
	if d.metrics != nil {
		d.metrics.CycleCompleted(string(status), claimed, distributed)
	}
	if d.events == nil {
		return
	}
	event := &domain.CycleEvent{
		CycleID:             cyc.ID,
		Status:              status,
		ClaimedLamports:     claimed,
		DistributedLamports: distributed,
		EligibleHolders:     eligible,
		TimestampMs:         time.Now().UnixMilli(),
	}
	if err := d.events.InsertCycleEvent(ctx, event); err != nil {
		d.logger.Printf("cycle %d: analytics insert failed: %v", cyc.ID, err)
	}
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
