package orchestrator

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"fee-lottery/internal/cycle"
	"fee-lottery/internal/domain"
	"fee-lottery/internal/payout"
	"fee-lottery/internal/selector"
	"fee-lottery/internal/storage"
	"fee-lottery/internal/storage/memory"
	"fee-lottery/internal/vrf"
	"fee-lottery/internal/wallet"
)

const (
	testOperating = "operating-wallet"
	testWinner    = "11111111111111111111111111111111" // decodes to 32 bytes
	testJackpot   = "JackpotPool111111111111111111111"
)

// fakeBalances returns balances in sequence: before-claim, after-claim, ...
type fakeBalances struct {
	sequence []uint64
	calls    int
	err      error
}

func (f *fakeBalances) GetBalance(_ context.Context, _ string) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.calls >= len(f.sequence) {
		return f.sequence[len(f.sequence)-1], nil
	}
	v := f.sequence[f.calls]
	f.calls++
	return v, nil
}

type fakeClaimer struct {
	sig   string
	err   error
	calls int
}

func (f *fakeClaimer) Claim(_ context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.sig, nil
}

type fakeSelector struct {
	result *selector.Result
	err    error
	calls  int
}

func (f *fakeSelector) Select(_ context.Context) (*selector.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakePayer computes the real split so conservation carries into the record.
type fakePayer struct {
	feeBuffer  uint64
	shareBps   uint64
	hasJackpot bool
	err        error
	calls      int
	lastTotal  uint64
}

func (f *fakePayer) Payout(_ context.Context, total uint64, _ wallet.PublicKey) (*payout.Receipt, error) {
	f.calls++
	f.lastTotal = total
	if f.err != nil {
		return nil, f.err
	}
	split, err := payout.ComputeSplit(total, f.feeBuffer, f.shareBps, f.hasJackpot)
	if err != nil {
		return nil, err
	}
	return &payout.Receipt{
		Signature:     "payout-sig",
		Distributable: split.Distributable,
		WinnerAmount:  split.Winner,
		JackpotAmount: split.Jackpot,
	}, nil
}

func testRandomness() *vrf.Randomness {
	r := &vrf.Randomness{Signature: "vrf-request-sig"}
	// First 8 bytes map to scalar 0.5.
	binary.BigEndian.PutUint64(r.Bytes[:8], 1<<63)
	return r
}

func testSelection() *selector.Result {
	return &selector.Result{
		Winner:        domain.Holder{Address: testWinner, Balance: 1000},
		WinnerWeight:  0.25,
		EligibleCount: 4,
		Randomness:    testRandomness(),
	}
}

type testEnv struct {
	store    *memory.WinnerStore
	balances *fakeBalances
	claimer  *fakeClaimer
	selector *fakeSelector
	payer    *fakePayer
}

func newTestDistributor(env *testEnv) *Distributor {
	opts := Options{
		Clock:            cycle.NewClock(5 * time.Minute),
		Balances:         env.balances,
		Claimer:          env.claimer,
		Selector:         env.selector,
		Payer:            env.payer,
		Winners:          env.store,
		OperatingAddress: testOperating,
		MinThreshold:     5_000_000,
		SettleWait:       time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	}
	if env.payer != nil && env.payer.hasJackpot {
		opts.JackpotAddress = testJackpot
	}
	return New(opts)
}

func defaultEnv() *testEnv {
	return &testEnv{
		store:    memory.NewWinnerStore(),
		balances: &fakeBalances{sequence: []uint64{100_000_000, 110_000_000}},
		claimer:  &fakeClaimer{sig: "claim-sig"},
		selector: &fakeSelector{result: testSelection()},
		payer:    &fakePayer{feeBuffer: 5_000_000, shareBps: 9000},
	}
}

func TestDistributor_ZeroClaimIsNoFunds(t *testing.T) {
	env := defaultEnv()
	env.balances.sequence = []uint64{100_000_000, 100_000_000}
	d := newTestDistributor(env)

	outcome, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if outcome.Status != StatusNoFunds {
		t.Fatalf("expected NO_FUNDS, got %s", outcome.Status)
	}
	record := outcome.Record()
	if record.Status != domain.StatusNoFunds {
		t.Errorf("record status = %s", record.Status)
	}
	if record.Wallet != nil {
		t.Errorf("expected nil winner, got %v", *record.Wallet)
	}
	if record.AmountSOL != 0 {
		t.Errorf("expected amount 0, got %f", record.AmountSOL)
	}
	if env.selector.calls != 0 {
		t.Error("selection should not run when nothing was claimed")
	}
	if env.payer.calls != 0 {
		t.Error("payout should not run when nothing was claimed")
	}

	// The record must be persisted.
	if _, err := env.store.GetByCycle(context.Background(), record.CycleID); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
}

func TestDistributor_ClaimBelowThresholdIsNoFunds(t *testing.T) {
	env := defaultEnv()
	// Delta of exactly the threshold is still NO_FUNDS.
	env.balances.sequence = []uint64{100_000_000, 105_000_000}
	d := newTestDistributor(env)

	outcome, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Status != StatusNoFunds {
		t.Fatalf("expected NO_FUNDS, got %s", outcome.Status)
	}
	if outcome.NoFunds.Claim.Claimed != 5_000_000 {
		t.Errorf("claimed = %d", outcome.NoFunds.Claim.Claimed)
	}
}

func TestDistributor_SingleTransferDistribution(t *testing.T) {
	env := defaultEnv()
	// Claimed 10M, buffer 5M, no jackpot: winner gets 5M.
	d := newTestDistributor(env)

	outcome, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if outcome.Status != StatusDistributed {
		t.Fatalf("expected DISTRIBUTED, got %s", outcome.Status)
	}
	dist := outcome.Distributed
	if env.payer.lastTotal != 10_000_000 {
		t.Errorf("payout total = %d, want claimed delta 10000000", env.payer.lastTotal)
	}
	if dist.Receipt.WinnerAmount != 5_000_000 {
		t.Errorf("winner amount = %d", dist.Receipt.WinnerAmount)
	}
	if dist.Receipt.JackpotAmount != 0 {
		t.Errorf("jackpot amount = %d", dist.Receipt.JackpotAmount)
	}

	record := outcome.Record()
	if record.Wallet == nil || *record.Wallet != testWinner {
		t.Errorf("record wallet = %v", record.Wallet)
	}
	if record.AmountSOL != 0.005 {
		t.Errorf("record amount = %f SOL", record.AmountSOL)
	}
	if record.Signature == nil || *record.Signature != "payout-sig" {
		t.Errorf("record signature = %v", record.Signature)
	}
	if record.VRFSeed == nil || record.VRFTx == nil || record.VRFRandomValue == nil {
		t.Error("VRF provenance missing from record")
	}
	if *record.VRFRandomValue != 0.5 {
		t.Errorf("vrf random value = %f", *record.VRFRandomValue)
	}
	if record.JackpotAddress != nil {
		t.Error("no jackpot configured, jackpot address must be nil")
	}
}

func TestDistributor_JackpotSplitDistribution(t *testing.T) {
	env := defaultEnv()
	env.payer.hasJackpot = true
	d := newTestDistributor(env)

	outcome, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	dist := outcome.Distributed
	if dist.Receipt.WinnerAmount != 4_500_000 || dist.Receipt.JackpotAmount != 500_000 {
		t.Errorf("split = %d/%d, want 4500000/500000",
			dist.Receipt.WinnerAmount, dist.Receipt.JackpotAmount)
	}
	if dist.Receipt.WinnerAmount+dist.Receipt.JackpotAmount != dist.Receipt.Distributable {
		t.Error("split does not sum to distributable")
	}

	record := outcome.Record()
	if record.JackpotAddress == nil || *record.JackpotAddress != testJackpot {
		t.Errorf("jackpot address = %v", record.JackpotAddress)
	}
	if record.JackpotAmountSOL == nil || *record.JackpotAmountSOL != 0.0005 {
		t.Errorf("jackpot amount = %v", record.JackpotAmountSOL)
	}
}

func TestDistributor_SecondTriggerIsAlreadyProcessed(t *testing.T) {
	env := defaultEnv()
	d := newTestDistributor(env)
	ctx := context.Background()

	first, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.Status != StatusDistributed {
		t.Fatalf("first run status = %s", first.Status)
	}

	second, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Status != StatusAlreadyProcessed {
		t.Fatalf("second run status = %s, want ALREADY_PROCESSED", second.Status)
	}
	if second.Record().CreatedAt != first.Record().CreatedAt {
		t.Error("second run returned a different record")
	}
	if env.claimer.calls != 1 {
		t.Errorf("claim ran %d times, want 1", env.claimer.calls)
	}

	// Exactly one persisted record.
	records, err := env.store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
}

func TestDistributor_RandomnessTimeoutCancelsDistribution(t *testing.T) {
	env := defaultEnv()
	env.selector = &fakeSelector{err: vrf.ErrTimeout}
	d := newTestDistributor(env)

	outcome, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if outcome.Status != StatusRandomnessFailed {
		t.Fatalf("expected VRF_FAILED, got %s", outcome.Status)
	}
	if !errors.Is(outcome.RandomnessFailed.Err, vrf.ErrTimeout) {
		t.Errorf("cause = %v", outcome.RandomnessFailed.Err)
	}

	record := outcome.Record()
	if record.Status != domain.StatusRandomnessFailed {
		t.Errorf("record status = %s", record.Status)
	}
	if record.Wallet != nil {
		t.Error("winner must be nil on randomness failure")
	}
	if record.AmountSOL != 0 {
		t.Errorf("amount = %f, want 0", record.AmountSOL)
	}
	if record.VRFError == nil {
		t.Fatal("vrf error message missing from record")
	}
	if env.payer.calls != 0 {
		t.Error("payout must not run after selection failure")
	}
}

func TestDistributor_NoEligibleHoldersCancelsDistribution(t *testing.T) {
	env := defaultEnv()
	env.selector = &fakeSelector{err: selector.ErrNoEligibleHolders}
	d := newTestDistributor(env)

	outcome, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Status != StatusRandomnessFailed {
		t.Fatalf("expected VRF_FAILED, got %s", outcome.Status)
	}
}

func TestDistributor_ClaimFailureWritesNoRecord(t *testing.T) {
	env := defaultEnv()
	env.claimer = &fakeClaimer{err: errors.New("portal unavailable")}
	d := newTestDistributor(env)
	ctx := context.Background()

	_, err := d.Run(ctx)
	if err == nil {
		t.Fatal("expected error from claim failure")
	}

	records, _ := env.store.ListRecent(ctx, 10)
	if len(records) != 0 {
		t.Errorf("claim failure must not write a record, found %d", len(records))
	}
}

func TestDistributor_PayoutFailureWritesNoRecord(t *testing.T) {
	env := defaultEnv()
	env.payer = &fakePayer{err: errors.New("send failed")}
	d := newTestDistributor(env)
	ctx := context.Background()

	_, err := d.Run(ctx)
	if err == nil {
		t.Fatal("expected error from payout failure")
	}

	records, _ := env.store.ListRecent(ctx, 10)
	if len(records) != 0 {
		t.Errorf("payout failure must not write a record, found %d", len(records))
	}
}

// raceStore simulates a concurrent trigger that inserts between the
// preliminary read and the final insert.
type raceStore struct {
	*memory.WinnerStore
	reads int
}

func (s *raceStore) GetByCycle(ctx context.Context, cycleID int64) (*domain.WinnerRecord, error) {
	s.reads++
	if s.reads == 1 {
		return nil, storage.ErrNotFound
	}
	return s.WinnerStore.GetByCycle(ctx, cycleID)
}

func TestDistributor_DuplicateInsertResolvesToAlreadyProcessed(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewWinnerStore()
	env := defaultEnv()
	race := &raceStore{WinnerStore: inner}

	d := New(Options{
		Clock:            cycle.NewClock(5 * time.Minute),
		Balances:         env.balances,
		Claimer:          env.claimer,
		Selector:         env.selector,
		Payer:            env.payer,
		Winners:          race,
		OperatingAddress: testOperating,
		MinThreshold:     5_000_000,
		SettleWait:       time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	})

	// Seed the record the "concurrent" invocation wrote.
	cyc := cycle.NewClock(5 * time.Minute).At(time.Now())
	seeded := &domain.WinnerRecord{CycleID: cyc.ID, Status: domain.StatusNoFunds, CreatedAt: 123}
	if err := inner.InsertIfAbsent(ctx, seeded); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	outcome, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Status != StatusAlreadyProcessed {
		t.Fatalf("expected ALREADY_PROCESSED from duplicate insert, got %s", outcome.Status)
	}
	if outcome.Record().CreatedAt != 123 {
		t.Error("expected the concurrently stored record to be returned")
	}
}

func TestDistributor_AnalyticsSinkFailureIsNonFatal(t *testing.T) {
	env := defaultEnv()
	d := newTestDistributor(env)
	d.events = failingSink{}

	outcome, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Status != StatusDistributed {
		t.Errorf("status = %s", outcome.Status)
	}
}

type failingSink struct{}

func (failingSink) InsertCycleEvent(context.Context, *domain.CycleEvent) error {
	return errors.New("clickhouse down")
}
