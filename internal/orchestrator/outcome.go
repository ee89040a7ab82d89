package orchestrator

import (
	"fee-lottery/internal/cycle"
	"fee-lottery/internal/domain"
	"fee-lottery/internal/payout"
	"fee-lottery/internal/selector"
)

// Status tags the terminal state of one invocation.
type Status string

const (
	// StatusAlreadyProcessed means a record for the cycle already existed;
	// nothing was claimed or moved.
	StatusAlreadyProcessed Status = "ALREADY_PROCESSED"
	// StatusNoFunds means the claim yielded nothing above the minimum threshold.
	StatusNoFunds Status = "NO_FUNDS"
	// StatusRandomnessFailed means selection could not complete; the
	// distribution was cancelled and claimed funds stay in the wallet.
	StatusRandomnessFailed Status = "VRF_FAILED"
	// StatusDistributed means a winner was paid.
	StatusDistributed Status = "DISTRIBUTED"
)

// Outcome is the result of one invocation. Exactly one case field matching
// Status is non-nil; every case carries only the fields its state produced.
type Outcome struct {
	Cycle  cycle.Cycle
	Status Status

	AlreadyProcessed *AlreadyProcessedOutcome
	NoFunds          *NoFundsOutcome
	RandomnessFailed *RandomnessFailedOutcome
	Distributed      *DistributedOutcome
}

// Record returns the audit record of whichever case is set.
func (o *Outcome) Record() *domain.WinnerRecord {
	switch o.Status {
	case StatusAlreadyProcessed:
		return o.AlreadyProcessed.Record
	case StatusNoFunds:
		return o.NoFunds.Record
	case StatusRandomnessFailed:
		return o.RandomnessFailed.Record
	case StatusDistributed:
		return o.Distributed.Record
	}
	return nil
}

// AlreadyProcessedOutcome returns the existing record untouched.
type AlreadyProcessedOutcome struct {
	Record *domain.WinnerRecord
}

// ClaimReport carries the balance-delta measurement around the fee claim.
type ClaimReport struct {
	Signature     string // claim transaction signature
	BalanceBefore uint64 // lamports
	BalanceAfter  uint64 // lamports
	Claimed       uint64 // lamports, max(after-before, 0)
}

// NoFundsOutcome means nothing worth distributing was claimed.
type NoFundsOutcome struct {
	Claim  ClaimReport
	Record *domain.WinnerRecord
}

// RandomnessFailedOutcome carries the selection failure that cancelled
// the distribution.
type RandomnessFailedOutcome struct {
	Claim  ClaimReport
	Err    error
	Record *domain.WinnerRecord
}

// DistributedOutcome is the full happy-path result.
type DistributedOutcome struct {
	Claim     ClaimReport
	Selection *selector.Result
	Receipt   *payout.Receipt
	Record    *domain.WinnerRecord
}
