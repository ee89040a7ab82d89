package domain

// DistributionStatus is the terminal outcome recorded for a cycle.
type DistributionStatus string

const (
	// StatusDistributed means fees were claimed and paid out to a winner.
	StatusDistributed DistributionStatus = "DISTRIBUTED"
	// StatusNoFunds means the claim yielded nothing worth distributing.
	StatusNoFunds DistributionStatus = "NO_FUNDS"
	// StatusRandomnessFailed means the VRF did not fulfill in time and the
	// distribution was cancelled; claimed funds stay in the operating wallet.
	StatusRandomnessFailed DistributionStatus = "VRF_FAILED"
)

// WinnerRecord is the immutable per-cycle audit entry.
// Corresponds to the winners table in PostgreSQL; exactly one row per cycle_id.
type WinnerRecord struct {
	CycleID       int64              // UNIQUE key
	Status        DistributionStatus //
	Wallet        *string            // winner address, nil when no winner
	AmountSOL     float64            // winner's portion in SOL
	Signature     *string            // payout transaction signature

	// VRF provenance. All nil for NO_FUNDS rows.
	VRFSeed        *string  // base58 seed
	VRFTx          *string  // request transaction signature
	VRFRandomness  []byte   // raw 64-byte fulfillment
	VRFRandomValue *float64 // derived scalar in [0,1)
	VRFError       *string  // failure message for VRF_FAILED rows

	// Jackpot split, nil when no jackpot address is configured.
	JackpotAddress   *string
	JackpotAmountSOL *float64
	JackpotSignature *string

	CreatedAt int64 // Unix timestamp in milliseconds
}
