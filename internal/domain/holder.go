package domain

// Holder is a token-holding account fetched fresh each cycle. Not persisted.
type Holder struct {
	Address string // owner wallet address
	Balance uint64 // raw token amount
}

// WeightedHolder is a Holder annotated with its share of the eligible
// balance. Weights are derived views for reporting; selection itself runs
// on integer cumulative balances to avoid rounding drift at the boundaries.
type WeightedHolder struct {
	Holder
	Weight           float64 // balance / totalEligibleBalance
	CumulativeWeight float64 // non-decreasing over the selection order
}

// Lamports per SOL.
const LamportsPerSOL = 1_000_000_000

// ToSOL converts a lamport amount to SOL for reporting.
func ToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}
