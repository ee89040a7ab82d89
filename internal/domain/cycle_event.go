package domain

// CycleEvent is the analytics projection of one terminal cycle outcome.
// Written best-effort to ClickHouse after the audit row; never read back
// by the service itself.
type CycleEvent struct {
	CycleID             int64
	Status              DistributionStatus
	ClaimedLamports     uint64
	DistributedLamports uint64
	EligibleHolders     uint32
	TimestampMs         int64
}
