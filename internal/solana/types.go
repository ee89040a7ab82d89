package solana

// Well-known program addresses.
const (
	// SystemProgramID owns native SOL accounts and executes transfers.
	SystemProgramID = "11111111111111111111111111111111"

	// TokenProgramID is the SPL Token program.
	TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

	// tokenAccountDataSize is the serialized size of an SPL token account.
	tokenAccountDataSize = 165
)

// Blockhash is a recent blockhash with its validity horizon.
type Blockhash struct {
	Hash                 string
	LastValidBlockHeight uint64
}

// TokenAccount is one holder of a mint, as reported by getProgramAccounts.
type TokenAccount struct {
	Owner  string // owner wallet address
	Amount uint64 // raw token amount
}

// SignatureStatus is the confirmation state of a submitted transaction.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64
	ConfirmationStatus string // processed | confirmed | finalized
	Err                interface{}
}

// Confirmed reports whether the transaction reached at least the
// confirmed commitment without an execution error.
func (s *SignatureStatus) Confirmed() bool {
	if s == nil || s.Err != nil {
		return false
	}
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte // decoded account data
	Executable bool
}
