// Package selector picks one token holder per cycle, weighted by holding
// size, using an externally verifiable random scalar.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sort"

	"fee-lottery/internal/domain"
	"fee-lottery/internal/solana"
	"fee-lottery/internal/vrf"
)

// Selection errors.
var (
	// ErrNoHolders means the directory returned no token accounts at all.
	ErrNoHolders = errors.New("no token accounts found")

	// ErrNoEligibleHolders means filtering left nothing to draw from
	// (only the pool and/or the excluded address hold the token).
	ErrNoEligibleHolders = errors.New("no eligible holders")

	// ErrExhausted means no cumulative weight reached the scalar. With
	// exact integer selection this cannot happen for a non-empty set;
	// kept as a guard.
	ErrExhausted = errors.New("weighted selection exhausted")
)

// HolderDirectory lists accounts holding the configured mint.
type HolderDirectory interface {
	GetTokenAccountsByMint(ctx context.Context, mint string) ([]solana.TokenAccount, error)
}

// RandomnessSource issues one verifiable random value per call.
type RandomnessSource interface {
	Request(ctx context.Context) (*vrf.Randomness, error)
}

// Config identifies the asset and the operational exclusion.
type Config struct {
	Mint            string
	ExcludedAddress string // treasury/dev wallet, never eligible
}

// Result is one completed selection with its provenance.
type Result struct {
	Winner        domain.Holder
	WinnerWeight  float64
	EligibleCount int
	Randomness    *vrf.Randomness
}

// Selector draws winners from the current holder set.
type Selector struct {
	directory HolderDirectory
	source    RandomnessSource
	config    Config
	logger    *log.Logger
}

// New creates a Selector.
func New(directory HolderDirectory, source RandomnessSource, config Config, logger *log.Logger) *Selector {
	if logger == nil {
		logger = log.Default()
	}
	return &Selector{
		directory: directory,
		source:    source,
		config:    config,
		logger:    logger,
	}
}

// Select fetches the holder set, requests randomness and picks the winner.
// The ordering used for cumulative weights is balance-descending with the
// top holder (the liquidity pool) removed; the pool is unconditionally
// ineligible as a policy, not a statistical adjustment.
func (s *Selector) Select(ctx context.Context) (*Result, error) {
	accounts, err := s.directory.GetTokenAccountsByMint(ctx, s.config.Mint)
	if err != nil {
		return nil, fmt.Errorf("fetch token accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrNoHolders
	}

	holders := Eligible(accounts, s.config.ExcludedAddress)
	if len(holders) == 0 {
		return nil, ErrNoEligibleHolders
	}

	randomness, err := s.source.Request(ctx)
	if err != nil {
		return nil, fmt.Errorf("request randomness: %w", err)
	}

	idx, err := pick(holders, randomness.U64())
	if err != nil {
		return nil, err
	}

	weighted := Weighted(holders)
	winner := weighted[idx]
	s.logger.Printf("selected holder %s with %d tokens (%.2f%% of eligible supply)",
		winner.Address, winner.Balance, winner.Weight*100)

	return &Result{
		Winner:        winner.Holder,
		WinnerWeight:  winner.Weight,
		EligibleCount: len(holders),
		Randomness:    randomness,
	}, nil
}

// Eligible filters and orders raw token accounts: zero balances and the
// excluded address are dropped, the rest is sorted by balance descending,
// then the largest holder is removed.
func Eligible(accounts []solana.TokenAccount, excluded string) []domain.Holder {
	holders := make([]domain.Holder, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Amount == 0 || acc.Owner == excluded {
			continue
		}
		holders = append(holders, domain.Holder{Address: acc.Owner, Balance: acc.Amount})
	}

	sort.SliceStable(holders, func(i, j int) bool {
		return holders[i].Balance > holders[j].Balance
	})

	if len(holders) == 0 {
		return nil
	}
	return holders[1:]
}

// Weighted annotates holders with float weight views for reporting.
// The invariant CumulativeWeight[n-1] == 1 holds within floating tolerance;
// selection never uses these floats.
func Weighted(holders []domain.Holder) []domain.WeightedHolder {
	var total float64
	for _, h := range holders {
		total += float64(h.Balance)
	}

	weighted := make([]domain.WeightedHolder, len(holders))
	var cumulative float64
	for i, h := range holders {
		weight := float64(h.Balance) / total
		cumulative += weight
		weighted[i] = domain.WeightedHolder{
			Holder:           h,
			Weight:           weight,
			CumulativeWeight: cumulative,
		}
	}
	return weighted
}

// pick returns the index of the first holder whose cumulative balance
// share reaches the scalar r/2^64. The comparison is exact fixed-point:
// cumBalance * 2^64 >= r * totalBalance, no floating accumulation.
func pick(holders []domain.Holder, r uint64) (int, error) {
	total := new(big.Int)
	for _, h := range holders {
		total.Add(total, new(big.Int).SetUint64(h.Balance))
	}

	threshold := new(big.Int).Mul(new(big.Int).SetUint64(r), total)

	cumulative := new(big.Int)
	shifted := new(big.Int)
	for i, h := range holders {
		cumulative.Add(cumulative, new(big.Int).SetUint64(h.Balance))
		shifted.Lsh(cumulative, 64)
		if shifted.Cmp(threshold) >= 0 {
			return i, nil
		}
	}
	return 0, ErrExhausted
}
