package selector

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fee-lottery/internal/domain"
	"fee-lottery/internal/solana"
	"fee-lottery/internal/vrf"
)

func TestEligible_FiltersAndDropsPool(t *testing.T) {
	accounts := []solana.TokenAccount{
		{Owner: "small", Amount: 100},
		{Owner: "pool", Amount: 1_000_000},
		{Owner: "dev", Amount: 50_000},
		{Owner: "empty", Amount: 0},
		{Owner: "mid", Amount: 5_000},
	}

	holders := Eligible(accounts, "dev")

	require.Len(t, holders, 2)
	// Pool (largest) dropped, remainder still balance-descending.
	assert.Equal(t, "mid", holders[0].Address)
	assert.Equal(t, "small", holders[1].Address)
	for _, h := range holders {
		assert.NotEqual(t, "pool", h.Address)
		assert.NotEqual(t, "dev", h.Address)
		assert.NotZero(t, h.Balance)
	}
}

func TestEligible_PoolLargestNeverEligible(t *testing.T) {
	accounts := []solana.TokenAccount{
		{Owner: "a", Amount: 10},
		{Owner: "whale", Amount: 999},
		{Owner: "b", Amount: 20},
	}

	holders := Eligible(accounts, "")
	for _, h := range holders {
		assert.NotEqual(t, "whale", h.Address)
	}
}

func TestEligible_Empty(t *testing.T) {
	assert.Nil(t, Eligible(nil, "dev"))
	assert.Empty(t, Eligible([]solana.TokenAccount{{Owner: "dev", Amount: 5}}, "dev"))
	// Only the pool holds the token.
	assert.Empty(t, Eligible([]solana.TokenAccount{{Owner: "pool", Amount: 5}}, ""))
}

func TestWeighted_Conservation(t *testing.T) {
	holders := []domain.Holder{
		{Address: "a", Balance: 3_333},
		{Address: "b", Balance: 1_234_567},
		{Address: "c", Balance: 1},
		{Address: "d", Balance: 999_999_999_999},
	}

	weighted := Weighted(holders)
	require.Len(t, weighted, len(holders))

	var sum float64
	prev := 0.0
	for _, w := range weighted {
		sum += w.Weight
		assert.GreaterOrEqual(t, w.CumulativeWeight, prev, "cumulative must be non-decreasing")
		prev = w.CumulativeWeight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 1.0, weighted[len(weighted)-1].CumulativeWeight, 1e-9)
}

func TestPick_Deterministic(t *testing.T) {
	holders := []domain.Holder{
		{Address: "a", Balance: 50},
		{Address: "b", Balance: 30},
		{Address: "c", Balance: 20},
	}

	scalar := func(f float64) uint64 { return uint64(f * math.Pow(2, 64)) }

	tests := []struct {
		name string
		r    uint64
		want int
	}{
		{"zero scalar", 0, 0},
		{"exactly first boundary", 1 << 63, 0}, // cum 0.5 >= 0.5
		{"just past first boundary", 1<<63 + 1, 1},
		{"mid second", scalar(0.7), 1},
		// 0.8*2^64 is not an integer; the boundary sits between these.
		{"last scalar reaching second", 14757395258967641292, 1},
		{"first scalar past second", 14757395258967641293, 2},
		{"last holder", scalar(0.95), 2},
		{"max scalar", math.MaxUint64, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := pick(holders, tt.r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, idx)
		})
	}
}

func TestPick_SingleHolderAlwaysWins(t *testing.T) {
	holders := []domain.Holder{{Address: "only", Balance: 7}}
	for _, r := range []uint64{0, 1, 1 << 63, math.MaxUint64} {
		idx, err := pick(holders, r)
		require.NoError(t, err)
		assert.Equal(t, 0, idx)
	}
}

func TestPick_FrequencyConvergesToWeights(t *testing.T) {
	holders := []domain.Holder{
		{Address: "a", Balance: 500},
		{Address: "b", Balance: 300},
		{Address: "c", Balance: 200},
	}

	rng := rand.New(rand.NewSource(42))
	const trials = 200_000

	counts := make([]int, len(holders))
	for i := 0; i < trials; i++ {
		idx, err := pick(holders, rng.Uint64())
		require.NoError(t, err)
		counts[idx]++
	}

	wantShares := []float64{0.5, 0.3, 0.2}
	for i, count := range counts {
		got := float64(count) / trials
		assert.InDelta(t, wantShares[i], got, 0.01, "holder %d", i)
	}
}

type fakeDirectory struct {
	accounts []solana.TokenAccount
	err      error
}

func (f *fakeDirectory) GetTokenAccountsByMint(context.Context, string) ([]solana.TokenAccount, error) {
	return f.accounts, f.err
}

type fakeSource struct {
	r   uint64
	err error
}

func (f *fakeSource) Request(context.Context) (*vrf.Randomness, error) {
	if f.err != nil {
		return nil, f.err
	}
	rnd := &vrf.Randomness{Signature: "vrf-sig"}
	binary.BigEndian.PutUint64(rnd.Bytes[:8], f.r)
	return rnd, nil
}

func TestSelector_Select(t *testing.T) {
	dir := &fakeDirectory{accounts: []solana.TokenAccount{
		{Owner: "pool", Amount: 10_000},
		{Owner: "a", Amount: 50},
		{Owner: "b", Amount: 30},
		{Owner: "c", Amount: 20},
	}}
	source := &fakeSource{r: uint64(0.6 * math.Pow(2, 64))} // lands in "b"

	sel := New(dir, source, Config{Mint: "mint", ExcludedAddress: "dev"}, nil)
	result, err := sel.Select(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "b", result.Winner.Address)
	assert.Equal(t, 3, result.EligibleCount)
	assert.InDelta(t, 0.3, result.WinnerWeight, 1e-9)
	assert.Equal(t, "vrf-sig", result.Randomness.Signature)
}

func TestSelector_Select_NoAccounts(t *testing.T) {
	sel := New(&fakeDirectory{}, &fakeSource{}, Config{Mint: "mint"}, nil)
	_, err := sel.Select(context.Background())
	assert.ErrorIs(t, err, ErrNoHolders)
}

func TestSelector_Select_NothingEligible(t *testing.T) {
	dir := &fakeDirectory{accounts: []solana.TokenAccount{
		{Owner: "pool", Amount: 10_000},
		{Owner: "dev", Amount: 9_000},
	}}
	sel := New(dir, &fakeSource{}, Config{Mint: "mint", ExcludedAddress: "dev"}, nil)
	_, err := sel.Select(context.Background())
	assert.ErrorIs(t, err, ErrNoEligibleHolders)
}

func TestSelector_Select_RandomnessFailurePropagates(t *testing.T) {
	dir := &fakeDirectory{accounts: []solana.TokenAccount{
		{Owner: "pool", Amount: 100},
		{Owner: "a", Amount: 10},
	}}
	sel := New(dir, &fakeSource{err: vrf.ErrTimeout}, Config{Mint: "mint"}, nil)
	_, err := sel.Select(context.Background())
	assert.ErrorIs(t, err, vrf.ErrTimeout)
}
