package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_At_IDDerivation(t *testing.T) {
	clock := NewClock(5 * time.Minute)

	tests := []struct {
		name   string
		nowMs  int64
		wantID int64
	}{
		{"epoch", 0, 0},
		{"just before first boundary", 299_999, 0},
		{"exactly on boundary", 300_000, 1},
		{"mid second cycle", 450_000, 1},
		{"large timestamp", 1_700_000_100_000, 5_666_667},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := clock.At(time.UnixMilli(tt.nowMs))
			assert.Equal(t, tt.wantID, c.ID)
		})
	}
}

func TestClock_At_Boundaries(t *testing.T) {
	clock := NewClock(5 * time.Minute)
	now := time.UnixMilli(1_700_000_100_000) // 100s into its cycle

	c := clock.At(now)

	require.Equal(t, c.Start.Add(clock.Length), c.End)
	assert.False(t, now.Before(c.Start))
	assert.True(t, now.Before(c.End))
	assert.Equal(t, c.End.Sub(now), c.Remaining)
}

func TestClock_At_SameIDWithinWindow(t *testing.T) {
	clock := NewClock(5 * time.Minute)
	base := time.UnixMilli(1_700_000_400_000) // exact boundary

	first := clock.At(base)
	last := clock.At(base.Add(5*time.Minute - time.Millisecond))
	next := clock.At(base.Add(5 * time.Minute))

	assert.Equal(t, first.ID, last.ID)
	assert.Equal(t, first.ID+1, next.ID)
}

func TestNewClock_DefaultsOnNonPositive(t *testing.T) {
	assert.Equal(t, DefaultLength, NewClock(0).Length)
	assert.Equal(t, DefaultLength, NewClock(-time.Second).Length)
}
