// Package cycle derives distribution cycle identifiers from wall-clock time.
package cycle

import "time"

// DefaultLength is the distribution cadence.
const DefaultLength = 5 * time.Minute

// Cycle is one fixed-length time window. Purely derived, never stored.
type Cycle struct {
	ID        int64
	Start     time.Time
	End       time.Time
	Remaining time.Duration // until the next cycle boundary
}

// Clock maps wall-clock instants onto cycle windows.
type Clock struct {
	Length time.Duration
}

// NewClock creates a Clock. A non-positive length falls back to DefaultLength.
func NewClock(length time.Duration) Clock {
	if length <= 0 {
		length = DefaultLength
	}
	return Clock{Length: length}
}

// At returns the cycle containing now. ID = floor(unixMilli / lengthMilli),
// so ids are monotonically increasing and identical for every instant
// within one window.
func (c Clock) At(now time.Time) Cycle {
	lengthMs := c.Length.Milliseconds()
	nowMs := now.UnixMilli()
	id := nowMs / lengthMs
	start := time.UnixMilli(id * lengthMs).UTC()
	end := start.Add(c.Length)
	return Cycle{
		ID:        id,
		Start:     start,
		End:       end,
		Remaining: end.Sub(now),
	}
}
