package sim

import "math"

// Time is simulated time in ticks. One tick is one microsecond.
type Time int64

const (
	Microsecond Time = 1
	Millisecond Time = 1000 * Microsecond
	Second      Time = 1000 * Millisecond

	// Forever is a run limit that never triggers.
	Forever Time = math.MaxInt64
)

// FromSeconds converts seconds to ticks, rounding to the nearest tick.
func FromSeconds(s float64) Time {
	return Time(math.Round(s * float64(Second)))
}

// Seconds returns t in seconds.
func (t Time) Seconds() float64 {
	return float64(t) / float64(Second)
}
