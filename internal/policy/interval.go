package policy

import "time"

// Cadence floors. Probing faster than this gains nothing and hammers the
// network; they also guard against zero or negative configured intervals.
const (
	MinOKInterval = 60 * time.Second
	MinKOInterval = 15 * time.Second
)

// NextDelay returns the delay before the next probe cycle. While any device
// in the fleet is in fault the degraded (shorter) interval applies. The fleet
// fault state changes every cycle, so callers must re-evaluate this every
// cycle rather than caching it.
func NextDelay(anyFault bool, okInterval, koInterval time.Duration) time.Duration {
	if anyFault {
		if koInterval < MinKOInterval {
			return MinKOInterval
		}
		return koInterval
	}
	if okInterval < MinOKInterval {
		return MinOKInterval
	}
	return okInterval
}
