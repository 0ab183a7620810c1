package typing

import "time"

// Target simulation rates.
const (
	DefaultTickRate     = 60
	ConstrainedTickRate = 30

	// maxCatchUp bounds the ticks run for one long frame so a stalled
	// terminal does not fast-forward the bubbles to the bottom.
	maxCatchUp = 4
)

// Clock converts elapsed wall time into simulation ticks at a fixed rate.
// The remainder of each frame carries over to the next.
type Clock struct {
	interval time.Duration
	acc      time.Duration
}

// NewClock creates a clock for rate ticks per second.
func NewClock(rate int) *Clock {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return &Clock{interval: time.Second / time.Duration(rate)}
}

// Interval returns the duration of one tick.
func (c *Clock) Interval() time.Duration {
	return c.interval
}

// Advance adds dt and returns how many ticks are due.
func (c *Clock) Advance(dt time.Duration) int {
	if dt <= 0 {
		return 0
	}
	c.acc += dt
	n := int(c.acc / c.interval)
	c.acc %= c.interval
	if n > maxCatchUp {
		n = maxCatchUp
	}
	return n
}

// Reset drops any accumulated time.
func (c *Clock) Reset() {
	c.acc = 0
}
