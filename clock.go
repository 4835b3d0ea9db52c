package flamez

import (
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
)

// Tick is a value from the process-wide logical clock. Ticks are
// strictly increasing across all threads and are the sole ordering
// authority for spans; wall-clock times are used only for durations.
type Tick uint64

// clock couples the atomic tick counter with a wall-clock source.
// nextTick never blocks and never returns the same value twice, so two
// spans always have distinct, totally ordered start and end ticks even
// when wall-clock resolution rounds their durations to zero.
type clock struct {
	wall  clockz.Clock
	epoch time.Time
	ticks atomic.Uint64
}

func newClock(wall clockz.Clock) *clock {
	return &clock{
		wall:  wall,
		epoch: wall.Now(),
	}
}

// nextTick returns a tick strictly greater than every tick returned
// before it, on any goroutine. The first tick is 1.
func (c *clock) nextTick() Tick {
	return Tick(c.ticks.Add(1))
}

// now returns the wall-clock time used for duration arithmetic.
func (c *clock) now() time.Time {
	return c.wall.Now()
}

// sinceEpoch reports how far a wall-clock instant is into the capture.
func (c *clock) sinceEpoch(t time.Time) time.Duration {
	return t.Sub(c.epoch)
}
