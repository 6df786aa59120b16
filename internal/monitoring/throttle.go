package monitoring

import (
	"sync"
	"time"

	"github.com/banshee-data/ravine/internal/timeutil"
)

// Throttle lets a warning through at most once per interval and counts the
// occurrences it suppressed in between.
type Throttle struct {
	mu         sync.Mutex
	clock      timeutil.Clock
	interval   time.Duration
	last       time.Time
	suppressed uint64
}

// NewThrottle returns a Throttle using the real clock.
func NewThrottle(interval time.Duration) *Throttle {
	return NewThrottleWithClock(interval, timeutil.RealClock{})
}

// NewThrottleWithClock returns a Throttle driven by clock.
func NewThrottleWithClock(interval time.Duration, clock timeutil.Clock) *Throttle {
	return &Throttle{clock: clock, interval: interval}
}

// Allow reports whether a message may be logged now and, if so, how many
// messages were suppressed since the last one.
func (t *Throttle) Allow() (bool, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		t.suppressed++
		return false, 0
	}
	n := t.suppressed
	t.suppressed = 0
	t.last = now
	return true, n
}

// Logf logs through the package logger when the throttle allows it.
func (t *Throttle) Logf(format string, v ...interface{}) {
	ok, n := t.Allow()
	if !ok {
		return
	}
	if n > 0 {
		Logf(format+" (%d similar suppressed)", append(v, n)...)
		return
	}
	Logf(format, v...)
}
