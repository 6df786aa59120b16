package timeutil

import "time"

// Timebase measures seconds elapsed since a fixed start on a steady clock.
// Pipeline timestamps (audio blocks, trigger events) are all relative to the
// same Timebase so they can be aligned in the log.
type Timebase struct {
	clock Clock
	start time.Time
}

// NewTimebase starts a timebase now on the real clock.
func NewTimebase() *Timebase {
	return NewTimebaseWithClock(RealClock{})
}

// NewTimebaseWithClock starts a timebase now on clock.
func NewTimebaseWithClock(clock Clock) *Timebase {
	return &Timebase{clock: clock, start: clock.Now()}
}

// Start returns the instant the timebase was created.
func (tb *Timebase) Start() time.Time { return tb.start }

// Now returns seconds since the timebase started at microsecond resolution.
// It does not allocate and is safe to call from the audio callback.
func (tb *Timebase) Now() float32 {
	us := tb.clock.Now().Sub(tb.start).Microseconds()
	return float32(us) * 1e-6
}
