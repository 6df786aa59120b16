package stream

import "sync"

// State is a lifecycle state.
type State int

const (
	Closed State = iota
	Opened
	Streaming
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opened:
		return "opened"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Lifecycle guards state transitions for one stage. The transition hooks run
// with the lifecycle lock held so concurrent Open/Start/Stop/Close calls are
// serialised; hooks must not call back into the same Lifecycle.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsOpen reports whether the stage is Opened or Streaming.
func (l *Lifecycle) IsOpen() bool { return l.State() != Closed }

// IsStreaming reports whether the stage is Streaming.
func (l *Lifecycle) IsStreaming() bool { return l.State() == Streaming }

// Open moves Closed -> Opened when fn succeeds. Opening an open stage is a
// no-op that reports success.
func (l *Lifecycle) Open(fn func() bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Closed {
		return true
	}
	if fn != nil && !fn() {
		return false
	}
	l.state = Opened
	return true
}

// Start moves Opened -> Streaming when fn succeeds. Starting a closed stage
// fails without calling fn.
func (l *Lifecycle) Start(fn func() bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case Closed:
		return false
	case Streaming:
		return true
	}
	if fn != nil && !fn() {
		return false
	}
	l.state = Streaming
	return true
}

// Stop moves Streaming -> Opened when fn succeeds. A failed stop leaves the
// stage Streaming so the owner may retry. Stopping a stage that is not
// streaming is a no-op.
func (l *Lifecycle) Stop(fn func() bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Streaming {
		return true
	}
	if fn != nil && !fn() {
		return false
	}
	l.state = Opened
	return true
}

// Close moves Opened -> Closed, stopping first when Streaming. Closing a
// closed stage is a no-op that reports success.
func (l *Lifecycle) Close(stop, fn func() bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Closed {
		return true
	}
	if l.state == Streaming {
		if stop != nil && !stop() {
			return false
		}
		l.state = Opened
	}
	ok := fn == nil || fn()
	l.state = Closed
	return ok
}
