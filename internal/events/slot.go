// Package events delivers external trigger bytes into the pipeline as
// timestamped DiscreteEvents. Sources read from a TCP peer or a serial port;
// Slot is the single-entry exchange a consumer polls them from.
package events

import (
	"sync"

	"github.com/banshee-data/ravine/internal/packet"
)

// Slot holds at most one pending event. Offer never overwrites: when the
// slot is occupied the newer event is rejected.
type Slot struct {
	mu      sync.Mutex
	ev      packet.DiscreteEvent
	full    bool
	dropped uint64
}

// Offer stores ev if the slot is empty and reports whether it was stored.
func (s *Slot) Offer(ev packet.DiscreteEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		s.dropped++
		return false
	}
	s.ev = ev
	s.full = true
	return true
}

// Take removes and returns the pending event.
func (s *Slot) Take() (packet.DiscreteEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		return packet.DiscreteEvent{}, false
	}
	s.full = false
	return s.ev, true
}

// Pending reports whether an event is waiting.
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full
}

// Dropped returns the number of rejected offers.
func (s *Slot) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
