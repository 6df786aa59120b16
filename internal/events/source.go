package events

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/ravine/internal/packet"
	"github.com/banshee-data/ravine/internal/stream"
	"github.com/banshee-data/ravine/internal/timeutil"
)

// pollInterval bounds how long a blocked read or accept goes without
// checking for cancellation.
const pollInterval = 100 * time.Millisecond

// Stats is a point-in-time view of a trigger source.
type Stats struct {
	Received uint64 `json:"received"`
	Ready    bool   `json:"ready"`
	Running  bool   `json:"running"`
}

// base carries what every trigger source shares: the downstream sink, the
// timebase and the ready/running flags.
type base struct {
	tb       *timeutil.Timebase
	down     stream.Downstream[packet.DiscreteEvent]
	life     stream.Lifecycle
	status   stream.Status
	ready    atomic.Bool
	running  atomic.Bool
	received atomic.Uint64
	logf     func(format string, v ...interface{})
}

// RegisterSink sets the consumer of trigger events.
func (b *base) RegisterSink(s stream.Sink[packet.DiscreteEvent]) bool {
	return b.down.RegisterSink(s)
}

// HasValidSink reports whether a downstream sink is registered.
func (b *base) HasValidSink() bool { return b.down.HasValidSink() }

// Ready reports whether the peer is connected.
func (b *base) Ready() bool { return b.ready.Load() }

// Running reports whether the source is still delivering events. It turns
// false after the shutdown byte, a read error or Close.
func (b *base) Running() bool { return b.running.Load() }

func (b *base) IsValid() bool    { return b.status.IsValid() }
func (b *base) ErrorMsg() string { return b.status.ErrorMsg() }
func (b *base) Err() error       { return b.status.Err() }

// Stats returns the current counters.
func (b *base) Stats() Stats {
	return Stats{Received: b.received.Load(), Ready: b.ready.Load(), Running: b.running.Load()}
}

// deliver stamps v and forwards it. It reports false once v is the shutdown
// byte; the shutdown byte itself is still forwarded.
func (b *base) deliver(v byte) bool {
	ev := packet.DiscreteEvent{Value: v, Timestamp: b.tb.Now()}
	b.received.Add(1)
	b.down.Send(ev)
	if ev.IsShutdown() {
		b.logf("peer requested shutdown at %.3fs", ev.Timestamp)
		return false
	}
	return true
}
