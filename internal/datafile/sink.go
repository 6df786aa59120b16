package datafile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/ravine/internal/conveyor"
	"github.com/banshee-data/ravine/internal/events"
	"github.com/banshee-data/ravine/internal/fsutil"
	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/packet"
	"github.com/banshee-data/ravine/internal/stream"
	"github.com/banshee-data/ravine/internal/timeutil"
)

const (
	// DefaultBuffers is the number of audio blocks in the sink pool.
	DefaultBuffers = 16
	// DefaultInterval is the writer's drain period.
	DefaultInterval = 10 * time.Millisecond
)

// SinkStats is a point-in-time view of sink counters.
type SinkStats struct {
	AudioPackets  uint64 `json:"audio_packets"`
	EventPackets  uint64 `json:"event_packets"`
	AudioDropped  uint64 `json:"audio_dropped"`
	EventsDropped uint64 `json:"events_dropped"`
	SilentBlocks  uint64 `json:"silent_blocks"`
}

// Sink writes audio blocks and trigger events to a log file. Process and
// ProcessEvent only copy into pooled storage; a writer goroutine started by
// OpenStream drains that storage to disk every interval.
type Sink struct {
	path     string
	fsys     fsutil.FileSystem
	clock    timeutil.Clock
	interval time.Duration

	pool  *conveyor.Conveyor[*packet.AudioBlock]
	event events.Slot

	life      stream.Lifecycle
	status    stream.Status
	accepting atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	audioPackets  atomic.Uint64
	eventPackets  atomic.Uint64
	audioDropped  atomic.Uint64
	eventsDropped atomic.Uint64
	silentBlocks  atomic.Uint64

	warn *monitoring.Throttle
	logf func(format string, v ...interface{})
}

// NewSink returns a sink that will write to path. Each pooled block holds
// framesPerBuffer samples; longer blocks are truncated.
func NewSink(path string, framesPerBuffer int, fsys fsutil.FileSystem) *Sink {
	return NewSinkWithClock(path, framesPerBuffer, fsys, timeutil.RealClock{})
}

// NewSinkWithClock is NewSink with an explicit clock driving the writer.
func NewSinkWithClock(path string, framesPerBuffer int, fsys fsutil.FileSystem, clock timeutil.Clock) *Sink {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = packet.FramesPerBuffer
	}
	s := &Sink{
		path:     path,
		fsys:     fsys,
		clock:    clock,
		interval: DefaultInterval,
		pool:     conveyor.New[*packet.AudioBlock](DefaultBuffers),
		warn:     monitoring.NewThrottleWithClock(time.Second, clock),
		logf:     monitoring.Prefixed("datafile"),
	}
	proto := packet.NewAudioBlock(framesPerBuffer)
	if err := s.pool.Fill(proto.Clone); err != nil {
		s.status.Fail(stream.ErrResourceExhausted, "failed to allocate audio pool: %v", err)
	}
	if path == "" {
		s.status.Fail(stream.ErrConfiguration, "log path is empty")
	}
	return s
}

// Path returns the log file path.
func (s *Sink) Path() string { return s.path }

func (s *Sink) IsValid() bool    { return s.status.IsValid() }
func (s *Sink) ErrorMsg() string { return s.status.ErrorMsg() }
func (s *Sink) Err() error       { return s.status.Err() }

// OpenStream creates the log, writes its header and starts the writer.
func (s *Sink) OpenStream() bool {
	return s.life.Open(func() bool {
		if !s.status.IsValid() {
			return false
		}
		f, err := s.fsys.Create(s.path)
		if err != nil {
			s.status.Fail(stream.ErrIO, "failed to open %s: %v", s.path, err)
			return false
		}
		w, err := NewWriter(f, DefaultChannels)
		if err != nil {
			f.Close()
			s.status.Fail(stream.ErrIO, "failed to write header to %s: %v", s.path, err)
			return false
		}

		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.accepting.Store(true)
		s.wg.Add(1)
		go s.run(ctx, w)
		s.logf("writing %s", s.path)
		return true
	})
}

// CloseStream stops the writer after a final drain and finalises the log.
func (s *Sink) CloseStream() bool {
	return s.life.Close(nil, func() bool {
		s.accepting.Store(false)
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.wg.Wait()
		st := s.Stats()
		s.logf("closed %s: %d audio packets (%d silent, %d dropped), %d events (%d dropped)",
			s.path, st.AudioPackets, st.SilentBlocks, st.AudioDropped, st.EventPackets, st.EventsDropped)
		return s.status.IsValid()
	})
}

// Process copies an audio block into the pool. It never performs I/O and
// drops the block when no buffer is free.
func (s *Sink) Process(v packet.AudioView) {
	if !s.accepting.Load() {
		return
	}
	b, ok := s.pool.TakeFree()
	if !ok {
		s.audioDropped.Add(1)
		return
	}
	b.CopyFrom(v)
	if !s.pool.Publish(b) {
		s.pool.Recycle(b)
		s.audioDropped.Add(1)
	}
}

// ProcessEvent stores ev for the writer. An event arriving while another is
// still pending is dropped.
func (s *Sink) ProcessEvent(ev packet.DiscreteEvent) {
	if !s.accepting.Load() {
		return
	}
	if !s.event.Offer(ev) {
		s.eventsDropped.Add(1)
		s.warn.Logf("[datafile] dropped event 0x%02x at %.3fs: previous event not yet written", ev.Value, ev.Timestamp)
	}
}

// Events returns a sink that feeds ProcessEvent and shares this sink's
// lifecycle.
func (s *Sink) Events() stream.Sink[packet.DiscreteEvent] {
	return eventSink{s}
}

type eventSink struct{ s *Sink }

func (e eventSink) OpenStream() bool                { return e.s.OpenStream() }
func (e eventSink) CloseStream() bool               { return e.s.CloseStream() }
func (e eventSink) Process(ev packet.DiscreteEvent) { e.s.ProcessEvent(ev) }

func (s *Sink) run(ctx context.Context, w *Writer) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain(w)
			s.finish(w)
			return
		case <-ticker.C():
			if !s.drain(w) {
				s.accepting.Store(false)
				s.finish(w)
				return
			}
		}
	}
}

// drain writes every ready block and the pending event. It reports false
// after a write error.
func (s *Sink) drain(w *Writer) bool {
	if !s.status.IsValid() {
		return false
	}
	for {
		b, ok := s.pool.TakeReady()
		if !ok {
			break
		}
		if b.IsSilent() {
			s.silentBlocks.Add(1)
		}
		err := w.WriteFloat32(ChannelAudio, b.Timestamp, b.Samples())
		s.pool.Recycle(b)
		if err != nil {
			s.status.Fail(stream.ErrIO, "%s: %v", s.path, err)
			return false
		}
		s.audioPackets.Add(1)
	}

	if ev, ok := s.event.Take(); ok {
		if err := w.WriteUint8(ChannelEvents, ev.Timestamp, []byte{ev.Value}); err != nil {
			s.status.Fail(stream.ErrIO, "%s: %v", s.path, err)
			return false
		}
		s.eventPackets.Add(1)
	}
	return true
}

func (s *Sink) finish(w *Writer) {
	if err := w.Close(); err != nil {
		s.status.Fail(stream.ErrIO, "%v", err)
		s.logf("failed to finalise %s: %v", s.path, err)
	}
}

// Stats returns the current counters.
func (s *Sink) Stats() SinkStats {
	return SinkStats{
		AudioPackets:  s.audioPackets.Load(),
		EventPackets:  s.eventPackets.Load(),
		AudioDropped:  s.audioDropped.Load(),
		EventsDropped: s.eventsDropped.Load(),
		SilentBlocks:  s.silentBlocks.Load(),
	}
}
