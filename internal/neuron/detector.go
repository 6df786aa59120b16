// Package neuron implements the receptive-field spike detector: each frame
// window is correlated against a reference pattern and compared against an
// adaptive threshold, and a SpikeEvent is emitted downstream on every firing.
package neuron

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/ravine/internal/conveyor"
	"github.com/banshee-data/ravine/internal/fsutil"
	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/packet"
	"github.com/banshee-data/ravine/internal/stream"
)

const (
	// DefaultBuffers is the number of window buffers in the detector pool.
	DefaultBuffers = 8
	historySize    = 256
)

// Config configures a Detector.
type Config struct {
	// RFPath is the PGM file holding the reference pattern.
	RFPath string
	// Col and Row locate the window's top-left corner in the frame. The
	// window's size is the size of the reference pattern.
	Col int
	Row int
	// Buffers is the pool size; DefaultBuffers when zero.
	Buffers int
	// Threshold and AdaptRate default to DefaultThreshold and DefaultAdaptRate.
	Threshold float32
	AdaptRate float32
	// FS reads the reference file; the OS filesystem when nil.
	FS fsutil.FileSystem
}

// Stats is a point-in-time view of detector counters.
type Stats struct {
	FramesProcessed uint64  `json:"frames_processed"`
	FramesDropped   uint64  `json:"frames_dropped"`
	FramesOutside   uint64  `json:"frames_outside"`
	Spikes          uint64  `json:"spikes"`
	Threshold       float32 `json:"threshold"`
	LastActivation  float32 `json:"last_activation"`
}

type patch struct {
	pix []float64
}

// Detector is a Filter from packet.Frame to packet.SpikeEvent. Process copies
// the window out of the frame on the caller's goroutine; correlation and
// thresholding run on the detector's own worker.
type Detector struct {
	rf     *ReceptiveField
	window packet.CropWindow
	pool   *conveyor.Conveyor[*patch]
	wake   chan struct{}

	life      stream.Lifecycle
	status    stream.Status
	down      stream.Downstream[packet.SpikeEvent]
	accepting atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// threshold is owned by the worker goroutine.
	threshold Threshold

	processed atomic.Uint64
	dropped   atomic.Uint64
	outside   atomic.Uint64
	spikes    atomic.Uint64
	thrBits   atomic.Uint32
	actBits   atomic.Uint32

	histMu  sync.Mutex
	history []float32
	histPos int

	logf func(format string, v ...interface{})
}

// New loads the reference pattern and allocates the window pool. A load
// failure leaves the detector invalid; OpenStream will then fail.
func New(cfg Config) *Detector {
	fsys := cfg.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	nbuf := cfg.Buffers
	if nbuf <= 0 {
		nbuf = DefaultBuffers
	}
	initial, rate := cfg.Threshold, cfg.AdaptRate
	if initial == 0 {
		initial = DefaultThreshold
	}
	if rate == 0 {
		rate = DefaultAdaptRate
	}

	d := &Detector{
		wake:      make(chan struct{}, 1),
		threshold: NewThreshold(initial, rate),
		history:   make([]float32, 0, historySize),
		logf:      monitoring.Prefixed("neuron"),
	}
	d.thrBits.Store(math.Float32bits(initial))

	rf, err := LoadReceptiveField(fsys, cfg.RFPath)
	if err != nil {
		d.status.Fail(stream.ErrConfiguration, "failed to load receptive field: %v", err)
		d.logf("failed to load receptive field %s: %v", cfg.RFPath, err)
		return d
	}
	d.rf = rf
	d.window = packet.CropWindow{Col: cfg.Col, Row: cfg.Row, Width: rf.Width, Height: rf.Height}

	d.pool = conveyor.New[*patch](nbuf)
	if err := d.pool.Fill(func() *patch { return &patch{pix: make([]float64, rf.Len())} }); err != nil {
		d.status.Fail(stream.ErrResourceExhausted, "failed to allocate window pool: %v", err)
		return d
	}

	d.logf("loaded %dx%d receptive field from %s (mean %.2f, magnitude %.1f), window at (%d,%d)",
		rf.Width, rf.Height, cfg.RFPath, rf.Mean, rf.Magnitude, cfg.Col, cfg.Row)
	return d
}

// Window returns the frame region examined by the detector.
func (d *Detector) Window() packet.CropWindow { return d.window }

// ReceptiveField returns the loaded reference pattern, or nil.
func (d *Detector) ReceptiveField() *ReceptiveField { return d.rf }

func (d *Detector) IsValid() bool    { return d.status.IsValid() }
func (d *Detector) ErrorMsg() string { return d.status.ErrorMsg() }
func (d *Detector) Err() error       { return d.status.Err() }

// RegisterSink sets the downstream consumer of spike events. Only the first
// registration succeeds.
func (d *Detector) RegisterSink(s stream.Sink[packet.SpikeEvent]) bool {
	return d.down.RegisterSink(s)
}

// HasValidSink reports whether a downstream sink is registered.
func (d *Detector) HasValidSink() bool { return d.down.HasValidSink() }

// OpenStream opens the downstream chain and starts accepting frames.
func (d *Detector) OpenStream() bool {
	return d.life.Open(func() bool {
		if !d.status.IsValid() {
			return false
		}
		if !d.down.OpenSink() {
			d.status.Fail(stream.ErrConfiguration, "downstream sink failed to open")
			return false
		}
		d.accepting.Store(true)
		return true
	})
}

// StartStream launches the worker goroutine.
func (d *Detector) StartStream() bool {
	return d.life.Start(func() bool {
		ctx, cancel := context.WithCancel(context.Background())
		d.cancel = cancel
		d.wg.Add(1)
		go d.run(ctx)
		return true
	})
}

// StopStream cancels the worker and waits for it to exit.
func (d *Detector) StopStream() bool {
	return d.life.Stop(d.stopWorker)
}

func (d *Detector) stopWorker() bool {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	return true
}

// CloseStream stops the worker if running and closes the downstream chain.
func (d *Detector) CloseStream() bool {
	return d.life.Close(d.stopWorker, func() bool {
		d.accepting.Store(false)
		return d.down.CloseSink()
	})
}

// Process copies the detector window out of frame into a pooled buffer and
// hands it to the worker. The frame is not retained. When no buffer is free
// the frame is dropped. A frame the window does not fit is dropped and marks
// the detector invalid.
func (d *Detector) Process(frame packet.Frame) {
	if !d.accepting.Load() {
		return
	}
	if !d.window.Fits(frame.Width, frame.Height) {
		d.rejectFrame(frame)
		return
	}
	p, ok := d.pool.TakeFree()
	if !ok {
		d.dropped.Add(1)
		return
	}

	i := 0
	for r := 0; r < d.window.Height; r++ {
		for c := 0; c < d.window.Width; c++ {
			v, ok := frame.Luma(d.window.Col+c, d.window.Row+r)
			if !ok {
				d.pool.Recycle(p)
				d.rejectFrame(frame)
				return
			}
			p.pix[i] = float64(v)
			i++
		}
	}

	if !d.pool.Publish(p) {
		d.pool.Recycle(p)
		d.dropped.Add(1)
		return
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Detector) rejectFrame(frame packet.Frame) {
	d.dropped.Add(1)
	if d.outside.Add(1) > 1 {
		return
	}
	w := d.window
	d.status.Fail(stream.ErrConfiguration, "window %dx%d at (%d,%d) does not fit %dx%d frame",
		w.Width, w.Height, w.Col, w.Row, frame.Width, frame.Height)
	d.logf("dropping frames: window %dx%d at (%d,%d) does not fit %dx%d frame",
		w.Width, w.Height, w.Col, w.Row, frame.Width, frame.Height)
}

func (d *Detector) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
			d.drain()
		}
	}
}

func (d *Detector) drain() {
	for {
		p, ok := d.pool.TakeReady()
		if !ok {
			return
		}
		d.observe(d.rf.Correlate(p.pix))
		d.pool.Recycle(p)
	}
}

func (d *Detector) observe(act float32) {
	if d.threshold.Observe(act) {
		d.down.Send(packet.SpikeEvent{})
		d.spikes.Add(1)
	}

	d.processed.Add(1)
	d.actBits.Store(math.Float32bits(act))
	d.thrBits.Store(math.Float32bits(d.threshold.Value()))

	d.histMu.Lock()
	if len(d.history) < historySize {
		d.history = append(d.history, act)
	} else {
		d.history[d.histPos] = act
	}
	d.histPos = (d.histPos + 1) % historySize
	d.histMu.Unlock()
}

// Stats returns the current counters.
func (d *Detector) Stats() Stats {
	return Stats{
		FramesProcessed: d.processed.Load(),
		FramesDropped:   d.dropped.Load(),
		FramesOutside:   d.outside.Load(),
		Spikes:          d.spikes.Load(),
		Threshold:       math.Float32frombits(d.thrBits.Load()),
		LastActivation:  math.Float32frombits(d.actBits.Load()),
	}
}

// RecentActivations returns up to the last 256 activations, oldest first.
func (d *Detector) RecentActivations() []float32 {
	d.histMu.Lock()
	defer d.histMu.Unlock()
	out := make([]float32, 0, len(d.history))
	if len(d.history) < historySize {
		return append(out, d.history...)
	}
	out = append(out, d.history[d.histPos:]...)
	return append(out, d.history[:d.histPos]...)
}

// WaitIdle blocks until every published window has been processed or the
// timeout elapses. It is intended for shutdown and tests.
func (d *Detector) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for d.pool != nil && d.pool.FreeCount() < d.pool.Capacity() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}
