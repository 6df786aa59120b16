package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/ravine/internal/timeutil"
)

// DeviceConfig describes the output stream an engine asks its device for.
type DeviceConfig struct {
	// DeviceName selects an output device by name; empty means the system
	// default.
	DeviceName      string
	SampleRate      float64
	FramesPerBuffer int
	Latency         time.Duration
}

// Period returns the wall-clock duration of one block.
func (c DeviceConfig) Period() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) * float64(c.FramesPerBuffer) / c.SampleRate)
}

// Device is an output device that invokes render once per hardware block
// on its own goroutine. render fills out with mono float32 samples.
type Device interface {
	Open(cfg DeviceConfig, render func(out []float32)) error
	Start() error
	Stop() error
	Close() error
}

var (
	errNotOpen     = errors.New("audio device not open")
	errAlreadyOpen = errors.New("audio device already open")
)

// FakeDevice is an in-memory Device. With a nil clock blocks are rendered
// only by Tick; otherwise Start renders one block per period on a goroutine
// driven by the clock's ticker.
type FakeDevice struct {
	OpenErr  error
	StartErr error
	StopErr  error

	clock timeutil.Clock

	mu      sync.Mutex
	cfg     DeviceConfig
	render  func([]float32)
	buf     []float32
	opened  bool
	running bool
	cancel  chan struct{}
	done    chan struct{}

	renderMu sync.Mutex
	blocks   atomic.Uint64
}

// NewFakeDevice returns a fake device. clock may be nil.
func NewFakeDevice(clock timeutil.Clock) *FakeDevice {
	return &FakeDevice{clock: clock}
}

func (f *FakeDevice) Open(cfg DeviceConfig, render func([]float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return f.OpenErr
	}
	if f.opened {
		return errAlreadyOpen
	}
	f.cfg = cfg
	f.render = render
	f.buf = make([]float32, cfg.FramesPerBuffer)
	f.opened = true
	return nil
}

func (f *FakeDevice) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.opened {
		return errNotOpen
	}
	if f.StartErr != nil {
		return f.StartErr
	}
	if f.running {
		return nil
	}
	f.running = true
	if f.clock != nil {
		f.cancel = make(chan struct{})
		f.done = make(chan struct{})
		go f.loop(f.clock.NewTicker(f.cfg.Period()), f.cancel, f.done)
	}
	return nil
}

func (f *FakeDevice) loop(ticker timeutil.Ticker, cancel <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-cancel:
			return
		case <-ticker.C():
			f.Tick()
		}
	}
}

func (f *FakeDevice) Stop() error {
	f.mu.Lock()
	if f.StopErr != nil {
		f.mu.Unlock()
		return f.StopErr
	}
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()

	if cancel != nil {
		close(cancel)
		<-done
	}
	return nil
}

func (f *FakeDevice) Close() error {
	if err := f.Stop(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = false
	f.render = nil
	return nil
}

// Tick renders one block while the device is running and returns a copy of
// it, or nil when the device is stopped.
func (f *FakeDevice) Tick() []float32 {
	f.mu.Lock()
	render, buf, running := f.render, f.buf, f.running
	f.mu.Unlock()
	if !running || render == nil {
		return nil
	}

	f.renderMu.Lock()
	defer f.renderMu.Unlock()
	render(buf)
	f.blocks.Add(1)
	out := make([]float32, len(buf))
	copy(out, buf)
	return out
}

// Blocks returns the number of blocks rendered.
func (f *FakeDevice) Blocks() uint64 { return f.blocks.Load() }

// Config returns the configuration passed to Open.
func (f *FakeDevice) Config() DeviceConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

// IsRunning reports whether Start has been called without a matching Stop.
func (f *FakeDevice) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}
