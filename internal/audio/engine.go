// Package audio renders the audible output of the pipeline: pink noise that
// is momentarily replaced by a spike waveform whenever the detector fires.
//
// Rendering happens in Engine.Render, which a Device calls from its hardware
// callback. Render neither allocates, locks nor performs I/O; spike events
// reach it through an atomic latch.
package audio

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/ravine/internal/fsutil"
	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/packet"
	"github.com/banshee-data/ravine/internal/stream"
	"github.com/banshee-data/ravine/internal/timeutil"
)

const (
	DefaultSampleRate = 44100.0
	DefaultNoiseLevel = float32(1.0)
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	WaveformPath    string
	DeviceName      string
	SampleRate      float64
	FramesPerBuffer int
	Latency         time.Duration
	NoiseRows       int
	NoiseLevel      float32

	// FS reads the waveform; the OS filesystem when nil.
	FS fsutil.FileSystem
	// Timebase stamps rendered blocks; a fresh one when nil.
	Timebase *timeutil.Timebase
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.WaveformPath == "" {
		c.WaveformPath = DefaultWaveformPath
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = packet.FramesPerBuffer
	}
	if c.NoiseRows <= 0 {
		c.NoiseRows = DefaultNoiseRows
	}
	if c.NoiseLevel == 0 {
		c.NoiseLevel = DefaultNoiseLevel
	}
	if c.FS == nil {
		c.FS = fsutil.OSFileSystem{}
	}
	if c.Timebase == nil {
		c.Timebase = timeutil.NewTimebase()
	}
	return c
}

// EngineStats is a point-in-time view of engine counters.
type EngineStats struct {
	Blocks         uint64 `json:"blocks"`
	Triggers       uint64 `json:"triggers"`
	SpikesPlayed   uint64 `json:"spikes_played"`
	TriggersMissed uint64 `json:"triggers_missed"`
}

// Engine is a Filter from packet.SpikeEvent to packet.AudioView.
type Engine struct {
	cfg      EngineConfig
	device   Device
	waveform []float32

	life   stream.Lifecycle
	status stream.Status
	down   stream.Downstream[packet.AudioView]

	latch atomic.Bool

	// Owned by the render callback.
	noise   *PinkNoise
	playing bool
	pos     int

	blocks   atomic.Uint64
	triggers atomic.Uint64
	played   atomic.Uint64
	missed   atomic.Uint64

	logf func(format string, v ...interface{})
}

// NewEngine loads the spike waveform and prepares the noise generator. A
// missing or malformed waveform leaves the engine invalid.
func NewEngine(cfg EngineConfig, dev Device) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:    cfg,
		device: dev,
		noise:  NewPinkNoise(cfg.NoiseRows, cfg.NoiseLevel),
		logf:   monitoring.Prefixed("audio"),
	}

	wf, err := LoadWaveform(cfg.FS, cfg.WaveformPath)
	if err != nil {
		e.status.Fail(stream.ErrProtocol, "failed to init waveform: %v", err)
		e.logf("failed to init waveform: %v", err)
		return e
	}
	e.waveform = wf
	if dev == nil {
		e.status.Fail(stream.ErrConfiguration, "no audio device")
	}
	return e
}

// WaveformLen returns the number of samples in the spike waveform.
func (e *Engine) WaveformLen() int { return len(e.waveform) }

func (e *Engine) IsValid() bool    { return e.status.IsValid() }
func (e *Engine) ErrorMsg() string { return e.status.ErrorMsg() }
func (e *Engine) Err() error       { return e.status.Err() }

// RegisterSink sets the consumer of rendered blocks.
func (e *Engine) RegisterSink(s stream.Sink[packet.AudioView]) bool {
	return e.down.RegisterSink(s)
}

// HasValidSink reports whether a downstream sink is registered.
func (e *Engine) HasValidSink() bool { return e.down.HasValidSink() }

// Process latches a spike. Multiple spikes before the next render collapse
// into one.
func (e *Engine) Process(packet.SpikeEvent) {
	e.triggers.Add(1)
	e.latch.Store(true)
}

// Render fills out with one block of audio and forwards it downstream. It is
// the body of the device callback.
func (e *Engine) Render(out []float32) {
	ts := e.cfg.Timebase.Now()
	wf := e.waveform

	for i := range out {
		if !e.playing && len(wf) > 0 && e.latch.Swap(false) {
			e.playing = true
			e.pos = 0
		}
		if e.playing {
			out[i] = wf[e.pos]
			e.pos++
			if e.pos == len(wf) {
				e.playing = false
				e.played.Add(1)
				// Spikes that arrived during playback are dropped.
				if e.latch.Swap(false) {
					e.missed.Add(1)
				}
			}
			continue
		}
		out[i] = e.noise.Next()
	}

	e.blocks.Add(1)
	e.down.Send(packet.AudioView{Samples: out, Timestamp: ts})
}

// OpenStream opens the downstream chain and then the output device. When the
// device fails the downstream chain is closed again.
func (e *Engine) OpenStream() bool {
	return e.life.Open(func() bool {
		if !e.status.IsValid() {
			return false
		}
		if !e.down.OpenSink() {
			e.status.Fail(stream.ErrIO, "downstream sink failed to open")
			return false
		}
		err := e.device.Open(DeviceConfig{
			DeviceName:      e.cfg.DeviceName,
			SampleRate:      e.cfg.SampleRate,
			FramesPerBuffer: e.cfg.FramesPerBuffer,
			Latency:         e.cfg.Latency,
		}, e.Render)
		if err != nil {
			e.down.CloseSink()
			e.status.Fail(stream.ErrDevice, "failed to open output device: %v", err)
			return false
		}
		e.logf("output open: %.0f Hz, %d frames per buffer, %d sample spike",
			e.cfg.SampleRate, e.cfg.FramesPerBuffer, len(e.waveform))
		return true
	})
}

// StartStream opens the downstream sink and starts the device callback. A
// failure leaves the engine opened so the call can be retried.
func (e *Engine) StartStream() bool {
	return e.life.Start(func() bool {
		if !e.down.OpenSink() {
			e.status.Fail(stream.ErrIO, "downstream sink failed to open")
			return false
		}
		if err := e.device.Start(); err != nil {
			e.status.Fail(stream.ErrDevice, "failed to start output device: %v", err)
			return false
		}
		return true
	})
}

// StopStream stops the device callback and then closes the downstream sink.
func (e *Engine) StopStream() bool {
	return e.life.Stop(e.stop)
}

func (e *Engine) stop() bool {
	if err := e.device.Stop(); err != nil {
		e.status.Fail(stream.ErrDevice, "failed to stop output device: %v", err)
		return false
	}
	return e.down.CloseSink()
}

// CloseStream stops the engine if needed, releases the device and closes the
// downstream chain.
func (e *Engine) CloseStream() bool {
	return e.life.Close(e.stop, func() bool {
		ok := true
		if err := e.device.Close(); err != nil {
			e.status.Fail(stream.ErrDevice, "failed to close output device: %v", err)
			ok = false
		}
		return e.down.CloseSink() && ok
	})
}

// Stats returns the current counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Blocks:         e.blocks.Load(),
		Triggers:       e.triggers.Load(),
		SpikesPlayed:   e.played.Load(),
		TriggersMissed: e.missed.Load(),
	}
}
