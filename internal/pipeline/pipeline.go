// Package pipeline assembles the capture, detector, audio, log and trigger
// stages into one owned graph and drives its start and shutdown order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/ravine/internal/audio"
	"github.com/banshee-data/ravine/internal/capture"
	"github.com/banshee-data/ravine/internal/datafile"
	"github.com/banshee-data/ravine/internal/events"
	"github.com/banshee-data/ravine/internal/fsutil"
	"github.com/banshee-data/ravine/internal/imageutil"
	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/neuron"
	"github.com/banshee-data/ravine/internal/packet"
	"github.com/banshee-data/ravine/internal/serialport"
	"github.com/banshee-data/ravine/internal/stream"
	"github.com/banshee-data/ravine/internal/timeutil"
)

const (
	readyPollInterval   = 10 * time.Millisecond
	triggerPollInterval = 100 * time.Millisecond
	idlePollInterval    = 500 * time.Millisecond
)

// Config selects and configures every stage.
type Config struct {
	Capture capture.Config
	// ReplayPaths replaces the camera with PGM replay when non-empty.
	ReplayPaths []string
	ReplayLoop  bool

	Detector neuron.Config
	Audio    audio.EngineConfig

	// LogPath enables the binary log.
	LogPath string

	// TCPAddr enables the network trigger listener; SerialPath the serial
	// trigger. At most one may be set.
	TCPAddr    string
	SerialPath string
	Serial     serialport.Options

	FS    fsutil.FileSystem
	Clock timeutil.Clock
}

// Deps supplies the hardware-facing pieces.
type Deps struct {
	// AudioDevice is required.
	AudioDevice audio.Device
	// Capture overrides the source chosen from Config.
	Capture capture.Source
	// SerialOpener overrides serialport.Open.
	SerialOpener serialport.Opener
}

// Trigger is a discrete event source.
type Trigger interface {
	stream.Component
	stream.Source[packet.DiscreteEvent]
	stream.Validator
	Ready() bool
	Running() bool
	Stats() events.Stats
}

// Pipeline owns every stage for one run.
type Pipeline struct {
	cfg   Config
	clock timeutil.Clock
	tb    *timeutil.Timebase

	capture  capture.Source
	detector *neuron.Detector
	engine   *audio.Engine
	sink     *datafile.Sink
	trigger  Trigger

	started bool
	logf    func(format string, v ...interface{})
}

// Build constructs and connects every stage. Nothing is opened yet.
func Build(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if deps.AudioDevice == nil {
		return nil, fmt.Errorf("%w: no audio device", stream.ErrConfiguration)
	}
	if cfg.TCPAddr != "" && cfg.SerialPath != "" {
		return nil, fmt.Errorf("%w: choose either a TCP or a serial trigger", stream.ErrConfiguration)
	}

	p := &Pipeline{
		cfg:   cfg,
		clock: cfg.Clock,
		tb:    timeutil.NewTimebaseWithClock(cfg.Clock),
		logf:  monitoring.Prefixed("pipeline"),
	}

	switch {
	case deps.Capture != nil:
		p.capture = deps.Capture
	case len(cfg.ReplayPaths) > 0:
		p.capture = capture.NewPGMSource(capture.PGMConfig{
			Paths: cfg.ReplayPaths,
			FPS:   cfg.Capture.FPS,
			Loop:  cfg.ReplayLoop,
			FS:    cfg.FS,
			Clock: cfg.Clock,
		})
	default:
		p.capture = capture.NewGstSource(cfg.Capture)
	}
	if !p.capture.IsValid() {
		return nil, fmt.Errorf("capture: %s", p.capture.ErrorMsg())
	}

	detCfg := cfg.Detector
	if detCfg.FS == nil {
		detCfg.FS = cfg.FS
	}
	p.detector = neuron.New(detCfg)
	if !p.detector.IsValid() {
		return nil, fmt.Errorf("detector: %w", p.detector.Err())
	}
	if err := p.checkWindow(cfg, deps); err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}

	audioCfg := cfg.Audio
	if audioCfg.FS == nil {
		audioCfg.FS = cfg.FS
	}
	audioCfg.Timebase = p.tb
	p.engine = audio.NewEngine(audioCfg, deps.AudioDevice)
	if !p.engine.IsValid() {
		return nil, fmt.Errorf("audio: %w", p.engine.Err())
	}

	if cfg.LogPath != "" {
		fpb := audioCfg.FramesPerBuffer
		if fpb <= 0 {
			fpb = packet.FramesPerBuffer
		}
		p.sink = datafile.NewSinkWithClock(cfg.LogPath, fpb, cfg.FS, cfg.Clock)
		if !p.sink.IsValid() {
			return nil, fmt.Errorf("log: %w", p.sink.Err())
		}
	}

	switch {
	case cfg.TCPAddr != "":
		p.trigger = events.NewTCPSource(cfg.TCPAddr, p.tb)
	case cfg.SerialPath != "":
		p.trigger = events.NewSerialSource(cfg.SerialPath, cfg.Serial, deps.SerialOpener, p.tb)
	}
	if p.trigger != nil && !p.trigger.IsValid() {
		return nil, fmt.Errorf("trigger: %s", p.trigger.ErrorMsg())
	}

	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// checkWindow rejects a detector window that does not lie inside the frames
// the capture source will deliver. A source that cannot tell its geometry
// before streaming is checked per frame by the detector instead.
func (p *Pipeline) checkWindow(cfg Config, deps Deps) error {
	var width, height int
	switch {
	case deps.Capture != nil:
		st := deps.Capture.Stats()
		width, height = st.Width, st.Height
	case len(cfg.ReplayPaths) > 0:
		img, err := imageutil.ReadPGM(cfg.FS, cfg.ReplayPaths[0])
		if err != nil {
			return fmt.Errorf("%w: failed to read replay frame: %v", stream.ErrConfiguration, err)
		}
		b := img.Bounds()
		width, height = b.Dx(), b.Dy()
	default:
		width, height = cfg.Capture.Size()
	}
	if width == 0 || height == 0 {
		return nil
	}
	if w := p.detector.Window(); !w.Fits(width, height) {
		return fmt.Errorf("%w: window %dx%d at (%d,%d) does not fit %dx%d frames",
			stream.ErrConfiguration, w.Width, w.Height, w.Col, w.Row, width, height)
	}
	return nil
}

func (p *Pipeline) connect() error {
	if err := register[packet.Frame]("capture", p.capture, p.detector); err != nil {
		return err
	}
	if err := register[packet.SpikeEvent]("detector", p.detector, p.engine); err != nil {
		return err
	}
	if p.sink == nil {
		return nil
	}
	if err := register[packet.AudioView]("audio", p.engine, p.sink); err != nil {
		return err
	}
	if p.trigger != nil {
		if err := register[packet.DiscreteEvent]("trigger", p.trigger, p.sink.Events()); err != nil {
			return err
		}
	}
	return nil
}

func register[T any](name string, src stream.Source[T], sink stream.Sink[T]) error {
	src.RegisterSink(sink)
	if !src.HasValidSink() {
		return fmt.Errorf("%w: %s has no downstream sink", stream.ErrConfiguration, name)
	}
	return nil
}

// Start follows the run order: the trigger source opens and starts first
// and, if present, must see a peer before the capture chain opens. The
// detector worker and the audio device start before frames flow.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.started {
		return nil
	}
	if p.trigger != nil {
		if !p.trigger.OpenStream() || !p.trigger.StartStream() {
			return fmt.Errorf("trigger: %s", p.trigger.ErrorMsg())
		}
		p.logf("waiting for trigger peer")
		if err := p.waitReady(ctx); err != nil {
			return err
		}
	}

	if !p.capture.OpenStream() {
		return fmt.Errorf("open failed: %s", p.describeErrors())
	}
	if !p.detector.StartStream() {
		return fmt.Errorf("detector: %s", p.detector.ErrorMsg())
	}
	if !p.engine.StartStream() {
		return fmt.Errorf("audio: %s", p.engine.ErrorMsg())
	}
	if !p.capture.StartStream() {
		return fmt.Errorf("capture: %s", p.capture.ErrorMsg())
	}
	p.started = true
	p.logf("pipeline streaming")
	return nil
}

func (p *Pipeline) waitReady(ctx context.Context) error {
	ticker := p.clock.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for !p.trigger.Ready() {
		if !p.trigger.Running() {
			return fmt.Errorf("trigger stopped before a peer connected: %s", p.trigger.ErrorMsg())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
	}
	return nil
}

// Wait blocks until ctx is done or, when a trigger source exists, until it
// stops running (peer shutdown byte, disconnect or read error).
func (p *Pipeline) Wait(ctx context.Context) string {
	interval := idlePollInterval
	if p.trigger != nil {
		interval = triggerPollInterval
	}
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		if p.trigger != nil && !p.trigger.Running() {
			return "trigger peer finished"
		}
		select {
		case <-ctx.Done():
			return "interrupted"
		case <-ticker.C():
		}
	}
}

// Shutdown stops capture first, then closes the capture chain (detector,
// audio and log, which flushes and backpatches the file), then the trigger
// source. It is safe to call after a failed Start.
func (p *Pipeline) Shutdown() error {
	var errs []error
	if !p.capture.StopStream() {
		errs = append(errs, fmt.Errorf("capture stop: %s", p.capture.ErrorMsg()))
	}
	if !p.detector.StopStream() {
		errs = append(errs, fmt.Errorf("detector stop: %s", p.detector.ErrorMsg()))
	}
	if !p.engine.StopStream() {
		errs = append(errs, fmt.Errorf("audio stop: %s", p.engine.ErrorMsg()))
	}
	if !p.capture.CloseStream() {
		errs = append(errs, fmt.Errorf("capture close: %s", p.describeErrors()))
	}
	if p.trigger != nil {
		if !p.trigger.CloseStream() {
			errs = append(errs, fmt.Errorf("trigger close: %s", p.trigger.ErrorMsg()))
		}
	}
	p.started = false
	p.logf("pipeline stopped")
	return errors.Join(errs...)
}

// Err returns the first stage failure, or nil while every stage is healthy.
func (p *Pipeline) Err() error {
	for _, v := range p.validators() {
		if !v.IsValid() {
			return fmt.Errorf("%s: %s", v.name, v.ErrorMsg())
		}
	}
	return nil
}

type namedValidator struct {
	name string
	stream.Validator
}

func (p *Pipeline) validators() []namedValidator {
	vs := []namedValidator{
		{"capture", p.capture},
		{"detector", p.detector},
		{"audio", p.engine},
	}
	if p.sink != nil {
		vs = append(vs, namedValidator{"log", p.sink})
	}
	if p.trigger != nil {
		vs = append(vs, namedValidator{"trigger", p.trigger})
	}
	return vs
}

func (p *Pipeline) describeErrors() string {
	var msgs []string
	for _, v := range p.validators() {
		if !v.IsValid() {
			msgs = append(msgs, v.name+": "+v.ErrorMsg())
		}
	}
	if len(msgs) == 0 {
		return "unknown failure"
	}
	return fmt.Sprint(msgs)
}

// Detector exposes the detector for debug views.
func (p *Pipeline) Detector() *neuron.Detector { return p.detector }

// Timebase returns the clock every stage stamps against.
func (p *Pipeline) Timebase() *timeutil.Timebase { return p.tb }

// HasTrigger reports whether a trigger source is configured.
func (p *Pipeline) HasTrigger() bool { return p.trigger != nil }

// Snapshot is a point-in-time view of every stage.
type Snapshot struct {
	Uptime   float32             `json:"uptime_s"`
	Capture  capture.Stats       `json:"capture"`
	Detector neuron.Stats        `json:"detector"`
	Audio    audio.EngineStats   `json:"audio"`
	Log      *datafile.SinkStats `json:"log,omitempty"`
	Trigger  *events.Stats       `json:"trigger,omitempty"`
	Errors   []string            `json:"errors,omitempty"`
}

// Snapshot collects the current counters.
func (p *Pipeline) Snapshot() Snapshot {
	s := Snapshot{
		Uptime:   p.tb.Now(),
		Capture:  p.capture.Stats(),
		Detector: p.detector.Stats(),
		Audio:    p.engine.Stats(),
	}
	if p.sink != nil {
		ls := p.sink.Stats()
		s.Log = &ls
	}
	if p.trigger != nil {
		ts := p.trigger.Stats()
		s.Trigger = &ts
	}
	for _, v := range p.validators() {
		if !v.IsValid() {
			s.Errors = append(s.Errors, v.name+": "+v.ErrorMsg())
		}
	}
	return s
}
