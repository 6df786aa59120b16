package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/packet"
	"github.com/banshee-data/ravine/internal/stream"
)

// busPollInterval bounds how long the bus monitor blocks before it checks for
// cancellation.
const busPollInterval = 50 * time.Millisecond

// GstSource captures GRAY8 frames from a V4L2 device:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter → appsink
//
// The appsink callback maps each buffer and hands the view to the sink for
// the duration of Process; nothing is copied here.
type GstSource struct {
	cfg Config

	down   stream.Downstream[packet.Frame]
	life   stream.Lifecycle
	status stream.Status
	logf   func(format string, v ...interface{})

	pipeline *gst.Pipeline
	appsink  *app.Sink

	streaming atomic.Bool
	frames    atomic.Uint64
	skipped   atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGstSource returns an unopened camera source.
func NewGstSource(cfg Config) *GstSource {
	return &GstSource{
		cfg:  cfg.withDefaults(),
		logf: monitoring.Prefixed("capture"),
	}
}

func (s *GstSource) RegisterSink(sink stream.Sink[packet.Frame]) bool {
	return s.down.RegisterSink(sink)
}
func (s *GstSource) HasValidSink() bool { return s.down.HasValidSink() }
func (s *GstSource) IsValid() bool      { return s.status.IsValid() }
func (s *GstSource) ErrorMsg() string   { return s.status.ErrorMsg() }
func (s *GstSource) Err() error         { return s.status.Err() }

// Stats returns the frame counters.
func (s *GstSource) Stats() Stats {
	return Stats{
		Frames:  s.frames.Load(),
		Skipped: s.skipped.Load(),
		Width:   s.cfg.Width,
		Height:  s.cfg.Height,
	}
}

// OpenStream opens the downstream chain, builds the pipeline and moves it to
// READY, which opens the device.
func (s *GstSource) OpenStream() bool {
	return s.life.Open(func() bool {
		if !s.down.OpenSink() {
			s.status.Fail(stream.ErrDevice, "downstream sink failed to open")
			return false
		}
		if err := s.build(); err != nil {
			s.status.Fail(stream.ErrDevice, "%v", err)
			s.down.CloseSink()
			return false
		}
		if err := s.pipeline.SetState(gst.StateReady); err != nil {
			s.status.Fail(stream.ErrDevice, "failed to open %s: %v", s.cfg.Device, err)
			s.teardown()
			s.down.CloseSink()
			return false
		}
		s.logf("opened %s", s.cfg.Pipeline())
		return true
	})
}

func (s *GstSource) build() error {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("failed to create v4l2src: %w", err)
	}
	if err := src.SetProperty("device", s.cfg.Device); err != nil {
		return fmt.Errorf("failed to set device: %w", err)
	}

	elems := []*gst.Element{src}
	for _, name := range []string{"videoconvert", "videoscale", "videorate"} {
		e, err := gst.NewElement(name)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
		elems = append(elems, e)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("failed to create capsfilter: %w", err)
	}
	caps := fmt.Sprintf("video/x-raw,format=GRAY8,width=%d,height=%d,framerate=%d/1",
		s.cfg.Width, s.cfg.Height, s.cfg.FPS)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(caps))
	elems = append(elems, capsfilter)

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)
	elems = append(elems, appsink.Element)

	if err := pipeline.AddMany(elems...); err != nil {
		return fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(elems...); err != nil {
		return fmt.Errorf("failed to link pipeline: %w", err)
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onSample,
	})

	s.pipeline = pipeline
	s.appsink = appsink
	return nil
}

func (s *GstSource) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	if !s.streaming.Load() {
		s.skipped.Add(1)
		return gst.FlowOK
	}

	info := buffer.Map(gst.MapRead)
	data := info.Bytes()
	if len(data) < s.cfg.Width*s.cfg.Height {
		buffer.Unmap()
		s.skipped.Add(1)
		return gst.FlowOK
	}
	s.down.Send(packet.Frame{Data: data, Width: s.cfg.Width, Height: s.cfg.Height, Stride: 1})
	buffer.Unmap()

	s.frames.Add(1)
	return gst.FlowOK
}

// StartStream sets the pipeline PLAYING and starts watching its bus.
func (s *GstSource) StartStream() bool {
	return s.life.Start(func() bool {
		if !s.status.IsValid() {
			return false
		}
		s.streaming.Store(true)
		if err := s.pipeline.SetState(gst.StatePlaying); err != nil {
			s.streaming.Store(false)
			s.status.Fail(stream.ErrDevice, "failed to start %s: %v", s.cfg.Device, err)
			return false
		}
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go s.watchBus(ctx)
		return true
	})
}

// StopStream pauses the pipeline and joins the bus monitor.
func (s *GstSource) StopStream() bool {
	return s.life.Stop(s.stop)
}

func (s *GstSource) stop() bool {
	s.streaming.Store(false)
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
	if err := s.pipeline.SetState(gst.StatePaused); err != nil {
		s.logf("failed to pause pipeline: %v", err)
	}
	return true
}

// CloseStream releases the device and closes the downstream chain.
func (s *GstSource) CloseStream() bool {
	return s.life.Close(s.stop, func() bool {
		s.teardown()
		return s.down.CloseSink()
	})
}

func (s *GstSource) teardown() {
	if s.pipeline == nil {
		return
	}
	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		s.logf("failed to release pipeline: %v", err)
	}
	s.pipeline = nil
	s.appsink = nil
}

// watchBus records pipeline errors and end of stream. Either stops frame
// delivery; the owner notices through IsValid.
func (s *GstSource) watchBus(ctx context.Context) {
	defer s.wg.Done()
	bus := s.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			s.status.Fail(stream.ErrDevice, "pipeline error: %s (%s)", gerr.Error(), gerr.DebugString())
			s.streaming.Store(false)
			return
		case gst.MessageEOS:
			s.status.Fail(stream.ErrDevice, "end of stream from %s", s.cfg.Device)
			s.streaming.Store(false)
			return
		}
	}
}
