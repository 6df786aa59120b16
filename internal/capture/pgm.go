package capture

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/ravine/internal/fsutil"
	"github.com/banshee-data/ravine/internal/imageutil"
	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/packet"
	"github.com/banshee-data/ravine/internal/stream"
	"github.com/banshee-data/ravine/internal/timeutil"
)

// PGMConfig configures a replay source.
type PGMConfig struct {
	Paths []string
	FPS   int
	// Loop restarts from the first frame after the last one.
	Loop  bool
	FS    fsutil.FileSystem
	Clock timeutil.Clock
}

// PGMSource replays a fixed list of PGM frames at a steady rate.
type PGMSource struct {
	cfg    PGMConfig
	frames []*image.Gray

	down   stream.Downstream[packet.Frame]
	life   stream.Lifecycle
	status stream.Status
	logf   func(format string, v ...interface{})

	next     int
	sent     atomic.Uint64
	finished atomic.Bool

	ticker timeutil.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// GlobPGM returns the sorted .pgm files in dir.
func GlobPGM(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.pgm"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .pgm files in %s", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// NewPGMSource returns a replay source. Frames are loaded at OpenStream.
func NewPGMSource(cfg PGMConfig) *PGMSource {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	s := &PGMSource{cfg: cfg, logf: monitoring.Prefixed("capture")}
	if len(cfg.Paths) == 0 {
		s.status.Fail(stream.ErrConfiguration, "no frames to replay")
	}
	return s
}

func (s *PGMSource) RegisterSink(sink stream.Sink[packet.Frame]) bool {
	return s.down.RegisterSink(sink)
}
func (s *PGMSource) HasValidSink() bool { return s.down.HasValidSink() }
func (s *PGMSource) IsValid() bool      { return s.status.IsValid() }
func (s *PGMSource) ErrorMsg() string   { return s.status.ErrorMsg() }
func (s *PGMSource) Err() error         { return s.status.Err() }

// Finished reports whether a non-looping replay has sent its last frame.
func (s *PGMSource) Finished() bool { return s.finished.Load() }

// Stats returns the replay counters. Width and Height describe the first
// frame.
func (s *PGMSource) Stats() Stats {
	st := Stats{Frames: s.sent.Load()}
	if len(s.frames) > 0 {
		b := s.frames[0].Bounds()
		st.Width, st.Height = b.Dx(), b.Dy()
	}
	return st
}

// OpenStream decodes every frame and opens the downstream chain.
func (s *PGMSource) OpenStream() bool {
	if !s.status.IsValid() {
		return false
	}
	return s.life.Open(func() bool {
		frames := make([]*image.Gray, 0, len(s.cfg.Paths))
		for _, path := range s.cfg.Paths {
			img, err := imageutil.ReadPGM(s.cfg.FS, path)
			if err != nil {
				s.status.Fail(stream.ErrDevice, "failed to load frame: %v", err)
				return false
			}
			frames = append(frames, img)
		}
		if !s.down.OpenSink() {
			s.status.Fail(stream.ErrDevice, "downstream sink failed to open")
			return false
		}
		s.frames = frames
		s.next = 0
		s.finished.Store(false)
		s.logf("replaying %d frames at %d fps", len(frames), s.cfg.FPS)
		return true
	})
}

// StartStream starts the replay ticker.
func (s *PGMSource) StartStream() bool {
	return s.life.Start(func() bool {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.ticker = s.cfg.Clock.NewTicker(Config{FPS: s.cfg.FPS}.Period())
		s.wg.Add(1)
		go s.run(ctx, s.ticker)
		return true
	})
}

// StopStream stops the ticker and joins the replay goroutine.
func (s *PGMSource) StopStream() bool {
	return s.life.Stop(s.stop)
}

func (s *PGMSource) stop() bool {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	return true
}

// CloseStream releases the frames and closes the downstream chain.
func (s *PGMSource) CloseStream() bool {
	return s.life.Close(s.stop, func() bool {
		s.frames = nil
		return s.down.CloseSink()
	})
}

func (s *PGMSource) run(ctx context.Context, ticker timeutil.Ticker) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !s.emit() {
				s.finished.Store(true)
				s.logf("replay finished after %d frames", s.sent.Load())
				return
			}
		}
	}
}

// emit sends the next frame and reports whether replay continues.
func (s *PGMSource) emit() bool {
	if s.next >= len(s.frames) {
		if !s.cfg.Loop || len(s.frames) == 0 {
			return false
		}
		s.next = 0
	}
	img := s.frames[s.next]
	s.next++
	b := img.Bounds()
	s.down.Send(packet.Frame{Data: img.Pix, Width: b.Dx(), Height: b.Dy(), Stride: 1})
	s.sent.Add(1)
	return s.cfg.Loop || s.next < len(s.frames)
}
