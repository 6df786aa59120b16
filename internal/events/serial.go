package events

import (
	"context"
	"errors"
	"sync"

	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/serialport"
	"github.com/banshee-data/ravine/internal/stream"
	"github.com/banshee-data/ravine/internal/timeutil"
)

// SerialSource reads trigger bytes from a serial device. It follows the same
// byte protocol as TCPSource; the port counts as connected once it opens.
type SerialSource struct {
	base

	path string
	opts serialport.Options
	open serialport.Opener

	mu   sync.Mutex
	port serialport.Port

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSerialSource returns a source for the device at path. A nil opener uses
// serialport.Open.
func NewSerialSource(path string, opts serialport.Options, open serialport.Opener, tb *timeutil.Timebase) *SerialSource {
	if tb == nil {
		tb = timeutil.NewTimebase()
	}
	if open == nil {
		open = serialport.Open
	}
	s := &SerialSource{
		base: base{tb: tb, logf: monitoring.Prefixed("events")},
		path: path,
		open: open,
	}
	normalized, err := opts.Normalize()
	if err != nil {
		s.status.Fail(stream.ErrConfiguration, "serial options for %s: %v", path, err)
	}
	s.opts = normalized
	return s
}

// OpenStream opens the downstream sink and the serial device.
func (s *SerialSource) OpenStream() bool {
	if !s.status.IsValid() {
		return false
	}
	return s.life.Open(func() bool {
		if !s.down.OpenSink() {
			s.status.Fail(stream.ErrIO, "downstream sink failed to open")
			return false
		}
		port, err := s.open(s.path, s.opts)
		if err != nil {
			s.down.CloseSink()
			s.status.Fail(stream.ErrDevice, "%v", err)
			return false
		}
		if err := port.SetReadTimeout(pollInterval); err != nil {
			port.Close()
			s.down.CloseSink()
			s.status.Fail(stream.ErrDevice, "failed to set read timeout on %s: %v", s.path, err)
			return false
		}
		s.mu.Lock()
		s.port = port
		s.mu.Unlock()
		s.running.Store(true)
		s.ready.Store(true)
		s.logf("reading triggers from %s at %d baud", s.path, s.opts.BaudRate)
		return true
	})
}

// StartStream launches the read goroutine.
func (s *SerialSource) StartStream() bool {
	return s.life.Start(func() bool {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go s.run(ctx)
		return true
	})
}

// StopStream cancels the read goroutine and waits for it.
func (s *SerialSource) StopStream() bool {
	return s.life.Stop(s.stop)
}

func (s *SerialSource) stop() bool {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
	return true
}

// CloseStream closes the port and the downstream sink.
func (s *SerialSource) CloseStream() bool {
	return s.life.Close(s.stop, func() bool {
		s.mu.Lock()
		if s.port != nil {
			if err := s.port.Close(); err != nil {
				s.logf("failed to close %s: %v", s.path, err)
			}
			s.port = nil
		}
		s.mu.Unlock()
		s.ready.Store(false)
		s.running.Store(false)
		return s.down.CloseSink()
	})
}

func (s *SerialSource) run(ctx context.Context) {
	defer s.wg.Done()

	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil || !s.running.Load() {
		return
	}

	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := port.Read(buf)
		for i := 0; i < n; i++ {
			if !s.deliver(buf[i]) {
				s.running.Store(false)
				return
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, serialport.ErrClosed) {
				return
			}
			s.status.Fail(stream.ErrIO, "read from %s failed: %v", s.path, err)
			s.running.Store(false)
			return
		}
	}
}
