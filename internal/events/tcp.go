package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/stream"
	"github.com/banshee-data/ravine/internal/timeutil"
)

// TCPSource accepts a single trigger peer on a TCP port. Every byte the peer
// sends becomes one DiscreteEvent; the byte 0xFF ends reading without
// closing the connection.
type TCPSource struct {
	base

	address string

	mu   sync.Mutex
	ln   *net.TCPListener
	conn net.Conn

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTCPSource returns a source that will listen on address (host:port).
func NewTCPSource(address string, tb *timeutil.Timebase) *TCPSource {
	if tb == nil {
		tb = timeutil.NewTimebase()
	}
	return &TCPSource{
		base:    base{tb: tb, logf: monitoring.Prefixed("events")},
		address: address,
	}
}

// Addr returns the bound listener address, or nil before OpenStream.
func (s *TCPSource) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// OpenStream opens the downstream sink and binds the listener so peers can
// connect before the pipeline starts.
func (s *TCPSource) OpenStream() bool {
	return s.life.Open(func() bool {
		if !s.down.OpenSink() {
			s.status.Fail(stream.ErrIO, "downstream sink failed to open")
			return false
		}
		addr, err := net.ResolveTCPAddr("tcp", s.address)
		if err != nil {
			s.down.CloseSink()
			s.status.Fail(stream.ErrConfiguration, "failed to resolve %s: %v", s.address, err)
			return false
		}
		ln, err := net.ListenTCP("tcp", addr)
		if err != nil {
			s.down.CloseSink()
			s.status.Fail(stream.ErrDevice, "failed to listen on %s: %v", s.address, err)
			return false
		}
		s.mu.Lock()
		s.ln = ln
		s.mu.Unlock()
		s.running.Store(true)
		s.logf("listening for trigger peer on %s", ln.Addr())
		return true
	})
}

// StartStream launches the accept and read goroutine.
func (s *TCPSource) StartStream() bool {
	return s.life.Start(func() bool {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go s.run(ctx)
		return true
	})
}

// StopStream cancels the goroutine and waits for it to exit.
func (s *TCPSource) StopStream() bool {
	return s.life.Stop(s.stop)
}

func (s *TCPSource) stop() bool {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
	return true
}

// CloseStream stops reading, closes the connection and listener and closes
// the downstream sink.
func (s *TCPSource) CloseStream() bool {
	return s.life.Close(s.stop, func() bool {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		if s.ln != nil {
			s.ln.Close()
			s.ln = nil
		}
		s.mu.Unlock()
		s.ready.Store(false)
		s.running.Store(false)
		return s.down.CloseSink()
	})
}

func (s *TCPSource) run(ctx context.Context) {
	defer s.wg.Done()

	conn := s.currentConn()
	if conn == nil {
		var err error
		if conn, err = s.accept(ctx); err != nil {
			if ctx.Err() == nil {
				s.status.Fail(stream.ErrIO, "accept failed: %v", err)
				s.running.Store(false)
			}
			return
		}
	}
	if !s.running.Load() {
		return
	}
	s.read(ctx, conn)
}

func (s *TCPSource) currentConn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// accept waits for the single peer, checking ctx between deadlines.
func (s *TCPSource) accept(ctx context.Context) (net.Conn, error) {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil, fmt.Errorf("listener not open")
	}

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := ln.SetDeadline(time.Now().Add(pollInterval)); err != nil {
			return nil, err
		}
		conn, err := ln.AcceptTCP()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return nil, err
		}
		conn.SetNoDelay(true)

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.ready.Store(true)
		s.logf("trigger peer connected from %s", conn.RemoteAddr())
		return conn, nil
	}
}

// read forwards one event per byte until ctx is cancelled, the peer sends
// the shutdown byte or the connection fails.
func (s *TCPSource) read(ctx context.Context, conn net.Conn) {
	var buf [1]byte
	var deadlineErrLogged bool
	for {
		if ctx.Err() != nil {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil && !deadlineErrLogged {
			s.logf("failed to set read deadline: %v", err)
			deadlineErrLogged = true
		}

		n, err := conn.Read(buf[:])
		if n == 1 && !s.deliver(buf[0]) {
			s.running.Store(false)
			return
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if errors.Is(err, io.EOF) {
				s.logf("trigger peer disconnected")
			} else {
				s.status.Fail(stream.ErrIO, "read failed: %v", err)
			}
			s.running.Store(false)
			return
		}
	}
}

// WaitReady blocks until a peer has connected, the source stops running or
// ctx is done, and reports whether a peer is connected.
func (s *TCPSource) WaitReady(ctx context.Context) bool {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !s.Ready() {
		if !s.Running() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}
