package serialport

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by TestPort after Close.
var ErrClosed = errors.New("serial port closed")

// TestPort is an in-memory Port. Bytes queued with Feed are returned by
// Read; an empty Read waits up to the read timeout and then returns 0, nil
// like a hardware port.
type TestPort struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	timeout time.Duration
	closed  bool

	// ReadError is returned by the next Read when set.
	ReadError error
	// CloseError is returned by Close when set.
	CloseError error

	reads int
}

// NewTestPort returns an open TestPort with a 100ms read timeout.
func NewTestPort() *TestPort {
	p := &TestPort{timeout: 100 * time.Millisecond}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Feed queues data for Read.
func (p *TestPort) Feed(data ...byte) {
	p.mu.Lock()
	p.buf = append(p.buf, data...)
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *TestPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++

	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}

	if len(p.buf) == 0 && !p.closed {
		deadline := time.Now().Add(p.timeout)
		timer := time.AfterFunc(p.timeout, p.cond.Broadcast)
		for len(p.buf) == 0 && !p.closed && time.Now().Before(deadline) {
			p.cond.Wait()
		}
		timer.Stop()
	}
	if p.closed {
		return 0, ErrClosed
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func (p *TestPort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = timeout
	return nil
}

func (p *TestPort) Close() error {
	p.mu.Lock()
	p.closed = true
	err := p.CloseError
	p.mu.Unlock()
	p.cond.Broadcast()
	return err
}

// Reads returns the number of Read calls.
func (p *TestPort) Reads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

// Opener returns an Opener that always yields p.
func (p *TestPort) Opener() Opener {
	return func(string, Options) (Port, error) { return p, nil }
}
