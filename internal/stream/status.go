package stream

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Error classes shared by every stage. Stage errors wrap one of these so the
// owner can decide with errors.Is whether a failure is fatal.
var (
	// ErrConfiguration covers bad flag combinations and missing inputs.
	ErrConfiguration = errors.New("configuration error")
	// ErrDevice covers capture and audio device failures.
	ErrDevice = errors.New("device error")
	// ErrResourceExhausted is reported when a pool has no buffer to give.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrIO covers log file open and write failures.
	ErrIO = errors.New("io error")
	// ErrProtocol covers malformed receptive-field and waveform files.
	ErrProtocol = errors.New("protocol error")
)

// Status is the validity flag and accumulated message of a stage. The zero
// value is valid. The first failure marks the stage invalid; later failures
// append to the message.
type Status struct {
	mu   sync.Mutex
	err  error
	msgs []string
}

// Fail records a failure of the given class.
func (s *Status) Fail(class error, format string, args ...any) {
	err := fmt.Errorf("%w: %s", class, fmt.Sprintf(format, args...))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
	s.msgs = append(s.msgs, err.Error())
}

// IsValid reports whether no failure has been recorded.
func (s *Status) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err == nil
}

// Err returns the first recorded failure, or nil.
func (s *Status) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ErrorMsg returns every recorded failure joined into one line.
func (s *Status) ErrorMsg() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.msgs, " ")
}
