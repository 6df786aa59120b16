package monitoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/banshee-data/ravine/internal/timeutil"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// Now set to nil and verify it doesn't call our logger
	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func TestPrefixed(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	logf := Prefixed("neuron")
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	logf("threshold=%.2f", 0.28)
	if got != "[neuron] threshold=0.28" {
		t.Errorf("got %q", got)
	}
}

func TestThrottle(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	th := NewThrottleWithClock(time.Second, clock)

	th.Logf("dropped event %d", 1)
	th.Logf("dropped event %d", 2)
	th.Logf("dropped event %d", 3)
	clock.Advance(time.Second)
	th.Logf("dropped event %d", 4)

	want := []string{
		"dropped event 1",
		"dropped event 4 (2 similar suppressed)",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines %q, want %d", len(lines), lines, len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
