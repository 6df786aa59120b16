package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	opens, closes int
	got           []int
	openResult    bool
}

func (r *recordingSink) OpenStream() bool  { r.opens++; return r.openResult }
func (r *recordingSink) CloseStream() bool { r.closes++; return true }
func (r *recordingSink) Process(v int)     { r.got = append(r.got, v) }

func TestLifecycleStartBeforeOpenFails(t *testing.T) {
	var l Lifecycle
	called := false
	ok := l.Start(func() bool { called = true; return true })
	assert.False(t, ok)
	assert.False(t, called, "start hook must not run before open")
	assert.Equal(t, Closed, l.State())
}

func TestLifecycleFullCycle(t *testing.T) {
	var l Lifecycle
	require.True(t, l.Open(nil))
	assert.Equal(t, Opened, l.State())
	require.True(t, l.Start(nil))
	assert.Equal(t, Streaming, l.State())
	require.True(t, l.Stop(nil))
	assert.Equal(t, Opened, l.State())
	require.True(t, l.Close(nil, nil))
	assert.Equal(t, Closed, l.State())
}

func TestLifecycleCloseIsIdempotent(t *testing.T) {
	var l Lifecycle
	calls := 0
	closeFn := func() bool { calls++; return true }
	assert.True(t, l.Close(nil, closeFn))
	require.True(t, l.Open(nil))
	assert.True(t, l.Close(nil, closeFn))
	assert.True(t, l.Close(nil, closeFn))
	assert.Equal(t, 1, calls)
}

func TestLifecycleCloseStopsStreaming(t *testing.T) {
	var l Lifecycle
	require.True(t, l.Open(nil))
	require.True(t, l.Start(nil))
	stopped := false
	assert.True(t, l.Close(func() bool { stopped = true; return true }, nil))
	assert.True(t, stopped)
	assert.Equal(t, Closed, l.State())
}

func TestLifecycleFailedOpenStaysClosed(t *testing.T) {
	var l Lifecycle
	assert.False(t, l.Open(func() bool { return false }))
	assert.Equal(t, Closed, l.State())
	assert.True(t, l.Open(func() bool { return true }), "retry after failure")
}

func TestLifecycleFailedStopAllowsRetry(t *testing.T) {
	var l Lifecycle
	require.True(t, l.Open(nil))
	require.True(t, l.Start(nil))
	assert.False(t, l.Stop(func() bool { return false }))
	assert.Equal(t, Streaming, l.State())
	assert.True(t, l.Stop(func() bool { return true }))
	assert.Equal(t, Opened, l.State())
}

func TestDownstreamRegisterIsOneShot(t *testing.T) {
	var d Downstream[int]
	first := &recordingSink{openResult: true}
	second := &recordingSink{openResult: true}

	assert.False(t, d.HasValidSink())
	assert.True(t, d.RegisterSink(first))
	assert.False(t, d.RegisterSink(second))
	assert.True(t, d.HasValidSink())

	d.Send(7)
	assert.Equal(t, []int{7}, first.got)
	assert.Empty(t, second.got)
}

func TestDownstreamWithoutSink(t *testing.T) {
	var d Downstream[int]
	assert.False(t, d.RegisterSink(nil))
	assert.NotPanics(t, func() { d.Send(1) })
	assert.True(t, d.OpenSink())
	assert.True(t, d.CloseSink())
	assert.Nil(t, d.Sink())
}

func TestDownstreamPropagatesOpenClose(t *testing.T) {
	var d Downstream[int]
	s := &recordingSink{openResult: false}
	d.RegisterSink(s)
	assert.False(t, d.OpenSink())
	assert.True(t, d.CloseSink())
	assert.Equal(t, 1, s.opens)
	assert.Equal(t, 1, s.closes)
}

func TestStatusAccumulates(t *testing.T) {
	var s Status
	assert.True(t, s.IsValid())
	assert.Empty(t, s.ErrorMsg())

	s.Fail(ErrProtocol, "bad header %q", "P6")
	s.Fail(ErrIO, "short read")

	assert.False(t, s.IsValid())
	assert.True(t, errors.Is(s.Err(), ErrProtocol))
	assert.Contains(t, s.ErrorMsg(), `bad header "P6"`)
	assert.Contains(t, s.ErrorMsg(), "short read")
}

func TestSinkFunc(t *testing.T) {
	var got []string
	var s Sink[string] = SinkFunc[string](func(v string) { got = append(got, v) })
	assert.True(t, s.OpenStream())
	s.Process("a")
	assert.True(t, s.CloseStream())
	assert.Equal(t, []string{"a"}, got)
}
