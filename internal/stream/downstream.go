package stream

import "sync/atomic"

type sinkRef[T any] struct {
	sink Sink[T]
}

// Downstream holds the single sink a Source forwards to. Registration is
// one-shot; the hot path reads the sink without locking so Send is safe from
// a real-time callback.
type Downstream[T any] struct {
	ref atomic.Pointer[sinkRef[T]]
}

// RegisterSink stores s as the downstream sink. A second registration, or a
// nil sink, is ignored and reported as false.
func (d *Downstream[T]) RegisterSink(s Sink[T]) bool {
	if s == nil {
		return false
	}
	return d.ref.CompareAndSwap(nil, &sinkRef[T]{sink: s})
}

// HasValidSink reports whether a sink has been registered.
func (d *Downstream[T]) HasValidSink() bool {
	return d.ref.Load() != nil
}

// Sink returns the registered sink or nil.
func (d *Downstream[T]) Sink() Sink[T] {
	if r := d.ref.Load(); r != nil {
		return r.sink
	}
	return nil
}

// Send forwards v to the sink. It is a no-op without a sink.
func (d *Downstream[T]) Send(v T) {
	if r := d.ref.Load(); r != nil {
		r.sink.Process(v)
	}
}

// OpenSink opens the downstream chain. Without a sink it succeeds.
func (d *Downstream[T]) OpenSink() bool {
	if r := d.ref.Load(); r != nil {
		return r.sink.OpenStream()
	}
	return true
}

// CloseSink closes the downstream chain. Without a sink it succeeds.
func (d *Downstream[T]) CloseSink() bool {
	if r := d.ref.Load(); r != nil {
		return r.sink.CloseStream()
	}
	return true
}

// SinkFunc adapts a function to Sink for stages that need no lifecycle of
// their own.
type SinkFunc[T any] func(T)

func (f SinkFunc[T]) OpenStream() bool  { return true }
func (f SinkFunc[T]) CloseStream() bool { return true }
func (f SinkFunc[T]) Process(v T)       { f(v) }
