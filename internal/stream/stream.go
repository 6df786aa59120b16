// Package stream defines the lifecycle shared by every pipeline stage.
//
// A stage is a Source (it forwards packets to one downstream Sink), a Sink
// (it accepts packets from upstream), or a Filter (both). Every stage moves
// through the same states:
//
//	Closed --OpenStream--> Opened --StartStream--> Streaming
//	Streaming --StopStream--> Opened --CloseStream--> Closed
//
// OpenStream and CloseStream propagate down the chain before the local
// device or goroutine is touched; StartStream and StopStream only govern the
// local processing goroutine. Stages report failure through a boolean return
// and a Status that the owner queries afterwards.
package stream

// Openable is implemented by every stage.
type Openable interface {
	OpenStream() bool
	CloseStream() bool
}

// Startable is implemented by stages that own a processing goroutine or a
// device callback.
type Startable interface {
	StartStream() bool
	StopStream() bool
}

// Component is a stage that can be opened and started.
type Component interface {
	Openable
	Startable
}

// Sink consumes packets of type T. Process must not block.
type Sink[T any] interface {
	Openable
	Process(T)
}

// Source forwards packets of type T to at most one Sink.
type Source[T any] interface {
	RegisterSink(Sink[T]) bool
	HasValidSink() bool
}

// Filter consumes In packets and produces Out packets.
type Filter[In, Out any] interface {
	Sink[In]
	Source[Out]
	Startable
}

// Validator exposes the validity flag and accumulated message of a stage.
type Validator interface {
	IsValid() bool
	ErrorMsg() string
}
