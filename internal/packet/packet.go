// Package packet defines the typed data units exchanged between pipeline
// stages: image frames, activations, audio blocks and discrete events.
package packet

// FramesPerBuffer is the number of samples in every audio block rendered by
// the audio engine and stored by the log sink.
const FramesPerBuffer = 64

// Frame is a view over one captured image. The capture source owns Data for
// the duration of a single Process call; stages must copy what they need.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	// Stride is the number of bytes per pixel. Luminance is the first byte
	// of every pixel (1 for GRAY8, 2 for YUYV).
	Stride int
}

// Len returns the number of bytes in the frame.
func (f Frame) Len() int { return len(f.Data) }

// Luma returns the luminance sample at (col, row) and false when the
// coordinate falls outside the frame data.
func (f Frame) Luma(col, row int) (uint8, bool) {
	stride := f.Stride
	if stride < 1 {
		stride = 1
	}
	if col < 0 || row < 0 || col >= f.Width || row >= f.Height {
		return 0, false
	}
	idx := (row*f.Width + col) * stride
	if idx >= len(f.Data) {
		return 0, false
	}
	return f.Data[idx], true
}

// CropWindow is the sub-region of a frame examined by the detector.
type CropWindow struct {
	Col    int
	Row    int
	Width  int
	Height int
}

// Len returns the number of pixels in the window.
func (w CropWindow) Len() int {
	if w.Width <= 0 || w.Height <= 0 {
		return 0
	}
	return w.Width * w.Height
}

// Fits reports whether the window lies inside a width x height frame.
func (w CropWindow) Fits(width, height int) bool {
	if w.Col < 0 || w.Row < 0 || w.Width <= 0 || w.Height <= 0 {
		return false
	}
	return w.Col+w.Width <= width && w.Row+w.Height <= height
}

// Activation is the correlation score of one frame window.
type Activation float32

// SpikeEvent signals that the detector fired. It carries no data.
type SpikeEvent struct{}

// DiscreteEvent is one external trigger byte stamped with its arrival time in
// seconds since pipeline start.
type DiscreteEvent struct {
	Value     byte
	Timestamp float32
}

// ShutdownByte is the trigger value a peer sends to request shutdown.
const ShutdownByte byte = 0xff

// IsShutdown reports whether the event is a peer shutdown request.
func (e DiscreteEvent) IsShutdown() bool { return e.Value == ShutdownByte }
