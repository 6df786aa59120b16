package neuron

import (
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ravine/internal/fsutil"
	"github.com/banshee-data/ravine/internal/packet"
	"github.com/banshee-data/ravine/internal/stream"
	"github.com/banshee-data/ravine/internal/testutil"
)

const (
	frameW = 320
	frameH = 240
	left   = 96
	top    = 56
)

// spotField is an 8x8 field of 200s with a single dark pixel.
func spotField() *image.Gray {
	img := testutil.NewGray(8, 8, 200)
	img.Pix[4*8+3] = 50
	return img
}

// grayFrame returns a GRAY8 frame of zeros with img pasted at (col, row).
func grayFrame(img *image.Gray, col, row int) packet.Frame {
	data := make([]byte, frameW*frameH)
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			data[(row+y)*frameW+col+x] = img.Pix[y*img.Stride+x]
		}
	}
	return packet.Frame{Data: data, Width: frameW, Height: frameH, Stride: 1}
}

// yuyvFrame is grayFrame with every luminance byte followed by a chroma byte.
func yuyvFrame(img *image.Gray, col, row int) packet.Frame {
	gray := grayFrame(img, col, row)
	data := make([]byte, len(gray.Data)*2)
	for i, v := range gray.Data {
		data[i*2] = v
		data[i*2+1] = 128
	}
	return packet.Frame{Data: data, Width: frameW, Height: frameH, Stride: 2}
}

func newDetector(t *testing.T, img *image.Gray, buffers int) *Detector {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	testutil.WritePGM(t, fsys, "/rf/rf-05.pgm", img)
	d := New(Config{RFPath: "/rf/rf-05.pgm", Col: left, Row: top, Buffers: buffers, FS: fsys})
	require.True(t, d.IsValid(), d.ErrorMsg())
	return d
}

type spikeCounter struct {
	stream.SinkFunc[packet.SpikeEvent]
	n atomic.Int64
}

func newSpikeCounter() *spikeCounter {
	c := &spikeCounter{}
	c.SinkFunc = func(packet.SpikeEvent) { c.n.Add(1) }
	return c
}

func TestThresholdAdapts(t *testing.T) {
	th := NewThreshold(DefaultThreshold, DefaultAdaptRate)
	assert.True(t, th.Observe(1.0))
	assert.InDelta(t, 0.28, th.Value(), 1e-6)
	assert.False(t, th.Observe(0.1))
	assert.InDelta(t, 0.252, th.Value(), 1e-6)
}

func TestThresholdEqualDoesNotFire(t *testing.T) {
	th := NewThreshold(0.5, 0.1)
	assert.False(t, th.Observe(0.5))
	assert.InDelta(t, 0.45, th.Value(), 1e-6)
}

func TestReceptiveFieldStatistics(t *testing.T) {
	rf, err := NewReceptiveField(spotField())
	require.NoError(t, err)
	assert.Equal(t, 64, rf.Len())
	assert.InDelta(t, 197.65625, rf.Mean, 1e-9)
	assert.InDelta(t, 22148.4375, rf.Magnitude, 1e-6)
}

func TestCorrelatePerfectMatch(t *testing.T) {
	img := spotField()
	rf, err := NewReceptiveField(img)
	require.NoError(t, err)

	patch := make([]float64, rf.Len())
	for i, p := range img.Pix {
		patch[i] = float64(p)
	}
	assert.InDelta(t, 1.0, rf.Correlate(patch), 1e-6)
}

func TestCorrelateScaledAndInverted(t *testing.T) {
	img := spotField()
	rf, _ := NewReceptiveField(img)

	scaled := make([]float64, rf.Len())
	inverted := make([]float64, rf.Len())
	for i, p := range img.Pix {
		scaled[i] = float64(p)/2 + 10
		inverted[i] = 255 - float64(p)
	}
	assert.InDelta(t, 1.0, rf.Correlate(scaled), 1e-6)
	assert.InDelta(t, -1.0, rf.Correlate(inverted), 1e-6)
}

func TestCorrelateUniformIsZero(t *testing.T) {
	rf, _ := NewReceptiveField(spotField())
	flat := make([]float64, rf.Len())
	for i := range flat {
		flat[i] = 123
	}
	assert.Equal(t, float32(0), rf.Correlate(flat))

	uniformRF, err := NewReceptiveField(testutil.NewGray(8, 8, 10))
	require.NoError(t, err)
	patch := make([]float64, 64)
	patch[0] = 255
	assert.Equal(t, float32(0), uniformRF.Correlate(patch), "0/0 must not become NaN")
}

func TestCorrelateWrongLength(t *testing.T) {
	rf, _ := NewReceptiveField(spotField())
	assert.Equal(t, float32(0), rf.Correlate(make([]float64, 3)))
}

func TestNewMissingFieldIsInvalid(t *testing.T) {
	d := New(Config{RFPath: "/nope.pgm", FS: fsutil.NewMemoryFileSystem()})
	assert.False(t, d.IsValid())
	assert.Contains(t, d.ErrorMsg(), "receptive field")
	assert.ErrorIs(t, d.Err(), stream.ErrConfiguration)
	assert.False(t, d.OpenStream())
	assert.NotPanics(t, func() { d.Process(packet.Frame{}) })
}

func TestNewMalformedFieldIsInvalid(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("/bad.pgm", []byte("P5\n0 0\n255\n"), 0644)
	d := New(Config{RFPath: "/bad.pgm", FS: fsys})
	assert.False(t, d.IsValid())
}

func TestStartBeforeOpenFails(t *testing.T) {
	d := newDetector(t, spotField(), 0)
	assert.False(t, d.StartStream())
	assert.True(t, d.StopStream())
	assert.True(t, d.CloseStream())
	assert.True(t, d.CloseStream())
}

func TestIdenticalPatchSpikes(t *testing.T) {
	img := spotField()
	d := newDetector(t, img, 0)
	sink := newSpikeCounter()
	require.True(t, d.RegisterSink(sink))
	require.True(t, d.OpenStream())
	require.True(t, d.StartStream())
	defer d.CloseStream()

	d.Process(grayFrame(img, left, top))
	require.True(t, d.WaitIdle(time.Second))

	st := d.Stats()
	assert.Equal(t, uint64(1), st.FramesProcessed)
	assert.Equal(t, uint64(1), st.Spikes)
	assert.InDelta(t, 1.0, st.LastActivation, 1e-6)
	assert.InDelta(t, 0.28, st.Threshold, 1e-6)
	assert.Equal(t, int64(1), sink.n.Load())
}

func TestYUYVFrameMatchesGray(t *testing.T) {
	img := spotField()
	d := newDetector(t, img, 0)
	require.True(t, d.OpenStream())
	require.True(t, d.StartStream())
	defer d.CloseStream()

	d.Process(yuyvFrame(img, left, top))
	require.True(t, d.WaitIdle(time.Second))
	assert.InDelta(t, 1.0, d.Stats().LastActivation, 1e-6)
}

func TestQuietFrameDecaysThreshold(t *testing.T) {
	d := newDetector(t, spotField(), 0)
	sink := newSpikeCounter()
	d.RegisterSink(sink)
	require.True(t, d.OpenStream())
	require.True(t, d.StartStream())
	defer d.CloseStream()

	// Blank frame: uniform window, activation 0.
	d.Process(packet.Frame{Data: make([]byte, frameW*frameH), Width: frameW, Height: frameH, Stride: 1})
	require.True(t, d.WaitIdle(time.Second))

	st := d.Stats()
	assert.Equal(t, float32(0), st.LastActivation)
	assert.InDelta(t, 0.18, st.Threshold, 1e-6)
	assert.Zero(t, sink.n.Load())
}

func TestProcessDropsWhenPoolExhausted(t *testing.T) {
	img := spotField()
	d := newDetector(t, img, 2)
	require.True(t, d.OpenStream())

	frame := grayFrame(img, left, top)
	for i := 0; i < 3; i++ {
		d.Process(frame)
	}
	assert.Equal(t, uint64(1), d.Stats().FramesDropped)

	require.True(t, d.StartStream())
	require.True(t, d.WaitIdle(time.Second))
	assert.Equal(t, uint64(2), d.Stats().FramesProcessed)
	assert.True(t, d.CloseStream())
}

func TestProcessIgnoredWhenClosed(t *testing.T) {
	img := spotField()
	d := newDetector(t, img, 0)
	d.Process(grayFrame(img, left, top))
	assert.Zero(t, d.Stats().FramesDropped)
	assert.True(t, d.WaitIdle(10*time.Millisecond))
}

func TestOpenPropagatesToSink(t *testing.T) {
	d := newDetector(t, spotField(), 0)
	sink := &failingSink{}
	d.RegisterSink(sink)
	assert.False(t, d.OpenStream())
	assert.False(t, d.IsValid())
	assert.Equal(t, 1, sink.opens)
}

func TestRecentActivationsOrder(t *testing.T) {
	d := newDetector(t, spotField(), 0)
	for i := 0; i < historySize+3; i++ {
		d.observe(float32(i))
	}
	got := d.RecentActivations()
	require.Len(t, got, historySize)
	assert.Equal(t, float32(3), got[0])
	assert.Equal(t, float32(historySize+2), got[historySize-1])
}

type failingSink struct{ opens int }

func (f *failingSink) OpenStream() bool          { f.opens++; return false }
func (f *failingSink) CloseStream() bool         { return true }
func (f *failingSink) Process(packet.SpikeEvent) {}

func TestWindowOutsideFrameIsDroppedAndReported(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	testutil.WritePGM(t, fsys, "/rf/rf-05.pgm", spotField())
	d := New(Config{RFPath: "/rf/rf-05.pgm", Col: 400, Row: 300, FS: fsys})
	require.True(t, d.IsValid(), d.ErrorMsg())
	sink := newSpikeCounter()
	d.RegisterSink(sink)
	require.True(t, d.OpenStream())
	require.True(t, d.StartStream())
	defer d.CloseStream()

	blank := packet.Frame{Data: make([]byte, frameW*frameH), Width: frameW, Height: frameH, Stride: 1}
	for i := 0; i < 20; i++ {
		d.Process(blank)
	}
	require.True(t, d.WaitIdle(time.Second))

	st := d.Stats()
	assert.Zero(t, st.FramesProcessed)
	assert.Equal(t, uint64(20), st.FramesOutside)
	assert.Equal(t, uint64(20), st.FramesDropped)
	assert.InDelta(t, DefaultThreshold, st.Threshold, 1e-6, "threshold untouched")
	assert.False(t, d.IsValid())
	assert.ErrorIs(t, d.Err(), stream.ErrConfiguration)
	assert.Contains(t, d.ErrorMsg(), "8x8 at (400,300) does not fit 320x240")
	assert.Zero(t, sink.n.Load())
}

func TestShortFrameDataIsDropped(t *testing.T) {
	img := spotField()
	d := newDetector(t, img, 0)
	require.True(t, d.OpenStream())
	defer d.CloseStream()

	frame := grayFrame(img, left, top)
	frame.Data = frame.Data[:top*frameW]
	d.Process(frame)

	st := d.Stats()
	assert.Equal(t, uint64(1), st.FramesOutside)
	assert.True(t, d.WaitIdle(10*time.Millisecond), "buffer returned to the pool")
	assert.False(t, d.IsValid())
}

func TestObserveFiresOnlyAboveThreshold(t *testing.T) {
	d := newDetector(t, spotField(), 0)
	sink := newSpikeCounter()
	d.RegisterSink(sink)

	d.observe(DefaultThreshold)
	assert.Zero(t, sink.n.Load(), "equal activation does not fire")
	assert.InDelta(t, 0.18, d.Stats().Threshold, 1e-6)

	d.observe(0.19)
	assert.Equal(t, int64(1), sink.n.Load())
	assert.Equal(t, uint64(1), d.Stats().Spikes)
	assert.InDelta(t, 0.18+0.82*0.1, d.Stats().Threshold, 1e-6)
}
