package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameLuma(t *testing.T) {
	gray := Frame{Data: []byte{1, 2, 3, 4, 5, 6}, Width: 3, Height: 2, Stride: 1}
	v, ok := gray.Luma(2, 1)
	assert.True(t, ok)
	assert.Equal(t, uint8(6), v)

	yuyv := Frame{Data: []byte{10, 128, 20, 128, 30, 128, 40, 128}, Width: 2, Height: 2, Stride: 2}
	v, ok = yuyv.Luma(1, 1)
	assert.True(t, ok)
	assert.Equal(t, uint8(40), v)

	_, ok = gray.Luma(3, 0)
	assert.False(t, ok)
	_, ok = gray.Luma(-1, 0)
	assert.False(t, ok)
	short := Frame{Data: []byte{1}, Width: 2, Height: 2}
	_, ok = short.Luma(1, 1)
	assert.False(t, ok, "coordinate past the end of the data")
}

func TestCropWindowLen(t *testing.T) {
	assert.Equal(t, 64, CropWindow{Width: 8, Height: 8}.Len())
	assert.Equal(t, 0, CropWindow{Width: -1, Height: 8}.Len())
}

func TestAudioBlockCopyFromTruncates(t *testing.T) {
	b := NewAudioBlock(4)
	assert.Equal(t, 4, b.Len())
	assert.True(t, b.IsSilent())

	n := b.CopyFrom(AudioView{Samples: []float32{1, 2, 3, 4, 5, 6}, Timestamp: 0.5})
	assert.Equal(t, 4, n)
	assert.Equal(t, []float32{1, 2, 3, 4}, b.Samples())
	assert.Equal(t, float32(0.5), b.Timestamp)

	n = b.CopyFrom(AudioView{Samples: []float32{0, 0}, Timestamp: 1})
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 4, b.Cap())
	assert.True(t, b.IsSilent())
}

func TestAudioBlockCloneIsDeep(t *testing.T) {
	b := NewAudioBlock(2)
	b.Fill(0.25)
	b.Timestamp = 3
	c := b.Clone()
	b.Fill(0)

	assert.Equal(t, []float32{0.25, 0.25}, c.Samples())
	assert.Equal(t, float32(3), c.Timestamp)
	assert.Equal(t, AudioView{Samples: []float32{0.25, 0.25}, Timestamp: 3}, c.View())
}

func TestDiscreteEventShutdown(t *testing.T) {
	assert.True(t, DiscreteEvent{Value: 0xff}.IsShutdown())
	assert.False(t, DiscreteEvent{Value: 0x01}.IsShutdown())
}

func TestCropWindowFits(t *testing.T) {
	w := CropWindow{Col: 312, Row: 232, Width: 8, Height: 8}
	assert.True(t, w.Fits(320, 240))
	assert.False(t, w.Fits(319, 240))
	assert.False(t, w.Fits(320, 239))
	assert.False(t, CropWindow{Col: -1, Width: 8, Height: 8}.Fits(320, 240))
	assert.False(t, CropWindow{Width: 0, Height: 8}.Fits(320, 240))
}
