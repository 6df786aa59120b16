package packet

// AudioView is a borrowed block of samples, valid only while the audio
// callback that produced it is running.
type AudioView struct {
	Samples   []float32
	Timestamp float32
}

// Len returns the number of samples in the view.
func (v AudioView) Len() int { return len(v.Samples) }

// AudioBlock is an owned, fixed-capacity audio buffer. Pool-managed blocks
// are allocated once and reused; CopyFrom never allocates.
type AudioBlock struct {
	data      []float32
	length    int
	Timestamp float32
}

// NewAudioBlock allocates a zeroed block able to hold capacity samples.
func NewAudioBlock(capacity int) *AudioBlock {
	if capacity < 0 {
		capacity = 0
	}
	return &AudioBlock{data: make([]float32, capacity), length: capacity}
}

// Clone returns a deep copy with the same capacity, length and timestamp.
func (b *AudioBlock) Clone() *AudioBlock {
	c := &AudioBlock{
		data:      make([]float32, len(b.data)),
		length:    b.length,
		Timestamp: b.Timestamp,
	}
	copy(c.data, b.data)
	return c
}

// Cap returns the allocated capacity in samples.
func (b *AudioBlock) Cap() int { return len(b.data) }

// Len returns the number of valid samples.
func (b *AudioBlock) Len() int { return b.length }

// Samples returns the valid samples. The slice aliases the block's storage.
func (b *AudioBlock) Samples() []float32 { return b.data[:b.length] }

// CopyFrom copies min(capacity, len(src)) samples and the timestamp from a
// borrowed view. The block's length becomes the number of samples copied.
func (b *AudioBlock) CopyFrom(src AudioView) int {
	n := copy(b.data, src.Samples)
	b.length = n
	b.Timestamp = src.Timestamp
	return n
}

// Fill sets every sample in the block's capacity to v and restores the full
// length.
func (b *AudioBlock) Fill(v float32) {
	for i := range b.data {
		b.data[i] = v
	}
	b.length = len(b.data)
}

// IsSilent reports whether every valid sample is exactly zero.
func (b *AudioBlock) IsSilent() bool {
	for _, s := range b.data[:b.length] {
		if s != 0 {
			return false
		}
	}
	return true
}

// View returns a borrowed view of the valid samples.
func (b *AudioBlock) View() AudioView {
	return AudioView{Samples: b.Samples(), Timestamp: b.Timestamp}
}
