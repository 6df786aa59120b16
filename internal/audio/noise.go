package audio

import "math/bits"

const (
	// DefaultNoiseRows is the number of generator rows used by the engine.
	DefaultNoiseRows = 16
	maxNoiseRows     = 30

	pinkRandomBits  = 24
	pinkRandomShift = 64 - pinkRandomBits
	pinkSeed        = 22222
)

// PinkNoise is a Voss-McCartney pink noise generator. Each sample replaces
// the row selected by the trailing zero count of a masked running index and
// adds one white sample, so the spectrum falls off at roughly 3 dB/octave.
//
// Output lies in [-level, level). The generator is deterministic for a given
// row count; Next neither allocates nor locks.
type PinkNoise struct {
	rows   [maxNoiseRows]int64
	sum    int64
	index  uint32
	mask   uint32
	scalar float32
	seed   uint64
}

// NewPinkNoise returns a generator with nrow rows scaled to level. nrow is
// clamped to [1, 30].
func NewPinkNoise(nrow int, level float32) *PinkNoise {
	if nrow < 1 {
		nrow = 1
	}
	if nrow > maxNoiseRows {
		nrow = maxNoiseRows
	}
	// Largest signed value a sum can reach; the extra 1 is the white sample.
	pmax := int64(nrow+1) * (1 << (pinkRandomBits - 1))
	return &PinkNoise{
		mask:   1<<uint(nrow) - 1,
		scalar: level / float32(pmax),
		seed:   pinkSeed,
	}
}

// random advances the LCG and returns a signed 24-bit value.
func (p *PinkNoise) random() int64 {
	p.seed = p.seed*196314165 + 907633515
	return int64(p.seed) >> pinkRandomShift
}

// Next returns the next sample.
func (p *PinkNoise) Next() float32 {
	p.index = (p.index + 1) & p.mask
	if p.index != 0 {
		row := bits.TrailingZeros32(p.index)
		v := p.random()
		p.sum += v - p.rows[row]
		p.rows[row] = v
	}
	return p.scalar * float32(p.sum+p.random())
}

// Fill writes len(out) consecutive samples.
func (p *PinkNoise) Fill(out []float32) {
	for i := range out {
		out[i] = p.Next()
	}
}
