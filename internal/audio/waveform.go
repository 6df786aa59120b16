package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/banshee-data/ravine/internal/fsutil"
)

// DefaultWaveformPath is where the engine looks for the spike waveform.
const DefaultWaveformPath = "./spike.wf"

// maxWaveformSamples bounds the sample count read from a file header.
const maxWaveformSamples = 1 << 22

// ErrWaveform is returned for malformed waveform files.
var ErrWaveform = errors.New("invalid waveform")

// DecodeWaveform reads a waveform: an int32 sample count followed by that
// many float32 samples, all little-endian.
func DecodeWaveform(r io.Reader) ([]float32, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: reading sample count: %v", ErrWaveform, err)
	}
	if n <= 0 || n > maxWaveformSamples {
		return nil, fmt.Errorf("%w: sample count %d", ErrWaveform, n)
	}
	samples := make([]float32, n)
	if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("%w: reading %d samples: %v", ErrWaveform, n, err)
	}
	return samples, nil
}

// EncodeWaveform writes samples in the layout DecodeWaveform reads.
func EncodeWaveform(w io.Writer, samples []float32) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(samples))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, samples)
}

// LoadWaveform reads a waveform file through fsys.
func LoadWaveform(fsys fsutil.FileSystem, path string) ([]float32, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read waveform %s: %w", path, err)
	}
	samples, err := DecodeWaveform(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// SaveWaveform writes samples to path through fsys.
func SaveWaveform(fsys fsutil.FileSystem, path string, samples []float32) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create waveform %s: %w", path, err)
	}
	if err := EncodeWaveform(f, samples); err != nil {
		f.Close()
		return fmt.Errorf("failed to write waveform %s: %w", path, err)
	}
	return f.Close()
}

// SynthesizeSpike returns a biphasic spike lasting duration at sampleRate:
// the first derivative of a Gaussian centred in the window, with a positive
// lobe then a negative lobe, each peaking at amplitude.
func SynthesizeSpike(sampleRate float64, duration time.Duration, amplitude float32) []float32 {
	n := int(math.Round(sampleRate * duration.Seconds()))
	if n < 1 {
		n = 1
	}
	centre := float64(n-1) / 2
	sigma := float64(n) / 8
	if sigma <= 0 {
		sigma = 1
	}
	out := make([]float32, n)
	for i := range out {
		x := (centre - float64(i)) / sigma
		// x*exp((1-x^2)/2) peaks at ±1 when x = ±1.
		out[i] = amplitude * float32(x*math.Exp((1-x*x)/2))
	}
	return out
}
