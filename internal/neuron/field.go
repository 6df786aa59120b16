package neuron

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/ravine/internal/fsutil"
	"github.com/banshee-data/ravine/internal/imageutil"
)

// ErrEmptyField is returned for a reference image without pixels.
var ErrEmptyField = errors.New("receptive field has no pixels")

// ReceptiveField is the fixed reference pattern a frame window is correlated
// against. It is immutable after construction.
type ReceptiveField struct {
	Width  int
	Height int
	// Mean is the average pixel value.
	Mean float64
	// Magnitude is the sum of squared deviations from Mean.
	Magnitude float64

	// dev holds pixel - Mean in row-major order.
	dev []float64
}

// NewReceptiveField precomputes the statistics of img.
func NewReceptiveField(img *image.Gray) (*ReceptiveField, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyField
	}

	dev := make([]float64, 0, w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		for _, p := range img.Pix[off : off+w] {
			dev = append(dev, float64(p))
		}
	}

	mean := stat.Mean(dev, nil)
	floats.AddConst(-mean, dev)

	return &ReceptiveField{
		Width:     w,
		Height:    h,
		Mean:      mean,
		Magnitude: floats.Dot(dev, dev),
		dev:       dev,
	}, nil
}

// LoadReceptiveField reads a binary PGM reference from fsys.
func LoadReceptiveField(fsys fsutil.FileSystem, path string) (*ReceptiveField, error) {
	img, err := imageutil.ReadPGM(fsys, path)
	if err != nil {
		return nil, err
	}
	rf, err := NewReceptiveField(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rf, nil
}

// Len returns the number of pixels in the field.
func (rf *ReceptiveField) Len() int { return len(rf.dev) }

// Correlate returns the contrast-normalised correlation between patch and
// the field: 1 for a patch that is a positive linear copy of the field, 0 for
// an uncorrelated one. A uniform patch or field yields 0.
//
// patch must hold Len() luminance samples in row-major order. It is
// overwritten with its deviations from its own mean.
func (rf *ReceptiveField) Correlate(patch []float64) float32 {
	if len(patch) != len(rf.dev) {
		return 0
	}

	floats.AddConst(-stat.Mean(patch, nil), patch)
	frameMag := floats.Dot(patch, patch)
	xy := floats.Dot(patch, rf.dev)

	mx := math.Max(rf.Magnitude, frameMag)
	mn := math.Min(rf.Magnitude, frameMag)
	if mn <= 0 {
		return 0
	}
	return float32(xy / mx / math.Sqrt(mn/mx))
}
