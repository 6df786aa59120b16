// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"bytes"
	"encoding/binary"
	"image"
	"math"
	"path/filepath"
	"testing"

	"github.com/banshee-data/ravine/internal/fsutil"
	"github.com/banshee-data/ravine/internal/imageutil"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertWithin fails the test if got differs from want by more than tol.
func AssertWithin(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("got %v, want %v ± %v", got, want, tol)
	}
}

// NewGray returns a w×h image with every pixel set to fill.
func NewGray(w, h int, fill uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = fill
	}
	return img
}

// WritePGM stores img as a binary PGM at path in fsys.
func WritePGM(t *testing.T, fsys fsutil.FileSystem, path string, img *image.Gray) {
	t.Helper()
	if err := imageutil.WritePGM(fsys, path, img); err != nil {
		t.Fatalf("write PGM fixture: %v", err)
	}
}

// TempPGM writes img to a file in a fresh temp directory and returns its path.
func TempPGM(t *testing.T, img *image.Gray) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rf.pgm")
	WritePGM(t, fsutil.OSFileSystem{}, path, img)
	return path
}

// EncodeWaveform returns samples in the waveform file layout: an int32
// sample count followed by that many float32 values, little-endian.
func EncodeWaveform(samples []float32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, int32(len(samples)))
	binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

// WriteWaveform stores samples as a waveform file at path in fsys.
func WriteWaveform(t *testing.T, fsys *fsutil.MemoryFileSystem, path string, samples []float32) {
	t.Helper()
	if err := fsys.WriteFile(path, EncodeWaveform(samples), 0644); err != nil {
		t.Fatalf("write waveform fixture: %v", err)
	}
}
