// Package imageutil holds the small image helpers the pipeline needs: binary
// PGM (P5) read and write, YUYV luminance extraction and contrast
// normalisation.
package imageutil

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"

	"github.com/banshee-data/ravine/internal/fsutil"
)

// ErrFormat is returned for input that is not a well-formed binary PGM.
var ErrFormat = errors.New("imageutil: invalid PGM")

// maxDimension bounds the header fields so a corrupt file cannot request a
// huge allocation.
const maxDimension = 1 << 14

// DecodePGM parses a binary (P5) PGM with 8-bit samples. Comments introduced
// by '#' are allowed between header fields.
func DecodePGM(r io.Reader) (*image.Gray, error) {
	br := bufio.NewReader(r)

	magic, err := headerToken(br)
	if err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrFormat, err)
	}
	if magic != "P5" {
		return nil, fmt.Errorf("%w: magic %q, want P5", ErrFormat, magic)
	}

	var fields [3]int
	for i, name := range []string{"width", "height", "maxval"} {
		tok, err := headerToken(br)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrFormat, name, err)
		}
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q is not a number", ErrFormat, name, tok)
		}
		fields[i] = v
	}
	width, height, maxval := fields[0], fields[1], fields[2]
	if width <= 0 || height <= 0 || width > maxDimension || height > maxDimension {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrFormat, width, height)
	}
	if maxval <= 0 || maxval > 255 {
		return nil, fmt.Errorf("%w: maxval %d not supported", ErrFormat, maxval)
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	if _, err := io.ReadFull(br, img.Pix); err != nil {
		return nil, fmt.Errorf("%w: pixel data: %v", ErrFormat, err)
	}
	return img, nil
}

// headerToken reads one whitespace-delimited header token and consumes the
// single whitespace byte that terminates it.
func headerToken(br *bufio.Reader) (string, error) {
	var tok []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			if len(tok) > 0 && err == io.EOF {
				return string(tok), nil
			}
			return "", err
		}
		switch {
		case c == '#' && len(tok) == 0:
			if _, err := br.ReadBytes('\n'); err != nil {
				return "", err
			}
		case isSpace(c):
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, c)
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// ReadPGM loads a PGM file through fsys.
func ReadPGM(fsys fsutil.FileSystem, path string) (*image.Gray, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	img, err := DecodePGM(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// EncodePGM writes img as a binary PGM with maxval 255.
func EncodePGM(w io.Writer, img *image.Gray) error {
	b := img.Bounds()
	if _, err := fmt.Fprintf(w, "P5\n%d %d\n255\n", b.Dx(), b.Dy()); err != nil {
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := w.Write(img.Pix[off : off+b.Dx()]); err != nil {
			return err
		}
	}
	return nil
}

// WritePGM writes img to path through fsys.
func WritePGM(fsys fsutil.FileSystem, path string, img *image.Gray) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := EncodePGM(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
