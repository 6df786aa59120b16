package datafile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/ravine/internal/fsutil"
)

// Writer encodes packets into a log file. It is not safe for concurrent use.
type Writer struct {
	f        fsutil.File
	bw       *bufio.Writer
	channels map[uint8]Channel
	count    uint32
	closed   bool
	hdr      [packetHeaderSize]byte
	scratch  []byte
}

// NewWriter writes a header for channels to f and returns a Writer for the
// packets that follow. The Writer owns f and closes it in Close.
func NewWriter(f fsutil.File, channels []Channel) (*Writer, error) {
	h := Header{Channels: channels}
	if err := h.validate(); err != nil {
		return nil, err
	}

	w := &Writer{
		f:        f,
		bw:       bufio.NewWriter(f),
		channels: make(map[uint8]Channel, len(channels)),
	}

	buf := make([]byte, 0, countOffset(len(channels))+4)
	buf = append(buf, uint8(len(channels)))
	for _, c := range channels {
		buf = append(buf, c.ID)
		w.channels[c.ID] = c
	}
	for _, c := range channels {
		buf = append(buf, c.DType)
	}
	buf = binary.LittleEndian.AppendUint32(buf, 0)

	if _, err := w.bw.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return w, nil
}

// Count returns the number of packets written.
func (w *Writer) Count() uint32 { return w.count }

func (w *Writer) writePacket(channel uint8, dtype uint8, ts float32, n int, payload []byte) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	c, ok := w.channels[channel]
	if !ok {
		return fmt.Errorf("unknown channel %d", channel)
	}
	if c.DType != dtype {
		return fmt.Errorf("channel %d has dtype 0x%02x, not 0x%02x", channel, c.DType, dtype)
	}

	w.hdr[0] = channel
	binary.LittleEndian.PutUint32(w.hdr[1:5], math.Float32bits(ts))
	binary.LittleEndian.PutUint32(w.hdr[5:9], uint32(int32(n)))
	if _, err := w.bw.Write(w.hdr[:]); err != nil {
		return fmt.Errorf("failed to write packet header: %w", err)
	}
	if _, err := w.bw.Write(payload); err != nil {
		return fmt.Errorf("failed to write packet payload: %w", err)
	}
	w.count++
	return nil
}

// WriteFloat32 writes samples as one packet on a float32 channel.
func (w *Writer) WriteFloat32(channel uint8, ts float32, samples []float32) error {
	need := len(samples) * 4
	if cap(w.scratch) < need {
		w.scratch = make([]byte, need)
	}
	buf := w.scratch[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return w.writePacket(channel, DTypeFloat32, ts, len(samples), buf)
}

// WriteUint8 writes values as one packet on a uint8 channel.
func (w *Writer) WriteUint8(channel uint8, ts float32, values []byte) error {
	return w.writePacket(channel, DTypeUint8, ts, len(values), values)
}

// Close flushes buffered packets, patches packet_count in the header and
// closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to flush log: %w", err)
	}
	if _, err := w.f.Seek(countOffset(len(w.channels)), io.SeekStart); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to seek to packet count: %w", err)
	}
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], w.count)
	if _, err := w.f.Write(count[:]); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to patch packet count: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("failed to close log: %w", err)
	}
	return nil
}
