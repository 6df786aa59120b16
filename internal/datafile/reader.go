package datafile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/ravine/internal/fsutil"
)

// Reader decodes a log sequentially.
type Reader struct {
	r      *bufio.Reader
	Header Header
}

// NewReader reads the header from r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	n, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: reading channel count: %v", ErrFormat, err)
	}
	raw := make([]byte, 2*int(n)+4)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrFormat, err)
	}

	h := Header{Channels: make([]Channel, n)}
	for i := range h.Channels {
		h.Channels[i] = Channel{ID: raw[i], DType: raw[int(n)+i]}
	}
	h.PacketCount = binary.LittleEndian.Uint32(raw[2*int(n):])
	if err := h.validate(); err != nil {
		return nil, err
	}
	return &Reader{r: br, Header: h}, nil
}

// Next returns the next packet, or io.EOF after the last one.
func (r *Reader) Next() (Packet, error) {
	var hdr [packetHeaderSize]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Packet{}, io.EOF
		}
		return Packet{}, fmt.Errorf("%w: truncated packet header: %v", ErrFormat, err)
	}

	p := Packet{
		Channel:   hdr[0],
		Timestamp: math.Float32frombits(binary.LittleEndian.Uint32(hdr[1:5])),
		Length:    int32(binary.LittleEndian.Uint32(hdr[5:9])),
	}
	c, ok := r.Header.Channel(p.Channel)
	if !ok {
		return Packet{}, fmt.Errorf("%w: packet on undeclared channel %d", ErrFormat, p.Channel)
	}
	if p.Length < 0 || p.Length > maxPayload {
		return Packet{}, fmt.Errorf("%w: payload length %d", ErrFormat, p.Length)
	}

	p.Payload = make([]byte, int(p.Length)*DTypeSize(c.DType))
	if _, err := io.ReadFull(r.r, p.Payload); err != nil {
		return Packet{}, fmt.Errorf("%w: truncated payload: %v", ErrFormat, err)
	}
	return p, nil
}

// Float32s decodes the payload of a float32 packet.
func (p Packet) Float32s() []float32 {
	out := make([]float32, len(p.Payload)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p.Payload[i*4:]))
	}
	return out
}

// Log is a fully parsed log.
type Log struct {
	Header  Header
	Packets []Packet
}

// ChannelPackets returns the packets on channel id in file order.
func (l *Log) ChannelPackets(id uint8) []Packet {
	var out []Packet
	for _, p := range l.Packets {
		if p.Channel == id {
			out = append(out, p)
		}
	}
	return out
}

// Parse decodes a complete log held in memory.
func Parse(data []byte) (*Log, error) {
	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	l := &Log{Header: r.Header}
	for {
		p, err := r.Next()
		if errors.Is(err, io.EOF) {
			return l, nil
		}
		if err != nil {
			return l, err
		}
		l.Packets = append(l.Packets, p)
	}
}

// ReadFile parses the log at path.
func ReadFile(fsys fsutil.FileSystem, path string) (*Log, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log %s: %w", path, err)
	}
	l, err := Parse(data)
	if err != nil {
		return l, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}
