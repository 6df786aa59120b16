// Package datafile reads and writes the multiplexed binary log.
//
// A log is a header followed by packets, all little-endian:
//
//	Header: [channel_count:u8][channel_id:u8 ×n][channel_dtype:u8 ×n][packet_count:u32]
//	Packet: [channel_id:u8][timestamp:f32][payload_length:i32][payload]
//
// payload_length counts elements, not bytes. packet_count is written as zero
// and patched in place when the log is closed.
package datafile

import (
	"errors"
	"fmt"
)

// Channel identifiers.
const (
	ChannelAudio  uint8 = 0x01
	ChannelEvents uint8 = 0x02
)

// Channel data types.
const (
	DTypeUint8   uint8 = 0x01
	DTypeFloat32 uint8 = 0x0f
)

// packetHeaderSize is channel id, timestamp and payload length.
const packetHeaderSize = 1 + 4 + 4

// maxPayload bounds payload_length when reading.
const maxPayload = 1 << 24

// ErrFormat is returned for logs that do not parse.
var ErrFormat = errors.New("datafile: malformed log")

// Channel describes one multiplexed stream.
type Channel struct {
	ID    uint8
	DType uint8
}

// DefaultChannels is the layout of a pipeline log: audio then trigger events.
var DefaultChannels = []Channel{
	{ID: ChannelAudio, DType: DTypeFloat32},
	{ID: ChannelEvents, DType: DTypeUint8},
}

// DTypeSize returns the size in bytes of one element of dtype, or 0 when
// dtype is unknown.
func DTypeSize(dtype uint8) int {
	switch dtype {
	case DTypeUint8:
		return 1
	case DTypeFloat32:
		return 4
	default:
		return 0
	}
}

// Header is the decoded log header.
type Header struct {
	Channels    []Channel
	PacketCount uint32
}

// countOffset is the file offset of packet_count for a header with n
// channels.
func countOffset(n int) int64 { return int64(1 + 2*n) }

// Channel returns the channel with the given id.
func (h Header) Channel(id uint8) (Channel, bool) {
	for _, c := range h.Channels {
		if c.ID == id {
			return c, true
		}
	}
	return Channel{}, false
}

func (h Header) validate() error {
	if len(h.Channels) == 0 || len(h.Channels) > 255 {
		return fmt.Errorf("%w: %d channels", ErrFormat, len(h.Channels))
	}
	seen := make(map[uint8]bool, len(h.Channels))
	for _, c := range h.Channels {
		if DTypeSize(c.DType) == 0 {
			return fmt.Errorf("%w: channel %d has unknown dtype 0x%02x", ErrFormat, c.ID, c.DType)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate channel %d", ErrFormat, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

// Packet is one decoded log packet. Payload holds the raw little-endian
// elements.
type Packet struct {
	Channel   uint8
	Timestamp float32
	// Length is the element count.
	Length  int32
	Payload []byte
}
