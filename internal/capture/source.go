// Package capture produces image frames for the detector. GstSource pulls
// GRAY8 frames from a V4L2 camera through GStreamer; PGMSource replays PGM
// files at a fixed rate for development without a camera.
package capture

import (
	"fmt"
	"time"

	"github.com/banshee-data/ravine/internal/packet"
	"github.com/banshee-data/ravine/internal/stream"
)

const (
	DefaultDevice = "/dev/video0"
	DefaultWidth  = 320
	DefaultHeight = 240
	DefaultFPS    = 15
)

// Source is a capture stage: it is started and stopped by the pipeline and
// forwards every frame to one downstream sink.
type Source interface {
	stream.Component
	stream.Source[packet.Frame]
	stream.Validator
	Stats() Stats
}

// Stats is a point-in-time view of a capture source.
type Stats struct {
	Frames  uint64 `json:"frames"`
	Skipped uint64 `json:"skipped"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// Config describes the frame geometry and rate requested from the device.
type Config struct {
	Device string `json:"device" mapstructure:"device"`
	Width  int    `json:"width" mapstructure:"width"`
	Height int    `json:"height" mapstructure:"height"`
	FPS    int    `json:"fps" mapstructure:"fps"`
}

// withDefaults fills zero fields with the camera defaults.
func (c Config) withDefaults() Config {
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	return c
}

// Size returns the frame width and height, with defaults applied.
func (c Config) Size() (int, int) {
	c = c.withDefaults()
	return c.Width, c.Height
}

// Period returns the interval between frames.
func (c Config) Period() time.Duration {
	c = c.withDefaults()
	return time.Second / time.Duration(c.FPS)
}

// Pipeline returns the gst-launch description of the capture pipeline.
func (c Config) Pipeline() string {
	c = c.withDefaults()
	return fmt.Sprintf("v4l2src device=%s ! videoconvert ! videoscale ! videorate ! "+
		"video/x-raw,format=GRAY8,width=%d,height=%d,framerate=%d/1 ! appsink",
		c.Device, c.Width, c.Height, c.FPS)
}
