package portaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/ravine/internal/audio"
)

// Exercising a real stream needs audio hardware; these cover the paths that
// never touch PortAudio.

func TestUnopenedDevice(t *testing.T) {
	d := New()
	assert.Error(t, d.Start())
	assert.NoError(t, d.Stop())
	assert.NoError(t, d.Close())
}

func TestOpenUnknownDeviceReleasesPortAudio(t *testing.T) {
	d := New()
	err := d.Open(audio.DeviceConfig{DeviceName: "ravine-no-such-device", SampleRate: 44100, FramesPerBuffer: 64},
		func([]float32) {})
	assert.Error(t, err)
	assert.False(t, d.initialized, "portaudio terminated after a failed open")
	assert.Nil(t, d.stream)
	assert.NoError(t, d.Close())
}
