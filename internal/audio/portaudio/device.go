// Package portaudio implements audio.Device on top of the PortAudio
// library.
package portaudio

import (
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/banshee-data/ravine/internal/audio"
	"github.com/banshee-data/ravine/internal/monitoring"
)

// Device is a mono float32 PortAudio output stream.
type Device struct {
	mu          sync.Mutex
	initialized bool
	stream      *pa.Stream
}

// New returns an unopened device. PortAudio is initialised by Open and
// terminated by Close.
func New() *Device {
	return &Device{}
}

// Open initialises PortAudio and opens an output stream on the configured
// device, or the default output device when no name is given.
func (d *Device) Open(cfg audio.DeviceConfig, render func(out []float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream != nil {
		return fmt.Errorf("output stream already open")
	}
	if !d.initialized {
		if err := pa.Initialize(); err != nil {
			return fmt.Errorf("failed to initialise portaudio: %w", err)
		}
		d.initialized = true
	}

	info, err := outputDevice(cfg.DeviceName)
	if err != nil {
		d.terminate()
		return err
	}

	params := pa.LowLatencyParameters(nil, info)
	params.Output.Channels = 1
	params.SampleRate = cfg.SampleRate
	params.FramesPerBuffer = cfg.FramesPerBuffer
	params.Flags = pa.ClipOff
	if cfg.Latency > 0 {
		params.Output.Latency = cfg.Latency
	}

	stream, err := pa.OpenStream(params, render)
	if err != nil {
		d.terminate()
		return fmt.Errorf("failed to open output stream on %q: %w", info.Name, err)
	}
	d.stream = stream

	monitoring.Logf("[portaudio] opened %q (%s): %.0f Hz, %d frames, latency %v",
		info.Name, info.HostApi.Name, params.SampleRate, params.FramesPerBuffer, params.Output.Latency)
	return nil
}

func outputDevice(name string) (*pa.DeviceInfo, error) {
	if name == "" {
		info, err := pa.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("no output audio devices found: %w", err)
		}
		return info, nil
	}
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	for _, info := range devices {
		if info.Name == name && info.MaxOutputChannels > 0 {
			return info, nil
		}
	}
	return nil, fmt.Errorf("output device %q not found", name)
}

// Start starts the hardware callback.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return fmt.Errorf("output stream not open")
	}
	return d.stream.Start()
}

// Stop stops the hardware callback after pending buffers have played.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	return d.stream.Stop()
}

// Close closes the stream and terminates PortAudio.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	if d.stream != nil {
		if err := d.stream.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close output stream: %w", err)
		}
		d.stream = nil
	}
	if err := d.terminate(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// terminate releases PortAudio after a failed or final open. d.mu must be
// held.
func (d *Device) terminate() error {
	if !d.initialized {
		return nil
	}
	d.initialized = false
	if err := pa.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate portaudio: %w", err)
	}
	return nil
}

// OutputDevices lists the names of devices with output channels.
func OutputDevices() ([]string, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialise portaudio: %w", err)
	}
	defer pa.Terminate()

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	var names []string
	for _, info := range devices {
		if info.MaxOutputChannels > 0 {
			names = append(names, info.Name)
		}
	}
	return names, nil
}

var _ audio.Device = (*Device)(nil)
