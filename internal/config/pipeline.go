package config

import (
	"fmt"
	"time"

	"github.com/banshee-data/ravine/internal/audio"
	"github.com/banshee-data/ravine/internal/capture"
	"github.com/banshee-data/ravine/internal/neuron"
	"github.com/banshee-data/ravine/internal/serialport"
)

// Defaults that are not owned by a stage package.
const (
	DefaultRFPath     = "./rf/rf-05.pgm"
	DefaultWindowCol  = 96
	DefaultWindowRow  = 56
	DefaultLatency    = "10ms"
	DefaultListenAddr = "localhost:8089"
)

// PipelineConfig is the full configuration of a ravine run. Every field is a
// pointer so a partial file or environment only overrides what it names; the
// Get* accessors supply the defaults.
type PipelineConfig struct {
	// Capture
	Device    *string `json:"device,omitempty" mapstructure:"device"`
	Width     *int    `json:"width,omitempty" mapstructure:"width"`
	Height    *int    `json:"height,omitempty" mapstructure:"height"`
	FPS       *int    `json:"fps,omitempty" mapstructure:"fps"`
	ReplayDir *string `json:"replay_dir,omitempty" mapstructure:"replay_dir"`

	// Detector
	RFPath    *string  `json:"rf_path,omitempty" mapstructure:"rf_path"`
	WindowCol *int     `json:"window_col,omitempty" mapstructure:"window_col"`
	WindowRow *int     `json:"window_row,omitempty" mapstructure:"window_row"`
	Buffers   *int     `json:"buffers,omitempty" mapstructure:"buffers"`
	Threshold *float32 `json:"threshold,omitempty" mapstructure:"threshold"`
	AdaptRate *float32 `json:"adapt_rate,omitempty" mapstructure:"adapt_rate"`

	// Audio
	WaveformPath *string  `json:"waveform_path,omitempty" mapstructure:"waveform_path"`
	AudioDevice  *string  `json:"audio_device,omitempty" mapstructure:"audio_device"`
	SampleRate   *int     `json:"sample_rate,omitempty" mapstructure:"sample_rate"`
	Latency      *string  `json:"latency,omitempty" mapstructure:"latency"` // duration string like "10ms"
	NoiseRows    *int     `json:"noise_rows,omitempty" mapstructure:"noise_rows"`
	NoiseLevel   *float32 `json:"noise_level,omitempty" mapstructure:"noise_level"`

	// Triggers and logging
	Port       *int    `json:"port,omitempty" mapstructure:"port"`
	SerialPath *string `json:"serial_path,omitempty" mapstructure:"serial_path"`
	SerialBaud *int    `json:"serial_baud,omitempty" mapstructure:"serial_baud"`
	LogFile    *string `json:"log_file,omitempty" mapstructure:"log_file"`

	// Session catalog and debug server
	DBPath *string `json:"db_path,omitempty" mapstructure:"db_path"`
	Listen *string `json:"listen,omitempty" mapstructure:"listen"`
}

func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrFloat32(v float32) *float32 { return &v }

// EmptyPipelineConfig returns a config with every field unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// DefaultPipelineConfig returns a config with every field set to its default.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Device:       ptrString(capture.DefaultDevice),
		Width:        ptrInt(capture.DefaultWidth),
		Height:       ptrInt(capture.DefaultHeight),
		FPS:          ptrInt(capture.DefaultFPS),
		RFPath:       ptrString(DefaultRFPath),
		WindowCol:    ptrInt(DefaultWindowCol),
		WindowRow:    ptrInt(DefaultWindowRow),
		Buffers:      ptrInt(neuron.DefaultBuffers),
		Threshold:    ptrFloat32(neuron.DefaultThreshold),
		AdaptRate:    ptrFloat32(neuron.DefaultAdaptRate),
		WaveformPath: ptrString(audio.DefaultWaveformPath),
		SampleRate:   ptrInt(audio.DefaultSampleRate),
		Latency:      ptrString(DefaultLatency),
		NoiseRows:    ptrInt(audio.DefaultNoiseRows),
		NoiseLevel:   ptrFloat32(audio.DefaultNoiseLevel),
		SerialBaud:   ptrInt(serialport.DefaultBaudRate),
	}
}

// Validate checks the fields that are set.
func (c *PipelineConfig) Validate() error {
	if c.Port != nil && (*c.Port < 0 || *c.Port > 65535) {
		return fmt.Errorf("port must be between 0 and 65535, got %d", *c.Port)
	}
	if c.LogFile != nil && *c.LogFile == "" {
		return fmt.Errorf("log_file must not be empty when set")
	}
	for name, v := range map[string]*int{"width": c.Width, "height": c.Height, "fps": c.FPS, "buffers": c.Buffers, "sample_rate": c.SampleRate} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if c.WindowCol != nil && *c.WindowCol < 0 {
		return fmt.Errorf("window_col must be non-negative, got %d", *c.WindowCol)
	}
	if c.WindowRow != nil && *c.WindowRow < 0 {
		return fmt.Errorf("window_row must be non-negative, got %d", *c.WindowRow)
	}
	if c.Threshold != nil && *c.Threshold < 0 {
		return fmt.Errorf("threshold must be non-negative, got %f", *c.Threshold)
	}
	if c.AdaptRate != nil && (*c.AdaptRate < 0 || *c.AdaptRate > 1) {
		return fmt.Errorf("adapt_rate must be between 0 and 1, got %f", *c.AdaptRate)
	}
	if c.NoiseRows != nil && (*c.NoiseRows < 1 || *c.NoiseRows > 30) {
		return fmt.Errorf("noise_rows must be between 1 and 30, got %d", *c.NoiseRows)
	}
	if c.Latency != nil && *c.Latency != "" {
		if _, err := time.ParseDuration(*c.Latency); err != nil {
			return fmt.Errorf("invalid latency '%s': %w", *c.Latency, err)
		}
	}
	if c.SerialPath != nil && *c.SerialPath != "" {
		if _, err := (serialport.Options{BaudRate: c.GetSerialBaud()}).Normalize(); err != nil {
			return fmt.Errorf("invalid serial options: %w", err)
		}
	}
	return nil
}

// GetDevice returns the capture device or the default.
func (c *PipelineConfig) GetDevice() string {
	if c.Device == nil || *c.Device == "" {
		return capture.DefaultDevice
	}
	return *c.Device
}

// GetWidth returns the capture width or the default.
func (c *PipelineConfig) GetWidth() int {
	if c.Width == nil {
		return capture.DefaultWidth
	}
	return *c.Width
}

// GetHeight returns the capture height or the default.
func (c *PipelineConfig) GetHeight() int {
	if c.Height == nil {
		return capture.DefaultHeight
	}
	return *c.Height
}

// GetFPS returns the capture frame rate or the default.
func (c *PipelineConfig) GetFPS() int {
	if c.FPS == nil {
		return capture.DefaultFPS
	}
	return *c.FPS
}

// GetReplayDir returns the PGM replay directory, empty for a live camera.
func (c *PipelineConfig) GetReplayDir() string {
	if c.ReplayDir == nil {
		return ""
	}
	return *c.ReplayDir
}

// CaptureConfig assembles the capture settings.
func (c *PipelineConfig) CaptureConfig() capture.Config {
	return capture.Config{
		Device: c.GetDevice(),
		Width:  c.GetWidth(),
		Height: c.GetHeight(),
		FPS:    c.GetFPS(),
	}
}

// GetRFPath returns the receptive-field image path or the default.
func (c *PipelineConfig) GetRFPath() string {
	if c.RFPath == nil || *c.RFPath == "" {
		return DefaultRFPath
	}
	return *c.RFPath
}

// GetWindowCol returns the left edge of the detector window.
func (c *PipelineConfig) GetWindowCol() int {
	if c.WindowCol == nil {
		return DefaultWindowCol
	}
	return *c.WindowCol
}

// GetWindowRow returns the top edge of the detector window.
func (c *PipelineConfig) GetWindowRow() int {
	if c.WindowRow == nil {
		return DefaultWindowRow
	}
	return *c.WindowRow
}

func (c *PipelineConfig) GetBuffers() int {
	if c.Buffers == nil {
		return neuron.DefaultBuffers
	}
	return *c.Buffers
}

func (c *PipelineConfig) GetThreshold() float32 {
	if c.Threshold == nil {
		return neuron.DefaultThreshold
	}
	return *c.Threshold
}

func (c *PipelineConfig) GetAdaptRate() float32 {
	if c.AdaptRate == nil {
		return neuron.DefaultAdaptRate
	}
	return *c.AdaptRate
}

// GetWaveformPath returns the spike waveform path or the default.
func (c *PipelineConfig) GetWaveformPath() string {
	if c.WaveformPath == nil || *c.WaveformPath == "" {
		return audio.DefaultWaveformPath
	}
	return *c.WaveformPath
}

// GetAudioDevice returns the output device name, empty for the default
// device.
func (c *PipelineConfig) GetAudioDevice() string {
	if c.AudioDevice == nil {
		return ""
	}
	return *c.AudioDevice
}

func (c *PipelineConfig) GetSampleRate() int {
	if c.SampleRate == nil {
		return audio.DefaultSampleRate
	}
	return *c.SampleRate
}

// GetLatency parses and returns the output latency.
func (c *PipelineConfig) GetLatency() time.Duration {
	def, _ := time.ParseDuration(DefaultLatency)
	if c.Latency == nil || *c.Latency == "" {
		return def
	}
	d, err := time.ParseDuration(*c.Latency)
	if err != nil {
		return def
	}
	return d
}

func (c *PipelineConfig) GetNoiseRows() int {
	if c.NoiseRows == nil {
		return audio.DefaultNoiseRows
	}
	return *c.NoiseRows
}

func (c *PipelineConfig) GetNoiseLevel() float32 {
	if c.NoiseLevel == nil {
		return audio.DefaultNoiseLevel
	}
	return *c.NoiseLevel
}

// GetPort returns the TCP trigger port; 0 disables the listener.
func (c *PipelineConfig) GetPort() int {
	if c.Port == nil {
		return 0
	}
	return *c.Port
}

// GetSerialPath returns the serial trigger device; empty disables it.
func (c *PipelineConfig) GetSerialPath() string {
	if c.SerialPath == nil {
		return ""
	}
	return *c.SerialPath
}

func (c *PipelineConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return serialport.DefaultBaudRate
	}
	return *c.SerialBaud
}

// GetLogFile returns the binary log path; empty disables logging.
func (c *PipelineConfig) GetLogFile() string {
	if c.LogFile == nil {
		return ""
	}
	return *c.LogFile
}

// GetDBPath returns the session catalog path; empty disables the catalog.
func (c *PipelineConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetListen returns the debug HTTP address; empty disables the server.
func (c *PipelineConfig) GetListen() string {
	if c.Listen == nil {
		return ""
	}
	return *c.Listen
}
