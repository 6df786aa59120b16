package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/banshee-data/ravine/internal/audio"
	"github.com/banshee-data/ravine/internal/capture"
	"github.com/banshee-data/ravine/internal/config"
	"github.com/banshee-data/ravine/internal/neuron"
	"github.com/banshee-data/ravine/internal/pipeline"
	"github.com/banshee-data/ravine/internal/serialport"
	"github.com/banshee-data/ravine/internal/stream"
)

// options is the parsed command line.
type options struct {
	cfg         *config.PipelineConfig
	showVersion bool
}

const usageHeader = `Usage: ravine [-d DEV] [-p PORT] [-f FILE] [-r RFFILE] [-h]

Correlates camera frames against a receptive field and plays a spike
waveform over pink noise whenever the detector fires.

`

// parseArgs parses args, loads the optional config file and applies every
// flag that was given on top of it. It returns flag.ErrHelp for -h.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("ravine", flag.ContinueOnError)
	fs.SetOutput(stderr)

	device := fs.String("d", capture.DefaultDevice, "capture device")
	port := fs.Int("p", 0, "listen for trigger bytes on this TCP port (1-65535)")
	logFile := fs.String("f", "", "write audio and trigger events to this binary log")
	rfPath := fs.String("r", config.DefaultRFPath, "receptive field image (binary PGM)")
	waveform := fs.String("w", audio.DefaultWaveformPath, "spike waveform file")
	cfgPath := fs.String("c", "", "config file (json, yaml or toml)")
	serialPath := fs.String("serial", "", "read trigger bytes from this serial device")
	dbPath := fs.String("db", "", "record the session in this sqlite catalog")
	listen := fs.String("listen", "", "serve /debug/ pages on this address, e.g. "+config.DefaultListenAddr)
	replayDir := fs.String("dev", "", "replay the PGM frames in this directory instead of the camera")
	showVersion := fs.Bool("version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usageHeader)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("%w: unexpected argument %q", stream.ErrConfiguration, fs.Arg(0))
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["p"] && (*port < 1 || *port > 65535) {
		return nil, fmt.Errorf("%w: port must be between 1 and 65535, got %d", stream.ErrConfiguration, *port)
	}
	if set["f"] && *logFile == "" {
		return nil, fmt.Errorf("%w: -f requires a file name", stream.ErrConfiguration)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stream.ErrConfiguration, err)
	}

	// Flags given explicitly win over the file and the environment.
	if set["d"] {
		cfg.Device = device
	}
	if set["p"] {
		cfg.Port = port
	}
	if set["f"] {
		cfg.LogFile = logFile
	}
	if set["r"] {
		cfg.RFPath = rfPath
	}
	if set["w"] {
		cfg.WaveformPath = waveform
	}
	if set["serial"] {
		cfg.SerialPath = serialPath
	}
	if set["db"] {
		cfg.DBPath = dbPath
	}
	if set["listen"] {
		cfg.Listen = listen
	}
	if set["dev"] {
		cfg.ReplayDir = replayDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", stream.ErrConfiguration, err)
	}
	if cfg.GetPort() != 0 && cfg.GetSerialPath() != "" {
		return nil, fmt.Errorf("%w: -p and -serial are mutually exclusive", stream.ErrConfiguration)
	}

	return &options{cfg: cfg, showVersion: *showVersion}, nil
}

// pipelineConfig translates the flat configuration into stage settings.
func pipelineConfig(cfg *config.PipelineConfig) (pipeline.Config, error) {
	pc := pipeline.Config{
		Capture: cfg.CaptureConfig(),
		Detector: neuron.Config{
			RFPath:    cfg.GetRFPath(),
			Col:       cfg.GetWindowCol(),
			Row:       cfg.GetWindowRow(),
			Buffers:   cfg.GetBuffers(),
			Threshold: cfg.GetThreshold(),
			AdaptRate: cfg.GetAdaptRate(),
		},
		Audio: audio.EngineConfig{
			WaveformPath: cfg.GetWaveformPath(),
			DeviceName:   cfg.GetAudioDevice(),
			SampleRate:   float64(cfg.GetSampleRate()),
			Latency:      cfg.GetLatency(),
			NoiseRows:    cfg.GetNoiseRows(),
			NoiseLevel:   cfg.GetNoiseLevel(),
		},
		LogPath:    cfg.GetLogFile(),
		SerialPath: cfg.GetSerialPath(),
		Serial:     serialport.Options{BaudRate: cfg.GetSerialBaud()},
	}
	if port := cfg.GetPort(); port > 0 {
		pc.TCPAddr = net.JoinHostPort("", strconv.Itoa(port))
	}
	if dir := cfg.GetReplayDir(); dir != "" {
		paths, err := capture.GlobPGM(dir)
		if err != nil {
			return pc, fmt.Errorf("%w: %v", stream.ErrConfiguration, err)
		}
		pc.ReplayPaths = paths
		pc.ReplayLoop = true
	}
	return pc, nil
}

// captureSource and triggerSource describe the run for the session catalog.
func captureSource(cfg *config.PipelineConfig) string {
	if dir := cfg.GetReplayDir(); dir != "" {
		return "replay:" + dir
	}
	return "v4l2:" + cfg.GetDevice()
}

func triggerSource(cfg *config.PipelineConfig) *string {
	var s string
	switch {
	case cfg.GetPort() != 0:
		s = "tcp:" + strconv.Itoa(cfg.GetPort())
	case cfg.GetSerialPath() != "":
		s = "serial:" + cfg.GetSerialPath()
	default:
		return nil
	}
	return &s
}

func isHelp(err error) bool { return errors.Is(err, flag.ErrHelp) }
