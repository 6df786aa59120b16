package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ravine/internal/audio"
	"github.com/banshee-data/ravine/internal/capture"
	"github.com/banshee-data/ravine/internal/config"
	"github.com/banshee-data/ravine/internal/datafile"
	"github.com/banshee-data/ravine/internal/events"
	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/neuron"
	"github.com/banshee-data/ravine/internal/pipeline"
	"github.com/banshee-data/ravine/internal/stream"
)

func TestParseArgsDefaults(t *testing.T) {
	opts, err := parseArgs(nil, io.Discard)
	require.NoError(t, err)
	cfg := opts.cfg
	assert.Equal(t, capture.DefaultDevice, cfg.GetDevice())
	assert.Equal(t, config.DefaultRFPath, cfg.GetRFPath())
	assert.Equal(t, audio.DefaultWaveformPath, cfg.GetWaveformPath())
	assert.Equal(t, 0, cfg.GetPort())
	assert.Empty(t, cfg.GetLogFile())
	assert.Empty(t, cfg.GetListen())
	assert.False(t, opts.showVersion)
}

func TestParseArgsFlags(t *testing.T) {
	opts, err := parseArgs([]string{
		"-d", "/dev/video2", "-p", "9000", "-f", "run.bin", "-r", "rf.pgm",
		"-w", "spike.wf", "-db", "ravine.db", "-listen", "localhost:0",
	}, io.Discard)
	require.NoError(t, err)
	cfg := opts.cfg
	assert.Equal(t, "/dev/video2", cfg.GetDevice())
	assert.Equal(t, 9000, cfg.GetPort())
	assert.Equal(t, "run.bin", cfg.GetLogFile())
	assert.Equal(t, "rf.pgm", cfg.GetRFPath())
	assert.Equal(t, "spike.wf", cfg.GetWaveformPath())
	assert.Equal(t, "ravine.db", cfg.GetDBPath())
	assert.Equal(t, "localhost:0", cfg.GetListen())
}

func TestParseArgsRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"port zero", []string{"-p", "0"}},
		{"port too large", []string{"-p", "70000"}},
		{"empty log file", []string{"-f", ""}},
		{"both triggers", []string{"-p", "9000", "-serial", "/dev/ttyUSB0"}},
		{"stray argument", []string{"extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args, io.Discard)
			require.Error(t, err)
			assert.True(t, errors.Is(err, stream.ErrConfiguration), "got %v", err)
		})
	}
}

func TestParseArgsHelp(t *testing.T) {
	var out bytes.Buffer
	_, err := parseArgs([]string{"-h"}, &out)
	assert.True(t, isHelp(err))
	assert.True(t, errors.Is(err, flag.ErrHelp))
	assert.Contains(t, out.String(), "Usage: ravine")
	assert.Contains(t, out.String(), "-dev")
}

func TestParseArgsFlagOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ravine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7000\nrf_path: /etc/rf.pgm\nthreshold: 0.3\n"), 0644))

	opts, err := parseArgs([]string{"-c", path, "-p", "7100"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 7100, opts.cfg.GetPort())
	assert.Equal(t, "/etc/rf.pgm", opts.cfg.GetRFPath())
	assert.InDelta(t, 0.3, opts.cfg.GetThreshold(), 1e-6)
}

func TestParseArgsMissingConfigFile(t *testing.T) {
	_, err := parseArgs([]string{"-c", filepath.Join(t.TempDir(), "none.yaml")}, io.Discard)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stream.ErrConfiguration))
}

func TestPipelineConfig(t *testing.T) {
	opts, err := parseArgs([]string{"-p", "9000", "-f", "run.bin"}, io.Discard)
	require.NoError(t, err)

	pc, err := pipelineConfig(opts.cfg)
	require.NoError(t, err)
	assert.Equal(t, ":9000", pc.TCPAddr)
	assert.Empty(t, pc.SerialPath)
	assert.Equal(t, "run.bin", pc.LogPath)
	assert.Equal(t, config.DefaultRFPath, pc.Detector.RFPath)
	assert.Equal(t, config.DefaultWindowCol, pc.Detector.Col)
	assert.Equal(t, config.DefaultWindowRow, pc.Detector.Row)
	assert.Equal(t, neuron.DefaultThreshold, pc.Detector.Threshold)
	assert.Equal(t, float64(audio.DefaultSampleRate), pc.Audio.SampleRate)
	assert.Equal(t, 10*time.Millisecond, pc.Audio.Latency)
	assert.Empty(t, pc.ReplayPaths)
}

func TestPipelineConfigReplayDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pgm", "a.pgm"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("P5\n1 1\n255\n\x00"), 0644))
	}
	opts, err := parseArgs([]string{"-dev", dir}, io.Discard)
	require.NoError(t, err)

	pc, err := pipelineConfig(opts.cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.pgm"), filepath.Join(dir, "b.pgm")}, pc.ReplayPaths)
	assert.True(t, pc.ReplayLoop)
	assert.Equal(t, "replay:"+dir, captureSource(opts.cfg))

	opts, err = parseArgs([]string{"-dev", t.TempDir()}, io.Discard)
	require.NoError(t, err)
	_, err = pipelineConfig(opts.cfg)
	assert.True(t, errors.Is(err, stream.ErrConfiguration))
}

func TestSessionSources(t *testing.T) {
	opts, err := parseArgs([]string{"-d", "/dev/video1", "-serial", "/dev/ttyACM0"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "v4l2:/dev/video1", captureSource(opts.cfg))
	require.NotNil(t, triggerSource(opts.cfg))
	assert.Equal(t, "serial:/dev/ttyACM0", *triggerSource(opts.cfg))

	opts, err = parseArgs([]string{"-p", "5000"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "tcp:5000", *triggerSource(opts.cfg))

	opts, err = parseArgs(nil, io.Discard)
	require.NoError(t, err)
	assert.Nil(t, triggerSource(opts.cfg))
}

func TestRunHelpAndBadFlags(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	assert.Equal(t, 0, run([]string{"-version"}))
	assert.Equal(t, -1, run([]string{"-p", "99999"}))
	assert.Equal(t, -1, run([]string{"-dev", t.TempDir()}))
}

func testSnapshot() pipeline.Snapshot {
	return pipeline.Snapshot{
		Uptime:   12.34,
		Detector: neuron.Stats{FramesProcessed: 180, FramesDropped: 2, Spikes: 5, Threshold: 0.25, LastActivation: 0.1},
		Audio:    audio.EngineStats{Blocks: 900},
		Log:      &datafile.SinkStats{AudioPackets: 899, EventPackets: 3},
		Trigger:  &events.Stats{Received: 3},
	}
}

func TestFormatStatus(t *testing.T) {
	line := formatStatus(testSnapshot())
	assert.Equal(t, "t=12.3s frames=180 dropped=2 spikes=5 thr=0.250 act=0.100 blocks=900 logged=899/3 triggers=3", line)

	bare := formatStatus(pipeline.Snapshot{Errors: []string{"audio: device error"}})
	assert.True(t, strings.HasSuffix(bare, "errors=1"))
	assert.NotContains(t, bare, "logged")
}

func TestStatusReporterTerminalRewritesLine(t *testing.T) {
	var out bytes.Buffer
	r := &statusReporter{out: &out, tty: true, interval: time.Hour, snapshot: testSnapshot}
	r.report()
	r.report()
	assert.Equal(t, 2, strings.Count(out.String(), "\r"))
	assert.Contains(t, out.String(), "frames=180")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.run(ctx)
	assert.True(t, strings.HasSuffix(out.String(), "\n"))
}

func TestStatusReporterLogsWithoutTerminal(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	var out bytes.Buffer
	r := &statusReporter{out: &out, tty: false, interval: time.Hour, snapshot: testSnapshot}
	r.report()
	assert.Empty(t, out.String())
	assert.Len(t, lines, 1)
}
