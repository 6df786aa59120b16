package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/pipeline"
)

// statusReporter prints pipeline counters periodically: a line rewritten in
// place on a terminal, a log line otherwise.
type statusReporter struct {
	out      io.Writer
	tty      bool
	interval time.Duration
	snapshot func() pipeline.Snapshot
}

func newStatusReporter(out *os.File, interval time.Duration, snapshot func() pipeline.Snapshot) *statusReporter {
	return &statusReporter{
		out:      out,
		tty:      isTerminal(out),
		interval: interval,
		snapshot: snapshot,
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *statusReporter) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if r.tty {
				fmt.Fprintln(r.out)
			}
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *statusReporter) report() {
	line := formatStatus(r.snapshot())
	if r.tty {
		fmt.Fprintf(r.out, "\r%s\x1b[K", line)
		return
	}
	monitoring.Logf("%s", line)
}

func formatStatus(s pipeline.Snapshot) string {
	line := fmt.Sprintf("t=%.1fs frames=%d dropped=%d spikes=%d thr=%.3f act=%.3f blocks=%d",
		s.Uptime, s.Detector.FramesProcessed, s.Detector.FramesDropped, s.Detector.Spikes,
		s.Detector.Threshold, s.Detector.LastActivation, s.Audio.Blocks)
	if s.Log != nil {
		line += fmt.Sprintf(" logged=%d/%d", s.Log.AudioPackets, s.Log.EventPackets)
	}
	if s.Trigger != nil {
		line += fmt.Sprintf(" triggers=%d", s.Trigger.Received)
	}
	if len(s.Errors) > 0 {
		line += fmt.Sprintf(" errors=%d", len(s.Errors))
	}
	return line
}
