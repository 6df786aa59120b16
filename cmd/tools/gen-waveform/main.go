// Command gen-waveform writes a biphasic spike waveform file for the audio
// engine.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/banshee-data/ravine/internal/audio"
	"github.com/banshee-data/ravine/internal/fsutil"
)

func main() {
	output := flag.String("o", audio.DefaultWaveformPath, "output path")
	rate := flag.Float64("rate", audio.DefaultSampleRate, "sample rate in Hz")
	duration := flag.Duration("len", 2*time.Millisecond, "spike duration")
	amplitude := flag.Float64("amp", 1.0, "peak amplitude (0-1)")
	flag.Parse()

	if *amplitude <= 0 || *amplitude > 1 {
		log.Fatalf("amplitude must be in (0, 1], got %v", *amplitude)
	}

	samples := audio.SynthesizeSpike(*rate, *duration, float32(*amplitude))
	if err := audio.SaveWaveform(fsutil.OSFileSystem{}, *output, samples); err != nil {
		log.Fatalf("failed to write waveform: %v", err)
	}
	log.Printf("✓ Created: %s (%d samples at %.0f Hz)", *output, len(samples), *rate)
}
