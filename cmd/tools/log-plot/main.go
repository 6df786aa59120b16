// Command log-plot summarises a ravine binary log and renders the audio
// envelope with trigger events as a PNG (gonum/plot) or an HTML page
// (go-echarts).
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/ravine/internal/datafile"
	"github.com/banshee-data/ravine/internal/fsutil"
	"github.com/banshee-data/ravine/internal/security"
)

func main() {
	input := flag.String("i", "", "binary log to read")
	pngOut := flag.String("png", "", "write a PNG plot to this path")
	htmlOut := flag.String("html", "", "write an HTML chart to this path")
	flag.Parse()

	if *input == "" {
		log.Fatal("-i is required")
	}
	l, err := datafile.ReadFile(fsutil.OSFileSystem{}, *input)
	if err != nil {
		log.Fatalf("%v", err)
	}

	for _, out := range []string{*pngOut, *htmlOut} {
		if out == "" {
			continue
		}
		if err := security.ValidateOutputPath(out); err != nil {
			log.Fatalf("%v", err)
		}
	}

	s := analyse(l)
	s.print(os.Stdout)

	if *pngOut != "" {
		if err := renderPNG(l, *pngOut); err != nil {
			log.Fatalf("failed to render PNG: %v", err)
		}
		log.Printf("✓ Created: %s", *pngOut)
	}
	if *htmlOut != "" {
		f, err := os.Create(*htmlOut)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *htmlOut, err)
		}
		if err := renderHTML(l, f); err != nil {
			f.Close()
			log.Fatalf("failed to render HTML: %v", err)
		}
		if err := f.Close(); err != nil {
			log.Fatalf("failed to close %s: %v", *htmlOut, err)
		}
		log.Printf("✓ Created: %s", *htmlOut)
	}
}

type event struct {
	Timestamp float32
	Value     byte
}

type summary struct {
	PacketCount  uint32
	AudioPackets int
	Samples      int
	Start, End   float32
	MeanRMS      float64
	Peak         float64
	Events       []event
}

// envelope returns the RMS of each audio packet against its timestamp.
func envelope(l *datafile.Log) plotter.XYs {
	audio := l.ChannelPackets(datafile.ChannelAudio)
	pts := make(plotter.XYs, 0, len(audio))
	for _, p := range audio {
		samples := p.Float32s()
		if len(samples) == 0 {
			continue
		}
		xs := make([]float64, len(samples))
		for i, v := range samples {
			xs[i] = float64(v)
		}
		pts = append(pts, plotter.XY{X: float64(p.Timestamp), Y: math.Sqrt(floats.Dot(xs, xs) / float64(len(xs)))})
	}
	return pts
}

func analyse(l *datafile.Log) summary {
	s := summary{PacketCount: l.Header.PacketCount}
	audio := l.ChannelPackets(datafile.ChannelAudio)
	s.AudioPackets = len(audio)
	for i, p := range audio {
		if i == 0 || p.Timestamp < s.Start {
			s.Start = p.Timestamp
		}
		if p.Timestamp > s.End {
			s.End = p.Timestamp
		}
		s.Samples += int(p.Length)
		for _, v := range p.Float32s() {
			s.Peak = math.Max(s.Peak, math.Abs(float64(v)))
		}
	}

	env := envelope(l)
	if len(env) > 0 {
		rms := make([]float64, len(env))
		for i, pt := range env {
			rms[i] = pt.Y
		}
		s.MeanRMS = stat.Mean(rms, nil)
	}

	for _, p := range l.ChannelPackets(datafile.ChannelEvents) {
		for _, v := range p.Payload {
			s.Events = append(s.Events, event{Timestamp: p.Timestamp, Value: v})
		}
	}
	return s
}

func (s summary) print(w io.Writer) {
	fmt.Fprintf(w, "packets:       %d\n", s.PacketCount)
	fmt.Fprintf(w, "audio packets: %d (%d samples)\n", s.AudioPackets, s.Samples)
	fmt.Fprintf(w, "time span:     %.3fs .. %.3fs\n", s.Start, s.End)
	fmt.Fprintf(w, "mean RMS:      %.4f\n", s.MeanRMS)
	fmt.Fprintf(w, "peak:          %.4f\n", s.Peak)
	fmt.Fprintf(w, "events:        %d\n", len(s.Events))
	for _, e := range s.Events {
		fmt.Fprintf(w, "  %8.3fs  0x%02x\n", e.Timestamp, e.Value)
	}
}

func renderPNG(l *datafile.Log, path string) error {
	p := plot.New()
	p.Title.Text = "Audio envelope and trigger events"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "RMS"

	env := envelope(l)
	if len(env) > 0 {
		line, err := plotter.NewLine(env)
		if err != nil {
			return err
		}
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("audio RMS", line)
	}

	s := analyse(l)
	if len(s.Events) > 0 {
		y := s.Peak
		if y == 0 {
			y = 1
		}
		pts := make(plotter.XYs, len(s.Events))
		for i, e := range s.Events {
			pts[i] = plotter.XY{X: float64(e.Timestamp), Y: y}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		p.Add(sc)
		p.Legend.Add("trigger", sc)
	}

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}

func renderHTML(l *datafile.Log, w io.Writer) error {
	env := envelope(l)
	x := make([]string, len(env))
	data := make([]opts.LineData, len(env))
	for i, pt := range env {
		x[i] = fmt.Sprintf("%.3f", pt.X)
		data[i] = opts.LineData{Value: pt.Y}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "ravine log", Width: "100%", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Audio envelope", Subtitle: fmt.Sprintf("%d packets", l.Header.PacketCount)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "RMS"}),
	)
	line.SetXAxis(x).AddSeries("audio RMS", data)

	s := analyse(l)
	ex := make([]string, len(s.Events))
	ev := make([]opts.ScatterData, len(s.Events))
	for i, e := range s.Events {
		ex[i] = fmt.Sprintf("%.3f", e.Timestamp)
		ev[i] = opts.ScatterData{Value: int(e.Value)}
	}
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: "Trigger events", Subtitle: fmt.Sprintf("%d events", len(s.Events))}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "value"}),
	)
	scatter.SetXAxis(ex).AddSeries("events", ev, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	page := components.NewPage()
	page.AddCharts(line, scatter)
	return page.Render(w)
}
