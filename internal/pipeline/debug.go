package pipeline

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/ravine/internal/httputil"
)

// AttachDebugRoutes mounts the pipeline's debug pages under /debug/ on mux.
func (p *Pipeline) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("pipeline", "Pipeline counters (JSON)", http.HandlerFunc(p.handleSnapshot))
	debug.Handle("activations", "Recent detector activations", http.HandlerFunc(p.handleActivations))
}

func (p *Pipeline) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, p.Snapshot())
}

// handleActivations renders the detector's recent activations against its
// current threshold.
func (p *Pipeline) handleActivations(w http.ResponseWriter, r *http.Request) {
	acts := p.detector.RecentActivations()
	stats := p.detector.Stats()

	x := make([]int, len(acts))
	actData := make([]opts.LineData, len(acts))
	thrData := make([]opts.LineData, len(acts))
	for i, a := range acts {
		x[i] = i
		actData[i] = opts.LineData{Value: a}
		thrData[i] = opts.LineData{Value: stats.Threshold}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Detector activations", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Detector activations",
			Subtitle: fmt.Sprintf("frames=%d spikes=%d threshold=%.3f", stats.FramesProcessed, stats.Spikes, stats.Threshold),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "activation"}),
	)
	line.SetXAxis(x).
		AddSeries("activation", actData).
		AddSeries("threshold", thrData)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
