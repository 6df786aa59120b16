package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/ravine/internal/audio/portaudio"
	"github.com/banshee-data/ravine/internal/config"
	"github.com/banshee-data/ravine/internal/db"
	"github.com/banshee-data/ravine/internal/pipeline"
	"github.com/banshee-data/ravine/internal/version"
)

const (
	statusInterval = time.Second
	statsInterval  = 5 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit status: 0 on a clean stop, -1 (255) on a
// configuration or open failure.
func run(args []string) int {
	opts, err := parseArgs(args, os.Stderr)
	if isHelp(err) {
		return 0
	}
	if err != nil {
		log.Printf("%v", err)
		return -1
	}
	if opts.showVersion {
		log.Print(version.String())
		return 0
	}
	cfg := opts.cfg

	pcfg, err := pipelineConfig(cfg)
	if err != nil {
		log.Printf("%v", err)
		return -1
	}
	p, err := pipeline.Build(pcfg, pipeline.Deps{AudioDevice: portaudio.New()})
	if err != nil {
		log.Printf("failed to build pipeline: %v", err)
		return -1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var catalog *db.DB
	var sessionID string
	if path := cfg.GetDBPath(); path != "" {
		catalog, sessionID, err = openSession(path, cfg)
		if err != nil {
			log.Printf("failed to open session catalog: %v", err)
			return -1
		}
		defer catalog.Close()
	}
	endSession := func(status string) {
		if catalog == nil {
			return
		}
		if err := catalog.EndSession(sessionID, time.Now(), status); err != nil {
			log.Printf("failed to end session %s: %v", sessionID, err)
		}
	}

	var wg sync.WaitGroup
	if addr := cfg.GetListen(); addr != "" {
		mux := http.NewServeMux()
		p.AttachDebugRoutes(mux)
		if catalog != nil {
			if err := catalog.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach catalog routes: %v", err)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(ctx, addr, mux)
		}()
	}

	log.Printf("%s starting", version.String())
	if err := p.Start(ctx); err != nil {
		log.Printf("failed to start pipeline: %v", err)
		if err := p.Shutdown(); err != nil {
			log.Printf("shutdown: %v", err)
		}
		endSession("failed: " + err.Error())
		stop()
		wg.Wait()
		return -1
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	var recorder *pipeline.StatsRecorder
	if catalog != nil {
		recorder = pipeline.NewStatsRecorder(pipeline.StatsRecorderConfig{
			Snapshot:  p.Snapshot,
			Store:     catalog,
			SessionID: sessionID,
			Interval:  statsInterval,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Run(runCtx); err != nil {
				log.Printf("stats recorder: %v", err)
			}
		}()
	}
	reporter := newStatusReporter(os.Stdout, statusInterval, p.Snapshot)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.run(runCtx)
	}()

	reason := p.Wait(ctx)
	log.Printf("stopping: %s", reason)
	if recorder != nil {
		recorder.Stop()
	}
	cancelRun()

	status := reason
	if err := p.Shutdown(); err != nil {
		log.Printf("shutdown: %v", err)
		status = "shutdown error: " + err.Error()
	}
	endSession(status)
	stop()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return 0
}

func openSession(path string, cfg *config.PipelineConfig) (*db.DB, string, error) {
	catalog, err := db.NewDB(path)
	if err != nil {
		return nil, "", err
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		catalog.Close()
		return nil, "", err
	}
	s := &db.Session{
		RFPath:        cfg.GetRFPath(),
		WaveformPath:  cfg.GetWaveformPath(),
		TriggerSource: triggerSource(cfg),
		CaptureSource: captureSource(cfg),
		ConfigJSON:    string(cfgJSON),
	}
	if lf := cfg.GetLogFile(); lf != "" {
		s.LogPath = &lf
	}
	id, err := catalog.StartSession(s)
	if err != nil {
		catalog.Close()
		return nil, "", err
	}
	log.Printf("session %s recorded in %s", id, path)
	return catalog, id, nil
}

func serveDebug(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("failed to start debug server: %v", err)
		}
	}()
	log.Printf("debug pages on http://%s/debug/", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("debug server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("debug server force close error: %v", err)
		}
	}
}
