package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/ravine/internal/db"
	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/timeutil"
)

// StatsStore persists counter snapshots. *db.DB implements it.
type StatsStore interface {
	RecordStats(db.SessionStats) error
}

// SnapshotFunc returns the current counters.
type SnapshotFunc func() Snapshot

// StatsRecorder periodically writes pipeline snapshots to the session
// catalog, with one final write on shutdown.
type StatsRecorder struct {
	snapshot  SnapshotFunc
	store     StatsStore
	sessionID string
	interval  time.Duration
	clock     timeutil.Clock
	logf      func(format string, v ...interface{})

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// StatsRecorderConfig configures a StatsRecorder.
type StatsRecorderConfig struct {
	Snapshot  SnapshotFunc
	Store     StatsStore
	SessionID string
	// Interval is how often to record (e.g. 5*time.Second).
	Interval time.Duration
	// Clock is optional; the real clock when nil.
	Clock timeutil.Clock
}

// NewStatsRecorder creates a StatsRecorder.
func NewStatsRecorder(cfg StatsRecorderConfig) *StatsRecorder {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &StatsRecorder{
		snapshot:  cfg.Snapshot,
		store:     cfg.Store,
		sessionID: cfg.SessionID,
		interval:  cfg.Interval,
		clock:     clock,
		logf:      monitoring.Prefixed("recorder"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Run records on every tick until ctx is cancelled or Stop is called.
func (r *StatsRecorder) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	defer func() {
		close(r.doneCh)
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if r.interval <= 0 {
		r.logf("interval is zero or negative, not starting")
		return nil
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Record()
			return nil
		case <-r.stopCh:
			r.Record()
			return nil
		case <-ticker.C():
			r.Record()
		}
	}
}

// Stop requests the recorder to stop and waits for the final write. It is
// safe to call multiple times.
func (r *StatsRecorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	done := r.doneCh
	r.mu.Unlock()
	<-done
}

// IsRunning reports whether Run is active.
func (r *StatsRecorder) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Record writes one snapshot now.
func (r *StatsRecorder) Record() {
	if r.snapshot == nil || r.store == nil {
		return
	}
	st := r.snapshot().SessionStats(r.sessionID)
	st.RecordedAt = r.clock.Now()
	if err := r.store.RecordStats(st); err != nil {
		r.logf("failed to record stats: %v", err)
	}
}

// SessionStats flattens the snapshot into a catalog row.
func (s Snapshot) SessionStats(sessionID string) db.SessionStats {
	st := db.SessionStats{
		SessionID:      sessionID,
		Uptime:         float64(s.Uptime),
		Frames:         s.Detector.FramesProcessed,
		FramesDropped:  s.Detector.FramesDropped,
		Spikes:         s.Detector.Spikes,
		Threshold:      float64(s.Detector.Threshold),
		AudioBlocks:    s.Audio.Blocks,
		TriggersMissed: s.Audio.TriggersMissed,
	}
	if s.Log != nil {
		st.AudioDropped = s.Log.AudioDropped
		st.Events = s.Log.EventPackets
		st.EventsDropped = s.Log.EventsDropped
	}
	if s.Trigger != nil && st.Events == 0 {
		st.Events = s.Trigger.Received
	}
	return st
}
