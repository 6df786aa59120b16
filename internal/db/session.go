package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// Session is one run of the pipeline.
type Session struct {
	ID            string     `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	RFPath        string     `json:"rf_path"`
	WaveformPath  string     `json:"waveform_path"`
	LogPath       *string    `json:"log_path,omitempty"`
	TriggerSource *string    `json:"trigger_source,omitempty"`
	CaptureSource string     `json:"capture_source"`
	ConfigJSON    string     `json:"config_json"`
	ExitStatus    *string    `json:"exit_status,omitempty"`
}

// SessionStats is one snapshot of the pipeline counters.
type SessionStats struct {
	SessionID      string    `json:"session_id"`
	RecordedAt     time.Time `json:"recorded_at"`
	Uptime         float64   `json:"uptime_s"`
	Frames         uint64    `json:"frames"`
	FramesDropped  uint64    `json:"frames_dropped"`
	Spikes         uint64    `json:"spikes"`
	Threshold      float64   `json:"threshold"`
	AudioBlocks    uint64    `json:"audio_blocks"`
	AudioDropped   uint64    `json:"audio_dropped"`
	TriggersMissed uint64    `json:"triggers_missed"`
	Events         uint64    `json:"events"`
	EventsDropped  uint64    `json:"events_dropped"`
}

// StartSession inserts s with a fresh ID and returns it. A zero StartedAt is
// replaced with the current time.
func (db *DB) StartSession(s *Session) (string, error) {
	s.ID = uuid.NewString()
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	if s.ConfigJSON == "" {
		s.ConfigJSON = "{}"
	}

	_, err := db.DB.Exec(`
		INSERT INTO sessions (
			session_id, started_unix, rf_path, waveform_path,
			log_path, trigger_source, capture_source, config_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.StartedAt.Unix(), s.RFPath, s.WaveformPath,
		s.LogPath, s.TriggerSource, s.CaptureSource, s.ConfigJSON,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return s.ID, nil
}

// EndSession stamps the end time and exit status of a session.
func (db *DB) EndSession(id string, endedAt time.Time, status string) error {
	res, err := db.DB.Exec(
		`UPDATE sessions SET ended_unix = ?, exit_status = ? WHERE session_id = ?`,
		endedAt.Unix(), status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RecordStats appends a counter snapshot to a session.
func (db *DB) RecordStats(st SessionStats) error {
	if st.RecordedAt.IsZero() {
		st.RecordedAt = time.Now()
	}
	_, err := db.DB.Exec(`
		INSERT INTO session_stats (
			session_id, recorded_unix, uptime_s, frames, frames_dropped,
			spikes, threshold, audio_blocks, audio_dropped, triggers_missed,
			events, events_dropped
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.SessionID, st.RecordedAt.Unix(), st.Uptime,
		int64(st.Frames), int64(st.FramesDropped), int64(st.Spikes), st.Threshold,
		int64(st.AudioBlocks), int64(st.AudioDropped), int64(st.TriggersMissed),
		int64(st.Events), int64(st.EventsDropped),
	)
	if err != nil {
		return fmt.Errorf("failed to record stats: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, started_unix, ended_unix, rf_path, waveform_path,
	log_path, trigger_source, capture_source, config_json, exit_status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var started int64
	var ended sql.NullInt64
	if err := row.Scan(
		&s.ID, &started, &ended, &s.RFPath, &s.WaveformPath,
		&s.LogPath, &s.TriggerSource, &s.CaptureSource, &s.ConfigJSON, &s.ExitStatus,
	); err != nil {
		return nil, err
	}
	s.StartedAt = time.Unix(started, 0)
	if ended.Valid {
		t := time.Unix(ended.Int64, 0)
		s.EndedAt = &t
	}
	return &s, nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.DB.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.DB.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_unix DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// StatsForSession returns a session's snapshots in recording order.
func (db *DB) StatsForSession(id string) ([]SessionStats, error) {
	rows, err := db.DB.Query(`
		SELECT session_id, recorded_unix, uptime_s, frames, frames_dropped,
			spikes, threshold, audio_blocks, audio_dropped, triggers_missed,
			events, events_dropped
		FROM session_stats WHERE session_id = ? ORDER BY recorded_unix, stat_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var out []SessionStats
	for rows.Next() {
		var st SessionStats
		var recorded int64
		var frames, framesDropped, spikes, blocks, audioDropped, missed, events, eventsDropped int64
		if err := rows.Scan(
			&st.SessionID, &recorded, &st.Uptime, &frames, &framesDropped,
			&spikes, &st.Threshold, &blocks, &audioDropped, &missed,
			&events, &eventsDropped,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		st.RecordedAt = time.Unix(recorded, 0)
		st.Frames = uint64(frames)
		st.FramesDropped = uint64(framesDropped)
		st.Spikes = uint64(spikes)
		st.AudioBlocks = uint64(blocks)
		st.AudioDropped = uint64(audioDropped)
		st.TriggersMissed = uint64(missed)
		st.Events = uint64(events)
		st.EventsDropped = uint64(eventsDropped)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
