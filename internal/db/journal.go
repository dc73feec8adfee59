package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recording statuses.
const (
	RecordingActive   = "recording"
	RecordingStopped  = "stopped"
	RecordingAborted  = "aborted"
	RecordingAutoStop = "auto_stopped"
)

// ErrNotFound is returned when a journal row does not exist.
var ErrNotFound = errors.New("db: not found")

// Recording is one session recording.
type Recording struct {
	ID        uuid.UUID
	SinkPath  string
	StartedAt time.Time
	StoppedAt *time.Time
	Status    string
}

// AnchorEvent is an anchor creation written to a recording's data track.
// RecordingID is uuid.Nil when no recording was active.
type AnchorEvent struct {
	ID            uuid.UUID
	RecordingID   uuid.UUID
	AnchorID      uuid.UUID
	TrackableKind string
	X, Y, Z       float64
	Payload       []byte
	CreatedAt     time.Time
}

// MarkPoint is a named position marker.
type MarkPoint struct {
	ID           int64
	Project      string
	Name         string
	CameraStatus string
	CreatedAt    time.Time
}

// Journal records session history.
type Journal struct {
	db *sql.DB
}

// NewJournal returns a journal backed by db, which must be migrated.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db.DB}
}

func nullUUID(id uuid.UUID) sql.NullString {
	if id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// StartRecording inserts an active recording. A nil ID is replaced with a
// new UUID.
func (j *Journal) StartRecording(ctx context.Context, r *Recording) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RecordingActive
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO recordings (recording_id, sink_path, started_at_ns, status) VALUES (?, ?, ?, ?)`,
		r.ID.String(), r.SinkPath, r.StartedAt.UnixNano(), r.Status)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// FinishRecording sets the stop time and final status.
func (j *Journal) FinishRecording(ctx context.Context, id uuid.UUID, stoppedAt time.Time, status string) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE recordings SET stopped_at_ns = ?, status = ? WHERE recording_id = ?`,
		stoppedAt.UnixNano(), status, id.String())
	if err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	return nil
}

// Recording loads one recording.
func (j *Journal) Recording(ctx context.Context, id uuid.UUID) (*Recording, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT recording_id, sink_path, started_at_ns, stopped_at_ns, status FROM recordings WHERE recording_id = ?`,
		id.String())
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	return r, err
}

// Recordings lists recordings, newest first.
func (j *Journal) Recordings(ctx context.Context) ([]Recording, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT recording_id, sink_path, started_at_ns, stopped_at_ns, status FROM recordings ORDER BY started_at_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(s scanner) (*Recording, error) {
	var (
		r       Recording
		id      string
		started int64
		stopped sql.NullInt64
	)
	if err := s.Scan(&id, &r.SinkPath, &started, &stopped, &r.Status); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse recording id %q: %w", id, err)
	}
	r.ID = parsed
	r.StartedAt = time.Unix(0, started)
	if stopped.Valid {
		t := time.Unix(0, stopped.Int64)
		r.StoppedAt = &t
	}
	return &r, nil
}

// RecordAnchorEvent inserts an anchor event. A nil ID is replaced with a new
// UUID.
func (j *Journal) RecordAnchorEvent(ctx context.Context, e *AnchorEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO anchor_events (event_id, recording_id, anchor_id, trackable_kind, x, y, z, payload, created_at_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), nullUUID(e.RecordingID), e.AnchorID.String(), e.TrackableKind,
		e.X, e.Y, e.Z, e.Payload, e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert anchor event: %w", err)
	}
	return nil
}

// AnchorEvents returns the events of a recording in creation order. Pass
// uuid.Nil for events recorded outside any recording.
func (j *Journal) AnchorEvents(ctx context.Context, recordingID uuid.UUID) ([]AnchorEvent, error) {
	query := `SELECT event_id, recording_id, anchor_id, trackable_kind, x, y, z, payload, created_at_ns
		FROM anchor_events WHERE recording_id = ? ORDER BY created_at_ns, rowid`
	args := []any{recordingID.String()}
	if recordingID == uuid.Nil {
		query = `SELECT event_id, recording_id, anchor_id, trackable_kind, x, y, z, payload, created_at_ns
		FROM anchor_events WHERE recording_id IS NULL ORDER BY created_at_ns, rowid`
		args = nil
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query anchor events: %w", err)
	}
	defer rows.Close()

	var out []AnchorEvent
	for rows.Next() {
		var (
			e         AnchorEvent
			id, aid   string
			recording sql.NullString
			created   int64
		)
		if err := rows.Scan(&id, &recording, &aid, &e.TrackableKind, &e.X, &e.Y, &e.Z, &e.Payload, &created); err != nil {
			return nil, fmt.Errorf("scan anchor event: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		if e.AnchorID, err = uuid.Parse(aid); err != nil {
			return nil, fmt.Errorf("parse anchor id: %w", err)
		}
		if recording.Valid {
			if e.RecordingID, err = uuid.Parse(recording.String); err != nil {
				return nil, fmt.Errorf("parse recording id: %w", err)
			}
		}
		e.CreatedAt = time.Unix(0, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordMarkPoint inserts a mark point and sets its ID.
func (j *Journal) RecordMarkPoint(ctx context.Context, m *MarkPoint) error {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO mark_points (project, name, camera_status, created_at_ns) VALUES (?, ?, ?, ?)`,
		m.Project, m.Name, m.CameraStatus, m.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert mark point: %w", err)
	}
	m.ID, _ = res.LastInsertId()
	return nil
}

// MarkPoints returns a project's mark points in creation order.
func (j *Journal) MarkPoints(ctx context.Context, project string) ([]MarkPoint, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT mark_id, project, name, camera_status, created_at_ns FROM mark_points WHERE project = ? ORDER BY mark_id`,
		project)
	if err != nil {
		return nil, fmt.Errorf("query mark points: %w", err)
	}
	defer rows.Close()

	var out []MarkPoint
	for rows.Next() {
		var (
			m       MarkPoint
			created int64
		)
		if err := rows.Scan(&m.ID, &m.Project, &m.Name, &m.CameraStatus, &created); err != nil {
			return nil, fmt.Errorf("scan mark point: %w", err)
		}
		m.CreatedAt = time.Unix(0, created)
		out = append(out, m)
	}
	return out, rows.Err()
}
