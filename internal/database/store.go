package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
)

var ErrNotFound = errors.New("not found")

func (db *DB) CreateSession(ctx context.Context, rec models.SessionRecord) error {
	_, err := db.ExecContext(ctx, db.rebind(`
		INSERT INTO sessions (id, start_time, status, source, ear_threshold, consec_frames)
		VALUES (?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.StartTime.UTC(), rec.Status, rec.Source, rec.EARThreshold, rec.ConsecFrames)
	if err != nil {
		return fmt.Errorf("create session %s: %w", rec.ID, err)
	}
	return nil
}

// FinishSession stores the final counters of a session.
func (db *DB) FinishSession(ctx context.Context, rec models.SessionRecord) error {
	end := time.Now()
	if rec.EndTime != nil {
		end = *rec.EndTime
	}
	res, err := db.ExecContext(ctx, db.rebind(`
		UPDATE sessions
		SET end_time = ?, status = ?, total_blinks = ?, sleep_alerts = ?, frames_processed = ?
		WHERE id = ?`),
		end.UTC(), rec.Status, rec.TotalBlinks, rec.SleepAlerts, rec.FramesProcessed, rec.ID)
	if err != nil {
		return fmt.Errorf("finish session %s: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish session %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

func (db *DB) InsertEvent(ctx context.Context, ev models.EventRecord) error {
	_, err := db.ExecContext(ctx, db.rebind(`
		INSERT INTO events (id, session_id, kind, ear, frame_seq, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`),
		ev.ID, ev.SessionID, ev.Kind, ev.EAR, int64(ev.FrameSeq), ev.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert %s event: %w", ev.Kind, err)
	}
	return nil
}

const sessionColumns = `id, start_time, end_time, status, source, ear_threshold, consec_frames,
	total_blinks, sleep_alerts, frames_processed`

func (db *DB) GetSession(ctx context.Context, id string) (models.SessionRecord, error) {
	row := db.QueryRowContext(ctx, db.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`), id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// ListSessions returns the newest sessions first.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, db.rebind(`
		SELECT `+sessionColumns+` FROM sessions
		ORDER BY start_time DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (db *DB) ListEvents(ctx context.Context, sessionID string) ([]models.EventRecord, error) {
	rows, err := db.QueryContext(ctx, db.rebind(`
		SELECT id, session_id, kind, ear, frame_seq, timestamp FROM events
		WHERE session_id = ?
		ORDER BY frame_seq, timestamp`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []models.EventRecord
	for rows.Next() {
		var ev models.EventRecord
		var seq int64
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Kind, &ev.EAR, &seq, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.FrameSeq = uint64(seq)
		out = append(out, ev)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (models.SessionRecord, error) {
	var rec models.SessionRecord
	var end sql.NullTime
	err := s.Scan(&rec.ID, &rec.StartTime, &end, &rec.Status, &rec.Source, &rec.EARThreshold,
		&rec.ConsecFrames, &rec.TotalBlinks, &rec.SleepAlerts, &rec.FramesProcessed)
	if err != nil {
		return rec, err
	}
	if end.Valid {
		t := end.Time
		rec.EndTime = &t
	}
	return rec, nil
}
