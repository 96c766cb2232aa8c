package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transcription is one history row.
type Transcription struct {
	ID        string
	CreatedAt time.Time
	Backend   string
	Text      string
	Duration  time.Duration
	Success   bool
	Error     string
}

// SaveTranscription inserts t, assigning an ID and timestamp if unset.
func (db *DB) SaveTranscription(ctx context.Context, t *Transcription) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	var errMsg sql.NullString
	if t.Error != "" {
		errMsg = sql.NullString{String: t.Error, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO transcriptions (id, created_at, backend, text, duration_ms, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.CreatedAt.UnixMilli(), t.Backend, t.Text, t.Duration.Milliseconds(), t.Success, errMsg)
	if err != nil {
		return fmt.Errorf("storage: save transcription: %w", err)
	}
	return nil
}

// RecentTranscriptions returns up to limit rows, newest first.
func (db *DB) RecentTranscriptions(ctx context.Context, limit int) ([]Transcription, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, created_at, backend, text, duration_ms, success, error_message
		FROM transcriptions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query transcriptions: %w", err)
	}
	defer rows.Close()

	var out []Transcription
	for rows.Next() {
		var (
			t          Transcription
			createdMs  int64
			durationMs int64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&t.ID, &createdMs, &t.Backend, &t.Text, &durationMs, &t.Success, &errMsg); err != nil {
			return nil, fmt.Errorf("storage: scan transcription: %w", err)
		}
		t.CreatedAt = time.UnixMilli(createdMs)
		t.Duration = time.Duration(durationMs) * time.Millisecond
		if errMsg.Valid {
			t.Error = errMsg.String
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
