package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Entry statuses
const (
	StatusDone    = "done"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
	StatusPrivate = "private"
)

// Entry is one outcome recorded for a song during a run
type Entry struct {
	ID           int64         `json:"id"`
	RunID        string        `json:"run_id"`
	VideoID      string        `json:"video_id"`
	Title        string        `json:"title"`
	Status       string        `json:"status"`
	ErrorType    string        `json:"error_type,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Bytes        int64         `json:"bytes"`
	Targets      []string      `json:"targets,omitempty"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"created_at"`
}

// HistoryStore records download outcomes
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a new HistoryStore
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record inserts an entry and sets its ID and CreatedAt
func (hs *HistoryStore) Record(ctx context.Context, entry *Entry) error {
	targetsJSON, err := json.Marshal(entry.Targets)
	if err != nil {
		return fmt.Errorf("failed to encode targets: %w", err)
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	result, err := hs.db.ExecContext(ctx, `
		INSERT INTO download_history (
			run_id, video_id, title, status, error_type, error_message,
			bytes, targets_json, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.RunID,
		entry.VideoID,
		entry.Title,
		entry.Status,
		entry.ErrorType,
		entry.ErrorMessage,
		entry.Bytes,
		string(targetsJSON),
		entry.Duration.Milliseconds(),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		entry.ID = id
	}
	return nil
}

// Failures returns the failed entries of a run, oldest first
func (hs *HistoryStore) Failures(ctx context.Context, runID string) ([]*Entry, error) {
	rows, err := hs.db.QueryContext(ctx, `
		SELECT id, run_id, video_id, title, status,
		       COALESCE(error_type, ''), COALESCE(error_message, ''),
		       bytes, COALESCE(targets_json, ''), duration_ms, created_at
		FROM download_history
		WHERE run_id = ? AND status = ?
		ORDER BY created_at, id
	`, runID, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		var targetsJSON string
		var durationMS int64
		if err := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.VideoID,
			&entry.Title,
			&entry.Status,
			&entry.ErrorType,
			&entry.ErrorMessage,
			&entry.Bytes,
			&targetsJSON,
			&durationMS,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if targetsJSON != "" {
			if err := json.Unmarshal([]byte(targetsJSON), &entry.Targets); err != nil {
				return nil, fmt.Errorf("failed to decode targets of entry %d: %w", entry.ID, err)
			}
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// RunCounts returns the number of entries per status for a run
func (hs *HistoryStore) RunCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := hs.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM download_history WHERE run_id = ? GROUP BY status",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count history entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan history count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// LastDone returns the newest successful entry for a video, or nil
func (hs *HistoryStore) LastDone(ctx context.Context, videoID string) (*Entry, error) {
	entry := &Entry{}
	var durationMS int64
	err := hs.db.QueryRowContext(ctx, `
		SELECT id, run_id, video_id, title, status, bytes, duration_ms, created_at
		FROM download_history
		WHERE video_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, videoID, StatusDone).Scan(
		&entry.ID,
		&entry.RunID,
		&entry.VideoID,
		&entry.Title,
		&entry.Status,
		&entry.Bytes,
		&durationMS,
		&entry.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	entry.Duration = time.Duration(durationMS) * time.Millisecond
	return entry, nil
}
