package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) (*HistoryStore, *sql.DB) {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "data", "history.db"))
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewHistoryStore(db), db
}

func TestInitDB_MigrationsIdempotent(t *testing.T) {
	_, db := setupTestDB(t)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}

	version, err := getCurrentVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}
}

func TestHistoryStore_RecordAndFailures(t *testing.T) {
	hs, _ := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{
			RunID:     "run-1",
			VideoID:   "abc",
			Title:     "Song A",
			Status:    StatusDone,
			Bytes:     4 << 20,
			Targets:   []string{"music/Pop/Song A.mp3", "music/Rock/Song A.mp3"},
			Duration:  1500 * time.Millisecond,
			CreatedAt: base,
		},
		{
			RunID:        "run-1",
			VideoID:      "def",
			Title:        "Song B",
			Status:       StatusFailed,
			ErrorType:    "encode",
			ErrorMessage: "ffmpeg exit status 1",
			Targets:      []string{"music/Pop/Song B.mp3", "music/Rock/Song B.mp3"},
			Duration:     1500 * time.Millisecond,
			CreatedAt:    base.Add(time.Second),
		},
		{
			RunID:        "run-1",
			VideoID:      "ghi",
			Title:        "Song C",
			Status:       StatusFailed,
			ErrorType:    "transport",
			ErrorMessage: "video unavailable",
			CreatedAt:    base.Add(2 * time.Second),
		},
	}
	for _, e := range entries {
		if err := hs.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if e.ID == 0 {
			t.Error("Record() did not set ID")
		}
	}

	failures, err := hs.Failures(ctx, "run-1")
	if err != nil {
		t.Fatalf("Failures() error = %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("Failures() returned %d entries, want 2", len(failures))
	}
	if failures[0].VideoID != "def" || failures[1].VideoID != "ghi" {
		t.Errorf("order = %s, %s; want def, ghi", failures[0].VideoID, failures[1].VideoID)
	}
	failed := failures[0]
	if failed.ErrorType != "encode" || failed.ErrorMessage != "ffmpeg exit status 1" {
		t.Errorf("error = %q / %q", failed.ErrorType, failed.ErrorMessage)
	}
	if len(failed.Targets) != 2 || failed.Targets[1] != "music/Rock/Song B.mp3" {
		t.Errorf("Targets = %v", failed.Targets)
	}
	if failed.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", failed.Duration)
	}

	done, err := hs.LastDone(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if done == nil || done.Bytes != 4<<20 {
		t.Errorf("LastDone() = %+v", done)
	}

	none, err := hs.Failures(ctx, "run-2")
	if err != nil || len(none) != 0 {
		t.Errorf("Failures() for other run = %v, %v", none, err)
	}
}

func TestHistoryStore_RunCounts(t *testing.T) {
	hs, _ := setupTestDB(t)
	ctx := context.Background()

	for _, status := range []string{StatusDone, StatusDone, StatusSkipped, StatusPrivate} {
		if err := hs.Record(ctx, &Entry{RunID: "run-1", VideoID: "x", Title: "t", Status: status}); err != nil {
			t.Fatal(err)
		}
	}
	hs.Record(ctx, &Entry{RunID: "run-2", VideoID: "y", Title: "t", Status: StatusFailed})

	counts, err := hs.RunCounts(ctx, "run-1")
	if err != nil {
		t.Fatalf("RunCounts() error = %v", err)
	}
	if counts[StatusDone] != 2 || counts[StatusSkipped] != 1 || counts[StatusPrivate] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if _, ok := counts[StatusFailed]; ok {
		t.Error("counts leaked entries from another run")
	}
}

func TestHistoryStore_LastDone(t *testing.T) {
	hs, _ := setupTestDB(t)
	ctx := context.Background()

	got, err := hs.LastDone(ctx, "abc")
	if err != nil || got != nil {
		t.Fatalf("LastDone() on empty store = %v, %v", got, err)
	}

	hs.Record(ctx, &Entry{RunID: "r", VideoID: "abc", Title: "Song A", Status: StatusFailed})
	hs.Record(ctx, &Entry{RunID: "r", VideoID: "abc", Title: "Song A", Status: StatusDone, Bytes: 42})

	got, err = hs.LastDone(ctx, "abc")
	if err != nil {
		t.Fatalf("LastDone() error = %v", err)
	}
	if got == nil || got.Bytes != 42 {
		t.Errorf("LastDone() = %+v", got)
	}
}

func TestDatabasePersistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	db1, err := InitDB(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewHistoryStore(db1).Record(context.Background(), &Entry{RunID: "r", VideoID: "abc", Title: "A", Status: StatusDone}); err != nil {
		t.Fatal(err)
	}
	db1.Close()

	db2, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()

	done, err := NewHistoryStore(db2).LastDone(context.Background(), "abc")
	if err != nil {
		t.Fatal(err)
	}
	if done == nil || done.Title != "A" {
		t.Errorf("LastDone() after reopen = %+v", done)
	}
}
