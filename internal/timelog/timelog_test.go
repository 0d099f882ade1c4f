package timelog

import (
	"os"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "dagaz-timelog-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAddAndForTask(t *testing.T) {
	db := testDB(t)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	id, err := db.Add(Session{TaskPath: "tasks/report.md", StartedAt: start, Seconds: 1500, Note: "first draft"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero id")
	}
	if _, err := db.Add(Session{TaskPath: "tasks/report.md", StartedAt: start.Add(time.Hour), Seconds: 600}); err != nil {
		t.Fatal(err)
	}

	sessions, err := db.ForTask("tasks/report.md")
	if err != nil {
		t.Fatalf("ForTask: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Note != "first draft" || sessions[0].Seconds != 1500 {
		t.Errorf("first session = %+v", sessions[0])
	}
	if !sessions[0].StartedAt.Before(sessions[1].StartedAt) {
		t.Error("sessions not ordered oldest first")
	}
}

func TestAddRejectsNonPositiveDuration(t *testing.T) {
	db := testDB(t)
	if _, err := db.Add(Session{TaskPath: "x.md", StartedAt: time.Now(), Seconds: 0}); err == nil {
		t.Error("expected error for zero duration")
	}
}

func TestTotalSeconds(t *testing.T) {
	db := testDB(t)
	start := time.Now().UTC()
	_, _ = db.Add(Session{TaskPath: "a.md", StartedAt: start, Seconds: 100})
	_, _ = db.Add(Session{TaskPath: "a.md", StartedAt: start, Seconds: 200})
	_, _ = db.Add(Session{TaskPath: "b.md", StartedAt: start, Seconds: 999})

	total, err := db.TotalSeconds("a.md")
	if err != nil {
		t.Fatalf("TotalSeconds: %v", err)
	}
	if total != 300 {
		t.Errorf("total = %d, want 300", total)
	}

	total, _ = db.TotalSeconds("missing.md")
	if total != 0 {
		t.Errorf("total for unknown task = %d, want 0", total)
	}
}

func TestSince(t *testing.T) {
	db := testDB(t)
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, _ = db.Add(Session{TaskPath: "a.md", StartedAt: old, Seconds: 60})
	_, _ = db.Add(Session{TaskPath: "a.md", StartedAt: recent, Seconds: 60})

	sessions, err := db.Since(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if !sessions[0].StartedAt.Equal(recent) {
		t.Errorf("StartedAt = %v, want %v", sessions[0].StartedAt, recent)
	}
}

func TestRenameMovesHistory(t *testing.T) {
	db := testDB(t)
	_, _ = db.Add(Session{TaskPath: "old.md", StartedAt: time.Now().UTC(), Seconds: 120})
	_, _ = db.Add(Session{TaskPath: "old.md", StartedAt: time.Now().UTC(), Seconds: 240})

	if err := db.Rename("old.md", "archive/new.md"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	total, _ := db.TotalSeconds("old.md")
	if total != 0 {
		t.Errorf("old path still has %d seconds", total)
	}
	total, _ = db.TotalSeconds("archive/new.md")
	if total != 360 {
		t.Errorf("new path total = %d, want 360", total)
	}
}
