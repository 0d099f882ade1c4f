// Package timelog provides SQLite-backed work session logging for tasks.
package timelog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_path  TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	seconds    INTEGER NOT NULL,
	note       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_task ON sessions(task_path);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`

// Session is one logged stretch of work against a task document.
type Session struct {
	ID        int64
	TaskPath  string
	StartedAt time.Time
	Seconds   int
	Note      string
}

// Store defines the session log operations. Consumers should depend on this
// interface rather than the concrete *DB type to facilitate testing with mocks.
type Store interface {
	Add(s Session) (int64, error)
	ForTask(taskPath string) ([]Session, error)
	Since(cutoff time.Time) ([]Session, error)
	TotalSeconds(taskPath string) (int, error)
	Rename(oldPath, newPath string) error
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// DB wraps a sql.DB with session log operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("timelog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("timelog: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("timelog: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Add records a session and returns its id.
func (db *DB) Add(s Session) (int64, error) {
	if s.Seconds <= 0 {
		return 0, fmt.Errorf("timelog: session duration must be positive, got %d", s.Seconds)
	}
	res, err := db.conn.Exec(`
		INSERT INTO sessions (task_path, started_at, seconds, note)
		VALUES (?, ?, ?, ?)
	`, s.TaskPath, s.StartedAt.UTC(), s.Seconds, s.Note)
	if err != nil {
		return 0, fmt.Errorf("timelog: insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("timelog: last insert id: %w", err)
	}
	return id, nil
}

// ForTask returns all sessions logged against a task path, oldest first.
func (db *DB) ForTask(taskPath string) ([]Session, error) {
	rows, err := db.conn.Query(`
		SELECT id, task_path, started_at, seconds, note
		FROM sessions WHERE task_path = ? ORDER BY started_at
	`, taskPath)
	if err != nil {
		return nil, fmt.Errorf("timelog: sessions for task: %w", err)
	}
	return scanSessions(rows)
}

// Since returns all sessions started at or after cutoff, oldest first.
func (db *DB) Since(cutoff time.Time) ([]Session, error) {
	rows, err := db.conn.Query(`
		SELECT id, task_path, started_at, seconds, note
		FROM sessions WHERE started_at >= ? ORDER BY started_at
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("timelog: sessions since: %w", err)
	}
	return scanSessions(rows)
}

// TotalSeconds returns the summed duration of all sessions for a task.
func (db *DB) TotalSeconds(taskPath string) (int, error) {
	var total int
	err := db.conn.QueryRow(`
		SELECT COALESCE(SUM(seconds), 0) FROM sessions WHERE task_path = ?
	`, taskPath).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("timelog: total seconds: %w", err)
	}
	return total, nil
}

// Rename repoints session history when a task document moves.
func (db *DB) Rename(oldPath, newPath string) error {
	_, err := db.conn.Exec(`UPDATE sessions SET task_path = ? WHERE task_path = ?`, newPath, oldPath)
	if err != nil {
		return fmt.Errorf("timelog: rename task: %w", err)
	}
	return nil
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.TaskPath, &s.StartedAt, &s.Seconds, &s.Note); err != nil {
			return nil, fmt.Errorf("timelog: scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
