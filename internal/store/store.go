// Package store keeps a history of source sessions in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Timestamps are stored fixed-width in UTC so they compare as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the session history database.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &DB{db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			remote TEXT NOT NULL,
			transport TEXT NOT NULL,
			codec TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			packets INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			commands INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);
		CREATE TABLE IF NOT EXISTS auth_failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			remote TEXT NOT NULL,
			reason TEXT NOT NULL,
			at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
	`)
	return err
}

// Session is one row of history.
type Session struct {
	ID        string
	Remote    string
	Transport string
	Codec     string
	Width     int
	Height    int
	StartedAt time.Time
	EndedAt   time.Time // zero while running
	Packets   int64
	Bytes     int64
	Commands  int64
	Error     string
}

// SessionStarted inserts a running session.
func (db *DB) SessionStarted(s Session) error {
	_, err := db.Exec(`INSERT INTO sessions (id, remote, transport, codec, width, height, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Remote, s.Transport, s.Codec, s.Width, s.Height, s.StartedAt.UTC().Format(timeLayout))
	return err
}

// SessionEnded records the end of a session and its final counters.
func (db *DB) SessionEnded(id string, at time.Time, packets, bytes, commands int64, cause error) error {
	var msg sql.NullString
	if cause != nil {
		msg = sql.NullString{String: cause.Error(), Valid: true}
	}
	res, err := db.Exec(`UPDATE sessions SET ended_at = ?, packets = ?, bytes = ?, commands = ?, error = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), packets, bytes, commands, msg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: no session %s", id)
	}
	return nil
}

// AuthFailed records a rejected connection.
func (db *DB) AuthFailed(remote, reason string, at time.Time) error {
	_, err := db.Exec(`INSERT INTO auth_failures (remote, reason, at) VALUES (?, ?, ?)`,
		remote, reason, at.UTC().Format(timeLayout))
	return err
}

// Recent returns up to limit sessions, newest first.
func (db *DB) Recent(limit int) ([]Session, error) {
	rows, err := db.Query(`SELECT id, remote, transport, codec, width, height, started_at, ended_at, packets, bytes, commands, error
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var started string
		var ended, msg sql.NullString
		if err := rows.Scan(&s.ID, &s.Remote, &s.Transport, &s.Codec, &s.Width, &s.Height,
			&started, &ended, &s.Packets, &s.Bytes, &s.Commands, &msg); err != nil {
			return nil, err
		}
		if s.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, err
		}
		if ended.Valid {
			if s.EndedAt, err = time.Parse(timeLayout, ended.String); err != nil {
				return nil, err
			}
		}
		s.Error = msg.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// AuthFailures counts rejected attempts from remote since t.
func (db *DB) AuthFailures(remote string, since time.Time) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM auth_failures WHERE remote = ? AND at >= ?`,
		remote, since.UTC().Format(timeLayout)).Scan(&n)
	return n, err
}
