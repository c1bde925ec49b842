package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and applies migrations
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS job_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		event TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_job_events_job_id ON job_events(job_id);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) record(sessionID, jobID, event, detail string) error {
	query := `INSERT INTO job_events (session_id, job_id, event, detail, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, sessionID, jobID, event, detail, time.Now())
	return err
}

// RecordSubmission records that a job was submitted from a dataset.
func (s *SQLiteStore) RecordSubmission(sessionID, jobID, dataset string) error {
	return s.record(sessionID, jobID, EventSubmitted, dataset)
}

// RecordJobState records an observed queue state.
func (s *SQLiteStore) RecordJobState(sessionID, jobID, state string) error {
	return s.record(sessionID, jobID, EventState, state)
}

// RecordOutput records an output retrieval (cond code or output path).
func (s *SQLiteStore) RecordOutput(sessionID, jobID, detail string) error {
	return s.record(sessionID, jobID, EventOutput, detail)
}

// JobHistory retrieves the most recent events for one job
func (s *SQLiteStore) JobHistory(jobID string, limit int) ([]JobEvent, error) {
	query := `SELECT id, session_id, job_id, event, detail, created_at
		FROM job_events WHERE job_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	return s.query(query, jobID, limit)
}

// RecentEvents retrieves the most recent events across all jobs
func (s *SQLiteStore) RecentEvents(limit int) ([]JobEvent, error) {
	query := `SELECT id, session_id, job_id, event, detail, created_at
		FROM job_events ORDER BY created_at DESC, id DESC LIMIT ?`
	return s.query(query, limit)
}

func (s *SQLiteStore) query(query string, args ...any) ([]JobEvent, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []JobEvent
	for rows.Next() {
		var ev JobEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.JobID, &ev.Event, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}
