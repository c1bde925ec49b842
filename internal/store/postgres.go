package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store and applies migrations
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS job_events (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			event TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_job_events_job_id ON job_events(job_id);`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) record(sessionID, jobID, event, detail string) error {
	query := `INSERT INTO job_events (session_id, job_id, event, detail, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.Exec(query, sessionID, jobID, event, detail, time.Now())
	return err
}

// RecordSubmission records that a job was submitted from a dataset.
func (s *PostgresStore) RecordSubmission(sessionID, jobID, dataset string) error {
	return s.record(sessionID, jobID, EventSubmitted, dataset)
}

// RecordJobState records an observed queue state.
func (s *PostgresStore) RecordJobState(sessionID, jobID, state string) error {
	return s.record(sessionID, jobID, EventState, state)
}

// RecordOutput records an output retrieval (cond code or output path).
func (s *PostgresStore) RecordOutput(sessionID, jobID, detail string) error {
	return s.record(sessionID, jobID, EventOutput, detail)
}

// JobHistory retrieves the most recent events for one job
func (s *PostgresStore) JobHistory(jobID string, limit int) ([]JobEvent, error) {
	query := `SELECT id, session_id, job_id, event, detail, created_at
		FROM job_events WHERE job_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	return s.query(query, jobID, limit)
}

// RecentEvents retrieves the most recent events across all jobs
func (s *PostgresStore) RecentEvents(limit int) ([]JobEvent, error) {
	query := `SELECT id, session_id, job_id, event, detail, created_at
		FROM job_events ORDER BY created_at DESC, id DESC LIMIT $1`
	return s.query(query, limit)
}

func (s *PostgresStore) query(query string, args ...any) ([]JobEvent, error) {
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
