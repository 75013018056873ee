package scheduler

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// RunDetail is the msgpack payload stored with each job run.
type RunDetail struct {
	Error      string `msgpack:"error,omitempty"`
	DurationMS int64  `msgpack:"duration_ms"`
}

// RunRecord is one decoded job-run history row.
type RunRecord struct {
	ID         string
	Job        string
	StartedAt  time.Time
	FinishedAt time.Time
	OK         bool
	Detail     RunDetail
}

// HistoryRepository persists job run outcomes. The history is
// ephemeral operational data, kept for inspection, never consumed by the
// engine itself.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a job-run history repository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record writes one job run row with a msgpack-encoded detail payload.
func (r *HistoryRepository) Record(job string, started, finished time.Time, runErr error) error {
	detail := RunDetail{
		DurationMS: finished.Sub(started).Milliseconds(),
	}
	ok := 1
	if runErr != nil {
		ok = 0
		detail.Error = runErr.Error()
	}

	payload, err := msgpack.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to encode run detail: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO job_runs (id, job, started_at, finished_at, ok, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), job, started.Unix(), finished.Unix(), ok, payload)
	if err != nil {
		return fmt.Errorf("failed to insert job run: %w", err)
	}

	return nil
}

// GetRecent returns the most recent runs of one job, newest first.
func (r *HistoryRepository) GetRecent(job string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT id, job, started_at, finished_at, ok, detail
		FROM job_runs
		WHERE job = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, job, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query job runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started, finished int64
		var ok int
		var payload []byte

		if err := rows.Scan(&rec.ID, &rec.Job, &started, &finished, &ok, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}

		rec.StartedAt = time.Unix(started, 0).UTC()
		rec.FinishedAt = time.Unix(finished, 0).UTC()
		rec.OK = ok != 0
		if len(payload) > 0 {
			if err := msgpack.Unmarshal(payload, &rec.Detail); err != nil {
				return nil, fmt.Errorf("failed to decode run detail: %w", err)
			}
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job runs: %w", err)
	}

	return records, nil
}
