package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/database"
)

// Run is one recorded work execution.
type Run struct {
	ID         string `json:"id"`
	JobName    string `json:"job_name"`
	Subject    string `json:"subject,omitempty"`
	Status     string `json:"status"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Recorder persists one job_history row per work execution and serves the
// recent-run listing for the system status endpoint. Rows live in cache.db
// and are pruned by the cleanup work type.
type Recorder struct {
	db  *database.DB
	log zerolog.Logger
	now func() time.Time
}

// NewRecorder creates a job history recorder backed by the cache database.
func NewRecorder(db *database.DB, log zerolog.Logger) *Recorder {
	return &Recorder{
		db:  db,
		log: log.With().Str("service", "job_history").Logger(),
		now: time.Now,
	}
}

// Record writes one finished run. History is best-effort: a write failure is
// logged and swallowed, the work outcome itself is already logged elsewhere.
func (r *Recorder) Record(job, subject, status string, duration time.Duration, errMessage string) {
	finished := r.now()
	started := finished.Add(-duration)

	_, err := r.db.Exec(`
		INSERT INTO job_history (id, job_name, subject, started_at, finished_at, status, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), job, subject, started.Unix(), finished.Unix(), status, errMessage, duration.Milliseconds(),
	)
	if err != nil {
		r.log.Error().Err(err).Str("job", job).Msg("Failed to record job history")
	}
}

// ListRecent returns the latest runs, newest first.
func (r *Recorder) ListRecent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT id, job_name, subject, status, started_at, finished_at, duration_ms, error
		FROM job_history
		ORDER BY started_at DESC, id
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list job history: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.JobName, &run.Subject, &run.Status, &run.StartedAt, &run.FinishedAt, &run.DurationMS, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan job history row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastCompleted returns, per job name, when that job last finished
// successfully. Jobs that never completed have no entry.
func (r *Recorder) LastCompleted() (map[string]time.Time, error) {
	rows, err := r.db.Query(`
		SELECT job_name, MAX(finished_at)
		FROM job_history
		WHERE status = 'completed'
		GROUP BY job_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query last completions: %w", err)
	}
	defer rows.Close()

	last := make(map[string]time.Time)
	for rows.Next() {
		var job string
		var finished int64
		if err := rows.Scan(&job, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan last completion row: %w", err)
		}
		last[job] = time.Unix(finished, 0).UTC()
	}
	return last, rows.Err()
}

// Prune deletes runs older than the retention window and returns how many
// rows went.
func (r *Recorder) Prune(retention time.Duration) (int64, error) {
	cutoff := r.now().Add(-retention).Unix()

	result, err := r.db.Exec(`DELETE FROM job_history WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune job history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
