package flash

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLiteRecorder persists executions to the flash_executions table.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder creates a recorder over db.
func NewSQLiteRecorder(db *sql.DB) *SQLiteRecorder {
	return &SQLiteRecorder{db: db}
}

// Record inserts a finished execution.
func (r *SQLiteRecorder) Record(ctx context.Context, exec *Execution) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO flash_executions (
			id, session_id, condition_id, scene, element, duration_ms,
			status, failed_step, error, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.SessionID, exec.ConditionID, exec.Scene, exec.Element, exec.DurationMS,
		string(exec.Status), string(exec.FailedStep), exec.Error,
		exec.StartedAt.Format(timeLayout),
		exec.CompletedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting flash execution: %w", err)
	}
	return nil
}

// ListBySession returns the most recent executions of a session, newest
// first. A non-positive limit selects the default; it is capped at 500.
func (r *SQLiteRecorder) ListBySession(ctx context.Context, sessionID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, condition_id, scene, element, duration_ms,
		        status, failed_step, error, started_at, completed_at
		 FROM flash_executions
		 WHERE session_id = ?
		 ORDER BY started_at DESC
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying flash executions: %w", err)
	}
	defer rows.Close()

	execs := make([]Execution, 0)
	for rows.Next() {
		var (
			e                      Execution
			status, step           string
			startedAt, completedAt string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ConditionID, &e.Scene, &e.Element, &e.DurationMS,
			&status, &step, &e.Error, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scanning flash execution: %w", err)
		}
		e.Status = Status(status)
		e.FailedStep = Step(step)
		e.StartedAt, _ = time.Parse(timeLayout, startedAt)     //nolint:errcheck // we write this format
		e.CompletedAt, _ = time.Parse(timeLayout, completedAt) //nolint:errcheck // we write this format
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flash executions: %w", err)
	}
	return execs, nil
}
