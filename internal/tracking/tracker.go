// Package tracking records step outcomes of queued jobs in SQLite.
package tracking

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/taskengine/internal/engine"
	"github.com/mattjoyce/taskengine/internal/log"
	"github.com/mattjoyce/taskengine/internal/storage"
)

// Tracker is an engine.ResultSink writing one step_log row per step.
type Tracker struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ engine.ResultSink = (*Tracker)(nil)

func New(db *sql.DB) *Tracker {
	return &Tracker{db: db, logger: log.WithComponent("tracking")}
}

// StepFinished implements engine.ResultSink. Reports without a job id come
// from in-process runs and are not recorded.
func (t *Tracker) StepFinished(ctx context.Context, r engine.StepReport) error {
	if r.JobID == "" {
		return nil
	}

	var outputs any
	if len(r.Outputs) > 0 {
		b, err := json.Marshal(r.Outputs)
		if err != nil {
			return fmt.Errorf("encode outputs of step %s: %w", r.Step, err)
		}
		outputs = string(b)
	}

	_, err := t.db.ExecContext(ctx, `
INSERT INTO step_log(
  job_id, step, task, plugin, tier, status, outputs, error, blocked_by, started_at, finished_at, recorded_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id, step) DO UPDATE SET
  status = excluded.status,
  outputs = excluded.outputs,
  error = excluded.error,
  blocked_by = excluded.blocked_by,
  started_at = excluded.started_at,
  finished_at = excluded.finished_at,
  recorded_at = excluded.recorded_at;
`, r.JobID, r.Step, r.Task, r.Plugin, r.Tier, string(r.Status), outputs,
		nullString(r.Error), nullString(r.BlockedBy), formatTime(r.StartedAt), formatTime(r.FinishedAt),
		time.Now().UTC().Format(storage.TimeFormat))
	if err != nil {
		return fmt.Errorf("record step %s of job %s: %w", r.Step, r.JobID, err)
	}

	t.logger.Debug("step recorded", "job_id", r.JobID, "step", r.Step, "status", r.Status)
	return nil
}

// Steps returns the recorded steps of a job in plan order.
func (t *Tracker) Steps(ctx context.Context, jobID string) ([]engine.StepReport, error) {
	rows, err := t.db.QueryContext(ctx, `
SELECT step, task, plugin, tier, status, outputs, error, blocked_by, started_at, finished_at
FROM step_log
WHERE job_id = ?
ORDER BY tier ASC, COALESCE(started_at, finished_at, recorded_at) ASC, step ASC;
`, jobID)
	if err != nil {
		return nil, fmt.Errorf("load steps of job %s: %w", jobID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []engine.StepReport
	for rows.Next() {
		var (
			r                   engine.StepReport
			status              string
			outputs, errMsg     sql.NullString
			blockedBy           sql.NullString
			startedAt, finished sql.NullString
		)
		if err := rows.Scan(&r.Step, &r.Task, &r.Plugin, &r.Tier, &status, &outputs, &errMsg, &blockedBy, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		r.JobID = jobID
		r.Status = engine.Status(status)
		r.Error = errMsg.String
		r.BlockedBy = blockedBy.String
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finished)
		if outputs.Valid {
			if err := json.Unmarshal([]byte(outputs.String), &r.Outputs); err != nil {
				return nil, fmt.Errorf("decode outputs of step %s: %w", r.Step, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(storage.TimeFormat)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
