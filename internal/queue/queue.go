// Package queue is the SQLite-backed job queue between `taskengine submit`
// and the worker.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/taskengine/internal/log"
	"github.com/mattjoyce/taskengine/internal/storage"
)

const maxErrorBytes = 64 * 1024

const jobColumns = `id, document, digest, swaps, params, fingerprint, depends_on, status, submitted_by,
  created_at, started_at, completed_at, last_error`

type Queue struct {
	db *sql.DB
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Submit enqueues a job and returns its id.
func (q *Queue) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if len(req.Document) == 0 {
		return "", fmt.Errorf("document is empty")
	}
	if req.SubmittedBy == "" {
		return "", fmt.Errorf("submitted_by is empty")
	}

	digest, err := Digest(req.Document, req.Swaps, req.Params)
	if err != nil {
		return "", err
	}
	if req.Dedupe {
		var existing string
		err := q.db.QueryRowContext(ctx, `
SELECT id FROM jobs
WHERE digest = ? AND status IN (?, ?)
ORDER BY created_at ASC, rowid ASC
LIMIT 1;
`, digest, StatusQueued, StatusRunning).Scan(&existing)
		if err == nil {
			return existing, fmt.Errorf("%w: %s", ErrDuplicateJob, existing)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("check duplicate job: %w", err)
		}
	}

	swaps, err := encodeJSON(req.Swaps)
	if err != nil {
		return "", fmt.Errorf("encode swaps: %w", err)
	}
	params, err := encodeJSON(req.Params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}

	depIDs := make([]string, 0, len(req.DependsOn))
	for _, dep := range req.DependsOn {
		j, err := q.Get(ctx, dep)
		if err != nil {
			return "", fmt.Errorf("dependency: %w", err)
		}
		depIDs = append(depIDs, j.ID)
	}
	deps, err := json.Marshal(depIDs)
	if err != nil {
		return "", fmt.Errorf("encode dependencies: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(storage.TimeFormat)

	_, err = q.db.ExecContext(ctx, `
INSERT INTO jobs(id, document, digest, swaps, params, fingerprint, depends_on, status, submitted_by, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, string(req.Document), digest, swaps, params, req.Fingerprint, string(deps), StatusQueued, req.SubmittedBy, now)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}

	log.WithComponent("queue").Info("job submitted", "job_id", id, "digest", digest)
	return id, nil
}

// Dequeue claims the oldest queued job whose dependencies all succeeded and
// marks it running. Returns (nil, nil) if no job is ready.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	if _, err := q.failOrphans(ctx); err != nil {
		return nil, err
	}

	nowS := time.Now().UTC().Format(storage.TimeFormat)

	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT j.id
  FROM jobs j
  WHERE j.status = ?
    AND NOT EXISTS (
      SELECT 1 FROM json_each(j.depends_on) d
      LEFT JOIN jobs p ON p.id = d.value
      WHERE p.status IS NOT ?
    )
  ORDER BY j.created_at ASC, j.rowid ASC
  LIMIT 1
)
UPDATE jobs
SET status = ?, started_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING `+jobColumns+`;
`, StatusQueued, StatusSucceeded, StatusRunning, nowS)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return j, nil
}

// Complete marks a running job terminal.
func (q *Queue) Complete(ctx context.Context, jobID string, status Status, lastError *string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is empty")
	}
	if !status.Terminal() {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	var errVal any
	if lastError != nil {
		s := *lastError
		if len(s) > maxErrorBytes {
			s = s[:maxErrorBytes]
		}
		errVal = s
	}

	res, err := q.db.ExecContext(ctx, `
UPDATE jobs
SET status = ?, completed_at = ?, last_error = ?
WHERE id = ? AND status = ?;
`, status, time.Now().UTC().Format(storage.TimeFormat), errVal, jobID, StatusRunning)
	if err != nil {
		return fmt.Errorf("update job completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job completion: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no running job %s", ErrJobNotFound, jobID)
	}
	return nil
}

// failOrphans fails queued jobs with a failed dependency, repeating until
// chains of dependents are settled.
func (q *Queue) failOrphans(ctx context.Context) (int, error) {
	total := 0
	for {
		res, err := q.db.ExecContext(ctx, `
UPDATE jobs
SET status = ?, completed_at = ?, last_error = 'dependency job failed'
WHERE status = ?
  AND EXISTS (
    SELECT 1 FROM json_each(jobs.depends_on) d
    JOIN jobs p ON p.id = d.value
    WHERE p.status = ?
  );
`, StatusFailed, time.Now().UTC().Format(storage.TimeFormat), StatusQueued, StatusFailed)
		if err != nil {
			return total, fmt.Errorf("fail orphaned jobs: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("fail orphaned jobs: %w", err)
		}
		if n == 0 {
			return total, nil
		}
		total += int(n)
		log.WithComponent("queue").Warn("failed jobs with failed dependencies", "count", n)
	}
}

// Requeue returns jobs left running by a worker that died to the queue.
func (q *Queue) Requeue(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE jobs SET status = ?, started_at = NULL WHERE status = ?;
`, StatusQueued, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("requeue running jobs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Get returns one job by id. A unique id prefix is accepted.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrJobNotFound)
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE id = ? OR id LIKE ? ESCAPE '\'
ORDER BY created_at ASC
LIMIT 2;
`, id, escapeLike(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var found []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("get job: %w", err)
		}
		if j.ID == id {
			return j, nil
		}
		found = append(found, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("job id prefix %q is ambiguous", id)
}

// List returns jobs newest first.
func (q *Queue) List(ctx context.Context, f ListFilter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		j            Job
		document     string
		swaps        string
		params       string
		deps         string
		statusS      string
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
		lastError    sql.NullString
	)
	if err := row.Scan(
		&j.ID, &document, &j.Digest, &swaps, &params, &j.Fingerprint, &deps, &statusS, &j.SubmittedBy,
		&createdAtS, &startedAtS, &completedAtS, &lastError,
	); err != nil {
		return nil, err
	}

	j.Document = []byte(document)
	j.Status = Status(statusS)
	if err := json.Unmarshal([]byte(swaps), &j.Swaps); err != nil {
		return nil, fmt.Errorf("decode swaps of job %s: %w", j.ID, err)
	}
	decoded, err := decodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("decode params of job %s: %w", j.ID, err)
	}
	j.Params = decoded
	if err := json.Unmarshal([]byte(deps), &j.DependsOn); err != nil {
		return nil, fmt.Errorf("decode dependencies of job %s: %w", j.ID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		j.CreatedAt = t
	}
	j.StartedAt = parseTime(startedAtS)
	j.CompletedAt = parseTime(completedAtS)
	if lastError.Valid {
		j.LastError = &lastError.String
	}
	return &j, nil
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// decodeParams decodes stored parameter overrides. Integral numbers come back
// as int, so integer inputs see the same values a caller submitted.
func decodeParams(raw string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, err
	}
	for k, v := range params {
		params[k] = fromNumber(v)
	}
	return params, nil
}

func fromNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = fromNumber(t[i])
		}
	case map[string]any:
		for k := range t {
			t[k] = fromNumber(t[k])
		}
	}
	return v
}

func encodeJSON[T any](m map[string]T) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
