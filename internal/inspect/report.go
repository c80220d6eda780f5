// Package inspect renders the lineage of a queued job: the job itself and
// every job it transitively depends on, with the step outcomes recorded for
// each.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/taskengine/internal/engine"
	"github.com/mattjoyce/taskengine/internal/queue"
)

// JobSource looks jobs up by id or unique prefix.
type JobSource interface {
	Get(ctx context.Context, id string) (*queue.Job, error)
}

// StepSource returns the recorded step outcomes of a job.
type StepSource interface {
	Steps(ctx context.Context, jobID string) ([]engine.StepReport, error)
}

// Report is the structured JSON representation of a lineage report.
type Report struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Hops   int    `json:"hops"`
	Jobs   []Hop  `json:"jobs"`
}

// Hop is one job in the lineage, ancestors first.
type Hop struct {
	Hop         int                 `json:"hop"`
	Depth       int                 `json:"depth"`
	JobID       string              `json:"job_id"`
	Status      string              `json:"status"`
	Fingerprint string              `json:"fingerprint"`
	DependsOn   []string            `json:"depends_on,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	LastError   string              `json:"last_error,omitempty"`
	StepCounts  map[string]int      `json:"step_counts"`
	Steps       []engine.StepReport `json:"steps"`
}

// BuildReport renders a terminal-friendly lineage report for a job.
func BuildReport(ctx context.Context, jobs JobSource, steps StepSource, jobID string) (string, error) {
	report, err := Gather(ctx, jobs, steps, jobID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Lineage Report\n")
	fmt.Fprintf(&out, "Job ID      : %s\n", report.JobID)
	fmt.Fprintf(&out, "Status      : %s\n", report.Status)
	fmt.Fprintf(&out, "Hops        : %d\n", report.Hops)
	fmt.Fprintf(&out, "\n")

	for _, hop := range report.Jobs {
		fmt.Fprintf(&out, "[%d] %s (%s, depth %d)\n", hop.Hop, hop.JobID, hop.Status, hop.Depth)
		fmt.Fprintf(&out, "    fingerprint : %s\n", hop.Fingerprint)
		if len(hop.DependsOn) == 0 {
			fmt.Fprintf(&out, "    depends_on  : <none>\n")
		} else {
			fmt.Fprintf(&out, "    depends_on  : %s\n", strings.Join(hop.DependsOn, ", "))
		}
		if hop.LastError != "" {
			lines := strings.Split(strings.TrimSpace(hop.LastError), "\n")
			fmt.Fprintf(&out, "    error       : %s\n", lines[0])
			for _, line := range lines[1:] {
				fmt.Fprintf(&out, "                  %s\n", line)
			}
		}
		if len(hop.Steps) == 0 {
			fmt.Fprintf(&out, "    steps       : <none recorded>\n")
		} else {
			fmt.Fprintf(&out, "    steps       : %s\n", formatCounts(hop.StepCounts))
			for _, s := range hop.Steps {
				fmt.Fprintf(&out, "      - %s (%s) %s\n", s.Step, s.Task, s.Status)
			}
		}
		fmt.Fprintf(&out, "\n")
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON lineage report.
func BuildJSONReport(ctx context.Context, jobs JobSource, steps StepSource, jobID string) (string, error) {
	report, err := Gather(ctx, jobs, steps, jobID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

// Gather walks depends_on from jobID and collects every job reached. Jobs
// are ordered by creation time, so ancestors come before the job itself.
func Gather(ctx context.Context, jobs JobSource, steps StepSource, jobID string) (*Report, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("job id is required")
	}

	root, err := jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	type visit struct {
		job   *queue.Job
		depth int
	}
	seen := map[string]bool{root.ID: true}
	visited := []visit{{job: root}}
	for i := 0; i < len(visited); i++ {
		cur := visited[i]
		for _, dep := range cur.job.DependsOn {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			parent, err := jobs.Get(ctx, dep)
			if errors.Is(err, queue.ErrJobNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load dependency %s: %w", dep, err)
			}
			visited = append(visited, visit{job: parent, depth: cur.depth + 1})
		}
	}

	sort.SliceStable(visited, func(i, j int) bool {
		a, b := visited[i].job, visited[j].job
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return visited[i].depth > visited[j].depth
	})

	report := &Report{
		JobID:  root.ID,
		Status: string(root.Status),
		Hops:   len(visited),
		Jobs:   make([]Hop, 0, len(visited)),
	}
	for i, v := range visited {
		recorded, err := steps.Steps(ctx, v.job.ID)
		if err != nil {
			return nil, fmt.Errorf("load steps of %s: %w", v.job.ID, err)
		}
		hop := Hop{
			Hop:         i + 1,
			Depth:       v.depth,
			JobID:       v.job.ID,
			Status:      string(v.job.Status),
			Fingerprint: v.job.Fingerprint,
			DependsOn:   v.job.DependsOn,
			CreatedAt:   v.job.CreatedAt,
			StepCounts:  make(map[string]int),
			Steps:       recorded,
		}
		if v.job.LastError != nil {
			hop.LastError = *v.job.LastError
		}
		for _, s := range recorded {
			hop.StepCounts[string(s.Status)]++
		}
		report.Jobs = append(report.Jobs, hop)
	}

	return report, nil
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d %s", counts[k], strings.ToLower(k)))
	}
	return strings.Join(parts, ", ")
}
