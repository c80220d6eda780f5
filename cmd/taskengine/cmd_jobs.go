package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskengine/internal/engine"
	"github.com/mattjoyce/taskengine/internal/queue"
	"github.com/mattjoyce/taskengine/internal/tracking"
)

type jobView struct {
	ID          string              `json:"id"`
	Status      queue.Status        `json:"status"`
	Digest      string              `json:"digest"`
	Fingerprint string              `json:"fingerprint"`
	Swaps       map[string]string   `json:"swaps,omitempty"`
	Params      map[string]any      `json:"params,omitempty"`
	DependsOn   []string            `json:"depends_on,omitempty"`
	SubmittedBy string              `json:"submitted_by"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	LastError   *string             `json:"last_error,omitempty"`
	Steps       []engine.StepReport `json:"steps,omitempty"`
}

func newJobView(j *queue.Job) jobView {
	return jobView{
		ID:          j.ID,
		Status:      j.Status,
		Digest:      j.Digest,
		Fingerprint: j.Fingerprint,
		Swaps:       j.Swaps,
		Params:      j.Params,
		DependsOn:   j.DependsOn,
		SubmittedBy: j.SubmittedBy,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		LastError:   j.LastError,
	}
}

func registerJobsCommand(root *cobra.Command, a *app) {
	var (
		status string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "jobs [id]",
		Short: "List queued jobs, or show one job with its steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openState(ctx, a)
			if err != nil {
				return exitWith(exitException, err)
			}
			defer func() { _ = db.Close() }()
			q := queue.New(db)

			if len(args) == 1 {
				job, err := q.Get(ctx, args[0])
				if err != nil {
					return exitWith(exitIssues, err)
				}
				view := newJobView(job)
				view.Steps, err = tracking.New(db).Steps(ctx, job.ID)
				if err != nil {
					return exitWith(exitException, err)
				}
				if asJSON {
					return printJSON(a, view)
				}
				printJob(a, view)
				return nil
			}

			jobs, err := q.List(ctx, queue.ListFilter{Status: queue.Status(status), Limit: limit})
			if err != nil {
				return exitWith(exitException, err)
			}
			views := make([]jobView, 0, len(jobs))
			for _, j := range jobs {
				views = append(views, newJobView(j))
			}
			if asJSON {
				return printJSON(a, views)
			}

			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tDEPENDS ON")
			for _, v := range views {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.ID, v.Status, v.CreatedAt.Local().Format(time.DateTime), strings.Join(shortIDs(v.DependsOn), ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only jobs with this status (queued, running, succeeded, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	root.AddCommand(cmd)
}

func printJob(a *app, v jobView) {
	fmt.Fprintf(a.stdout, "job:         %s\n", v.ID)
	fmt.Fprintf(a.stdout, "status:      %s\n", v.Status)
	fmt.Fprintf(a.stdout, "fingerprint: %s\n", v.Fingerprint)
	fmt.Fprintf(a.stdout, "digest:      %s\n", v.Digest)
	fmt.Fprintf(a.stdout, "created:     %s\n", v.CreatedAt.Local().Format(time.DateTime))
	if len(v.Swaps) > 0 {
		data, _ := json.Marshal(v.Swaps)
		fmt.Fprintf(a.stdout, "swaps:       %s\n", data)
	}
	if len(v.DependsOn) > 0 {
		fmt.Fprintf(a.stdout, "depends on:  %s\n", strings.Join(v.DependsOn, ", "))
	}
	if v.LastError != nil {
		fmt.Fprintf(a.stdout, "error:       %s\n", *v.LastError)
	}
	if len(v.Steps) == 0 {
		return
	}

	fmt.Fprintln(a.stdout)
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tTASK\tTIER\tSTATUS\tDURATION\tDETAIL")
	for _, s := range v.Steps {
		detail := s.Error
		if s.BlockedBy != "" {
			detail = "blocked by " + s.BlockedBy
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", s.Step, s.Task, s.Tier, s.Status, s.Duration().Round(time.Millisecond), detail)
	}
	_ = w.Flush()
}

func printJSON(a *app, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return exitWith(exitException, err)
	}
	fmt.Fprintln(a.stdout, string(data))
	return nil
}

func shortIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = truncate(id, 8)
	}
	return out
}
