package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskengine/internal/engine"
)

func registerRunCommand(root *cobra.Command, a *app) {
	var (
		concurrency int
		timeout     time.Duration
		asJSON      bool
		doc         documentFlags
		params      paramFlags
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a document in this process",
		Long: `Execute a document in this process and print each step's outcome.

Exit status is 0 when every step succeeded, 1 when the document is invalid or
any step failed and 2 when the document could not be read.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return exitWith(exitException, err)
			}
			if concurrency <= 0 {
				concurrency = cfg.Engine.Concurrency
			}
			if timeout <= 0 {
				timeout = cfg.Engine.JobTimeout
			}

			prog, _, err := prepareFile(a, args[0], &doc)
			if err != nil {
				return err
			}
			overrides, err := params.paramMap()
			if err != nil {
				return exitWith(exitException, err)
			}
			reg, err := a.plugins()
			if err != nil {
				return exitWith(exitException, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(engine.WithJobID(ctx, uuid.NewString()), timeout)
			defer cancel()

			out, runErr := engine.NewExecutor(reg, engine.WithConcurrency(concurrency)).
				Execute(ctx, prog, engine.Params(overrides))
			if out == nil {
				return exitWith(exitException, runErr)
			}

			if asJSON {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return exitWith(exitException, err)
				}
				fmt.Fprintln(a.stdout, string(data))
			} else {
				printOutcome(a, out)
			}

			if runErr != nil {
				if errors.Is(runErr, context.DeadlineExceeded) {
					runErr = fmt.Errorf("timed out after %v", timeout)
				}
				return exitWith(exitIssues, runErr)
			}
			if out.Status != engine.StatusSucceeded {
				return exitWith(exitIssues, nil)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Steps run at once within a tier (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Job timeout (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the outcome as JSON")
	doc.register(cmd)
	params.register(cmd)
	root.AddCommand(cmd)
}

func printOutcome(a *app, out *engine.Outcome) {
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tTASK\tTIER\tSTATUS\tDURATION\tDETAIL")
	for _, s := range out.Steps {
		detail := s.Error
		if s.Status == engine.StatusBlocked {
			detail = "blocked by " + s.BlockedBy
		}
		if s.Status == engine.StatusSucceeded && len(s.Outputs) > 0 {
			data, err := json.Marshal(s.Outputs)
			if err == nil {
				detail = truncate(string(data), 80)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", s.Step, s.Task, s.Tier, s.Status, s.Duration().Round(time.Millisecond), detail)
	}
	_ = w.Flush()
	fmt.Fprintf(a.stdout, "job %s %s\n", out.JobID, out.Status)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
