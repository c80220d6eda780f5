package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskengine/internal/inspect"
	"github.com/mattjoyce/taskengine/internal/queue"
	"github.com/mattjoyce/taskengine/internal/tracking"
)

func registerInspectCommand(root *cobra.Command, a *app) {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <job-id>",
		Short: "Show a job with every job it depends on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openState(ctx, a)
			if err != nil {
				return exitWith(exitException, err)
			}
			defer func() { _ = db.Close() }()

			build := inspect.BuildReport
			if asJSON {
				build = inspect.BuildJSONReport
			}
			out, err := build(ctx, queue.New(db), tracking.New(db), args[0])
			if errors.Is(err, queue.ErrJobNotFound) {
				return exitWith(exitIssues, err)
			}
			if err != nil {
				return exitWith(exitException, err)
			}
			fmt.Fprint(a.stdout, out)
			if asJSON {
				fmt.Fprintln(a.stdout)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	root.AddCommand(cmd)
}
