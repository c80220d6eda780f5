package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskengine/internal/queue"
	"github.com/mattjoyce/taskengine/internal/storage"
)

func registerSubmitCommand(root *cobra.Command, a *app) {
	var (
		dependsOn []string
		dedupe    bool
		doc       documentFlags
		params    paramFlags
	)

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Validate a document and enqueue it as a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, text, err := prepareFile(a, args[0], &doc)
			if err != nil {
				return err
			}
			overrides, err := params.paramMap()
			if err != nil {
				return exitWith(exitException, err)
			}

			db, err := openState(cmd.Context(), a)
			if err != nil {
				return exitWith(exitException, err)
			}
			defer func() { _ = db.Close() }()

			id, err := queue.New(db).Submit(cmd.Context(), queue.SubmitRequest{
				Document:    text,
				Swaps:       prog.Swaps,
				Params:      overrides,
				Fingerprint: prog.Plan.Fingerprint,
				SubmittedBy: "cli",
				DependsOn:   dependsOn,
				Dedupe:      dedupe,
			})
			if errors.Is(err, queue.ErrDuplicateJob) {
				fmt.Fprintf(a.stderr, "identical job %s is already pending\n", id)
				fmt.Fprintln(a.stdout, id)
				return nil
			}
			if err != nil {
				return exitWith(exitException, err)
			}
			fmt.Fprintln(a.stdout, id)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&dependsOn, "depends-on", nil, "Job id (or unique prefix) that must succeed first (repeatable)")
	cmd.Flags().BoolVar(&dedupe, "dedupe", false, "Reuse an identical queued or running job instead of adding another")
	doc.register(cmd)
	params.register(cmd)
	root.AddCommand(cmd)
}

// openState opens the configured state database.
func openState(ctx context.Context, a *app) (*sql.DB, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	return db, nil
}
