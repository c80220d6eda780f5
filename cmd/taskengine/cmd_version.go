package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func registerVersionCommand(root *cobra.Command, a *app) {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if asJSON {
				return printJSON(a, map[string]string{
					"version":    version,
					"commit":     gitCommit,
					"build_date": buildDate,
					"go":         runtime.Version(),
				})
			}
			fmt.Fprintf(a.stdout, "taskengine %s (commit %s, built %s, %s)\n", version, gitCommit, buildDate, runtime.Version())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	root.AddCommand(cmd)
}
