package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskengine/internal/doctor"
)

func registerDoctorCommand(root *cobra.Command, a *app) {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and registered plugins",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return exitWith(exitException, err)
			}
			reg, err := a.plugins()
			if err != nil {
				return exitWith(exitException, err)
			}

			r := doctor.New(cfg, reg).Validate()
			if asJSON {
				out, err := doctor.FormatJSON(r)
				if err != nil {
					return exitWith(exitException, err)
				}
				fmt.Fprintln(a.stdout, out)
			} else {
				fmt.Fprint(a.stdout, doctor.FormatHuman(r))
			}

			if !r.Valid {
				return exitWith(exitIssues, nil)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	root.AddCommand(cmd)
}
