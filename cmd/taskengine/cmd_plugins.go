package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskengine/internal/document"
)

func registerPluginsCommand(root *cobra.Command, a *app) {
	var (
		asJSON bool
		asDoc  bool
	)

	cmd := &cobra.Command{
		Use:   "plugins [ref...]",
		Short: "List registered plugins",
		Long: `List registered plugins with their inputs and outputs.

With --document, print a tasks document for the given refs (or every plugin)
that can be used as the starting point of an experiment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.plugins()
			if err != nil {
				return exitWith(exitException, err)
			}

			all := reg.All()
			refs := args
			if len(refs) == 0 {
				for _, p := range all {
					refs = append(refs, p.Ref)
				}
			}

			if asDoc {
				tasks, err := reg.TaskSpecs(refs...)
				if err != nil {
					return exitWith(exitIssues, err)
				}
				data, err := document.Build(document.BuildSpec{Tasks: tasks})
				if err != nil {
					return exitWith(exitException, err)
				}
				_, err = a.stdout.Write(data)
				return err
			}

			if asJSON {
				return printJSON(a, all)
			}

			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REF\tINPUTS\tOUTPUTS\tDESCRIPTION")
			for _, p := range all {
				ins := make([]string, 0, len(p.Inputs))
				for _, in := range p.Inputs {
					s := in.Name + ":" + in.Type
					if in.Optional {
						s += "?"
					}
					ins = append(ins, s)
				}
				outs := make([]string, 0, len(p.Outputs))
				for _, out := range p.Outputs {
					outs = append(outs, out.Name+":"+out.Type)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Ref, strings.Join(ins, ", "), strings.Join(outs, ", "), p.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().BoolVar(&asDoc, "document", false, "Print a tasks document for the plugins")
	root.AddCommand(cmd)
}
