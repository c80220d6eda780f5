package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskengine/internal/diag"
	"github.com/mattjoyce/taskengine/internal/engine"
)

type planStep struct {
	Step      string   `json:"step"`
	Task      string   `json:"task"`
	Plugin    string   `json:"plugin"`
	Tier      int      `json:"tier"`
	DependsOn []string `json:"depends_on"`
}

type planOutput struct {
	Fingerprint string       `json:"fingerprint"`
	Tiers       [][]string   `json:"tiers"`
	Steps       []planStep   `json:"steps"`
	Warnings    []diag.Issue `json:"warnings,omitempty"`
}

func registerPlanCommand(root *cobra.Command, a *app) {
	var (
		asJSON bool
		doc    documentFlags
	)

	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Print the tiered execution plan of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, _, err := prepareFile(a, args[0], &doc)
			if err != nil {
				return err
			}

			out := describePlan(prog)
			if asJSON {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return exitWith(exitException, err)
				}
				fmt.Fprintln(a.stdout, string(data))
				return nil
			}

			fmt.Fprintf(a.stdout, "fingerprint: %s\n", out.Fingerprint)
			for i, tier := range out.Tiers {
				names := make([]string, len(tier))
				for j, name := range tier {
					task, _ := prog.Task(name)
					names[j] = fmt.Sprintf("%s (%s)", name, task.Name)
				}
				fmt.Fprintf(a.stdout, "tier %d: %s\n", i, strings.Join(names, ", "))
			}
			for _, w := range out.Warnings {
				fmt.Fprintln(a.stderr, w)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	doc.register(cmd)
	root.AddCommand(cmd)
}

func describePlan(prog *engine.Program) planOutput {
	out := planOutput{
		Fingerprint: prog.Plan.Fingerprint,
		Tiers:       prog.Plan.Tiers,
		Steps:       []planStep{},
		Warnings:    prog.Warnings,
	}
	for _, name := range prog.Plan.Steps() {
		task, _ := prog.Task(name)
		tier, _ := prog.Plan.TierOf(name)
		deps := prog.Graph.Dependencies(name)
		if deps == nil {
			deps = []string{}
		}
		out.Steps = append(out.Steps, planStep{
			Step:      name,
			Task:      task.Name,
			Plugin:    task.Plugin,
			Tier:      tier,
			DependsOn: deps,
		})
	}
	return out
}

// prepareFile loads, validates and plans the document at path. Invalid
// documents print their issues and exit 1; unreadable ones exit 2.
func prepareFile(a *app, path string, doc *documentFlags) (*engine.Program, []byte, error) {
	text, err := readDocument(a, path)
	if err != nil {
		return nil, nil, exitWith(exitException, err)
	}
	swaps, err := doc.swapMap()
	if err != nil {
		return nil, nil, exitWith(exitException, err)
	}

	prog, issues, err := engine.Prepare(text, swaps, doc.options()...)
	if engine.IsInvalid(err) {
		fmt.Fprint(a.stderr, diag.FormatHuman(diag.NewReport(issues)))
		return nil, nil, exitWith(exitIssues, nil)
	}
	if err != nil {
		return nil, nil, exitWith(exitException, fmt.Errorf("%s: %w", path, err))
	}
	return prog, text, nil
}
