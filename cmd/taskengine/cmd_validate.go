package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskengine/internal/diag"
	"github.com/mattjoyce/taskengine/internal/engine"
)

func registerValidateCommand(root *cobra.Command, a *app) {
	var (
		quiet  int
		asJSON bool
		doc    documentFlags
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a document and report every issue",
		Long: `Check a document and report every issue found by the syntax, schema,
semantic and type passes. Variant groups are resolved with --swap first.

Exit status is 0 when no issue is found, 1 when any issue (error or warning)
is found and 2 when the document could not be read or parsed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := validateFile(a, args[0], &doc)
			if err != nil {
				if quiet >= 2 {
					return exitWith(exitException, nil)
				}
				return exitWith(exitException, err)
			}

			report := diag.NewReport(issues)
			switch {
			case quiet >= 2:
			case quiet == 1:
				fmt.Fprintln(a.stdout, summaryLine(issues))
			case asJSON:
				out, err := diag.FormatJSON(report)
				if err != nil {
					return exitWith(exitException, err)
				}
				fmt.Fprintln(a.stdout, out)
			default:
				fmt.Fprint(a.stdout, diag.FormatHuman(report))
			}

			if len(issues) > 0 {
				return exitWith(exitIssues, nil)
			}
			return nil
		},
	}

	cmd.Flags().CountVarP(&quiet, "quiet", "q", "Print only a summary line; repeat to print nothing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	doc.register(cmd)
	root.AddCommand(cmd)
}

// validateFile returns the issues of the document at path. The error is
// reserved for documents that cannot be read or parsed at all.
func validateFile(a *app, path string, doc *documentFlags) ([]diag.Issue, error) {
	text, err := readDocument(a, path)
	if err != nil {
		return nil, err
	}
	swaps, err := doc.swapMap()
	if err != nil {
		return nil, err
	}

	_, issues, err := engine.Prepare(text, swaps, doc.options()...)
	if err != nil && !engine.IsInvalid(err) {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return issues, nil
}

func summaryLine(issues []diag.Issue) string {
	if len(issues) == 0 {
		return "no issues"
	}
	errs, warns := diag.Count(issues)
	return fmt.Sprintf("%d issue(s): %d error(s), %d warning(s)", len(issues), errs, warns)
}
