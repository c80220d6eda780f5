// Package diag defines the structured diagnostics produced while loading and
// validating a task engine document.
package diag

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type classifies the origin of an issue.
type Type string

const (
	Syntax   Type = "SYNTAX"
	Schema   Type = "SCHEMA"
	Semantic Type = "SEMANTIC"
	TypeErr  Type = "TYPE"
)

// Severity decides whether an issue blocks execution.
type Severity string

const (
	Error   Severity = "ERROR"
	Warning Severity = "WARNING"
)

// Issue is one diagnostic. It is a plain value and never mutated after creation.
type Issue struct {
	Type     Type     `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// String renders the issue as "<type>.<severity>: <message>".
func (i Issue) String() string {
	return fmt.Sprintf("%s.%s: %s", strings.ToLower(string(i.Type)), strings.ToLower(string(i.Severity)), i.Message)
}

// Errorf builds an ERROR issue.
func Errorf(t Type, format string, args ...any) Issue {
	return Issue{Type: t, Severity: Error, Message: fmt.Sprintf(format, args...)}
}

// Warnf builds a WARNING issue.
func Warnf(t Type, format string, args ...any) Issue {
	return Issue{Type: t, Severity: Warning, Message: fmt.Sprintf(format, args...)}
}

// HasErrors reports whether any issue has ERROR severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == Error {
			return true
		}
	}
	return false
}

// Count returns the number of errors and warnings.
func Count(issues []Issue) (errs, warns int) {
	for _, i := range issues {
		if i.Severity == Error {
			errs++
		} else {
			warns++
		}
	}
	return errs, warns
}

// Report is the serialisable outcome of a validation run.
type Report struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// NewReport wraps issues in a Report. Valid means no ERROR issues.
func NewReport(issues []Issue) *Report {
	if issues == nil {
		issues = []Issue{}
	}
	return &Report{Valid: !HasErrors(issues), Issues: issues}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Report) string {
	var b strings.Builder

	errs, warns := Count(r.Issues)
	switch {
	case len(r.Issues) == 0:
		b.WriteString("Document valid.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Document valid (%d warning(s))\n", warns)
	default:
		fmt.Fprintf(&b, "Document invalid (%d error(s), %d warning(s))\n", errs, warns)
	}

	for _, i := range r.Issues {
		fmt.Fprintf(&b, "  %s\n", i)
	}
	return b.String()
}

// FormatJSON returns the report as indented JSON.
func FormatJSON(r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
