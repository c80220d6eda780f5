package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/taskengine/internal/types"
	"github.com/mattjoyce/taskengine/internal/validate"
)

// documentFlags are the flags every command taking a document shares.
type documentFlags struct {
	swaps       []string
	swapsFile   string
	noMigration bool
}

func (f *documentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.swaps, "swap", "s", nil, "Select a variant: group=variant (repeatable)")
	cmd.Flags().StringVar(&f.swapsFile, "swaps-file", "", "YAML or JSON mapping of group to variant")
	cmd.Flags().BoolVar(&f.noMigration, "no-migration", false, "Treat retired type names (path, uri) as unknown")
}

func (f *documentFlags) swapMap() (map[string]string, error) {
	swaps := make(map[string]string)
	if f.swapsFile != "" {
		data, err := os.ReadFile(f.swapsFile)
		if err != nil {
			return nil, fmt.Errorf("read swaps file: %w", err)
		}
		if err := yaml.Unmarshal(data, &swaps); err != nil {
			return nil, fmt.Errorf("parse swaps file %s: %w", f.swapsFile, err)
		}
	}
	for _, pair := range f.swaps {
		group, variant, ok := strings.Cut(pair, "=")
		if !ok || group == "" || variant == "" {
			return nil, fmt.Errorf("swap %q: want group=variant", pair)
		}
		swaps[group] = variant
	}
	return swaps, nil
}

func (f *documentFlags) options() []validate.Option {
	if f.noMigration {
		return []validate.Option{validate.WithMigration(types.MigrationNone)}
	}
	return nil
}

// paramFlags supply parameter overrides.
type paramFlags struct {
	params     []string
	paramsFile string
}

func (f *paramFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "Override a parameter: name=value, value parsed as YAML (repeatable)")
	cmd.Flags().StringVar(&f.paramsFile, "params-file", "", "YAML or JSON mapping of parameter overrides")
}

func (f *paramFlags) paramMap() (map[string]any, error) {
	params := make(map[string]any)
	if f.paramsFile != "" {
		data, err := os.ReadFile(f.paramsFile)
		if err != nil {
			return nil, fmt.Errorf("read params file: %w", err)
		}
		if err := yaml.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("parse params file %s: %w", f.paramsFile, err)
		}
	}
	for _, pair := range f.params {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("param %q: want name=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}

// readDocument reads path, or stdin when path is "-".
func readDocument(a *app, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.stdin)
	}
	return os.ReadFile(path)
}
