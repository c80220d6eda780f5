// Command taskengine validates, plans and runs experiment documents, either
// in process or through the SQLite job queue.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskengine/internal/config"
	"github.com/mattjoyce/taskengine/internal/log"
	"github.com/mattjoyce/taskengine/internal/plugin"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes shared by every command.
const (
	exitOK        = 0
	exitIssues    = 1
	exitException = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// exitError carries a process exit status through cobra's error return. A nil
// err exits silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(&app{stdin: stdin, stdout: stdout, stderr: stderr})
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitException
}

// app holds what the commands share: output streams, the global flags and
// lazily loaded configuration.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string

	cfg *config.Config
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Resolve(a.configPath)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// plugins returns the registry of plugins compiled into this binary.
func (a *app) plugins() (*plugin.Registry, error) {
	reg := plugin.NewRegistry()
	if err := plugin.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("register builtin plugins: %w", err)
	}
	return reg, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "taskengine",
		Short:         "Task engine for adversarial-ML experiment pipelines",
		Long:          "taskengine validates declarative experiment documents, plans their steps into tiers and executes them against registered plugins.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := a.logLevel
			if level == "" {
				level = "info"
				if cfg, err := a.config(); err == nil {
					level = cfg.Service.LogLevel
				}
			}
			log.SetupWriter(level, a.stderr)
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default $"+config.EnvConfig+" or ./"+config.DefaultFileName+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")

	registerValidateCommand(root, a)
	registerPlanCommand(root, a)
	registerRunCommand(root, a)
	registerSubmitCommand(root, a)
	registerWorkerCommand(root, a)
	registerJobsCommand(root, a)
	registerPluginsCommand(root, a)
	registerDoctorCommand(root, a)
	registerInspectCommand(root, a)
	registerVersionCommand(root, a)
	return root
}
