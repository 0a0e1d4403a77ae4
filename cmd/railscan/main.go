// Command railscan runs a single-stream DeepStream detection pipeline
// (URI source, stream mux, primary inference, on-screen display, render
// sink) and supervises it until end of stream, an error, or Ctrl+C.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/e7canasta/railscan"
	"github.com/e7canasta/railscan/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.version=...".
var version = "v0.1.0"

// Exit codes.
const (
	exitOK         = 0
	exitRuntime    = 1
	exitConfig     = 2
	exitBuild      = 3
	exitTransition = 4
)

// usageError marks command-line mistakes.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// exitCode maps an error returned by a command onto the process exit code.
func exitCode(err error) int {
	var (
		cfgErr   *railscan.ConfigError
		transErr *railscan.TransitionError
		useErr   usageError
	)
	switch {
	case err == nil, errors.Is(err, railscan.ErrInterrupted):
		return exitOK
	case errors.As(err, &cfgErr), errors.As(err, &useErr):
		return exitConfig
	case railscan.IsBuildError(err), errors.Is(err, errEngineUnavailable):
		return exitBuild
	case errors.As(err, &transErr):
		return exitTransition
	default:
		// Runtime errors and anything unclassified
		return exitRuntime
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath  string
	debug       bool
	metricsAddr string
	reportDir   string
}

// load reads the configuration and applies flag and argument overrides.
func (f *globalFlags) load(cmd *cobra.Command, args []string) (config.AppConfig, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if len(args) > 0 {
		cfg.Pipeline.Source.URI = args[0]
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = f.debug
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if cmd.Flags().Changed("report-dir") {
		cfg.ReportDir = f.reportDir
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "railscan",
		Short:         "Run and supervise a DeepStream detection pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve /metrics, /healthz and /status on this address")
	root.PersistentFlags().StringVar(&flags.reportDir, "report-dir", "", "Write a JSON session report into this directory")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(newRunCmd(flags), newConfigCmd(flags), newVersionCmd())
	return root
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config [uri]",
		Short: "Print the effective configuration as YAML",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd, args)
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  maxArgs(0),
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "railscan %s\n", version)
		},
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func main() {
	err := newRootCmd().Execute()
	if err != nil && !errors.Is(err, railscan.ErrInterrupted) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
