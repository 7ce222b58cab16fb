// Package cli provides the specflow command-line host.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/felixgeelhaar/specflow"
	"github.com/felixgeelhaar/specflow/domain/config"
	infraconfig "github.com/felixgeelhaar/specflow/infrastructure/config"
	"github.com/felixgeelhaar/specflow/infrastructure/logging"
)

// Version information set at build time.
var (
	Version   = specflow.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath  string
	logLevel    string
	showMetrics bool

	// meterReader collects metrics when --metrics is set.
	meterReader   *sdkmetric.ManualReader
	meterProvider *sdkmetric.MeterProvider
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "specflow",
		Short: "Evolve operation contracts from production telemetry",
		Long: `specflow analyzes operation telemetry, detects anomalies against
thresholds and baselines, and turns them into reviewable contract
suggestions. Suggestions stay pending until a reviewer approves or
rejects them; approved suggestions are materialized by the configured writer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.initLogging()
		},
	}

	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Path to configuration file (YAML or JSON)")
	app.root.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Log level (overrides config)")
	app.root.PersistentFlags().BoolVar(&app.showMetrics, "metrics", false, "Print collected metrics on exit")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newAnalyzeCmd(),
		app.newSuggestionsCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := a.root.ExecuteContext(ctx)
	if a.showMetrics && a.meterReader != nil {
		if merr := a.printMetrics(context.Background()); merr != nil && err == nil {
			err = merr
		}
	}
	return err
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) initLogging() {
	var level, format string
	if engine, err := a.peekConfig(); err == nil {
		level, format = engine.Logging.Level, engine.Logging.Format
	}
	if a.logLevel != "" {
		level = a.logLevel
	}
	logging.Init(logging.FromSettings(level, format, a.stderr))
}

// peekConfig loads the configuration without validation so logging can be
// set up before the command reports configuration errors.
func (a *App) peekConfig() (*config.EngineConfig, error) {
	if a.configPath == "" {
		return config.DefaultEngineConfig(), nil
	}
	return infraconfig.NewLoaderWithOptions(infraconfig.WithValidation(false)).LoadFile(a.configPath)
}

// loadConfig loads and validates the configuration. Without --config the
// in-memory defaults apply.
func (a *App) loadConfig() (*config.EngineConfig, error) {
	if a.configPath == "" {
		cfg := config.DefaultEngineConfig()
		if errs := config.NewValidator().Validate(cfg); errs.HasErrors() {
			return nil, errs
		}
		return cfg, nil
	}
	cfg, err := infraconfig.NewLoader().LoadFile(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(a.stdout, "specflow version %s\n", Version)
			_, _ = fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			_, _ = fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a specflow configuration file.

Examples:
  # Validate a configuration file
  specflow validate -c specflow.yaml

  # Fail on unset environment variables
  specflow validate -c specflow.yaml --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.configPath == "" {
				return fmt.Errorf("configuration file path is required (-c flag)")
			}
			loader := infraconfig.NewLoaderWithOptions(infraconfig.WithStrictEnv(strict))
			cfg, err := loader.LoadFile(a.configPath)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			_, _ = fmt.Fprintf(a.stdout, "Configuration %q is valid.\n", cfg.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on unset environment variables")
	return cmd
}
