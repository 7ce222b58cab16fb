package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/specflow/application"
	"github.com/felixgeelhaar/specflow/domain/analytics"
	"github.com/felixgeelhaar/specflow/domain/contract"
	"github.com/felixgeelhaar/specflow/domain/operation"
	"github.com/felixgeelhaar/specflow/infrastructure/logging"
	"github.com/felixgeelhaar/specflow/infrastructure/storage/memory"
)

// analyzeOptions holds options for the analyze command.
type analyzeOptions struct {
	samplesPath string
	specsPath   string
	operations  []string
	since       time.Duration
	limit       int
	jsonOutput  bool
	watch       bool
}

// newAnalyzeCmd creates the analyze command.
func (a *App) newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one evolution pass over operation telemetry",
		Long: `Analyze operation telemetry, detect anomalies and submit suggestions.

Samples are read from a JSON file (--samples) or from the configured
telemetry backend over the trailing window (--since, default telemetry.window).

Examples:
  # Analyze samples exported to a file
  specflow analyze --samples samples.json

  # Analyze the last six hours from ClickHouse
  specflow analyze -c specflow.yaml --since 6h

  # Restrict to one operation version and print JSON
  specflow analyze -c specflow.yaml --operation search.query:1 --json

  # Re-run whenever the samples file changes
  specflow analyze --samples samples.json --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalyze(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.samplesPath, "samples", "", "Path to a JSON array of samples")
	cmd.Flags().StringVar(&opts.specsPath, "specs", "", "Path to a JSON array of current contracts")
	cmd.Flags().StringSliceVar(&opts.operations, "operation", nil, "Operation to analyze as name:version (repeatable)")
	cmd.Flags().DurationVar(&opts.since, "since", 0, "Trailing window to read from the backend (overrides telemetry.window)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum rows to read from the backend")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-run when the samples file changes")

	return cmd
}

func (a *App) runAnalyze(ctx context.Context, opts *analyzeOptions) error {
	if opts.watch && opts.samplesPath == "" {
		return fmt.Errorf("--watch requires --samples")
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	rt, err := a.newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	var reader application.SampleReader
	if opts.samplesPath == "" {
		reader, err = rt.openReader(ctx)
		if err != nil {
			return err
		}
		if reader == nil {
			return fmt.Errorf("no samples: pass --samples or configure telemetry.backend")
		}
	}

	var catalog *memory.SpecCatalog
	if opts.specsPath != "" {
		catalog, err = readSpecs(opts.specsPath)
		if err != nil {
			return err
		}
	}

	pipeline, err := rt.pipeline(reader, catalog)
	if err != nil {
		return err
	}

	if opts.samplesPath != "" {
		if err := a.analyzeFile(ctx, pipeline, opts); err != nil {
			return err
		}
		if opts.watch {
			return a.watchSamples(ctx, pipeline, opts)
		}
		return nil
	}

	q, err := backendQuery(opts, cfg.Telemetry.Window.Duration(), time.Now().UTC())
	if err != nil {
		return err
	}
	result, err := pipeline.Run(ctx, q)
	if err != nil {
		return err
	}
	return a.printResult(result, opts.jsonOutput)
}

func (a *App) analyzeFile(ctx context.Context, pipeline *application.Pipeline, opts *analyzeOptions) error {
	samples, err := readSamples(opts.samplesPath)
	if err != nil {
		return err
	}
	ops, err := parseOperations(opts.operations)
	if err != nil {
		return err
	}
	if len(ops) > 0 {
		samples = filterSamples(samples, ops)
	}

	result, err := pipeline.Analyze(ctx, samples, nil)
	if err != nil {
		return err
	}
	return a.printResult(result, opts.jsonOutput)
}

// watchSamples re-runs the file analysis on every write to the samples file
// until the context ends.
func (a *App) watchSamples(ctx context.Context, pipeline *application.Pipeline, opts *analyzeOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target, err := filepath.Abs(opts.samplesPath)
	if err != nil {
		return err
	}
	// Watch the directory so editors that replace the file are seen.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", opts.samplesPath, err)
	}

	logging.Info().Add(logging.Str("path", target)).Msg("watching samples")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := a.analyzeFile(ctx, pipeline, opts); err != nil {
				logging.Error().Add(logging.ErrorField(err)).Msg("analysis failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn().Add(logging.ErrorField(err)).Msg("watch error")
		}
	}
}

func readSamples(path string) ([]operation.Sample, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- samples path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}
	var samples []operation.Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("failed to parse samples: %w", err)
	}
	return samples, nil
}

// specEntry is one element of a --specs file.
type specEntry struct {
	Operation operation.Coordinate `json:"operation"`
	Spec      *contract.Spec       `json:"spec"`
}

func readSpecs(path string) (*memory.SpecCatalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- specs path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read specs: %w", err)
	}
	var entries []specEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse specs: %w", err)
	}

	catalog := memory.NewSpecCatalog()
	for i, e := range entries {
		if e.Operation.IsZero() || e.Spec == nil {
			return nil, fmt.Errorf("specs entry %d needs an operation and a spec", i)
		}
		catalog.Put(e.Operation, e.Spec)
	}
	return catalog, nil
}

// parseOperations parses name:version flags. A bare name means version 1.
func parseOperations(values []string) ([]operation.Coordinate, error) {
	out := make([]operation.Coordinate, 0, len(values))
	for _, v := range values {
		name, version, found := strings.Cut(v, ":")
		if name == "" {
			return nil, fmt.Errorf("invalid operation %q", v)
		}
		n := 1
		if found {
			parsed, err := strconv.Atoi(version)
			if err != nil || parsed < 1 {
				return nil, fmt.Errorf("invalid operation version in %q", v)
			}
			n = parsed
		}
		out = append(out, operation.NewCoordinate(name, n))
	}
	return out, nil
}

func filterSamples(samples []operation.Sample, ops []operation.Coordinate) []operation.Sample {
	out := make([]operation.Sample, 0, len(samples))
	for _, s := range samples {
		for _, op := range ops {
			if s.Operation.Name == op.Name && s.Operation.Version == op.Version {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func backendQuery(opts *analyzeOptions, window time.Duration, now time.Time) (analytics.Query, error) {
	ops, err := parseOperations(opts.operations)
	if err != nil {
		return analytics.Query{}, err
	}
	if opts.since > 0 {
		window = opts.since
	}
	q := analytics.Query{Operations: ops, Limit: opts.limit}
	if window > 0 {
		q.DateRange = analytics.DateRange{From: now.Add(-window), To: now}
	}
	return q, nil
}
