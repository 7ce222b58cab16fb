package cli

import (
	"context"
	"errors"
	"fmt"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/felixgeelhaar/specflow/application"
	"github.com/felixgeelhaar/specflow/domain/approval"
	"github.com/felixgeelhaar/specflow/domain/config"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
	infraanalytics "github.com/felixgeelhaar/specflow/infrastructure/analytics"
	"github.com/felixgeelhaar/specflow/infrastructure/llm"
	"github.com/felixgeelhaar/specflow/infrastructure/notification"
	"github.com/felixgeelhaar/specflow/infrastructure/resilience"
	"github.com/felixgeelhaar/specflow/infrastructure/storage/clickhouse"
	"github.com/felixgeelhaar/specflow/infrastructure/storage/filesystem"
	"github.com/felixgeelhaar/specflow/infrastructure/storage/memory"
	"github.com/felixgeelhaar/specflow/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/specflow/infrastructure/storage/s3"
	"github.com/felixgeelhaar/specflow/infrastructure/storage/sqlite"
	infrasuggestion "github.com/felixgeelhaar/specflow/infrastructure/suggestion"
	"github.com/felixgeelhaar/specflow/infrastructure/telemetry"
)

// runtime is the set of components built from one configuration.
type runtime struct {
	cfg       *config.EngineConfig
	metrics   telemetry.Metrics
	service   *application.EvolutionService
	generator suggestion.Generator
	reader    application.SampleReader

	closers []func() error
}

// Close releases every opened backend.
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) newRuntime(ctx context.Context, cfg *config.EngineConfig) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg, metrics: a.metrics()}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	repo, err := rt.openRepository(ctx)
	if err != nil {
		return nil, err
	}

	opts := []application.ServiceOption{application.WithServiceMetrics(rt.metrics)}
	writer, err := openWriter(ctx, cfg.Storage.Writer)
	if err != nil {
		return nil, err
	}
	if writer != nil {
		opts = append(opts, application.WithWriter(writer))
	}
	if requester := newRequester(cfg.Approval); requester != nil {
		opts = append(opts, application.WithApprovalRequester(requester))
	}

	rt.service, err = application.NewEvolutionService(repo, opts...)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// metrics returns the OpenTelemetry recorder when --metrics is set.
func (a *App) metrics() telemetry.Metrics {
	if !a.showMetrics {
		return telemetry.NoopMetricsProvider{}
	}
	if a.meterProvider == nil {
		a.meterReader = sdkmetric.NewManualReader()
		a.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(a.meterReader))
	}
	cfg := telemetry.DefaultMetricsConfig()
	cfg.MeterVersion = Version
	cfg.Provider = a.meterProvider
	mp := telemetry.NewMetricsProvider(cfg)
	if mp.Error() != nil {
		return telemetry.NoopMetricsProvider{}
	}
	return mp
}

func (rt *runtime) openRepository(ctx context.Context) (suggestion.Repository, error) {
	rc := rt.cfg.Storage.Repository
	switch rc.Type {
	case "", "memory":
		return memory.NewSuggestionRepository(), nil

	case "sqlite":
		repo, err := sqlite.NewSuggestionRepository(sqlite.DefaultConfig(), sqlite.WithDSN(rc.DSN))
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, repo.Close)
		return repo, nil

	case "postgres":
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = rc.DSN
		var opts []postgres.ConfigOption
		if rc.Schema != "" {
			opts = append(opts, postgres.WithSchema(rc.Schema))
		}
		pool, err := postgres.NewPool(ctx, pgCfg, opts...)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error {
			pool.Close()
			return nil
		})

		schema := rc.Schema
		if schema == "" {
			schema = pgCfg.Schema
		}
		repo := postgres.NewSuggestionRepository(pool, schema)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unsupported repository type: %s", rc.Type)
	}
}

func openWriter(ctx context.Context, wc config.WriterConfig) (suggestion.Writer, error) {
	switch wc.Type {
	case "", "none":
		return nil, nil
	case "filesystem":
		w, err := filesystem.NewWriter(wc.Directory)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "s3":
		client, err := s3.NewClient(ctx, s3.Config{
			Bucket:   wc.Bucket,
			Prefix:   wc.Prefix,
			Region:   wc.Region,
			Endpoint: wc.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		w, err := s3.NewWriter(client, wc.Bucket, wc.Prefix)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unsupported writer type: %s", wc.Type)
	}
}

func newRequester(ac config.ApprovalConfig) approval.Requester {
	if !ac.Enabled {
		return nil
	}
	return notification.NewWebhookRequester(notification.WebhookConfig{
		URL:        ac.WebhookURL,
		Secret:     ac.Secret,
		Headers:    ac.Headers,
		Timeout:    ac.Timeout.Duration(),
		MaxRetries: ac.MaxRetries,
	})
}

// session returns the approval session configured for this host.
func (rt *runtime) session() *approval.Session {
	ac := rt.cfg.Approval
	if !ac.Enabled || ac.SessionID == "" {
		return nil
	}
	return &approval.Session{ID: ac.SessionID, AgentID: ac.AgentID}
}

// openGenerator builds the generator selected by evolution.strategy.
// The catalog, when set, supplies current contracts to template proposals.
func (rt *runtime) openGenerator(catalog *memory.SpecCatalog) (suggestion.Generator, error) {
	ec := rt.cfg.Evolution
	policy := ec.Policy()

	if ec.Strategy != config.StrategyModel {
		opts := []infrasuggestion.TemplateOption{
			infrasuggestion.WithConfig(policy),
			infrasuggestion.WithCreatedBy(ec.CreatedBy),
		}
		if catalog != nil {
			opts = append(opts, infrasuggestion.WithLookup(catalog.Lookup))
		}
		return infrasuggestion.NewTemplateGenerator(opts...), nil
	}

	mc := rt.cfg.Model
	model, err := llm.NewAnthropicModel(llm.AnthropicConfig{
		APIKey:     mc.APIKey,
		BaseURL:    mc.BaseURL,
		Model:      mc.Model,
		MaxTokens:  mc.MaxTokens,
		Resilience: resilience.DefaultExecutorConfig(),
	})
	if err != nil {
		return nil, err
	}
	return infrasuggestion.NewModelGenerator(model,
		infrasuggestion.WithModelPolicy(policy),
		infrasuggestion.WithModelCreatedBy(ec.CreatedBy),
		infrasuggestion.WithBatchConcurrency(mc.MaxConcurrent),
		infrasuggestion.WithModelMetrics(rt.metrics),
	), nil
}

// openReader connects the configured analytics backend. It returns nil
// when no backend is configured.
func (rt *runtime) openReader(ctx context.Context) (application.SampleReader, error) {
	tc := rt.cfg.Telemetry
	if tc.Backend != "clickhouse" {
		return nil, nil
	}

	chCfg := clickhouse.DefaultConfig()
	chCfg.DSN = tc.DSN
	querier, err := clickhouse.Open(ctx, chCfg)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, querier.Close)

	return telemetry.NewReader(querier,
		telemetry.WithTable(tc.Table),
		telemetry.WithDefaultLimit(tc.Limit),
		telemetry.WithMetrics(rt.metrics),
	), nil
}

// pipeline assembles the evolution pipeline over reader, which may be nil
// when samples come from a file.
func (rt *runtime) pipeline(reader application.SampleReader, catalog *memory.SpecCatalog) (*application.Pipeline, error) {
	gen, err := rt.openGenerator(catalog)
	if err != nil {
		return nil, err
	}

	strategy := rt.cfg.Evolution.Strategy
	if strategy == "" {
		strategy = config.StrategyTemplate
	}

	analyzer := infraanalytics.NewAnalyzer(infraanalytics.WithThresholds(rt.cfg.Analysis.Thresholds()))
	return application.NewPipeline(reader, analyzer, gen, rt.service,
		application.WithPolicy(rt.cfg.Evolution.Policy()),
		application.WithBaselineWindow(rt.cfg.Telemetry.BaselineWindow.Duration()),
		application.WithLifecycle(rt.cfg.Analysis.Lifecycle()),
		application.WithSession(rt.session()),
		application.WithStrategy(strategy),
		application.WithPipelineMetrics(rt.metrics),
	), nil
}
