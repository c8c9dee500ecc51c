package commands

import (
	"context"
	"fmt"

	"github.com/terrane-io/terrane/pkg/config"
	"github.com/terrane-io/terrane/pkg/engine"
	"github.com/terrane-io/terrane/pkg/policy"
	"github.com/terrane-io/terrane/pkg/providers/aws"
	"github.com/terrane-io/terrane/pkg/stores"
	"github.com/terrane-io/terrane/pkg/telemetry"
)

// appContext bundles the runtime pieces every command needs: configuration,
// telemetry, and the state store. Providers and the policy gate are built
// on demand by the commands that use them.
type appContext struct {
	cfg   config.RuntimeConfig
	tel   *telemetry.Telemetry
	store *stores.SQLiteStore
}

// newAppContext loads terrane.yaml, initializes telemetry, and opens the
// state store. Callers must Close the returned context.
func newAppContext(ctx context.Context) (*appContext, error) {
	cfg, err := config.LoadRuntimeConfig(configPath)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(telemetryConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	store, err := stores.Open(ctx, stores.Config{Path: cfg.StatePath})
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to open state store %s: %w", cfg.StatePath, err)
	}

	if cfg.Metrics.Enabled {
		if err := tel.StartMetricsServer(); err != nil {
			tel.Logger.WithError(err).Warn("metrics server failed to start")
		}
	}

	return &appContext{cfg: cfg, tel: tel, store: store}, nil
}

// Close releases the store and flushes telemetry.
func (a *appContext) Close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.tel.Logger.WithError(err).Warn("failed to close state store")
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.tel.Logger.WithError(err).Warn("failed to shut down telemetry")
	}
}

// telemetryConfig maps the runtime configuration onto the telemetry stack.
func telemetryConfig(cfg config.RuntimeConfig) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Environment = "cli"
	if cfg.Log.Level != "" {
		tc.Logging.Level = cfg.Log.Level
	}
	if verbose {
		tc.Logging.Level = "debug"
	}
	if cfg.Log.Format != "" {
		tc.Logging.Format = cfg.Log.Format
	}
	if jsonOutput {
		// Keep human-readable stdout clean when emitting JSON results.
		tc.Logging.Format = "json"
	}

	tc.Metrics.Enabled = cfg.Metrics.Enabled
	if cfg.Metrics.Addr != "" {
		tc.Metrics.ListenAddress = cfg.Metrics.Addr
	}

	tc.Tracing.Enabled = cfg.Tracing.Enabled
	switch {
	case cfg.Tracing.Stdout:
		tc.Tracing.Exporter = "stdout"
	case cfg.Tracing.Endpoint != "":
		tc.Tracing.Exporter = "otlp"
		tc.Tracing.Endpoint = cfg.Tracing.Endpoint
		tc.Tracing.Insecure = true
	default:
		tc.Tracing.Exporter = "none"
	}
	return tc
}

// newProviderRegistry builds the AWS provider registry from the configured
// region and profile.
func (a *appContext) newProviderRegistry(ctx context.Context) (engine.ProviderRegistry, error) {
	awsCfg, err := aws.LoadConfig(ctx, a.cfg.AWS.Region, a.cfg.AWS.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return aws.NewDefaultRegistry(awsCfg), nil
}

// newPolicyGate builds the Rego policy engine with the built-in policies
// and any configured policy paths. Returns nil when enforcement is
// disabled.
func (a *appContext) newPolicyGate(ctx context.Context) (*policy.Engine, error) {
	if !a.cfg.Policy.Enabled && len(a.cfg.Policy.Paths) == 0 {
		return nil, nil
	}
	eng, err := policy.NewEngine(a.tel.Logger.Zerolog())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	if len(a.cfg.Policy.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, a.cfg.Policy.Paths); err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
	}
	return eng, nil
}

// buildGraph parses the CUE sources and builds the dependency graph.
func (a *appContext) buildGraph(ctx context.Context, sources []string) (*engine.ResourceGraph, error) {
	parser := config.NewCUEParser()
	decls, _, err := parser.Declarations(ctx, sources)
	if err != nil {
		return nil, err
	}
	return engine.NewGraphBuilder().Build(decls)
}

// computePlan runs the parse, graph, and plan pipeline over the given CUE
// sources.
func (a *appContext) computePlan(ctx context.Context, sources []string) (*engine.Plan, *engine.ResourceGraph, error) {
	graph, err := a.buildGraph(ctx, sources)
	if err != nil {
		return nil, nil, err
	}
	plan, err := engine.NewPlanner(a.store).Plan(ctx, graph)
	if err != nil {
		return nil, nil, err
	}
	return plan, graph, nil
}

// recordResourceCounts refreshes the per-type managed resource gauges from
// the state store. Failures only cost a metric sample.
func (a *appContext) recordResourceCounts(ctx context.Context) {
	records, err := a.store.Load(ctx)
	if err != nil {
		a.tel.Logger.WithError(err).Warn("failed to count managed resources")
		return
	}
	counts := make(map[string]int, len(records))
	for _, rec := range records {
		counts[rec.Type]++
	}
	for resourceType, n := range counts {
		a.tel.Metrics.SetResourceCount(resourceType, float64(n))
	}
}

// gatePlan evaluates the plan against the policy engine and returns the
// denial reasons, if any.
func (a *appContext) gatePlan(ctx context.Context, gate *policy.Engine, plan *engine.Plan) ([]string, error) {
	if gate == nil {
		return nil, nil
	}
	return gate.Evaluate(ctx, plan)
}
