package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing, metrics, and the event bus.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *Bus
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// New creates a telemetry instance from configuration.
func New(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	bus := NewBus(cfg.Events)
	bus.Subscribe(LogSubscriber(logger))

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  bus,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context,
// or nil if none is attached.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown stops the event bus and flushes the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.Events.Close()
	return t.Tracer.Shutdown(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer(t.Logger)
}

// RecordRun wraps a run execution with a span and run metrics. fn returns
// the executor-assigned run ID and the terminal run status.
func (t *Telemetry) RecordRun(ctx context.Context, planID string, fn func(context.Context) (runID, status string, err error)) error {
	spanCtx, span := t.Tracer.StartRunSpan(ctx, planID)
	t.Metrics.RecordRunStarted()
	started := time.Now()

	runID, status, err := fn(spanCtx)

	if runID != "" {
		span.SetAttributes(AttrRunID.String(runID))
	}
	if status != "" {
		t.Metrics.RecordRunCompleted(status, time.Since(started))
	}
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
	return err
}

// RecordProviderOperation wraps a provider call with a span and call
// metrics.
func (t *Telemetry) RecordProviderOperation(ctx context.Context, providerType, operation string, fn func(context.Context) error) error {
	var span trace.Span
	ctx, span = t.Tracer.StartProviderSpan(ctx, providerType, operation)
	defer span.End()

	t.Metrics.RecordProviderCall(providerType, operation)
	err := fn(ctx)
	if err != nil {
		t.Metrics.RecordProviderError(providerType, operation)
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	return err
}
