package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/terrane-io/terrane/pkg/engine"
)

// InstrumentRegistry wraps a provider registry so every resolved provider
// records a span, call metrics, and action metrics around each operation.
func (t *Telemetry) InstrumentRegistry(reg engine.ProviderRegistry) engine.ProviderRegistry {
	return &instrumentedRegistry{inner: reg, tel: t}
}

type instrumentedRegistry struct {
	inner engine.ProviderRegistry
	tel   *Telemetry
}

func (r *instrumentedRegistry) Provider(resourceType string) (engine.Provider, error) {
	p, err := r.inner.Provider(resourceType)
	if err != nil {
		return nil, err
	}
	return &instrumentedProvider{inner: p, tel: r.tel}, nil
}

func (r *instrumentedRegistry) Types() []string {
	return r.inner.Types()
}

type instrumentedProvider struct {
	inner engine.Provider
	tel   *Telemetry
}

func (p *instrumentedProvider) Type() string { return p.inner.Type() }

func (p *instrumentedProvider) Create(ctx context.Context, identity string, attrs map[string]any) (string, map[string]any, error) {
	var providerID string
	var outputs map[string]any
	err := p.instrument(ctx, identity, "create", func(ctx context.Context) error {
		var err error
		providerID, outputs, err = p.inner.Create(ctx, identity, attrs)
		return err
	})
	return providerID, outputs, err
}

func (p *instrumentedProvider) Update(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error) {
	var outputs map[string]any
	err := p.instrument(ctx, providerID, "update", func(ctx context.Context) error {
		var err error
		outputs, err = p.inner.Update(ctx, providerID, attrs)
		return err
	})
	return outputs, err
}

func (p *instrumentedProvider) Delete(ctx context.Context, providerID string) error {
	return p.instrument(ctx, providerID, "delete", func(ctx context.Context) error {
		return p.inner.Delete(ctx, providerID)
	})
}

// instrument wraps one provider operation in an action span, a nested
// provider span, and the action duration metric.
func (p *instrumentedProvider) instrument(ctx context.Context, target, operation string, fn func(context.Context) error) error {
	resourceType := p.inner.Type()
	spanCtx, span := p.tel.Tracer.StartActionSpan(ctx, target, resourceType, operation)
	defer span.End()

	started := time.Now()
	err := p.tel.RecordProviderOperation(spanCtx, resourceType, operation, fn)
	duration := time.Since(started)

	status := "succeeded"
	if err != nil {
		status = "failed"
		RecordError(span, err)
		var engineErr *engine.EngineError
		if errors.As(err, &engineErr) {
			p.tel.Metrics.RecordError(string(engineErr.Class), engineErr.Code)
		}
	} else {
		RecordSuccess(span)
	}
	p.tel.Metrics.RecordAction(operation, status, resourceType, duration)
	return err
}

var _ engine.ProviderRegistry = (*instrumentedRegistry)(nil)
var _ engine.Provider = (*instrumentedProvider)(nil)
