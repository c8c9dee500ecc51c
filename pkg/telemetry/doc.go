// Package telemetry provides observability instrumentation for Terrane.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry), Prometheus metrics, and an in-process event bus that
// implements engine.EventPublisher.
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// The event bus plugs straight into the executor, and the registry wrapper
// adds spans and metrics around every provider call:
//
//	registry = tel.InstrumentRegistry(registry)
//	exec := engine.NewExecutor(registry, store, tel.Events, opts)
//
// and subscribers receive every execution event:
//
//	tel.Events.Subscribe(telemetry.StoreSubscriber(store, tel.Logger))
//
// # Logging
//
//	logger := tel.Logger.NewComponentLogger("executor")
//	logger.WithRunID(runID).WithResource("core_vpc", "aws.network").Info("applying")
//
// # Metrics
//
// Key metrics exposed at /metrics when enabled:
//
//   - terrane_runs_started_total
//   - terrane_runs_completed_total{status}
//   - terrane_run_duration_seconds{status}
//   - terrane_actions_executed_total{operation,status}
//   - terrane_action_duration_seconds{operation,resource_type}
//   - terrane_provider_calls_total{provider,operation}
//   - terrane_provider_errors_total{provider,operation}
//   - terrane_errors_by_class_total{class}
//   - terrane_active_runs
//
// # Tracing
//
// Exporters: "stdout" for development, "otlp" for production collectors,
// "none" to generate but not export. Run, action, and provider spans are
// available through the Tracer helpers.
package telemetry
