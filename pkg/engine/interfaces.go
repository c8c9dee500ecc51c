package engine

import (
	"context"
)

// Provider implements the lifecycle operations for one resource type.
// Implementations must be safe for concurrent use: the executor calls a
// provider from multiple goroutines when independent resources share a type.
type Provider interface {
	// Type returns the resource type this provider handles (e.g.
	// "aws.network").
	Type() string

	// Create provisions a new resource from fully resolved attribute
	// values and returns the provider-assigned identifier plus output
	// values.
	Create(ctx context.Context, identity string, attrs map[string]any) (providerID string, outputs map[string]any, err error)

	// Update reconciles an existing resource to the given attribute values
	// and returns refreshed output values.
	Update(ctx context.Context, providerID string, attrs map[string]any) (outputs map[string]any, err error)

	// Delete removes the resource. Deleting an already-absent resource
	// must succeed.
	Delete(ctx context.Context, providerID string) error
}

// ProviderRegistry resolves resource types to providers.
type ProviderRegistry interface {
	// Provider returns the provider for the given resource type, or an
	// error if none is registered.
	Provider(resourceType string) (Provider, error)

	// Types returns the registered resource types in sorted order.
	Types() []string
}

// StateStore persists last-known resource state and the run history.
// Implementations must serialize writes per identity; the engine never
// issues concurrent writes for the same identity but does write different
// identities concurrently.
type StateStore interface {
	// Load returns every state record, keyed by identity.
	Load(ctx context.Context) (map[string]*StateRecord, error)

	// Get returns the record for one identity, or nil if absent.
	Get(ctx context.Context, identity string) (*StateRecord, error)

	// Save upserts the record for record.Identity.
	Save(ctx context.Context, record *StateRecord) error

	// Remove deletes the record for the identity. Removing an absent
	// record is not an error.
	Remove(ctx context.Context, identity string) error

	// SaveRun persists the run header and its results.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun returns a stored run by ID.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns run headers, newest first, at most limit.
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// AppendEvent persists one timeline event.
	AppendEvent(ctx context.Context, event *Event) error

	// Close releases the store.
	Close() error
}

// EventPublisher receives execution timeline events. Publish must not
// block; slow consumers drop events rather than stall the executor.
type EventPublisher interface {
	Publish(event Event)
}

// PolicyGate evaluates a plan before execution and returns the denial
// reasons, if any. An empty slice means the plan is admitted.
type PolicyGate interface {
	Evaluate(ctx context.Context, plan *Plan) ([]string, error)
}
