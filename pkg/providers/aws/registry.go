package aws

import (
	"fmt"
	"sort"
	"sync"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"

	"github.com/terrane-io/terrane/pkg/engine"
)

// Registry maps resource types to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]engine.Provider
}

var _ engine.ProviderRegistry = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]engine.Provider)}
}

// NewDefaultRegistry creates a registry with every AWS provider registered
// against the given SDK configuration.
func NewDefaultRegistry(cfg awsv2.Config) *Registry {
	r := NewRegistry()
	for _, p := range []engine.Provider{
		NewNetworkProvider(cfg),
		NewRegistryProvider(cfg),
		NewPipelineProvider(cfg),
		NewClusterProvider(cfg),
		NewServiceProvider(cfg),
		NewLoadBalancerProvider(cfg),
		NewAutoScalingProvider(cfg),
	} {
		// Registration of the built-in set cannot collide.
		_ = r.Register(p)
	}
	return r
}

// Register adds a provider. Registering a duplicate type is an error.
func (r *Registry) Register(p engine.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Type()]; exists {
		return fmt.Errorf("provider already registered for type %q", p.Type())
	}
	r.providers[p.Type()] = p
	return nil
}

// Provider returns the provider for the resource type.
func (r *Registry) Provider(resourceType string) (engine.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[resourceType]
	if !ok {
		return nil, fmt.Errorf("no provider registered for type %q", resourceType)
	}
	return p, nil
}

// Types returns the registered resource types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
