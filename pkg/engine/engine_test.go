package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memStore is an in-memory StateStore for tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]*StateRecord
	runs    map[string]*Run
	events  []Event
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]*StateRecord),
		runs:    make(map[string]*Run),
	}
}

func (m *memStore) Load(ctx context.Context) (map[string]*StateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*StateRecord, len(m.records))
	for k, v := range m.records {
		rec := *v
		out[k] = &rec
	}
	return out, nil
}

func (m *memStore) Get(ctx context.Context, identity string) (*StateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[identity]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) Save(ctx context.Context, record *StateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *record
	m.records[record.Identity] = &cp
	return nil
}

func (m *memStore) Remove(ctx context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, identity)
	return nil
}

func (m *memStore) SaveRun(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return run, nil
}

func (m *memStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *memStore) AppendEvent(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *memStore) Close() error { return nil }

// fakeProvider is a Provider with overridable behavior. The default Create
// returns "pid-<identity>" and an "id" output carrying the same value.
type fakeProvider struct {
	resourceType string
	createFn     func(ctx context.Context, identity string, attrs map[string]any) (string, map[string]any, error)
	updateFn     func(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error)
	deleteFn     func(ctx context.Context, providerID string) error

	mu    sync.Mutex
	calls []string
}

func (f *fakeProvider) Type() string { return f.resourceType }

func (f *fakeProvider) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeProvider) Create(ctx context.Context, identity string, attrs map[string]any) (string, map[string]any, error) {
	f.record("create " + identity)
	if f.createFn != nil {
		return f.createFn(ctx, identity, attrs)
	}
	pid := "pid-" + identity
	return pid, map[string]any{"id": pid}, nil
}

func (f *fakeProvider) Update(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error) {
	f.record("update " + providerID)
	if f.updateFn != nil {
		return f.updateFn(ctx, providerID, attrs)
	}
	return map[string]any{"id": providerID}, nil
}

func (f *fakeProvider) Delete(ctx context.Context, providerID string) error {
	f.record("delete " + providerID)
	if f.deleteFn != nil {
		return f.deleteFn(ctx, providerID)
	}
	return nil
}

// mapRegistry is a test ProviderRegistry backed by a map.
type mapRegistry map[string]Provider

func (r mapRegistry) Provider(resourceType string) (Provider, error) {
	p, ok := r[resourceType]
	if !ok {
		return nil, fmt.Errorf("no provider for type %q", resourceType)
	}
	return p, nil
}

func (r mapRegistry) Types() []string {
	types := make([]string, 0, len(r))
	for t := range r {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// decl builds a declaration from raw attribute values, failing the build on
// a parse error so tests stay terse.
func decl(identity, resourceType string, attrs map[string]any) Declaration {
	d := Declaration{
		Identity:   identity,
		Type:       resourceType,
		Name:       identity,
		Attributes: make(map[string]Expr, len(attrs)),
	}
	for name, v := range attrs {
		e, err := ParseExpr(v)
		if err != nil {
			panic(fmt.Sprintf("decl %s attribute %s: %v", identity, name, err))
		}
		d.Attributes[name] = e
	}
	return d
}

func mustBuild(decls ...Declaration) *ResourceGraph {
	for i := range decls {
		decls[i].Index = i
	}
	graph, err := NewGraphBuilder().Build(decls)
	if err != nil {
		panic(fmt.Sprintf("building graph: %v", err))
	}
	return graph
}
