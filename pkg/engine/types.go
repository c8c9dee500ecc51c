package engine

import (
	"time"
)

// Declaration is one declared infrastructure resource: an identity, a
// resource type, and a mapping of attribute name to expression. Immutable
// once parsed.
type Declaration struct {
	// Identity is the unique logical identity of the resource within the
	// declaration set (e.g. "app_vpc").
	Identity string `json:"identity"`

	// Type is the resource type handled by a provider (e.g. "aws.network").
	Type string `json:"type"`

	// Name is the human-readable name; defaults to the identity.
	Name string `json:"name"`

	// Attributes maps attribute names to their expressions.
	Attributes map[string]Expr `json:"attributes"`

	// Labels are key-value pairs for organizing and selecting resources.
	Labels map[string]string `json:"labels,omitempty"`

	// Protect marks the resource as protected: the built-in policy denies
	// plans that delete it.
	Protect bool `json:"protect,omitempty"`

	// Index is the position of the declaration in the input, used to break
	// ordering ties deterministically.
	Index int `json:"index"`
}

// DependencyEdge records that one resource's attributes reference another
// resource's outputs. Edges are derived from expressions and recomputed on
// every run; they carry no ownership.
type DependencyEdge struct {
	// From is the dependent resource identity.
	From string `json:"from"`

	// To is the resource identity that From depends on.
	To string `json:"to"`

	// Ref is the reference that induced this edge (first one found).
	Ref Reference `json:"ref"`
}

// ResourceGraph is the desired state: the declaration set plus the derived
// dependency edges. Building a graph fails if the edges contain a cycle or
// reference an undeclared identity.
type ResourceGraph struct {
	// Declarations holds the declarations in input order.
	Declarations []Declaration `json:"declarations"`

	// Edges holds one edge per (dependent, dependency) pair.
	Edges []DependencyEdge `json:"edges"`

	// Levels groups identities by topological level; identities at the
	// same level have no dependency relationship and may be processed in
	// parallel. Within a level, identities keep declaration order.
	Levels [][]string `json:"levels"`

	byIdentity map[string]*Declaration
}

// Declaration returns the declaration for the given identity, or nil.
func (g *ResourceGraph) Declaration(identity string) *Declaration {
	return g.byIdentity[identity]
}

// DependenciesOf returns the identities that the given resource depends on,
// in deterministic order.
func (g *ResourceGraph) DependenciesOf(identity string) []string {
	var deps []string
	seen := make(map[string]bool)
	for _, e := range g.Edges {
		if e.From == identity && !seen[e.To] {
			seen[e.To] = true
			deps = append(deps, e.To)
		}
	}
	return deps
}

// PlannedAction is one unit of an execution plan: an operation on a single
// resource identity plus the attribute diff that motivates it. Actions are
// created fresh each planning pass and discarded after execution.
type PlannedAction struct {
	// ID is the unique identifier of this action within its plan.
	ID string `json:"id"`

	// Identity is the target resource identity.
	Identity string `json:"identity"`

	// Type is the resource type, from the declaration or, for deletes,
	// from the state record.
	Type string `json:"type"`

	// Op is the operation to perform.
	Op ActionType `json:"op"`

	// Status is the execution status, maintained by the executor.
	Status ActionStatus `json:"status"`

	// Dependencies lists resource identities whose actions must reach a
	// terminal status before this action starts. For deletes the edges
	// are reversed: dependents are deleted before their dependencies.
	Dependencies []string `json:"dependencies,omitempty"`

	// Attributes are the declared attribute expressions (nil for deletes).
	Attributes map[string]Expr `json:"attributes,omitempty"`

	// Planned holds the attribute values resolved at planning time;
	// values depending on not-yet-created resources carry the unknown
	// sentinel and are resolved by the executor before the provider call.
	Planned map[string]any `json:"planned,omitempty"`

	// Diff lists the attribute-level changes between last-known state and
	// the planned values.
	Diff []AttributeChange `json:"diff,omitempty"`

	// ProviderID is the provider-assigned identifier, populated from state
	// for updates, deletes, and replacements.
	ProviderID string `json:"provider_id,omitempty"`

	// PriorType is the resource type recorded in state when it differs
	// from the declared type. Providers cannot update across types, so the
	// executor deletes the old resource through the prior type's provider
	// before creating the new one.
	PriorType string `json:"prior_type,omitempty"`

	// Protect mirrors the declaration's protect flag (false for deletes
	// of undeclared resources).
	Protect bool `json:"protect,omitempty"`

	// Level is the topological execution level assigned by the planner.
	Level int `json:"level"`

	// Err records the failure or skip reason after execution.
	Err *EngineError `json:"error,omitempty"`
}

// AttributeChange describes a single attribute-level difference.
type AttributeChange struct {
	// Path is the attribute name being changed.
	Path string `json:"path"`

	// Before is the last-known value, nil for creates.
	Before any `json:"before,omitempty"`

	// After is the planned value, nil for deletes.
	After any `json:"after,omitempty"`
}

// Plan is a complete, ordered execution plan. Actions appear in topological
// order: every action after all actions for resources it depends on, ties
// broken by declaration order.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`

	// Actions are the planned actions in execution order, including noops
	// so the final report covers every resource.
	Actions []PlannedAction `json:"actions"`

	// Depth is the number of execution levels.
	Depth int `json:"depth"`

	// Summary counts actions by operation.
	Summary PlanSummary `json:"summary"`
}

// PlanSummary counts planned actions by operation.
type PlanSummary struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
	Noop   int `json:"noop"`
}

// HasChanges returns true if the plan contains any mutating action.
func (p *Plan) HasChanges() bool {
	return p.Summary.Create > 0 || p.Summary.Update > 0 || p.Summary.Delete > 0
}

// Run records one execution of a plan.
type Run struct {
	// ID is the unique identifier of the run.
	ID string `json:"id"`

	// PlanID is the plan that was executed.
	PlanID string `json:"plan_id"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when execution finished.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Results holds the per-resource outcome for every action in the
	// plan, including skipped and unchanged resources.
	Results []ActionResult `json:"results"`

	// Summary counts outcomes.
	Summary RunSummary `json:"summary"`
}

// ActionResult is the outcome of one planned action.
type ActionResult struct {
	// Identity is the target resource identity.
	Identity string `json:"identity"`

	// Op is the operation that was planned.
	Op ActionType `json:"op"`

	// Status is the terminal status of the action.
	Status ActionStatus `json:"status"`

	// StartedAt and CompletedAt bound the provider call, zero for actions
	// that never started.
	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`

	// Err is the failure or skip reason, if any.
	Err *EngineError `json:"error,omitempty"`
}

// RunSummary counts per-resource outcomes of a run.
type RunSummary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Unchanged int `json:"unchanged"`
	Cancelled int `json:"cancelled"`
}

// StateRecord is the last-known applied state of one resource identity,
// persisted across runs. Written by the executor immediately after each
// successful operation; read by the planner for diffing.
type StateRecord struct {
	// Identity is the resource identity the record belongs to.
	Identity string `json:"identity"`

	// Type is the resource type at the time of apply.
	Type string `json:"type"`

	// ProviderID is the provider-assigned identifier (e.g. a VPC id).
	ProviderID string `json:"provider_id"`

	// Attributes are the fully resolved attribute values that were
	// applied.
	Attributes map[string]any `json:"attributes"`

	// Outputs are the provider-returned output values.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Dependencies are the identities the resource depended on when it
	// was applied; used to order deletes after the declaration is gone.
	Dependencies []string `json:"dependencies,omitempty"`

	// LastRunID is the run that last wrote this record.
	LastRunID string `json:"last_run_id"`

	// AppliedAt is when the record was last written.
	AppliedAt time.Time `json:"applied_at"`
}

// Event is one entry in the execution timeline.
type Event struct {
	// Type is the event type.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RunID is the run this event belongs to.
	RunID string `json:"run_id"`

	// Identity is the resource identity, if applicable.
	Identity string `json:"identity,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`
}
