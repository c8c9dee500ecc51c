package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Planner diffs a resource graph against last-known state and produces an
// execution plan. Planning performs no provider calls and has no side
// effects; the same graph and state always yield the same plan.
type Planner struct {
	store StateStore
}

// NewPlanner creates a planner reading last-known state from the store.
func NewPlanner(store StateStore) *Planner {
	return &Planner{store: store}
}

// Plan computes the execution plan for the graph.
//
// For every declared resource the planner resolves its attribute expressions
// against the planned post-apply values of its dependencies: the dependency's
// resolved declared attributes layered over its stored outputs. Output values
// of a resource being created this pass are not yet known and resolve to the
// unknown sentinel, which never compares equal to a stored value.
//
// Resources present in state but absent from the declarations become delete
// actions, ordered so dependents are deleted before their dependencies using
// the dependency lists recorded at apply time.
func (p *Planner) Plan(ctx context.Context, graph *ResourceGraph) (*Plan, error) {
	state, err := p.store.Load(ctx)
	if err != nil {
		return nil, NewPermanentError("loading state", err).WithCode(ErrCodeStateStore)
	}

	// Planned post-apply value sets, built level by level so every lookup
	// hits an already-computed dependency.
	projected := make(map[string]map[string]any, len(graph.Declarations))
	resolved := make(map[string]map[string]any, len(graph.Declarations))
	lookup := func(ref Reference) any {
		if vals := projected[ref.Identity]; vals != nil {
			if v, ok := vals[ref.Attribute]; ok {
				return v
			}
		}
		return Unknown
	}
	for _, level := range graph.Levels {
		for _, identity := range level {
			d := graph.Declaration(identity)
			attrs := make(map[string]any, len(d.Attributes))
			for name, expr := range d.Attributes {
				attrs[name] = resolveExpr(expr, lookup)
			}
			resolved[identity] = attrs

			vals := make(map[string]any)
			if rec := state[identity]; rec != nil {
				for k, v := range rec.Outputs {
					vals[k] = v
				}
			}
			for k, v := range attrs {
				vals[k] = v
			}
			projected[identity] = vals
		}
	}

	plan := &Plan{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	deletes := p.planDeletes(graph, state)
	for _, a := range deletes {
		plan.Actions = append(plan.Actions, a)
		if a.Level+1 > plan.Depth {
			plan.Depth = a.Level + 1
		}
	}
	plan.Summary.Delete = len(deletes)

	for levelIdx, level := range graph.Levels {
		for _, identity := range level {
			d := graph.Declaration(identity)
			action := PlannedAction{
				ID:           uuid.NewString(),
				Identity:     identity,
				Type:         d.Type,
				Status:       ActionStatusPending,
				Dependencies: graph.DependenciesOf(identity),
				Attributes:   d.Attributes,
				Planned:      resolved[identity],
				Protect:      d.Protect,
				Level:        levelIdx,
			}

			rec := state[identity]
			switch {
			case rec == nil:
				action.Op = ActionCreate
				action.Diff = diffAttributes(nil, resolved[identity])
				plan.Summary.Create++
			case rec.Type != d.Type:
				// Type changed in place: replace, since no provider can
				// update across types.
				action.Op = ActionCreate
				action.PriorType = rec.Type
				action.ProviderID = rec.ProviderID
				action.Diff = diffAttributes(rec.Attributes, resolved[identity])
				plan.Summary.Create++
			case attributesEqual(rec.Attributes, resolved[identity]):
				action.Op = ActionNoop
				action.ProviderID = rec.ProviderID
				plan.Summary.Noop++
			default:
				action.Op = ActionUpdate
				action.ProviderID = rec.ProviderID
				action.Diff = diffAttributes(rec.Attributes, resolved[identity])
				plan.Summary.Update++
			}
			plan.Actions = append(plan.Actions, action)
			if levelIdx+1 > plan.Depth {
				plan.Depth = levelIdx + 1
			}
		}
	}

	return plan, nil
}

// planDeletes builds delete actions for resources recorded in state but no
// longer declared. Dependency edges among them come from the recorded
// dependency lists and are reversed: a resource is deleted before anything
// it depends on. A declared resource can never depend on a deleted one, so
// delete actions share no edges with the rest of the plan.
func (p *Planner) planDeletes(graph *ResourceGraph, state map[string]*StateRecord) []PlannedAction {
	var gone []string
	for identity := range state {
		if graph.Declaration(identity) == nil {
			gone = append(gone, identity)
		}
	}
	sort.Strings(gone)
	if len(gone) == 0 {
		return nil
	}

	goneSet := make(map[string]bool, len(gone))
	for _, id := range gone {
		goneSet[id] = true
	}

	// delete(X) waits for delete(Y) whenever Y depended on X.
	waitsFor := make(map[string][]string, len(gone))
	for _, id := range gone {
		for _, dep := range state[id].Dependencies {
			if goneSet[dep] {
				waitsFor[dep] = append(waitsFor[dep], id)
			}
		}
	}

	levels := make(map[string]int, len(gone))
	assigned := 0
	for assigned < len(gone) {
		progressed := false
		for _, id := range gone {
			if _, done := levels[id]; done {
				continue
			}
			level := 0
			ready := true
			for _, dep := range waitsFor[id] {
				depLevel, done := levels[dep]
				if !done {
					ready = false
					break
				}
				if depLevel+1 > level {
					level = depLevel + 1
				}
			}
			if ready {
				levels[id] = level
				assigned++
				progressed = true
			}
		}
		if !progressed {
			// Recorded dependencies form a cycle, which apply-time
			// ordering makes impossible. Flatten rather than spin.
			for _, id := range gone {
				if _, done := levels[id]; !done {
					levels[id] = 0
					assigned++
				}
			}
		}
	}

	actions := make([]PlannedAction, 0, len(gone))
	for _, id := range gone {
		rec := state[id]
		actions = append(actions, PlannedAction{
			ID:           uuid.NewString(),
			Identity:     id,
			Type:         rec.Type,
			Op:           ActionDelete,
			Status:       ActionStatusPending,
			Dependencies: waitsFor[id],
			Diff:         diffAttributes(rec.Attributes, nil),
			ProviderID:   rec.ProviderID,
			Level:        levels[id],
		})
	}
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Level != actions[j].Level {
			return actions[i].Level < actions[j].Level
		}
		return actions[i].Identity < actions[j].Identity
	})
	return actions
}

// resolveExpr evaluates an expression tree, substituting reference tokens
// through the lookup function.
func resolveExpr(e Expr, lookup func(Reference) any) any {
	switch e.Kind {
	case ExprRef:
		return lookup(*e.Ref)
	case ExprList:
		out := make([]any, 0, len(e.List))
		for _, item := range e.List {
			out = append(out, resolveExpr(item, lookup))
		}
		return out
	case ExprMap:
		out := make(map[string]any, len(e.Map))
		for k, item := range e.Map {
			out[k] = resolveExpr(item, lookup)
		}
		return out
	default:
		return e.Literal
	}
}

// diffAttributes computes the attribute-level changes between two value
// sets, sorted by path.
func diffAttributes(before, after map[string]any) []AttributeChange {
	paths := make(map[string]bool, len(before)+len(after))
	for k := range before {
		paths[k] = true
	}
	for k := range after {
		paths[k] = true
	}
	sorted := make([]string, 0, len(paths))
	for k := range paths {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var changes []AttributeChange
	for _, path := range sorted {
		b, hasBefore := before[path]
		a, hasAfter := after[path]
		if hasBefore && hasAfter && valuesEqual(b, a) {
			continue
		}
		changes = append(changes, AttributeChange{Path: path, Before: b, After: a})
	}
	return changes
}

// attributesEqual reports whether two attribute value sets are equal under
// JSON normalization. Any unknown value forces inequality.
func attributesEqual(stored, planned map[string]any) bool {
	if len(stored) != len(planned) {
		return false
	}
	for k, p := range planned {
		s, ok := stored[k]
		if !ok || !valuesEqual(s, p) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values by their canonical JSON encoding, so that
// 1 and 1.0, or differently ordered maps, compare equal.
func valuesEqual(a, b any) bool {
	if IsUnknown(a) || IsUnknown(b) {
		return false
	}
	ja, err := canonicalJSON(a)
	if err != nil {
		return false
	}
	jb, err := canonicalJSON(b)
	if err != nil {
		return false
	}
	return ja == jb
}

func canonicalJSON(v any) (string, error) {
	// encoding/json sorts map keys, which is all the canonicalization the
	// attribute value domain needs.
	buf, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding value: %w", err)
	}
	return string(buf), nil
}
