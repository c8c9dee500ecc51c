package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutorOptions configure plan execution.
type ExecutorOptions struct {
	// MaxParallel caps the number of provider calls in flight. Zero or
	// negative selects the default of 10.
	MaxParallel int
}

// Executor applies a plan through resource providers. Actions run level by
// level: everything within a level is independent and runs on a bounded
// worker pool, and a level only starts once the previous one has fully
// settled. State is persisted immediately after each successful operation,
// so an interrupted run leaves an accurate partial record behind.
type Executor struct {
	registry    ProviderRegistry
	store       StateStore
	publisher   EventPublisher
	maxParallel int

	// mu protects statuses, failures and values during a run.
	mu sync.Mutex

	// statuses tracks the current status of each action by identity.
	statuses map[string]ActionStatus

	// failures records the terminal error of failed or skipped actions.
	failures map[string]*EngineError

	// values holds the live post-apply value set per identity, used to
	// resolve references whose targets were created this run.
	values map[string]map[string]any

	// results accumulates per-action outcomes.
	results map[string]*ActionResult
}

// NewExecutor creates an executor. The publisher may be nil.
func NewExecutor(registry ProviderRegistry, store StateStore, publisher EventPublisher, opts ExecutorOptions) *Executor {
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 10
	}
	return &Executor{
		registry:    registry,
		store:       store,
		publisher:   publisher,
		maxParallel: maxParallel,
	}
}

// Apply executes the plan and returns the completed run. Provider and
// dependency failures are recorded in the run rather than returned; the
// error return is reserved for failures of the run machinery itself, such
// as being unable to persist the run record.
//
// Cancelling the context stops new actions from starting; actions already
// in flight finish and their results are persisted.
func (e *Executor) Apply(ctx context.Context, plan *Plan) (*Run, error) {
	if plan == nil {
		return nil, NewPermanentError("plan is nil", nil).WithCode(ErrCodeValidation)
	}

	run := &Run{
		ID:        uuid.NewString(),
		PlanID:    plan.ID,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := e.store.SaveRun(ctx, run); err != nil {
		return nil, NewPermanentError("saving run", err).WithCode(ErrCodeStateStore)
	}
	e.publish(run.ID, "", EventTypeRunStarted, fmt.Sprintf("applying plan %s", plan.ID))

	// Work on a private copy so the caller's plan stays untouched.
	actions := make([]PlannedAction, len(plan.Actions))
	copy(actions, plan.Actions)

	e.mu.Lock()
	e.statuses = make(map[string]ActionStatus, len(actions))
	e.failures = make(map[string]*EngineError)
	e.values = make(map[string]map[string]any, len(actions))
	e.results = make(map[string]*ActionResult, len(actions))
	for i := range actions {
		e.statuses[actions[i].Identity] = ActionStatusPending
	}
	e.mu.Unlock()

	levels := make([][]*PlannedAction, plan.Depth)
	for i := range actions {
		a := &actions[i]
		levels[a.Level] = append(levels[a.Level], a)
	}

	cancelled := false
	for _, level := range levels {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		e.runLevel(ctx, run.ID, level)
	}
	if cancelled || ctx.Err() != nil {
		e.markRemainingCancelled(actions)
		cancelled = true
	}

	e.finishRun(run, actions, cancelled)

	// The run record is history; persist it with a fresh context so a
	// cancelled apply still records what happened.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := e.store.SaveRun(saveCtx, run); err != nil {
		return run, NewPermanentError("saving run results", err).WithCode(ErrCodeStateStore)
	}
	e.publish(run.ID, "", EventTypeRunCompleted, fmt.Sprintf("run %s: %s", run.ID, run.Status))
	return run, nil
}

// runLevel executes every action in one level on a bounded worker pool.
func (e *Executor) runLevel(ctx context.Context, runID string, level []*PlannedAction) {
	if len(level) == 0 {
		return
	}
	workers := e.maxParallel
	if len(level) < workers {
		workers = len(level)
	}

	queue := make(chan *PlannedAction, len(level))
	for _, a := range level {
		queue <- a
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for action := range queue {
				if ctx.Err() != nil {
					e.markCancelled(action)
					continue
				}
				if failedDep := e.failedDependency(action); failedDep != "" {
					e.markSkipped(runID, action, failedDep)
					continue
				}
				e.executeAction(ctx, runID, action)
			}
		}()
	}
	wg.Wait()
}

// executeAction runs one action through its provider and persists the
// resulting state.
func (e *Executor) executeAction(ctx context.Context, runID string, action *PlannedAction) {
	e.setStatus(action.Identity, ActionStatusRunning)
	started := time.Now().UTC()

	if action.Op == ActionNoop {
		e.recordNoop(action, started)
		return
	}

	e.publish(runID, action.Identity, EventTypeActionStarted,
		fmt.Sprintf("%s %s", action.Op, action.Identity))

	err := e.applyOperation(ctx, runID, action)
	completed := time.Now().UTC()

	if err != nil {
		engineErr := classify(err).WithResource(action.Identity).WithOperation(string(action.Op))
		e.recordFailure(action, started, completed, engineErr)
		e.publish(runID, action.Identity, EventTypeActionFailed,
			fmt.Sprintf("%s %s: %v", action.Op, action.Identity, engineErr))
		return
	}

	e.recordSuccess(action, started, completed)
	e.publish(runID, action.Identity, EventTypeActionCompleted,
		fmt.Sprintf("%s %s", action.Op, action.Identity))
}

// applyOperation dispatches to the provider and writes state. The state
// write happens before the action is reported successful; a write failure
// fails the action even though the provider call went through.
func (e *Executor) applyOperation(ctx context.Context, runID string, action *PlannedAction) error {
	provider, err := e.registry.Provider(action.Type)
	if err != nil {
		return NewPermanentError("no provider for resource type", err).
			WithCode(ErrCodeValidation)
	}

	if action.Op == ActionDelete {
		if err := provider.Delete(ctx, action.ProviderID); err != nil {
			return err
		}
		if err := e.store.Remove(ctx, action.Identity); err != nil {
			return NewPermanentError("removing state", err).WithCode(ErrCodeStateStore)
		}
		e.publish(runID, action.Identity, EventTypeStateSaved,
			fmt.Sprintf("state removed for %s", action.Identity))
		return nil
	}

	attrs, err := e.resolveAttributes(action)
	if err != nil {
		return err
	}

	var providerID string
	var outputs map[string]any
	switch action.Op {
	case ActionCreate:
		// A create that carries a prior type replaces a resource whose
		// declared type changed: the old resource goes first, through the
		// old type's provider.
		if action.PriorType != "" && action.ProviderID != "" {
			prior, perr := e.registry.Provider(action.PriorType)
			if perr != nil {
				return NewPermanentError("no provider for prior resource type", perr).
					WithCode(ErrCodeValidation)
			}
			if derr := prior.Delete(ctx, action.ProviderID); derr != nil {
				return derr
			}
		}
		providerID, outputs, err = provider.Create(ctx, action.Identity, attrs)
	case ActionUpdate:
		providerID = action.ProviderID
		outputs, err = provider.Update(ctx, action.ProviderID, attrs)
	default:
		return NewPermanentError(fmt.Sprintf("unexpected operation %q", action.Op), nil).
			WithCode(ErrCodeInternal)
	}
	if err != nil {
		return err
	}

	record := &StateRecord{
		Identity:     action.Identity,
		Type:         action.Type,
		ProviderID:   providerID,
		Attributes:   attrs,
		Outputs:      outputs,
		Dependencies: action.Dependencies,
		LastRunID:    runID,
		AppliedAt:    time.Now().UTC(),
	}
	if err := e.store.Save(ctx, record); err != nil {
		return NewPermanentError("saving state", err).WithCode(ErrCodeStateStore)
	}
	e.publish(runID, action.Identity, EventTypeStateSaved,
		fmt.Sprintf("state saved for %s", action.Identity))

	e.setValues(action.Identity, mergeValues(outputs, attrs))
	return nil
}

// resolveAttributes re-evaluates the action's attribute expressions against
// live post-apply values, replacing the unknown sentinels left by planning.
func (e *Executor) resolveAttributes(action *PlannedAction) (map[string]any, error) {
	var missing *Reference
	lookup := func(ref Reference) any {
		if vals := e.getValues(ref.Identity); vals != nil {
			if v, ok := vals[ref.Attribute]; ok {
				return v
			}
		}
		if missing == nil {
			missing = &ref
		}
		return Unknown
	}

	attrs := make(map[string]any, len(action.Attributes))
	for name, expr := range action.Attributes {
		attrs[name] = resolveExpr(expr, lookup)
	}
	if missing != nil {
		return nil, NewPermanentError(
			fmt.Sprintf("dependency %s did not produce output %q", missing.Identity, missing.Attribute), nil).
			WithCode(ErrCodeProviderFailed)
	}
	return attrs, nil
}

// mergeValues overlays attrs on top of outputs so reference lookups see
// declared attributes first and provider outputs for everything else.
func mergeValues(outputs, attrs map[string]any) map[string]any {
	merged := make(map[string]any, len(outputs)+len(attrs))
	for k, v := range outputs {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = v
	}
	return merged
}

// recordNoop marks an unchanged resource and loads its stored values so
// dependents can still resolve references through it.
func (e *Executor) recordNoop(action *PlannedAction, started time.Time) {
	// Lookup failures here degrade dependents to unknown-output errors
	// rather than failing the unchanged resource itself.
	if rec, err := e.store.Get(context.Background(), action.Identity); err == nil && rec != nil {
		e.setValues(action.Identity, mergeValues(rec.Outputs, rec.Attributes))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[action.Identity] = ActionStatusUnchanged
	e.results[action.Identity] = &ActionResult{
		Identity:    action.Identity,
		Op:          action.Op,
		Status:      ActionStatusUnchanged,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	}
}

func (e *Executor) recordSuccess(action *PlannedAction, started, completed time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[action.Identity] = ActionStatusSucceeded
	e.results[action.Identity] = &ActionResult{
		Identity:    action.Identity,
		Op:          action.Op,
		Status:      ActionStatusSucceeded,
		StartedAt:   started,
		CompletedAt: completed,
	}
}

func (e *Executor) recordFailure(action *PlannedAction, started, completed time.Time, engineErr *EngineError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[action.Identity] = ActionStatusFailed
	e.failures[action.Identity] = engineErr
	e.results[action.Identity] = &ActionResult{
		Identity:    action.Identity,
		Op:          action.Op,
		Status:      ActionStatusFailed,
		StartedAt:   started,
		CompletedAt: completed,
		Err:         engineErr,
	}
}

// failedDependency returns the identity of a dependency that did not end in
// a usable state, or "" if the action may proceed.
func (e *Executor) failedDependency(action *PlannedAction) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dep := range action.Dependencies {
		switch e.statuses[dep] {
		case ActionStatusSucceeded, ActionStatusUnchanged:
		default:
			return dep
		}
	}
	return ""
}

// markSkipped records an action skipped because of a failed dependency.
// Skips cascade: dependents of a skipped action see a non-usable status and
// skip in turn.
func (e *Executor) markSkipped(runID string, action *PlannedAction, failedDep string) {
	engineErr := NewPermanentError(
		fmt.Sprintf("dependency %s did not complete", failedDep), nil).
		WithCode(ErrCodeDependencyFailed).
		WithResource(action.Identity)

	e.mu.Lock()
	e.statuses[action.Identity] = ActionStatusSkipped
	e.failures[action.Identity] = engineErr
	e.results[action.Identity] = &ActionResult{
		Identity: action.Identity,
		Op:       action.Op,
		Status:   ActionStatusSkipped,
		Err:      engineErr,
	}
	e.mu.Unlock()

	e.publish(runID, action.Identity, EventTypeActionSkipped,
		fmt.Sprintf("skipping %s: dependency %s did not complete", action.Identity, failedDep))
}

func (e *Executor) markCancelled(action *PlannedAction) {
	engineErr := NewTransientError("run cancelled before action started", nil).
		WithCode(ErrCodeCancelled).
		WithResource(action.Identity)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[action.Identity] = ActionStatusCancelled
	e.results[action.Identity] = &ActionResult{
		Identity: action.Identity,
		Op:       action.Op,
		Status:   ActionStatusCancelled,
		Err:      engineErr,
	}
}

func (e *Executor) markRemainingCancelled(actions []PlannedAction) {
	for i := range actions {
		a := &actions[i]
		e.mu.Lock()
		pending := e.statuses[a.Identity] == ActionStatusPending
		e.mu.Unlock()
		if pending {
			e.markCancelled(a)
		}
	}
}

// finishRun assembles the results in plan order and derives the summary and
// overall status.
func (e *Executor) finishRun(run *Run, actions []PlannedAction, cancelled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range actions {
		a := &actions[i]
		result := e.results[a.Identity]
		if result == nil {
			result = &ActionResult{Identity: a.Identity, Op: a.Op, Status: ActionStatusCancelled}
		}
		run.Results = append(run.Results, *result)

		switch result.Status {
		case ActionStatusSucceeded:
			switch a.Op {
			case ActionCreate:
				run.Summary.Created++
			case ActionUpdate:
				run.Summary.Updated++
			case ActionDelete:
				run.Summary.Deleted++
			}
		case ActionStatusUnchanged:
			run.Summary.Unchanged++
		case ActionStatusFailed:
			run.Summary.Failed++
		case ActionStatusSkipped:
			run.Summary.Skipped++
		case ActionStatusCancelled:
			run.Summary.Cancelled++
		}
	}

	completed := time.Now().UTC()
	run.CompletedAt = &completed

	applied := run.Summary.Created + run.Summary.Updated + run.Summary.Deleted
	switch {
	case cancelled:
		run.Status = RunStatusCancelled
	case run.Summary.Failed == 0 && run.Summary.Skipped == 0:
		run.Status = RunStatusSucceeded
	case applied > 0 || run.Summary.Unchanged > 0:
		run.Status = RunStatusPartial
	default:
		run.Status = RunStatusFailed
	}
}

func (e *Executor) setStatus(identity string, status ActionStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[identity] = status
}

func (e *Executor) setValues(identity string, vals map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[identity] = vals
}

func (e *Executor) getValues(identity string) map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.values[identity]
}

func (e *Executor) publish(runID, identity string, eventType EventType, message string) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Identity:  identity,
		Message:   message,
	})
}

// classify normalizes an arbitrary error into an EngineError, preserving an
// existing classification.
func classify(err error) *EngineError {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr
	}
	return NewPermanentError("provider call failed", err).WithCode(ErrCodeProviderFailed)
}

// SortActions orders actions for display: level ascending, deletes before
// creates within a level, declaration order otherwise preserved.
func SortActions(actions []PlannedAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Level != actions[j].Level {
			return actions[i].Level < actions[j].Level
		}
		di, dj := actions[i].Op == ActionDelete, actions[j].Op == ActionDelete
		return di && !dj
	})
}
