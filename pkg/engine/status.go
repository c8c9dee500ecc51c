package engine

import (
	"encoding/json"
	"fmt"
)

// ActionType represents the operation a planned action performs on a resource.
type ActionType string

const (
	// ActionCreate indicates a new resource will be created.
	ActionCreate ActionType = "create"

	// ActionUpdate indicates an existing resource will be updated in place.
	ActionUpdate ActionType = "update"

	// ActionDelete indicates a resource present in state but absent from
	// the declarations will be deleted.
	ActionDelete ActionType = "delete"

	// ActionNoop indicates the resource already matches its declaration.
	ActionNoop ActionType = "noop"
)

// IsMutating returns true if the action changes external resource state.
func (a ActionType) IsMutating() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// Validate checks if the action type is valid.
func (a ActionType) Validate() error {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionNoop:
		return nil
	default:
		return fmt.Errorf("invalid action type: %s", a)
	}
}

// ActionStatus represents the status of a planned action during execution.
type ActionStatus string

const (
	// ActionStatusPending indicates the action is waiting to execute.
	ActionStatusPending ActionStatus = "pending"

	// ActionStatusRunning indicates the action is currently executing.
	ActionStatusRunning ActionStatus = "running"

	// ActionStatusSucceeded indicates the action completed successfully.
	ActionStatusSucceeded ActionStatus = "succeeded"

	// ActionStatusFailed indicates the provider call for the action failed.
	ActionStatusFailed ActionStatus = "failed"

	// ActionStatusSkipped indicates the action was not attempted because a
	// dependency failed.
	ActionStatusSkipped ActionStatus = "skipped"

	// ActionStatusCancelled indicates the action was not started because
	// the run was cancelled.
	ActionStatusCancelled ActionStatus = "cancelled"

	// ActionStatusUnchanged indicates a noop action: nothing to do.
	ActionStatusUnchanged ActionStatus = "unchanged"
)

// IsTerminal returns true if the status represents a final state.
func (s ActionStatus) IsTerminal() bool {
	return s == ActionStatusSucceeded || s == ActionStatusFailed ||
		s == ActionStatusSkipped || s == ActionStatusCancelled ||
		s == ActionStatusUnchanged
}

// Validate checks if the action status is valid.
func (s ActionStatus) Validate() error {
	switch s {
	case ActionStatusPending, ActionStatusRunning, ActionStatusSucceeded,
		ActionStatusFailed, ActionStatusSkipped, ActionStatusCancelled,
		ActionStatusUnchanged:
		return nil
	default:
		return fmt.Errorf("invalid action status: %s", s)
	}
}

// RunStatus represents the overall status of an apply run.
type RunStatus string

const (
	// RunStatusPending indicates the run is created but not yet started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every action completed successfully.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates at least one action failed and nothing
	// succeeded.
	RunStatusFailed RunStatus = "failed"

	// RunStatusPartial indicates some actions succeeded while others
	// failed or were skipped.
	RunStatusPartial RunStatus = "partial"

	// RunStatusCancelled indicates the run was cancelled.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed ||
		s == RunStatusPartial || s == RunStatusCancelled
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusPartial, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// EventType represents the type of event in the execution timeline.
type EventType string

const (
	// EventTypeRunStarted indicates a run has started.
	EventTypeRunStarted EventType = "run_started"

	// EventTypeRunCompleted indicates a run has completed.
	EventTypeRunCompleted EventType = "run_completed"

	// EventTypeActionStarted indicates an action has started execution.
	EventTypeActionStarted EventType = "action_started"

	// EventTypeActionCompleted indicates an action completed successfully.
	EventTypeActionCompleted EventType = "action_completed"

	// EventTypeActionFailed indicates an action failed.
	EventTypeActionFailed EventType = "action_failed"

	// EventTypeActionSkipped indicates an action was skipped due to a
	// dependency failure.
	EventTypeActionSkipped EventType = "action_skipped"

	// EventTypeStateSaved indicates a state record was persisted.
	EventTypeStateSaved EventType = "state_saved"
)

// Severity returns the log severity of the event type.
func (e EventType) Severity() string {
	switch e {
	case EventTypeActionFailed:
		return "error"
	case EventTypeActionSkipped:
		return "warning"
	default:
		return "info"
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}
