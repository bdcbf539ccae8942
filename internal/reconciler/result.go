package reconciler

import (
	"fmt"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/ownership"
)

// Operation names a client-facing engine call.
type Operation string

const (
	OperationQuery  Operation = "query"
	OperationApply  Operation = "apply"
	OperationRevert Operation = "revert"
	OperationStatus Operation = "status"
)

// ActionType represents the type of reconciliation action.
type ActionType string

const (
	// ActionCreate indicates a record will be/was created.
	ActionCreate ActionType = "create"
	// ActionUpdate indicates a record will be/was updated in place.
	ActionUpdate ActionType = "update"
	// ActionConvert indicates a dynamic lease will be/was made static.
	ActionConvert ActionType = "convert"
	// ActionDelete indicates a record will be/was deleted.
	ActionDelete ActionType = "delete"
	// ActionSkip indicates nothing needed to change.
	ActionSkip ActionType = "skip"
)

// ActionStatus represents the outcome of an action.
type ActionStatus string

const (
	// StatusPending indicates the action has not been executed yet.
	StatusPending ActionStatus = "pending"
	// StatusSuccess indicates the action completed successfully.
	StatusSuccess ActionStatus = "success"
	// StatusFailed indicates the action failed.
	StatusFailed ActionStatus = "failed"
	// StatusSkipped indicates the action was skipped (dry-run or already in desired state).
	StatusSkipped ActionStatus = "skipped"
)

// Action represents a single step taken against a device record.
type Action struct {
	// Type is the action type.
	Type ActionType

	// Status is the outcome of the action.
	Status ActionStatus

	// Kind is the record kind, lease or option.
	Kind ownership.Kind

	// Ref is the lease id or option name. Empty for a lease not yet created.
	Ref string

	// Detail describes the change, e.g. the option value or linked option.
	Detail string

	// Error contains the error message if Status is StatusFailed.
	Error string

	// DryRun indicates this action was not actually executed.
	DryRun bool
}

// String returns a human-readable representation of the action.
func (a Action) String() string {
	status := string(a.Status)
	if a.DryRun && a.Status == StatusSuccess {
		status = "dry-run"
	}

	ref := a.Ref
	if ref == "" {
		ref = "(new)"
	}

	s := fmt.Sprintf("[%s] %s %s %s", status, a.Type, a.Kind, ref)
	if a.Detail != "" {
		s += " (" + a.Detail + ")"
	}
	if a.Error != "" {
		s += ": " + a.Error
	}
	return s
}

// Result holds the complete result of one apply or revert.
type Result struct {
	// Client is the client address the operation targeted.
	Client string

	// Operation is apply or revert.
	Operation Operation

	// StartTime is when the operation started.
	StartTime time.Time

	// EndTime is when the operation completed.
	EndTime time.Time

	// Actions contains all steps taken (or planned in dry-run).
	Actions []Action

	// DryRun indicates if this was a dry-run (no changes applied).
	DryRun bool
}

// NewResult creates a new Result with the start time set to now.
func NewResult(op Operation, client string, dryRun bool) *Result {
	return &Result{
		Client:    client,
		Operation: op,
		StartTime: time.Now(),
		Actions:   make([]Action, 0),
		DryRun:    dryRun,
	}
}

// Complete marks the result as complete with the end time set to now.
func (r *Result) Complete() {
	r.EndTime = time.Now()
}

// Duration returns the total operation duration.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// AddAction adds an action to the result.
func (r *Result) AddAction(action Action) {
	action.DryRun = r.DryRun
	r.Actions = append(r.Actions, action)
}

// Created returns all successful create actions.
func (r *Result) Created() []Action {
	return r.filterActions(ActionCreate, StatusSuccess)
}

// Updated returns all successful update and convert actions.
func (r *Result) Updated() []Action {
	return append(r.filterActions(ActionConvert, StatusSuccess), r.filterActions(ActionUpdate, StatusSuccess)...)
}

// Deleted returns all successful delete actions.
func (r *Result) Deleted() []Action {
	return r.filterActions(ActionDelete, StatusSuccess)
}

// Failed returns all failed actions.
func (r *Result) Failed() []Action {
	var failed []Action
	for _, a := range r.Actions {
		if a.Status == StatusFailed {
			failed = append(failed, a)
		}
	}
	return failed
}

// Skipped returns all skipped actions.
func (r *Result) Skipped() []Action {
	var skipped []Action
	for _, a := range r.Actions {
		if a.Status == StatusSkipped || a.Type == ActionSkip {
			skipped = append(skipped, a)
		}
	}
	return skipped
}

func (r *Result) filterActions(actionType ActionType, status ActionStatus) []Action {
	var filtered []Action
	for _, a := range r.Actions {
		if a.Type == actionType && a.Status == status {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// CreatedCount returns the number of records created (or would be in dry-run).
func (r *Result) CreatedCount() int {
	return len(r.Created())
}

// UpdatedCount returns the number of records updated.
func (r *Result) UpdatedCount() int {
	return len(r.Updated())
}

// DeletedCount returns the number of records deleted (or would be in dry-run).
func (r *Result) DeletedCount() int {
	return len(r.Deleted())
}

// FailedCount returns the number of failed actions.
func (r *Result) FailedCount() int {
	return len(r.Failed())
}

// HasErrors returns true if any actions failed.
func (r *Result) HasErrors() bool {
	return r.FailedCount() > 0
}

// Changed reports whether any record was (or in dry-run would be) modified.
func (r *Result) Changed() bool {
	return r.CreatedCount()+r.UpdatedCount()+r.DeletedCount() > 0
}

// Summary returns a human-readable summary of the operation.
func (r *Result) Summary() string {
	var sb strings.Builder

	mode := "applied"
	if r.DryRun {
		mode = "dry-run"
	}

	fmt.Fprintf(&sb, "%s %s complete (%s) in %s\n", r.Operation, r.Client, mode, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "  Records created: %d\n", r.CreatedCount())
	fmt.Fprintf(&sb, "  Records updated: %d\n", r.UpdatedCount())
	fmt.Fprintf(&sb, "  Records deleted: %d\n", r.DeletedCount())
	fmt.Fprintf(&sb, "  Skipped: %d\n", len(r.Skipped()))

	if r.HasErrors() {
		fmt.Fprintf(&sb, "  Failed: %d\n", r.FailedCount())
		for _, a := range r.Failed() {
			fmt.Fprintf(&sb, "    - %s\n", a.String())
		}
	}

	return sb.String()
}
