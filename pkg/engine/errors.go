// Package engine executes sandbox directives: it validates a plan, resolves
// data dependencies between operations, runs registered executors in order
// under resource limits, evaluates conditional branches, composes the final
// artifact from stored results, and memoizes whole runs through the cache
// layer. A second mode walks explicit state machines with per-transition
// error policies.
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// LimitKind tags a ResourceLimitExceededError with the exhausted budget.
type LimitKind string

const (
	// LimitTimeout is the aggregate wall-clock budget.
	LimitTimeout LimitKind = "timeout"

	// LimitMemory is the heap ceiling.
	LimitMemory LimitKind = "memory"

	// LimitFSOperations is the filesystem-operation budget.
	LimitFSOperations LimitKind = "fs"
)

// ValidationError reports every structural violation found in a directive.
// It is produced before any side effect.
type ValidationError struct {
	// Violations lists all problems found, not just the first.
	Violations []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "directive validation failed: " + e.Violations[0]
	}
	return fmt.Sprintf("directive validation failed (%d violations): %s",
		len(e.Violations), strings.Join(e.Violations, "; "))
}

// UnresolvedReferenceError reports a data reference to a key no earlier
// operation produced. It is emitted before any operation executes.
type UnresolvedReferenceError struct {
	// Key is the missing state-store key.
	Key string

	// Index is the position of the offending operation in the plan.
	Index int

	// Op is the offending operation's kind.
	Op string
}

// Error implements the error interface.
func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("operation %d (%s) references %q, which no earlier operation stores",
		e.Index, e.Op, e.Key)
}

// OperationNotRegisteredError reports a configuration gap: the directive
// names an operation no executor was registered for.
type OperationNotRegisteredError struct {
	// Op is the unregistered operation name.
	Op string
}

// Error implements the error interface.
func (e *OperationNotRegisteredError) Error() string {
	return fmt.Sprintf("no executor registered for operation %q", e.Op)
}

// ResourceLimitExceededError reports an exhausted execution budget.
type ResourceLimitExceededError struct {
	// Kind tags which budget was exhausted.
	Kind LimitKind

	// Detail describes the budget and the observed usage.
	Detail string
}

// Error implements the error interface.
func (e *ResourceLimitExceededError) Error() string {
	return fmt.Sprintf("resource limit exceeded (%s): %s", e.Kind, e.Detail)
}

// NetworkDisallowedError reports a policy violation: an operation requiring
// network access was planned while the sandbox forbids it. It is raised
// before the executor is invoked.
type NetworkDisallowedError struct {
	// Op is the operation that requires network access.
	Op string
}

// Error implements the error interface.
func (e *NetworkDisallowedError) Error() string {
	return fmt.Sprintf("operation %q requires network access, which the sandbox disallows", e.Op)
}

// OperationExecutionError wraps a failure raised by a specific executor.
// It aborts the remainder of the run; partial state is retained only for
// diagnostics.
type OperationExecutionError struct {
	// Op is the failing operation's kind.
	Op string

	// Index is its position in the plan, or -1 for state-machine runs.
	Index int

	// Err is the executor's failure.
	Err error
}

// Error implements the error interface.
func (e *OperationExecutionError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("operation %d (%s) failed: %v", e.Index, e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the executor's failure.
func (e *OperationExecutionError) Unwrap() error {
	return e.Err
}

// CompositionError reports a template or section resolution failure. The
// whole composition fails; no partial output is valid.
type CompositionError struct {
	// Section is the section key or placeholder involved, if known.
	Section string

	// Detail describes the failure.
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *CompositionError) Error() string {
	msg := "composition failed"
	if e.Section != "" {
		msg += " for " + e.Section
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CompositionError) Unwrap() error {
	return e.Err
}

// CacheError reports a cache serialization or storage failure. It is
// non-fatal: execution proceeds as a cache miss.
type CacheError struct {
	// Key is the cache key involved.
	Key string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache operation failed for key %q: %v", e.Key, e.Err)
}

// Unwrap returns the underlying failure.
func (e *CacheError) Unwrap() error {
	return e.Err
}

// StateMachineAbortError reports a transition failure under the abort
// policy, or retry exhaustion. State is preserved for diagnostics.
type StateMachineAbortError struct {
	// Transition is the failing transition's name.
	Transition string

	// State is the state the machine was in when it failed.
	State string

	// Attempts counts how many times the transition was attempted.
	Attempts int

	// Err is the last operation failure.
	Err error
}

// Error implements the error interface.
func (e *StateMachineAbortError) Error() string {
	return fmt.Sprintf("state machine aborted at %q (transition %q, %d attempts): %v",
		e.State, e.Transition, e.Attempts, e.Err)
}

// Unwrap returns the last operation failure.
func (e *StateMachineAbortError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a directive validation failure.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsUnresolvedReference reports whether err is a dependency resolution failure.
func IsUnresolvedReference(err error) bool {
	var e *UnresolvedReferenceError
	return errors.As(err, &e)
}

// IsResourceLimit reports whether err is a resource budget failure of the
// given kind. An empty kind matches any budget.
func IsResourceLimit(err error, kind LimitKind) bool {
	var e *ResourceLimitExceededError
	if !errors.As(err, &e) {
		return false
	}
	return kind == "" || e.Kind == kind
}

// IsNetworkDisallowed reports whether err is a network policy violation.
func IsNetworkDisallowed(err error) bool {
	var e *NetworkDisallowedError
	return errors.As(err, &e)
}
