package directive

import "time"

// ExecutionEvent is one append-only diagnostic record from a run.
type ExecutionEvent struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Phase is the engine phase active when the event was recorded.
	Phase string `json:"phase"`

	// Message is a human-readable account.
	Message string `json:"message"`

	// Level is the severity (debug, info, warning, error).
	Level string `json:"level"`
}

// ExecutionMetadata is always populated on a result, success or failure,
// to support postmortem diagnostics.
type ExecutionMetadata struct {
	// ExecutionID is the sortable identifier of this run.
	ExecutionID string `json:"executionId"`

	// ExecutionTime is the total wall-clock duration.
	ExecutionTime time.Duration `json:"executionTime"`

	// OperationsExecuted counts operations that actually ran. Skipped
	// operations and cache hits are excluded.
	OperationsExecuted int `json:"operationsExecuted"`

	// PeakMemory is the heap high-water mark observed, in bytes.
	PeakMemory int64 `json:"peakMemory,omitempty"`

	// CachedOperations names operations satisfied from the cache instead
	// of being executed.
	CachedOperations []string `json:"cachedOperations"`

	// SkippedOperations names operations whose condition evaluated false.
	SkippedOperations []string `json:"skippedOperations,omitempty"`

	// TransitionAttempts records per-transition attempt counts for
	// state-machine runs.
	TransitionAttempts map[string]int `json:"transitionAttempts,omitempty"`

	// Events is the append-only diagnostic timeline.
	Events []ExecutionEvent `json:"events,omitempty"`
}

// SandboxExecutionResult is the caller-visible outcome of a directive run.
// It is returned even on failure; Data is only meaningful when Success is
// true.
type SandboxExecutionResult struct {
	// Success reports whether the run completed.
	Success bool `json:"success"`

	// Data is the composed or returned output of a successful run.
	Data any `json:"data,omitempty"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`

	// Metadata carries diagnostics, populated on every result.
	Metadata ExecutionMetadata `json:"metadata"`
}
