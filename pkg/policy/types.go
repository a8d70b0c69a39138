// Package policy gates directives through Rego admission policies before
// the engine runs them. Policies see the decoded directive as input and
// contribute deny violations; any error-severity violation blocks execution.
package policy

import (
	"time"
)

// Severity is the weight of a policy violation.
type Severity string

const (
	// SeverityWarning flags a violation worth reviewing without blocking.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the directive from executing.
	SeverityError Severity = "error"
)

// Policy is one admission rule with its Rego source.
type Policy struct {
	// Name uniquely identifies the policy.
	Name string `json:"name"`

	// Description explains what the policy enforces.
	Description string `json:"description"`

	// Rego is the policy source. Its package must expose a "deny" set.
	Rego string `json:"rego"`

	// Severity applies to violations that do not carry their own.
	Severity Severity `json:"severity"`

	// Enabled toggles the policy without unloading it.
	Enabled bool `json:"enabled"`

	// Tags label the policy for listing and filtering.
	Tags []string `json:"tags,omitempty"`
}

// Violation is one deny result from one policy.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// Message describes the violation.
	Message string `json:"message"`

	// Severity is the violation's weight.
	Severity Severity `json:"severity"`
}

// Result is the outcome of gating one directive.
type Result struct {
	// Allowed is false when any error-severity violation fired.
	Allowed bool `json:"allowed"`

	// Violations lists every deny result, blocking or not.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies whose evaluation itself failed.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the gate ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Input is the document handed to each policy as Rego input.
type Input struct {
	// Directive is the decoded directive as plain JSON data.
	Directive any `json:"directive"`

	// Context carries evaluation circumstances.
	Context InputContext `json:"context"`
}

// InputContext describes when and how a policy evaluation runs.
type InputContext struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
}
