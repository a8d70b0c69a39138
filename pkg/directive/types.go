// Package directive defines the declarative execution plans returned by tools
// in place of direct output, and the sandbox types the engine executes them
// against. A directive is immutable once parsed; the only mutable data in the
// system is the per-execution state store owned by a SandboxContext.
package directive

// ResponseType discriminates the three shapes a tool may return.
type ResponseType string

const (
	// ResponseTypeContent is a terminal text response; no execution needed.
	ResponseTypeContent ResponseType = "content"

	// ResponseTypeOrchestration is a linear operation plan.
	ResponseTypeOrchestration ResponseType = "orchestration"

	// ResponseTypeStateMachine is an explicit state/transition plan.
	ResponseTypeStateMachine ResponseType = "state-machine"
)

// OperationKind identifies a registered executor by name.
type OperationKind string

const (
	OpLoadKnowledge   OperationKind = "loadKnowledge"
	OpLoadPrompt      OperationKind = "loadPrompt"
	OpAnalyzeFiles    OperationKind = "analyzeFiles"
	OpScanEnvironment OperationKind = "scanEnvironment"
	OpGenerateContext OperationKind = "generateContext"
	OpComposeResult   OperationKind = "composeResult"
	OpValidateOutput  OperationKind = "validateOutput"
	OpCacheResult     OperationKind = "cacheResult"
	OpRetrieveCache   OperationKind = "retrieveCache"
)

// Kinds returns every operation kind the engine knows about. An engine
// instance cannot run directives until all of them have a registered executor.
func Kinds() []OperationKind {
	return []OperationKind{
		OpLoadKnowledge,
		OpLoadPrompt,
		OpAnalyzeFiles,
		OpScanEnvironment,
		OpGenerateContext,
		OpComposeResult,
		OpValidateOutput,
		OpCacheResult,
		OpRetrieveCache,
	}
}

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	switch k {
	case OpLoadKnowledge, OpLoadPrompt, OpAnalyzeFiles, OpScanEnvironment,
		OpGenerateContext, OpComposeResult, OpValidateOutput,
		OpCacheResult, OpRetrieveCache:
		return true
	}
	return false
}

// ConditionOperator is a predicate kind evaluated against the state store.
type ConditionOperator string

const (
	// CondExists is satisfied when the key is present, regardless of value.
	CondExists ConditionOperator = "exists"

	// CondEquals is satisfied on deep value equality with Condition.Value.
	CondEquals ConditionOperator = "equals"

	// CondContains is satisfied when the state value is a string or sequence
	// that includes Condition.Value.
	CondContains ConditionOperator = "contains"

	// CondTruthy is satisfied when the state value is not absent, false,
	// zero, empty string, empty sequence, or nil.
	CondTruthy ConditionOperator = "truthy"
)

// Valid reports whether o is a known condition operator.
func (o ConditionOperator) Valid() bool {
	switch o {
	case CondExists, CondEquals, CondContains, CondTruthy:
		return true
	}
	return false
}

// Condition gates an operation on a previously stored value.
type Condition struct {
	// Key is the state-store key the predicate reads.
	Key string `json:"key" yaml:"key" validate:"required"`

	// Operator selects the predicate kind.
	Operator ConditionOperator `json:"operator" yaml:"operator" validate:"required"`

	// Value is the comparison operand for equals/contains.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`
}

// Operation is one bounded step in an orchestration plan.
type Operation struct {
	// Op names the registered executor to invoke.
	Op OperationKind `json:"op" yaml:"op" validate:"required"`

	// Args are the executor's literal arguments.
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty"`

	// Store, if set, is the state-store key the result is written under.
	// Unique within a directive's operation list.
	Store string `json:"store,omitempty" yaml:"store,omitempty"`

	// Input references a single store key produced by an earlier operation.
	Input string `json:"input,omitempty" yaml:"input,omitempty"`

	// Inputs references multiple store keys produced by earlier operations.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Return marks the result for inclusion in the directive's output when
	// no composition block is present.
	Return bool `json:"return,omitempty" yaml:"return,omitempty"`

	// Condition, if set, gates execution; a false predicate skips the
	// operation entirely.
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// TransformKind is a per-section value transform applied during composition.
type TransformKind string

const (
	// TransformSummarize produces a bounded-length condensed representation.
	TransformSummarize TransformKind = "summarize"

	// TransformExtract pulls a named sub-path out of a structured value.
	TransformExtract TransformKind = "extract"

	// TransformFormat renders the value according to the transform options.
	TransformFormat TransformKind = "format"

	// TransformFilter retains only sequence elements matching a predicate.
	TransformFilter TransformKind = "filter"
)

// Valid reports whether t is a known transform kind.
func (t TransformKind) Valid() bool {
	switch t {
	case TransformSummarize, TransformExtract, TransformFormat, TransformFilter:
		return true
	}
	return false
}

// ComposeFormat is the encoding of the final composed artifact.
type ComposeFormat string

const (
	FormatJSON     ComposeFormat = "json"
	FormatMarkdown ComposeFormat = "markdown"
	FormatText     ComposeFormat = "text"
)

// Valid reports whether f is a known composition format.
func (f ComposeFormat) Valid() bool {
	switch f {
	case FormatJSON, FormatMarkdown, FormatText:
		return true
	}
	return false
}

// CompositionSection binds one state-store value, optionally transformed,
// to a template placeholder key.
type CompositionSection struct {
	// Source is a state-store key, or the reserved alias "@op:<index>"
	// addressing an operation's result by its position in the plan.
	Source string `json:"source" yaml:"source" validate:"required"`

	// Key is the placeholder name the bound value substitutes in the template.
	Key string `json:"key" yaml:"key" validate:"required"`

	// Transform, if set, is applied to the value before binding.
	Transform TransformKind `json:"transform,omitempty" yaml:"transform,omitempty"`

	// TransformOptions parameterize the transform (lengths, paths,
	// predicates, render templates).
	TransformOptions map[string]any `json:"transformOptions,omitempty" yaml:"transformOptions,omitempty"`
}

// CompositionDirective assembles the final artifact from stored results.
type CompositionDirective struct {
	// Sections bind store values to template keys.
	Sections []CompositionSection `json:"sections" yaml:"sections" validate:"required,min=1"`

	// Template is the output skeleton with "{{key}}" placeholders.
	Template string `json:"template" yaml:"template" validate:"required"`

	// Format is the encoding of the rendered result.
	Format ComposeFormat `json:"format" yaml:"format" validate:"required"`
}

// DirectiveMetadata carries caching hints and versioning for a directive.
type DirectiveMetadata struct {
	// CacheKey, if set, overrides the derived whole-directive cache key.
	CacheKey string `json:"cache_key,omitempty" yaml:"cache_key,omitempty"`

	// CacheTTL is the cache entry lifetime in seconds. Zero means the
	// cache layer's default.
	CacheTTL int `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`

	// Version is the directive format version.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// OrchestrationDirective is a linear operation plan with optional composition.
type OrchestrationDirective struct {
	// Type is always ResponseTypeOrchestration.
	Type ResponseType `json:"type" yaml:"type" validate:"required"`

	// Tool identifies the producing tool.
	Tool string `json:"tool" yaml:"tool" validate:"required"`

	// Description is a human-readable account of what the plan does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Operations execute strictly in list order.
	Operations []Operation `json:"operations" yaml:"operations" validate:"required,min=1"`

	// Compose, if present, assembles the final artifact after the last
	// operation completes.
	Compose *CompositionDirective `json:"compose,omitempty" yaml:"compose,omitempty"`

	// Metadata carries caching hints.
	Metadata DirectiveMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ErrorPolicy selects how a failed state transition is handled.
type ErrorPolicy string

const (
	// PolicyRetry re-attempts the transition up to MaxRetries times.
	PolicyRetry ErrorPolicy = "retry"

	// PolicySkip treats the transition as a no-op and advances anyway.
	PolicySkip ErrorPolicy = "skip"

	// PolicyAbort fails the whole run immediately. Default when unset.
	PolicyAbort ErrorPolicy = "abort"
)

// Valid reports whether p is a known error policy.
func (p ErrorPolicy) Valid() bool {
	switch p {
	case PolicyRetry, PolicySkip, PolicyAbort:
		return true
	}
	return false
}

// StateTransition is one edge of a state-machine plan.
type StateTransition struct {
	// Name identifies the transition in diagnostics.
	Name string `json:"name" yaml:"name" validate:"required"`

	// From is the state this transition leaves. Either "initial" or some
	// transition's NextState. From may equal NextState to model retry loops.
	From string `json:"from" yaml:"from" validate:"required"`

	// Operation is executed when the transition fires.
	Operation Operation `json:"operation" yaml:"operation" validate:"required"`

	// NextState is entered after the operation succeeds.
	NextState string `json:"next_state" yaml:"next_state" validate:"required"`

	// OnError selects the failure policy. Empty means abort.
	OnError ErrorPolicy `json:"on_error,omitempty" yaml:"on_error,omitempty"`

	// MaxRetries bounds re-attempts under the retry policy.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"min=0"`
}

// StateMachineDirective is the alternate plan shape with explicit named states.
type StateMachineDirective struct {
	// Type is always ResponseTypeStateMachine.
	Type ResponseType `json:"type" yaml:"type" validate:"required"`

	// Tool identifies the producing tool.
	Tool string `json:"tool" yaml:"tool" validate:"required"`

	// Description is a human-readable account of what the plan does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// InitialState is where execution starts. Conventionally "initial".
	InitialState string `json:"initial_state" yaml:"initial_state" validate:"required"`

	// FinalState terminates execution; the value stored under it becomes
	// the result data.
	FinalState string `json:"final_state" yaml:"final_state" validate:"required"`

	// Transitions are the edges of the state graph. FinalState must be
	// reachable from InitialState along some path.
	Transitions []StateTransition `json:"transitions" yaml:"transitions" validate:"required,min=1"`

	// Metadata carries caching hints.
	Metadata DirectiveMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Response is the tagged union a tool hands back to its caller: plain
// content, an orchestration plan, or a state-machine plan. Exactly one of
// the payload fields is set, matching Type.
type Response struct {
	// Type discriminates the payload.
	Type ResponseType `json:"type" yaml:"type"`

	// Content is the terminal text when Type is ResponseTypeContent.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`

	// Orchestration is the plan when Type is ResponseTypeOrchestration.
	Orchestration *OrchestrationDirective `json:"-" yaml:"-"`

	// StateMachine is the plan when Type is ResponseTypeStateMachine.
	StateMachine *StateMachineDirective `json:"-" yaml:"-"`
}
