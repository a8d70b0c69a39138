package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tosin2013/dirigent/pkg/directive"
)

// placeholderPattern matches "{{key}}" placeholders in composition templates.
var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_.-]+)\}\}`)

// opAliasPattern matches the reserved "@op:<index>" composition source alias.
var opAliasPattern = regexp.MustCompile(`^@op:(\d+)$`)

// Validator performs the structural check of an incoming directive before
// any side effect. It collects every violation found, not just the first.
type Validator struct {
	structs *validator.Validate
}

// NewValidator creates a directive validator.
func NewValidator() *Validator {
	return &Validator{structs: validator.New()}
}

// ValidateOrchestration checks a linear-operation directive. On failure it
// returns a ValidationError listing all violations.
func (v *Validator) ValidateOrchestration(d *directive.OrchestrationDirective) error {
	if d == nil {
		return &ValidationError{Violations: []string{"directive is nil"}}
	}

	var violations []string

	if d.Type != directive.ResponseTypeOrchestration {
		violations = append(violations,
			fmt.Sprintf("type must be %q, got %q", directive.ResponseTypeOrchestration, d.Type))
	}
	violations = append(violations, v.structViolations(d)...)

	seenStores := make(map[string]int)
	for i, op := range d.Operations {
		if !op.Op.Valid() {
			violations = append(violations,
				fmt.Sprintf("operation %d: unknown op %q", i, op.Op))
		}
		if op.Store != "" {
			if prev, dup := seenStores[op.Store]; dup {
				violations = append(violations,
					fmt.Sprintf("operation %d: duplicate store key %q (first used by operation %d)",
						i, op.Store, prev))
			} else {
				seenStores[op.Store] = i
			}
		}
		if op.Condition != nil {
			violations = append(violations, conditionViolations(i, op.Condition)...)
		}
		if op.Input != "" && len(op.Inputs) > 0 {
			violations = append(violations,
				fmt.Sprintf("operation %d: input and inputs are mutually exclusive", i))
		}
	}

	if d.Compose != nil {
		violations = append(violations, composeViolations(d.Compose, len(d.Operations))...)
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// ValidateStateMachine checks a state-machine directive. On failure it
// returns a ValidationError listing all violations.
func (v *Validator) ValidateStateMachine(d *directive.StateMachineDirective) error {
	if d == nil {
		return &ValidationError{Violations: []string{"directive is nil"}}
	}

	var violations []string

	if d.Type != directive.ResponseTypeStateMachine {
		violations = append(violations,
			fmt.Sprintf("type must be %q, got %q", directive.ResponseTypeStateMachine, d.Type))
	}
	violations = append(violations, v.structViolations(d)...)

	// Every "from" must be the initial state or some transition's next_state.
	targets := make(map[string]bool, len(d.Transitions))
	targets[d.InitialState] = true
	targets["initial"] = true
	for _, t := range d.Transitions {
		targets[t.NextState] = true
	}

	names := make(map[string]bool, len(d.Transitions))
	for i, t := range d.Transitions {
		if names[t.Name] {
			violations = append(violations,
				fmt.Sprintf("transition %d: duplicate name %q", i, t.Name))
		}
		names[t.Name] = true

		if !t.Operation.Op.Valid() {
			violations = append(violations,
				fmt.Sprintf("transition %q: unknown op %q", t.Name, t.Operation.Op))
		}
		if t.OnError != "" && !t.OnError.Valid() {
			violations = append(violations,
				fmt.Sprintf("transition %q: unknown on_error policy %q", t.Name, t.OnError))
		}
		if t.OnError == directive.PolicyRetry && t.MaxRetries <= 0 {
			violations = append(violations,
				fmt.Sprintf("transition %q: retry policy requires max_retries > 0", t.Name))
		}
		if !targets[t.From] {
			violations = append(violations,
				fmt.Sprintf("transition %q: from state %q is neither the initial state nor any transition's next_state",
					t.Name, t.From))
		}
	}

	if !finalReachable(d) {
		violations = append(violations,
			fmt.Sprintf("final state %q is not reachable from %q", d.FinalState, d.InitialState))
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// structViolations runs the tag-level struct check and flattens its
// findings into violation strings.
func (v *Validator) structViolations(s any) []string {
	err := v.structs.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, fmt.Sprintf("%s: fails %q constraint", fe.Namespace(), fe.Tag()))
	}
	return out
}

func conditionViolations(index int, c *directive.Condition) []string {
	var out []string
	if c.Key == "" {
		out = append(out, fmt.Sprintf("operation %d: condition key is empty", index))
	}
	if !c.Operator.Valid() {
		out = append(out, fmt.Sprintf("operation %d: unknown condition operator %q", index, c.Operator))
	}
	if (c.Operator == directive.CondEquals || c.Operator == directive.CondContains) && c.Value == nil {
		out = append(out, fmt.Sprintf("operation %d: condition operator %q requires a value", index, c.Operator))
	}
	return out
}

func composeViolations(c *directive.CompositionDirective, opCount int) []string {
	var out []string

	if !c.Format.Valid() {
		out = append(out, fmt.Sprintf("compose: unknown format %q", c.Format))
	}

	keys := make(map[string]bool, len(c.Sections))
	for i, s := range c.Sections {
		if s.Source == "" {
			out = append(out, fmt.Sprintf("compose section %d: source is empty", i))
		}
		if s.Key == "" {
			out = append(out, fmt.Sprintf("compose section %d: key is empty", i))
		}
		if keys[s.Key] {
			out = append(out, fmt.Sprintf("compose section %d: duplicate key %q", i, s.Key))
		}
		keys[s.Key] = true
		if s.Transform != "" && !s.Transform.Valid() {
			out = append(out, fmt.Sprintf("compose section %d: unknown transform %q", i, s.Transform))
		}
		if m := opAliasPattern.FindStringSubmatch(s.Source); m != nil {
			idx, err := strconv.Atoi(m[1])
			if err != nil || idx >= opCount {
				out = append(out, fmt.Sprintf("compose section %d: source %q addresses an operation outside the plan", i, s.Source))
			}
		}
	}

	// Every template placeholder must be defined by a section.
	for _, m := range placeholderPattern.FindAllStringSubmatch(c.Template, -1) {
		if !keys[m[1]] {
			out = append(out, fmt.Sprintf("compose template: placeholder {{%s}} has no section", m[1]))
		}
	}
	if strings.TrimSpace(c.Template) == "" {
		out = append(out, "compose template: empty")
	}

	return out
}

// finalReachable walks the transition graph from the initial state and
// reports whether the final state can be reached. Cycles are permitted;
// a transition may loop back to its own source state.
func finalReachable(d *directive.StateMachineDirective) bool {
	adjacent := make(map[string][]string, len(d.Transitions))
	for _, t := range d.Transitions {
		from := t.From
		if from == "initial" {
			from = d.InitialState
		}
		adjacent[from] = append(adjacent[from], t.NextState)
	}

	seen := map[string]bool{d.InitialState: true}
	queue := []string{d.InitialState}
	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]
		if state == d.FinalState {
			return true
		}
		for _, next := range adjacent[state] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen[d.FinalState]
}
