package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/tosin2013/dirigent/pkg/telemetry"
)

// Gate holds compiled admission policies and evaluates directives against
// them. Safe for concurrent use.
type Gate struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	logger   *telemetry.Logger
}

// NewGate creates a gate preloaded with the built-in policies.
func NewGate(logger *telemetry.Logger) (*Gate, error) {
	if logger == nil {
		logger = telemetry.Nop()
	}
	g := &Gate{
		policies: make(map[string]*Policy),
		logger:   logger.Component("policy-gate"),
	}
	for _, p := range BuiltinPolicies() {
		policy := p
		if err := g.add(&policy); err != nil {
			return nil, fmt.Errorf("load built-in policy %s: %w", p.Name, err)
		}
	}
	return g, nil
}

// Add registers an additional policy, replacing any same-named one.
func (g *Gate) Add(p Policy) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.add(&p)
}

func (g *Gate) add(p *Policy) error {
	// Compile once up front so broken Rego fails at load time.
	ctx := context.Background()
	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(denyQuery(p.Rego)),
	)
	if _, err := r.PrepareForEval(ctx); err != nil {
		return fmt.Errorf("compile policy %s: %w", p.Name, err)
	}
	g.policies[p.Name] = p
	return nil
}

// Policies lists the loaded policies.
func (g *Gate) Policies() []Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Policy, 0, len(g.policies))
	for _, p := range g.policies {
		out = append(out, *p)
	}
	return out
}

// SetEnabled toggles a policy by name.
func (g *Gate) SetEnabled(name string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	p.Enabled = enabled
	return nil
}

// Evaluate runs every enabled policy against the directive. The directive
// is any decoded directive value; it is seen by Rego as plain JSON data.
// A policy whose evaluation itself errors produces a warning, not a denial.
func (g *Gate) Evaluate(ctx context.Context, d any) (*Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc, err := toDocument(d)
	if err != nil {
		return nil, fmt.Errorf("encode directive for policy input: %w", err)
	}
	input := Input{
		Directive: doc,
		Context: InputContext{
			Timestamp: time.Now(),
			Operation: "admit",
		},
	}

	result := &Result{Allowed: true, EvaluatedAt: time.Now()}
	for _, p := range g.policies {
		if !p.Enabled {
			continue
		}
		violations, err := g.evaluatePolicy(ctx, p, input)
		if err != nil {
			g.logger.WithError(err).Warnf("policy %s evaluation failed", p.Name)
			result.Warnings = append(result.Warnings, fmt.Sprintf("policy %s evaluation failed: %v", p.Name, err))
			continue
		}
		result.Violations = append(result.Violations, violations...)
	}

	for _, v := range result.Violations {
		if v.Severity == SeverityError {
			result.Allowed = false
			break
		}
	}
	return result, nil
}

func (g *Gate) evaluatePolicy(ctx context.Context, p *Policy, input Input) ([]Violation, error) {
	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(denyQuery(p.Rego)),
		rego.Input(input),
	)
	results, err := r.Eval(ctx)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, res := range results {
		for _, expr := range res.Expressions {
			denySet, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, toViolation(p, d))
			}
		}
	}
	return violations, nil
}

// toViolation normalizes a deny result, which may be a bare message string
// or an object with message and severity fields.
func toViolation(p *Policy, result any) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}
	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]any:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

// denyQuery builds the "data.<package>.deny" query for a policy source.
func denyQuery(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				return "data." + fields[1] + ".deny"
			}
		}
	}
	return "data.dirigent.policies.deny"
}

// toDocument round-trips a typed directive through JSON so Rego sees the
// same field names the wire format uses.
func toDocument(d any) (any, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
