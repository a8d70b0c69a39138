package engine

import (
	"github.com/tosin2013/dirigent/pkg/directive"
)

// ResolveDependencies performs a single forward pass over the operation
// list, checking that every input and condition key references a store key
// produced strictly earlier in the plan. List order is authoritative; the
// producer is trusted to emit a valid sequence, so no sorting happens here.
//
// The pass is deterministic and side-effect-free, which lets it double as a
// static linter for directive producers. It applies only to the linear
// operation mode; state-machine transitions resolve state at runtime.
func ResolveDependencies(d *directive.OrchestrationDirective) error {
	produced := make(map[string]bool, len(d.Operations))

	for i, op := range d.Operations {
		if op.Input != "" && !produced[op.Input] {
			return &UnresolvedReferenceError{Key: op.Input, Index: i, Op: string(op.Op)}
		}
		for _, key := range op.Inputs {
			if !produced[key] {
				return &UnresolvedReferenceError{Key: key, Index: i, Op: string(op.Op)}
			}
		}
		if op.Condition != nil && !produced[op.Condition.Key] {
			return &UnresolvedReferenceError{Key: op.Condition.Key, Index: i, Op: string(op.Op)}
		}

		// The store key becomes visible only to later operations; a self
		// reference is a violation like any other.
		if op.Store != "" {
			produced[op.Store] = true
		}
	}

	if d.Compose != nil {
		for _, s := range d.Compose.Sections {
			if opAliasPattern.MatchString(s.Source) {
				continue // position aliases were bounds-checked at validation
			}
			if !produced[s.Source] {
				return &UnresolvedReferenceError{Key: s.Source, Index: len(d.Operations), Op: "compose"}
			}
		}
	}

	return nil
}
