package engine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/tosin2013/dirigent/pkg/directive"
)

// EvaluateCondition is the pure predicate over the current state store.
// A nil condition always passes. Unknown operators evaluate to false.
func EvaluateCondition(sandbox *directive.SandboxContext, c *directive.Condition) bool {
	if c == nil {
		return true
	}

	value, present := sandbox.Get(c.Key)

	switch c.Operator {
	case directive.CondExists:
		return present
	case directive.CondEquals:
		return present && deepEqual(value, c.Value)
	case directive.CondContains:
		return present && contains(value, c.Value)
	case directive.CondTruthy:
		return present && truthy(value)
	default:
		return false
	}
}

// deepEqual compares values structurally, tolerating the numeric type
// drift introduced by JSON decoding (int vs int64 vs float64).
func deepEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// contains reports whether the state value, as a string or sequence,
// includes the operand.
func contains(value, operand any) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, fmt.Sprint(operand))
	case []any:
		for _, item := range v {
			if deepEqual(item, operand) {
				return true
			}
		}
		return false
	case []string:
		needle := fmt.Sprint(operand)
		for _, item := range v {
			if item == needle {
				return true
			}
		}
		return false
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				if deepEqual(rv.Index(i).Interface(), operand) {
					return true
				}
			}
		}
		return false
	}
}

// truthy reports whether a state value counts as set: not nil, false,
// zero, empty string, or empty sequence.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	default:
		if f, ok := asFloat(value); ok {
			return f != 0
		}
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			return rv.Len() > 0
		case reflect.Ptr, reflect.Interface:
			return !rv.IsNil()
		}
		return true
	}
}
