package policy

// BuiltinPolicies returns the admission rules loaded into every gate.
func BuiltinPolicies() []Policy {
	return []Policy{
		operationBudgetPolicy(),
		storeKeyNamingPolicy(),
		cacheTTLPolicy(),
	}
}

// operationBudgetPolicy caps how many operations one directive may carry.
func operationBudgetPolicy() Policy {
	return Policy{
		Name:        "operation-budget",
		Description: "Caps the number of operations a single directive may request",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"limits"},
		Rego: `package dirigent.policies.budget

import rego.v1

max_operations := 50

deny contains violation if {
	count(input.directive.operations) > max_operations
	violation := {
		"message": sprintf("directive has %d operations, limit is %d", [count(input.directive.operations), max_operations]),
		"severity": "error",
	}
}

deny contains violation if {
	count(input.directive.transitions) > max_operations
	violation := {
		"message": sprintf("directive has %d transitions, limit is %d", [count(input.directive.transitions), max_operations]),
		"severity": "error",
	}
}
`,
	}
}

// storeKeyNamingPolicy enforces lowercase snake_case store keys so that
// template placeholders stay predictable.
func storeKeyNamingPolicy() Policy {
	return Policy{
		Name:        "store-key-naming",
		Description: "Requires store keys to be lowercase snake_case",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming"},
		Rego: `package dirigent.policies.naming

import rego.v1

deny contains violation if {
	some op in input.directive.operations
	op.store
	not regex.match("^[a-z][a-z0-9_]*$", op.store)
	violation := {
		"message": sprintf("store key '%s' must be lowercase snake_case", [op.store]),
		"severity": "error",
	}
}
`,
	}
}

// cacheTTLPolicy bounds requested cache lifetimes. Absurd TTLs usually
// indicate a units mistake in the producing tool.
func cacheTTLPolicy() Policy {
	return Policy{
		Name:        "cache-ttl-bounds",
		Description: "Warns when a directive requests a cache TTL above one day",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"caching"},
		Rego: `package dirigent.policies.caching

import rego.v1

max_ttl_seconds := 86400

deny contains violation if {
	input.directive.metadata.cache_ttl > max_ttl_seconds
	violation := {
		"message": sprintf("cache TTL %d seconds exceeds the %d second ceiling", [input.directive.metadata.cache_ttl, max_ttl_seconds]),
		"severity": "warning",
	}
}
`,
	}
}
