package directive

import (
	"maps"
	"sort"
	"time"
)

// ResourceLimits bound one directive execution.
type ResourceLimits struct {
	// Timeout is the aggregate wall-clock budget for the whole run.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MemoryBytes is the heap ceiling. Zero disables the check.
	MemoryBytes int64 `json:"memory_bytes,omitempty" yaml:"memory_bytes,omitempty"`

	// FSOperations is the budget of filesystem-touching operations.
	// Zero disables the check.
	FSOperations int `json:"fs_operations,omitempty" yaml:"fs_operations,omitempty"`

	// NetworkAllowed permits operations that reach the network.
	NetworkAllowed bool `json:"network_allowed" yaml:"network_allowed"`
}

// DefaultLimits returns the limits applied when a caller supplies none:
// a 30 second budget, no memory ceiling, 100 filesystem operations, and
// no network access.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		Timeout:        30 * time.Second,
		FSOperations:   100,
		NetworkAllowed: false,
	}
}

// SandboxContext is the execution-scoped environment owned by exactly one
// engine run. It carries the working directory, an environment snapshot,
// the resource limits, and the state store accumulating operation outputs.
// It is not safe for concurrent use; an execution never shares it.
type SandboxContext struct {
	// WorkDir is the working directory executors operate under.
	WorkDir string

	// Env is a snapshot of environment variables visible to executors.
	Env map[string]string

	// Limits bound this execution.
	Limits ResourceLimits

	store map[string]any
}

// NewSandboxContext creates a sandbox rooted at workDir with the given
// environment snapshot and limits. A zero Limits.Timeout is replaced by
// the default limits' timeout.
func NewSandboxContext(workDir string, env map[string]string, limits ResourceLimits) *SandboxContext {
	if limits.Timeout <= 0 {
		limits.Timeout = DefaultLimits().Timeout
	}
	snapshot := make(map[string]string, len(env))
	maps.Copy(snapshot, env)
	return &SandboxContext{
		WorkDir: workDir,
		Env:     snapshot,
		Limits:  limits,
		store:   make(map[string]any),
	}
}

// Get returns the stored value for key and whether it is present.
func (c *SandboxContext) Get(key string) (any, bool) {
	v, ok := c.store[key]
	return v, ok
}

// Set writes value under key, overwriting any prior value.
func (c *SandboxContext) Set(key string, value any) {
	c.store[key] = value
}

// Has reports whether key is present in the state store.
func (c *SandboxContext) Has(key string) bool {
	_, ok := c.store[key]
	return ok
}

// Keys returns the stored keys in sorted order.
func (c *SandboxContext) Keys() []string {
	keys := make([]string, 0, len(c.store))
	for k := range c.store {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy of the state store for diagnostics.
func (c *SandboxContext) Snapshot() map[string]any {
	out := make(map[string]any, len(c.store))
	maps.Copy(out, c.store)
	return out
}
