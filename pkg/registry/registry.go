// Package registry maps operation names to concrete executor functions.
// The engine only ever looks executors up by name; the implementations are
// supplied by the embedding tool server at configuration time.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tosin2013/dirigent/pkg/directive"
)

// ExecutorFunc performs one operation. It receives the operation's literal
// arguments, the inputs resolved from the state store, and the sandbox the
// directive runs in. A returned error fails the operation.
type ExecutorFunc func(ctx context.Context, args map[string]any, inputs map[string]any, sandbox *directive.SandboxContext) (any, error)

// Registration associates an operation name with its executor and the
// resource traits the engine enforces for it.
type Registration struct {
	// Name is the operation identifier directives reference.
	Name string

	// Execute performs the operation.
	Execute ExecutorFunc

	// Filesystem marks the operation as filesystem-touching; each
	// invocation draws down the sandbox's fs-operation budget.
	Filesystem bool

	// Network marks the operation as requiring network access; it is
	// rejected before invocation when the sandbox disallows the network.
	Network bool
}

// MissingExecutorsError reports a configuration gap: operation kinds the
// engine knows about that have no registered executor.
type MissingExecutorsError struct {
	// Missing lists the unregistered operation names, sorted.
	Missing []string
}

// Error implements the error interface.
func (e *MissingExecutorsError) Error() string {
	return fmt.Sprintf("registry is missing executors for: %s", strings.Join(e.Missing, ", "))
}

// Registry is a concurrency-safe lookup table from operation name to
// executor. It holds no other state; inject it into each engine instance
// rather than sharing a process-wide singleton.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register adds an executor. Re-registering a name is a configuration
// error; build a new registry instead of mutating a live one.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("registration name is empty")
	}
	if reg.Execute == nil {
		return fmt.Errorf("registration %q has a nil executor", reg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[reg.Name]; exists {
		return fmt.Errorf("executor %q is already registered", reg.Name)
	}
	r.entries[reg.Name] = reg
	return nil
}

// MustRegister is Register that panics on error, for wiring done at startup.
func (r *Registry) MustRegister(reg Registration) {
	if err := r.Register(reg); err != nil {
		panic(err)
	}
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	return reg, ok
}

// Names returns all registered operation names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VerifyComplete checks that every known operation kind has an executor.
// The absence of one is a configuration error, not a directive error.
func (r *Registry) VerifyComplete() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, kind := range directive.Kinds() {
		if _, ok := r.entries[string(kind)]; !ok {
			missing = append(missing, string(kind))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingExecutorsError{Missing: missing}
	}
	return nil
}
