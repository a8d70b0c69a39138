package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tosin2013/dirigent/pkg/cache"
	"github.com/tosin2013/dirigent/pkg/directive"
	"github.com/tosin2013/dirigent/pkg/policy"
	"github.com/tosin2013/dirigent/pkg/registry"
	"github.com/tosin2013/dirigent/pkg/telemetry"
)

// Config assembles an engine's collaborators. Registry is required; the
// rest are optional. Nothing here is a process-wide singleton: build as
// many engines with as many configurations as needed, side by side.
type Config struct {
	// Registry supplies the operation executors. Every known operation
	// kind must be registered.
	Registry *registry.Registry

	// Cache, when set, memoizes whole-directive results and backs the
	// cacheResult/retrieveCache operations.
	Cache cache.Cache

	// Policies, when set, gates directives through admission policies
	// before execution.
	Policies *policy.Gate

	// Logger receives structured execution logs. Defaults to a no-op.
	Logger *telemetry.Logger

	// Metrics receives execution counters. Optional.
	Metrics *telemetry.Metrics

	// Tracer wraps phases in spans. Optional.
	Tracer *telemetry.Tracer
}

// Engine executes directives. Operations within one directive run strictly
// sequentially; separate directive executions may run concurrently, each
// owning its own sandbox, with the cache as the only shared resource.
type Engine struct {
	registry  *registry.Registry
	cache     cache.Cache
	policies  *policy.Gate
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer
	validator *Validator
	composer  *Composer

	// flights deduplicate concurrent computes of the same cache key, so
	// two executions requesting one expensive key pay for it once.
	flights singleflight.Group
}

// New creates an engine. It fails when the registry is nil or lacks an
// executor for any known operation kind; that is a configuration error,
// surfaced before any directive runs.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("engine requires a registry")
	}
	if err := cfg.Registry.VerifyComplete(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Engine{
		registry:  cfg.Registry,
		cache:     cfg.Cache,
		policies:  cfg.Policies,
		logger:    logger.Component("engine"),
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		validator: NewValidator(),
		composer:  NewComposer(),
	}, nil
}

// Run dispatches a tool response: plain content is returned as final data,
// directives are executed. The caller decides nothing; the discriminant does.
func (e *Engine) Run(ctx context.Context, resp *directive.Response, sandbox *directive.SandboxContext) *directive.SandboxExecutionResult {
	switch resp.Type {
	case directive.ResponseTypeContent:
		return &directive.SandboxExecutionResult{
			Success: true,
			Data:    resp.Content,
			Metadata: directive.ExecutionMetadata{
				ExecutionID:      newExecutionID(),
				CachedOperations: []string{},
			},
		}
	case directive.ResponseTypeOrchestration:
		return e.Execute(ctx, resp.Orchestration, sandbox)
	case directive.ResponseTypeStateMachine:
		return e.ExecuteStateMachine(ctx, resp.StateMachine, sandbox)
	default:
		return failedResult(newRunState(nil), fmt.Errorf("unknown response type %q", resp.Type))
	}
}

// Execute runs a linear-operation directive to completion and always
// returns a result, populated with diagnostics even on failure.
func (e *Engine) Execute(ctx context.Context, d *directive.OrchestrationDirective, sandbox *directive.SandboxContext) *directive.SandboxExecutionResult {
	run := newRunState(sandbox)
	logger := e.logger.WithExecutionID(run.id).WithTool(d.Tool)
	e.metrics.DirectiveStarted(d.Tool, "orchestration")

	result := e.execute(ctx, run, logger, d, sandbox)

	status := "failed"
	if result.Success {
		status = "succeeded"
	}
	e.metrics.DirectiveCompleted(d.Tool, status, result.Metadata.ExecutionTime)
	return result
}

func (e *Engine) execute(ctx context.Context, run *runState, logger *telemetry.Logger, d *directive.OrchestrationDirective, sandbox *directive.SandboxContext) *directive.SandboxExecutionResult {
	ctx, span := e.startSpan(ctx, "directive.execute",
		attribute.String("tool", d.Tool),
		attribute.String("execution_id", run.id))
	var finalErr error
	defer func() { e.endSpan(span, finalErr) }()

	run.enter(PhaseValidating)
	if err := e.validator.ValidateOrchestration(d); err != nil {
		finalErr = err
		return failedResult(run, err)
	}
	if err := e.admit(ctx, d); err != nil {
		finalErr = err
		return failedResult(run, err)
	}

	run.enter(PhaseResolving)
	if err := ResolveDependencies(d); err != nil {
		finalErr = err
		return failedResult(run, err)
	}

	run.enter(PhaseCacheCheck)
	key := cache.DirectiveKey(d)
	if e.cache != nil {
		var stored directive.SandboxExecutionResult
		found, err := e.cache.Get(ctx, key, &stored)
		if err != nil {
			// Cache trouble downgrades to a miss.
			logger.WithError(&CacheError{Key: key, Err: err}).Warn("cache read failed, continuing as miss")
		}
		if found {
			e.metrics.CacheHit("directive")
			logger.Debug("directive satisfied from cache")
			return cachedCopy(run, &stored, operationNames(d.Operations))
		}
		e.metrics.CacheMiss("directive")

		computed := false
		v, err, _ := e.flights.Do(key, func() (any, error) {
			computed = true
			return e.runOperations(ctx, run, logger, d, sandbox, key), nil
		})
		if err != nil {
			finalErr = err
			return failedResult(run, err)
		}
		result := v.(*directive.SandboxExecutionResult)
		if !computed {
			// Another execution computed this key while we waited; adapt
			// the shared result to this run's own identifiers.
			if result.Success {
				return cachedCopy(run, result, operationNames(d.Operations))
			}
			finalErr = errors.New(result.Error)
			return failedResult(run, finalErr)
		}
		if !result.Success {
			finalErr = errors.New(result.Error)
		}
		return result
	}

	result := e.runOperations(ctx, run, logger, d, sandbox, "")
	if !result.Success {
		finalErr = errors.New(result.Error)
	}
	return result
}

// runOperations is the Running and Composing portion of the workflow. A
// non-empty cacheKey stores the result on success.
func (e *Engine) runOperations(ctx context.Context, run *runState, logger *telemetry.Logger, d *directive.OrchestrationDirective, sandbox *directive.SandboxContext, cacheKey string) *directive.SandboxExecutionResult {
	run.enter(PhaseRunning)

	opResults := make([]any, len(d.Operations))
	var returned []any

	for i, op := range d.Operations {
		if err := run.checkBudgets(ctx, sandbox.Limits); err != nil {
			return failedResult(run, err)
		}

		value, skipped, err := e.invokeOperation(ctx, run, logger, &op, i, sandbox)
		if err != nil {
			return failedResult(run, err)
		}
		if skipped {
			continue
		}

		opResults[i] = value
		if op.Store != "" {
			sandbox.Set(op.Store, value)
		}
		if op.Return {
			returned = append(returned, value)
		}
	}

	var data any
	if d.Compose != nil {
		if err := run.checkBudgets(ctx, sandbox.Limits); err != nil {
			return failedResult(run, err)
		}
		run.enter(PhaseComposing)
		composed, err := e.composer.Compose(sandbox, opResults, d.Compose)
		if err != nil {
			return failedResult(run, err)
		}
		data = composed
	} else {
		switch len(returned) {
		case 0:
			data = nil
		case 1:
			data = returned[0]
		default:
			data = returned
		}
	}

	run.enter(PhaseDone)
	result := successResult(run, data)

	if e.cache != nil && cacheKey != "" {
		ttl := cache.TTLOf(d.Metadata)
		if err := e.cache.Set(ctx, cacheKey, result, ttl); err != nil {
			// Write failures never fail the run.
			logger.WithError(&CacheError{Key: cacheKey, Err: err}).Warn("cache write failed")
		}
	}

	return result
}

// invokeOperation applies the per-operation checks and runs the executor.
// index is the plan position, or -1 for state-machine transitions.
func (e *Engine) invokeOperation(ctx context.Context, run *runState, logger *telemetry.Logger, op *directive.Operation, index int, sandbox *directive.SandboxContext) (any, bool, error) {
	name := string(op.Op)

	if !EvaluateCondition(sandbox, op.Condition) {
		run.skip(name)
		e.metrics.OperationSkipped(name)
		logger.WithOperation(name).Debug("condition false, operation skipped")
		return nil, true, nil
	}

	reg, ok := e.registry.Lookup(name)
	if !ok {
		return nil, false, &OperationNotRegisteredError{Op: name}
	}

	if reg.Network && !sandbox.Limits.NetworkAllowed {
		return nil, false, &NetworkDisallowedError{Op: name}
	}
	if reg.Filesystem {
		if err := run.chargeFS(sandbox.Limits); err != nil {
			return nil, false, err
		}
	}
	if err := run.sampleMemory(sandbox.Limits); err != nil {
		return nil, false, err
	}

	inputs := resolveInputs(sandbox, op)

	started := time.Now()
	value, err := reg.Execute(ctx, op.Args, inputs, sandbox)
	elapsed := time.Since(started)

	if err != nil {
		e.metrics.OperationExecuted(name, "failed", elapsed)
		run.event(PhaseRunning, "error", fmt.Sprintf("operation %s failed: %v", name, err))
		return nil, false, &OperationExecutionError{Op: name, Index: index, Err: err}
	}

	run.executed++
	e.metrics.OperationExecuted(name, "succeeded", elapsed)
	logger.WithOperation(name).Debugf("operation completed in %s", elapsed)
	return value, false, nil
}

// resolveInputs reads the operation's data references from the state
// store. Dependency resolution has already proven the keys exist for
// linear plans; state-machine transitions tolerate absent keys, which
// surface as missing map entries to the executor.
func resolveInputs(sandbox *directive.SandboxContext, op *directive.Operation) map[string]any {
	if op.Input == "" && len(op.Inputs) == 0 {
		return nil
	}
	inputs := make(map[string]any, 1+len(op.Inputs))
	if op.Input != "" {
		if v, ok := sandbox.Get(op.Input); ok {
			inputs[op.Input] = v
		}
	}
	for _, key := range op.Inputs {
		if v, ok := sandbox.Get(key); ok {
			inputs[key] = v
		}
	}
	return inputs
}

// admit runs the optional policy gate. Denials surface as validation
// failures: the directive never starts executing.
func (e *Engine) admit(ctx context.Context, d any) error {
	if e.policies == nil {
		return nil
	}
	result, err := e.policies.Evaluate(ctx, d)
	if err != nil {
		return &ValidationError{Violations: []string{fmt.Sprintf("policy evaluation failed: %v", err)}}
	}
	if !result.Allowed {
		violations := make([]string, 0, len(result.Violations))
		for _, v := range result.Violations {
			violations = append(violations, fmt.Sprintf("policy %s: %s", v.Policy, v.Message))
		}
		return &ValidationError{Violations: violations}
	}
	return nil
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, spanHandle) {
	if e.tracer == nil {
		return ctx, spanHandle{}
	}
	ctx, span := e.tracer.StartSpan(ctx, name, attrs...)
	return ctx, spanHandle{span: span}
}

func (e *Engine) endSpan(h spanHandle, err error) {
	if h.span == nil {
		return
	}
	telemetry.EndSpan(h.span, err)
}

type spanHandle struct {
	span trace.Span
}

// runState tracks one execution's phase, budget usage, and diagnostics.
type runState struct {
	id        string
	started   time.Time
	phase     Phase
	executed  int
	fsOps     int
	peak      int64
	skipped   []string
	attempts  map[string]int
	events    []directive.ExecutionEvent
}

func newRunState(_ *directive.SandboxContext) *runState {
	return &runState{
		id:      newExecutionID(),
		started: time.Now(),
		phase:   PhaseValidating,
	}
}

func newExecutionID() string {
	return ulid.Make().String()
}

func (r *runState) enter(p Phase) {
	r.phase = p
}

func (r *runState) skip(op string) {
	r.skipped = append(r.skipped, op)
}

func (r *runState) attempt(transition string) {
	if r.attempts == nil {
		r.attempts = make(map[string]int)
	}
	r.attempts[transition]++
}

func (r *runState) event(phase Phase, level, msg string) {
	r.events = append(r.events, directive.ExecutionEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Phase:     string(phase),
		Message:   msg,
		Level:     level,
	})
}

// checkBudgets enforces cancellation and the aggregate timeout. It runs
// before each operation and before composition; an in-flight operation is
// never interrupted, only the next one is not started.
func (r *runState) checkBudgets(ctx context.Context, limits directive.ResourceLimits) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("execution cancelled: %w", err)
	}
	if limits.Timeout > 0 && time.Since(r.started) > limits.Timeout {
		return &ResourceLimitExceededError{
			Kind:   LimitTimeout,
			Detail: fmt.Sprintf("elapsed %s exceeds budget %s", time.Since(r.started).Round(time.Millisecond), limits.Timeout),
		}
	}
	return nil
}

// chargeFS draws one filesystem operation from the budget.
func (r *runState) chargeFS(limits directive.ResourceLimits) error {
	r.fsOps++
	if limits.FSOperations > 0 && r.fsOps > limits.FSOperations {
		return &ResourceLimitExceededError{
			Kind:   LimitFSOperations,
			Detail: fmt.Sprintf("%d filesystem operations exceed budget %d", r.fsOps, limits.FSOperations),
		}
	}
	return nil
}

// sampleMemory records the heap high-water mark and enforces the ceiling.
// The sample is process-wide and best-effort.
func (r *runState) sampleMemory(limits directive.ResourceLimits) error {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	heap := int64(stats.HeapAlloc)
	if heap > r.peak {
		r.peak = heap
	}
	if limits.MemoryBytes > 0 && heap > limits.MemoryBytes {
		return &ResourceLimitExceededError{
			Kind:   LimitMemory,
			Detail: fmt.Sprintf("heap %d bytes exceeds ceiling %d", heap, limits.MemoryBytes),
		}
	}
	return nil
}

func (r *runState) metadata() directive.ExecutionMetadata {
	cached := []string{}
	return directive.ExecutionMetadata{
		ExecutionID:        r.id,
		ExecutionTime:      time.Since(r.started),
		OperationsExecuted: r.executed,
		PeakMemory:         r.peak,
		CachedOperations:   cached,
		SkippedOperations:  r.skipped,
		TransitionAttempts: r.attempts,
		Events:             r.events,
	}
}

func successResult(r *runState, data any) *directive.SandboxExecutionResult {
	r.enter(PhaseDone)
	return &directive.SandboxExecutionResult{
		Success:  true,
		Data:     data,
		Metadata: r.metadata(),
	}
}

func failedResult(r *runState, err error) *directive.SandboxExecutionResult {
	r.event(r.phase, "error", err.Error())
	r.enter(PhaseFailed)
	return &directive.SandboxExecutionResult{
		Success:  false,
		Error:    err.Error(),
		Metadata: r.metadata(),
	}
}

// cachedCopy adapts a stored result to the current run: fresh identifiers,
// zero executed operations, and every operation reported as cached.
func cachedCopy(r *runState, stored *directive.SandboxExecutionResult, ops []string) *directive.SandboxExecutionResult {
	r.enter(PhaseDone)
	meta := r.metadata()
	meta.OperationsExecuted = 0
	meta.CachedOperations = ops
	return &directive.SandboxExecutionResult{
		Success:  stored.Success,
		Data:     stored.Data,
		Metadata: meta,
	}
}

func operationNames(ops []directive.Operation) []string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = string(op.Op)
	}
	return names
}
