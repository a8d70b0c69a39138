package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tosin2013/dirigent/pkg/cache"
	"github.com/tosin2013/dirigent/pkg/directive"
	"github.com/tosin2013/dirigent/pkg/telemetry"
)

// ExecuteStateMachine walks a state-machine directive from its initial
// state to its final state. Each step fires the first transition leaving
// the current state, applying that transition's error policy on failure.
// The value stored under the final state becomes the result data.
func (e *Engine) ExecuteStateMachine(ctx context.Context, d *directive.StateMachineDirective, sandbox *directive.SandboxContext) *directive.SandboxExecutionResult {
	run := newRunState(sandbox)
	logger := e.logger.WithExecutionID(run.id).WithTool(d.Tool)
	e.metrics.DirectiveStarted(d.Tool, "state-machine")

	result := e.executeStateMachine(ctx, run, logger, d, sandbox)

	status := "failed"
	if result.Success {
		status = "succeeded"
	}
	e.metrics.DirectiveCompleted(d.Tool, status, result.Metadata.ExecutionTime)
	return result
}

func (e *Engine) executeStateMachine(ctx context.Context, run *runState, logger *telemetry.Logger, d *directive.StateMachineDirective, sandbox *directive.SandboxContext) *directive.SandboxExecutionResult {
	ctx, span := e.startSpan(ctx, "directive.execute_state_machine",
		attribute.String("tool", d.Tool),
		attribute.String("execution_id", run.id))
	var finalErr error
	defer func() { e.endSpan(span, finalErr) }()

	run.enter(PhaseValidating)
	if err := e.validator.ValidateStateMachine(d); err != nil {
		finalErr = err
		return failedResult(run, err)
	}
	if err := e.admit(ctx, d); err != nil {
		finalErr = err
		return failedResult(run, err)
	}

	run.enter(PhaseCacheCheck)
	key := cache.StateMachineKey(d)
	if e.cache != nil {
		var stored directive.SandboxExecutionResult
		found, err := e.cache.Get(ctx, key, &stored)
		if err != nil {
			logger.WithError(&CacheError{Key: key, Err: err}).Warn("cache read failed, continuing as miss")
		}
		if found {
			e.metrics.CacheHit("directive")
			return cachedCopy(run, &stored, transitionNames(d.Transitions))
		}
		e.metrics.CacheMiss("directive")

		computed := false
		v, _, _ := e.flights.Do(key, func() (any, error) {
			computed = true
			return e.walkStates(ctx, run, logger, d, sandbox, key), nil
		})
		result := v.(*directive.SandboxExecutionResult)
		if !computed {
			if result.Success {
				return cachedCopy(run, result, transitionNames(d.Transitions))
			}
			finalErr = errors.New(result.Error)
			return failedResult(run, finalErr)
		}
		if !result.Success {
			finalErr = errors.New(result.Error)
		}
		return result
	}

	result := e.walkStates(ctx, run, logger, d, sandbox, "")
	if !result.Success {
		finalErr = errors.New(result.Error)
	}
	return result
}

func (e *Engine) walkStates(ctx context.Context, run *runState, logger *telemetry.Logger, d *directive.StateMachineDirective, sandbox *directive.SandboxContext, cacheKey string) *directive.SandboxExecutionResult {
	run.enter(PhaseRunning)

	current := d.InitialState
	for current != d.FinalState {
		if err := run.checkBudgets(ctx, sandbox.Limits); err != nil {
			return failedResult(run, err)
		}

		transition := findTransition(d, current)
		if transition == nil {
			return failedResult(run, &StateMachineAbortError{
				State: current,
				Err:   fmt.Errorf("no transition leaves state %q", current),
			})
		}

		next, err := e.fireTransition(ctx, run, logger, transition, sandbox)
		if err != nil {
			return failedResult(run, err)
		}
		logger.Debugf("state %s -> %s via %s", current, next, transition.Name)
		current = next
	}

	data, _ := sandbox.Get(d.FinalState)
	result := successResult(run, data)

	if e.cache != nil && cacheKey != "" {
		ttl := cache.TTLOf(d.Metadata)
		if err := e.cache.Set(ctx, cacheKey, result, ttl); err != nil {
			logger.WithError(&CacheError{Key: cacheKey, Err: err}).Warn("cache write failed")
		}
	}
	return result
}

// fireTransition runs one transition's operation under its error policy
// and returns the state to enter next. Retries re-run the operation up to
// MaxRetries additional times; skip advances without a stored result.
func (e *Engine) fireTransition(ctx context.Context, run *runState, logger *telemetry.Logger, t *directive.StateTransition, sandbox *directive.SandboxContext) (string, error) {
	policy := t.OnError
	if policy == "" {
		policy = directive.PolicyAbort
	}

	var lastErr error
	for tries := 0; ; tries++ {
		if err := run.checkBudgets(ctx, sandbox.Limits); err != nil {
			return "", err
		}
		run.attempt(t.Name)

		value, skipped, err := e.invokeOperation(ctx, run, logger, &t.Operation, -1, sandbox)
		if err == nil {
			if !skipped {
				sandbox.Set(t.NextState, value)
				if t.Operation.Store != "" {
					sandbox.Set(t.Operation.Store, value)
				}
			}
			return t.NextState, nil
		}

		// Limit breaches and policy refusals always abort, regardless
		// of the transition's own error policy.
		var execErr *OperationExecutionError
		if !errors.As(err, &execErr) {
			return "", err
		}
		lastErr = err

		switch policy {
		case directive.PolicyRetry:
			if tries < t.MaxRetries {
				logger.WithError(err).Debugf("transition %s failed, retrying (%d/%d)", t.Name, tries+1, t.MaxRetries)
				continue
			}
			return "", &StateMachineAbortError{
				Transition: t.Name,
				State:      t.From,
				Attempts:   tries + 1,
				Err:        fmt.Errorf("retries exhausted: %w", lastErr),
			}
		case directive.PolicySkip:
			logger.WithError(err).Debugf("transition %s failed, skipping", t.Name)
			run.skip(string(t.Operation.Op))
			e.metrics.OperationSkipped(string(t.Operation.Op))
			return t.NextState, nil
		default:
			return "", &StateMachineAbortError{
				Transition: t.Name,
				State:      t.From,
				Attempts:   tries + 1,
				Err:        lastErr,
			}
		}
	}
}

// findTransition returns the first transition in declaration order whose
// From matches the given state. The reserved name "initial" stands for the
// directive's InitialState, mirroring the reachability check in validation.
func findTransition(d *directive.StateMachineDirective, state string) *directive.StateTransition {
	for i := range d.Transitions {
		from := d.Transitions[i].From
		if from == "initial" {
			from = d.InitialState
		}
		if from == state {
			return &d.Transitions[i]
		}
	}
	return nil
}

func transitionNames(transitions []directive.StateTransition) []string {
	names := make([]string, len(transitions))
	for i, t := range transitions {
		names[i] = t.Name
	}
	return names
}
