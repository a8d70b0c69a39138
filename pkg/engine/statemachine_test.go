package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/tosin2013/dirigent/pkg/directive"
	"github.com/tosin2013/dirigent/pkg/registry"
)

func probeMachine() *directive.StateMachineDirective {
	return &directive.StateMachineDirective{
		Type:         directive.ResponseTypeStateMachine,
		Tool:         "deploy_check",
		InitialState: "initial",
		FinalState:   "done",
		Transitions: []directive.StateTransition{
			{
				Name:      "probe",
				From:      "initial",
				Operation: directive.Operation{Op: directive.OpScanEnvironment},
				NextState: "probed",
			},
			{
				Name:      "finish",
				From:      "probed",
				Operation: directive.Operation{Op: directive.OpGenerateContext},
				NextState: "done",
			},
		},
	}
}

func TestExecuteStateMachine_HappyPath(t *testing.T) {
	log := &execLog{}
	eng := testEngine(t, nil, nil, log)

	result := eng.ExecuteStateMachine(context.Background(), probeMachine(), testSandbox(t, directive.DefaultLimits()))
	if !result.Success {
		t.Fatalf("execution failed: %s", result.Error)
	}
	// The value stored under the final state is the result data.
	if result.Data != "generateContext-result" {
		t.Errorf("data = %v", result.Data)
	}
	if result.Metadata.OperationsExecuted != 2 {
		t.Errorf("operationsExecuted = %d, want 2", result.Metadata.OperationsExecuted)
	}
	if result.Metadata.TransitionAttempts["probe"] != 1 || result.Metadata.TransitionAttempts["finish"] != 1 {
		t.Errorf("attempts = %v", result.Metadata.TransitionAttempts)
	}
}

func TestExecuteStateMachine_InitialAliasMatchesNamedStart(t *testing.T) {
	log := &execLog{}
	eng := testEngine(t, nil, nil, log)

	// "initial" in from is the reserved alias for whatever the start
	// state is named, so renaming the start state must not strand it.
	d := probeMachine()
	d.InitialState = "start"

	result := eng.ExecuteStateMachine(context.Background(), d, testSandbox(t, directive.DefaultLimits()))
	if !result.Success {
		t.Fatalf("execution failed: %s", result.Error)
	}
	if result.Data != "generateContext-result" {
		t.Errorf("data = %v", result.Data)
	}
	if result.Metadata.OperationsExecuted != 2 {
		t.Errorf("operationsExecuted = %d, want 2", result.Metadata.OperationsExecuted)
	}
}

func TestExecuteStateMachine_RetryThenSucceed(t *testing.T) {
	log := &execLog{}
	attempts := 0
	flaky := map[directive.OperationKind]registry.ExecutorFunc{
		directive.OpScanEnvironment: func(_ context.Context, _ map[string]any, _ map[string]any, _ *directive.SandboxContext) (any, error) {
			attempts++
			if attempts < 3 {
				return nil, fmt.Errorf("probe refused")
			}
			return "env-ready", nil
		},
	}
	eng := testEngine(t, nil, flaky, log)

	d := probeMachine()
	d.Transitions[0].OnError = directive.PolicyRetry
	d.Transitions[0].MaxRetries = 3

	result := eng.ExecuteStateMachine(context.Background(), d, testSandbox(t, directive.DefaultLimits()))
	if !result.Success {
		t.Fatalf("execution failed: %s", result.Error)
	}
	if result.Metadata.TransitionAttempts["probe"] != 3 {
		t.Errorf("probe attempts = %d, want 3", result.Metadata.TransitionAttempts["probe"])
	}
	if result.Data != "generateContext-result" {
		t.Errorf("data = %v", result.Data)
	}
}

func TestExecuteStateMachine_RetriesExhausted(t *testing.T) {
	log := &execLog{}
	failing := map[directive.OperationKind]registry.ExecutorFunc{
		directive.OpScanEnvironment: func(_ context.Context, _ map[string]any, _ map[string]any, _ *directive.SandboxContext) (any, error) {
			return nil, fmt.Errorf("probe refused")
		},
	}
	eng := testEngine(t, nil, failing, log)

	d := probeMachine()
	d.Transitions[0].OnError = directive.PolicyRetry
	d.Transitions[0].MaxRetries = 2

	result := eng.ExecuteStateMachine(context.Background(), d, testSandbox(t, directive.DefaultLimits()))
	if result.Success {
		t.Fatal("execution survived exhausted retries")
	}
	// One initial attempt plus two retries.
	if result.Metadata.TransitionAttempts["probe"] != 3 {
		t.Errorf("probe attempts = %d, want 3", result.Metadata.TransitionAttempts["probe"])
	}
	if !strings.Contains(result.Error, "retries exhausted") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestExecuteStateMachine_SkipAdvances(t *testing.T) {
	log := &execLog{}
	failing := map[directive.OperationKind]registry.ExecutorFunc{
		directive.OpScanEnvironment: func(_ context.Context, _ map[string]any, _ map[string]any, _ *directive.SandboxContext) (any, error) {
			return nil, fmt.Errorf("probe refused")
		},
	}
	eng := testEngine(t, nil, failing, log)

	d := probeMachine()
	d.Transitions[0].OnError = directive.PolicySkip

	result := eng.ExecuteStateMachine(context.Background(), d, testSandbox(t, directive.DefaultLimits()))
	if !result.Success {
		t.Fatalf("skip policy did not advance: %s", result.Error)
	}
	if result.Data != "generateContext-result" {
		t.Errorf("data = %v", result.Data)
	}
}

func TestExecuteStateMachine_DefaultAbort(t *testing.T) {
	log := &execLog{}
	failing := map[directive.OperationKind]registry.ExecutorFunc{
		directive.OpScanEnvironment: func(_ context.Context, _ map[string]any, _ map[string]any, _ *directive.SandboxContext) (any, error) {
			return nil, fmt.Errorf("probe refused")
		},
	}
	eng := testEngine(t, nil, failing, log)

	result := eng.ExecuteStateMachine(context.Background(), probeMachine(), testSandbox(t, directive.DefaultLimits()))
	if result.Success {
		t.Fatal("execution survived an unhandled failure")
	}
	if !strings.Contains(result.Error, "state machine aborted") {
		t.Errorf("error = %q", result.Error)
	}
	if log.count() != 1 {
		t.Errorf("executors invoked %d times, want 1", log.count())
	}
}

func TestExecuteStateMachine_ValidationFailsFast(t *testing.T) {
	log := &execLog{}
	eng := testEngine(t, nil, nil, log)

	d := probeMachine()
	d.Transitions[1].NextState = "parked" // final state unreachable

	result := eng.ExecuteStateMachine(context.Background(), d, testSandbox(t, directive.DefaultLimits()))
	if result.Success {
		t.Fatal("invalid state machine executed")
	}
	if log.count() != 0 {
		t.Errorf("executors invoked %d times, want 0", log.count())
	}
}

func TestExecuteStateMachine_StoresUnderStateAndStoreKey(t *testing.T) {
	log := &execLog{}
	eng := testEngine(t, nil, nil, log)

	d := probeMachine()
	d.Transitions[0].Operation.Store = "environment"

	sandbox := testSandbox(t, directive.DefaultLimits())
	result := eng.ExecuteStateMachine(context.Background(), d, sandbox)
	if !result.Success {
		t.Fatalf("execution failed: %s", result.Error)
	}
	if v, ok := sandbox.Get("probed"); !ok || v != "scanEnvironment-result" {
		t.Errorf("state key not stored: %v %v", v, ok)
	}
	if v, ok := sandbox.Get("environment"); !ok || v != "scanEnvironment-result" {
		t.Errorf("store key not stored: %v %v", v, ok)
	}
}
