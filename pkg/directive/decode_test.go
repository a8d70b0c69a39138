package directive

import (
	"strings"
	"testing"
)

func TestDecodeJSON_Orchestration(t *testing.T) {
	data := []byte(`{
		"type": "orchestration",
		"tool": "analyze_repository",
		"operations": [
			{"op": "loadPrompt", "args": {"name": "analysis"}, "store": "prompt"},
			{"op": "analyzeFiles", "args": {"glob": "**/*.go"}, "input": "prompt", "store": "findings"},
			{"op": "composeResult", "inputs": ["prompt", "findings"], "return": true}
		],
		"compose": {
			"sections": [{"source": "findings", "key": "findings"}],
			"template": "# Findings\n{{findings}}",
			"format": "markdown"
		},
		"metadata": {"cache_key": "analyze-v1", "cache_ttl": 600}
	}`)

	resp, err := DecodeJSON(data)
	if err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if resp.Type != ResponseTypeOrchestration {
		t.Fatalf("type = %q, want orchestration", resp.Type)
	}
	d := resp.Orchestration
	if d == nil {
		t.Fatal("Orchestration payload is nil")
	}
	if d.Tool != "analyze_repository" {
		t.Errorf("tool = %q", d.Tool)
	}
	if len(d.Operations) != 3 {
		t.Fatalf("got %d operations, want 3", len(d.Operations))
	}
	if d.Operations[1].Input != "prompt" {
		t.Errorf("operation 1 input = %q", d.Operations[1].Input)
	}
	if !d.Operations[2].Return {
		t.Error("operation 2 should be marked return")
	}
	if d.Compose == nil || d.Compose.Format != FormatMarkdown {
		t.Errorf("compose not decoded: %+v", d.Compose)
	}
	if d.Metadata.CacheKey != "analyze-v1" || d.Metadata.CacheTTL != 600 {
		t.Errorf("metadata not decoded: %+v", d.Metadata)
	}
}

func TestDecodeJSON_Content(t *testing.T) {
	resp, err := DecodeJSON([]byte(`{"type": "content", "content": "nothing to do"}`))
	if err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if resp.Type != ResponseTypeContent || resp.Content != "nothing to do" {
		t.Errorf("got %+v", resp)
	}
}

func TestDecodeYAML_StateMachine(t *testing.T) {
	data := []byte(`
type: state-machine
tool: deploy_check
initial_state: initial
final_state: done
transitions:
  - name: probe
    from: initial
    operation:
      op: scanEnvironment
    next_state: probed
    on_error: retry
    max_retries: 3
  - name: finish
    from: probed
    operation:
      op: generateContext
    next_state: done
`)

	resp, err := DecodeYAML(data)
	if err != nil {
		t.Fatalf("DecodeYAML failed: %v", err)
	}
	d := resp.StateMachine
	if d == nil {
		t.Fatal("StateMachine payload is nil")
	}
	if d.InitialState != "initial" || d.FinalState != "done" {
		t.Errorf("states = %q -> %q", d.InitialState, d.FinalState)
	}
	if len(d.Transitions) != 2 {
		t.Fatalf("got %d transitions, want 2", len(d.Transitions))
	}
	first := d.Transitions[0]
	if first.OnError != PolicyRetry || first.MaxRetries != 3 {
		t.Errorf("retry policy not decoded: %+v", first)
	}
	if first.Operation.Op != OpScanEnvironment {
		t.Errorf("operation = %q", first.Operation.Op)
	}
}

func TestDecode_SchemaRejections(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing type", `{"tool": "x"}`},
		{"unknown type", `{"type": "magic", "tool": "x"}`},
		{"orchestration without operations", `{"type": "orchestration", "tool": "x"}`},
		{"operation without op", `{"type": "orchestration", "tool": "x", "operations": [{"args": {}}]}`},
		{"state machine without transitions", `{"type": "state-machine", "tool": "x", "initial_state": "a", "final_state": "b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeJSON([]byte(tt.data)); err == nil {
				t.Error("expected a decode error")
			}
		})
	}
}

func TestDecodeJSON_Malformed(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"type": "orchestration",`))
	if err == nil || !strings.Contains(err.Error(), "parse response") {
		t.Errorf("got %v", err)
	}
}
