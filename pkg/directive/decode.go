package directive

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/response.schema.json
var schemaFS embed.FS

const schemaPath = "schema/response.schema.json"

var responseSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	data, err := schemaFS.ReadFile(schemaPath)
	if err != nil {
		panic(fmt.Sprintf("read embedded schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaPath, bytes.NewReader(data)); err != nil {
		panic(fmt.Sprintf("add schema resource: %v", err))
	}
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return schema
}

// CheckSchema validates a decoded raw document against the response schema.
func CheckSchema(doc any) error {
	return responseSchema.Validate(doc)
}

// DecodeJSON parses a tool response from JSON, checking it against the
// response schema before binding it to typed structs.
func DecodeJSON(data []byte) (*Response, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return decodeRaw(raw, data)
}

// DecodeYAML parses a tool response from YAML. The document is normalized
// through JSON so the same schema and struct binding apply.
func DecodeYAML(data []byte) (*Response, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	raw = normalizeYAML(raw)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize response: %w", err)
	}
	return decodeRaw(raw, jsonData)
}

func decodeRaw(raw any, jsonData []byte) (*Response, error) {
	if err := CheckSchema(raw); err != nil {
		return nil, fmt.Errorf("response schema: %w", err)
	}

	var head struct {
		Type ResponseType `json:"type"`
	}
	if err := json.Unmarshal(jsonData, &head); err != nil {
		return nil, fmt.Errorf("parse response type: %w", err)
	}

	resp := &Response{Type: head.Type}
	switch head.Type {
	case ResponseTypeContent:
		var body struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(jsonData, &body); err != nil {
			return nil, fmt.Errorf("parse content response: %w", err)
		}
		resp.Content = body.Content

	case ResponseTypeOrchestration:
		var d OrchestrationDirective
		if err := json.Unmarshal(jsonData, &d); err != nil {
			return nil, fmt.Errorf("parse orchestration directive: %w", err)
		}
		resp.Orchestration = &d

	case ResponseTypeStateMachine:
		var d StateMachineDirective
		if err := json.Unmarshal(jsonData, &d); err != nil {
			return nil, fmt.Errorf("parse state-machine directive: %w", err)
		}
		resp.StateMachine = &d

	default:
		return nil, fmt.Errorf("unknown response type %q", head.Type)
	}

	return resp, nil
}

// normalizeYAML converts YAML's map[any]any trees into map[string]any so
// the document can round-trip through encoding/json.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}
