package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.starlark.net/starlark"

	"github.com/tosin2013/dirigent/pkg/directive"
)

const defaultSummarizeLength = 500

// Composer assembles final artifacts from stored operation results.
type Composer struct{}

func NewComposer() *Composer {
	return &Composer{}
}

// Compose binds each section's source value, applies its transform, renders
// the template, and encodes per the requested format. opResults addresses
// "@op:<index>" aliases by plan position; skipped operations hold nil there.
func (c *Composer) Compose(sandbox *directive.SandboxContext, opResults []any, compose *directive.CompositionDirective) (any, error) {
	bindings := make(map[string]any, len(compose.Sections))
	for _, section := range compose.Sections {
		value, err := resolveSource(sandbox, opResults, section.Source)
		if err != nil {
			return nil, err
		}
		if section.Transform != "" {
			value, err = applyTransform(section, value)
			if err != nil {
				return nil, err
			}
		}
		bindings[section.Key] = value
	}

	rendered, err := renderTemplate(compose.Template, bindings, compose.Format)
	if err != nil {
		return nil, err
	}

	if compose.Format == directive.FormatJSON {
		var out any
		if err := json.Unmarshal([]byte(rendered), &out); err != nil {
			return nil, &CompositionError{
				Detail: "rendered template is not valid JSON",
				Err:    err,
			}
		}
		return out, nil
	}
	return rendered, nil
}

func resolveSource(sandbox *directive.SandboxContext, opResults []any, source string) (any, error) {
	if m := opAliasPattern.FindStringSubmatch(source); m != nil {
		index, err := strconv.Atoi(m[1])
		if err != nil || index >= len(opResults) {
			return nil, &CompositionError{
				Section: source,
				Detail:  fmt.Sprintf("operation alias out of range (plan has %d operations)", len(opResults)),
			}
		}
		return opResults[index], nil
	}
	value, ok := sandbox.Get(source)
	if !ok {
		return nil, &CompositionError{
			Section: source,
			Detail:  "source key not present in state store",
		}
	}
	return value, nil
}

// renderTemplate substitutes every "{{key}}" placeholder with its binding.
// A placeholder without a binding is an error rather than empty output.
func renderTemplate(template string, bindings map[string]any, format directive.ComposeFormat) (string, error) {
	var renderErr error
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := bindings[key]
		if !ok {
			if renderErr == nil {
				renderErr = &CompositionError{
					Detail: fmt.Sprintf("template references %q but no section binds it", key),
				}
			}
			return match
		}
		return renderValue(value, format)
	})
	if renderErr != nil {
		return "", renderErr
	}
	return rendered, nil
}

// renderValue turns a bound value into template text. JSON output embeds
// every value as a JSON fragment so the rendered document stays parseable;
// textual output splices strings verbatim.
func renderValue(value any, format directive.ComposeFormat) string {
	if format != directive.FormatJSON {
		if s, ok := value.(string); ok {
			return s
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}

func applyTransform(section directive.CompositionSection, value any) (any, error) {
	switch section.Transform {
	case directive.TransformSummarize:
		return summarize(value, section.TransformOptions), nil
	case directive.TransformExtract:
		return extract(section, value)
	case directive.TransformFormat:
		return formatValue(value, section.TransformOptions), nil
	case directive.TransformFilter:
		return filterSequence(section, value)
	default:
		return nil, &CompositionError{
			Section: section.Key,
			Detail:  fmt.Sprintf("unknown transform %q", section.Transform),
		}
	}
}

// summarize bounds a value's textual representation. The maxLength option
// overrides the default cap.
func summarize(value any, opts map[string]any) string {
	limit := defaultSummarizeLength
	if n, ok := numberOption(opts, "maxLength"); ok && n > 0 {
		limit = n
	}
	text := stringify(value)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// extract walks a dot-separated path through nested maps and slices, e.g.
// "findings.0.severity".
func extract(section directive.CompositionSection, value any) (any, error) {
	path, _ := section.TransformOptions["path"].(string)
	if path == "" {
		return nil, &CompositionError{
			Section: section.Key,
			Detail:  "extract transform requires a path option",
		}
	}
	current := value
	for _, part := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, &CompositionError{
					Section: section.Key,
					Detail:  fmt.Sprintf("path element %q not found", part),
				}
			}
			current = next
		case []any:
			index, err := strconv.Atoi(part)
			if err != nil || index < 0 || index >= len(v) {
				return nil, &CompositionError{
					Section: section.Key,
					Detail:  fmt.Sprintf("path element %q is not a valid index", part),
				}
			}
			current = v[index]
		default:
			return nil, &CompositionError{
				Section: section.Key,
				Detail:  fmt.Sprintf("cannot descend into %T at %q", current, part),
			}
		}
	}
	return current, nil
}

// formatValue renders a value through the template option, substituting
// "{{value}}". Without a template it falls back to plain stringification.
func formatValue(value any, opts map[string]any) string {
	template, _ := opts["template"].(string)
	if template == "" {
		return stringify(value)
	}
	return strings.ReplaceAll(template, "{{value}}", stringify(value))
}

// filterSequence keeps the elements of a sequence for which the expr
// option, a predicate over the variable "item", evaluates true.
func filterSequence(section directive.CompositionSection, value any) (any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, &CompositionError{
			Section: section.Key,
			Detail:  fmt.Sprintf("filter transform requires a sequence, got %T", value),
		}
	}
	expr, _ := section.TransformOptions["expr"].(string)
	if expr == "" {
		return nil, &CompositionError{
			Section: section.Key,
			Detail:  "filter transform requires an expr option",
		}
	}

	thread := &starlark.Thread{Name: "compose-filter"}
	kept := make([]any, 0, len(items))
	for i, item := range items {
		sv, err := toStarlark(item)
		if err != nil {
			return nil, &CompositionError{
				Section: section.Key,
				Detail:  fmt.Sprintf("element %d not expressible to the predicate", i),
				Err:     err,
			}
		}
		result, err := starlark.Eval(thread, "filter", expr, starlark.StringDict{"item": sv})
		if err != nil {
			return nil, &CompositionError{
				Section: section.Key,
				Detail:  fmt.Sprintf("predicate failed on element %d", i),
				Err:     err,
			}
		}
		if bool(result.Truth()) {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

func numberOption(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// toStarlark converts decoded JSON/YAML values into starlark values for
// predicate evaluation.
func toStarlark(value any) (starlark.Value, error) {
	switch v := value.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		dict := starlark.NewDict(len(v))
		for key, e := range v {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(key), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}
