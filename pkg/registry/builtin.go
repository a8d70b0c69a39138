package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/tosin2013/dirigent/pkg/cache"
	"github.com/tosin2013/dirigent/pkg/directive"
)

// CacheExecutors returns the engine-owned executors for the cacheResult and
// retrieveCache operations, backed by the given cache. Directive authors
// place these in a plan to memoize expensive sub-steps independently of the
// whole-directive cache.
//
// cacheResult stores its resolved input (or the "value" argument) under the
// "key" argument with an optional "ttl" in seconds, and passes the value
// through as its result. A value stored under key K is returned unchanged
// by a later retrieveCache of K while the entry lives.
func CacheExecutors(store cache.Cache) []Registration {
	return []Registration{
		{
			Name: string(directive.OpCacheResult),
			Execute: func(ctx context.Context, args map[string]any, inputs map[string]any, _ *directive.SandboxContext) (any, error) {
				key, err := stringArg(args, "key")
				if err != nil {
					return nil, err
				}
				value, err := cacheValue(args, inputs)
				if err != nil {
					return nil, err
				}
				ttl := cache.DefaultTTL
				if secs, ok := numberArg(args, "ttl"); ok {
					ttl = time.Duration(secs) * time.Second
				}
				if err := store.Set(ctx, key, value, ttl); err != nil {
					return nil, fmt.Errorf("store %q: %w", key, err)
				}
				return value, nil
			},
		},
		{
			Name: string(directive.OpRetrieveCache),
			Execute: func(ctx context.Context, args map[string]any, _ map[string]any, _ *directive.SandboxContext) (any, error) {
				key, err := stringArg(args, "key")
				if err != nil {
					return nil, err
				}
				var value any
				found, err := store.Get(ctx, key, &value)
				if err != nil {
					return nil, fmt.Errorf("read %q: %w", key, err)
				}
				if !found {
					return nil, fmt.Errorf("no live cache entry for key %q", key)
				}
				return value, nil
			},
		},
	}
}

// cacheValue picks what cacheResult stores: a sole resolved input, the
// whole input map when several were resolved, or the literal "value" arg.
func cacheValue(args map[string]any, inputs map[string]any) (any, error) {
	switch len(inputs) {
	case 0:
		if v, ok := args["value"]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("cacheResult needs an input or a \"value\" argument")
	case 1:
		for _, v := range inputs {
			return v, nil
		}
	}
	return inputs, nil
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", name)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", name)
	}
	return s, nil
}

func numberArg(args map[string]any, name string) (float64, bool) {
	v, ok := args[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// EchoExecutors returns pass-through executors for every operation kind
// except the cache pair, echoing arguments and resolved inputs. They give
// the CLI a harness for exercising plans when the real collaborators
// (file analysis, knowledge graphs, environment probes) are not wired in.
func EchoExecutors() []Registration {
	kinds := []struct {
		kind       directive.OperationKind
		filesystem bool
		network    bool
	}{
		{directive.OpLoadKnowledge, false, true},
		{directive.OpLoadPrompt, true, false},
		{directive.OpAnalyzeFiles, true, false},
		{directive.OpScanEnvironment, true, false},
		{directive.OpGenerateContext, false, false},
		{directive.OpComposeResult, false, false},
		{directive.OpValidateOutput, false, false},
	}

	regs := make([]Registration, 0, len(kinds))
	for _, k := range kinds {
		name := string(k.kind)
		regs = append(regs, Registration{
			Name:       name,
			Filesystem: k.filesystem,
			Network:    k.network,
			Execute: func(_ context.Context, args map[string]any, inputs map[string]any, _ *directive.SandboxContext) (any, error) {
				out := map[string]any{"op": name}
				if len(args) > 0 {
					out["args"] = args
				}
				if len(inputs) > 0 {
					out["inputs"] = inputs
				}
				return out, nil
			},
		})
	}
	return regs
}
