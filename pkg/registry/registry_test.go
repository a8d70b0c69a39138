package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tosin2013/dirigent/pkg/cache"
	"github.com/tosin2013/dirigent/pkg/directive"
)

func noopExecutor(_ context.Context, _ map[string]any, _ map[string]any, _ *directive.SandboxContext) (any, error) {
	return nil, nil
}

func TestRegister(t *testing.T) {
	r := New()
	if err := r.Register(Registration{Name: "loadPrompt", Execute: noopExecutor}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	reg, ok := r.Lookup("loadPrompt")
	if !ok {
		t.Fatal("registered executor not found")
	}
	if reg.Name != "loadPrompt" {
		t.Errorf("name = %q", reg.Name)
	}
}

func TestRegister_Rejections(t *testing.T) {
	r := New()
	if err := r.Register(Registration{Name: "", Execute: noopExecutor}); err == nil {
		t.Error("empty name accepted")
	}
	if err := r.Register(Registration{Name: "x", Execute: nil}); err == nil {
		t.Error("nil executor accepted")
	}
	_ = r.Register(Registration{Name: "dup", Execute: noopExecutor})
	if err := r.Register(Registration{Name: "dup", Execute: noopExecutor}); err == nil {
		t.Error("duplicate name accepted")
	}
}

func TestVerifyComplete(t *testing.T) {
	r := New()
	for _, kind := range directive.Kinds() {
		if kind == directive.OpRetrieveCache {
			continue
		}
		r.MustRegister(Registration{Name: string(kind), Execute: noopExecutor})
	}

	err := r.VerifyComplete()
	var missing *MissingExecutorsError
	if !errors.As(err, &missing) {
		t.Fatalf("error type: %T", err)
	}
	if len(missing.Missing) != 1 || missing.Missing[0] != string(directive.OpRetrieveCache) {
		t.Errorf("missing = %v", missing.Missing)
	}

	r.MustRegister(Registration{Name: string(directive.OpRetrieveCache), Execute: noopExecutor})
	if err := r.VerifyComplete(); err != nil {
		t.Errorf("complete registry rejected: %v", err)
	}
}

func TestCacheExecutors_StoreAndRetrieve(t *testing.T) {
	store := cache.NewMemoryCache(0)
	defer store.Close()
	sandbox := directive.NewSandboxContext(t.TempDir(), nil, directive.DefaultLimits())

	execs := make(map[string]ExecutorFunc, 2)
	for _, reg := range CacheExecutors(store) {
		execs[reg.Name] = reg.Execute
	}
	ctx := context.Background()

	stored, err := execs["cacheResult"](ctx,
		map[string]any{"key": "analysis", "ttl": 60},
		map[string]any{"findings": []any{"a", "b"}},
		sandbox)
	if err != nil {
		t.Fatalf("cacheResult failed: %v", err)
	}
	// The sole resolved input passes through as the operation's result.
	if _, ok := stored.([]any); !ok {
		t.Errorf("stored value type %T", stored)
	}

	retrieved, err := execs["retrieveCache"](ctx, map[string]any{"key": "analysis"}, nil, sandbox)
	if err != nil {
		t.Fatalf("retrieveCache failed: %v", err)
	}
	items, ok := retrieved.([]any)
	if !ok || len(items) != 2 {
		t.Errorf("retrieved %v", retrieved)
	}
}

func TestCacheExecutors_MissIsError(t *testing.T) {
	store := cache.NewMemoryCache(0)
	defer store.Close()
	sandbox := directive.NewSandboxContext(t.TempDir(), nil, directive.DefaultLimits())

	var retrieve ExecutorFunc
	for _, reg := range CacheExecutors(store) {
		if reg.Name == string(directive.OpRetrieveCache) {
			retrieve = reg.Execute
		}
	}

	_, err := retrieve(context.Background(), map[string]any{"key": "ghost"}, nil, sandbox)
	if err == nil || !strings.Contains(err.Error(), "no live cache entry") {
		t.Errorf("got %v", err)
	}
}

func TestCacheExecutors_ExpiredEntryIsMiss(t *testing.T) {
	store := cache.NewMemoryCache(0)
	defer store.Close()
	sandbox := directive.NewSandboxContext(t.TempDir(), nil, directive.DefaultLimits())

	execs := make(map[string]ExecutorFunc, 2)
	for _, reg := range CacheExecutors(store) {
		execs[reg.Name] = reg.Execute
	}
	ctx := context.Background()

	// Fractional TTLs round down to zero seconds; use the store directly
	// to plant an already-expired entry.
	if err := store.Set(ctx, "stale", "v", time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := execs["retrieveCache"](ctx, map[string]any{"key": "stale"}, nil, sandbox); err == nil {
		t.Error("expired entry retrieved")
	}
}

func TestCacheExecutors_ValueArgument(t *testing.T) {
	store := cache.NewMemoryCache(0)
	defer store.Close()
	sandbox := directive.NewSandboxContext(t.TempDir(), nil, directive.DefaultLimits())

	execs := make(map[string]ExecutorFunc, 2)
	for _, reg := range CacheExecutors(store) {
		execs[reg.Name] = reg.Execute
	}
	ctx := context.Background()

	if _, err := execs["cacheResult"](ctx, map[string]any{"key": "lit", "value": "hello"}, nil, sandbox); err != nil {
		t.Fatalf("cacheResult failed: %v", err)
	}
	got, err := execs["retrieveCache"](ctx, map[string]any{"key": "lit"}, nil, sandbox)
	if err != nil || got != "hello" {
		t.Errorf("got %v, %v", got, err)
	}

	if _, err := execs["cacheResult"](ctx, map[string]any{"key": "bare"}, nil, sandbox); err == nil {
		t.Error("cacheResult accepted neither input nor value")
	}
}

func TestEchoExecutors_CoverNonCacheKinds(t *testing.T) {
	names := make(map[string]bool)
	for _, reg := range EchoExecutors() {
		names[reg.Name] = true
	}
	for _, kind := range directive.Kinds() {
		isCacheOp := kind == directive.OpCacheResult || kind == directive.OpRetrieveCache
		if names[string(kind)] == isCacheOp {
			t.Errorf("kind %q: echo coverage wrong", kind)
		}
	}
}
