package cache

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	value := map[string]any{"tool": "analyze", "count": int64(3)}
	if err := c.Set(ctx, "k1", value, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got map[string]any
	found, err := c.Get(ctx, "k1", &got)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("entry not found")
	}
	if !reflect.DeepEqual(got, value) {
		t.Errorf("got %v, want %v", got, value)
	}
}

func TestMemoryCache_Miss(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	var got any
	found, err := c.Get(context.Background(), "absent", &got)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("missing key reported as found")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "short", "v", 5*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(15 * time.Millisecond)

	var got string
	found, err := c.Get(ctx, "short", &got)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("expired entry still served")
	}
	// The lazy eviction on read removes the dead entry.
	if c.Len() != 0 {
		t.Errorf("Len = %d after expired read", c.Len())
	}
}

func TestMemoryCache_Overwrite(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", "first", time.Minute)
	_ = c.Set(ctx, "k", "second", time.Minute)

	var got string
	if found, _ := c.Get(ctx, "k", &got); !found || got != "second" {
		t.Errorf("got %q found=%v", got, found)
	}
}

func TestMemoryCache_Invalidate(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", "v", time.Minute)
	if err := c.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	var got string
	if found, _ := c.Get(ctx, "k", &got); found {
		t.Error("invalidated entry still served")
	}
}

func TestMemoryCache_Purge(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "dead", "v", time.Millisecond)
	_ = c.Set(ctx, "live", "v", time.Minute)
	time.Sleep(10 * time.Millisecond)

	evicted, err := c.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if evicted != 1 {
		t.Errorf("evicted %d, want 1", evicted)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestMemoryCache_Closed(t *testing.T) {
	c := NewMemoryCache(0)
	_ = c.Close()

	if err := c.Set(context.Background(), "k", "v", time.Minute); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after close: %v", err)
	}
	if _, err := c.Get(context.Background(), "k", new(string)); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after close: %v", err)
	}
}

func TestMemoryCache_DefaultTTL(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	// A zero TTL falls back to the layer default instead of immediately
	// expiring the entry.
	if err := c.Set(context.Background(), "k", "v", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	var got string
	if found, _ := c.Get(context.Background(), "k", &got); !found {
		t.Error("zero-TTL entry expired immediately")
	}
}
