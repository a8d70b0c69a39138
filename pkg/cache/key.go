package cache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/tosin2013/dirigent/pkg/directive"
)

// Key derives a deterministic cache key from a tool identity and any
// JSON-serializable parts. encoding/json sorts map keys, so equal inputs
// hash equally regardless of construction order.
func Key(tool string, parts ...any) string {
	h := blake3.New()
	_, _ = h.Write([]byte(tool))
	for _, part := range parts {
		_, _ = h.Write([]byte{0})
		data, err := json.Marshal(part)
		if err != nil {
			// Unserializable parts still need a stable discriminator.
			data = []byte(fmt.Sprintf("%#v", part))
		}
		_, _ = h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DirectiveKey returns the whole-directive cache key: the author-supplied
// metadata key when present, otherwise a hash of the tool identity and the
// normalized operation list.
func DirectiveKey(d *directive.OrchestrationDirective) string {
	if d.Metadata.CacheKey != "" {
		return d.Metadata.CacheKey
	}
	return Key(d.Tool, d.Operations, d.Compose)
}

// StateMachineKey returns the whole-directive cache key for a
// state-machine plan.
func StateMachineKey(d *directive.StateMachineDirective) string {
	if d.Metadata.CacheKey != "" {
		return d.Metadata.CacheKey
	}
	return Key(d.Tool, d.InitialState, d.FinalState, d.Transitions)
}

// TTLOf converts a directive's cache_ttl seconds into a duration,
// falling back to the layer default.
func TTLOf(meta directive.DirectiveMetadata) time.Duration {
	if meta.CacheTTL > 0 {
		return time.Duration(meta.CacheTTL) * time.Second
	}
	return DefaultTTL
}
