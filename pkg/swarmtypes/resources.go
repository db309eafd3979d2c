package swarmtypes

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// QueueHandle identifies a batch-scheduler queue a task may run on.
// Opaque to the core beyond value equality.
type QueueHandle string

// ResourceScale is either a constant multiplier or a finite sequence of
// multipliers to step through on successive adjustments.
type ResourceScale struct {
	Factor   float64
	Sequence []float64
}

// TaskResources is a hashable-by-value description of what a task asked
// for. Two TaskResources with the same requested resources and queue are
// interchangeable and may share one bound server-side id via the resource
// cache.
type TaskResources struct {
	Requested map[string]any
	Queue     QueueHandle
	IsBound   bool
	ID        int64
}

// Hash returns a deterministic digest of the value's requested resources
// and queue, suitable as a resource-cache key. Equal values always hash
// equal; IsBound/ID are excluded since binding must not fragment the
// cache.
func (r TaskResources) Hash() string {
	keys := make([]string, 0, len(r.Requested))
	for k := range r.Requested {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	canonical := struct {
		Queue     QueueHandle `json:"queue"`
		Requested []kv        `json:"requested"`
	}{Queue: r.Queue}
	for _, k := range keys {
		canonical.Requested = append(canonical.Requested, kv{Key: k, Value: r.Requested[k]})
	}

	// json.Marshal over a slice of ordered key/value pairs is
	// deterministic; map iteration order is not, which is why we don't
	// marshal r.Requested directly.
	b, err := json.Marshal(canonical)
	if err != nil {
		// Requested holds only JSON-marshalable values by construction
		// (decoded from server responses or literal Go maps); a failure
		// here means the caller built an invalid mapping.
		b = []byte(r.Queue)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type kv struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Equal reports value equality, ignoring IsBound/ID (see Hash).
func (r TaskResources) Equal(other TaskResources) bool {
	return r.Hash() == other.Hash()
}

// CoerceResources normalizes requested resource values into a fresh,
// unbound TaskResources: negative float64 or int values are clamped to
// zero and every other value passes through unchanged (no rounding and
// no per-resource minimums are applied). Coercion is idempotent:
// coercing an already coerced value returns an equal value.
func (r TaskResources) CoerceResources() TaskResources {
	out := make(map[string]any, len(r.Requested))
	for k, v := range r.Requested {
		out[k] = coerceOne(v)
	}
	return TaskResources{Requested: out, Queue: r.Queue}
}

func coerceOne(v any) any {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0.0
		}
		return n
	case int:
		if n < 0 {
			return 0
		}
		return n
	default:
		return v
	}
}

// AdjustResources returns a new, scaled TaskResources after a failed
// attempt: each entry named in resourceScales is multiplied by the first
// factor of its sequence, or by its constant factor when the sequence is
// empty; the sequence is not advanced between calls, so repeated
// adjustments apply the same factor. If fallbackQueues is non-empty the
// queue becomes its first entry; no queue resource ceiling is checked.
// The receiver is never mutated.
func (r TaskResources) AdjustResources(resourceScales map[string]ResourceScale, fallbackQueues []QueueHandle) TaskResources {
	out := make(map[string]any, len(r.Requested))
	for k, v := range r.Requested {
		out[k] = v
	}
	for name, scale := range resourceScales {
		cur, ok := out[name]
		if !ok {
			continue
		}
		factor := scale.Factor
		if len(scale.Sequence) > 0 {
			factor = scale.Sequence[0]
		}
		out[name] = scaleValue(cur, factor)
	}

	queue := r.Queue
	if len(fallbackQueues) > 0 {
		queue = fallbackQueues[0]
	}

	return TaskResources{Requested: out, Queue: queue}
}

func scaleValue(v any, factor float64) any {
	switch n := v.(type) {
	case float64:
		return n * factor
	case int:
		return int(float64(n) * factor)
	default:
		return v
	}
}
