package seir

import (
	"golang.org/x/exp/rand"
)

// NewStream constructs a simulator node's private deterministic
// generator, keyed by seed per spec.md §4.4/§4.5 ("Determinism").
// Replicates within one Simulate call draw sequentially from the same
// stream, so replicate k always starts from a deterministic position
// in the generator given (seed, theta, k) (spec.md §5, "Ordering
// guarantees").
func NewStream(seed int64) *Stream {
	return &Stream{src: rand.NewSource(uint64(seed))}
}
