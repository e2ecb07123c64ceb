// Package objpool recycles the small, short-lived structs IOCore allocates on
// every operation (IOEvent bodies, completion-ring submission parameters) so
// a busy socket doesn't churn the garbage collector once per send/recv.
//
// The Pool interface and its two strategies are adapted from the teacher
// repository's pool.Pool (pool/pool.go, pool/fixed.go, pool/dynamic.go),
// which pooled *worker[R] objects behind Get/Put. Here the same Get/Put shape
// pools IOEvent-sized objects instead; the fixed strategy bounds memory for
// deployments with a known connection ceiling, the dynamic strategy (backed
// by sync.Pool) is the default.
package objpool

// Pool hands out and reclaims values of a single type. Get never returns nil;
// New.Pool implementations construct the value on demand.
type Pool interface {
	// Get returns a value from the pool, allocating a new one if necessary.
	Get() any

	// Put returns a value to the pool for reuse. Callers must not touch the
	// value again after Put.
	Put(any)
}

// NewFn constructs a fresh value when the pool has none available.
type NewFn func() any
