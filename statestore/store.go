// Package statestore abstracts the shared key-value store used for
// cross-process state: the circuit breaker record and the task queue.
//
// Two implementations exist: RedisStore for multi-process deployments and
// MemoryStore for tests and single-node runs. Both provide atomic
// compare-and-swap so concurrent writers observing the same prior value
// cannot clobber each other's updates.
package statestore

import (
	"context"
	"time"

	"github.com/ekemper/leadgen/errors"
)

// ErrKeyMissing is returned by Get when the key is absent or expired.
// Callers that treat absence as a defined state (the breaker treats it as
// CLOSED) must check for it with errors.Is.
var ErrKeyMissing = errors.New("state store: key missing")

// Store is the shared state store consumed by the breaker and task runtime.
type Store interface {
	// Get returns the value at key, or ErrKeyMissing if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value at key with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// CompareAndSwap atomically replaces the value at key with next iff the
	// current value equals expect. A nil expect means the key must be absent.
	// Returns true if the swap happened.
	CompareAndSwap(ctx context.Context, key string, expect, next []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Push appends value to the tail of the named queue.
	Push(ctx context.Context, queue string, value []byte) error

	// Pop removes and returns the head of the named queue.
	// Returns (nil, nil) when the queue is empty.
	Pop(ctx context.Context, queue string) ([]byte, error)
}
