// Package storage provides the capability set every stateful component of
// the payment core is built on: a small key-value surface with atomic
// counters and a compare-and-delete lock primitive, implemented once
// in-process (MemoryStore) and once over Redis (RedisStore) so the two are
// interchangeable behind the same Store interface.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// Mutator receives the current value (nil if the key is absent) and returns
// the value to store. It must be a pure function of its input: a network
// backend may retry it under optimistic concurrency.
type Mutator func(current []byte, found bool) (next []byte, err error)

// Store is the capability set every guard, lock, reservation, and breaker
// component is built on. All four mutating operations (Put, Update,
// AtomicAdd, and the lock pair) must be race-free under concurrent callers.
type Store interface {
	// Put writes value at key, last-writer-wins.
	Put(ctx context.Context, key string, value []byte) error
	// Get reads the value at key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. It is not an error if key is already absent.
	Delete(ctx context.Context, key string) error
	// Update atomically reads key, applies mutator, and writes the result.
	Update(ctx context.Context, key string, mutator Mutator) error
	// AtomicAdd adds delta to the integer counter at key, creating it with
	// value delta if missing, and returns the post-add value. window, if
	// nonzero, sets an expiry on the key when it is first created so the
	// counter resets after that duration (a rolling time bucket).
	AtomicAdd(ctx context.Context, key string, delta int64, window time.Duration) (int64, error)
	// AcquireLock succeeds iff key is absent or its lock has expired; it then
	// stores token against key with the given ttl.
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// ReleaseLock succeeds iff the token stored at key equals the presented
	// token, atomically (compare-and-delete).
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
	// Scan returns all keys with the given prefix, for ledger-style queries.
	// Implementations may cap or paginate; callers should not assume
	// unbounded results.
	Scan(ctx context.Context, prefix string) ([]string, error)
}
