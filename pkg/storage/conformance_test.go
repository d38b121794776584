package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// runConformance exercises the contract every Store implementation must
// satisfy, independent of backend.
func runConformance(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("put_get_delete", func(t *testing.T) {
		key := uuid.NewString()
		require.NoError(t, store.Put(ctx, key, []byte("hello")))

		v, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, "hello", string(v))

		require.NoError(t, store.Delete(ctx, key))
		_, err = store.Get(ctx, key)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update_is_atomic_mutator", func(t *testing.T) {
		key := uuid.NewString()
		err := store.Update(ctx, key, func(current []byte, found bool) ([]byte, error) {
			require.False(t, found)
			return []byte("v1"), nil
		})
		require.NoError(t, err)

		err = store.Update(ctx, key, func(current []byte, found bool) ([]byte, error) {
			require.True(t, found)
			require.Equal(t, "v1", string(current))
			return []byte("v2"), nil
		})
		require.NoError(t, err)

		v, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, "v2", string(v))
	})

	t.Run("atomic_add_concurrent_respects_exact_count", func(t *testing.T) {
		key := uuid.NewString()
		const workers = 50
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				_, err := store.AtomicAdd(ctx, key, 1, 0)
				require.NoError(t, err)
			}()
		}
		wg.Wait()

		v, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("%d", workers), string(v))
	})

	t.Run("lock_acquire_release_compare_and_delete", func(t *testing.T) {
		key := uuid.NewString()
		ok, err := store.AcquireLock(ctx, key, "token-a", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.AcquireLock(ctx, key, "token-b", time.Minute)
		require.NoError(t, err)
		require.False(t, ok, "second acquire with a different token must fail while held")

		ok, err = store.ReleaseLock(ctx, key, "token-b")
		require.NoError(t, err)
		require.False(t, ok, "release with the wrong token must fail")

		ok, err = store.ReleaseLock(ctx, key, "token-a")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.AcquireLock(ctx, key, "token-b", time.Minute)
		require.NoError(t, err)
		require.True(t, ok, "lock must be acquirable again after release")
	})

	t.Run("lock_expires", func(t *testing.T) {
		key := uuid.NewString()
		ok, err := store.AcquireLock(ctx, key, "token-a", 10*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(50 * time.Millisecond)

		ok, err = store.AcquireLock(ctx, key, "token-b", time.Minute)
		require.NoError(t, err)
		require.True(t, ok, "expired lock must be acquirable by a new caller")
	})

	t.Run("scan_returns_matching_prefix_only", func(t *testing.T) {
		prefix := uuid.NewString() + ":"
		require.NoError(t, store.Put(ctx, prefix+"a", []byte("1")))
		require.NoError(t, store.Put(ctx, prefix+"b", []byte("2")))
		require.NoError(t, store.Put(ctx, "unrelated:"+uuid.NewString(), []byte("3")))

		keys, err := store.Scan(ctx, prefix)
		require.NoError(t, err)
		require.Len(t, keys, 2)
	})

	t.Run("n_concurrent_reservations_against_a_limit_permit_exactly_floor", func(t *testing.T) {
		// Mirrors the spec-level guard property: N concurrent reservations of
		// amount 1 against a limit L must permit exactly L successes.
		const limit = 7
		const attempts = 25
		key := uuid.NewString()

		var successes int64
		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func() {
				defer wg.Done()
				var granted bool
				err := store.Update(ctx, key, func(current []byte, found bool) ([]byte, error) {
					var n int64
					if found {
						fmt.Sscanf(string(current), "%d", &n)
					}
					if n >= limit {
						granted = false
						return current, nil
					}
					granted = true
					return []byte(fmt.Sprintf("%d", n+1)), nil
				})
				require.NoError(t, err)
				if granted {
					atomicIncr(&successes)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, limit, successes)
	})
}

func atomicIncr(v *int64) {
	mu.Lock()
	defer mu.Unlock()
	*v++
}

var mu sync.Mutex
