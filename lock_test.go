package corepay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentpay/corepay/pkg/storage"
)

func TestFundLockAcquireReleaseWithKey(t *testing.T) {
	ctx := context.Background()
	lock := NewFundLock(storage.NewMemoryStore())

	token, err := lock.Acquire(ctx, "wallet-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := lock.ReleaseWithKey(ctx, "wallet-1", "wrong-token")
	require.NoError(t, err)
	require.False(t, ok, "a foreign token must never release the lock")

	ok, err = lock.ReleaseWithKey(ctx, "wallet-1", token)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFundLockSerializesOneHolderAtATime(t *testing.T) {
	ctx := context.Background()
	lock := NewFundLock(storage.NewMemoryStore())

	token, err := lock.Acquire(ctx, "wallet-1")
	require.NoError(t, err)

	lock.backoff = time.Millisecond
	lock.retries = 1
	_, err = lock.Acquire(ctx, "wallet-1")
	require.Error(t, err)
	require.Equal(t, ErrWalletBusy, KindOf(err))

	ok, err := lock.ReleaseWithKey(ctx, "wallet-1", token)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = lock.Acquire(ctx, "wallet-1")
	require.NoError(t, err, "lock must be acquirable again once released")
}

func TestFundLockTTLExpiryAllowsFreshAcquire(t *testing.T) {
	ctx := context.Background()
	lock := NewFundLock(storage.NewMemoryStore())
	lock.ttl = 10 * time.Millisecond

	token, err := lock.Acquire(ctx, "wallet-1")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	fresh, err := lock.Acquire(ctx, "wallet-1")
	require.NoError(t, err)

	ok, err := lock.ReleaseWithKey(ctx, "wallet-1", token)
	require.NoError(t, err)
	require.False(t, ok, "the stale token must fail to release the new holder's lock")

	ok, err = lock.ReleaseWithKey(ctx, "wallet-1", fresh)
	require.NoError(t, err)
	require.True(t, ok)
}
