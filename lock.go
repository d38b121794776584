package corepay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentpay/corepay/pkg/storage"
)

// FundLock is the per-wallet mutex described in spec.md §4.4: acquisition
// returns a caller-owned token, and release is only honored when the
// presented token matches the one stored. Grounded on the lock-first
// discipline in
// other_examples/a14d50d4_11me-skillbox__...advisory_lock.go (acquire
// before read, single atomic release rather than a read-then-delete race).
type FundLock struct {
	store    storage.Store
	ttl      time.Duration
	retries  int
	backoff  time.Duration
}

// NewFundLock builds a FundLock with the spec defaults (ttl 30s, retries 3,
// backoff 500ms).
func NewFundLock(store storage.Store) *FundLock {
	return &FundLock{
		store:   store,
		ttl:     30 * time.Second,
		retries: 3,
		backoff: 500 * time.Millisecond,
	}
}

func lockKey(walletID string) string { return "lock:" + walletID }

// Acquire attempts to take the lock for walletID, retrying up to l.retries
// times with l.backoff between attempts. It returns the caller-owned token
// on success, or ErrWalletBusy if every attempt fails.
func (l *FundLock) Acquire(ctx context.Context, walletID string) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for attempt := 0; attempt <= l.retries; attempt++ {
		ok, err := l.store.AcquireLock(ctx, lockKey(walletID), token, l.ttl)
		if err != nil {
			lastErr = err
		} else if ok {
			return token, nil
		}
		if attempt < l.retries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(l.backoff):
			}
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("fund lock: %w", lastErr)
	}
	return "", Errorf(ErrWalletBusy, "wallet %s is locked by another payment", walletID)
}

// ReleaseWithKey releases walletID's lock only if token matches the stored
// value, preventing a late caller from unlocking a lock now owned by
// someone else.
func (l *FundLock) ReleaseWithKey(ctx context.Context, walletID, token string) (bool, error) {
	return l.store.ReleaseLock(ctx, lockKey(walletID), token)
}
