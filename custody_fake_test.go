package corepay

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/agentpay/corepay/pkg/money"
)

// fakeCustody is a deterministic in-memory CustodyProvider used across
// component tests, grounded on the teacher's pattern of substituting a
// stub blockchain client in tests rather than hitting a real node.
type fakeCustody struct {
	mu        sync.Mutex
	balances  map[string]money.Amount
	sendErr   error
	sendCalls int
	reachable map[string]bool // recipient -> reachable; unset defaults to true
	seenKeys  map[string]string // idempotency key -> provider tx id already issued for it
}

func newFakeCustody() *fakeCustody {
	return &fakeCustody{balances: map[string]money.Amount{}, reachable: map[string]bool{}, seenKeys: map[string]string{}}
}

func (f *fakeCustody) setBalance(walletID string, amount money.Amount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[walletID] = amount
}

func (f *fakeCustody) setUnreachable(recipient string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reachable[recipient] = false
}

func (f *fakeCustody) Send(ctx context.Context, walletID, recipient string, amount money.Amount, network NetworkTag, idempotencyKey string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if idempotencyKey != "" {
		if providerTxID, seen := f.seenKeys[idempotencyKey]; seen {
			return providerTxID, "0x" + uuid.NewString(), nil
		}
	}
	if f.sendErr != nil {
		return "", "", f.sendErr
	}
	bal, ok := f.balances[walletID]
	if !ok {
		bal = money.Zero
	}
	f.balances[walletID] = bal.Sub(amount)
	providerTxID := "tx_" + uuid.NewString()
	if idempotencyKey != "" {
		f.seenKeys[idempotencyKey] = providerTxID
	}
	return providerTxID, "0x" + uuid.NewString(), nil
}

func (f *fakeCustody) SimulateSend(ctx context.Context, walletID, recipient string, amount money.Amount, network NetworkTag, idempotencyKey string) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reachable, set := f.reachable[recipient]; set && !reachable {
		return false, "recipient unreachable", nil
	}
	bal, ok := f.balances[walletID]
	if !ok {
		bal = money.Zero
	}
	if bal.LessThan(amount) {
		return false, "insufficient balance", nil
	}
	return true, "", nil
}

func (f *fakeCustody) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

func (f *fakeCustody) Balance(ctx context.Context, walletID string) (money.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[walletID]
	if !ok {
		return money.Zero, nil
	}
	return bal, nil
}
