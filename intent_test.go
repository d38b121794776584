package corepay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentpay/corepay/pkg/money"
	"github.com/agentpay/corepay/pkg/storage"
)

type fakeExecutor struct {
	result PaymentResult
	err    error
	calls  int
	chain  *Chain
	ledger *Ledger
}

func (f *fakeExecutor) ExecuteReserved(ctx context.Context, intent PaymentIntent) (PaymentResult, error) {
	f.calls++
	status := StatusCompleted
	if f.err != nil || !f.result.Success {
		status = StatusFailed
	}
	_ = f.ledger.UpdateStatus(intent.LedgerEntryID, status, f.result.OnChainTxHash, nil)
	var tokens map[string]string
	_ = json.Unmarshal([]byte(intent.GuardTokensJSON), &tokens)
	r := f.chain.Restore(tokens)
	if f.err == nil && f.result.Success {
		f.chain.Commit(ctx, r)
	} else {
		f.chain.Release(ctx, r)
	}
	return f.result, f.err
}

func newIntentTestService(t *testing.T) (*IntentService, *fakeExecutor, storage.Store) {
	t.Helper()
	db := newTestLedgerDB(t)
	store := storage.NewMemoryStore()
	budget := NewBudgetGuard(store, false, map[BudgetWindow]money.Amount{WindowDaily: money.NewFromInt(100)})
	chain := NewChain(nil, []Guard{budget})
	reservations := NewReservationRegistry(store)
	ledger := NewLedger(db)

	exec := &fakeExecutor{chain: chain, ledger: ledger, result: PaymentResult{Success: true}}
	svc := NewIntentService(db, chain, reservations, ledger, exec)
	return svc, exec, store
}

func TestIntentCreateReservesFundsAndLedgerEntry(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newIntentTestService(t)

	intent, err := svc.Create(ctx, PaymentRequest{WalletID: "w1", Recipient: "0xabc", Amount: money.NewFromInt(30)})
	require.NoError(t, err)
	require.Equal(t, IntentRequiresConfirmation, intent.Status)

	total, err := svc.reservations.TotalFor(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, "30", total.String())

	entry, err := svc.ledger.Get(intent.LedgerEntryID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, entry.Status)
}

func TestIntentConfirmSuccessReleasesReservationAndCommits(t *testing.T) {
	ctx := context.Background()
	svc, exec, _ := newIntentTestService(t)
	exec.result = PaymentResult{Success: true, Status: StatusCompleted}

	intent, err := svc.Create(ctx, PaymentRequest{WalletID: "w1", Recipient: "0xabc", Amount: money.NewFromInt(30)})
	require.NoError(t, err)

	confirmed, err := svc.Confirm(ctx, intent.ID)
	require.NoError(t, err)
	require.Equal(t, IntentSucceeded, confirmed.Status)
	require.Equal(t, 1, exec.calls)

	total, err := svc.reservations.TotalFor(ctx, "w1")
	require.NoError(t, err)
	require.True(t, total.IsZero(), "reservation must be released once the intent reaches a terminal state")

	entry, err := svc.ledger.Get(intent.LedgerEntryID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, entry.Status)
}

func TestIntentDoubleConfirmReturnsAlreadyTerminal(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newIntentTestService(t)

	intent, err := svc.Create(ctx, PaymentRequest{WalletID: "w1", Recipient: "0xabc", Amount: money.NewFromInt(30)})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, intent.ID)
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, intent.ID)
	require.Error(t, err)
	require.Equal(t, ErrIntentTerminal, KindOf(err))
}

func TestIntentCancelReleasesReservationAndUpdatesLedger(t *testing.T) {
	ctx := context.Background()
	svc, exec, _ := newIntentTestService(t)

	intent, err := svc.Create(ctx, PaymentRequest{WalletID: "w1", Recipient: "0xabc", Amount: money.NewFromInt(30)})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, intent.ID)
	require.NoError(t, err)
	require.Equal(t, IntentCancelled, cancelled.Status)
	require.Equal(t, 0, exec.calls)

	total, err := svc.reservations.TotalFor(ctx, "w1")
	require.NoError(t, err)
	require.True(t, total.IsZero())

	entry, err := svc.ledger.Get(intent.LedgerEntryID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, entry.Status)
}

func TestIntentConfirmAfterExpiryAutoCancels(t *testing.T) {
	ctx := context.Background()
	svc, exec, _ := newIntentTestService(t)
	svc.ttl = time.Millisecond

	intent, err := svc.Create(ctx, PaymentRequest{WalletID: "w1", Recipient: "0xabc", Amount: money.NewFromInt(30)})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = svc.Confirm(ctx, intent.ID)
	require.Error(t, err)
	require.Equal(t, ErrIntentExpired, KindOf(err))
	require.Equal(t, 0, exec.calls)

	fetched, err := svc.Get(intent.ID)
	require.NoError(t, err)
	require.Equal(t, IntentCancelled, fetched.Status)

	total, err := svc.reservations.TotalFor(ctx, "w1")
	require.NoError(t, err)
	require.True(t, total.IsZero())
}

func TestIntentCancelRestoresBudgetForSubsequentPayments(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newIntentTestService(t)

	intent, err := svc.Create(ctx, PaymentRequest{WalletID: "w1", Recipient: "0xabc", Amount: money.NewFromInt(90)})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, intent.ID)
	require.NoError(t, err)

	budget := NewBudgetGuard(store, false, map[BudgetWindow]money.Amount{WindowDaily: money.NewFromInt(100)})
	spent, err := budget.spent(ctx, GuardInput{WalletID: "w1"}, WindowDaily)
	require.NoError(t, err)
	require.True(t, spent.IsZero(), "cancelling an intent must roll back the budget guard reservation it made")
}
