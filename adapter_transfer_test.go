package corepay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentpay/corepay/pkg/money"
)

func TestTransferAdapterCanHandleEVMAddressOnEVMNetwork(t *testing.T) {
	a := NewTransferAdapter(newFakeCustody())
	req := PaymentRequest{Recipient: "0x" + repeat("a", 40)}

	require.True(t, a.CanHandle(context.Background(), req, NetworkEthereum))
	require.False(t, a.CanHandle(context.Background(), req, NetworkSolana))
}

func TestTransferAdapterCanHandleBase58OnSolana(t *testing.T) {
	a := NewTransferAdapter(newFakeCustody())
	req := PaymentRequest{Recipient: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"}

	require.True(t, a.CanHandle(context.Background(), req, NetworkSolana))
	require.False(t, a.CanHandle(context.Background(), req, NetworkEthereum))
}

func TestTransferAdapterExecuteSucceedsWithSufficientBalance(t *testing.T) {
	custody := newFakeCustody()
	custody.setBalance("w1", money.NewFromInt(100))
	a := NewTransferAdapter(custody)

	req := PaymentRequest{WalletID: "w1", Recipient: "0x" + repeat("a", 40), Amount: money.NewFromInt(30)}
	result, err := a.Execute(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, StatusCompleted, result.Status)
	require.NotEmpty(t, result.ProviderTxID)

	bal, err := custody.Balance(context.Background(), "w1")
	require.NoError(t, err)
	require.Equal(t, "70", bal.String())
}

func TestTransferAdapterExecuteWithSameIdempotencyKeyProducesOneEffect(t *testing.T) {
	custody := newFakeCustody()
	custody.setBalance("w1", money.NewFromInt(100))
	a := NewTransferAdapter(custody)

	req := PaymentRequest{WalletID: "w1", Recipient: "0x" + repeat("a", 40), Amount: money.NewFromInt(30), IdempotencyKey: "key-1"}

	first, err := a.Execute(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := a.Execute(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.Success)
	require.Equal(t, first.ProviderTxID, second.ProviderTxID, "repeating a call with the same idempotency key must not produce a second custody-side effect")

	bal, err := custody.Balance(context.Background(), "w1")
	require.NoError(t, err)
	require.Equal(t, "70", bal.String(), "the wallet must only be debited once across both calls")
}

func TestTransferAdapterSimulateReportsInsufficientBalance(t *testing.T) {
	custody := newFakeCustody()
	custody.setBalance("w1", money.NewFromInt(10))
	a := NewTransferAdapter(custody)

	req := PaymentRequest{WalletID: "w1", Recipient: "0x" + repeat("a", 40), Amount: money.NewFromInt(30)}
	result, err := a.Simulate(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.WouldSucceed)
}
