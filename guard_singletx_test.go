package corepay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentpay/corepay/pkg/money"
)

func TestSingleTxGuardAllowsWithinRange(t *testing.T) {
	g := NewSingleTxGuard(money.NewFromInt(10), money.NewFromInt(1000))
	in := GuardInput{WalletID: "w1", Amount: money.NewFromInt(500)}

	allow, reason := g.Check(context.Background(), in)
	require.True(t, allow)
	require.Empty(t, reason)
}

func TestSingleTxGuardBlocksBelowMin(t *testing.T) {
	g := NewSingleTxGuard(money.NewFromInt(10), money.NewFromInt(1000))
	in := GuardInput{WalletID: "w1", Amount: money.NewFromInt(1)}

	allow, reason := g.Check(context.Background(), in)
	require.False(t, allow)
	require.NotEmpty(t, reason)
}

func TestSingleTxGuardBlocksAboveMax(t *testing.T) {
	g := NewSingleTxGuard(money.NewFromInt(10), money.NewFromInt(1000))
	in := GuardInput{WalletID: "w1", Amount: money.NewFromInt(5000)}

	allow, reason := g.Check(context.Background(), in)
	require.False(t, allow)
	require.NotEmpty(t, reason)
}

func TestSingleTxGuardReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	g := NewSingleTxGuard(money.NewFromInt(10), money.NewFromInt(1000))
	in := GuardInput{WalletID: "w1", Amount: money.NewFromInt(500)}

	token, err := g.Reserve(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NoError(t, g.Commit(ctx, token))
	require.NoError(t, g.Release(ctx, token))
}

func TestSingleTxGuardReserveRejectsOutOfRange(t *testing.T) {
	ctx := context.Background()
	g := NewSingleTxGuard(money.NewFromInt(10), money.NewFromInt(1000))
	in := GuardInput{WalletID: "w1", Amount: money.NewFromInt(5000)}

	_, err := g.Reserve(ctx, in)
	require.Error(t, err)
	require.Equal(t, ErrGuardBlocked, KindOf(err))
}
