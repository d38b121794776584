package corepay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentpay/corepay/pkg/money"
	"github.com/agentpay/corepay/pkg/storage"
)

func TestReservationRegistryReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	reg := NewReservationRegistry(storage.NewMemoryStore())

	require.NoError(t, reg.Reserve(ctx, "wallet-1", "intent-1", money.MustParseAmount("30.00")))

	total, err := reg.TotalFor(ctx, "wallet-1")
	require.NoError(t, err)
	require.Equal(t, "30", total.String())

	require.NoError(t, reg.Release(ctx, "intent-1"))

	total, err = reg.TotalFor(ctx, "wallet-1")
	require.NoError(t, err)
	require.True(t, total.IsZero(), "release must return reservation total to its prior value exactly")
}

func TestReservationRegistryReserveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := NewReservationRegistry(storage.NewMemoryStore())

	require.NoError(t, reg.Reserve(ctx, "wallet-1", "intent-1", money.MustParseAmount("30.00")))
	require.NoError(t, reg.Reserve(ctx, "wallet-1", "intent-1", money.MustParseAmount("30.00")))

	total, err := reg.TotalFor(ctx, "wallet-1")
	require.NoError(t, err)
	require.Equal(t, "30", total.String(), "a second reserve with the same intent id must not double-reserve")
}

func TestReservationRegistryReleaseUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	reg := NewReservationRegistry(storage.NewMemoryStore())
	require.NoError(t, reg.Release(ctx, "never-reserved"))
}

func TestReservationRegistryMultipleWallets(t *testing.T) {
	ctx := context.Background()
	reg := NewReservationRegistry(storage.NewMemoryStore())

	require.NoError(t, reg.Reserve(ctx, "wallet-1", "intent-1", money.MustParseAmount("10")))
	require.NoError(t, reg.Reserve(ctx, "wallet-1", "intent-2", money.MustParseAmount("5")))
	require.NoError(t, reg.Reserve(ctx, "wallet-2", "intent-3", money.MustParseAmount("99")))

	total1, err := reg.TotalFor(ctx, "wallet-1")
	require.NoError(t, err)
	require.Equal(t, "15", total1.String())

	total2, err := reg.TotalFor(ctx, "wallet-2")
	require.NoError(t, err)
	require.Equal(t, "99", total2.String())
}
