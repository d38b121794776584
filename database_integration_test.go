package corepay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/agentpay/corepay/pkg/log"
	"github.com/agentpay/corepay/pkg/money"
)

// TestConnectToDBPostgresAppliesMigrationsAndRecordsLedgerEntry boots a real
// postgres container, runs ConnectToDB end to end (schema check, goose
// migrations, gorm open), and checks a ledger round trip against it. Skipped
// under -short since it needs a container runtime.
func TestConnectToDBPostgresAppliesMigrationsAndRecordsLedgerEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed postgres test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("corepay"),
		tcpostgres.WithUsername("corepay"),
		tcpostgres.WithPassword("corepay"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cnf := DatabaseConfig{
		Driver:   "postgres",
		Name:     "corepay",
		Username: "corepay",
		Password: "corepay",
		Host:     host,
		Port:     port.Port(),
		Retries:  1,
	}

	db, err := ConnectToDB(cnf, log.New("test"))
	require.NoError(t, err)

	ledger := NewLedger(db)
	entry, err := ledger.Record(PaymentRequest{
		WalletID:  "w1",
		Recipient: "0x" + repeat("a", 40),
		Amount:    money.NewFromInt(25),
	})
	require.NoError(t, err)
	require.NoError(t, ledger.UpdateStatus(entry.ID, StatusCompleted, "0xdeadbeef", nil))

	got, err := ledger.Get(entry.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "0xdeadbeef", got.OnChainTxHash)
}
