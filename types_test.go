package corepay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyRecipient(t *testing.T) {
	cases := []struct {
		raw  string
		want RecipientKind
	}{
		{"0x" + repeat("a", 40), RecipientEVMAddress},
		{repeat("b", 40), RecipientEVMAddress},
		{"https://pay.example.com/invoice/123", RecipientURL},
		{"http://pay.example.com", RecipientURL},
		{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", RecipientBase58},
		{"not a recipient at all", RecipientOther},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ClassifyRecipient(c.raw), c.raw)
	}
}

func TestDomainMatches(t *testing.T) {
	require.True(t, DomainMatches("https://pay.example.com/x", "example.com"))
	require.False(t, DomainMatches("https://pay.example.com/x", "other.com"))
}

func TestPaymentStatusIsTerminal(t *testing.T) {
	require.False(t, StatusPending.IsTerminal())
	require.True(t, StatusCompleted.IsTerminal())
	require.True(t, StatusFailed.IsTerminal())
	require.True(t, StatusBlocked.IsTerminal())
	require.True(t, StatusCancelled.IsTerminal())
}
