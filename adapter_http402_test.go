package corepay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentpay/corepay/pkg/money"
)

type fakeSigner struct {
	header string
	value  string
	err    error
}

func (f *fakeSigner) SignPayment(ctx context.Context, walletID string, descriptor PaymentDescriptor) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	header, value := f.header, f.value
	if header == "" {
		header = "X-Payment"
	}
	if value == "" {
		value = "signed-proof"
	}
	return header, value, nil
}

func TestHTTP402AdapterCanHandleURLOnly(t *testing.T) {
	a := NewHTTP402Adapter(&fakeSigner{}, testLogger())
	require.True(t, a.CanHandle(context.Background(), PaymentRequest{Recipient: "https://merchant.example/pay"}, NetworkEthereum))
	require.False(t, a.CanHandle(context.Background(), PaymentRequest{Recipient: "0x" + repeat("a", 40)}, NetworkEthereum))
}

func newDescriptorServer(t *testing.T, completed *bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Payment") == "" {
			body, _ := json.Marshal(map[string]string{
				"payTo":   "merchant-1",
				"amount":  "12.50",
				"asset":   "USDC",
				"network": "ethereum",
			})
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write(body)
			return
		}
		*completed = true
		w.WriteHeader(http.StatusOK)
	}))
}

func TestHTTP402AdapterExecuteSucceedsAfterSignedRetry(t *testing.T) {
	var completed bool
	server := newDescriptorServer(t, &completed)
	defer server.Close()

	a := NewHTTP402Adapter(&fakeSigner{}, testLogger())
	req := PaymentRequest{WalletID: "w1", Recipient: server.URL, Amount: money.NewFromInt(1)}

	result, err := a.Execute(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "12.5", result.Amount.String())
	require.True(t, completed)
}

func TestHTTP402AdapterSimulateDoesNotRetryOrSign(t *testing.T) {
	var completed bool
	server := newDescriptorServer(t, &completed)
	defer server.Close()

	a := NewHTTP402Adapter(&fakeSigner{}, testLogger())
	req := PaymentRequest{WalletID: "w1", Recipient: server.URL, Amount: money.NewFromInt(1)}

	result, err := a.Simulate(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.WouldSucceed)
	require.False(t, completed, "simulate must not perform the signed retry")
}

func TestHTTP402AdapterProbeNon402ErrorIsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	a := NewHTTP402Adapter(&fakeSigner{}, testLogger())
	req := PaymentRequest{WalletID: "w1", Recipient: server.URL, Amount: money.NewFromInt(1)}

	_, err := a.Execute(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, ErrProtocol, KindOf(err))
}
