package corepay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/agentpay/corepay/pkg/log"
	"github.com/agentpay/corepay/pkg/money"
)

// PaymentDescriptor is the payment-required information a 402 response
// carries, per spec.md §4.8, normalized from either the structured
// X-Payment-Required header or the body field set.
type PaymentDescriptor struct {
	PayTo   string
	Amount  money.Amount
	Asset   string
	Network string
}

// PaymentSigner assembles the signed payment proof the HTTP-402 adapter
// attaches to the retried request, using the custody wallet's identity.
// Modeled as a capability the embedder injects, same as CustodyProvider,
// since private-key custody is explicitly out of scope (spec.md §1).
type PaymentSigner interface {
	SignPayment(ctx context.Context, walletID string, descriptor PaymentDescriptor) (header, value string, err error)
}

// HTTP402Adapter implements the probe/parse/sign/retry flow of spec.md
// §4.8's HTTP-402 adapter, built on hashicorp/go-retryablehttp so
// transient network failures at the transport layer are retried in
// addition to the core's own retry policy around the whole adapter call.
type HTTP402Adapter struct {
	client *retryablehttp.Client
	signer PaymentSigner
}

// NewHTTP402Adapter builds the adapter. lg's Debug/Info/Warn/Error shape
// matches retryablehttp.LeveledLogger exactly, so the transport layer's
// own retry log lines flow through this codebase's structured logger
// instead of retryablehttp's default stdlib logger.
func NewHTTP402Adapter(signer PaymentSigner, lg log.Logger) *HTTP402Adapter {
	client := retryablehttp.NewClient()
	client.Logger = lg
	client.RetryMax = 3
	// Hand back the last response once retries are exhausted, so a probe
	// that keeps answering 5xx is reported by status as protocol_error.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &HTTP402Adapter{client: client, signer: signer}
}

func (a *HTTP402Adapter) Name() TransportMethod { return TransportHTTP402 }

func (a *HTTP402Adapter) CanHandle(ctx context.Context, req PaymentRequest, walletNetwork NetworkTag) bool {
	return ClassifyRecipient(req.Recipient) == RecipientURL
}

// probe issues an unauthenticated request against the recipient URL and
// expects either a 402 (carrying a descriptor) or a non-402, non-success
// status, per spec.md §4.8: "If probe returns >=400 other than 402, fail
// with protocol_error."
func (a *HTTP402Adapter) probe(ctx context.Context, req PaymentRequest) (*http.Response, *PaymentDescriptor, error) {
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, req.Recipient, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, nil, Errorf(ErrNetwork, "http-402 probe failed: %v", err)
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		if resp.StatusCode >= http.StatusBadRequest {
			resp.Body.Close()
			return nil, nil, Errorf(ErrProtocol, "http-402 probe returned unexpected status %d", resp.StatusCode)
		}
		return resp, nil, nil
	}

	descriptor, err := parsePaymentDescriptor(resp)
	resp.Body.Close()
	if err != nil {
		return nil, nil, err
	}
	return resp, descriptor, nil
}

func parsePaymentDescriptor(resp *http.Response) (*PaymentDescriptor, error) {
	if header := resp.Header.Get("X-Payment-Required"); header != "" {
		var d PaymentDescriptor
		if err := json.Unmarshal([]byte(header), &d); err != nil {
			return nil, Errorf(ErrProtocol, "malformed X-Payment-Required header: %v", err)
		}
		return &d, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, Errorf(ErrProtocol, "failed to read 402 response body: %v", err)
	}
	var fields struct {
		PayTo   string `json:"payTo"`
		Amount  string `json:"amount"`
		Asset   string `json:"asset"`
		Network string `json:"network"`
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, Errorf(ErrProtocol, "402 response carries neither a recognized header nor body descriptor: %v", err)
	}
	amount, err := money.ParseAmount(fields.Amount)
	if err != nil {
		return nil, Errorf(ErrProtocol, "402 descriptor amount %q is not a valid amount", fields.Amount)
	}
	return &PaymentDescriptor{PayTo: fields.PayTo, Amount: amount, Asset: fields.Asset, Network: fields.Network}, nil
}

func (a *HTTP402Adapter) Simulate(ctx context.Context, req PaymentRequest) (SimulationResult, error) {
	_, descriptor, err := a.probe(ctx, req)
	if err != nil {
		return SimulationResult{Route: a.Name(), Reason: err.Error()}, nil
	}
	if descriptor == nil {
		return SimulationResult{WouldSucceed: false, Route: a.Name(), Reason: "recipient did not request payment"}, nil
	}
	return SimulationResult{WouldSucceed: true, Route: a.Name(), EstimatedFee: money.Zero}, nil
}

func (a *HTTP402Adapter) Execute(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	_, descriptor, err := a.probe(ctx, req)
	if err != nil {
		return PaymentResult{Success: false, Status: StatusFailed, Transport: a.Name(), ErrorKind: KindOf(err), ErrorMessage: err.Error()}, err
	}
	if descriptor == nil {
		err := Errorf(ErrProtocol, "recipient did not return a 402 payment descriptor")
		return PaymentResult{Success: false, Status: StatusFailed, Transport: a.Name(), ErrorKind: ErrProtocol, ErrorMessage: err.Error()}, err
	}

	header, value, err := a.signer.SignPayment(ctx, req.WalletID, *descriptor)
	if err != nil {
		return PaymentResult{Success: false, Status: StatusFailed, Transport: a.Name(), ErrorKind: ErrProtocol, ErrorMessage: err.Error()}, err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, req.Recipient, nil)
	if err != nil {
		return PaymentResult{}, err
	}
	httpReq.Header.Set(header, value)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		wrapped := Errorf(ErrNetwork, "http-402 retry failed: %v", err)
		return PaymentResult{Success: false, Status: StatusFailed, Transport: a.Name(), ErrorKind: ErrNetwork, ErrorMessage: wrapped.Error()}, wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		err := Errorf(ErrProtocol, "http-402 retried request failed with status %d", resp.StatusCode)
		return PaymentResult{Success: false, Status: StatusFailed, Transport: a.Name(), ErrorKind: ErrProtocol, ErrorMessage: err.Error()}, err
	}

	return PaymentResult{
		Success:      true,
		Status:       StatusCompleted,
		Transport:    a.Name(),
		Amount:       descriptor.Amount,
		Recipient:    descriptor.PayTo,
		ProviderTxID: strings.TrimSpace(resp.Header.Get("X-Payment-Receipt")),
	}, nil
}
