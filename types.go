// Package corepay implements the payment execution core: a single pay()
// entry point that enforces budget/rate/recipient/confirmation policy,
// reserves funds against double-spend, shields outbound calls with a
// circuit breaker and typed retry, and routes a payment across a direct
// custody transfer, an HTTP-402 negotiated payment, or a cross-chain
// burn/attest/mint flow.
package corepay

import (
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/agentpay/corepay/pkg/money"
)

// NetworkTag is a closed enumeration of the chains a wallet or destination
// may live on.
type NetworkTag string

const (
	NetworkEthereum  NetworkTag = "ethereum"
	NetworkPolygon   NetworkTag = "polygon"
	NetworkBase      NetworkTag = "base"
	NetworkArbitrum  NetworkTag = "arbitrum"
	NetworkSolana    NetworkTag = "solana"
	NetworkAvalanche NetworkTag = "avalanche"
)

// IsEVM reports whether the network uses EVM-style hex addresses.
func (n NetworkTag) IsEVM() bool {
	switch n {
	case NetworkEthereum, NetworkPolygon, NetworkBase, NetworkArbitrum, NetworkAvalanche:
		return true
	default:
		return false
	}
}

// RecipientKind classifies a recipient string, per spec.md §3/§4.8.
type RecipientKind string

const (
	RecipientEVMAddress RecipientKind = "evm_address"
	RecipientBase58     RecipientKind = "base58_address"
	RecipientURL        RecipientKind = "url"
	RecipientOther      RecipientKind = "other"
)

var domainPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.-]*\.[a-zA-Z]{2,}$`)

// ClassifyRecipient deterministically classifies a raw recipient string.
// EVM hex takes priority over base58 inspection since a "0x"-prefixed
// string would otherwise also decode as (meaningless) base58.
func ClassifyRecipient(raw string) RecipientKind {
	if isEVMHex(raw) {
		return RecipientEVMAddress
	}
	if isURL(raw) {
		return RecipientURL
	}
	if isBase58Address(raw) {
		return RecipientBase58
	}
	return RecipientOther
}

func isEVMHex(raw string) bool {
	s := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(s) != 40 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func isURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

func isBase58Address(raw string) bool {
	if len(raw) < 32 || len(raw) > 44 {
		return false
	}
	decoded, err := base58.Decode(raw)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}

// DomainMatches reports whether domain appears as a substring of raw's host
// component, used by RecipientGuard's domain match source.
func DomainMatches(raw, domain string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(u.Host, domain)
}

// FeeHint is a coarse fee-speed preference supplied on a PaymentRequest.
type FeeHint string

const (
	FeeLow    FeeHint = "low"
	FeeMedium FeeHint = "medium"
	FeeHigh   FeeHint = "high"
)

// ResilienceStrategy selects how the orchestrator composes the circuit
// breaker and retry policy around adapter execution, per spec.md §4.7.
type ResilienceStrategy string

const (
	StrategyFailFast       ResilienceStrategy = "fail_fast"
	StrategyRetryThenFail  ResilienceStrategy = "retry_then_fail"
	StrategyQueueBackground ResilienceStrategy = "queue_background"
)

// TrustDecision is the tri-state override a caller may supply for the
// optional trust hook.
type TrustDecision string

const (
	TrustAuto TrustDecision = "auto"
	TrustOn   TrustDecision = "on"
	TrustOff  TrustDecision = "off"
)

// PaymentRequest is the input to pay/simulate, per spec.md §3.
type PaymentRequest struct {
	WalletID           string `validate:"required"`
	WalletSetID        string
	Recipient          string `validate:"required"`
	Amount             money.Amount
	DestinationNetwork NetworkTag // empty unless a cross-chain intent
	Purpose            string
	Metadata           map[string]string
	IdempotencyKey     string
	FeeHint            FeeHint
	SkipGuards         bool
	TrustCheck         TrustDecision
	WaitForConfirm     bool
	Timeout            time.Duration
	Strategy           ResilienceStrategy
}

// PaymentStatus is the terminal/non-terminal status of a ledger entry or
// intent, per spec.md §3.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
	StatusBlocked   PaymentStatus = "blocked"
	StatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether s is one of the statuses a ledger entry or
// intent cannot transition out of.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBlocked, StatusCancelled:
		return true
	default:
		return false
	}
}

// TransportMethod names the adapter that carried out (or would carry out) a
// payment.
type TransportMethod string

const (
	TransportTransfer   TransportMethod = "transfer"
	TransportHTTP402    TransportMethod = "http402"
	TransportCrossChain TransportMethod = "crosschain"
)

// PaymentResult is the output of pay/confirm, per spec.md §3.
type PaymentResult struct {
	Success         bool
	Status          PaymentStatus
	Transport       TransportMethod
	ProviderTxID    string
	OnChainTxHash   string
	Amount          money.Amount
	Recipient       string
	GuardsPassed    []string
	ErrorKind       ErrorKind
	ErrorMessage    string
	LedgerEntryID   string
	IntentID        string // set only when an intent was created instead of executing (a trust hook "hold" verdict, or a queue-background deferral on an open circuit)
	Metadata        map[string]string
}

// SimulationResult is the output of simulate, per spec.md §4.10.
type SimulationResult struct {
	WouldSucceed  bool
	Route         TransportMethod
	EstimatedFee  money.Amount
	GuardsPass    []string
	GuardsFail    []string
	Reason        string
}

// BatchResult aggregates the per-request outcomes of batch_pay.
type BatchResult struct {
	Results []PaymentResult
}
