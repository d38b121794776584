package corepay

import (
	"context"

	"github.com/agentpay/corepay/pkg/money"
)

// CustodyProvider is the narrow external collaborator that actually moves
// custodial funds. It is out of scope per spec.md §1 ("the custody
// provider's remote API" is explicitly excluded) — the core only depends
// on this interface, mirroring the teacher's CustodyInterface abstraction
// in custody.go, generalized from one contract call (Checkpoint) to the
// three operations every transport adapter needs.
type CustodyProvider interface {
	// Send executes a transfer of amount from walletID to recipient on
	// network, returning a provider transaction id and, once available, an
	// on-chain transaction hash. idempotencyKey, when non-empty, is the
	// caller's PaymentRequest.IdempotencyKey: the provider must produce one
	// custody-side effect for repeated Send calls carrying the same key,
	// per spec.md §8.
	Send(ctx context.Context, walletID, recipient string, amount money.Amount, network NetworkTag, idempotencyKey string) (providerTxID string, txHash string, err error)
	// SimulateSend reports whether Send would plausibly succeed (balance,
	// recipient reachability) without moving funds.
	SimulateSend(ctx context.Context, walletID, recipient string, amount money.Amount, network NetworkTag, idempotencyKey string) (ok bool, reason string, err error)
	// Balance returns the live, custody-side balance for walletID. The
	// orchestrator never caches this value, per spec.md §5's "always
	// live-read at step 5".
	Balance(ctx context.Context, walletID string) (money.Amount, error)
}
