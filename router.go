package corepay

import "context"

// WalletDirectory resolves the network tag a wallet lives on, per spec.md
// §3's "a wallet has an associated network tag". It is a narrow, embedder-
// supplied collaborator distinct from CustodyProvider because network
// lookup is needed by the router before any custody call is made.
type WalletDirectory interface {
	NetworkOf(ctx context.Context, walletID string) (NetworkTag, error)
}

// Adapter is the uniform transport contract every routing target
// implements, per spec.md §4.8.
type Adapter interface {
	// Name identifies the adapter for ledger/metrics labeling.
	Name() TransportMethod
	// CanHandle reports whether this adapter would be selected for req,
	// given the wallet's resolved network.
	CanHandle(ctx context.Context, req PaymentRequest, walletNetwork NetworkTag) bool
	// Simulate performs no fund movement and no irreversible counterparty
	// side effect.
	Simulate(ctx context.Context, req PaymentRequest) (SimulationResult, error)
	// Execute carries out the payment. Exactly-once semantics are
	// delegated to the custody provider via req.IdempotencyKey.
	Execute(ctx context.Context, req PaymentRequest) (PaymentResult, error)
}

// Router selects exactly one adapter per spec.md §4.8's priority rule: a
// set, network-mismatched destination always routes cross-chain,
// regardless of recipient shape; otherwise the first adapter (by
// construction order: HTTP-402 before transfer) whose CanHandle matches
// wins. Priority numbers in spec.md are documentation for *why* that
// construction order is correct, not a runtime-sorted list.
type Router struct {
	directory  WalletDirectory
	crossChain Adapter
	adapters   []Adapter // HTTP-402 before transfer, per spec.md §4.8
}

// NewRouter builds a router. adapters should be supplied HTTP-402-first,
// transfer-second, matching spec.md §4.8's priority ordering (10 before
// 50); crossChain is consulted first whenever destination_network is set
// and differs from the wallet's own network.
func NewRouter(directory WalletDirectory, crossChain Adapter, adapters []Adapter) *Router {
	return &Router{directory: directory, crossChain: crossChain, adapters: adapters}
}

// Select resolves the adapter for req, per spec.md §4.8.
func (r *Router) Select(ctx context.Context, req PaymentRequest) (Adapter, error) {
	walletNetwork, err := r.directory.NetworkOf(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}

	if req.DestinationNetwork != "" && req.DestinationNetwork != walletNetwork {
		return r.crossChain, nil
	}

	for _, a := range r.adapters {
		if a.CanHandle(ctx, req, walletNetwork) {
			return a, nil
		}
	}
	return nil, Errorf(ErrRoutingFailed, "no adapter matched recipient %q", req.Recipient)
}
