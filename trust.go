package corepay

import "context"

// TrustVerdict is the three-state outcome of the optional trust hook, per
// spec.md §9: the hook's registry, scoring, and caching design are
// deliberately out of scope, only this capability shape is specified.
type TrustVerdict string

const (
	TrustApprove TrustVerdict = "approve"
	TrustHold    TrustVerdict = "hold"
	TrustBlock   TrustVerdict = "block"
)

// TrustHook is the embedder-supplied capability the orchestrator invokes at
// pipeline step 2, before any guard or fund-lock side effect. The core does
// not prescribe how a verdict is produced (on-chain attestation, an
// allowlist service, a human-in-the-loop queue); it only honors the
// returned verdict.
type TrustHook interface {
	Evaluate(ctx context.Context, req PaymentRequest) (TrustVerdict, string, error)
}

// shouldInvokeTrust reports whether the orchestrator should consult hook
// for req, honoring the request's TrustDecision override.
func shouldInvokeTrust(hook TrustHook, req PaymentRequest) bool {
	if hook == nil {
		return false
	}
	return req.TrustCheck != TrustOff
}
