package corepay

import (
	"context"

	"github.com/agentpay/corepay/pkg/money"
)

// Approver is the external human-approval capability the embedder injects,
// per spec.md §4.3: the core does not prescribe how humans approve, only
// that it invokes this capability and honors the result. A nil/absent
// verdict is treated as a block.
type Approver interface {
	// Approve returns whether the payment described by in is approved.
	Approve(ctx context.Context, in GuardInput) (approved bool, err error)
}

// ConfirmGuard invokes an external approval capability above a threshold
// (or unconditionally, whatever the Threshold, if Always is set),
// per spec.md §4.3.
type ConfirmGuard struct {
	Approver  Approver
	Threshold money.Amount
	Always    bool
}

// NewConfirmGuard builds a guard that requires approval for payments at or
// above threshold, or for every payment if always is true.
func NewConfirmGuard(approver Approver, threshold money.Amount, always bool) *ConfirmGuard {
	return &ConfirmGuard{Approver: approver, Threshold: threshold, Always: always}
}

func (g *ConfirmGuard) Name() string { return "confirm" }

func (g *ConfirmGuard) requiresApproval(in GuardInput) bool {
	return g.Always || in.Amount.GreaterThanOrEqual(g.Threshold)
}

func (g *ConfirmGuard) Check(ctx context.Context, in GuardInput) (bool, string) {
	if !g.requiresApproval(in) {
		return true, ""
	}
	if g.Approver == nil {
		return false, "approval required but no approver is configured"
	}
	approved, err := g.Approver.Approve(ctx, in)
	if err != nil {
		return false, "approval capability failed: " + err.Error()
	}
	if !approved {
		return false, "payment was not approved"
	}
	return true, ""
}

func (g *ConfirmGuard) Reserve(ctx context.Context, in GuardInput) (string, error) {
	if allow, reason := g.Check(ctx, in); !allow {
		return "", GuardBlocked(g.Name(), reason)
	}
	return "confirm", nil
}

func (g *ConfirmGuard) Commit(ctx context.Context, token string) error   { return nil }
func (g *ConfirmGuard) Release(ctx context.Context, token string) error { return nil }
