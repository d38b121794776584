package corepay

import (
	"context"

	"github.com/agentpay/corepay/pkg/money"
)

// SingleTxGuard is stateless: it verifies min <= amount <= max, per
// spec.md §4.3. Reserve/Commit/Release are no-ops beyond re-running the
// check, since there is no counter to mutate.
type SingleTxGuard struct {
	Min money.Amount
	Max money.Amount
}

// NewSingleTxGuard builds a guard enforcing [min, max] inclusive.
func NewSingleTxGuard(min, max money.Amount) *SingleTxGuard {
	return &SingleTxGuard{Min: min, Max: max}
}

func (g *SingleTxGuard) Name() string { return "single_tx" }

func (g *SingleTxGuard) Check(ctx context.Context, in GuardInput) (bool, string) {
	if in.Amount.LessThan(g.Min) {
		return false, "amount " + in.Amount.String() + " is below minimum " + g.Min.String()
	}
	if in.Amount.GreaterThan(g.Max) {
		return false, "amount " + in.Amount.String() + " exceeds maximum " + g.Max.String()
	}
	return true, ""
}

func (g *SingleTxGuard) Reserve(ctx context.Context, in GuardInput) (string, error) {
	if allow, reason := g.Check(ctx, in); !allow {
		return "", GuardBlocked(g.Name(), reason)
	}
	return "single_tx", nil
}

func (g *SingleTxGuard) Commit(ctx context.Context, token string) error { return nil }
func (g *SingleTxGuard) Release(ctx context.Context, token string) error { return nil }
