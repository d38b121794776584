package corepay

import (
	"context"

	"github.com/agentpay/corepay/pkg/money"
)

// GuardInput is the context a guard predicate or reservation evaluates
// against.
type GuardInput struct {
	WalletID    string
	WalletSetID string
	Recipient   string
	Amount      money.Amount
}

// Guard is the uniform contract every guard kind implements, per spec.md
// §4.3: a read-only Check for simulation, and a Reserve/Commit/Release
// triple whose Reserve atomically tests a limit and records usage as
// pending.
type Guard interface {
	// Name identifies the guard kind for error reporting and the ledger's
	// guards-passed list (e.g. "budget", "rate_limit", "single_tx").
	Name() string
	// Check is a read-only predicate: it must not mutate any counter.
	Check(ctx context.Context, in GuardInput) (allow bool, reason string)
	// Reserve atomically tests the guard's limit and records the usage as
	// pending, returning an opaque token. On rejection it returns a
	// *CoreError with Kind ErrGuardBlocked.
	Reserve(ctx context.Context, in GuardInput) (token string, err error)
	// Commit finalizes the pending usage recorded by Reserve. Most guards
	// no-op here because Reserve already counted the usage.
	Commit(ctx context.Context, token string) error
	// Release rolls back the pending usage recorded by Reserve.
	Release(ctx context.Context, token string) error
}

// guardToken pairs a guard with the token Reserve handed back, so Chain can
// commit/release the whole set without re-deriving which guard owns which
// token.
type guardToken struct {
	guard Guard
	token string
}

// Chain composes guards for one payment, per spec.md §4.3: the effective
// chain is (wallet-set-chain ⊕ wallet-chain), evaluated wallet-set guards
// first purely by convention of construction order.
type Chain struct {
	guards []Guard
}

// NewChain builds a chain from the wallet-set-level guards followed by the
// wallet-level guards, in that order.
func NewChain(setGuards, walletGuards []Guard) *Chain {
	all := make([]Guard, 0, len(setGuards)+len(walletGuards))
	all = append(all, setGuards...)
	all = append(all, walletGuards...)
	return &Chain{guards: all}
}

// Check runs every guard's read-only predicate, used by simulate. It never
// mutates state and never short-circuits: callers get a full report of
// which guards would pass and which would fail.
func (c *Chain) Check(ctx context.Context, in GuardInput) (pass, fail []string, reasons map[string]string) {
	reasons = map[string]string{}
	for _, g := range c.guards {
		allow, reason := g.Check(ctx, in)
		if allow {
			pass = append(pass, g.Name())
		} else {
			fail = append(fail, g.Name())
			reasons[g.Name()] = reason
		}
	}
	return pass, fail, reasons
}

// reservation is the opaque result of a successful Chain.Reserve, passed
// back into Commit/Release.
type reservation struct {
	tokens []guardToken
}

// Reserve calls every guard's Reserve in order. On the first failure it
// releases every token already obtained and returns the block reason,
// per spec.md §4.3.
func (c *Chain) Reserve(ctx context.Context, in GuardInput) (*reservation, []string, error) {
	var obtained []guardToken
	var passed []string
	for _, g := range c.guards {
		token, err := g.Reserve(ctx, in)
		if err != nil {
			c.releaseTokens(ctx, obtained)
			return nil, nil, err
		}
		obtained = append(obtained, guardToken{guard: g, token: token})
		passed = append(passed, g.Name())
	}
	return &reservation{tokens: obtained}, passed, nil
}

// Commit finalizes every token in r.
func (c *Chain) Commit(ctx context.Context, r *reservation) error {
	if r == nil {
		return nil
	}
	var firstErr error
	for _, t := range r.tokens {
		if err := t.guard.Commit(ctx, t.token); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Release rolls back every token in r.
func (c *Chain) Release(ctx context.Context, r *reservation) error {
	if r == nil {
		return nil
	}
	return c.releaseTokens(ctx, r.tokens)
}

// Restore reconstructs a reservation from a name->token map, used to carry
// a Chain.Reserve result across a persistence boundary (e.g. a payment
// intent's requires-confirmation→processing transition, where the tokens
// obtained at create time are read back from storage before Commit/Release
// is called at confirm/cancel time). Tokens for guard names not present in
// the chain are dropped.
func (c *Chain) Restore(tokens map[string]string) *reservation {
	var obtained []guardToken
	for _, g := range c.guards {
		if tok, ok := tokens[g.Name()]; ok {
			obtained = append(obtained, guardToken{guard: g, token: tok})
		}
	}
	return &reservation{tokens: obtained}
}

// TokensOf flattens r back into a name->token map for persistence.
func TokensOf(r *reservation) map[string]string {
	m := make(map[string]string, len(r.tokens))
	for _, t := range r.tokens {
		m[t.guard.Name()] = t.token
	}
	return m
}

func (c *Chain) releaseTokens(ctx context.Context, tokens []guardToken) error {
	var firstErr error
	for _, t := range tokens {
		if err := t.guard.Release(ctx, t.token); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
