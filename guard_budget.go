package corepay

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentpay/corepay/pkg/money"
	"github.com/agentpay/corepay/pkg/storage"
)

// BudgetWindow names one of the three rolling caps a BudgetGuard may
// enforce.
type BudgetWindow string

const (
	WindowDaily    BudgetWindow = "daily"    // rolling last 86400s
	WindowHourly   BudgetWindow = "hourly"   // rolling last 3600s
	WindowLifetime BudgetWindow = "lifetime" // never expires
)

func (w BudgetWindow) duration() time.Duration {
	switch w {
	case WindowDaily:
		return 24 * time.Hour
	case WindowHourly:
		return time.Hour
	default:
		return 0
	}
}

// BudgetGuard enforces up to three windowed spending caps keyed per wallet
// (or per wallet-set), per spec.md §4.3. Windows are time-based ("last
// 86,400 seconds"), not calendar-based.
type BudgetGuard struct {
	keyPrefix string // "wallet" or "wallet_set"
	store     storage.Store
	limits    map[BudgetWindow]money.Amount
}

// NewBudgetGuard builds a guard enforcing limits; windows absent from
// limits are not enforced. keyedBySet selects whether counters are keyed by
// wallet-set id (true) or wallet id (false).
func NewBudgetGuard(store storage.Store, keyedBySet bool, limits map[BudgetWindow]money.Amount) *BudgetGuard {
	prefix := "wallet"
	if keyedBySet {
		prefix = "wallet_set"
	}
	return &BudgetGuard{keyPrefix: prefix, store: store, limits: limits}
}

func (g *BudgetGuard) Name() string { return "budget" }

func (g *BudgetGuard) key(in GuardInput, window BudgetWindow) string {
	id := in.WalletID
	if g.keyPrefix == "wallet_set" {
		id = in.WalletSetID
	}
	return "budget:" + id + ":" + string(window)
}

func (g *BudgetGuard) spent(ctx context.Context, in GuardInput, window BudgetWindow) (money.Amount, error) {
	raw, err := g.store.Get(ctx, g.key(in, window))
	if err == storage.ErrNotFound {
		return money.Zero, nil
	}
	if err != nil {
		return money.Zero, err
	}
	return money.ParseAmount(string(raw))
}

func (g *BudgetGuard) Check(ctx context.Context, in GuardInput) (bool, string) {
	for window, limit := range g.limits {
		spent, err := g.spent(ctx, in, window)
		if err != nil {
			return false, "failed to read budget counter: " + err.Error()
		}
		if spent.Add(in.Amount).GreaterThan(limit) {
			return false, string(window) + " budget of " + limit.String() + " would be exceeded"
		}
	}
	return true, ""
}

// budgetToken is serialized into the guard token so Release can reverse
// exactly the windows that were incremented by the matching Reserve.
type budgetToken struct {
	Windows []BudgetWindow `json:"windows"`
	Amount  string         `json:"amount"`
	Wallet  string         `json:"wallet"`
	Set     string         `json:"set"`
}

func (g *BudgetGuard) Reserve(ctx context.Context, in GuardInput) (string, error) {
	var incremented []BudgetWindow
	for window, limit := range g.limits {
		ok, err := g.tryIncrement(ctx, in, window, limit)
		if err != nil {
			g.rollback(ctx, in, incremented)
			return "", err
		}
		if !ok {
			g.rollback(ctx, in, incremented)
			return "", GuardBlocked(g.Name(), string(window)+" budget limit of "+limit.String()+" exceeded")
		}
		incremented = append(incremented, window)
	}

	tok := budgetToken{Windows: incremented, Amount: in.Amount.String(), Wallet: in.WalletID, Set: in.WalletSetID}
	data, err := json.Marshal(tok)
	if err != nil {
		g.rollback(ctx, in, incremented)
		return "", err
	}
	return uuid.NewString() + ":" + string(data), nil
}

// tryIncrement performs a conditional increment: it adds amount to the
// window's counter only if doing so would not exceed limit, atomically via
// storage.Update (a single read-modify-write), satisfying spec.md §4.3's
// "predicate check and counter mutation MUST be inseparable" for this
// window. Reserve composes three of these and rolls back on partial
// failure to approximate the all-windows-atomic contract.
func (g *BudgetGuard) tryIncrement(ctx context.Context, in GuardInput, window BudgetWindow, limit money.Amount) (bool, error) {
	var granted bool
	err := g.store.Update(ctx, g.key(in, window), func(current []byte, found bool) ([]byte, error) {
		spent := money.Zero
		if found {
			parsed, err := money.ParseAmount(string(current))
			if err != nil {
				return nil, err
			}
			spent = parsed
		}
		next := spent.Add(in.Amount)
		if next.GreaterThan(limit) {
			granted = false
			return current, nil
		}
		granted = true
		return []byte(next.String()), nil
	})
	return granted, err
}

func (g *BudgetGuard) rollback(ctx context.Context, in GuardInput, windows []BudgetWindow) {
	for _, window := range windows {
		_ = g.store.Update(ctx, g.key(in, window), func(current []byte, found bool) ([]byte, error) {
			if !found {
				return []byte("0"), nil
			}
			spent, err := money.ParseAmount(string(current))
			if err != nil {
				return nil, err
			}
			return []byte(spent.Sub(in.Amount).String()), nil
		})
	}
}

func (g *BudgetGuard) Commit(ctx context.Context, token string) error {
	// Reserve already counted usage; nothing left to finalize.
	return nil
}

func (g *BudgetGuard) Release(ctx context.Context, token string) error {
	tok, err := parseBudgetToken(token)
	if err != nil {
		return err
	}
	amount, err := money.ParseAmount(tok.Amount)
	if err != nil {
		return err
	}
	in := GuardInput{WalletID: tok.Wallet, WalletSetID: tok.Set, Amount: amount}
	g.rollback(ctx, in, tok.Windows)
	return nil
}

func parseBudgetToken(token string) (budgetToken, error) {
	idx := strings.IndexByte(token, ':')
	if idx < 0 {
		return budgetToken{}, Errorf(ErrValidation, "malformed budget token")
	}
	var tok budgetToken
	if err := json.Unmarshal([]byte(token[idx+1:]), &tok); err != nil {
		return budgetToken{}, err
	}
	return tok, nil
}
