package corepay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentpay/corepay/pkg/storage"
)

// RateUnit names one of the three count-capped time units a RateLimitGuard
// may enforce.
type RateUnit string

const (
	RateMinute RateUnit = "minute"
	RateHour   RateUnit = "hour"
	RateDay    RateUnit = "day"
)

func (u RateUnit) bucketSize() time.Duration {
	switch u {
	case RateMinute:
		return time.Minute
	case RateHour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// RateLimitGuard enforces per-minute/hour/day payment-count caps, bucketed
// by time so old buckets expire naturally rather than needing explicit
// cleanup, per spec.md §4.3.
type RateLimitGuard struct {
	store storage.Store
	caps  map[RateUnit]int64
}

// NewRateLimitGuard builds a guard enforcing caps; units absent from caps
// are not enforced.
func NewRateLimitGuard(store storage.Store, caps map[RateUnit]int64) *RateLimitGuard {
	return &RateLimitGuard{store: store, caps: caps}
}

func (g *RateLimitGuard) Name() string { return "rate_limit" }

func (g *RateLimitGuard) bucketKey(walletID string, unit RateUnit) string {
	bucket := time.Now().Unix() / int64(unit.bucketSize().Seconds())
	return fmt.Sprintf("rate:%s:%s:%d", walletID, unit, bucket)
}

func (g *RateLimitGuard) Check(ctx context.Context, in GuardInput) (bool, string) {
	for unit, cap_ := range g.caps {
		raw, err := g.store.Get(ctx, g.bucketKey(in.WalletID, unit))
		var count int64
		if err == nil {
			fmt.Sscanf(string(raw), "%d", &count)
		} else if err != storage.ErrNotFound {
			return false, "failed to read rate counter: " + err.Error()
		}
		if count >= cap_ {
			return false, fmt.Sprintf("%s rate limit of %d reached", unit, cap_)
		}
	}
	return true, ""
}

type rateToken struct {
	WalletID string              `json:"wallet_id"`
	Buckets  map[RateUnit]string `json:"buckets"`
}

func (g *RateLimitGuard) Reserve(ctx context.Context, in GuardInput) (string, error) {
	used := map[RateUnit]string{}
	for unit, cap_ := range g.caps {
		key := g.bucketKey(in.WalletID, unit)
		count, err := g.store.AtomicAdd(ctx, key, 1, unit.bucketSize())
		if err != nil {
			g.rollback(ctx, used)
			return "", err
		}
		if count > cap_ {
			_, _ = g.store.AtomicAdd(ctx, key, -1, 0)
			g.rollback(ctx, used)
			return "", GuardBlocked(g.Name(), fmt.Sprintf("%s rate limit of %d exceeded", unit, cap_))
		}
		used[unit] = key
	}
	tok := rateToken{WalletID: in.WalletID, Buckets: used}
	data, err := json.Marshal(tok)
	if err != nil {
		g.rollback(ctx, used)
		return "", err
	}
	return uuid.NewString() + ":" + string(data), nil
}

func (g *RateLimitGuard) rollback(ctx context.Context, used map[RateUnit]string) {
	for _, key := range used {
		_, _ = g.store.AtomicAdd(ctx, key, -1, 0)
	}
}

func (g *RateLimitGuard) Commit(ctx context.Context, token string) error {
	return nil
}

func (g *RateLimitGuard) Release(ctx context.Context, token string) error {
	tok, err := parseRateToken(token)
	if err != nil {
		return err
	}
	g.rollback(ctx, tok.Buckets)
	return nil
}

func parseRateToken(token string) (rateToken, error) {
	idx := strings.IndexByte(token, ':')
	if idx < 0 {
		return rateToken{}, Errorf(ErrValidation, "malformed rate token")
	}
	var tok rateToken
	if err := json.Unmarshal([]byte(token[idx+1:]), &tok); err != nil {
		return rateToken{}, err
	}
	return tok, nil
}
