package corepay

import (
	"context"
	"strings"

	"github.com/agentpay/corepay/pkg/money"
	"github.com/agentpay/corepay/pkg/storage"
)

// ReservationRegistry tracks amounts held by open payment intents per
// wallet, per spec.md §4.5. It is distinct from guard counters: this is the
// "how much of the live balance is already spoken for" ledger that
// available = balance - total_for(wallet) reads from at orchestrator step 5.
type ReservationRegistry struct {
	store storage.Store
}

// NewReservationRegistry builds a registry over store.
func NewReservationRegistry(store storage.Store) *ReservationRegistry {
	return &ReservationRegistry{store: store}
}

func reservationKey(intentID string) string      { return "reservation:" + intentID }
func reservationTotalKey(walletID string) string  { return "reservation_total:" + walletID }

// Reserve records amount held for intentID against walletID. A second
// Reserve with the same intentID is idempotent: it neither double-reserves
// nor moves the amount if intentID already holds a reservation, matching
// spec.md §4.5's "an intent id appears at most once". The per-intent
// record and the wallet aggregate are both updated through
// storage.Store.Update, so a concurrent Reserve/Release on the same
// wallet's total can never interleave into a torn read-modify-write.
func (r *ReservationRegistry) Reserve(ctx context.Context, walletID, intentID string, amount money.Amount) error {
	var alreadyReserved bool
	err := r.store.Update(ctx, reservationKey(intentID), func(current []byte, found bool) ([]byte, error) {
		if found {
			alreadyReserved = true
			return current, nil
		}
		return []byte(walletID + "|" + amount.String()), nil
	})
	if err != nil {
		return err
	}
	if alreadyReserved {
		return nil
	}
	return r.addToTotal(ctx, walletID, amount)
}

// Release drops the reservation for intentID and decrements the wallet's
// aggregate total by the held amount. Releasing an unknown intent id is a
// no-op, per spec.md §4.5.
func (r *ReservationRegistry) Release(ctx context.Context, intentID string) error {
	raw, err := r.store.Get(ctx, reservationKey(intentID))
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	walletID, amount, err := parseReservation(string(raw))
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, reservationKey(intentID)); err != nil {
		return err
	}
	return r.addToTotal(ctx, walletID, amount.Neg())
}

// TotalFor returns the aggregate amount currently reserved for walletID
// across all open intents.
func (r *ReservationRegistry) TotalFor(ctx context.Context, walletID string) (money.Amount, error) {
	raw, err := r.store.Get(ctx, reservationTotalKey(walletID))
	if err == storage.ErrNotFound {
		return money.Zero, nil
	}
	if err != nil {
		return money.Zero, err
	}
	return money.ParseAmount(string(raw))
}

func (r *ReservationRegistry) addToTotal(ctx context.Context, walletID string, delta money.Amount) error {
	return r.store.Update(ctx, reservationTotalKey(walletID), func(current []byte, found bool) ([]byte, error) {
		total := money.Zero
		if found {
			parsed, err := money.ParseAmount(string(current))
			if err != nil {
				return nil, err
			}
			total = parsed
		}
		return []byte(total.Add(delta).String()), nil
	})
}

func parseReservation(raw string) (walletID string, amount money.Amount, err error) {
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 {
		return "", money.Zero, Errorf(ErrValidation, "corrupt reservation record %q", raw)
	}
	amount, err = money.ParseAmount(parts[1])
	if err != nil {
		return "", money.Zero, err
	}
	return parts[0], amount, nil
}
