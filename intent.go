package corepay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agentpay/corepay/pkg/money"
)

// IntentStatus is the state of a two-phase payment intent, per spec.md
// §4.9: requires-confirmation → processing → (succeeded | failed), or
// requires-confirmation → cancelled.
type IntentStatus string

const (
	IntentRequiresConfirmation IntentStatus = "requires_confirmation"
	IntentProcessing           IntentStatus = "processing"
	IntentSucceeded            IntentStatus = "succeeded"
	IntentFailed               IntentStatus = "failed"
	IntentCancelled            IntentStatus = "cancelled"
)

// IsTerminal reports whether an intent in this status can no longer
// transition.
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case IntentSucceeded, IntentFailed, IntentCancelled:
		return true
	default:
		return false
	}
}

// PaymentIntent is a pre-authorized payment with a held reservation pending
// confirmation, per spec.md §3/§4.9.
type PaymentIntent struct {
	ID              string `gorm:"primaryKey"`
	WalletID        string `gorm:"index"`
	WalletSetID     string
	Recipient       string
	Amount          money.Amount
	Currency        string
	Status          IntentStatus `gorm:"index"`
	LedgerEntryID   string
	GuardTokensJSON string `gorm:"column:guard_tokens_json"`
	MetadataJSON    string `gorm:"column:metadata_json"`
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// TableName matches the goose-migrated payment_intents table.
func (PaymentIntent) TableName() string { return "payment_intents" }

// IntentExecutor runs the confirmed side of a payment intent: fund-lock
// acquisition, balance check, routing/execution, ledger finalization, and
// lock release (orchestrator pipeline steps 4-10). It is implemented by
// Orchestrator; IntentService depends only on this narrow interface so the
// two can be constructed independently and wired together by the caller.
type IntentExecutor interface {
	ExecuteReserved(ctx context.Context, intent PaymentIntent) (PaymentResult, error)
}

// defaultIntentTTL is how long a freshly created intent remains
// confirmable absent an explicit expiry.
const defaultIntentTTL = 15 * time.Minute

// IntentService implements the two-phase create/confirm/cancel lifecycle
// of spec.md §4.9 over gorm, the guard chain, and the reservation
// registry.
type IntentService struct {
	db           *gorm.DB
	chain        *Chain
	reservations *ReservationRegistry
	ledger       *Ledger
	executor     IntentExecutor
	ttl          time.Duration
}

// NewIntentService wires an intent service. executor may be nil until an
// Orchestrator is constructed, in which case Confirm returns
// ErrConfiguration; this lets IntentService and Orchestrator be
// constructed in either order.
func NewIntentService(db *gorm.DB, chain *Chain, reservations *ReservationRegistry, ledger *Ledger, executor IntentExecutor) *IntentService {
	return &IntentService{db: db, chain: chain, reservations: reservations, ledger: ledger, executor: executor, ttl: defaultIntentTTL}
}

// SetExecutor binds the executor after construction, for callers that wire
// the Orchestrator after the IntentService (the Orchestrator itself
// typically depends on the IntentService for queue-background strategy).
func (s *IntentService) SetExecutor(executor IntentExecutor) {
	s.executor = executor
}

// Create runs guard checks, reserves the amount in the reservation
// registry, records a pending ledger entry, and returns a new intent in
// requires-confirmation, per spec.md §4.9.
func (s *IntentService) Create(ctx context.Context, req PaymentRequest) (*PaymentIntent, error) {
	entry, err := s.ledger.Record(req)
	if err != nil {
		return nil, err
	}
	return s.createForEntry(ctx, req, entry)
}

// createForEntry runs the guard-reserve, reservation-registry, and
// persistence steps of Create against an already-recorded ledger entry.
// It exists so the orchestrator's trust-hook "hold" path, which has
// already recorded a ledger entry at pipeline step 1, doesn't also trigger
// Create's own ledger.Record and leave a duplicate, permanently-pending
// entry behind.
func (s *IntentService) createForEntry(ctx context.Context, req PaymentRequest, entry *LedgerEntry) (*PaymentIntent, error) {
	in := GuardInput{WalletID: req.WalletID, WalletSetID: req.WalletSetID, Recipient: req.Recipient, Amount: req.Amount}

	r, _, err := s.chain.Reserve(ctx, in)
	if err != nil {
		return nil, err
	}

	intent, err := s.createFromReservation(ctx, req, entry, r)
	if err != nil {
		s.chain.Release(ctx, r)
		return nil, err
	}
	return intent, nil
}

// createFromReservation persists an intent against a guard reservation the
// caller already holds, without taking a fresh one. It is split out of
// createForEntry so the orchestrator's queue-background resilience strategy
// (spec.md §4.7/§4.10 step 7) can defer an already-in-flight payment to an
// intent on circuit-open without releasing and re-acquiring the guard
// tokens it obtained at pipeline step 3 — a release/re-reserve round trip
// would race a concurrent request for the same budget window.
func (s *IntentService) createFromReservation(ctx context.Context, req PaymentRequest, entry *LedgerEntry, r *reservation) (*PaymentIntent, error) {
	intentID := uuid.NewString()

	if err := s.reservations.Reserve(ctx, req.WalletID, intentID, req.Amount); err != nil {
		return nil, err
	}

	metaJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		s.reservations.Release(ctx, intentID)
		return nil, err
	}
	tokensJSON, err := json.Marshal(TokensOf(r))
	if err != nil {
		s.reservations.Release(ctx, intentID)
		return nil, err
	}

	intent := &PaymentIntent{
		ID:              intentID,
		WalletID:        req.WalletID,
		WalletSetID:     req.WalletSetID,
		Recipient:       req.Recipient,
		Amount:          req.Amount,
		Status:          IntentRequiresConfirmation,
		LedgerEntryID:   entry.ID,
		GuardTokensJSON: string(tokensJSON),
		MetadataJSON:    string(metaJSON),
		CreatedAt:       time.Now(),
		ExpiresAt:       time.Now().Add(s.ttl),
	}

	if err := s.db.Create(intent).Error; err != nil {
		s.reservations.Release(ctx, intentID)
		return nil, err
	}

	return intent, nil
}

// Get fetches an intent by id.
func (s *IntentService) Get(id string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := s.db.First(&intent, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, Errorf(ErrIntentNotFound, "intent %s not found", id)
		}
		return nil, err
	}
	return &intent, nil
}

// Confirm transitions an intent from requires-confirmation through
// processing to succeeded or failed, invoking the executor to carry out
// the payment, per spec.md §4.9. Double-confirm returns
// intent_already_terminal; confirming a stale intent auto-cancels it and
// returns intent_expired.
func (s *IntentService) Confirm(ctx context.Context, id string) (*PaymentIntent, error) {
	intent, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if intent.Status.IsTerminal() {
		return nil, Errorf(ErrIntentTerminal, "intent %s is already terminal (%s)", id, intent.Status)
	}
	if intent.Status != IntentRequiresConfirmation {
		return nil, Errorf(ErrValidation, "intent %s is not awaiting confirmation (%s)", id, intent.Status)
	}
	if time.Now().After(intent.ExpiresAt) {
		if _, cancelErr := s.cancelLocked(ctx, intent); cancelErr != nil {
			return nil, cancelErr
		}
		return nil, Errorf(ErrIntentExpired, "intent %s expired at %s", id, intent.ExpiresAt)
	}
	if s.executor == nil {
		return nil, Errorf(ErrConfiguration, "intent service has no executor configured")
	}

	if err := s.transition(intent, IntentProcessing); err != nil {
		return nil, err
	}

	result, execErr := s.executor.ExecuteReserved(ctx, *intent)

	final := IntentFailed
	if execErr == nil && result.Success {
		final = IntentSucceeded
	}
	if err := s.transition(intent, final); err != nil {
		return nil, err
	}

	// Guards were already committed/released by the executor as part of
	// the pipeline's step 8; the reservation registry hold is this
	// service's own responsibility to release now that the intent is
	// terminal.
	if err := s.reservations.Release(ctx, intent.ID); err != nil {
		return nil, err
	}

	return intent, execErr
}

// Cancel transitions a requires-confirmation intent to cancelled,
// releasing its reservation and updating the ledger, per spec.md §4.9.
func (s *IntentService) Cancel(ctx context.Context, id string) (*PaymentIntent, error) {
	intent, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() {
		return nil, Errorf(ErrIntentTerminal, "intent %s is already terminal (%s)", id, intent.Status)
	}
	if intent.Status != IntentRequiresConfirmation {
		return nil, Errorf(ErrValidation, "intent %s is not awaiting confirmation (%s)", id, intent.Status)
	}
	return s.cancelLocked(ctx, intent)
}

func (s *IntentService) cancelLocked(ctx context.Context, intent *PaymentIntent) (*PaymentIntent, error) {
	var tokens map[string]string
	_ = json.Unmarshal([]byte(intent.GuardTokensJSON), &tokens)
	if err := s.chain.Release(ctx, s.chain.Restore(tokens)); err != nil {
		return nil, err
	}
	if err := s.reservations.Release(ctx, intent.ID); err != nil {
		return nil, err
	}
	if err := s.transition(intent, IntentCancelled); err != nil {
		return nil, err
	}
	if err := s.ledger.UpdateStatus(intent.LedgerEntryID, StatusCancelled, "", nil); err != nil {
		return nil, err
	}
	return intent, nil
}

func (s *IntentService) transition(intent *PaymentIntent, status IntentStatus) error {
	if err := s.db.Model(&PaymentIntent{}).Where("id = ?", intent.ID).Update("status", status).Error; err != nil {
		return err
	}
	intent.Status = status
	return nil
}
