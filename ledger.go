package corepay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agentpay/corepay/pkg/money"
)

// LedgerEntry is the append-only audit record of one payment attempt, per
// spec.md §3/§4.2. It is immutable on creation except for Status and a
// bounded metadata merge; terminal statuses are write-once, mirroring the
// teacher's ledger.Entry append/update split in ledger.go.
type LedgerEntry struct {
	ID            string `gorm:"primaryKey"`
	WalletID      string `gorm:"index"`
	WalletSetID   string `gorm:"index"`
	Recipient     string
	Amount        money.Amount
	Status        PaymentStatus `gorm:"index"`
	Transport     TransportMethod
	ProviderTxID  string
	OnChainTxHash string
	GuardsPassed  string // JSON array of guard names
	Purpose       string
	MetadataJSON  string `gorm:"column:metadata_json"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName names the ledger table to match the goose migration, mirroring
// the teacher's Entry.TableName() convention in ledger.go.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerFilter narrows a ledger query. Zero-valued fields are not applied.
type LedgerFilter struct {
	WalletID    string
	WalletSetID string
	Status      PaymentStatus
	Recipient   string
	Since       time.Time
	Until       time.Time
	Limit       int
}

// Ledger is the audit ledger over a gorm-backed store (postgres or
// sqlite), directly grounded on the teacher's WalletLedger/ledger.go
// pattern, generalized from accounting entries to full payment-attempt
// records.
type Ledger struct {
	db *gorm.DB
}

// NewLedger wraps db. The caller is expected to have already migrated the
// LedgerEntry table (see database.go).
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Record inserts a new pending ledger entry, per spec.md §4.2's invariant
// that the entry exists before any side effect on external systems.
func (l *Ledger) Record(req PaymentRequest) (*LedgerEntry, error) {
	metaJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, err
	}
	entry := &LedgerEntry{
		ID:           uuid.NewString(),
		WalletID:     req.WalletID,
		WalletSetID:  req.WalletSetID,
		Recipient:    req.Recipient,
		Amount:       req.Amount,
		Status:       StatusPending,
		Purpose:      req.Purpose,
		MetadataJSON: string(metaJSON),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := l.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateStatus moves an entry to a new status, optionally recording a
// transaction identifier and merging metadata. It refuses to move an entry
// out of a terminal status, per spec.md §3's write-once invariant.
func (l *Ledger) UpdateStatus(id string, status PaymentStatus, txHash string, metadataDelta map[string]string) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		var entry LedgerEntry
		if err := tx.First(&entry, "id = ?", id).Error; err != nil {
			return err
		}
		if entry.Status.IsTerminal() {
			return Errorf(ErrValidation, "ledger entry %s is already terminal (%s)", id, entry.Status)
		}

		updates := map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		}
		if txHash != "" {
			updates["on_chain_tx_hash"] = txHash
		}
		if len(metadataDelta) > 0 {
			merged := mergeMetadata(entry.MetadataJSON, metadataDelta)
			data, err := json.Marshal(merged)
			if err != nil {
				return err
			}
			updates["metadata_json"] = string(data)
		}
		return tx.Model(&LedgerEntry{}).Where("id = ?", id).Updates(updates).Error
	})
}

// SetGuardsPassed records which guards passed for an entry, used once the
// guard chain has reserved successfully.
func (l *Ledger) SetGuardsPassed(id string, guards []string) error {
	data, err := json.Marshal(guards)
	if err != nil {
		return err
	}
	return l.db.Model(&LedgerEntry{}).Where("id = ?", id).Update("guards_passed", string(data)).Error
}

// SetTransport records which adapter carried (or will carry) the payment.
func (l *Ledger) SetTransport(id string, transport TransportMethod, providerTxID string) error {
	return l.db.Model(&LedgerEntry{}).Where("id = ?", id).Updates(map[string]any{
		"transport":      transport,
		"provider_tx_id": providerTxID,
	}).Error
}

// Get fetches a single ledger entry by id.
func (l *Ledger) Get(id string) (*LedgerEntry, error) {
	var entry LedgerEntry
	if err := l.db.First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// SyncTransaction re-reads a ledger entry's current state, per spec.md
// §7's sync_transaction(id) -> LedgerEntry. The core does not perform
// automatic reconciliation against the custody provider (spec.md §9): a
// failed cross-chain leg already carries enough metadata, such as the
// attestation URL, for an operator to reconcile manually, and this
// accessor exists only to surface whatever the ledger currently holds
// under that id.
func (l *Ledger) SyncTransaction(id string) (*LedgerEntry, error) {
	return l.Get(id)
}

// Query returns ledger entries matching filter, capped at filter.Limit (or
// 100 if unset), most recent first.
func (l *Ledger) Query(filter LedgerFilter) ([]LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q := l.db.Model(&LedgerEntry{}).Order("created_at DESC").Limit(limit)
	if filter.WalletID != "" {
		q = q.Where("wallet_id = ?", filter.WalletID)
	}
	if filter.WalletSetID != "" {
		q = q.Where("wallet_set_id = ?", filter.WalletSetID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Recipient != "" {
		q = q.Where("recipient = ?", filter.Recipient)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}
	var entries []LedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func mergeMetadata(existingJSON string, delta map[string]string) map[string]string {
	merged := map[string]string{}
	if existingJSON != "" {
		_ = json.Unmarshal([]byte(existingJSON), &merged)
	}
	for k, v := range delta {
		merged[k] = v
	}
	return merged
}
