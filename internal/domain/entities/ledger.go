package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntryType categorizes balance-affecting events
type LedgerEntryType string

const (
	LedgerEntryDeposit    LedgerEntryType = "deposit"
	LedgerEntryWithdrawal LedgerEntryType = "withdrawal"
	LedgerEntryPayment    LedgerEntryType = "payment"
	LedgerEntryPayout     LedgerEntryType = "payout"
	LedgerEntryRefund     LedgerEntryType = "refund"
)

// ValidLedgerEntryTypes contains all valid entry types
var ValidLedgerEntryTypes = map[LedgerEntryType]bool{
	LedgerEntryDeposit:    true,
	LedgerEntryWithdrawal: true,
	LedgerEntryPayment:    true,
	LedgerEntryPayout:     true,
	LedgerEntryRefund:     true,
}

// IsValid checks if the entry type is valid
func (t LedgerEntryType) IsValid() bool {
	return ValidLedgerEntryTypes[t]
}

// LedgerEntry is an append-only record of a single balance change.
// Amount is signed: credits positive, debits negative.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	EntryType     LedgerEntryType `json:"entry_type" db:"entry_type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	ExternalTxRef *string         `json:"external_tx_ref,omitempty" db:"external_tx_ref"`
	Description   *string         `json:"description,omitempty" db:"description"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Validate performs validation on the ledger entry
func (e *LedgerEntry) Validate() error {
	if e.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if !e.EntryType.IsValid() {
		return fmt.Errorf("invalid ledger entry type: %s", e.EntryType)
	}
	if e.Amount.IsZero() {
		return fmt.Errorf("ledger entry amount cannot be zero")
	}
	return nil
}

// UserBalance is the per-user balance row used by settlement and
// reconciliation
type UserBalance struct {
	UserID           uuid.UUID       `json:"user_id" db:"user_id"`
	CircleWalletID   *string         `json:"circle_wallet_id,omitempty" db:"circle_wallet_id"`
	WalletAddress    *string         `json:"wallet_address,omitempty" db:"wallet_address"`
	AvailableBalance decimal.Decimal `json:"available_balance" db:"available_balance"`
	EscrowBalance    decimal.Decimal `json:"escrow_balance" db:"escrow_balance"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Total returns available plus escrowed funds
func (b *UserBalance) Total() decimal.Decimal {
	return b.AvailableBalance.Add(b.EscrowBalance)
}

// HasWallet reports whether the user has a provisioned custodial wallet
func (b *UserBalance) HasWallet() bool {
	return b.CircleWalletID != nil && *b.CircleWalletID != "" &&
		b.WalletAddress != nil && *b.WalletAddress != ""
}

// LedgerImbalance is a user whose stored available balance disagrees with
// the signed sum of their ledger entries
type LedgerImbalance struct {
	UserID           uuid.UUID       `json:"user_id" db:"user_id"`
	AvailableBalance decimal.Decimal `json:"available_balance" db:"available_balance"`
	LedgerTotal      decimal.Decimal `json:"ledger_total" db:"ledger_total"`
}

// Difference returns ledger total minus the stored balance
func (i *LedgerImbalance) Difference() decimal.Decimal {
	return i.LedgerTotal.Sub(i.AvailableBalance)
}
