package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationCheck identifies which audit produced a discrepancy
type ReconciliationCheck string

const (
	ReconciliationCheckWallet ReconciliationCheck = "wallet_balance"
	ReconciliationCheckEscrow ReconciliationCheck = "escrow_balance"
	ReconciliationCheckLedger ReconciliationCheck = "ledger_consistency"
)

// Discrepancy records one balance mismatch found during a reconciliation
// run. Expected is the internal view, Actual the on-chain (or ledger) one.
type Discrepancy struct {
	Check      ReconciliationCheck `json:"check"`
	UserID     *uuid.UUID          `json:"user_id,omitempty"`
	WalletID   string              `json:"wallet_id,omitempty"`
	Expected   decimal.Decimal     `json:"expected"`
	Actual     decimal.Decimal     `json:"actual"`
	Difference decimal.Decimal     `json:"difference"`
}

// ReconciliationReport summarizes one reconciliation run
type ReconciliationReport struct {
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	WalletsChecked  int             `json:"wallets_checked"`
	WalletsSkipped  int             `json:"wallets_skipped"`
	WalletlessUsers int             `json:"walletless_users"`
	WalletlessTotal decimal.Decimal `json:"walletless_total"`
	EscrowChecked   bool            `json:"escrow_checked"`
	Discrepancies   []Discrepancy   `json:"discrepancies"`
}

// Clean reports whether the run found no discrepancies
func (r *ReconciliationReport) Clean() bool {
	return len(r.Discrepancies) == 0
}
