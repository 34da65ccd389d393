package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositStatus represents the status of a deposit
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusConfirmed DepositStatus = "confirmed"
	DepositStatusFailed    DepositStatus = "failed"
)

// ValidDepositStatuses contains all valid deposit statuses
var ValidDepositStatuses = map[DepositStatus]bool{
	DepositStatusPending:   true,
	DepositStatusConfirmed: true,
	DepositStatusFailed:    true,
}

// ValidDepositTransitions defines allowed status transitions
var ValidDepositTransitions = map[DepositStatus][]DepositStatus{
	DepositStatusPending:   {DepositStatusConfirmed, DepositStatusFailed},
	DepositStatusConfirmed: {}, // Terminal state
	DepositStatusFailed:    {}, // Terminal state
}

// IsValid checks if the status is a valid deposit status
func (s DepositStatus) IsValid() bool {
	return ValidDepositStatuses[s]
}

// CanTransitionTo checks if transition to new status is allowed
func (s DepositStatus) CanTransitionTo(newStatus DepositStatus) bool {
	allowed, exists := ValidDepositTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s DepositStatus) IsTerminal() bool {
	return s == DepositStatusConfirmed || s == DepositStatusFailed
}

// IsPending returns true if deposit is still pending
func (s DepositStatus) IsPending() bool {
	return s == DepositStatusPending
}

// ValidateTransition validates and returns error if transition is invalid
func (s DepositStatus) ValidateTransition(newStatus DepositStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid deposit status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}

// Deposit represents a USDC deposit awaiting on-chain settlement
type Deposit struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       uuid.UUID       `json:"user_id" db:"user_id"`
	ExternalTxID string          `json:"external_tx_id" db:"external_tx_id"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Status       DepositStatus   `json:"status" db:"status"`
	TxHash       *string         `json:"tx_hash,omitempty" db:"tx_hash"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty" db:"confirmed_at"`
}

// Validate performs validation on the deposit
func (d *Deposit) Validate() error {
	if d.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if d.ExternalTxID == "" {
		return fmt.Errorf("external transaction ID is required")
	}
	if d.Amount.IsZero() || d.Amount.IsNegative() {
		return fmt.Errorf("deposit amount must be positive")
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("invalid deposit status: %s", d.Status)
	}
	return nil
}

// Age returns how long the deposit has existed as of now
func (d *Deposit) Age(now time.Time) time.Duration {
	return now.Sub(d.CreatedAt)
}

// IsStale reports whether a still-pending deposit has exceeded the
// staleness threshold
func (d *Deposit) IsStale(now time.Time, threshold time.Duration) bool {
	return d.Status.IsPending() && d.Age(now) > threshold
}
