package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Internal contract for the custodial wallet provider. Provider API
// schemas are translated into these types at the gateway boundary;
// nothing outside the gateway sees raw provider responses.

// TransactionState is the normalized state of a provider transaction
type TransactionState string

const (
	TxStateInitiated TransactionState = "INITIATED"
	TxStateQueued    TransactionState = "QUEUED"
	TxStateSent      TransactionState = "SENT"
	TxStateConfirmed TransactionState = "CONFIRMED"
	TxStateComplete  TransactionState = "COMPLETE"
	TxStateFailed    TransactionState = "FAILED"
	TxStateCancelled TransactionState = "CANCELLED"
	TxStateDenied    TransactionState = "DENIED"
)

// IsSuccessful reports whether the transaction settled on-chain
func (s TransactionState) IsSuccessful() bool {
	return s == TxStateComplete || s == TxStateConfirmed
}

// IsFailed reports whether the transaction will never settle
func (s TransactionState) IsFailed() bool {
	return s == TxStateFailed || s == TxStateCancelled || s == TxStateDenied
}

// IsTerminal reports whether the state can no longer change
func (s TransactionState) IsTerminal() bool {
	return s.IsSuccessful() || s.IsFailed()
}

// ProvisionedWallet is a newly created custodial wallet
type ProvisionedWallet struct {
	WalletID   string `json:"wallet_id"`
	Address    string `json:"address"`
	Blockchain string `json:"blockchain"`
}

// TransferRequest asks the gateway to move USDC out of a custodial wallet.
// IdempotencyKey is mandatory so a retried submission cannot double-send.
type TransferRequest struct {
	FromWalletID   string          `json:"from_wallet_id"`
	ToAddress      string          `json:"to_address"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
	Reference      string          `json:"reference,omitempty"`
}

// Validate performs validation on the transfer request
func (r *TransferRequest) Validate() error {
	if r.FromWalletID == "" {
		return fmt.Errorf("source wallet ID is required")
	}
	if r.ToAddress == "" {
		return fmt.Errorf("destination address is required")
	}
	if r.Amount.IsZero() || r.Amount.IsNegative() {
		return fmt.Errorf("transfer amount must be positive")
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	return nil
}

// TransferReceipt is the gateway's answer to a submitted transfer.
// TxHash stays nil until the transaction is mined.
type TransferReceipt struct {
	TransactionID string           `json:"transaction_id"`
	TxHash        *string          `json:"tx_hash,omitempty"`
	State         TransactionState `json:"state"`
}

// ProviderTransaction is a provider transaction in the internal contract
type ProviderTransaction struct {
	ID               string           `json:"id"`
	State            TransactionState `json:"state"`
	TxHash           *string          `json:"tx_hash,omitempty"`
	Blockchain       string           `json:"blockchain,omitempty"`
	Amounts          []string         `json:"amounts,omitempty"`
	CreateDate       time.Time        `json:"create_date"`
	FirstConfirmDate *time.Time       `json:"first_confirm_date,omitempty"`
}

// Age returns how long ago the provider created the transaction
func (t *ProviderTransaction) Age(now time.Time) time.Duration {
	if t.CreateDate.IsZero() {
		return 0
	}
	return now.Sub(t.CreateDate)
}
