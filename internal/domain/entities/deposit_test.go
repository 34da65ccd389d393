package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDepositStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    DepositStatus
		to      DepositStatus
		allowed bool
	}{
		{"pending to confirmed", DepositStatusPending, DepositStatusConfirmed, true},
		{"pending to failed", DepositStatusPending, DepositStatusFailed, true},
		{"confirmed to failed", DepositStatusConfirmed, DepositStatusFailed, false},
		{"confirmed to pending", DepositStatusConfirmed, DepositStatusPending, false},
		{"failed to confirmed", DepositStatusFailed, DepositStatusConfirmed, false},
		{"failed to pending", DepositStatusFailed, DepositStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
			err := tt.from.ValidateTransition(tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDepositStatusTerminal(t *testing.T) {
	assert.False(t, DepositStatusPending.IsTerminal())
	assert.True(t, DepositStatusConfirmed.IsTerminal())
	assert.True(t, DepositStatusFailed.IsTerminal())
}

func TestDepositValidate(t *testing.T) {
	valid := &Deposit{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		ExternalTxID: "tx-abc",
		Amount:       decimal.RequireFromString("25.50"),
		Status:       DepositStatusPending,
		CreatedAt:    time.Now(),
	}
	assert.NoError(t, valid.Validate())

	zeroAmount := *valid
	zeroAmount.Amount = decimal.Zero
	assert.Error(t, zeroAmount.Validate())

	negativeAmount := *valid
	negativeAmount.Amount = decimal.RequireFromString("-1")
	assert.Error(t, negativeAmount.Validate())

	noExternalTx := *valid
	noExternalTx.ExternalTxID = ""
	assert.Error(t, noExternalTx.Validate())
}

func TestDepositIsStale(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	threshold := 30 * time.Minute

	fresh := &Deposit{CreatedAt: now.Add(-29 * time.Minute), Status: DepositStatusPending}
	assert.False(t, fresh.IsStale(now, threshold))

	stale := &Deposit{CreatedAt: now.Add(-31 * time.Minute), Status: DepositStatusPending}
	assert.True(t, stale.IsStale(now, threshold))

	// Settled deposits are never stale regardless of age
	settled := &Deposit{CreatedAt: now.Add(-2 * time.Hour), Status: DepositStatusConfirmed}
	assert.False(t, settled.IsStale(now, threshold))
}

func TestTransactionStateClassification(t *testing.T) {
	assert.True(t, TxStateComplete.IsSuccessful())
	assert.True(t, TxStateConfirmed.IsSuccessful())
	assert.False(t, TxStateSent.IsSuccessful())

	assert.True(t, TxStateFailed.IsFailed())
	assert.True(t, TxStateCancelled.IsFailed())
	assert.True(t, TxStateDenied.IsFailed())
	assert.False(t, TxStateQueued.IsFailed())

	assert.True(t, TxStateComplete.IsTerminal())
	assert.True(t, TxStateDenied.IsTerminal())
	assert.False(t, TxStateInitiated.IsTerminal())
	assert.False(t, TxStateQueued.IsTerminal())
	assert.False(t, TxStateSent.IsTerminal())
}
