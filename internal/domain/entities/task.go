package entities

import "github.com/google/uuid"

// TaskStatus represents the lifecycle state of a marketplace task.
// Task state is owned by another service; settlement only reads it.
type TaskStatus string

const (
	TaskStatusOpen          TaskStatus = "open"
	TaskStatusAssigned      TaskStatus = "assigned"
	TaskStatusInProgress    TaskStatus = "in_progress"
	TaskStatusPendingReview TaskStatus = "pending_review"
	TaskStatusCompleted     TaskStatus = "completed"
	TaskStatusCancelled     TaskStatus = "cancelled"
)

// ActiveSettlementStatuses are task states whose settlement transactions
// the poller watches
var ActiveSettlementStatuses = []TaskStatus{
	TaskStatusAssigned,
	TaskStatusInProgress,
	TaskStatusPendingReview,
	TaskStatusCompleted,
}

// HasActiveSettlement reports whether the status is watched by the poller
func (s TaskStatus) HasActiveSettlement() bool {
	for _, status := range ActiveSettlementStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// SettlementRefKind names the role of a task-linked transaction
type SettlementRefKind string

const (
	SettlementRefEscrow SettlementRefKind = "escrow"
	SettlementRefPayout SettlementRefKind = "payout"
	SettlementRefRefund SettlementRefKind = "refund"
)

// SettlementRef is one provider transaction attached to a task
type SettlementRef struct {
	Kind          SettlementRefKind
	TransactionID string
}

// TaskSettlement is the read-only settlement view of a task
type TaskSettlement struct {
	TaskID     uuid.UUID  `json:"task_id" db:"id"`
	Status     TaskStatus `json:"status" db:"status"`
	EscrowTxID *string    `json:"escrow_tx_id,omitempty" db:"escrow_tx_id"`
	PayoutTxID *string    `json:"payout_tx_id,omitempty" db:"payout_tx_id"`
	RefundTxID *string    `json:"refund_tx_id,omitempty" db:"refund_tx_id"`
}

// SettlementRefs returns the non-empty transaction references on the task
func (t *TaskSettlement) SettlementRefs() []SettlementRef {
	var refs []SettlementRef
	if t.EscrowTxID != nil && *t.EscrowTxID != "" {
		refs = append(refs, SettlementRef{Kind: SettlementRefEscrow, TransactionID: *t.EscrowTxID})
	}
	if t.PayoutTxID != nil && *t.PayoutTxID != "" {
		refs = append(refs, SettlementRef{Kind: SettlementRefPayout, TransactionID: *t.PayoutTxID})
	}
	if t.RefundTxID != nil && *t.RefundTxID != "" {
		refs = append(refs, SettlementRef{Kind: SettlementRefRefund, TransactionID: *t.RefundTxID})
	}
	return refs
}
