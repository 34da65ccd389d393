package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/irlwork/settlement-service/internal/domain/entities"
	domainerrors "github.com/irlwork/settlement-service/internal/domain/errors"
)

// TaskRepository provides read-only access to task settlement state
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// ListActiveSettlements returns tasks in a status with settlement activity,
// together with their escrow, payout and refund transaction references
func (r *TaskRepository) ListActiveSettlements(ctx context.Context) ([]entities.TaskSettlement, error) {
	statuses := make([]string, 0, len(entities.ActiveSettlementStatuses))
	for _, s := range entities.ActiveSettlementStatuses {
		statuses = append(statuses, string(s))
	}

	query := `
		SELECT id, status, escrow_tx_id, payout_tx_id, refund_tx_id
		FROM tasks
		WHERE status = ANY($1)
		ORDER BY created_at ASC
	`

	var tasks []entities.TaskSettlement
	err := r.db.SelectContext(ctx, &tasks, query, pq.Array(statuses))
	if err != nil {
		return nil, domainerrors.StoreError("list active task settlements", err)
	}

	return tasks, nil
}
