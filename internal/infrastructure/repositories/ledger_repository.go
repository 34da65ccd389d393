package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/irlwork/settlement-service/internal/domain/entities"
	domainerrors "github.com/irlwork/settlement-service/internal/domain/errors"
)

// LedgerRepository provides append and audit access to the ledger
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create appends a ledger entry
func (r *LedgerRepository) Create(ctx context.Context, entry *entities.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validate ledger entry: %w", err)
	}

	query := `
		INSERT INTO ledger_entries (
			id, user_id, entry_type, amount, balance_after,
			external_tx_ref, description, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.EntryType,
		entry.Amount,
		entry.BalanceAfter,
		entry.ExternalTxRef,
		entry.Description,
		entry.CreatedAt,
	)

	if err != nil {
		return domainerrors.StoreError("create ledger entry", err)
	}

	return nil
}

// ListByUser returns a user's ledger entries, newest first
func (r *LedgerRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]entities.LedgerEntry, error) {
	query := `
		SELECT id, user_id, entry_type, amount, balance_after,
			   external_tx_ref, description, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var entries []entities.LedgerEntry
	err := r.db.SelectContext(ctx, &entries, query, userID, limit)
	if err != nil {
		return nil, domainerrors.StoreError("list ledger entries", err)
	}

	return entries, nil
}

// SumSignedAmounts returns the signed sum of a user's ledger entries
func (r *LedgerRepository) SumSignedAmounts(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = $1
	`

	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, query, userID)
	if err != nil {
		return decimal.Zero, domainerrors.StoreError("sum ledger amounts", err)
	}

	return total, nil
}

// ListImbalances returns users whose stored available balance does not
// equal the signed sum of their ledger entries
func (r *LedgerRepository) ListImbalances(ctx context.Context) ([]entities.LedgerImbalance, error) {
	query := `
		SELECT u.id AS user_id,
			   u.available_balance,
			   COALESCE(SUM(l.amount), 0) AS ledger_total
		FROM users u
		LEFT JOIN ledger_entries l ON l.user_id = u.id
		GROUP BY u.id, u.available_balance
		HAVING u.available_balance <> COALESCE(SUM(l.amount), 0)
		ORDER BY u.id ASC
	`

	var imbalances []entities.LedgerImbalance
	err := r.db.SelectContext(ctx, &imbalances, query)
	if err != nil {
		return nil, domainerrors.StoreError("list ledger imbalances", err)
	}

	return imbalances, nil
}
