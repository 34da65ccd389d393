package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/irlwork/settlement-service/internal/domain/entities"
	domainerrors "github.com/irlwork/settlement-service/internal/domain/errors"
	"github.com/irlwork/settlement-service/internal/infrastructure/database"
)

// DepositRepository implements deposit persistence on Postgres
type DepositRepository struct {
	db *sqlx.DB
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(db *sqlx.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// Create creates a new deposit
func (r *DepositRepository) Create(ctx context.Context, deposit *entities.Deposit) error {
	query := `
		INSERT INTO deposits (
			id, user_id, external_tx_id, amount, status, tx_hash, created_at, confirmed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		deposit.ID,
		deposit.UserID,
		deposit.ExternalTxID,
		deposit.Amount,
		deposit.Status,
		deposit.TxHash,
		deposit.CreatedAt,
		deposit.ConfirmedAt,
	)

	if err != nil {
		return domainerrors.StoreError("create deposit", err)
	}

	return nil
}

// GetByID retrieves a deposit by ID
func (r *DepositRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Deposit, error) {
	query := `
		SELECT id, user_id, external_tx_id, amount, status, tx_hash, created_at, confirmed_at
		FROM deposits
		WHERE id = $1
	`

	var deposit entities.Deposit
	err := r.db.GetContext(ctx, &deposit, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("deposit")
		}
		return nil, domainerrors.StoreError("get deposit", err)
	}

	return &deposit, nil
}

// GetByExternalTxID retrieves a deposit by its provider transaction ID
func (r *DepositRepository) GetByExternalTxID(ctx context.Context, txID string) (*entities.Deposit, error) {
	query := `
		SELECT id, user_id, external_tx_id, amount, status, tx_hash, created_at, confirmed_at
		FROM deposits
		WHERE external_tx_id = $1
	`

	var deposit entities.Deposit
	err := r.db.GetContext(ctx, &deposit, query, txID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("deposit")
		}
		return nil, domainerrors.StoreError("get deposit", err)
	}

	return &deposit, nil
}

// ListPending returns all deposits still awaiting on-chain confirmation,
// oldest first
func (r *DepositRepository) ListPending(ctx context.Context) ([]entities.Deposit, error) {
	query := `
		SELECT id, user_id, external_tx_id, amount, status, tx_hash, created_at, confirmed_at
		FROM deposits
		WHERE status = 'pending'
		ORDER BY created_at ASC
	`

	var deposits []entities.Deposit
	err := r.db.SelectContext(ctx, &deposits, query)
	if err != nil {
		return nil, domainerrors.StoreError("list pending deposits", err)
	}

	return deposits, nil
}

// ConfirmAndCredit confirms a pending deposit and credits the user's
// available balance in a single transaction, recording a matching ledger
// entry. The status flip is conditional on the row still being pending, so
// concurrent runs settle each deposit at most once: the loser of the race
// gets (false, nil) and must not treat the deposit as newly credited. Any
// error rolls the whole transaction back and leaves the deposit pending.
func (r *DepositRepository) ConfirmAndCredit(ctx context.Context, depositID uuid.UUID, txHash string) (bool, error) {
	credited := false

	err := database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		confirmQuery := `
			UPDATE deposits
			SET status = 'confirmed',
				tx_hash = COALESCE(NULLIF($2, ''), tx_hash),
				confirmed_at = $3
			WHERE id = $1 AND status = 'pending'
			RETURNING user_id, amount
		`

		var row struct {
			UserID uuid.UUID       `db:"user_id"`
			Amount decimal.Decimal `db:"amount"`
		}
		err := tx.GetContext(ctx, &row, confirmQuery, depositID, txHash, time.Now().UTC())
		if err != nil {
			if err == sql.ErrNoRows {
				// Already settled by an earlier run, nothing to credit
				return nil
			}
			return fmt.Errorf("confirm deposit: %w", err)
		}

		creditQuery := `
			UPDATE users
			SET available_balance = available_balance + $2,
				updated_at = NOW()
			WHERE id = $1
			RETURNING available_balance
		`

		var balanceAfter decimal.Decimal
		err = tx.GetContext(ctx, &balanceAfter, creditQuery, row.UserID, row.Amount)
		if err != nil {
			return fmt.Errorf("credit user balance: %w", err)
		}

		ledgerQuery := `
			INSERT INTO ledger_entries (
				id, user_id, entry_type, amount, balance_after, external_tx_ref, created_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7
			)
		`

		ref := depositID.String()
		_, err = tx.ExecContext(ctx, ledgerQuery,
			uuid.New(),
			row.UserID,
			entities.LedgerEntryDeposit,
			row.Amount,
			balanceAfter,
			ref,
			time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("record ledger entry: %w", err)
		}

		credited = true
		return nil
	})

	if err != nil {
		return false, domainerrors.StoreError("settle deposit", err)
	}

	return credited, nil
}

// MarkFailed transitions a pending deposit to failed. Returns false if the
// deposit was no longer pending.
func (r *DepositRepository) MarkFailed(ctx context.Context, depositID uuid.UUID) (bool, error) {
	query := `
		UPDATE deposits
		SET status = 'failed'
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, depositID)
	if err != nil {
		return false, domainerrors.StoreError("mark deposit failed", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, domainerrors.StoreError("mark deposit failed", err)
	}

	return rows > 0, nil
}
