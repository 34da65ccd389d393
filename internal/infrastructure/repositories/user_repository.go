package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/irlwork/settlement-service/internal/domain/entities"
	domainerrors "github.com/irlwork/settlement-service/internal/domain/errors"
)

// UserRepository provides balance and wallet lookups over the users table
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetBalance retrieves a single user's balance snapshot
func (r *UserRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*entities.UserBalance, error) {
	query := `
		SELECT id AS user_id, circle_wallet_id, wallet_address,
			   available_balance, escrow_balance, updated_at
		FROM users
		WHERE id = $1
	`

	var balance entities.UserBalance
	err := r.db.GetContext(ctx, &balance, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("user")
		}
		return nil, domainerrors.StoreError("get user balance", err)
	}

	return &balance, nil
}

// ListWalletHolders returns all users that have a provisioned custodial
// wallet, ordered by user id for stable reconciliation runs
func (r *UserRepository) ListWalletHolders(ctx context.Context) ([]entities.UserBalance, error) {
	query := `
		SELECT id AS user_id, circle_wallet_id, wallet_address,
			   available_balance, escrow_balance, updated_at
		FROM users
		WHERE circle_wallet_id IS NOT NULL AND wallet_address IS NOT NULL
		ORDER BY id ASC
	`

	var holders []entities.UserBalance
	err := r.db.SelectContext(ctx, &holders, query)
	if err != nil {
		return nil, domainerrors.StoreError("list wallet holders", err)
	}

	return holders, nil
}

// ListWalletless returns users that hold a positive internal balance but
// have no wallet address of their own. Their funds live in the shared
// escrow wallet.
func (r *UserRepository) ListWalletless(ctx context.Context) ([]entities.UserBalance, error) {
	query := `
		SELECT id AS user_id, circle_wallet_id, wallet_address,
			   available_balance, escrow_balance, updated_at
		FROM users
		WHERE wallet_address IS NULL AND available_balance > 0
		ORDER BY id ASC
	`

	var users []entities.UserBalance
	err := r.db.SelectContext(ctx, &users, query)
	if err != nil {
		return nil, domainerrors.StoreError("list walletless users", err)
	}

	return users, nil
}

// SumEscrowBalances returns the total escrow balance held across all users
func (r *UserRepository) SumEscrowBalances(ctx context.Context) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(escrow_balance), 0)
		FROM users
	`

	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, query)
	if err != nil {
		return decimal.Zero, domainerrors.StoreError("sum escrow balances", err)
	}

	return total, nil
}

// SetWallet records a newly provisioned custodial wallet on a user
func (r *UserRepository) SetWallet(ctx context.Context, userID uuid.UUID, walletID, address string) error {
	query := `
		UPDATE users
		SET circle_wallet_id = $2,
			wallet_address = $3,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, userID, walletID, address)
	if err != nil {
		return domainerrors.StoreError("set user wallet", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domainerrors.StoreError("set user wallet", err)
	}
	if rows == 0 {
		return domainerrors.NotFoundError("user")
	}

	return nil
}
