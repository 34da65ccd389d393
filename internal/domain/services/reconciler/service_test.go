package reconciler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/irlwork/settlement-service/internal/domain/entities"
	"github.com/irlwork/settlement-service/pkg/logger"
)

type MockWalletGateway struct {
	mock.Mock
}

func (m *MockWalletGateway) GetBalance(ctx context.Context, walletID string) (decimal.Decimal, error) {
	args := m.Called(ctx, walletID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) ListWalletHolders(ctx context.Context) ([]entities.UserBalance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.UserBalance), args.Error(1)
}

func (m *MockUserRepository) ListWalletless(ctx context.Context) ([]entities.UserBalance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.UserBalance), args.Error(1)
}

func (m *MockUserRepository) SumEscrowBalances(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) ListImbalances(ctx context.Context) ([]entities.LedgerImbalance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.LedgerImbalance), args.Error(1)
}

func holder(walletID string, available, escrow string) entities.UserBalance {
	id := walletID
	addr := "0x" + walletID
	return entities.UserBalance{
		UserID:           uuid.New(),
		CircleWalletID:   &id,
		WalletAddress:    &addr,
		AvailableBalance: decimal.RequireFromString(available),
		EscrowBalance:    decimal.RequireFromString(escrow),
	}
}

func walletless(available string) entities.UserBalance {
	return entities.UserBalance{
		UserID:           uuid.New(),
		AvailableBalance: decimal.RequireFromString(available),
		EscrowBalance:    decimal.Zero,
	}
}

func newTestService(gw *MockWalletGateway, users *MockUserRepository, ledger *MockLedgerRepository, escrowWalletID string) *Service {
	return NewService(gw, users, ledger, Config{
		Tolerance:      decimal.RequireFromString("0.01"),
		EscrowWalletID: escrowWalletID,
	}, logger.New("debug", "test"))
}

func TestRunToleranceBoundary(t *testing.T) {
	gw := new(MockWalletGateway)
	users := new(MockUserRepository)
	ledger := new(MockLedgerRepository)

	within := holder("wallet-a", "100", "0")    // on-chain 100.01, delta exactly at tolerance
	breached := holder("wallet-b", "100", "0")  // on-chain 100.02, delta above tolerance

	users.On("ListWalletHolders", mock.Anything).Return([]entities.UserBalance{within, breached}, nil)
	users.On("ListWalletless", mock.Anything).Return([]entities.UserBalance{}, nil)
	ledger.On("ListImbalances", mock.Anything).Return([]entities.LedgerImbalance{}, nil)
	gw.On("GetBalance", mock.Anything, "wallet-a").Return(decimal.RequireFromString("100.01"), nil)
	gw.On("GetBalance", mock.Anything, "wallet-b").Return(decimal.RequireFromString("100.02"), nil)

	svc := newTestService(gw, users, ledger, "")
	report, err := svc.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, report.WalletsChecked)
	assert.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, entities.ReconciliationCheckWallet, d.Check)
	assert.Equal(t, "wallet-b", d.WalletID)
	assert.True(t, d.Difference.Equal(decimal.RequireFromString("0.02")))
}

func TestRunCountsEscrowInExpectedBalance(t *testing.T) {
	gw := new(MockWalletGateway)
	users := new(MockUserRepository)
	ledger := new(MockLedgerRepository)

	// Internal view is available + escrow, so a wallet holding both is clean
	h := holder("wallet-a", "70", "30")

	users.On("ListWalletHolders", mock.Anything).Return([]entities.UserBalance{h}, nil)
	users.On("ListWalletless", mock.Anything).Return([]entities.UserBalance{}, nil)
	ledger.On("ListImbalances", mock.Anything).Return([]entities.LedgerImbalance{}, nil)
	gw.On("GetBalance", mock.Anything, "wallet-a").Return(decimal.RequireFromString("100"), nil)

	svc := newTestService(gw, users, ledger, "")
	report, err := svc.Run(context.Background())

	assert.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestRunSumsWalletlessFunds(t *testing.T) {
	gw := new(MockWalletGateway)
	users := new(MockUserRepository)
	ledger := new(MockLedgerRepository)

	users.On("ListWalletHolders", mock.Anything).Return([]entities.UserBalance{}, nil)
	users.On("ListWalletless", mock.Anything).Return([]entities.UserBalance{
		walletless("20"),
		walletless("30"),
	}, nil)
	ledger.On("ListImbalances", mock.Anything).Return([]entities.LedgerImbalance{}, nil)

	svc := newTestService(gw, users, ledger, "")
	report, err := svc.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, report.WalletlessUsers)
	assert.True(t, report.WalletlessTotal.Equal(decimal.RequireFromString("50")))
	// Walletless users are never flagged individually
	assert.True(t, report.Clean())
	gw.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)
}

func TestRunEscrowWalletCheck(t *testing.T) {
	tests := []struct {
		name        string
		onchain     string
		discrepancy bool
		difference  string
	}{
		{"within tolerance", "120.005", false, ""},
		{"breach", "121", true, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := new(MockWalletGateway)
			users := new(MockUserRepository)
			ledger := new(MockLedgerRepository)

			users.On("ListWalletHolders", mock.Anything).Return([]entities.UserBalance{}, nil)
			users.On("ListWalletless", mock.Anything).Return([]entities.UserBalance{
				walletless("20"),
			}, nil)
			users.On("SumEscrowBalances", mock.Anything).Return(decimal.RequireFromString("100"), nil)
			ledger.On("ListImbalances", mock.Anything).Return([]entities.LedgerImbalance{}, nil)
			// Expected escrow holdings: 100 escrow + 20 walletless = 120
			gw.On("GetBalance", mock.Anything, "escrow-wallet").Return(decimal.RequireFromString(tt.onchain), nil)

			svc := newTestService(gw, users, ledger, "escrow-wallet")
			report, err := svc.Run(context.Background())

			assert.NoError(t, err)
			assert.True(t, report.EscrowChecked)
			if tt.discrepancy {
				assert.Len(t, report.Discrepancies, 1)
				d := report.Discrepancies[0]
				assert.Equal(t, entities.ReconciliationCheckEscrow, d.Check)
				assert.True(t, d.Expected.Equal(decimal.RequireFromString("120")))
				assert.True(t, d.Difference.Equal(decimal.RequireFromString(tt.difference)))
			} else {
				assert.True(t, report.Clean())
			}
		})
	}
}

func TestRunLogsEscrowBreakdownWithinTolerance(t *testing.T) {
	gw := new(MockWalletGateway)
	users := new(MockUserRepository)
	ledger := new(MockLedgerRepository)

	users.On("ListWalletHolders", mock.Anything).Return([]entities.UserBalance{}, nil)
	users.On("ListWalletless", mock.Anything).Return([]entities.UserBalance{
		walletless("20"),
	}, nil)
	users.On("SumEscrowBalances", mock.Anything).Return(decimal.RequireFromString("100"), nil)
	ledger.On("ListImbalances", mock.Anything).Return([]entities.LedgerImbalance{}, nil)
	gw.On("GetBalance", mock.Anything, "escrow-wallet").Return(decimal.RequireFromString("120.005"), nil)

	core, logs := observer.New(zapcore.DebugLevel)
	svc := NewService(gw, users, ledger, Config{
		Tolerance:      decimal.RequireFromString("0.01"),
		EscrowWalletID: "escrow-wallet",
	}, logger.NewFromZap(zap.New(core)))

	report, err := svc.Run(context.Background())

	assert.NoError(t, err)
	assert.True(t, report.EscrowChecked)
	assert.True(t, report.Clean())

	// A clean escrow check still confirms the full breakdown in the log
	confirmed := logs.FilterMessage("escrow wallet reconciled").FilterLevelExact(zapcore.InfoLevel)
	assert.Equal(t, 1, confirmed.Len())
	fields := confirmed.All()[0].ContextMap()
	assert.Equal(t, "100", fields["escrow_total"])
	assert.Equal(t, "20", fields["walletless_total"])
	assert.Equal(t, "120", fields["expected"])
	assert.Equal(t, "120.005", fields["onchain"])
}

func TestRunSkipsEscrowCheckWhenUnconfigured(t *testing.T) {
	gw := new(MockWalletGateway)
	users := new(MockUserRepository)
	ledger := new(MockLedgerRepository)

	users.On("ListWalletHolders", mock.Anything).Return([]entities.UserBalance{}, nil)
	users.On("ListWalletless", mock.Anything).Return([]entities.UserBalance{}, nil)
	ledger.On("ListImbalances", mock.Anything).Return([]entities.LedgerImbalance{}, nil)

	svc := newTestService(gw, users, ledger, "")
	report, err := svc.Run(context.Background())

	assert.NoError(t, err)
	assert.False(t, report.EscrowChecked)
	users.AssertNotCalled(t, "SumEscrowBalances", mock.Anything)
}

func TestRunContinuesPastBalanceLookupFailure(t *testing.T) {
	gw := new(MockWalletGateway)
	users := new(MockUserRepository)
	ledger := new(MockLedgerRepository)

	broken := holder("wallet-a", "10", "0")
	fine := holder("wallet-b", "10", "0")

	users.On("ListWalletHolders", mock.Anything).Return([]entities.UserBalance{broken, fine}, nil)
	users.On("ListWalletless", mock.Anything).Return([]entities.UserBalance{}, nil)
	ledger.On("ListImbalances", mock.Anything).Return([]entities.LedgerImbalance{}, nil)
	gw.On("GetBalance", mock.Anything, "wallet-a").Return(decimal.Zero, errors.New("provider unavailable"))
	gw.On("GetBalance", mock.Anything, "wallet-b").Return(decimal.RequireFromString("10"), nil)

	svc := newTestService(gw, users, ledger, "")
	report, err := svc.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, report.WalletsChecked)
	assert.Equal(t, 1, report.WalletsSkipped)
	assert.True(t, report.Clean())
}

func TestRunAbortsWhenHolderListingFails(t *testing.T) {
	gw := new(MockWalletGateway)
	users := new(MockUserRepository)
	ledger := new(MockLedgerRepository)

	users.On("ListWalletHolders", mock.Anything).Return(nil, errors.New("database down"))

	svc := newTestService(gw, users, ledger, "")
	report, err := svc.Run(context.Background())

	assert.Error(t, err)
	assert.Nil(t, report)
}

func TestRunReportsLedgerImbalances(t *testing.T) {
	gw := new(MockWalletGateway)
	users := new(MockUserRepository)
	ledger := new(MockLedgerRepository)

	userID := uuid.New()
	users.On("ListWalletHolders", mock.Anything).Return([]entities.UserBalance{}, nil)
	users.On("ListWalletless", mock.Anything).Return([]entities.UserBalance{}, nil)
	ledger.On("ListImbalances", mock.Anything).Return([]entities.LedgerImbalance{
		{
			UserID:           userID,
			AvailableBalance: decimal.RequireFromString("100"),
			LedgerTotal:      decimal.RequireFromString("90"),
		},
	}, nil)

	svc := newTestService(gw, users, ledger, "")
	report, err := svc.Run(context.Background())

	assert.NoError(t, err)
	assert.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, entities.ReconciliationCheckLedger, d.Check)
	assert.Equal(t, userID, *d.UserID)
	assert.True(t, d.Difference.Equal(decimal.RequireFromString("-10")))
}
