package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/irlwork/settlement-service/internal/domain/entities"
	domainerrors "github.com/irlwork/settlement-service/internal/domain/errors"
	"github.com/irlwork/settlement-service/pkg/logger"
)

type MockCircleClient struct {
	mock.Mock
}

func (m *MockCircleClient) CreateWallets(ctx context.Context, req entities.CircleWalletCreateRequest) (*entities.CircleWalletCreateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.CircleWalletCreateResponse), args.Error(1)
}

func (m *MockCircleClient) GetWalletBalances(ctx context.Context, walletID string, tokenAddress ...string) (*entities.CircleWalletBalancesResponse, error) {
	args := m.Called(ctx, walletID, tokenAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.CircleWalletBalancesResponse), args.Error(1)
}

func (m *MockCircleClient) CreateTransfer(ctx context.Context, req entities.CircleTransferRequest) (*entities.CircleTransferResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.CircleTransferResponse), args.Error(1)
}

func (m *MockCircleClient) GetTransaction(ctx context.Context, transactionID string) (*entities.CircleTransaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.CircleTransaction), args.Error(1)
}

func (m *MockCircleClient) ListTransactions(ctx context.Context, walletID string) ([]entities.CircleTransaction, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.CircleTransaction), args.Error(1)
}

func newTestService(client *MockCircleClient, walletSetID string) *Service {
	return NewService(client, Config{
		WalletSetID:      walletSetID,
		Blockchain:       "BASE",
		USDCTokenAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	}, logger.New("debug", "test"))
}

func TestCreateWalletRequiresWalletSet(t *testing.T) {
	client := new(MockCircleClient)

	svc := newTestService(client, "")
	wallet, err := svc.CreateWallet(context.Background())

	assert.Nil(t, wallet)
	assert.True(t, domainerrors.IsConfiguration(err))
	client.AssertNotCalled(t, "CreateWallets", mock.Anything, mock.Anything)
}

func TestCreateWalletTranslatesResponse(t *testing.T) {
	client := new(MockCircleClient)

	client.On("CreateWallets", mock.Anything, mock.MatchedBy(func(req entities.CircleWalletCreateRequest) bool {
		return req.WalletSetID == "ws-1" &&
			req.Count == 1 &&
			req.IdempotencyKey != "" &&
			len(req.Blockchains) == 1 && req.Blockchains[0] == "BASE"
	})).Return(&entities.CircleWalletCreateResponse{
		Wallets: []entities.CircleWalletData{
			{ID: "wallet-1", Address: "0xdeadbeef", Blockchain: "BASE"},
		},
	}, nil)

	svc := newTestService(client, "ws-1")
	wallet, err := svc.CreateWallet(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, "wallet-1", wallet.WalletID)
	assert.Equal(t, "0xdeadbeef", wallet.Address)
	assert.Equal(t, "BASE", wallet.Blockchain)
}

func TestCreateWalletEmptyResponseIsProviderError(t *testing.T) {
	client := new(MockCircleClient)

	client.On("CreateWallets", mock.Anything, mock.Anything).Return(&entities.CircleWalletCreateResponse{}, nil)

	svc := newTestService(client, "ws-1")
	wallet, err := svc.CreateWallet(context.Background())

	assert.Nil(t, wallet)
	assert.True(t, domainerrors.IsProvider(err))
}

func TestGetBalanceParsesUSDC(t *testing.T) {
	client := new(MockCircleClient)

	client.On("GetWalletBalances", mock.Anything, "wallet-1", mock.Anything).Return(&entities.CircleWalletBalancesResponse{
		TokenBalances: []entities.CircleTokenBalance{
			{Token: entities.CircleTokenInfo{Symbol: "ETH"}, Amount: "0.5"},
			{Token: entities.CircleTokenInfo{Symbol: "USDC"}, Amount: "123.456789"},
		},
	}, nil)

	svc := newTestService(client, "ws-1")
	balance, err := svc.GetBalance(context.Background(), "wallet-1")

	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("123.456789")))
}

func TestGetBalanceAbsentTokenIsZero(t *testing.T) {
	client := new(MockCircleClient)

	client.On("GetWalletBalances", mock.Anything, "wallet-1", mock.Anything).Return(&entities.CircleWalletBalancesResponse{}, nil)

	svc := newTestService(client, "ws-1")
	balance, err := svc.GetBalance(context.Background(), "wallet-1")

	assert.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestGetBalanceWrapsProviderFailure(t *testing.T) {
	client := new(MockCircleClient)

	client.On("GetWalletBalances", mock.Anything, "wallet-1", mock.Anything).Return(nil, errors.New("502 bad gateway"))

	svc := newTestService(client, "ws-1")
	_, err := svc.GetBalance(context.Background(), "wallet-1")

	assert.True(t, domainerrors.IsProvider(err))
}

func TestTransferRequiresIdempotencyKey(t *testing.T) {
	client := new(MockCircleClient)

	svc := newTestService(client, "ws-1")
	receipt, err := svc.Transfer(context.Background(), entities.TransferRequest{
		FromWalletID: "wallet-1",
		ToAddress:    "0xdest",
		Amount:       decimal.RequireFromString("10"),
	})

	assert.Nil(t, receipt)
	assert.True(t, domainerrors.IsInvalidInput(err))
	client.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything)
}

func TestTransferPinsTokenAndFeeLevel(t *testing.T) {
	client := new(MockCircleClient)

	client.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(req entities.CircleTransferRequest) bool {
		return req.IdempotencyKey == "idem-1" &&
			req.WalletID == "wallet-1" &&
			req.TokenAddress == "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913" &&
			req.FeeLevel == "MEDIUM" &&
			len(req.Amounts) == 1 && req.Amounts[0] == "25.500000"
	})).Return(&entities.CircleTransferResponse{
		ID:    "tx-1",
		State: "INITIATED",
	}, nil)

	svc := newTestService(client, "ws-1")
	receipt, err := svc.Transfer(context.Background(), entities.TransferRequest{
		FromWalletID:   "wallet-1",
		ToAddress:      "0xdest",
		Amount:         decimal.RequireFromString("25.5"),
		IdempotencyKey: "idem-1",
	})

	assert.NoError(t, err)
	assert.Equal(t, "tx-1", receipt.TransactionID)
	assert.Equal(t, entities.TxStateInitiated, receipt.State)
	assert.Nil(t, receipt.TxHash)
}

func TestGetTransactionTranslatesStates(t *testing.T) {
	client := new(MockCircleClient)

	hash := "0xmined"
	client.On("GetTransaction", mock.Anything, "tx-1").Return(&entities.CircleTransaction{
		ID:     "tx-1",
		State:  "COMPLETE",
		TxHash: hash,
	}, nil)

	svc := newTestService(client, "ws-1")
	tx, err := svc.GetTransaction(context.Background(), "tx-1")

	assert.NoError(t, err)
	assert.Equal(t, entities.TxStateComplete, tx.State)
	assert.True(t, tx.State.IsSuccessful())
	assert.NotNil(t, tx.TxHash)
	assert.Equal(t, hash, *tx.TxHash)
}

func TestListTransactionsWrapsProviderFailure(t *testing.T) {
	client := new(MockCircleClient)

	client.On("ListTransactions", mock.Anything, "wallet-1").Return(nil, errors.New("timeout"))

	svc := newTestService(client, "ws-1")
	_, err := svc.ListTransactions(context.Background(), "wallet-1")

	assert.True(t, domainerrors.IsProvider(err))
}
