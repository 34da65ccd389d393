package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irlwork/settlement-service/internal/domain/entities"
	domainerrors "github.com/irlwork/settlement-service/internal/domain/errors"
	"github.com/irlwork/settlement-service/pkg/logger"
	"github.com/irlwork/settlement-service/pkg/metrics"
	"github.com/irlwork/settlement-service/pkg/tracing"
)

// CircleClient is the slice of the Circle API client the gateway needs
type CircleClient interface {
	CreateWallets(ctx context.Context, req entities.CircleWalletCreateRequest) (*entities.CircleWalletCreateResponse, error)
	GetWalletBalances(ctx context.Context, walletID string, tokenAddress ...string) (*entities.CircleWalletBalancesResponse, error)
	CreateTransfer(ctx context.Context, req entities.CircleTransferRequest) (*entities.CircleTransferResponse, error)
	GetTransaction(ctx context.Context, transactionID string) (*entities.CircleTransaction, error)
	ListTransactions(ctx context.Context, walletID string) ([]entities.CircleTransaction, error)
}

// Config holds the gateway's provider settings
type Config struct {
	WalletSetID      string
	Blockchain       string
	USDCTokenAddress string
	FeeLevel         string
}

// Service translates between the internal settlement contract and the
// Circle developer-controlled wallet API. All provider schemas stop at
// this boundary.
type Service struct {
	client CircleClient
	config Config
	log    *logger.Logger
	tracer trace.Tracer
}

// NewService creates a new wallet gateway service
func NewService(client CircleClient, config Config, log *logger.Logger) *Service {
	if config.Blockchain == "" {
		config.Blockchain = "BASE"
	}
	if config.FeeLevel == "" {
		config.FeeLevel = "MEDIUM"
	}
	return &Service{
		client: client,
		config: config,
		log:    log,
		tracer: tracing.GetTracer("wallet-gateway"),
	}
}

// CreateWallet provisions a new custodial wallet in the configured wallet set
func (s *Service) CreateWallet(ctx context.Context) (*entities.ProvisionedWallet, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.create_wallet")
	defer span.End()

	if s.config.WalletSetID == "" {
		err := domainerrors.ConfigurationError("wallet set ID is not configured")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp, err := s.client.CreateWallets(ctx, entities.CircleWalletCreateRequest{
		IdempotencyKey: uuid.New().String(),
		Blockchains:    []string{s.config.Blockchain},
		Count:          1,
		AccountType:    "SCA",
		WalletSetID:    s.config.WalletSetID,
	})
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("create_wallet").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, domainerrors.ProviderError("create_wallet", err)
	}

	if len(resp.Wallets) == 0 {
		metrics.ProviderErrors.WithLabelValues("create_wallet").Inc()
		return nil, domainerrors.ProviderError("create_wallet", fmt.Errorf("provider returned no wallets"))
	}

	wallet := resp.Wallets[0]
	address := wallet.PrimaryAddress()
	if address == "" {
		return nil, domainerrors.ProviderError("create_wallet", fmt.Errorf("wallet %s has no address", wallet.ID))
	}

	span.SetAttributes(attribute.String("wallet.id", wallet.ID))
	s.log.Info("provisioned custodial wallet",
		"wallet_id", wallet.ID,
		"blockchain", s.config.Blockchain,
	)

	return &entities.ProvisionedWallet{
		WalletID:   wallet.ID,
		Address:    address,
		Blockchain: s.config.Blockchain,
	}, nil
}

// GetBalance returns a wallet's on-chain USDC balance. A wallet that has
// never held the token reports zero, not an error.
func (s *Service) GetBalance(ctx context.Context, walletID string) (decimal.Decimal, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.get_balance")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", walletID))

	if walletID == "" {
		return decimal.Zero, domainerrors.ValidationError("wallet_id", "wallet ID is required")
	}

	resp, err := s.client.GetWalletBalances(ctx, walletID, s.config.USDCTokenAddress)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("get_balance").Inc()
		span.SetStatus(codes.Error, err.Error())
		return decimal.Zero, domainerrors.ProviderError("get_balance", err)
	}

	raw := resp.GetUSDCBalance()
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("get_balance").Inc()
		return decimal.Zero, domainerrors.ProviderError("get_balance", fmt.Errorf("unparseable balance %q: %w", raw, err))
	}

	return balance, nil
}

// Transfer submits a USDC transfer out of a custodial wallet. The caller
// supplies the idempotency key so a resubmitted request cannot double-send.
func (s *Service) Transfer(ctx context.Context, req entities.TransferRequest) (*entities.TransferReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.transfer")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, domainerrors.ValidationError("transfer", err.Error())
	}

	span.SetAttributes(
		attribute.String("wallet.id", req.FromWalletID),
		attribute.String("transfer.idempotency_key", req.IdempotencyKey),
	)

	resp, err := s.client.CreateTransfer(ctx, entities.CircleTransferRequest{
		IdempotencyKey:     req.IdempotencyKey,
		WalletID:           req.FromWalletID,
		TokenAddress:       s.config.USDCTokenAddress,
		Blockchain:         s.config.Blockchain,
		Amounts:            []string{req.Amount.StringFixed(6)},
		DestinationAddress: req.ToAddress,
		FeeLevel:           s.config.FeeLevel,
		RefID:              req.Reference,
	})
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("transfer").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, domainerrors.ProviderError("transfer", err)
	}

	receipt := &entities.TransferReceipt{
		TransactionID: resp.ID,
		State:         entities.TransactionState(resp.State),
	}
	if resp.TxHash != "" {
		hash := resp.TxHash
		receipt.TxHash = &hash
	}

	s.log.Info("submitted transfer",
		"transaction_id", resp.ID,
		"state", resp.State,
		"amount", req.Amount.String(),
	)

	return receipt, nil
}

// GetTransaction fetches a provider transaction by its provider ID
func (s *Service) GetTransaction(ctx context.Context, transactionID string) (*entities.ProviderTransaction, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.get_transaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	if transactionID == "" {
		return nil, domainerrors.ValidationError("transaction_id", "transaction ID is required")
	}

	tx, err := s.client.GetTransaction(ctx, transactionID)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("get_transaction").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, domainerrors.ProviderError("get_transaction", err)
	}

	return translateTransaction(tx), nil
}

// ListTransactions fetches all provider transactions touching a wallet
func (s *Service) ListTransactions(ctx context.Context, walletID string) ([]entities.ProviderTransaction, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.list_transactions")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", walletID))

	if walletID == "" {
		return nil, domainerrors.ValidationError("wallet_id", "wallet ID is required")
	}

	txs, err := s.client.ListTransactions(ctx, walletID)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("list_transactions").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, domainerrors.ProviderError("list_transactions", err)
	}

	out := make([]entities.ProviderTransaction, 0, len(txs))
	for i := range txs {
		out = append(out, *translateTransaction(&txs[i]))
	}
	return out, nil
}

func translateTransaction(tx *entities.CircleTransaction) *entities.ProviderTransaction {
	out := &entities.ProviderTransaction{
		ID:               tx.ID,
		State:            entities.TransactionState(tx.State),
		Blockchain:       tx.Blockchain,
		Amounts:          tx.Amounts,
		CreateDate:       tx.CreateDate,
		FirstConfirmDate: tx.FirstConfirmDate,
	}
	if tx.TxHash != "" {
		hash := tx.TxHash
		out.TxHash = &hash
	}
	return out
}
