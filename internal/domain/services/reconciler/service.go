package reconciler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irlwork/settlement-service/internal/domain/entities"
	"github.com/irlwork/settlement-service/pkg/logger"
	"github.com/irlwork/settlement-service/pkg/metrics"
	"github.com/irlwork/settlement-service/pkg/tracing"
)

// WalletGateway is the slice of the wallet gateway the reconciler needs
type WalletGateway interface {
	GetBalance(ctx context.Context, walletID string) (decimal.Decimal, error)
}

// UserRepository is the balance store contract the reconciler depends on
type UserRepository interface {
	ListWalletHolders(ctx context.Context) ([]entities.UserBalance, error)
	ListWalletless(ctx context.Context) ([]entities.UserBalance, error)
	SumEscrowBalances(ctx context.Context) (decimal.Decimal, error)
}

// LedgerRepository exposes the ledger audit query
type LedgerRepository interface {
	ListImbalances(ctx context.Context) ([]entities.LedgerImbalance, error)
}

// Config holds reconciler tuning
type Config struct {
	// Tolerance is the absolute USDC delta below which internal and
	// on-chain balances are considered equal.
	Tolerance decimal.Decimal
	// EscrowWalletID enables the shared escrow wallet check when set.
	EscrowWalletID string
}

// Service compares internal balances against on-chain custodial wallet
// balances and reports discrepancies. It never mutates balances: every
// finding is surfaced for a human, not auto-corrected.
type Service struct {
	gateway WalletGateway
	users   UserRepository
	ledger  LedgerRepository
	config  Config
	log     *logger.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService creates a new balance reconciler service
func NewService(gateway WalletGateway, users UserRepository, ledger LedgerRepository, config Config, log *logger.Logger) *Service {
	if config.Tolerance.IsZero() {
		config.Tolerance = decimal.RequireFromString("0.01")
	}
	return &Service{
		gateway: gateway,
		users:   users,
		ledger:  ledger,
		config:  config,
		log:     log,
		tracer:  tracing.GetTracer("balance-reconciler"),
		now:     time.Now,
	}
}

// Run executes one reconciliation pass and returns its report. It returns
// an error only when the pass could not start; a lookup failure on one
// wallet is logged and skipped, and discrepancies are findings, not
// errors.
func (s *Service) Run(ctx context.Context) (*entities.ReconciliationReport, error) {
	ctx, span := s.tracer.Start(ctx, "reconciler.run")
	defer span.End()

	report := &entities.ReconciliationReport{
		StartedAt:       s.now(),
		WalletlessTotal: decimal.Zero,
	}
	defer func() {
		report.FinishedAt = s.now()
		metrics.JobDuration.WithLabelValues("reconciler").Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}()

	if err := s.checkWalletHolders(ctx, report); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.sumWalletlessFunds(ctx, report); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.checkEscrowWallet(ctx, report)
	s.auditLedger(ctx, report)

	span.SetAttributes(
		attribute.Int("wallets.checked", report.WalletsChecked),
		attribute.Int("discrepancies", len(report.Discrepancies)),
	)

	if report.Clean() {
		s.log.Info("reconciliation clean",
			"wallets_checked", report.WalletsChecked,
			"walletless_total", report.WalletlessTotal.String(),
		)
	} else {
		s.log.Warn("reconciliation found discrepancies",
			"wallets_checked", report.WalletsChecked,
			"discrepancies", len(report.Discrepancies),
		)
	}

	return report, nil
}

func (s *Service) checkWalletHolders(ctx context.Context, report *entities.ReconciliationReport) error {
	ctx, span := s.tracer.Start(ctx, "reconciler.check_wallet_holders")
	defer span.End()

	holders, err := s.users.ListWalletHolders(ctx)
	if err != nil {
		return err
	}

	for i := range holders {
		holder := &holders[i]
		if holder.CircleWalletID == nil {
			continue
		}

		onchain, err := s.gateway.GetBalance(ctx, *holder.CircleWalletID)
		if err != nil {
			report.WalletsSkipped++
			metrics.ItemErrors.WithLabelValues("reconciler").Inc()
			s.log.Error("failed to fetch on-chain balance",
				"user_id", holder.UserID,
				"wallet_id", *holder.CircleWalletID,
				"error", err,
			)
			continue
		}

		report.WalletsChecked++
		expected := holder.Total()
		delta := onchain.Sub(expected)

		if delta.Abs().GreaterThan(s.config.Tolerance) {
			userID := holder.UserID
			report.Discrepancies = append(report.Discrepancies, entities.Discrepancy{
				Check:      entities.ReconciliationCheckWallet,
				UserID:     &userID,
				WalletID:   *holder.CircleWalletID,
				Expected:   expected,
				Actual:     onchain,
				Difference: delta,
			})
			metrics.Discrepancies.WithLabelValues(string(entities.ReconciliationCheckWallet)).Inc()
			s.log.Warn("wallet balance discrepancy",
				"user_id", holder.UserID,
				"wallet_id", *holder.CircleWalletID,
				"expected", expected.String(),
				"onchain", onchain.String(),
				"difference", delta.String(),
			)
		}
	}

	return nil
}

// sumWalletlessFunds totals balances of users whose funds live in the
// shared escrow wallet. These users have no wallet of their own, so an
// individual on-chain comparison is meaningless; their total feeds the
// escrow wallet check instead.
func (s *Service) sumWalletlessFunds(ctx context.Context, report *entities.ReconciliationReport) error {
	ctx, span := s.tracer.Start(ctx, "reconciler.sum_walletless_funds")
	defer span.End()

	users, err := s.users.ListWalletless(ctx)
	if err != nil {
		return err
	}

	total := decimal.Zero
	for i := range users {
		total = total.Add(users[i].AvailableBalance)
	}

	report.WalletlessUsers = len(users)
	report.WalletlessTotal = total
	walletlessFloat, _ := total.Float64()
	metrics.WalletlessFunds.Set(walletlessFloat)

	s.log.Info("summed walletless funds",
		"users", len(users),
		"total", total.String(),
	)

	return nil
}

func (s *Service) checkEscrowWallet(ctx context.Context, report *entities.ReconciliationReport) {
	if s.config.EscrowWalletID == "" {
		s.log.Debug("escrow wallet not configured, skipping shared wallet check")
		return
	}

	ctx, span := s.tracer.Start(ctx, "reconciler.check_escrow_wallet")
	defer span.End()

	escrowTotal, err := s.users.SumEscrowBalances(ctx)
	if err != nil {
		metrics.ItemErrors.WithLabelValues("reconciler").Inc()
		s.log.Error("failed to sum escrow balances", "error", err)
		return
	}

	onchain, err := s.gateway.GetBalance(ctx, s.config.EscrowWalletID)
	if err != nil {
		metrics.ItemErrors.WithLabelValues("reconciler").Inc()
		s.log.Error("failed to fetch escrow wallet balance",
			"wallet_id", s.config.EscrowWalletID,
			"error", err,
		)
		return
	}

	report.EscrowChecked = true
	expected := escrowTotal.Add(report.WalletlessTotal)
	delta := onchain.Sub(expected)

	if delta.Abs().GreaterThan(s.config.Tolerance) {
		report.Discrepancies = append(report.Discrepancies, entities.Discrepancy{
			Check:      entities.ReconciliationCheckEscrow,
			WalletID:   s.config.EscrowWalletID,
			Expected:   expected,
			Actual:     onchain,
			Difference: delta,
		})
		metrics.Discrepancies.WithLabelValues(string(entities.ReconciliationCheckEscrow)).Inc()
		s.log.Warn("escrow wallet balance discrepancy",
			"wallet_id", s.config.EscrowWalletID,
			"expected", expected.String(),
			"onchain", onchain.String(),
			"difference", delta.String(),
		)
		return
	}

	s.log.Info("escrow wallet reconciled",
		"wallet_id", s.config.EscrowWalletID,
		"escrow_total", escrowTotal.String(),
		"walletless_total", report.WalletlessTotal.String(),
		"expected", expected.String(),
		"onchain", onchain.String(),
	)
}

// auditLedger flags users whose stored balance has drifted from the signed
// sum of their ledger entries. Ledger drift means a balance was touched
// outside the settlement path; it is reported, never repaired here.
func (s *Service) auditLedger(ctx context.Context, report *entities.ReconciliationReport) {
	ctx, span := s.tracer.Start(ctx, "reconciler.audit_ledger")
	defer span.End()

	imbalances, err := s.ledger.ListImbalances(ctx)
	if err != nil {
		metrics.ItemErrors.WithLabelValues("reconciler").Inc()
		s.log.Error("failed to audit ledger", "error", err)
		return
	}

	for i := range imbalances {
		imbalance := &imbalances[i]
		userID := imbalance.UserID
		report.Discrepancies = append(report.Discrepancies, entities.Discrepancy{
			Check:      entities.ReconciliationCheckLedger,
			UserID:     &userID,
			Expected:   imbalance.LedgerTotal,
			Actual:     imbalance.AvailableBalance,
			Difference: imbalance.Difference(),
		})
		metrics.Discrepancies.WithLabelValues(string(entities.ReconciliationCheckLedger)).Inc()
		s.log.Warn("ledger imbalance",
			"user_id", imbalance.UserID,
			"available_balance", imbalance.AvailableBalance.String(),
			"ledger_total", imbalance.LedgerTotal.String(),
		)
	}
}
