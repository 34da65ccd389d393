package poller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irlwork/settlement-service/internal/domain/entities"
	"github.com/irlwork/settlement-service/pkg/logger"
	"github.com/irlwork/settlement-service/pkg/metrics"
	"github.com/irlwork/settlement-service/pkg/tracing"
)

// WalletGateway is the slice of the wallet gateway the poller needs
type WalletGateway interface {
	GetTransaction(ctx context.Context, transactionID string) (*entities.ProviderTransaction, error)
}

// DepositRepository is the deposit store contract the poller depends on
type DepositRepository interface {
	ListPending(ctx context.Context) ([]entities.Deposit, error)
	ConfirmAndCredit(ctx context.Context, depositID uuid.UUID, txHash string) (bool, error)
	MarkFailed(ctx context.Context, depositID uuid.UUID) (bool, error)
}

// TaskRepository exposes task settlement state for the read-only watch
type TaskRepository interface {
	ListActiveSettlements(ctx context.Context) ([]entities.TaskSettlement, error)
}

// Config holds poller tuning
type Config struct {
	StaleAfter time.Duration
}

// Service polls the wallet provider for the fate of pending deposits and
// settles them, and watches task settlement transactions for progress.
// Runs are safe to repeat: settlement is conditional on the deposit still
// being pending, so a crash between provider poll and credit simply means
// the next run settles it.
type Service struct {
	gateway  WalletGateway
	deposits DepositRepository
	tasks    TaskRepository
	config   Config
	log      *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService creates a new transaction poller service
func NewService(gateway WalletGateway, deposits DepositRepository, tasks TaskRepository, config Config, log *logger.Logger) *Service {
	if config.StaleAfter <= 0 {
		config.StaleAfter = 30 * time.Minute
	}
	return &Service{
		gateway:  gateway,
		deposits: deposits,
		tasks:    tasks,
		config:   config,
		log:      log,
		tracer:   tracing.GetTracer("transaction-poller"),
		now:      time.Now,
	}
}

// Run executes one polling pass. It returns an error only when the pass
// could not start at all; failures on individual items are logged, counted
// and skipped so one bad transaction cannot wedge the whole queue.
func (s *Service) Run(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "poller.run")
	defer span.End()

	started := s.now()
	defer func() {
		metrics.JobDuration.WithLabelValues("txpoller").Observe(s.now().Sub(started).Seconds())
	}()

	if err := s.pollDeposits(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.watchTaskSettlements(ctx)

	return nil
}

func (s *Service) pollDeposits(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "poller.poll_deposits")
	defer span.End()

	pending, err := s.deposits.ListPending(ctx)
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("deposits.pending", len(pending)))
	s.log.Info("polling pending deposits", "count", len(pending))

	for i := range pending {
		deposit := &pending[i]

		tx, err := s.gateway.GetTransaction(ctx, deposit.ExternalTxID)
		if err != nil {
			metrics.ItemErrors.WithLabelValues("txpoller").Inc()
			s.log.Error("failed to fetch deposit transaction",
				"deposit_id", deposit.ID,
				"external_tx_id", deposit.ExternalTxID,
				"error", err,
			)
			continue
		}

		switch {
		case tx.State.IsSuccessful():
			s.settleDeposit(ctx, deposit, tx)

		case tx.State.IsFailed():
			s.failDeposit(ctx, deposit, tx)

		default:
			if deposit.IsStale(s.now(), s.config.StaleAfter) {
				metrics.StaleTransactions.WithLabelValues("deposit").Inc()
				s.log.Warn("deposit pending beyond staleness threshold",
					"deposit_id", deposit.ID,
					"external_tx_id", deposit.ExternalTxID,
					"state", tx.State,
					"age", deposit.Age(s.now()).String(),
				)
			}
		}
	}

	return nil
}

// settleDeposit credits a confirmed deposit. A store error here leaves the
// deposit pending for the next run; it is never treated as credited.
func (s *Service) settleDeposit(ctx context.Context, deposit *entities.Deposit, tx *entities.ProviderTransaction) {
	txHash := ""
	if tx.TxHash != nil {
		txHash = *tx.TxHash
	}

	credited, err := s.deposits.ConfirmAndCredit(ctx, deposit.ID, txHash)
	if err != nil {
		metrics.ItemErrors.WithLabelValues("txpoller").Inc()
		s.log.Error("failed to settle confirmed deposit",
			"deposit_id", deposit.ID,
			"amount", deposit.Amount.String(),
			"error", err,
		)
		return
	}

	if !credited {
		metrics.DepositsAlreadySettled.Inc()
		s.log.Debug("deposit already settled", "deposit_id", deposit.ID)
		return
	}

	metrics.DepositsConfirmed.Inc()
	s.log.Info("deposit confirmed and credited",
		"deposit_id", deposit.ID,
		"user_id", deposit.UserID,
		"amount", deposit.Amount.String(),
		"tx_hash", txHash,
	)
}

func (s *Service) failDeposit(ctx context.Context, deposit *entities.Deposit, tx *entities.ProviderTransaction) {
	marked, err := s.deposits.MarkFailed(ctx, deposit.ID)
	if err != nil {
		metrics.ItemErrors.WithLabelValues("txpoller").Inc()
		s.log.Error("failed to mark deposit failed",
			"deposit_id", deposit.ID,
			"error", err,
		)
		return
	}

	if marked {
		metrics.DepositsFailed.Inc()
		s.log.Warn("deposit transaction failed on-chain",
			"deposit_id", deposit.ID,
			"state", tx.State,
		)
	}
}

// watchTaskSettlements logs the provider state of escrow, payout and
// refund transactions on active tasks. It is strictly observational: task
// state machines are owned elsewhere and nothing is mutated here.
func (s *Service) watchTaskSettlements(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "poller.watch_task_settlements")
	defer span.End()

	tasks, err := s.tasks.ListActiveSettlements(ctx)
	if err != nil {
		metrics.ItemErrors.WithLabelValues("txpoller").Inc()
		s.log.Error("failed to list active task settlements", "error", err)
		return
	}

	span.SetAttributes(attribute.Int("tasks.active", len(tasks)))

	for i := range tasks {
		task := &tasks[i]
		for _, ref := range task.SettlementRefs() {
			tx, err := s.gateway.GetTransaction(ctx, ref.TransactionID)
			if err != nil {
				metrics.ItemErrors.WithLabelValues("txpoller").Inc()
				s.log.Error("failed to fetch task settlement transaction",
					"task_id", task.TaskID,
					"kind", ref.Kind,
					"transaction_id", ref.TransactionID,
					"error", err,
				)
				continue
			}

			switch {
			case tx.State.IsFailed():
				s.log.Warn("task settlement transaction failed",
					"task_id", task.TaskID,
					"kind", ref.Kind,
					"transaction_id", ref.TransactionID,
					"state", tx.State,
				)

			case !tx.State.IsTerminal() && tx.Age(s.now()) > s.config.StaleAfter:
				metrics.StaleTransactions.WithLabelValues("task").Inc()
				s.log.Warn("task settlement transaction pending beyond staleness threshold",
					"task_id", task.TaskID,
					"kind", ref.Kind,
					"transaction_id", ref.TransactionID,
					"state", tx.State,
					"age", tx.Age(s.now()).String(),
				)

			default:
				s.log.Debug("task settlement transaction state",
					"task_id", task.TaskID,
					"kind", ref.Kind,
					"transaction_id", ref.TransactionID,
					"state", tx.State,
				)
			}
		}
	}
}
