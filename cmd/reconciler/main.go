package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	domainerrors "github.com/irlwork/settlement-service/internal/domain/errors"
	"github.com/irlwork/settlement-service/internal/domain/services/entitysecret"
	"github.com/irlwork/settlement-service/internal/domain/services/gateway"
	"github.com/irlwork/settlement-service/internal/domain/services/reconciler"
	"github.com/irlwork/settlement-service/internal/infrastructure/circle"
	"github.com/irlwork/settlement-service/internal/infrastructure/config"
	"github.com/irlwork/settlement-service/internal/infrastructure/database"
	"github.com/irlwork/settlement-service/internal/infrastructure/repositories"
	"github.com/irlwork/settlement-service/pkg/logger"
	"github.com/irlwork/settlement-service/pkg/metrics"
	"github.com/irlwork/settlement-service/pkg/tracing"
)

func main() {
	daemon := flag.Bool("daemon", false, "run on a cron schedule with a metrics endpoint instead of one-shot")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	tolerance, err := decimal.NewFromString(cfg.Settlement.ToleranceUSDC)
	if err != nil {
		log.Fatal("invalid reconciliation tolerance", "tolerance", cfg.Settlement.ToleranceUSDC, "error", err)
	}

	tracingShutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatal("failed to initialize tracing", "error", err)
	}
	defer tracingShutdown(context.Background())

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	secrets := entitysecret.NewService(entitysecret.Config{
		Ciphertext:   cfg.Circle.EntitySecretCiphertext,
		EntitySecret: cfg.Circle.EntitySecret,
		PublicKeyPEM: cfg.Circle.EntityPublicKey,
	}, log.Zap())

	client := circle.NewClient(circle.Config{
		APIKey:      cfg.Circle.APIKey,
		BaseURL:     cfg.Circle.BaseURL,
		Environment: cfg.Circle.Environment,
	}, secrets, log.Zap())

	if err := database.HealthCheck(db); err != nil {
		log.Fatal("database health check failed", "error", err)
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		// The provider may be transiently down; runs retry on their own
		log.Warn("wallet provider health check failed", "error", err)
	}

	gw := gateway.NewService(client, gateway.Config{
		WalletSetID:      cfg.Circle.WalletSetID,
		Blockchain:       cfg.Circle.Blockchain,
		USDCTokenAddress: cfg.Circle.USDCTokenAddress,
	}, log)

	svc := reconciler.NewService(
		gw,
		repositories.NewUserRepository(db),
		repositories.NewLedgerRepository(db),
		reconciler.Config{
			Tolerance:      tolerance,
			EscrowWalletID: cfg.Settlement.EscrowWalletID,
		},
		log,
	)

	runOnce := func() error {
		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Settlement.RunTimeoutMinutes)*time.Minute)
		defer cancel()

		report, err := svc.Run(ctx)
		if err != nil {
			metrics.JobRuns.WithLabelValues("reconciler", "error").Inc()
			return err
		}
		metrics.JobRuns.WithLabelValues("reconciler", "success").Inc()
		log.Info("reconciliation run completed",
			"wallets_checked", report.WalletsChecked,
			"wallets_skipped", report.WalletsSkipped,
			"walletless_total", report.WalletlessTotal.String(),
			"discrepancies", len(report.Discrepancies),
		)
		return nil
	}

	if !*daemon {
		if err := runOnce(); err != nil {
			log.Error("reconciliation run failed",
				"error", err,
				"code", domainerrors.GetErrorCode(err),
				"details", domainerrors.GetErrorDetails(err),
				"provider", client.GetMetrics(),
			)
			os.Exit(1)
		}
		return
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Settlement.ReconcilerSchedule, func() {
		if err := runOnce(); err != nil {
			log.Error("scheduled reconciliation run failed",
				"error", err,
				"code", domainerrors.GetErrorCode(err),
				"provider", client.GetMetrics(),
			)
		}
	}); err != nil {
		log.Fatal("failed to schedule reconciler", "schedule", cfg.Settlement.ReconcilerSchedule, "error", err)
	}
	scheduler.Start()
	log.Info("reconciler daemon started",
		"schedule", cfg.Settlement.ReconcilerSchedule,
		"metrics_port", cfg.Metrics.Port,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down reconciler daemon")
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown failed", "error", err)
	}
}
