// Package metrics exposes Prometheus instruments for the settlement jobs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DepositsConfirmed counts deposits moved to confirmed and credited
	DepositsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_deposits_confirmed_total",
		Help: "Number of deposits confirmed and credited",
	})

	// DepositsFailed counts deposits moved to failed
	DepositsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_deposits_failed_total",
		Help: "Number of deposits marked failed",
	})

	// DepositsAlreadySettled counts conditional updates lost to a concurrent run
	DepositsAlreadySettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_deposits_already_settled_total",
		Help: "Number of deposits found already settled by another run",
	})

	// StaleTransactions counts pending items past the staleness threshold
	StaleTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_stale_transactions_total",
		Help: "Number of transactions pending past the staleness threshold",
	}, []string{"kind"})

	// ProviderErrors counts failed wallet provider calls by operation
	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_provider_errors_total",
		Help: "Number of failed wallet provider calls",
	}, []string{"operation"})

	// ItemErrors counts per-item failures that did not abort a run
	ItemErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_item_errors_total",
		Help: "Number of per-item errors skipped during a run",
	}, []string{"job"})

	// Discrepancies counts reconciliation findings by check
	Discrepancies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_reconciliation_discrepancies_total",
		Help: "Number of reconciliation discrepancies found",
	}, []string{"check"})

	// WalletlessFunds tracks the USDC total owed to users without wallets
	WalletlessFunds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_walletless_funds_usdc",
		Help: "Total available balance held for users without wallet addresses",
	})

	// JobRuns counts job executions by outcome
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_job_runs_total",
		Help: "Number of job runs by outcome",
	}, []string{"job", "status"})

	// JobDuration observes job run durations
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_job_duration_seconds",
		Help:    "Duration of job runs in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"job"})
)

// Handler returns the Prometheus scrape handler for daemon mode
func Handler() http.Handler {
	return promhttp.Handler()
}
