package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the settlement jobs
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Circle      CircleConfig     `mapstructure:"circle"`
	Settlement  SettlementConfig `mapstructure:"settlement"`
	Tracing     TracingConfig    `mapstructure:"tracing"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type CircleConfig struct {
	APIKey                 string `mapstructure:"api_key"`
	Environment            string `mapstructure:"environment"` // sandbox or production
	BaseURL                string `mapstructure:"base_url"`
	EntitySecret           string `mapstructure:"entity_secret"`            // 32-byte hex, encrypted per request
	EntitySecretCiphertext string `mapstructure:"entity_secret_ciphertext"` // Pre-registered ciphertext from Circle Dashboard
	EntityPublicKey        string `mapstructure:"entity_public_key"`        // Circle entity RSA public key (PEM)
	WalletSetID            string `mapstructure:"wallet_set_id"`
	Blockchain             string `mapstructure:"blockchain"`
	USDCTokenAddress       string `mapstructure:"usdc_token_address"`
}

// SettlementConfig contains poller and reconciler tuning
type SettlementConfig struct {
	EscrowWalletID     string `mapstructure:"escrow_wallet_id"`     // optional, enables the shared-wallet check
	StaleAfterMinutes  int    `mapstructure:"stale_after_minutes"`  // warn on pending items older than this
	ToleranceUSDC      string `mapstructure:"tolerance_usdc"`       // absolute reconciliation tolerance
	PollerSchedule     string `mapstructure:"poller_schedule"`      // cron spec for daemon mode
	ReconcilerSchedule string `mapstructure:"reconciler_schedule"`  // cron spec for daemon mode
	RunTimeoutMinutes  int    `mapstructure:"run_timeout_minutes"`  // per-run context deadline
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "settlement_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// Circle defaults
	viper.SetDefault("circle.environment", "production")
	viper.SetDefault("circle.api_key", "")
	viper.SetDefault("circle.base_url", "")
	viper.SetDefault("circle.wallet_set_id", "")
	viper.SetDefault("circle.blockchain", "BASE")
	// USDC on Base
	viper.SetDefault("circle.usdc_token_address", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

	// Settlement defaults
	viper.SetDefault("settlement.stale_after_minutes", 30)
	viper.SetDefault("settlement.tolerance_usdc", "0.01")
	viper.SetDefault("settlement.poller_schedule", "*/10 * * * *")
	viper.SetDefault("settlement.reconciler_schedule", "0 * * * *")
	viper.SetDefault("settlement.run_timeout_minutes", 15)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", false)

	// Metrics defaults
	viper.SetDefault("metrics.port", 9090)
}

func overrideFromEnv() {
	// Database
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	// Circle API
	if circleKey := os.Getenv("CIRCLE_API_KEY"); circleKey != "" {
		viper.Set("circle.api_key", circleKey)
	}
	if circleBaseURL := os.Getenv("CIRCLE_BASE_URL"); circleBaseURL != "" {
		viper.Set("circle.base_url", circleBaseURL)
	}
	if circleEnv := os.Getenv("CIRCLE_ENVIRONMENT"); circleEnv != "" {
		viper.Set("circle.environment", circleEnv)
	}
	if entitySecret := os.Getenv("CIRCLE_ENTITY_SECRET"); entitySecret != "" {
		viper.Set("circle.entity_secret", entitySecret)
	}
	if ciphertext := os.Getenv("CIRCLE_ENTITY_SECRET_CIPHERTEXT"); ciphertext != "" {
		viper.Set("circle.entity_secret_ciphertext", ciphertext)
	}
	if publicKey := os.Getenv("CIRCLE_ENTITY_PUBLIC_KEY"); publicKey != "" {
		viper.Set("circle.entity_public_key", publicKey)
	}
	if walletSetID := os.Getenv("CIRCLE_WALLET_SET_ID"); walletSetID != "" {
		viper.Set("circle.wallet_set_id", walletSetID)
	}
	if blockchain := os.Getenv("CIRCLE_BLOCKCHAIN"); blockchain != "" {
		viper.Set("circle.blockchain", strings.ToUpper(strings.TrimSpace(blockchain)))
	}
	if tokenAddress := os.Getenv("USDC_TOKEN_ADDRESS"); tokenAddress != "" {
		viper.Set("circle.usdc_token_address", tokenAddress)
	}

	// Settlement
	if escrowWalletID := os.Getenv("ESCROW_WALLET_ID"); escrowWalletID != "" {
		viper.Set("settlement.escrow_wallet_id", escrowWalletID)
	}
	if staleAfter := os.Getenv("POLLER_STALE_AFTER_MINUTES"); staleAfter != "" {
		if minutes, err := strconv.Atoi(staleAfter); err == nil {
			viper.Set("settlement.stale_after_minutes", minutes)
		}
	}
	if tolerance := os.Getenv("RECONCILE_TOLERANCE"); tolerance != "" {
		viper.Set("settlement.tolerance_usdc", tolerance)
	}
	if schedule := os.Getenv("POLLER_SCHEDULE"); schedule != "" {
		viper.Set("settlement.poller_schedule", schedule)
	}
	if schedule := os.Getenv("RECONCILER_SCHEDULE"); schedule != "" {
		viper.Set("settlement.reconciler_schedule", schedule)
	}

	// Tracing
	if enabled := os.Getenv("TRACING_ENABLED"); enabled != "" {
		viper.Set("tracing.enabled", enabled == "true" || enabled == "1")
	}
	if collectorURL := os.Getenv("OTEL_COLLECTOR_URL"); collectorURL != "" {
		viper.Set("tracing.collector_url", collectorURL)
	}

	// Metrics
	if port := os.Getenv("METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("metrics.port", p)
		}
	}
}

func validate(config *Config) error {
	if config.Circle.APIKey == "" {
		return fmt.Errorf("circle API key is required")
	}

	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}

	if config.Circle.USDCTokenAddress == "" {
		return fmt.Errorf("USDC token address is required")
	}

	if config.Settlement.StaleAfterMinutes <= 0 {
		return fmt.Errorf("stale_after_minutes must be positive")
	}

	return nil
}
