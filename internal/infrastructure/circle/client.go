// Package circle implements the HTTP client for Circle's
// developer-controlled wallet API.
package circle

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/irlwork/settlement-service/internal/domain/entities"
	"github.com/irlwork/settlement-service/internal/domain/services/entitysecret"
)

const (
	// Circle API URLs
	ProductionBaseURL = "https://api.circle.com"
	SandboxBaseURL    = "https://api-sandbox.circle.com"

	// Timeouts and limits
	defaultTimeout    = 30 * time.Second
	maxRetries        = 5
	baseBackoff       = 1 * time.Second
	maxBackoff        = 32 * time.Second
	jitterRange       = 0.1 // 10% jitter
	defaultRetryAfter = 5 * time.Second
	maxRetryAfter     = 60 * time.Second
)

// Config represents Circle API configuration
type Config struct {
	APIKey               string        `json:"api_key"`
	BaseURL              string        `json:"base_url"`
	Environment          string        `json:"environment"` // "sandbox" or "production"
	Timeout              time.Duration `json:"timeout"`
	WalletsEndpoint      string        `json:"wallets_endpoint"`
	BalancesEndpoint     string        `json:"balances_endpoint"`
	TransferEndpoint     string        `json:"transfer_endpoint"`
	TransactionsEndpoint string        `json:"transactions_endpoint"`
}

// Client represents a Circle API client
type Client struct {
	config              Config
	httpClient          *http.Client
	circuitBreaker      *gobreaker.CircuitBreaker
	logger              *zap.Logger
	entitySecretService *entitysecret.Service
}

// NewClient creates a new Circle API client
func NewClient(config Config, entitySecretService *entitysecret.Service, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	if config.BaseURL == "" {
		if config.Environment == "sandbox" {
			config.BaseURL = SandboxBaseURL
		} else {
			config.BaseURL = ProductionBaseURL
		}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.WalletsEndpoint == "" {
		config.WalletsEndpoint = "/v1/w3s/developer/wallets"
	}
	if config.BalancesEndpoint == "" {
		config.BalancesEndpoint = "/v1/w3s/wallets"
	}
	if config.TransferEndpoint == "" {
		config.TransferEndpoint = "/v1/w3s/developer/transactions/transfer"
	}
	if config.TransactionsEndpoint == "" {
		config.TransactionsEndpoint = "/v1/w3s/transactions"
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	st := gobreaker.Settings{
		Name:        "CircleAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:              config,
		httpClient:          httpClient,
		circuitBreaker:      gobreaker.NewCircuitBreaker(st),
		logger:              logger,
		entitySecretService: entitySecretService,
	}
}

// CreateWallets creates developer-controlled wallets in the configured wallet set
func (c *Client) CreateWallets(ctx context.Context, req entities.CircleWalletCreateRequest) (*entities.CircleWalletCreateResponse, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	entitySecretCiphertext, err := c.entitySecretService.GenerateEntitySecretCiphertext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate entity secret ciphertext: %w", err)
	}
	req.EntitySecretCiphertext = entitySecretCiphertext

	c.logger.Info("Creating developer-controlled wallet",
		zap.String("walletSetId", req.WalletSetID),
		zap.Strings("blockchains", req.Blockchains),
		zap.Int("count", req.Count))

	var response entities.CircleWalletCreateResponse
	_, err = c.circuitBreaker.Execute(func() (interface{}, error) {
		return &response, c.doRequestWithRetry(ctx, "POST", c.config.WalletsEndpoint, req, &response)
	})

	if err != nil {
		c.logger.Error("Failed to create developer-controlled wallet",
			zap.String("walletSetId", req.WalletSetID),
			zap.Strings("blockchains", req.Blockchains),
			zap.Error(err))
		return nil, fmt.Errorf("create wallet failed: %w", err)
	}

	c.logger.Info("Created developer-controlled wallet successfully",
		zap.String("walletSetId", req.WalletSetID),
		zap.Int("walletCount", len(response.Wallets)))

	return &response, nil
}

// GetWalletBalances retrieves token balances for a specific wallet.
// tokenAddress is optional; when provided, results are filtered to that token.
func (c *Client) GetWalletBalances(ctx context.Context, walletID string, tokenAddress ...string) (*entities.CircleWalletBalancesResponse, error) {
	endpoint := fmt.Sprintf("%s/%s/balances", c.config.BalancesEndpoint, url.PathEscape(walletID))

	if len(tokenAddress) > 0 && tokenAddress[0] != "" {
		endpoint = fmt.Sprintf("%s?tokenAddress=%s", endpoint, url.QueryEscape(tokenAddress[0]))
	}

	var response entities.CircleWalletBalancesResponse
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return &response, c.doRequestWithRetry(ctx, "GET", endpoint, nil, &response)
	})

	if err != nil {
		c.logger.Error("Failed to get wallet balances",
			zap.String("walletId", walletID),
			zap.Error(err))
		return nil, fmt.Errorf("get wallet balances failed: %w", err)
	}

	c.logger.Debug("Retrieved wallet balances",
		zap.String("walletId", walletID),
		zap.Int("tokenCount", len(response.TokenBalances)),
		zap.String("usdcBalance", response.GetUSDCBalance()))

	return &response, nil
}

// CreateTransfer submits a transfer from a developer-controlled wallet
func (c *Client) CreateTransfer(ctx context.Context, req entities.CircleTransferRequest) (*entities.CircleTransferResponse, error) {
	entitySecretCiphertext, err := c.entitySecretService.GenerateEntitySecretCiphertext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate entity secret ciphertext: %w", err)
	}
	req.EntitySecretCiphertext = entitySecretCiphertext

	c.logger.Info("Submitting transfer",
		zap.String("walletId", req.WalletID),
		zap.Strings("amounts", req.Amounts),
		zap.String("destinationAddress", req.DestinationAddress))

	var response entities.CircleTransferResponse
	_, err = c.circuitBreaker.Execute(func() (interface{}, error) {
		return &response, c.doRequestWithRetry(ctx, "POST", c.config.TransferEndpoint, req, &response)
	})

	if err != nil {
		c.logger.Error("Failed to submit transfer",
			zap.String("walletId", req.WalletID),
			zap.Strings("amounts", req.Amounts),
			zap.Error(err))
		return nil, fmt.Errorf("transfer failed: %w", err)
	}

	c.logger.Info("Transfer submitted",
		zap.String("walletId", req.WalletID),
		zap.String("transactionId", response.ID),
		zap.String("state", response.State))

	return &response, nil
}

// GetTransaction retrieves a transaction by Circle transaction ID
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*entities.CircleTransaction, error) {
	endpoint := fmt.Sprintf("%s/%s", c.config.TransactionsEndpoint, url.PathEscape(transactionID))

	var response entities.CircleTransactionResponse
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return &response, c.doRequestWithRetry(ctx, "GET", endpoint, nil, &response)
	})

	if err != nil {
		c.logger.Error("Failed to get transaction",
			zap.String("transactionId", transactionID),
			zap.Error(err))
		return nil, fmt.Errorf("get transaction failed: %w", err)
	}

	c.logger.Debug("Retrieved transaction",
		zap.String("transactionId", response.Transaction.ID),
		zap.String("state", response.Transaction.State),
		zap.String("txHash", response.Transaction.TxHash))

	return &response.Transaction, nil
}

// ListTransactions retrieves transactions for a wallet
func (c *Client) ListTransactions(ctx context.Context, walletID string) ([]entities.CircleTransaction, error) {
	endpoint := fmt.Sprintf("%s?walletIds=%s", c.config.TransactionsEndpoint, url.QueryEscape(walletID))

	var response entities.CircleTransactionsResponse
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return &response, c.doRequestWithRetry(ctx, "GET", endpoint, nil, &response)
	})

	if err != nil {
		c.logger.Error("Failed to list transactions",
			zap.String("walletId", walletID),
			zap.Error(err))
		return nil, fmt.Errorf("list transactions failed: %w", err)
	}

	return response.Transactions, nil
}

// HealthCheck performs a health check against Circle API
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.config.BaseURL+c.config.TransactionsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("circle API health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("circle API health check failed with status %d", resp.StatusCode)
	}

	return nil
}

// GetMetrics returns circuit breaker metrics for monitoring
func (c *Client) GetMetrics() map[string]interface{} {
	counts := c.circuitBreaker.Counts()
	return map[string]interface{}{
		"circuit_breaker_state": c.circuitBreaker.State().String(),
		"requests":              counts.Requests,
		"consecutive_successes": counts.ConsecutiveSuccesses,
		"consecutive_failures":  counts.ConsecutiveFailures,
		"total_successes":       counts.TotalSuccesses,
		"total_failures":        counts.TotalFailures,
	}
}

// addJitter adds random jitter to a duration to prevent thundering herd
func addJitter(duration time.Duration) time.Duration {
	randomBytes := make([]byte, 1)
	rand.Read(randomBytes)
	randomFloat := float64(randomBytes[0])/255.0*2 - 1 // -1 to 1

	jitter := time.Duration(float64(duration) * jitterRange * randomFloat)
	return duration + jitter
}

// calculateBackoff calculates exponential backoff with jitter
func calculateBackoff(attempt int, retryAfter *time.Duration) time.Duration {
	var baseDelay time.Duration

	if retryAfter != nil {
		baseDelay = *retryAfter
		if baseDelay > maxRetryAfter {
			baseDelay = maxRetryAfter
		}
	} else {
		exponent := math.Pow(2, float64(attempt))
		baseDelay = time.Duration(exponent) * baseBackoff
		if baseDelay > maxBackoff {
			baseDelay = maxBackoff
		}
	}

	return addJitter(baseDelay)
}

// doRequestWithRetry performs HTTP request with exponential backoff retry and jitter
func (c *Client) doRequestWithRetry(ctx context.Context, method, endpoint string, requestBody, responseBody interface{}) error {
	var lastErr error
	requestID := uuid.NewString()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			var retryAfter *time.Duration
			if circleErr, ok := lastErr.(interface{ GetRetryAfter() time.Duration }); ok {
				if ra := circleErr.GetRetryAfter(); ra > 0 {
					retryAfter = &ra
				}
			}

			backoff := calculateBackoff(attempt-1, retryAfter)

			c.logger.Info("Retrying Circle API request",
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.String("method", method),
				zap.String("endpoint", endpoint))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := c.doRequest(ctx, method, endpoint, requestBody, responseBody, requestID)
		if err == nil {
			return nil
		}

		lastErr = err

		if !c.shouldRetry(err) {
			c.logger.Warn("Not retrying Circle API request due to error type",
				zap.String("request_id", requestID),
				zap.Error(err),
				zap.String("method", method),
				zap.String("endpoint", endpoint))
			break
		}

		c.logger.Warn("Circle API request failed, will retry",
			zap.String("request_id", requestID),
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("maxRetries", maxRetries),
			zap.String("method", method),
			zap.String("endpoint", endpoint))
	}

	return fmt.Errorf("request failed after %d attempts: %w", maxRetries+1, lastErr)
}

// doRequest performs a single HTTP request
func (c *Client) doRequest(ctx context.Context, method, endpoint string, requestBody, responseBody interface{}, requestID string) error {
	reqURL := c.config.BaseURL + endpoint

	var reqBody io.Reader
	if requestBody != nil {
		jsonData, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Settlement-Service/1.0")
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("Making Circle API request",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("url", reqURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Received Circle API response",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("url", reqURL),
		zap.Int("statusCode", resp.StatusCode))

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp.StatusCode, body, requestID)
	}

	if responseBody != nil && len(body) > 0 {
		if err := json.Unmarshal(body, responseBody); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// handleErrorResponse processes Circle API error responses and returns typed errors
func (c *Client) handleErrorResponse(statusCode int, body []byte, requestID string) error {
	var retryAfter *time.Duration

	var circleErr entities.CircleErrorResponse
	if err := json.Unmarshal(body, &circleErr); err != nil {
		message := fmt.Sprintf("HTTP %d: %s", statusCode, string(body))
		return entities.NewCircleAPIError(statusCode, message, requestID, retryAfter)
	}

	if statusCode == 429 {
		defaultRetry := defaultRetryAfter
		retryAfter = &defaultRetry
	}

	apiError := entities.NewCircleAPIError(statusCode, circleErr.Message, requestID, retryAfter)

	if len(circleErr.Errors) > 0 {
		if circleAPIErr, ok := apiError.(entities.CircleAPIError); ok {
			circleAPIErr.Errors = circleErr.Errors
			return circleAPIErr
		}
	}

	return apiError
}

// shouldRetry determines if a request should be retried based on the error
func (c *Client) shouldRetry(err error) bool {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return false
	}

	if circleErr, ok := err.(interface{ IsRetryable() bool }); ok {
		return circleErr.IsRetryable()
	}

	// Network errors
	return true
}
