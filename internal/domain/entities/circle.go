package entities

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// === Circle API Models ===
//
// Request/response shapes for Circle's developer-controlled wallet API.
// Responses may arrive wrapped in a "data" envelope depending on the
// endpoint version, so the response types normalize both forms.

// CircleWalletCreateRequest represents Circle wallet creation request
type CircleWalletCreateRequest struct {
	IdempotencyKey         string   `json:"idempotencyKey,omitempty"`
	EntitySecretCiphertext string   `json:"entitySecretCipherText"`
	Blockchains            []string `json:"blockchains"`
	Count                  int      `json:"count,omitempty"`
	AccountType            string   `json:"accountType"`
	WalletSetID            string   `json:"walletSetId"`
}

// CircleWalletCreateResponse represents Circle wallet creation response
type CircleWalletCreateResponse struct {
	Wallets []CircleWalletData `json:"wallets"`
}

// UnmarshalJSON normalizes Circle wallet responses that may wrap data
func (r *CircleWalletCreateResponse) UnmarshalJSON(data []byte) error {
	aux := struct {
		Data struct {
			Wallets []CircleWalletData `json:"wallets"`
		} `json:"data"`
		Wallet  *CircleWalletData  `json:"wallet"`
		Wallets []CircleWalletData `json:"wallets"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch {
	case len(aux.Data.Wallets) > 0:
		r.Wallets = aux.Data.Wallets
	case len(aux.Wallets) > 0:
		r.Wallets = aux.Wallets
	case aux.Wallet != nil && aux.Wallet.ID != "":
		r.Wallets = []CircleWalletData{*aux.Wallet}
	default:
		r.Wallets = []CircleWalletData{}
	}

	return nil
}

// CircleWalletData represents Circle wallet data
type CircleWalletData struct {
	ID          string                `json:"id"`
	State       string                `json:"state"`
	WalletSetID string                `json:"walletSetId"`
	CustodyType string                `json:"custodyType"`
	AccountType string                `json:"accountType,omitempty"`
	Addresses   []CircleWalletAddress `json:"addresses,omitempty"`
	Address     string                `json:"address,omitempty"` // For single address responses
	Blockchain  string                `json:"blockchain,omitempty"`
	CreatedDate time.Time             `json:"createDate"`
	UpdatedDate time.Time             `json:"updateDate"`
}

// PrimaryAddress returns the wallet's on-chain address for any response shape
func (w *CircleWalletData) PrimaryAddress() string {
	if w.Address != "" {
		return w.Address
	}
	if len(w.Addresses) > 0 {
		return w.Addresses[0].Address
	}
	return ""
}

// CircleWalletAddress represents a wallet address for a specific blockchain
type CircleWalletAddress struct {
	Address    string `json:"address"`
	Blockchain string `json:"blockchain"`
}

// CircleTokenInfo represents token metadata from Circle API
type CircleTokenInfo struct {
	ID           string    `json:"id"`
	Blockchain   string    `json:"blockchain"`
	TokenAddress string    `json:"tokenAddress,omitempty"`
	Standard     string    `json:"standard,omitempty"`
	Name         string    `json:"name"`
	Symbol       string    `json:"symbol"`
	Decimals     int       `json:"decimals"`
	IsNative     bool      `json:"isNative"`
	UpdateDate   time.Time `json:"updateDate"`
	CreateDate   time.Time `json:"createDate"`
}

// CircleTokenBalance represents a single token balance from Circle API
type CircleTokenBalance struct {
	Token      CircleTokenInfo `json:"token"`
	Amount     string          `json:"amount"`
	UpdateDate time.Time       `json:"updateDate"`
}

// CircleWalletBalancesResponse represents the Circle API response for wallet balances
type CircleWalletBalancesResponse struct {
	TokenBalances []CircleTokenBalance `json:"tokenBalances"`
}

// UnmarshalJSON normalizes Circle balance responses that wrap data
func (r *CircleWalletBalancesResponse) UnmarshalJSON(data []byte) error {
	aux := struct {
		Data struct {
			TokenBalances []CircleTokenBalance `json:"tokenBalances"`
		} `json:"data"`
		TokenBalances []CircleTokenBalance `json:"tokenBalances"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch {
	case len(aux.Data.TokenBalances) > 0:
		r.TokenBalances = aux.Data.TokenBalances
	case len(aux.TokenBalances) > 0:
		r.TokenBalances = aux.TokenBalances
	default:
		// Empty array, not nil
		r.TokenBalances = []CircleTokenBalance{}
	}

	return nil
}

// GetUSDCBalance extracts USDC balance from token balances
func (r *CircleWalletBalancesResponse) GetUSDCBalance() string {
	for _, balance := range r.TokenBalances {
		if strings.EqualFold(balance.Token.Symbol, "USDC") {
			return balance.Amount
		}
	}
	return "0"
}

// CircleTransferRequest represents a request to transfer funds using Circle API
type CircleTransferRequest struct {
	IdempotencyKey         string   `json:"idempotencyKey"`
	EntitySecretCiphertext string   `json:"entitySecretCiphertext"`
	WalletID               string   `json:"walletId"`
	TokenID                string   `json:"tokenId,omitempty"`
	TokenAddress           string   `json:"tokenAddress,omitempty"`
	Blockchain             string   `json:"blockchain,omitempty"`
	Amounts                []string `json:"amounts"`
	DestinationAddress     string   `json:"destinationAddress,omitempty"`
	FeeLevel               string   `json:"feeLevel,omitempty"`
	RefID                  string   `json:"refId,omitempty"`
	Note                   string   `json:"note,omitempty"`
}

// CircleTransferResponse represents the transfer submission acknowledgement
type CircleTransferResponse struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	TxHash string `json:"txHash,omitempty"`
}

// UnmarshalJSON normalizes transfer responses that may wrap data
func (r *CircleTransferResponse) UnmarshalJSON(data []byte) error {
	type alias CircleTransferResponse
	aux := struct {
		Data *alias `json:"data"`
		alias
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Data != nil && aux.Data.ID != "" {
		*r = CircleTransferResponse(*aux.Data)
		return nil
	}
	*r = CircleTransferResponse(aux.alias)
	return nil
}

// CircleTransaction represents a transaction record from Circle API
type CircleTransaction struct {
	ID                 string     `json:"id"`
	State              string     `json:"state"`
	TxHash             string     `json:"txHash,omitempty"`
	Blockchain         string     `json:"blockchain,omitempty"`
	WalletID           string     `json:"walletId,omitempty"`
	TokenID            string     `json:"tokenId,omitempty"`
	Amounts            []string   `json:"amounts,omitempty"`
	DestinationAddress string     `json:"destinationAddress,omitempty"`
	CreateDate         time.Time  `json:"createDate"`
	FirstConfirmDate   *time.Time `json:"firstConfirmDate,omitempty"`
}

// CircleTransactionResponse represents a single transaction lookup response
type CircleTransactionResponse struct {
	Transaction CircleTransaction `json:"transaction"`
}

// UnmarshalJSON normalizes transaction responses that may wrap data
func (r *CircleTransactionResponse) UnmarshalJSON(data []byte) error {
	aux := struct {
		Data struct {
			Transaction *CircleTransaction `json:"transaction"`
		} `json:"data"`
		Transaction *CircleTransaction `json:"transaction"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Data.Transaction != nil {
		r.Transaction = *aux.Data.Transaction
		return nil
	}
	if aux.Transaction != nil {
		r.Transaction = *aux.Transaction
		return nil
	}

	// Some endpoints return the transaction as the top-level object
	var tx CircleTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return err
	}
	r.Transaction = tx
	return nil
}

// CircleTransactionsResponse represents a transaction list response
type CircleTransactionsResponse struct {
	Transactions []CircleTransaction `json:"transactions"`
}

// UnmarshalJSON normalizes transaction list responses that may wrap data
func (r *CircleTransactionsResponse) UnmarshalJSON(data []byte) error {
	aux := struct {
		Data struct {
			Transactions []CircleTransaction `json:"transactions"`
		} `json:"data"`
		Transactions []CircleTransaction `json:"transactions"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch {
	case len(aux.Data.Transactions) > 0:
		r.Transactions = aux.Data.Transactions
	case len(aux.Transactions) > 0:
		r.Transactions = aux.Transactions
	default:
		r.Transactions = []CircleTransaction{}
	}

	return nil
}

// CircleErrorResponse represents Circle API error response
type CircleErrorResponse struct {
	Code    int                `json:"code"`
	Message string             `json:"message"`
	Errors  []CircleFieldError `json:"errors,omitempty"`
}

// CircleFieldError represents field-specific error
type CircleFieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements error interface
func (e CircleErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		var details []string
		for _, fieldErr := range e.Errors {
			details = append(details, fmt.Sprintf("%s: %s", fieldErr.Field, fieldErr.Message))
		}
		return fmt.Sprintf("Circle API error %d: %s (%s)", e.Code, e.Message, strings.Join(details, ", "))
	}
	return fmt.Sprintf("Circle API error %d: %s", e.Code, e.Message)
}

// CircleAPIError represents a Circle API error with type information
type CircleAPIError struct {
	Code       int                `json:"code"`
	Message    string             `json:"message"`
	Errors     []CircleFieldError `json:"errors,omitempty"`
	RequestID  string             `json:"request_id,omitempty"`
	RetryAfter *time.Duration     `json:"retry_after,omitempty"`
	Type       string             `json:"type"`
}

// Error implements error interface
func (e CircleAPIError) Error() string {
	if len(e.Errors) > 0 {
		var details []string
		for _, fieldErr := range e.Errors {
			details = append(details, fmt.Sprintf("%s: %s", fieldErr.Field, fieldErr.Message))
		}
		return fmt.Sprintf("Circle %s error %d: %s (%s)", e.Type, e.Code, e.Message, strings.Join(details, ", "))
	}
	return fmt.Sprintf("Circle %s error %d: %s", e.Type, e.Code, e.Message)
}

// IsRetryable returns true if the error is retryable
func (e CircleAPIError) IsRetryable() bool {
	switch e.Code {
	case 429: // Rate limit
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	default:
		return false
	}
}

// GetRetryAfter returns the retry delay for rate limit errors
func (e CircleAPIError) GetRetryAfter() time.Duration {
	if e.RetryAfter != nil {
		return *e.RetryAfter
	}
	if e.Code >= 500 {
		return 5 * time.Second
	}
	return 0
}

// CircleAuthError represents authentication/authorization errors
type CircleAuthError struct {
	CircleAPIError
}

// CircleValidationError represents validation errors
type CircleValidationError struct {
	CircleAPIError
}

// CircleRateLimitError represents rate limit errors
type CircleRateLimitError struct {
	CircleAPIError
}

// CircleConflictError represents conflict errors (duplicate resources)
type CircleConflictError struct {
	CircleAPIError
}

// CircleServerError represents server errors
type CircleServerError struct {
	CircleAPIError
}

// NewCircleAPIError creates a new Circle API error with proper typing
func NewCircleAPIError(code int, message string, requestID string, retryAfter *time.Duration) error {
	baseError := CircleAPIError{
		Code:       code,
		Message:    message,
		RequestID:  requestID,
		RetryAfter: retryAfter,
	}

	switch {
	case code == 401 || code == 403:
		baseError.Type = "auth"
		return CircleAuthError{baseError}
	case code == 400:
		baseError.Type = "validation"
		return CircleValidationError{baseError}
	case code == 429:
		baseError.Type = "rate_limit"
		return CircleRateLimitError{baseError}
	case code == 409:
		baseError.Type = "conflict"
		return CircleConflictError{baseError}
	case code >= 500:
		baseError.Type = "server"
		return CircleServerError{baseError}
	default:
		baseError.Type = "client"
		return baseError
	}
}
