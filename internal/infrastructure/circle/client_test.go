package circle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/irlwork/settlement-service/internal/domain/entities"
	"github.com/irlwork/settlement-service/internal/domain/services/entitysecret"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	secrets := entitysecret.NewService(entitysecret.Config{
		Ciphertext: "preregistered-ciphertext",
	}, zap.NewNop())

	client := NewClient(Config{
		APIKey:  "test-api-key",
		BaseURL: server.URL,
	}, secrets, zap.NewNop())

	return client, server
}

func decodeJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func TestGetTransactionUnwrapsDataEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/v1/w3s/transactions/tx-1", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": {
				"transaction": {
					"id": "tx-1",
					"state": "COMPLETE",
					"txHash": "0xabc",
					"blockchain": "BASE",
					"amounts": ["100"]
				}
			}
		}`))
	})

	tx, err := client.GetTransaction(context.Background(), "tx-1")

	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, "COMPLETE", tx.State)
	assert.Equal(t, "0xabc", tx.TxHash)
	assert.Equal(t, []string{"100"}, tx.Amounts)
}

func TestGetWalletBalancesFiltersByToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/w3s/wallets/wallet-1/balances", r.URL.Path)
		assert.Equal(t, "0xUSDC", r.URL.Query().Get("tokenAddress"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": {
				"tokenBalances": [
					{"token": {"symbol": "USDC"}, "amount": "42.5"}
				]
			}
		}`))
	})

	resp, err := client.GetWalletBalances(context.Background(), "wallet-1", "0xUSDC")

	require.NoError(t, err)
	assert.Equal(t, "42.5", resp.GetUSDCBalance())
}

func TestCreateTransferInjectsEntitySecret(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/w3s/developer/transactions/transfer", r.URL.Path)

		var req entities.CircleTransferRequest
		require.NoError(t, decodeJSONBody(r, &req))
		assert.Equal(t, "preregistered-ciphertext", req.EntitySecretCiphertext)
		assert.Equal(t, "idem-1", req.IdempotencyKey)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"id": "tx-9", "state": "INITIATED"}}`))
	})

	resp, err := client.CreateTransfer(context.Background(), entities.CircleTransferRequest{
		IdempotencyKey:     "idem-1",
		WalletID:           "wallet-1",
		Amounts:            []string{"10"},
		DestinationAddress: "0xdest",
	})

	require.NoError(t, err)
	assert.Equal(t, "tx-9", resp.ID)
	assert.Equal(t, "INITIATED", resp.State)
}

func TestCreateWalletsFillsIdempotencyKey(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req entities.CircleWalletCreateRequest
		require.NoError(t, decodeJSONBody(r, &req))
		assert.NotEmpty(t, req.IdempotencyKey)
		assert.Equal(t, "preregistered-ciphertext", req.EntitySecretCiphertext)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": {
				"wallets": [
					{"id": "wallet-1", "state": "LIVE", "address": "0xwallet", "blockchain": "BASE"}
				]
			}
		}`))
	})

	resp, err := client.CreateWallets(context.Background(), entities.CircleWalletCreateRequest{
		Blockchains: []string{"BASE"},
		Count:       1,
		WalletSetID: "ws-1",
	})

	require.NoError(t, err)
	require.Len(t, resp.Wallets, 1)
	assert.Equal(t, "wallet-1", resp.Wallets[0].ID)
	assert.Equal(t, "0xwallet", resp.Wallets[0].PrimaryAddress())
}

func TestValidationErrorIsNotRetried(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": 155101, "message": "invalid destination address"}`))
	})

	_, err := client.GetTransaction(context.Background(), "tx-1")

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var validationErr entities.CircleValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Contains(t, validationErr.Message, "invalid destination address")
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"message": "upstream error"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"transaction": {"id": "tx-1", "state": "SENT"}}}`))
	})

	tx, err := client.GetTransaction(context.Background(), "tx-1")

	require.NoError(t, err)
	assert.Equal(t, "SENT", tx.State)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAuthErrorSurfacesTyped(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "invalid api key"}`))
	})

	_, err := client.GetTransaction(context.Background(), "tx-1")

	require.Error(t, err)
	var authErr entities.CircleAuthError
	assert.True(t, errors.As(err, &authErr))
}
