package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreErrorCategory(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := StoreError("settle deposit", cause)

	assert.True(t, IsStore(err))
	assert.False(t, IsProvider(err))
	assert.Equal(t, "settle deposit failed", err.Error())
	assert.Equal(t, "STORE_ERROR", err.Code)
	assert.Equal(t, cause.Error(), err.Details["cause"])
}

func TestStoreErrorMatchesThroughWrapping(t *testing.T) {
	// Services re-wrap repository errors; the category must survive
	err := fmt.Errorf("poll deposits: %w", StoreError("list pending deposits", errors.New("timeout")))

	assert.True(t, IsStore(err))
	assert.True(t, errors.Is(err, ErrStore))
	assert.Equal(t, "STORE_ERROR", GetErrorCode(err))
}

func TestNotFoundErrorCategory(t *testing.T) {
	err := NotFoundError("deposit")

	assert.True(t, IsNotFound(err))
	assert.False(t, IsStore(err))
	assert.Equal(t, "deposit_NOT_FOUND", err.Code)
}

func TestGetErrorCodeFallsBackOnPlainErrors(t *testing.T) {
	assert.Equal(t, "UNKNOWN_ERROR", GetErrorCode(errors.New("boom")))
	assert.Nil(t, GetErrorDetails(errors.New("boom")))
}

func TestGetErrorDetailsExposesCause(t *testing.T) {
	err := fmt.Errorf("run failed: %w", StoreError("mark deposit failed", errors.New("deadlock detected")))

	details := GetErrorDetails(err)
	assert.Equal(t, "deadlock detected", details["cause"])
}
