package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeIllegalCall, "start_trade called while not idle")
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeIllegalCall, err.Code)
	assert.Equal(t, "[400] start_trade called while not idle", err.Error())
}

func TestNewf(t *testing.T) {
	err := Newf(ErrCodeMissingOrderField, "order is missing %s", "Symbol")
	assert.Equal(t, "[103] order is missing Symbol", err.Error())
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeSubmitFailed, "failed to submit order", cause)

	assert.Equal(t, "[200] failed to submit order: connection refused", err.Error())
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, Is(err, cause))
}

func TestWrapf(t *testing.T) {
	cause := fmt.Errorf("timeout")
	err := Wrapf(ErrCodePollFailed, cause, "failed to poll order %s", "DEMO-1")

	assert.Equal(t, "[201] failed to poll order DEMO-1: timeout", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestGetCode(t *testing.T) {
	err := New(ErrCodeCancelFailed, "cancel rejected")
	assert.Equal(t, ErrCodeCancelFailed, GetCode(err))

	plain := fmt.Errorf("plain error")
	assert.Equal(t, ErrCodeUnknown, GetCode(plain))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, ErrCodeCancelFailed, GetCode(wrapped))
}

func TestHasCode(t *testing.T) {
	err := New(ErrCodeStoreInsertFailed, "insert failed")
	assert.True(t, HasCode(err, ErrCodeStoreInsertFailed))
	assert.False(t, HasCode(err, ErrCodeStoreUpdateFailed))
}

func TestAs(t *testing.T) {
	err := Wrap(ErrCodeAuthFailed, "token expired", fmt.Errorf("401"))

	var structured *Error

	require.True(t, As(fmt.Errorf("outer: %w", err), &structured))
	assert.Equal(t, ErrCodeAuthFailed, structured.Code)
}
