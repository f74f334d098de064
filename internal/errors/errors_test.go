package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapIsMatchesKind(t *testing.T) {
	wrapped := Wrap("tunnel.send", ErrTunnelUnavailable, errors.New("dial refused"))
	assert.True(t, errors.Is(wrapped, ErrTunnelUnavailable))
	assert.False(t, errors.Is(wrapped, ErrStreamClosed))
}

func TestWrapUnwrapReturnsUnderlying(t *testing.T) {
	underlying := errors.New("dial refused")
	wrapped := Wrap("tunnel.send", ErrTunnelUnavailable, underlying)
	assert.Equal(t, underlying, errors.Unwrap(wrapped))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrTunnelUnavailable))
	assert.True(t, IsRetryable(ErrTunnelClosed))
	assert.True(t, IsRetryable(ErrHandshakeFailed))
	assert.True(t, IsRetryable(ErrReconnectFailed))
	assert.False(t, IsRetryable(ErrInvalidFrame))
	assert.False(t, IsRetryable(errors.New("something else")))
}
