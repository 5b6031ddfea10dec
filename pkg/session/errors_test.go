package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesByCode(t *testing.T) {
	err := NewError(ErrorCodeSessionNotFound, "1077", "сессия %s не найдена", "1077")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NotErrorIs(t, err, ErrNotSupported)
	assert.Contains(t, err.Error(), "SessionNotFound")
	assert.Contains(t, err.Error(), "1077")

	wrapped := fmt.Errorf("accept: %w", err)
	assert.ErrorIs(t, wrapped, ErrSessionNotFound)
	assert.Equal(t, ErrorCodeSessionNotFound, CodeOf(wrapped))
	assert.Equal(t, ErrorCode(0), CodeOf(errors.New("plain")))
}

func TestErrorCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewError(ErrorCodeTransportFailure, "", "ошибка транспорта").WithCause(cause).WithField("attempt", 2)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 2, err.Fields["attempt"])
}

func TestAsErrorKeepsCode(t *testing.T) {
	original := NewError(ErrorCodeMediaAcquisitionFailure, "", "нет микрофона")
	got := asError(original, ErrorCodeNegotiationFailure, "1077", "init")
	require.Same(t, original, got)
	assert.Equal(t, "1077", got.SessionID)

	plain := asError(errors.New("boom"), ErrorCodeNegotiationFailure, "1077", "init")
	assert.Equal(t, ErrorCodeNegotiationFailure, plain.Code)
	assert.Equal(t, "init", plain.Message)
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "NoMatchingHandler", ErrorCodeNoMatchingHandler.String())
	assert.Equal(t, "TransportFailure", ErrorCodeTransportFailure.String())
	assert.Equal(t, "Unknown(99)", ErrorCode(99).String())
}
