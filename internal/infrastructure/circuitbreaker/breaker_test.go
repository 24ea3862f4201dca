package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecuteWithResult(t *testing.T) {
	cb := New(Settings{Name: "test", FailureThreshold: 5, Timeout: time.Minute}, zap.NewNop())

	got, err := ExecuteWithResult(cb, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	boom := errors.New("boom")
	_, err = ExecuteWithResult(cb, func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsCircuitOpen(err))
}

func TestIsCircuitOpenAfterThreshold(t *testing.T) {
	cb := New(Settings{Name: "test", FailureThreshold: 1, Timeout: time.Minute}, zap.NewNop())

	boom := errors.New("boom")
	_, err := ExecuteWithResult(cb, func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	// The breaker opened; the next attempt is refused without running fn.
	ran := false
	_, err = ExecuteWithResult(cb, func() (int, error) { ran = true; return 0, nil })
	assert.True(t, IsCircuitOpen(err))
	assert.False(t, ran)
}
