package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastPolicy(), nil, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	transientErr := errors.New("upstream 503")
	calls := 0

	result, err := Do(context.Background(), fastPolicy(), func(err error) bool { return true }, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, transientErr
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	transientErr := errors.New("timeout")
	calls := 0

	_, err := Do(context.Background(), fastPolicy(), func(err error) bool { return true }, func(ctx context.Context) (int, error) {
		calls++
		return 0, transientErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	// MaxRetries=2 なので合計3試行
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	permanentErr := errors.New("missing credential")
	calls := 0

	_, err := Do(context.Background(), fastPolicy(), func(err error) bool { return false }, func(ctx context.Context) (int, error) {
		calls++
		return 0, permanentErr
	})

	require.ErrorIs(t, err, permanentErr)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Do(ctx, fastPolicy(), func(err error) bool { return true }, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("boom")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDelay_ExponentialWithCap(t *testing.T) {
	p := Policy{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	// 400msは上限でクリップされる
	assert.Equal(t, 300*time.Millisecond, p.Delay(3))
}
