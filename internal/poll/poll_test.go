package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notekeeper/internal/ledger"
)

var fast = Policy{Interval: time.Millisecond, MaxAttempts: 5}

func TestUntil_SucceedsAfterSomeAttempts(t *testing.T) {
	calls := 0
	var seen []int
	err := Until(context.Background(), fast, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	}, func(attempt int, err error) {
		seen = append(seen, attempt)
		assert.NoError(t, err)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestUntil_ImmediateSuccessSkipsProgress(t *testing.T) {
	err := Until(context.Background(), fast, func(context.Context) (bool, error) {
		return true, nil
	}, func(int, error) {
		t.Fatal("progress must not be called")
	})
	assert.NoError(t, err)
}

func TestUntil_Exhausted(t *testing.T) {
	calls := 0
	err := Until(context.Background(), fast, func(context.Context) (bool, error) {
		calls++
		return false, nil
	}, nil)

	assert.True(t, ledger.IsCode(err, ledger.ErrCodePollExhausted), "got %v", err)
	assert.Equal(t, fast.MaxAttempts, calls)
}

func TestUntil_RetryableErrorsKeepPolling(t *testing.T) {
	transient := ledger.WrapRetryable(ledger.ErrCodeSync, errors.New("unavailable"), "fetch delta")
	calls := 0
	err := Until(context.Background(), fast, func(context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, transient
		}
		return true, nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntil_ExhaustedWrapsLastError(t *testing.T) {
	transient := ledger.WrapRetryable(ledger.ErrCodeSync, errors.New("unavailable"), "fetch delta")
	err := Until(context.Background(), fast, func(context.Context) (bool, error) {
		return false, transient
	}, nil)

	assert.True(t, ledger.IsCode(err, ledger.ErrCodePollExhausted))
	assert.True(t, ledger.IsCode(err, ledger.ErrCodeSync))
}

func TestUntil_FatalErrorStops(t *testing.T) {
	fatal := ledger.Errorf(ledger.ErrCodeStaleUpdate, "older nonce")
	calls := 0
	err := Until(context.Background(), fast, func(context.Context) (bool, error) {
		calls++
		return false, fatal
	}, nil)

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{Interval: time.Hour, MaxAttempts: 100}

	done := make(chan error, 1)
	go func() {
		done <- Until(ctx, policy, func(context.Context) (bool, error) { return false, nil }, nil)
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Until did not observe cancellation")
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := Policy{}.normalized()
	assert.Equal(t, DefaultPolicy(), p)
}
