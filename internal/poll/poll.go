// Package poll implements bounded polling for eventually visible state.
//
// A submitted transaction's effects only appear after the network commits a
// block and the client syncs. Until runs a check at a fixed interval until it
// succeeds, the attempts run out, or the context is done.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/notekeeper/internal/ledger"
)

// Defaults mirror the behavior of waiting for a devnet block with some slack.
const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxAttempts = 20
)

// Policy bounds a poll.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPolicy returns the default policy.
func DefaultPolicy() Policy {
	return Policy{Interval: DefaultInterval, MaxAttempts: DefaultMaxAttempts}
}

func (p Policy) normalized() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Check is one poll attempt. It returns true once the awaited condition holds.
// A non-nil error aborts the poll unless it is retryable.
type Check func(ctx context.Context) (bool, error)

// Progress observes each unsuccessful attempt. err is the retryable error the
// attempt hit, if any.
type Progress func(attempt int, err error)

// Until runs check immediately and then once per interval.
//
// It returns nil as soon as check reports true, the check's error if it is not
// retryable, the context error if ctx is done, and a POLL_EXHAUSTED error
// after MaxAttempts unsuccessful attempts.
func Until(ctx context.Context, policy Policy, check Check, progress Progress) error {
	policy = policy.normalized()

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 1; ; attempt++ {
		ok, err := check(ctx)
		switch {
		case err == nil && ok:
			return nil
		case err != nil && !retryable(err):
			return err
		}
		lastErr = err
		if progress != nil {
			progress(attempt, err)
		}
		if attempt >= policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	exhausted := ledger.Errorf(ledger.ErrCodePollExhausted, "condition not met after %d attempts", policy.MaxAttempts)
	exhausted.Err = lastErr
	return exhausted
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return ledger.IsRetryable(err)
}
