package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/mint-oracle/internal/core/domain"
)

// codeError carries a JSON-RPC error code the way ethclient's errors do.
type codeError struct {
	code int
	msg  string
}

func (e codeError) Error() string  { return e.msg }
func (e codeError) ErrorCode() int { return e.code }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{codeError{-32600, "invalid request"}, ActionFatal},
		{codeError{-32601, "the method eth_foo does not exist/is not available"}, ActionFatal},
		{codeError{-32700, "parse error"}, ActionFatal},
		{fmt.Errorf("get chain id: %w", codeError{-32602, "invalid argument 0"}), ActionFatal},
		{codeError{-32000, "header not found"}, ActionRetry},
		{codeError{-32005, "limit exceeded"}, ActionRetry},
		{errors.New("Method not found -32601"), ActionRetry},
		{errors.New("execution reverted: nonce already processed"), ActionFatal},
		{errors.New("insufficient funds for gas * price + value"), ActionFatal},
		{fmt.Errorf("mint: %w", domain.ErrSubmissionReverted), ActionFatal},
		{fmt.Errorf("log 3: %w", domain.ErrDecoding), ActionFatal},
		{errors.New("429 Too Many Requests"), ActionRetry},
		{errors.New("connection reset by peer"), ActionRetry},
		{context.DeadlineExceeded, ActionRetry},
		{errors.New("500 Internal Server Error"), ActionRetry},
		{errors.New("nonce too low"), ActionRetry},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestIsReverted(t *testing.T) {
	assert.True(t, IsReverted(errors.New("execution reverted")))
	assert.True(t, IsReverted(fmt.Errorf("x: %w", domain.ErrSubmissionReverted)))
	assert.False(t, IsReverted(errors.New("timeout")))
	assert.False(t, IsReverted(nil))
}

func fastPolicy(attempts int) Policy {
	return Policy{
		Name:         "test",
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Timeout:      50 * time.Millisecond,
	}
}

func TestCaller_RetriesTransientThenSucceeds(t *testing.T) {
	c := NewCaller(Options{})
	calls := 0
	err := c.Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCaller_GivesUpAfterMaxAttempts(t *testing.T) {
	c := NewCaller(Options{})
	calls := 0
	err := c.Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
}

func TestCaller_FatalStopsImmediately(t *testing.T) {
	c := NewCaller(Options{})
	calls := 0
	err := c.Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return fmt.Errorf("mint: %w", domain.ErrSubmissionReverted)
	})
	require.ErrorIs(t, err, domain.ErrSubmissionReverted)
	assert.Equal(t, 1, calls)
}

func TestCaller_AttemptTimeoutIsRetried(t *testing.T) {
	c := NewCaller(Options{})
	calls := 0
	err := c.Do(context.Background(), fastPolicy(2), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPolicy_WithTimeoutBoundsAttempt(t *testing.T) {
	p := SubmitPolicy.WithTimeout(10 * time.Millisecond)
	assert.Equal(t, 2*time.Minute, SubmitPolicy.Timeout, "the shared policy must not change")
	p.MaxAttempts = 1

	var deadline time.Time
	err := NewCaller(Options{}).Do(context.Background(), p, func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.WithinDuration(t, time.Now(), deadline, time.Second)
}

func TestCaller_StopsWhenParentCancelled(t *testing.T) {
	c := NewCaller(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := c.Do(ctx, fastPolicy(5), func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCaller_RateLimited(t *testing.T) {
	c := NewCaller(Options{RateLimit: 1000})
	require.NotNil(t, c.limiter)
	require.NoError(t, c.Do(context.Background(), fastPolicy(1), func(ctx context.Context) error { return nil }))
}
