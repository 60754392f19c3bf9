package rpc

import (
	"context"
	"errors"
	"strings"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/sethvargo/go-retry"

	"github.com/vietddude/mint-oracle/internal/core/domain"
)

// Policy defines retry behavior for one category of call.
type Policy struct {
	Name         string
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Timeout bounds a single attempt. 0 means no bound beyond the caller's context.
	Timeout time.Duration
}

// Default policies per call category.
var (
	ReadPolicy = Policy{
		Name:         "read",
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Timeout:      10 * time.Second,
	}

	FetchLogsPolicy = Policy{
		Name:         "fetch_logs",
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Timeout:      30 * time.Second,
	}

	// Submit attempts include waiting for the receipt.
	SubmitPolicy = Policy{
		Name:         "submit",
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Timeout:      2 * time.Minute,
	}
)

// WithTimeout returns a copy of p with a different per-attempt timeout.
func (p Policy) WithTimeout(d time.Duration) Policy {
	p.Timeout = d
	return p
}

func (p Policy) backoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	initial := p.InitialDelay
	if initial <= 0 {
		initial = time.Millisecond
	}
	b := retry.NewExponential(initial)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

func (a ErrorAction) String() string {
	if a == ActionFatal {
		return "fatal"
	}
	return "retry"
}

// ClassifyError determines the action for a given error.
// Anything not known to be permanent is retried.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry
	}
	if errors.Is(err, domain.ErrSubmissionReverted) ||
		errors.Is(err, domain.ErrDecoding) ||
		errors.Is(err, context.Canceled) {
		return ActionFatal
	}

	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		// Parse error, invalid request, method not found, invalid params.
		case -32700, -32600, -32601, -32602:
			return ActionFatal
		}
	}

	sLower := strings.ToLower(err.Error())
	if strings.Contains(sLower, "execution reverted") ||
		strings.Contains(sLower, "insufficient funds") ||
		strings.Contains(sLower, "invalid sender") {
		return ActionFatal
	}

	return ActionRetry
}

// IsReverted reports whether err means the contract refused the call.
func IsReverted(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, domain.ErrSubmissionReverted) ||
		strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
