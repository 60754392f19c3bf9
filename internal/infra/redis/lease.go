package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/mint-oracle/internal/core/domain"
	"github.com/vietddude/mint-oracle/internal/indexing/metrics"
)

// DefaultLeaseTTL is used when no TTL is configured.
const DefaultLeaseTTL = 30 * time.Second

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// LeaseKey is the lease key for one oracle contract.
func LeaseKey(contract common.Address) string {
	return "oracle:lease:" + strings.ToLower(contract.Hex())
}

// Lease makes sure only one oracle instance consumes a contract's requests.
// The value stored under the key is a random token, so an instance can only
// extend or release a lease it still owns.
type Lease struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
	held  atomic.Bool
	log   *slog.Logger
}

// NewLease creates a lease handle for key. Nothing is acquired yet.
func (c *Client) NewLease(key string, ttl time.Duration, log *slog.Logger) *Lease {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Lease{
		rdb:   c.rdb,
		key:   key,
		token: uuid.NewString(),
		ttl:   ttl,
		log:   log.With("component", "lease", "key", key),
	}
}

// Held reports whether the last acquire or refresh succeeded.
func (l *Lease) Held() bool { return l.held.Load() }

// TTL returns the lease duration.
func (l *Lease) TTL() time.Duration { return l.ttl }

// Acquire tries once to take the lease.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	l.setHeld(ok)
	return ok, nil
}

// Refresh extends the lease. It returns domain.ErrLeaseLost when the key
// expired or belongs to another instance.
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lease: %w", err)
	}
	if n == 0 {
		l.setHeld(false)
		return domain.ErrLeaseLost
	}
	l.setHeld(true)
	return nil
}

// Release drops the lease if this instance still owns it.
func (l *Lease) Release(ctx context.Context) error {
	defer l.setHeld(false)
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Wait blocks until the lease is acquired or ctx is done, retrying every retry.
func (l *Lease) Wait(ctx context.Context, retry time.Duration) error {
	if retry <= 0 {
		retry = l.ttl / 3
	}
	for {
		ok, err := l.Acquire(ctx)
		if err != nil {
			l.log.Warn("Lease acquire failed", "error", err)
		}
		if ok {
			l.log.Info("Lease acquired", "ttl", l.ttl)
			return nil
		}
		l.log.Debug("Lease held elsewhere, standing by", "retry", retry)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

// Keep refreshes the lease every TTL/3 until ctx is done or the lease is
// lost. Transient Redis errors are tolerated until a full TTL passes without
// a successful refresh.
func (l *Lease) Keep(ctx context.Context) error {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	lastOK := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := l.Refresh(ctx)
		switch {
		case err == nil:
			lastOK = time.Now()
		case errors.Is(err, domain.ErrLeaseLost):
			l.log.Error("Lease lost to another instance")
			return err
		case ctx.Err() != nil:
			return nil
		default:
			l.log.Warn("Lease refresh failed", "error", err)
			if time.Since(lastOK) >= l.ttl {
				l.setHeld(false)
				return fmt.Errorf("%w: no refresh for %s: %v", domain.ErrLeaseLost, l.ttl, err)
			}
		}
	}
}

func (l *Lease) setHeld(v bool) {
	l.held.Store(v)
	if v {
		metrics.LeaseHeld.Set(1)
	} else {
		metrics.LeaseHeld.Set(0)
	}
}
