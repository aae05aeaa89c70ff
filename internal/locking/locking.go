// Package locking serializes reconciliation runs per company so two runs can
// never pair the same ledger entry twice.
package locking

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ReleaseFunc gives a lock back. Calling it more than once is harmless.
type ReleaseFunc func()

// Locker grants exclusive per-company access without waiting
type Locker interface {
	// Acquire returns a CodeRunInProgress error when the company is already locked.
	// Work done under the lock must use the returned context: it is cancelled
	// with ErrLockLost as the cause if the lock cannot be kept.
	Acquire(ctx context.Context, companyID string) (context.Context, ReleaseFunc, error)
}

func busy(companyID string, cause error) error {
	return errors.ReconciliationError(errors.CodeRunInProgress, "acquire lock", cause).
		WithContext("company_id", companyID)
}

var (
	// ErrLocked is the cause carried by busy errors from LocalLocker
	ErrLocked = stderrors.New("company is locked by another run")
	// ErrLockLost is the cancellation cause of a run whose lock expired under it
	ErrLockLost = stderrors.New("company lock lost")
)

// LocalLocker locks within the current process only
type LocalLocker struct {
	mu     sync.Mutex
	locked map[string]struct{}
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locked: make(map[string]struct{})}
}

// Acquire implements Locker
func (l *LocalLocker) Acquire(ctx context.Context, companyID string) (context.Context, ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.locked[companyID]; held {
		return nil, nil, busy(companyID, ErrLocked)
	}
	l.locked[companyID] = struct{}{}

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.locked, companyID)
			l.mu.Unlock()
		})
	}, nil
}

// RedisLocker locks across processes with redislock. While held, the lock
// is refreshed every half TTL so long runs keep it.
type RedisLocker struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	logger logger.Logger
}

// NewRedisLocker creates a locker over an existing redis client
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		prefix: "reconcile",
		ttl:    ttl,
		logger: logger.GetGlobalLogger().WithComponent("locking"),
	}
}

// DialRedis connects to addr and verifies the connection
func DialRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.NetworkError(errors.CodeConnectionFailed, addr, err)
	}
	return rdb, nil
}

// Key returns the redis key used for a company
func (r *RedisLocker) Key(companyID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, companyID)
}

// Acquire implements Locker
func (r *RedisLocker) Acquire(ctx context.Context, companyID string) (context.Context, ReleaseFunc, error) {
	lock, err := r.client.Obtain(ctx, r.Key(companyID), r.ttl, nil)
	if err != nil {
		return nil, nil, obtainFailure(companyID, err)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	refresh := func(ctx context.Context) error { return lock.Refresh(ctx, r.ttl, nil) }
	go r.keepAlive(refresh, companyID, cancel, stop, done)

	var once sync.Once
	return runCtx, func() {
		once.Do(func() {
			close(stop)
			<-done
			cancel(nil)
			if err := lock.Release(context.Background()); err != nil && err != redislock.ErrLockNotHeld {
				r.logger.WithError(err).WithCompany(companyID).Warn("failed to release lock")
			}
		})
	}, nil
}

// keepAlive refreshes the lock every half TTL until stop is closed. A failed
// refresh means another run may take the company, so the run is cancelled.
func (r *RedisLocker) keepAlive(refresh func(context.Context) error, companyID string, cancel context.CancelCauseFunc, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := refresh(context.Background()); err != nil {
				r.logger.WithError(err).WithCompany(companyID).Error("failed to refresh lock, cancelling run")
				cancel(lost(companyID, err))
				return
			}
		}
	}
}

func obtainFailure(companyID string, err error) error {
	switch {
	case stderrors.Is(err, redislock.ErrNotObtained):
		return busy(companyID, err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NetworkError(errors.CodeTimeout, "redis", err).
			WithContext("company_id", companyID)
	default:
		return errors.NetworkError(errors.CodeServiceUnavailable, "redis", err).
			WithContext("company_id", companyID)
	}
}

func lost(companyID string, cause error) error {
	return errors.ReconciliationError(errors.CodeProcessingError, "refresh lock", fmt.Errorf("%w: %v", ErrLockLost, cause)).
		WithContext("company_id", companyID)
}
