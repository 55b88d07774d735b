package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrStoreUnavailable is returned once transient store failures exhaust the retry budget
var ErrStoreUnavailable = errors.New("store unavailable")

// Runner executes units of work against the store with lock timeouts and bounded retries
type Runner struct {
	db          *gorm.DB
	maxRetries  int
	retryDelay  time.Duration
	lockTimeout time.Duration
}

func NewRunner(db *gorm.DB, maxRetries int, retryDelay, lockTimeout time.Duration) *Runner {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Runner{
		db:          db,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		lockTimeout: lockTimeout,
	}
}

// DB returns the underlying handle for reads that need no transaction
func (r *Runner) DB() *gorm.DB {
	return r.db
}

// InTx runs fn in a single database transaction. Transient failures roll the
// transaction back and run fn again from scratch, so fn must not keep state
// between attempts.
func (r *Runner) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.retry(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if r.lockTimeout > 0 {
				// SET does not take bind parameters
				stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return fn(tx)
		})
	})
}

// Read runs a read-only query with the same retry policy as InTx
func (r *Runner) Read(ctx context.Context, fn func(db *gorm.DB) error) error {
	return r.retry(ctx, func() error {
		return fn(r.db.WithContext(ctx))
	})
}

func (r *Runner) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == r.maxRetries-1 {
			break
		}

		delay := r.retryDelay << attempt
		log.WithFields(log.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
			"error":   err,
		}).Warn("Transient store failure, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// IsTransient reports whether err is worth retrying: lock timeouts, deadlocks,
// serialization failures and lost connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"57014": // query_canceled (statement or lock timeout)
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}

	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
