package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
)

type txKey struct{}

// Transactor runs units of work inside a single writer transaction.
// Repositories pick the transaction up from the context via Conn.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type bunTransactor struct {
	db         *bun.DB
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewTransactor builds a Transactor on the writer pool.
func NewTransactor(conns *Connections, cfg config.Config, logger *zap.Logger) Transactor {
	return &bunTransactor{
		db:         conns.Writer,
		maxRetries: cfg.Database.TxMaxRetries,
		backoff:    50 * time.Millisecond,
		logger:     logger,
	}
}

// InTx commits when fn returns nil and rolls back otherwise. Serialization
// failures and deadlocks are retried from scratch up to maxRetries times.
// Nested calls reuse the outer transaction.
func (t *bunTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			wait := t.backoff * time.Duration(1<<(attempt-1))
			t.logger.Warn("retrying transaction",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err = t.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			return fn(context.WithValue(ctx, txKey{}, tx))
		})
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("transaction failed after %d retries: %w", t.maxRetries, err)
}

// Conn returns the transaction bound to ctx, or fallback when none is.
func Conn(ctx context.Context, fallback bun.IDB) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return fallback
}

// InTransaction reports whether ctx carries a transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bun.Tx)
	return ok
}

// postgres SQLSTATE codes that are safe to retry
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
)

// mysql error numbers that are safe to retry
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// IsRetryable classifies driver errors that indicate lost lock races.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
			return true
		}
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}

	return false
}

// IsUniqueViolation reports duplicate key failures on either dialect.
func IsUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
