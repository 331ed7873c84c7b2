package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go-pos-register/internal/errs"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// MySQL server error numbers that mean "could not get the lock in time".
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// WithTx runs fn inside one transaction. The whole transaction, including the
// wait for a pooled connection and every row lock, is bounded by lockTimeout.
// Errors from the errs taxonomy pass through untouched; lock waits become
// LockTimeoutError and anything else TransactionFailedError. Either way the
// transaction has been rolled back.
func WithTx(ctx context.Context, db *gorm.DB, op string, lockTimeout time.Duration, fn func(tx *gorm.DB) error) error {
	if lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, lockTimeout)
		defer cancel()
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lockTimeout > 0 && tx.Dialector.Name() == "mysql" {
			secs := int(math.Ceil(lockTimeout.Seconds()))
			stmt := fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(tx)
	})
	return Classify(op, err)
}

// Classify maps a storage error onto the errs taxonomy.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errs.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.LockTimeoutError{Op: op, Err: err}
	}
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == mysqlLockWaitTimeout || myErr.Number == mysqlDeadlock) {
		return &errs.LockTimeoutError{Op: op, Err: err}
	}
	return &errs.TransactionFailedError{Op: op, Err: err}
}
