package database

import (
	"database/sql"
	"strings"
	"time"
)

// RetryPolicy bounds retries around a transactional write. Only transient
// lock/deadlock conflicts are retried; every other error propagates
// immediately.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier int
}

// DefaultRetryPolicy matches the engine-wide persistence retry contract:
// up to 3 attempts with exponential backoff starting at 50ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BackoffBase:       50 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

// IsTransientConflict reports whether err is a transient SQLite lock or
// busy condition worth retrying.
func IsTransientConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "busy")
}

// WithRetry executes fn, retrying on transient conflicts per the policy.
// The last error is returned once attempts are exhausted.
func (p RetryPolicy) WithRetry(fn func() error) error {
	backoff := p.BackoffBase
	var err error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransientConflict(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		time.Sleep(backoff)
		backoff *= time.Duration(p.BackoffMultiplier)
	}

	return err
}

// TransactionWithRetry runs fn inside a transaction via WithTransaction,
// wrapped by the retry policy. Each attempt gets a fresh transaction.
func (p RetryPolicy) TransactionWithRetry(db *sql.DB, fn func(*sql.Tx) error) error {
	return p.WithRetry(func() error {
		return WithTransaction(db, fn)
	})
}
