package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dbsmedya/gomigrator/internal/sqlutil"
)

// LockTable holds one row per lock taken through TableLock.
const LockTable = "migration_lock"

const createLockTableSQL = `CREATE TABLE IF NOT EXISTS ` + "`" + LockTable + "`" + ` (
    lock_name VARCHAR(255) NOT NULL PRIMARY KEY,
    holder VARCHAR(64) NOT NULL,
    acquired_at BIGINT NOT NULL
)`

// TableLock is a row lock for backends without named locks (SQLite).
// The row survives a crash, so a stale lock has to be cleared with ForceRelease.
type TableLock struct {
	db       *sql.DB
	dialect  sqlutil.Dialect
	lockName string
	holder   string
	held     bool
}

// NewTableLock creates a row lock named lockName.
func NewTableLock(db *sql.DB, dialect sqlutil.Dialect, lockName string) *TableLock {
	return &TableLock{
		db:       db,
		dialect:  dialect,
		lockName: lockName,
		holder:   uuid.NewString(),
	}
}

// Acquire implements Locker.
func (t *TableLock) Acquire(ctx context.Context) error {
	if t.held {
		return nil
	}

	if _, err := t.db.ExecContext(ctx, createLockTableSQL); err != nil {
		return fmt.Errorf("failed to create lock table: %w", err)
	}

	query := t.dialect.InsertIgnore() + " `" + LockTable + "` (lock_name, holder, acquired_at) VALUES (?, ?, ?)"
	res, err := t.db.ExecContext(ctx, query, t.lockName, t.holder, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert lock row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read lock insert result: %w", err)
	}
	if n == 1 {
		t.held = true
		return nil
	}

	var holder string
	var acquiredAt int64
	err = t.db.QueryRowContext(ctx,
		"SELECT holder, acquired_at FROM `"+LockTable+"` WHERE lock_name = ?", t.lockName).Scan(&holder, &acquiredAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read lock holder: %w", err)
	}
	return fmt.Errorf("%w: lock %q is held by %s since %s", ErrLockTimeout, t.lockName, holder,
		time.UnixMilli(acquiredAt).UTC().Format(time.RFC3339))
}

// Release implements Locker. Only the row written by this holder is removed.
func (t *TableLock) Release(ctx context.Context) error {
	if !t.held {
		return nil
	}
	_, err := t.db.ExecContext(ctx,
		"DELETE FROM `"+LockTable+"` WHERE lock_name = ? AND holder = ?", t.lockName, t.holder)
	if err != nil {
		return fmt.Errorf("failed to delete lock row: %w", err)
	}
	t.held = false
	return nil
}

// ForceRelease removes the lock row regardless of its holder.
func (t *TableLock) ForceRelease(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, createLockTableSQL); err != nil {
		return fmt.Errorf("failed to create lock table: %w", err)
	}
	if _, err := t.db.ExecContext(ctx, "DELETE FROM `"+LockTable+"` WHERE lock_name = ?", t.lockName); err != nil {
		return fmt.Errorf("failed to delete lock row: %w", err)
	}
	t.held = false
	return nil
}

// Name implements Locker.
func (t *TableLock) Name() string {
	return t.lockName
}

// IsHeld returns true if this lock is currently held by this instance.
func (t *TableLock) IsHeld() bool {
	return t.held
}

// NewLedgerLock returns the lock suited to the ledger backend.
func NewLedgerLock(db *sql.DB, dialect sqlutil.Dialect, table string) Locker {
	name := GenerateLedgerLockName(table)
	if dialect == sqlutil.SQLite {
		return NewTableLock(db, dialect, name)
	}
	return NewAdvisoryLock(db, name)
}
