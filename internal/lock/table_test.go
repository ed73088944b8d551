package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gomigrator/internal/database"
	"github.com/dbsmedya/gomigrator/internal/sqlutil"
)

func TestTableLock_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	name := GenerateLedgerLockName("migration_ledger")
	first := NewTableLock(db, sqlutil.SQLite, name)
	second := NewTableLock(db, sqlutil.SQLite, name)

	require.NoError(t, first.Acquire(ctx))
	assert.True(t, first.IsHeld())

	err = second.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, second.IsHeld())

	// Releasing someone else's lock is a no-op.
	require.NoError(t, second.Release(ctx))

	require.NoError(t, first.Release(ctx))
	require.NoError(t, second.Acquire(ctx))
	require.NoError(t, second.Release(ctx))
}

func TestTableLock_ForceRelease(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	stale := NewTableLock(db, sqlutil.SQLite, "gomigrator:ledger:l")
	require.NoError(t, stale.Acquire(ctx))

	fresh := NewTableLock(db, sqlutil.SQLite, "gomigrator:ledger:l")
	require.ErrorIs(t, fresh.Acquire(ctx), ErrLockTimeout)

	require.NoError(t, fresh.ForceRelease(ctx))
	require.NoError(t, fresh.Acquire(ctx))
	assert.True(t, fresh.IsHeld())
}

func TestNewLedgerLock(t *testing.T) {
	l := NewLedgerLock(nil, sqlutil.SQLite, "ledger")
	assert.IsType(t, &TableLock{}, l)
	assert.Equal(t, "gomigrator:ledger:ledger", l.Name())

	l = NewLedgerLock(nil, sqlutil.MySQL, "ledger")
	assert.IsType(t, &AdvisoryLock{}, l)
}
