// Package ledger persists the mapping from legacy ids to target keys, together
// with the outcome of every migration attempt.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbsmedya/gomigrator/internal/logger"
	"github.com/dbsmedya/gomigrator/internal/sqlutil"
	"github.com/dbsmedya/gomigrator/internal/types"
)

// Record is one ledger row. A record is migrated iff TargetKey is set and
// skipped iff TargetKey is unset and SkipReason is set. A migrated record
// may carry a SkipReason when its handshake could not be applied.
type Record struct {
	LegacyID   string
	Type       types.EntityType
	TargetKey  sql.NullInt64
	CreateTime time.Time
	SkipReason sql.NullString
}

// Migrated reports whether the record carries a target key.
func (r Record) Migrated() bool {
	return r.TargetKey.Valid
}

// Cursor is a keyset position in (create_time, legacy_id) order.
type Cursor struct {
	CreateTime int64 // epoch millis
	LegacyID   string
}

// CursorOf returns the cursor positioned on rec.
func CursorOf(rec types.SkippedRecord) *Cursor {
	return &Cursor{CreateTime: millis(rec.CreateTime), LegacyID: rec.LegacyID}
}

// Store is the ledger table. All writes are idempotent on (legacy_id, entity_type).
type Store struct {
	db      *sql.DB
	dialect sqlutil.Dialect
	table   string
	quoted  string
	logger  *logger.Logger
}

// NewStore creates a ledger store over table.
func NewStore(db *sql.DB, dialect sqlutil.Dialect, table string, log *logger.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	quoted, err := sqlutil.QuoteIdentifierSafe(table)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger table: %w", err)
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &Store{
		db:      db,
		dialect: dialect,
		table:   table,
		quoted:  quoted,
		logger:  log,
	}, nil
}

// Table returns the unquoted ledger table name.
func (s *Store) Table() string {
	return s.table
}

// Dialect returns the SQL dialect of the ledger database.
func (s *Store) Dialect() sqlutil.Dialect {
	return s.dialect
}

// DB returns the ledger database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// schemaStatements returns the idempotent DDL of the ledger table.
func (s *Store) schemaStatements() []string {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id %s,
    legacy_id VARCHAR(255) NOT NULL,
    entity_type VARCHAR(64) NOT NULL,
    target_key BIGINT NULL,
    create_time BIGINT NOT NULL DEFAULT 0,
    skip_reason VARCHAR(1024) NULL,
    CONSTRAINT %s UNIQUE (legacy_id, entity_type)`,
		s.quoted, s.dialect.AutoIncrementPK(), sqlutil.QuoteIdentifier("uk_"+s.table+"_legacy"))

	index := "idx_" + s.table + "_type_time"
	if s.dialect == sqlutil.SQLite {
		return []string{
			create + "\n)",
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (entity_type, create_time, legacy_id)",
				sqlutil.QuoteIdentifier(index), s.quoted),
		}
	}
	return []string{
		create + fmt.Sprintf(",\n    INDEX %s (entity_type, create_time, legacy_id)\n)", sqlutil.QuoteIdentifier(index)) +
			s.dialect.TableOptions(),
	}
}

// InitializeSchema creates the ledger table if it doesn't exist.
// This method is idempotent and safe to call on every startup.
func (s *Store) InitializeSchema(ctx context.Context) error {
	s.logger.Debugw("Initializing ledger schema", "table", s.table, "dialect", s.dialect)

	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create ledger table %s: %w", s.table, err)
		}
	}
	return nil
}

// Exists reports whether any row exists for the legacy id and type.
func (s *Store) Exists(ctx context.Context, legacyID string, t types.EntityType) (bool, error) {
	return s.count(ctx, "legacy_id = ? AND entity_type = ?", legacyID, t)
}

// HasTargetKey reports whether the legacy id was migrated.
func (s *Store) HasTargetKey(ctx context.Context, legacyID string, t types.EntityType) (bool, error) {
	return s.count(ctx, "legacy_id = ? AND entity_type = ? AND target_key IS NOT NULL", legacyID, t)
}

func (s *Store) count(ctx context.Context, where string, args ...interface{}) (bool, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + s.quoted + " WHERE " + where
	if err := s.db.QueryRowContext(ctx, query, normalize(args)...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query ledger: %w", err)
	}
	return n > 0, nil
}

// InsertMigrated records a migrated entity. createTime is the legacy record's
// own timestamp. Inserting an existing (legacy id, type) is a no-op.
func (s *Store) InsertMigrated(ctx context.Context, legacyID string, t types.EntityType, targetKey int64, createTime time.Time) error {
	query := s.dialect.InsertIgnore() + " " + s.quoted +
		" (legacy_id, entity_type, target_key, create_time, skip_reason) VALUES (?, ?, ?, ?, NULL)"
	if _, err := s.db.ExecContext(ctx, query, legacyID, string(t), targetKey, millis(createTime)); err != nil {
		return fmt.Errorf("failed to insert migrated %s %s: %w", t, legacyID, err)
	}
	return nil
}

// InsertSkipped records a skipped entity with its reason. Inserting an
// existing (legacy id, type) is a no-op.
func (s *Store) InsertSkipped(ctx context.Context, legacyID string, t types.EntityType, createTime time.Time, reason string) error {
	query := s.dialect.InsertIgnore() + " " + s.quoted +
		" (legacy_id, entity_type, target_key, create_time, skip_reason) VALUES (?, ?, NULL, ?, ?)"
	if _, err := s.db.ExecContext(ctx, query, legacyID, string(t), millis(createTime), reason); err != nil {
		return fmt.Errorf("failed to insert skipped %s %s: %w", t, legacyID, err)
	}
	return nil
}

// Promote turns a skipped row into a migrated one in place. It returns false
// when there was no skipped row to promote.
func (s *Store) Promote(ctx context.Context, legacyID string, t types.EntityType, targetKey int64) (bool, error) {
	query := "UPDATE " + s.quoted +
		" SET target_key = ?, skip_reason = NULL WHERE legacy_id = ? AND entity_type = ? AND target_key IS NULL"
	res, err := s.db.ExecContext(ctx, query, targetKey, legacyID, string(t))
	if err != nil {
		return false, fmt.Errorf("failed to promote %s %s: %w", t, legacyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read promote result: %w", err)
	}
	return n == 1, nil
}

// UpdateSkipReason replaces the reason of a row that is still skipped.
func (s *Store) UpdateSkipReason(ctx context.Context, legacyID string, t types.EntityType, reason string) error {
	query := "UPDATE " + s.quoted +
		" SET skip_reason = ? WHERE legacy_id = ? AND entity_type = ? AND target_key IS NULL"
	if _, err := s.db.ExecContext(ctx, query, reason, legacyID, string(t)); err != nil {
		return fmt.Errorf("failed to update skip reason of %s %s: %w", t, legacyID, err)
	}
	return nil
}

// RecordIncomplete stores reason on a migrated row whose follow-up step
// could not complete. The row stays migrated and keeps its target key. It
// returns false when there was no migrated row.
func (s *Store) RecordIncomplete(ctx context.Context, legacyID string, t types.EntityType, reason string) (bool, error) {
	query := "UPDATE " + s.quoted +
		" SET skip_reason = ? WHERE legacy_id = ? AND entity_type = ? AND target_key IS NOT NULL"
	res, err := s.db.ExecContext(ctx, query, reason, legacyID, string(t))
	if err != nil {
		return false, fmt.Errorf("failed to record incomplete %s %s: %w", t, legacyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return n == 1, nil
}

// FindLatestCreateTime returns the high-water mark of a type: the newest
// legacy create time recorded, migrated or skipped.
func (s *Store) FindLatestCreateTime(ctx context.Context, t types.EntityType) (time.Time, bool, error) {
	var latest sql.NullInt64
	query := "SELECT MAX(create_time) FROM " + s.quoted + " WHERE entity_type = ?"
	if err := s.db.QueryRowContext(ctx, query, string(t)).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to find latest create time of %s: %w", t, err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return types.MillisToTime(latest.Int64), true, nil
}

// FindTargetKey returns the target key of a migrated legacy id.
func (s *Store) FindTargetKey(ctx context.Context, legacyID string, t types.EntityType) (int64, bool, error) {
	var key sql.NullInt64
	query := "SELECT target_key FROM " + s.quoted + " WHERE legacy_id = ? AND entity_type = ?"
	err := s.db.QueryRowContext(ctx, query, legacyID, string(t)).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find target key of %s %s: %w", t, legacyID, err)
	}
	return key.Int64, key.Valid, nil
}

// Get returns the full row of a legacy id.
func (s *Store) Get(ctx context.Context, legacyID string, t types.EntityType) (*Record, error) {
	rec := Record{LegacyID: legacyID, Type: t}
	var created int64
	query := "SELECT target_key, create_time, skip_reason FROM " + s.quoted + " WHERE legacy_id = ? AND entity_type = ?"
	err := s.db.QueryRowContext(ctx, query, legacyID, string(t)).Scan(&rec.TargetKey, &created, &rec.SkipReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger row of %s %s: %w", t, legacyID, err)
	}
	rec.CreateTime = types.MillisToTime(created)
	return &rec, nil
}

// ListSkipped returns the legacy ids of all skipped rows of a type in
// (create_time, legacy_id) order.
func (s *Store) ListSkipped(ctx context.Context, t types.EntityType) ([]string, error) {
	records, err := s.ListSkippedRecords(ctx, t, nil, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.LegacyID
	}
	return ids, nil
}

// ListSkippedRecords returns skipped rows after the cursor (nil for the
// start) in (create_time, legacy_id) order. limit <= 0 returns all rows.
//
// Keyset paging keeps the walk stable while rows are promoted out of the
// skipped set.
func (s *Store) ListSkippedRecords(ctx context.Context, t types.EntityType, after *Cursor, limit int) ([]types.SkippedRecord, error) {
	var b strings.Builder
	args := []interface{}{string(t)}

	b.WriteString("SELECT legacy_id, create_time, skip_reason FROM ")
	b.WriteString(s.quoted)
	b.WriteString(" WHERE entity_type = ? AND target_key IS NULL")
	if after != nil {
		b.WriteString(" AND (create_time > ? OR (create_time = ? AND legacy_id > ?))")
		args = append(args, after.CreateTime, after.CreateTime, after.LegacyID)
	}
	b.WriteString(" ORDER BY create_time, legacy_id")
	if limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list skipped %s: %w", t, err)
	}
	defer rows.Close()

	var records []types.SkippedRecord
	for rows.Next() {
		var (
			rec     = types.SkippedRecord{Type: t}
			created int64
			reason  sql.NullString
		)
		if err := rows.Scan(&rec.LegacyID, &created, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan skipped %s: %w", t, err)
		}
		rec.CreateTime = types.MillisToTime(created)
		rec.Reason = reason.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating skipped %s: %w", t, err)
	}
	return records, nil
}

// CountSkipped returns the number of skipped rows of a type.
func (s *Store) CountSkipped(ctx context.Context, t types.EntityType) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + s.quoted + " WHERE entity_type = ? AND target_key IS NULL"
	if err := s.db.QueryRowContext(ctx, query, string(t)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count skipped %s: %w", t, err)
	}
	return n, nil
}

// Stats returns migrated and skipped counts of a type.
func (s *Store) Stats(ctx context.Context, t types.EntityType) (types.TypeStats, error) {
	stats := types.TypeStats{Type: t}
	query := "SELECT " +
		"COALESCE(SUM(CASE WHEN target_key IS NOT NULL THEN 1 ELSE 0 END), 0), " +
		"COALESCE(SUM(CASE WHEN target_key IS NULL THEN 1 ELSE 0 END), 0) " +
		"FROM " + s.quoted + " WHERE entity_type = ?"
	if err := s.db.QueryRowContext(ctx, query, string(t)).Scan(&stats.Migrated, &stats.Skipped); err != nil {
		return stats, fmt.Errorf("failed to read ledger stats of %s: %w", t, err)
	}
	return stats, nil
}

// ListMigratedKeys returns target keys of migrated rows greater than afterKey,
// ascending. It drives target store verification.
func (s *Store) ListMigratedKeys(ctx context.Context, t types.EntityType, afterKey int64, limit int) ([]int64, error) {
	query := "SELECT target_key FROM " + s.quoted +
		" WHERE entity_type = ? AND target_key IS NOT NULL AND target_key > ? ORDER BY target_key LIMIT ?"
	rows, err := s.db.QueryContext(ctx, query, string(t), afterKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrated %s: %w", t, err)
	}
	defer rows.Close()

	var keys []int64
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan migrated %s: %w", t, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrated %s: %w", t, err)
	}
	return keys, nil
}

// Reset deletes ledger rows of the given types, or every row when no type
// is given. It backs the explicit cleanup command only.
func (s *Store) Reset(ctx context.Context, ts ...types.EntityType) (int64, error) {
	query := "DELETE FROM " + s.quoted
	args := make([]interface{}, 0, len(ts))
	if len(ts) > 0 {
		placeholders := make([]string, len(ts))
		for i, t := range ts {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += " WHERE entity_type IN (" + strings.Join(placeholders, ", ") + ")"
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reset result: %w", err)
	}
	s.logger.Infow("Ledger reset", "rows", n, "types", ts)
	return n, nil
}

// millis maps a legacy timestamp to the stored representation. Unknown
// timestamps sort first.
func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return types.TimeToMillis(t)
}

// normalize converts EntityType arguments to plain strings for the driver.
func normalize(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		if t, ok := a.(types.EntityType); ok {
			out[i] = string(t)
		} else {
			out[i] = a
		}
	}
	return out
}
