package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/logger"
	"github.com/dbsmedya/gomigrator/internal/target"
	"github.com/dbsmedya/gomigrator/internal/types"
)

// PreflightError represents a preflight check failure.
type PreflightError struct {
	Check   string
	Message string
	Tables  []string
}

func (e *PreflightError) Error() string {
	if len(e.Tables) > 0 {
		return fmt.Sprintf("%s: %s (tables: %v)", e.Check, e.Message, e.Tables)
	}
	return fmt.Sprintf("%s: %s", e.Check, e.Message)
}

// Schema is one database checked by preflight.
type Schema struct {
	DB       *sql.DB
	Database string
}

// PreflightChecker verifies that the legacy and target schemas hold the
// tables the selected entity types read and write.
type PreflightChecker struct {
	legacy Schema
	target Schema
	logger *logger.Logger
}

// NewPreflightChecker creates a new preflight checker.
func NewPreflightChecker(legacySchema, targetSchema Schema, log *logger.Logger) (*PreflightChecker, error) {
	if legacySchema.DB == nil {
		return nil, fmt.Errorf("legacy database is nil")
	}
	if targetSchema.DB == nil {
		return nil, fmt.Errorf("target database is nil")
	}
	if legacySchema.Database == "" || targetSchema.Database == "" {
		return nil, fmt.Errorf("legacy and target database names are required")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &PreflightChecker{legacy: legacySchema, target: targetSchema, logger: log}, nil
}

// RunAllChecks runs all preflight checks for the given types.
func (p *PreflightChecker) RunAllChecks(ctx context.Context, ts []types.EntityType) error {
	p.logger.Info("Running preflight checks...")

	var legacyTables, targetTables []string
	seen := make(map[string]bool)
	for _, t := range ts {
		for _, name := range legacy.Tables(t) {
			if !seen[name] {
				seen[name] = true
				legacyTables = append(legacyTables, name)
			}
		}
		if tbl, ok := target.TableFor(t); ok {
			targetTables = append(targetTables, tbl.Name)
		}
	}

	if err := p.ValidateTablesExist(ctx, "LEGACY_TABLE_CHECK", p.legacy, legacyTables); err != nil {
		return err
	}
	if err := p.ValidateTablesExist(ctx, "TARGET_TABLE_CHECK", p.target, targetTables); err != nil {
		return err
	}
	if err := p.ValidateStorageEngine(ctx, p.target, targetTables); err != nil {
		return err
	}

	p.logger.Info("All preflight checks PASSED")
	return nil
}

// ValidateTablesExist checks that every table exists in the schema.
func (p *PreflightChecker) ValidateTablesExist(ctx context.Context, check string, schema Schema, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	p.logger.Debugf("Checking table existence in %s...", schema.Database)

	const query = `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME IN (?)`

	rows, err := schema.DB.QueryContext(ctx, expandIn(query, len(tables)), inArgs(schema.Database, tables)...)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		// Legacy schemas created on case-insensitive file systems report lower case names.
		existing[strings.ToUpper(name)] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for _, table := range tables {
		if !existing[strings.ToUpper(table)] {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return &PreflightError{
			Check:   check,
			Message: fmt.Sprintf("Tables not found in database %s", schema.Database),
			Tables:  missing,
		}
	}

	p.logger.Debugf("Table existence check PASSED (%d tables)", len(tables))
	return nil
}

// ValidateStorageEngine checks that target tables use InnoDB.
func (p *PreflightChecker) ValidateStorageEngine(ctx context.Context, schema Schema, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	p.logger.Debug("Checking storage engines...")

	const query = `
		SELECT TABLE_NAME, ENGINE
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME IN (?)`

	rows, err := schema.DB.QueryContext(ctx, expandIn(query, len(tables)), inArgs(schema.Database, tables)...)
	if err != nil {
		return fmt.Errorf("failed to query storage engines: %w", err)
	}
	defer rows.Close()

	var nonInnoDB []string
	for rows.Next() {
		var table string
		var engine sql.NullString
		if err := rows.Scan(&table, &engine); err != nil {
			return err
		}
		if engine.String != "InnoDB" {
			nonInnoDB = append(nonInnoDB, fmt.Sprintf("%s(%s)", table, engine.String))
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(nonInnoDB) > 0 {
		return &PreflightError{
			Check:   "STORAGE_ENGINE_CHECK",
			Message: "Only InnoDB target tables are supported. Use ALTER TABLE to convert",
			Tables:  nonInnoDB,
		}
	}

	p.logger.Debug("Storage engine check PASSED (all target tables are InnoDB)")
	return nil
}

func expandIn(query string, n int) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", n), ",")
	return strings.Replace(query, "(?)", "("+placeholders+")", 1)
}

func inArgs(schema string, tables []string) []interface{} {
	args := make([]interface{}, len(tables)+1)
	args[0] = schema
	for i, table := range tables {
		args[i+1] = table
	}
	return args
}
