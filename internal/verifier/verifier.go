// Package verifier checks that migrated ledger rows have their target rows.
package verifier

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/gomigrator/internal/ledger"
	"github.com/dbsmedya/gomigrator/internal/logger"
	"github.com/dbsmedya/gomigrator/internal/sqlutil"
	"github.com/dbsmedya/gomigrator/internal/target"
	"github.com/dbsmedya/gomigrator/internal/types"
)

// VerificationMethod defines how migrated rows are checked.
type VerificationMethod string

const (
	// MethodCount compares the number of target rows per key chunk (fast)
	MethodCount VerificationMethod = "count"
	// MethodKeys lists the missing target keys (slower, reports every gap)
	MethodKeys VerificationMethod = "keys"
	// MethodSkip skips verification entirely
	MethodSkip VerificationMethod = "skip"
)

// maxReportedKeys caps the missing keys kept per type.
const maxReportedKeys = 20

// VerifyResult holds verification results for a single entity type.
type VerifyResult struct {
	Type         types.EntityType
	Table        string
	Method       VerificationMethod
	LedgerCount  int64
	TargetCount  int64
	Missing      []int64
	Match        bool
	ErrorMessage string
}

// VerifyStats contains overall verification statistics.
type VerifyStats struct {
	TypesVerified int
	TypesPassed   int
	TypesFailed   int
	TotalRows     int64
	Method        VerificationMethod
	Results       []VerifyResult
}

// Verifier compares the ledger against the target history tables.
type Verifier struct {
	ledger    *ledger.Store
	target    *sql.DB
	method    VerificationMethod
	chunkSize int
	logger    *logger.Logger
}

// NewVerifier creates a new verifier.
func NewVerifier(store *ledger.Store, targetDB *sql.DB, method VerificationMethod, log *logger.Logger) (*Verifier, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if targetDB == nil {
		return nil, fmt.Errorf("target database is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	if method == "" {
		method = MethodCount
	}
	switch method {
	case MethodCount, MethodKeys, MethodSkip:
	default:
		return nil, fmt.Errorf("unsupported verification method: %s", method)
	}

	return &Verifier{
		ledger:    store,
		target:    targetDB,
		method:    method,
		chunkSize: 1000,
		logger:    log,
	}, nil
}

// Verify checks every migrated ledger row of the given types. Types without
// a target history table are ignored. All types are checked before a
// mismatch is reported.
func (v *Verifier) Verify(ctx context.Context, ts []types.EntityType) (*VerifyStats, error) {
	if v.method == MethodSkip {
		v.logger.Info("Verification SKIPPED (method=skip)")
		return &VerifyStats{Method: MethodSkip}, nil
	}

	stats := &VerifyStats{Method: v.method}
	v.logger.Infof("Starting verification (method=%s) for %d types", v.method, len(ts))

	for _, t := range ts {
		tbl, ok := target.TableFor(t)
		if !ok {
			v.logger.Debugf("Skipping %s (no target history table)", t)
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("verification interrupted: %w", err)
		}

		result, err := v.verifyType(ctx, t, tbl)
		if err != nil {
			return stats, fmt.Errorf("verification failed for %s: %w", t, err)
		}

		stats.TypesVerified++
		stats.TotalRows += result.LedgerCount
		stats.Results = append(stats.Results, *result)
		if result.Match {
			stats.TypesPassed++
			v.logger.Debugf("Verification PASSED for %s (%d rows)", t, result.LedgerCount)
		} else {
			stats.TypesFailed++
			v.logger.Errorf("Verification FAILED for %s: %s", t, result.ErrorMessage)
		}
	}

	v.logger.Infof("Verification complete: %d types verified, %d passed, %d failed, %d total rows",
		stats.TypesVerified, stats.TypesPassed, stats.TypesFailed, stats.TotalRows)

	if stats.TypesFailed > 0 {
		return stats, fmt.Errorf("verification failed: %d types had missing target rows", stats.TypesFailed)
	}
	return stats, nil
}

// verifyType walks the migrated keys of t in chunks.
func (v *Verifier) verifyType(ctx context.Context, t types.EntityType, tbl target.Table) (*VerifyResult, error) {
	result := &VerifyResult{Type: t, Table: tbl.Name, Method: v.method}

	var after int64
	for {
		keys, err := v.ledger.ListMigratedKeys(ctx, t, after, v.chunkSize)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			break
		}
		result.LedgerCount += int64(len(keys))

		switch v.method {
		case MethodCount:
			n, err := v.countTarget(ctx, tbl, keys)
			if err != nil {
				return nil, err
			}
			result.TargetCount += n
		case MethodKeys:
			found, err := v.findTarget(ctx, tbl, keys)
			if err != nil {
				return nil, err
			}
			result.TargetCount += int64(len(found))
			for _, k := range keys {
				if !found[k] && len(result.Missing) < maxReportedKeys {
					result.Missing = append(result.Missing, k)
				}
			}
		}
		after = keys[len(keys)-1]
	}

	result.Match = result.LedgerCount == result.TargetCount
	if !result.Match {
		result.ErrorMessage = fmt.Sprintf("count mismatch: ledger=%d, target=%d", result.LedgerCount, result.TargetCount)
		if len(result.Missing) > 0 {
			sort.Slice(result.Missing, func(i, j int) bool { return result.Missing[i] < result.Missing[j] })
			result.ErrorMessage += fmt.Sprintf(", missing keys: %v", result.Missing)
		}
	}
	return result, nil
}

func inClause(keys []int64) (string, []interface{}) {
	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		placeholders[i] = "?"
		args[i] = k
	}
	return strings.Join(placeholders, ","), args
}

func (v *Verifier) countTarget(ctx context.Context, tbl target.Table, keys []int64) (int64, error) {
	placeholders, args := inClause(keys)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IN (%s)",
		sqlutil.QuoteIdentifier(tbl.Name), sqlutil.QuoteIdentifier(tbl.KeyColumn), placeholders)

	var n int64
	if err := v.target.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count target rows: %w", err)
	}
	return n, nil
}

func (v *Verifier) findTarget(ctx context.Context, tbl target.Table, keys []int64) (map[int64]bool, error) {
	placeholders, args := inClause(keys)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		sqlutil.QuoteIdentifier(tbl.KeyColumn), sqlutil.QuoteIdentifier(tbl.Name),
		sqlutil.QuoteIdentifier(tbl.KeyColumn), placeholders)

	rows, err := v.target.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]bool, len(keys))
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		found[k] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}
	return found, nil
}

// SetChunkSize sets the number of keys checked per query.
func (v *Verifier) SetChunkSize(size int) {
	if size > 0 {
		v.chunkSize = size
	}
}

// GetChunkSize returns the current chunk size.
func (v *Verifier) GetChunkSize() int {
	return v.chunkSize
}

// GetMethod returns the configured verification method.
func (v *Verifier) GetMethod() VerificationMethod {
	return v.method
}
