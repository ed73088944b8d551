package migrator

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dbsmedya/gomigrator/internal/types"
)

// Estimate is the dry-run forecast for one entity type.
type Estimate struct {
	Type      types.EntityType
	Since     time.Time
	Remaining int64
	Pages     int64
	Ledger    types.TypeStats
}

// EstimateResult holds the dry-run forecast of a run.
type EstimateResult struct {
	PageSize  int
	Estimates []Estimate
}

// Estimate counts the legacy records a migrate run would fetch, per type,
// without writing anything.
func (m *HistoryMigrator) Estimate(ctx context.Context, selected ...types.EntityType) (*EstimateResult, error) {
	order, err := m.Order(selected...)
	if err != nil {
		return nil, err
	}

	result := &EstimateResult{PageSize: m.processing.PageSize}
	for _, t := range order {
		pager := NewPager(m.source, m.ledger, t, m.processing, m.logger)
		since, err := pager.Since(ctx)
		if err != nil {
			return nil, err
		}
		remaining, err := m.source.Count(ctx, t, since)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", t, err)
		}
		stats, err := m.ledger.Stats(ctx, t)
		if err != nil {
			return nil, err
		}

		e := Estimate{Type: t, Since: since, Remaining: remaining, Ledger: stats}
		if remaining > 0 {
			e.Pages = (remaining + int64(m.processing.PageSize) - 1) / int64(m.processing.PageSize)
		}
		result.Estimates = append(result.Estimates, e)
	}
	return result, nil
}

// DisplayExecutionPlan prints the dry-run forecast.
func (r *EstimateResult) DisplayExecutionPlan(w io.Writer) {
	fmt.Fprintf(w, "\n=== Dry-Run Execution Plan ===\n\n")
	fmt.Fprintf(w, "Page size: %d\n\n", r.PageSize)

	var total, pages int64
	fmt.Fprintf(w, "Migration Order (dependencies first):\n")
	for i, e := range r.Estimates {
		since := "beginning"
		if !e.Since.IsZero() {
			since = e.Since.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "  %d. %s: ~%d records in %d pages since %s (ledger: %d migrated, %d skipped)\n",
			i+1, e.Type, e.Remaining, e.Pages, since, e.Ledger.Migrated, e.Ledger.Skipped)
		total += e.Remaining
		pages += e.Pages
	}
	fmt.Fprintf(w, "\nTotal: ~%d records in %d pages\n", total, pages)
	fmt.Fprintln(w, "\n=== End of Dry-Run ===")
	fmt.Fprintln(w, "\nNo data was modified. Use 'migrate' command to execute.")
}
