package migrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/gomigrator/internal/config"
	"github.com/dbsmedya/gomigrator/internal/convert"
	"github.com/dbsmedya/gomigrator/internal/graph"
	"github.com/dbsmedya/gomigrator/internal/keygen"
	"github.com/dbsmedya/gomigrator/internal/ledger"
	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/logger"
	"github.com/dbsmedya/gomigrator/internal/metrics"
	"github.com/dbsmedya/gomigrator/internal/report"
	"github.com/dbsmedya/gomigrator/internal/target"
	"github.com/dbsmedya/gomigrator/internal/types"
	"github.com/dbsmedya/gomigrator/internal/variables"
)

// Mode selects what a run does with the ledger.
type Mode int

const (
	// ModeMigrate walks legacy records past the high-water mark.
	ModeMigrate Mode = iota
	// ModeRetrySkipped re-attempts records previously recorded as skipped.
	ModeRetrySkipped
	// ModeListSkipped lists skipped records without mutating anything.
	ModeListSkipped
)

func (m Mode) String() string {
	switch m {
	case ModeMigrate:
		return "migrate"
	case ModeRetrySkipped:
		return "retry-skipped"
	case ModeListSkipped:
		return "list-skipped"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// PipelineError aggregates the fatal failures of one run.
type PipelineError struct {
	Failed   map[types.EntityType]error
	Canceled []types.EntityType
}

func (e *PipelineError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for t := range e.Failed {
		names = append(names, t.String())
	}
	sort.Strings(names)

	msg := fmt.Sprintf("%d pipeline(s) failed: %s", len(e.Failed), strings.Join(names, ", "))
	if len(e.Canceled) > 0 {
		canceled := make([]string, len(e.Canceled))
		for i, t := range e.Canceled {
			canceled[i] = t.String()
		}
		msg += fmt.Sprintf("; canceled: %s", strings.Join(canceled, ", "))
	}
	return msg
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *PipelineError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// Deps are the collaborators of a HistoryMigrator.
type Deps struct {
	Source  legacy.HistorySource
	Writer  target.HistoryWriter
	Ledger  *ledger.Store
	Chain   *convert.Chain
	Keys    keygen.Allocator
	Metrics *metrics.Collector
	Logger  *logger.Logger
}

// HistoryMigrator runs one pipeline per entity type in dependency order.
type HistoryMigrator struct {
	source     legacy.HistorySource
	writer     target.HistoryWriter
	ledger     *ledger.Store
	chain      *convert.Chain
	keys       keygen.Allocator
	metrics    *metrics.Collector
	logger     *logger.Logger
	processing config.ProcessingConfig
	graph      *graph.Graph
	resolve    map[types.EntityType]resolver
}

// NewHistoryMigrator creates a migrator over the default dependency graph.
func NewHistoryMigrator(deps Deps, processing config.ProcessingConfig) (*HistoryMigrator, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("history source is nil")
	}
	if deps.Writer == nil {
		return nil, fmt.Errorf("history writer is nil")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if deps.Chain == nil {
		return nil, fmt.Errorf("conversion chain is nil")
	}
	if deps.Keys == nil {
		return nil, fmt.Errorf("key allocator is nil")
	}
	if processing.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", processing.PageSize)
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewDefault()
	}

	g, err := graph.BuildDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}

	m := &HistoryMigrator{
		source:     deps.Source,
		writer:     deps.Writer,
		ledger:     deps.Ledger,
		chain:      deps.Chain,
		keys:       deps.Keys,
		metrics:    deps.Metrics,
		logger:     log,
		processing: processing,
		graph:      g,
	}
	m.resolve = m.resolvers()
	return m, nil
}

// Graph returns the dependency graph the migrator runs on.
func (m *HistoryMigrator) Graph() *graph.Graph {
	return m.graph
}

// Order returns the selected types in dependency order. No selection means
// all history types.
func (m *HistoryMigrator) Order(selected ...types.EntityType) ([]types.EntityType, error) {
	g, err := m.subgraph(selected)
	if err != nil {
		return nil, err
	}
	return g.TopologicalSort()
}

func (m *HistoryMigrator) subgraph(selected []types.EntityType) (*graph.Graph, error) {
	if len(selected) == 0 {
		return m.graph, nil
	}
	for _, t := range selected {
		if !t.IsHistory() {
			return nil, fmt.Errorf("%s is not a history entity type", t)
		}
	}
	return m.graph.Subgraph(selected), nil
}

// Run executes one run in the given mode over the selected entity types.
// The returned summary is complete even when err is a *PipelineError.
func (m *HistoryMigrator) Run(ctx context.Context, runID string, mode Mode, selected ...types.EntityType) (*report.Summary, error) {
	g, err := m.subgraph(selected)
	if err != nil {
		return nil, err
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("invalid dependency graph: %w", err)
	}

	log := m.logger.WithRun(runID)
	summary := report.NewSummary(runID, mode.String(), order...)
	log.Infow("Starting history migration",
		"mode", mode.String(),
		"types", order,
		"page_size", m.processing.PageSize,
	)

	if mode == ModeListSkipped {
		err = m.listSkipped(ctx, order, summary)
		summary.Finish()
		return summary, err
	}

	done := make(map[types.EntityType]chan struct{}, len(order))
	for _, t := range order {
		done[t] = make(chan struct{})
	}

	var mu sync.Mutex
	failed := make(map[types.EntityType]error)
	canceled := make(map[types.EntityType]bool)
	blocked := func(t types.EntityType) bool {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range g.GetParents(t) {
			if _, ok := failed[p]; ok || canceled[p] {
				return true
			}
		}
		return false
	}

	var eg errgroup.Group
	for _, t := range order {
		t := t
		eg.Go(func() error {
			defer close(done[t])

			// Join barrier: every parent pipeline has finished.
			for _, p := range g.GetParents(t) {
				<-done[p]
			}
			if blocked(t) {
				mu.Lock()
				canceled[t] = true
				mu.Unlock()
				summary.SetStatus(t, report.StatusCanceled, nil)
				log.Warnf("Skipping %s pipeline: a dependency failed", t)
				return nil
			}

			start := time.Now()
			err := m.runType(ctx, mode, t, summary, log)
			m.metrics.Duration(t, time.Since(start))
			if err != nil {
				mu.Lock()
				failed[t] = fmt.Errorf("%s: %w", t, err)
				mu.Unlock()
				summary.SetStatus(t, report.StatusFailed, err)
				log.Errorw("Pipeline failed", "entity_type", t.String(), "error", err)
				return err
			}
			summary.SetStatus(t, report.StatusCompleted, nil)
			return nil
		})
	}
	// Every failure is collected above; Wait only reports the first.
	_ = eg.Wait()

	summary.Finish()
	m.metrics.Finished(summary.CompletedAt)

	migrated, skipped := summary.Totals()
	log.Infow("History migration finished",
		"migrated", migrated,
		"skipped", skipped,
		"failed", len(failed),
		"duration", summary.CompletedAt.Sub(summary.StartedAt).String(),
	)

	if len(failed) == 0 {
		return summary, nil
	}
	perr := &PipelineError{Failed: failed}
	for _, t := range order {
		if canceled[t] {
			perr.Canceled = append(perr.Canceled, t)
		}
	}
	return summary, perr
}

func (m *HistoryMigrator) runType(ctx context.Context, mode Mode, t types.EntityType, summary *report.Summary, log *logger.Logger) error {
	typeLog := log.WithEntityType(t.String())
	switch mode {
	case ModeMigrate:
		pager := NewPager(m.source, m.ledger, t, m.processing, log)
		pager.OnPage(func() {
			summary.AddPage(t)
			m.metrics.Page(t)
		})
		return pager.Run(ctx, func(ctx context.Context, page []legacy.Record) error {
			for _, rec := range page {
				if err := m.migrate(ctx, rec, false, summary, typeLog); err != nil {
					return err
				}
			}
			return nil
		})
	case ModeRetrySkipped:
		return m.retrySkipped(ctx, t, summary, typeLog)
	}
	return fmt.Errorf("unsupported mode %s", mode)
}

// retrySkipped walks the skipped rows of t in (create time, id) order and
// re-attempts each one from the legacy store.
func (m *HistoryMigrator) retrySkipped(ctx context.Context, t types.EntityType, summary *report.Summary, log *logger.Logger) error {
	var after *ledger.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := m.ledger.ListSkippedRecords(ctx, t, after, m.processing.PageSize)
		if err != nil {
			return fmt.Errorf("failed to list skipped %s: %w", t, err)
		}
		if len(batch) == 0 {
			return nil
		}
		summary.AddPage(t)
		m.metrics.Page(t)

		for _, skipped := range batch {
			rec, err := m.source.Get(ctx, t, skipped.LegacyID)
			if errors.Is(err, legacy.ErrNotFound) {
				log.Warnf("Skipped %s %s no longer exists in the legacy store", t, skipped.LegacyID)
				summary.AddSkipped(t, skipped.Reason)
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to load %s %s: %w", t, skipped.LegacyID, err)
			}
			if err := m.migrate(ctx, rec, true, summary, log); err != nil {
				return err
			}
		}
		after = ledger.CursorOf(batch[len(batch)-1])
	}
}

func (m *HistoryMigrator) listSkipped(ctx context.Context, order []types.EntityType, summary *report.Summary) error {
	for _, t := range order {
		var after *ledger.Cursor
		for {
			batch, err := m.ledger.ListSkippedRecords(ctx, t, after, m.processing.PageSize)
			if err != nil {
				summary.SetStatus(t, report.StatusFailed, err)
				return fmt.Errorf("failed to list skipped %s: %w", t, err)
			}
			if len(batch) == 0 {
				break
			}
			summary.AddRecords(batch...)
			for _, rec := range batch {
				summary.AddSkipped(t, rec.Reason)
			}
			after = ledger.CursorOf(batch[len(batch)-1])
		}
		summary.SetStatus(t, report.StatusCompleted, nil)
	}
	return nil
}

// migrate handles one record: idempotency check, dependency resolution,
// conversion, target write, ledger write. Skips are recorded in the ledger;
// only storage and connectivity failures are returned.
func (m *HistoryMigrator) migrate(ctx context.Context, rec legacy.Record, retry bool, summary *report.Summary, log *logger.Logger) error {
	id, t := rec.LegacyID(), rec.EntityType()

	if retry {
		// Only previously skipped rows are retried.
		migrated, err := m.ledger.HasTargetKey(ctx, id, t)
		if err != nil {
			return fmt.Errorf("ledger lookup for %s %s: %w", t, id, err)
		}
		if migrated {
			summary.AddExisting(t)
			return nil
		}
	} else {
		exists, err := m.ledger.Exists(ctx, id, t)
		if err != nil {
			return fmt.Errorf("ledger lookup for %s %s: %w", t, id, err)
		}
		if exists {
			summary.AddExisting(t)
			return nil
		}
	}

	result, err := m.convert(ctx, rec)
	if err != nil {
		return fmt.Errorf("%s %s: %w", t, id, err)
	}

	switch result.Outcome {
	case convert.Skipped:
		if retry {
			err = m.ledger.UpdateSkipReason(ctx, id, t, result.Reason)
		} else {
			err = m.ledger.InsertSkipped(ctx, id, t, rec.CreatedAt(), result.Reason)
		}
		if err != nil {
			return fmt.Errorf("failed to record skipped %s %s: %w", t, id, err)
		}
		log.Debugw("Skipped record", "legacy_id", id, "reason", result.Reason)
		summary.AddSkipped(t, result.Reason)
		m.metrics.Skipped(t, result.Reason)

	case convert.Migrated:
		if retry {
			var promoted bool
			promoted, err = m.ledger.Promote(ctx, id, t, result.TargetKey)
			if err == nil && !promoted {
				log.Warnf("Ledger row for %s %s was promoted concurrently", t, id)
			}
		} else {
			err = m.ledger.InsertMigrated(ctx, id, t, result.TargetKey, rec.CreatedAt())
		}
		if err != nil {
			return fmt.Errorf("failed to record migrated %s %s: %w", t, id, err)
		}
		log.Debugw("Migrated record", "legacy_id", id, "target_key", result.TargetKey)
		summary.AddMigrated(t)
		m.metrics.Migrated(t)
	}
	return nil
}

// convert resolves dependencies, runs the chain and writes the target row.
// Nothing is written when the result is a skip.
func (m *HistoryMigrator) convert(ctx context.Context, rec legacy.Record) (convert.Result, error) {
	t := rec.EntityType()
	resolve, ok := m.resolve[t]
	if !ok {
		return convert.Result{}, fmt.Errorf("no handler for entity type %s", t)
	}
	row, err := target.NewRecordFor(t)
	if err != nil {
		return convert.Result{}, err
	}
	c := convert.NewContext(rec, row, 0)

	reason, err := resolve(ctx, c)
	if err != nil {
		return convert.Result{}, err
	}
	if reason != "" {
		return convert.SkippedFor(reason), nil
	}

	key, err := m.keys.Next()
	if err != nil {
		return convert.Result{}, fmt.Errorf("failed to allocate key: %w", err)
	}
	c.AssignKey(key)

	if err := m.chain.Run(c); err != nil {
		if reason, ok := variables.SkipReason(err); ok {
			return convert.SkippedFor(reason), nil
		}
		return convert.Result{}, err
	}
	if err := m.writer.Insert(ctx, c.Target); err != nil {
		return convert.Result{}, err
	}
	return convert.MigratedAs(key), nil
}
