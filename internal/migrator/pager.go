// Package migrator moves legacy history records into the target store in
// dependency order, recording every outcome in the ledger.
package migrator

import (
	"context"
	"fmt"
	"time"

	"github.com/dbsmedya/gomigrator/internal/config"
	"github.com/dbsmedya/gomigrator/internal/ledger"
	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/logger"
	"github.com/dbsmedya/gomigrator/internal/types"
)

// PageHandler processes one page of legacy records.
type PageHandler func(ctx context.Context, page []legacy.Record) error

// Pager walks the legacy records of one entity type in ascending
// (create time, id) order, starting at the ledger high-water mark.
//
// The lower bound is inclusive: records sharing the last seen timestamp are
// fetched again and dropped by the ledger existence check.
type Pager struct {
	source     legacy.HistorySource
	ledger     *ledger.Store
	entityType types.EntityType
	processing config.ProcessingConfig
	logger     *logger.Logger
	onPage     func()
	pageCount  int
	fetched    int
}

// NewPager creates a pager for one entity type.
func NewPager(source legacy.HistorySource, store *ledger.Store, t types.EntityType, processing config.ProcessingConfig, log *logger.Logger) *Pager {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Pager{
		source:     source,
		ledger:     store,
		entityType: t,
		processing: processing,
		logger:     log.WithEntityType(t.String()),
	}
}

// OnPage registers a callback invoked after every fetched page.
func (p *Pager) OnPage(fn func()) {
	p.onPage = fn
}

// Since returns the lower bound of the walk. The zero time means the ledger
// holds no record of the type yet.
func (p *Pager) Since(ctx context.Context) (time.Time, error) {
	since, ok, err := p.ledger.FindLatestCreateTime(ctx, p.entityType)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read high-water mark: %w", err)
	}
	if !ok {
		return time.Time{}, nil
	}
	return since, nil
}

// Run fetches pages until the offset reaches the remaining count or a page
// comes back empty. The count is taken again before every page so that
// records inserted into the legacy store during the walk are picked up.
func (p *Pager) Run(ctx context.Context, handler PageHandler) error {
	since, err := p.Since(ctx)
	if err != nil {
		return err
	}
	pageSize := p.processing.PageSize
	if pageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	p.logger.Infof("Starting %s pipeline from %v", p.entityType, since)
	startTime := time.Now()
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			p.logger.Warnf("Paging interrupted: %v (fetched %d pages, %d records)", err, p.pageCount, p.fetched)
			return err
		}

		count, err := p.source.Count(ctx, p.entityType, since)
		if err != nil {
			return fmt.Errorf("failed to count %s: %w", p.entityType, err)
		}
		if int64(offset) >= count {
			break
		}

		page, err := p.source.Page(ctx, p.entityType, since, offset, pageSize)
		if err != nil {
			return fmt.Errorf("failed to fetch %s page at offset %d: %w", p.entityType, offset, err)
		}
		if len(page) == 0 {
			break
		}

		p.pageCount++
		if p.onPage != nil {
			p.onPage()
		}
		pageLogger := p.logger.WithPage(p.pageCount)
		pageLogger.Debugf("Fetched %d of %d records at offset %d", len(page), count, offset)

		if err := handler(ctx, page); err != nil {
			return fmt.Errorf("page %d: %w", p.pageCount, err)
		}
		offset += len(page)
		p.fetched += len(page)

		if p.processing.SleepSeconds > 0 {
			sleepDuration := time.Duration(p.processing.SleepSeconds * float64(time.Second))
			select {
			case <-ctx.Done():
				p.logger.Warnf("Paging interrupted during sleep: %v", ctx.Err())
				return ctx.Err()
			case <-time.After(sleepDuration):
			}
		}
	}

	p.logger.Infof("Finished %s pipeline: %d pages, %d records, duration: %s",
		p.entityType, p.pageCount, p.fetched, time.Since(startTime))
	return nil
}

// Stats returns the number of pages and records fetched so far.
func (p *Pager) Stats() (pages, records int) {
	return p.pageCount, p.fetched
}
