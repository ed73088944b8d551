// Package report collects the outcome of a migrator run and renders it for
// operators.
package report

import (
	"sort"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/gomigrator/internal/types"
)

// Pipeline statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// TypeSummary is the outcome of one entity type pipeline.
type TypeSummary struct {
	Type     types.EntityType `json:"type" yaml:"type"`
	Status   string           `json:"status" yaml:"status"`
	Migrated int64            `json:"migrated" yaml:"migrated"`
	Skipped  int64            `json:"skipped" yaml:"skipped"`
	Existing int64            `json:"already_present" yaml:"already_present"`
	Pages    int              `json:"pages" yaml:"pages"`
	Error    string           `json:"error,omitempty" yaml:"error,omitempty"`
	Reasons  map[string]int64 `json:"skip_reasons,omitempty" yaml:"skip_reasons,omitempty"`
}

// Summary is safe for concurrent use by pipeline tasks.
type Summary struct {
	RunID       string
	Mode        string
	StartedAt   time.Time
	CompletedAt time.Time

	mu      sync.Mutex
	types   *orderedmap.OrderedMap[types.EntityType, *TypeSummary]
	records []types.SkippedRecord
}

// NewSummary creates a summary with one pending entry per type, in order.
func NewSummary(runID, mode string, ts ...types.EntityType) *Summary {
	s := &Summary{
		RunID:     runID,
		Mode:      mode,
		StartedAt: time.Now(),
		types:     orderedmap.NewOrderedMap[types.EntityType, *TypeSummary](),
	}
	for _, t := range ts {
		s.entry(t)
	}
	return s
}

func (s *Summary) entry(t types.EntityType) *TypeSummary {
	if e, ok := s.types.Get(t); ok {
		return e
	}
	e := &TypeSummary{Type: t, Status: StatusPending, Reasons: make(map[string]int64)}
	s.types.Set(t, e)
	return e
}

// AddMigrated counts a migrated record.
func (s *Summary) AddMigrated(t types.EntityType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(t).Migrated++
}

// AddSkipped counts a skipped record under its reason.
func (s *Summary) AddSkipped(t types.EntityType, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(t)
	e.Skipped++
	e.Reasons[reason]++
}

// AddExisting counts a record that was already in the ledger.
func (s *Summary) AddExisting(t types.EntityType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(t).Existing++
}

// AddPage counts a fetched page.
func (s *Summary) AddPage(t types.EntityType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(t).Pages++
}

// SetStatus records the final status of a pipeline. A non-nil err is kept
// as its message.
func (s *Summary) SetStatus(t types.EntityType, status string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(t)
	e.Status = status
	if err != nil {
		e.Error = err.Error()
	}
}

// AddRecords appends skipped ledger rows, as listed in list mode.
func (s *Summary) AddRecords(recs ...types.SkippedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
}

// Finish stamps the completion time.
func (s *Summary) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CompletedAt = time.Now()
}

// Types returns copies of the per-type entries in insertion order.
func (s *Summary) Types() []TypeSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TypeSummary, 0, s.types.Len())
	for el := s.types.Front(); el != nil; el = el.Next() {
		cp := *el.Value
		cp.Reasons = make(map[string]int64, len(el.Value.Reasons))
		for k, v := range el.Value.Reasons {
			cp.Reasons[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// Type returns a copy of one entry.
func (s *Summary) Type(t types.EntityType) (TypeSummary, bool) {
	for _, e := range s.Types() {
		if e.Type == t {
			return e, true
		}
	}
	return TypeSummary{}, false
}

// Records returns the skipped rows sorted by type order, then create time.
func (s *Summary) Records() []types.SkippedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rank := make(map[types.EntityType]int, s.types.Len())
	i := 0
	for el := s.types.Front(); el != nil; el = el.Next() {
		rank[el.Key] = i
		i++
	}
	out := append([]types.SkippedRecord(nil), s.records...)
	sort.SliceStable(out, func(a, b int) bool {
		if rank[out[a].Type] != rank[out[b].Type] {
			return rank[out[a].Type] < rank[out[b].Type]
		}
		return out[a].CreateTime.Before(out[b].CreateTime)
	})
	return out
}

// Totals sums migrated and skipped counts over all types.
func (s *Summary) Totals() (migrated, skipped int64) {
	for _, e := range s.Types() {
		migrated += e.Migrated
		skipped += e.Skipped
	}
	return migrated, skipped
}

// Failed reports whether any pipeline failed or was canceled.
func (s *Summary) Failed() bool {
	for _, e := range s.Types() {
		if e.Status == StatusFailed || e.Status == StatusCanceled {
			return true
		}
	}
	return false
}
