package migrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gomigrator/internal/config"
	"github.com/dbsmedya/gomigrator/internal/convert"
	"github.com/dbsmedya/gomigrator/internal/database"
	"github.com/dbsmedya/gomigrator/internal/keygen"
	"github.com/dbsmedya/gomigrator/internal/ledger"
	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/sqlutil"
	"github.com/dbsmedya/gomigrator/internal/target"
	"github.com/dbsmedya/gomigrator/internal/types"
	"github.com/dbsmedya/gomigrator/internal/variables"
)

// fakeSource is an in-memory legacy history store.
type fakeSource struct {
	mu       sync.Mutex
	records  map[types.EntityType][]legacy.Record
	pages    map[types.EntityType][]int
	countErr error
}

func newFakeSource(recs ...legacy.Record) *fakeSource {
	f := &fakeSource{
		records: make(map[types.EntityType][]legacy.Record),
		pages:   make(map[types.EntityType][]int),
	}
	f.add(recs...)
	return f
}

func (f *fakeSource) add(recs ...legacy.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range recs {
		f.records[r.EntityType()] = append(f.records[r.EntityType()], r)
	}
}

func (f *fakeSource) pageSizes(t types.EntityType) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.pages[t]...)
}

func (f *fakeSource) from(t types.EntityType, since time.Time) []legacy.Record {
	var out []legacy.Record
	for _, r := range f.records[t] {
		if since.IsZero() || !r.CreatedAt().Before(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].CreatedAt().Equal(out[b].CreatedAt()) {
			return out[a].CreatedAt().Before(out[b].CreatedAt())
		}
		return out[a].LegacyID() < out[b].LegacyID()
	})
	return out
}

func (f *fakeSource) Count(_ context.Context, t types.EntityType, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.from(t, since))), nil
}

func (f *fakeSource) Page(_ context.Context, t types.EntityType, since time.Time, offset, limit int) ([]legacy.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.from(t, since)
	var page []legacy.Record
	if offset < len(all) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		page = all[offset:end]
	}
	f.pages[t] = append(f.pages[t], len(page))
	return page, nil
}

func (f *fakeSource) Get(_ context.Context, t types.EntityType, id string) (legacy.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records[t] {
		if r.LegacyID() == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%s %s: %w", t, id, legacy.ErrNotFound)
}

// fakeWriter collects target rows per table.
type fakeWriter struct {
	mu   sync.Mutex
	rows map[string][]*target.Record
	fail map[string]error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{rows: make(map[string][]*target.Record), fail: make(map[string]error)}
}

func (w *fakeWriter) Insert(_ context.Context, rec *target.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail[rec.Table]; err != nil {
		return err
	}
	w.rows[rec.Table] = append(w.rows[rec.Table], rec)
	return nil
}

func (w *fakeWriter) table(name string) []*target.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*target.Record(nil), w.rows[name]...)
}

type harness struct {
	source *fakeSource
	writer *fakeWriter
	ledger *ledger.Store
	m      *HistoryMigrator
}

func newHarness(t *testing.T, pageSize int, recs ...legacy.Record) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := ledger.NewStore(db, sqlutil.SQLite, "migration_ledger", nil)
	require.NoError(t, err)
	require.NoError(t, store.InitializeSchema(ctx))

	keys, err := keygen.NewSequence(1, 1)
	require.NoError(t, err)

	h := &harness{source: newFakeSource(recs...), writer: newFakeWriter(), ledger: store}
	h.m, err = NewHistoryMigrator(Deps{
		Source: h.source,
		Writer: h.writer,
		Ledger: store,
		Chain:  convert.DefaultChain(variables.DefaultPipeline(), "<default>"),
		Keys:   keys,
	}, config.ProcessingConfig{PageSize: pageSize})
	require.NoError(t, err)
	return h
}

func at(sec int64) time.Time {
	return time.Unix(1700000000+sec, 0).UTC()
}

func processDefinition(id string, sec int64) *legacy.ProcessDefinition {
	return &legacy.ProcessDefinition{ID: id, Key: "order", Version: 1, DeployTime: at(sec)}
}

func processInstance(id, pd string, sec int64) *legacy.ProcessInstance {
	return &legacy.ProcessInstance{
		ID:                    id,
		ProcessDefinitionID:   pd,
		ProcessDefinitionKey:  "order",
		RootProcessInstanceID: id,
		State:                 "COMPLETED",
		StartTime:             at(sec),
	}
}

func flowNode(id, pi, pd string, sec int64) *legacy.FlowNode {
	return &legacy.FlowNode{
		ID:                  id,
		ProcessDefinitionID: pd,
		ProcessInstanceID:   pi,
		ActivityID:          "review",
		ActivityType:        "userTask",
		StartTime:           at(sec),
	}
}

func userTask(id, pi, pd, activityInstance string, sec int64) *legacy.UserTask {
	return &legacy.UserTask{
		ID:                  id,
		ProcessDefinitionID: pd,
		ProcessInstanceID:   pi,
		ActivityInstanceID:  activityInstance,
		TaskDefinitionKey:   "review",
		StartTime:           at(sec),
	}
}

func variable(id, pi, activityInstance, task string, value variables.Value, sec int64) *legacy.Variable {
	return &legacy.Variable{
		ID:                 id,
		ProcessInstanceID:  pi,
		ActivityInstanceID: activityInstance,
		TaskID:             task,
		CreateTime:         at(sec),
		Value:              value,
	}
}

func configWithPageSize(n int) config.ProcessingConfig {
	return config.ProcessingConfig{PageSize: n}
}

var (
	legacyIncident = legacy.Incident{
		ID:                  "inc-1",
		ProcessDefinitionID: "pd-1",
		ProcessInstanceID:   "pi-1",
		ActivityID:          "review",
		IncidentType:        "failedJob",
		State:               "RESOLVED",
		CreateTime:          at(20),
	}
	legacyDRD = legacy.DecisionRequirementsDefinition{
		ID:         "drd-1",
		Key:        "pricing",
		Version:    1,
		DeployTime: at(1),
	}
	legacyDD = legacy.DecisionDefinition{
		ID:                     "dd-1",
		Key:                    "discount",
		Version:                1,
		DecisionRequirementsID: "drd-1",
		DeployTime:             at(2),
	}
	legacyRootDecision = legacy.DecisionInstance{
		ID:                    "di-root",
		DecisionDefinitionID:  "dd-1",
		DecisionDefinitionKey: "discount",
		EvaluationTime:        at(30),
	}
	legacyChildDecision = legacy.DecisionInstance{
		ID:                     "di-child",
		DecisionDefinitionID:   "dd-1",
		DecisionDefinitionKey:  "discount",
		RootDecisionInstanceID: "di-root",
		EvaluationTime:         at(31),
	}
)
