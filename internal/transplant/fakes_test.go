package transplant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gomigrator/internal/config"
	"github.com/dbsmedya/gomigrator/internal/database"
	"github.com/dbsmedya/gomigrator/internal/ledger"
	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/sqlutil"
	"github.com/dbsmedya/gomigrator/internal/target"
	"github.com/dbsmedya/gomigrator/internal/variables"
)

const orderModel = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL"
                  xmlns:zeebe="http://camunda.org/schema/zeebe/1.0" id="defs">
  <bpmn:process id="order" isExecutable="true">
    <bpmn:startEvent id="start">
      <bpmn:extensionElements>
        <zeebe:executionListeners>
          <zeebe:executionListener eventType="end" type="migrator" />
        </zeebe:executionListeners>
      </bpmn:extensionElements>
    </bpmn:startEvent>
    <bpmn:userTask id="review" />
    <bpmn:serviceTask id="notify">
      <bpmn:multiInstanceLoopCharacteristics />
    </bpmn:serviceTask>
    <bpmn:serviceTask id="archive">
      <bpmn:multiInstanceLoopCharacteristics isSequential="true" />
    </bpmn:serviceTask>
    <bpmn:subProcess id="sub">
      <bpmn:startEvent id="subStart" />
      <bpmn:userTask id="inner" />
    </bpmn:subProcess>
    <bpmn:callActivity id="callShipping" />
  </bpmn:process>
</bpmn:definitions>`

const shippingModel = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL"
                  xmlns:zeebe="http://camunda.org/schema/zeebe/1.0" id="defs">
  <bpmn:process id="shipping" isExecutable="true">
    <bpmn:startEvent id="shipStart">
      <bpmn:extensionElements>
        <zeebe:executionListeners>
          <zeebe:executionListener eventType="end" type="migrator" />
        </zeebe:executionListeners>
      </bpmn:extensionElements>
    </bpmn:startEvent>
    <bpmn:userTask id="pack" />
  </bpmn:process>
</bpmn:definitions>`

const base = 1700000000

func at(sec int64) time.Time {
	return time.Unix(base+sec, 0).UTC()
}

func instance(id, process string, sec int64) legacy.Instance {
	return legacy.Instance{
		ID:                   id,
		ProcessDefinitionKey: process,
		State:                "ACTIVE",
		StartTime:            at(sec).Format(legacy.APITimeLayout),
	}
}

func tree(id string, children ...legacy.ActivityInstance) *legacy.ActivityInstance {
	return &legacy.ActivityInstance{
		ID:                     id,
		ActivityID:             "order:1:" + id,
		ActivityType:           "processDefinition",
		ProcessInstanceID:      id,
		ChildActivityInstances: children,
	}
}

func activity(id, activityID, activityType string, children ...legacy.ActivityInstance) legacy.ActivityInstance {
	return legacy.ActivityInstance{ID: id, ActivityID: activityID, ActivityType: activityType, ChildActivityInstances: children}
}

func str(name, value string) variables.Value {
	return variables.Value{Name: name, Kind: variables.KindString, Raw: value}
}

// fakeRuntime is an in-memory legacy engine.
type fakeRuntime struct {
	mu        sync.Mutex
	instances []legacy.Instance
	trees     map[string]*legacy.ActivityInstance
	vars      map[string][]variables.Value
	called    map[string]string

	// subs holds instances started by a call activity. They are never
	// paged as active root instances.
	subs  map[string]bool
	pages []int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		trees:  make(map[string]*legacy.ActivityInstance),
		vars:   make(map[string][]variables.Value),
		called: make(map[string]string),
		subs:   make(map[string]bool),
	}
}

func (f *fakeRuntime) add(inst legacy.Instance, root *legacy.ActivityInstance, globals ...variables.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances = append(f.instances, inst)
	f.trees[inst.ID] = root
	f.vars[inst.ID] = globals
}

// addCalled registers inst as started by the call activity instance
// callActivityInstanceID.
func (f *fakeRuntime) addCalled(callActivityInstanceID string, inst legacy.Instance, root *legacy.ActivityInstance, globals ...variables.Value) {
	f.add(inst, root, globals...)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[inst.ID] = true
	f.called[callActivityInstanceID] = inst.ID
}

func (f *fakeRuntime) finish(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.instances {
		if f.instances[i].ID == id {
			f.instances[i].State = "COMPLETED"
		}
	}
	delete(f.trees, id)
}

func (f *fakeRuntime) active(since time.Time) []legacy.Instance {
	var out []legacy.Instance
	for _, inst := range f.instances {
		if f.subs[inst.ID] {
			continue
		}
		if inst.IsActive() && (since.IsZero() || !inst.Started().Before(since)) {
			out = append(out, inst)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].Started().Equal(out[b].Started()) {
			return out[a].Started().Before(out[b].Started())
		}
		return out[a].ID < out[b].ID
	})
	return out
}

func (f *fakeRuntime) CountActive(_ context.Context, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.active(since))), nil
}

func (f *fakeRuntime) PageActive(_ context.Context, since time.Time, offset, limit int) ([]legacy.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.active(since)
	var page []legacy.Instance
	if offset < len(all) {
		page = all[offset:min(offset+limit, len(all))]
	}
	f.pages = append(f.pages, len(page))
	return page, nil
}

func (f *fakeRuntime) GetInstance(_ context.Context, id string) (*legacy.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inst := range f.instances {
		if inst.ID == id {
			return &inst, nil
		}
	}
	return nil, fmt.Errorf("process instance %s: %w", id, legacy.ErrNotFound)
}

func (f *fakeRuntime) ActivityTree(_ context.Context, id string) (*legacy.ActivityInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	root, ok := f.trees[id]
	if !ok {
		return nil, fmt.Errorf("process instance %s: %w", id, legacy.ErrNotFound)
	}
	return root, nil
}

func (f *fakeRuntime) Variables(_ context.Context, activityInstanceID string) ([]variables.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]variables.Value(nil), f.vars[activityInstanceID]...), nil
}

func (f *fakeRuntime) CalledProcessInstance(_ context.Context, activityInstanceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called[activityInstanceID], nil
}

type created struct {
	Key           int64
	DefinitionKey int64
	TenantID      string
	Variables     map[string]interface{}
}

// fakeEngine is an in-memory target engine. Every created instance queues
// a migrator job on its start event.
type fakeEngine struct {
	mu          sync.Mutex
	definitions map[string]*target.ProcessDefinition
	nextKey     int64
	created     []created
	jobs        []target.Job
	requests    []target.JobRequest
	mods        []target.Modification
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		definitions: make(map[string]*target.ProcessDefinition),
		nextKey:     2251799813685249,
	}
}

func (e *fakeEngine) deploy(processID, xml string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextKey++
	e.definitions[processID] = &target.ProcessDefinition{
		Key:           e.nextKey,
		BPMNProcessID: processID,
		Version:       1,
		XML:           []byte(xml),
	}
}

func (e *fakeEngine) LatestProcessDefinition(_ context.Context, processID, _ string) (*target.ProcessDefinition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.definitions[processID]
	if !ok {
		return nil, fmt.Errorf("process %s: %w", processID, target.ErrNoDeployment)
	}
	return def, nil
}

func (e *fakeEngine) queueJob(processInstanceKey int64, elementID string, vars map[string]interface{}) {
	e.nextKey++
	e.jobs = append(e.jobs, target.Job{
		Key:                e.nextKey,
		Type:               "migrator",
		ProcessInstanceKey: processInstanceKey,
		ElementID:          elementID,
		ElementInstanceKey: processInstanceKey + 1,
		Variables:          vars,
	})
}

func (e *fakeEngine) CreateInstance(_ context.Context, definitionKey int64, tenantID string, vars map[string]interface{}) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextKey += 10
	key := e.nextKey
	e.created = append(e.created, created{Key: key, DefinitionKey: definitionKey, TenantID: tenantID, Variables: vars})
	e.queueJob(key, "start", map[string]interface{}{LegacyIDVariable: vars[LegacyIDVariable]})
	return key, nil
}

func (e *fakeEngine) ActivateJobs(_ context.Context, req target.JobRequest) ([]target.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	n := min(req.MaxJobs, len(e.jobs))
	out := append([]target.Job(nil), e.jobs[:n]...)
	e.jobs = e.jobs[n:]
	return out, nil
}

func (e *fakeEngine) ModifyInstance(_ context.Context, mod target.Modification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mods = append(e.mods, mod)
	// A call activity with a correlation variable starts its called
	// process, whose start event queues its own job.
	for _, a := range mod.Activate {
		for _, sv := range a.Variables {
			if id, ok := sv.Variables[LegacyIDVariable].(string); ok && strings.HasPrefix(a.ElementID, "call") {
				e.nextKey += 10
				e.queueJob(e.nextKey, "shipStart", map[string]interface{}{LegacyIDVariable: id})
			}
		}
	}
	return nil
}

func (e *fakeEngine) createdFor(legacyID string) (created, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.created {
		if c.Variables[LegacyIDVariable] == legacyID {
			return c, true
		}
	}
	return created{}, false
}

type harness struct {
	source *fakeRuntime
	engine *fakeEngine
	ledger *ledger.Store
	m      *Migrator
}

func runtimeConfig() config.RuntimeConfig {
	return config.RuntimeConfig{
		JobType:              "migrator",
		JobActivationTimeout: time.Second,
		JobLockTimeout:       time.Minute,
		MaxJobsToActivate:    10,
	}
}

func newHarness(t *testing.T, runtime config.RuntimeConfig) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := ledger.NewStore(db, sqlutil.SQLite, "migration_ledger", nil)
	require.NoError(t, err)
	require.NoError(t, store.InitializeSchema(ctx))

	h := &harness{source: newFakeRuntime(), engine: newFakeEngine(), ledger: store}
	h.engine.deploy("order", orderModel)
	h.m, err = NewMigrator(Deps{
		Source:   h.source,
		Engine:   h.engine,
		Ledger:   store,
		Pipeline: variables.DefaultPipeline(),
	}, runtime, config.ProcessingConfig{PageSize: 2}, "<default>")
	require.NoError(t, err)
	return h
}
