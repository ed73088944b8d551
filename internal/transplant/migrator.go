package transplant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbsmedya/gomigrator/internal/config"
	"github.com/dbsmedya/gomigrator/internal/convert"
	"github.com/dbsmedya/gomigrator/internal/ledger"
	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/logger"
	"github.com/dbsmedya/gomigrator/internal/metrics"
	"github.com/dbsmedya/gomigrator/internal/migrator"
	"github.com/dbsmedya/gomigrator/internal/report"
	"github.com/dbsmedya/gomigrator/internal/target"
	"github.com/dbsmedya/gomigrator/internal/types"
	"github.com/dbsmedya/gomigrator/internal/variables"
)

// WorkerName identifies the migrator on activated jobs.
const WorkerName = "gomigrator"

const runtimeType = types.RuntimeProcessInstance

// Loop counters the legacy engine keeps on a multi-instance body. The
// target engine maintains its own.
var multiInstanceCounters = map[string]bool{
	"nrOfInstances":          true,
	"nrOfActiveInstances":    true,
	"nrOfCompletedInstances": true,
}

// Deps are the collaborators of a Migrator.
type Deps struct {
	Source   legacy.RuntimeSource
	Engine   target.Engine
	Ledger   *ledger.Store
	Pipeline *variables.Pipeline
	Metrics  *metrics.Collector
	Logger   *logger.Logger
}

// Migrator transplants active legacy root instances. Each instance either
// transplants as a whole or is recorded as skipped.
type Migrator struct {
	source     legacy.RuntimeSource
	engine     target.Engine
	ledger     *ledger.Store
	pipeline   *variables.Pipeline
	metrics    *metrics.Collector
	logger     *logger.Logger
	validator  *Validator
	runtime    config.RuntimeConfig
	processing config.ProcessingConfig
}

// NewMigrator creates a runtime migrator.
func NewMigrator(deps Deps, runtime config.RuntimeConfig, processing config.ProcessingConfig, defaultTenant string) (*Migrator, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("runtime source is nil")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("target engine is nil")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("variable pipeline is nil")
	}
	if runtime.JobType == "" {
		return nil, fmt.Errorf("runtime job type is required")
	}
	if runtime.MaxJobsToActivate <= 0 {
		return nil, fmt.Errorf("max jobs to activate must be positive, got %d", runtime.MaxJobsToActivate)
	}
	if processing.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", processing.PageSize)
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewDefault()
	}

	return &Migrator{
		source:     deps.Source,
		engine:     deps.Engine,
		ledger:     deps.Ledger,
		pipeline:   deps.Pipeline,
		metrics:    deps.Metrics,
		logger:     log,
		validator:  NewValidator(deps.Source, deps.Engine, runtime, defaultTenant),
		runtime:    runtime,
		processing: processing,
	}, nil
}

// run holds the state of one invocation.
type run struct {
	*Migrator
	summary *report.Summary
	log     *logger.Logger
	// pending maps legacy ids of instances started in this run to the
	// activations their handshake applies.
	pending      map[string][]target.Activation
	attempted    int
	transplanted int
}

// Run executes one runtime run. Migrate and retry runs start target
// instances first and then complete the handshake of every correlated job.
func (m *Migrator) Run(ctx context.Context, runID string, mode migrator.Mode) (*report.Summary, error) {
	r := &run{
		Migrator: m,
		summary:  report.NewSummary(runID, mode.String(), runtimeType),
		log:      m.logger.WithRun(runID).WithEntityType(runtimeType.String()),
		pending:  make(map[string][]target.Activation),
	}
	r.log.Infow("Starting runtime migration",
		"mode", mode.String(),
		"job_type", m.runtime.JobType,
		"max_process_instances", m.runtime.MaxProcessInstances,
	)

	start := time.Now()
	var err error
	switch mode {
	case migrator.ModeListSkipped:
		err = r.listSkipped(ctx)
	case migrator.ModeMigrate, migrator.ModeRetrySkipped:
		if mode == migrator.ModeMigrate {
			err = r.startActive(ctx)
		} else {
			err = r.retrySkipped(ctx)
		}
		// Instances started before a failure still need their handshake.
		if ctx.Err() == nil {
			err = errors.Join(err, r.handshakes(ctx))
		}
	default:
		err = fmt.Errorf("unsupported mode %s", mode)
	}

	if err != nil {
		r.summary.SetStatus(runtimeType, report.StatusFailed, err)
	} else {
		r.summary.SetStatus(runtimeType, report.StatusCompleted, nil)
	}
	r.summary.Finish()
	if mode != migrator.ModeListSkipped {
		m.metrics.Duration(runtimeType, time.Since(start))
		m.metrics.Finished(r.summary.CompletedAt)
	}

	migrated, skipped := r.summary.Totals()
	r.log.Infow("Runtime migration finished",
		"started", migrated,
		"skipped", skipped,
		"transplanted", r.transplanted,
		"awaiting_handshake", len(r.pending),
		"duration", time.Since(start).String(),
	)
	return r.summary, err
}

func (r *run) limitReached() bool {
	return r.runtime.MaxProcessInstances > 0 && r.attempted >= r.runtime.MaxProcessInstances
}

// startActive pages through active root instances started at or after the
// ledger high-water mark.
func (r *run) startActive(ctx context.Context) error {
	since, _, err := r.ledger.FindLatestCreateTime(ctx, runtimeType)
	if err != nil {
		return fmt.Errorf("failed to read high-water mark: %w", err)
	}

	offset := 0
	for !r.limitReached() {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, err := r.source.CountActive(ctx, since)
		if err != nil {
			return err
		}
		if int64(offset) >= count {
			break
		}
		page, err := r.source.PageActive(ctx, since, offset, r.processing.PageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		r.summary.AddPage(runtimeType)
		r.metrics.Page(runtimeType)

		for i := range page {
			if r.limitReached() {
				r.log.Infof("Reached max process instances (%d)", r.runtime.MaxProcessInstances)
				break
			}
			if err := r.start(ctx, &page[i], false); err != nil {
				return err
			}
		}
		offset += len(page)
	}
	return nil
}

// retrySkipped re-validates previously skipped instances.
func (r *run) retrySkipped(ctx context.Context) error {
	var after *ledger.Cursor
	for !r.limitReached() {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := r.ledger.ListSkippedRecords(ctx, runtimeType, after, r.processing.PageSize)
		if err != nil {
			return fmt.Errorf("failed to list skipped instances: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		r.summary.AddPage(runtimeType)
		r.metrics.Page(runtimeType)

		for _, skipped := range batch {
			if r.limitReached() {
				break
			}
			inst, err := r.source.GetInstance(ctx, skipped.LegacyID)
			if err != nil && !errors.Is(err, legacy.ErrNotFound) {
				return err
			}
			if inst == nil || !inst.IsActive() {
				if err := r.ledger.UpdateSkipReason(ctx, skipped.LegacyID, runtimeType, types.ReasonLegacyInstanceNotActive); err != nil {
					return fmt.Errorf("failed to record skipped instance %s: %w", skipped.LegacyID, err)
				}
				r.summary.AddSkipped(runtimeType, types.ReasonLegacyInstanceNotActive)
				continue
			}
			if err := r.start(ctx, inst, true); err != nil {
				return err
			}
		}
		after = ledger.CursorOf(batch[len(batch)-1])
	}
	return nil
}

func (r *run) listSkipped(ctx context.Context) error {
	var after *ledger.Cursor
	for {
		batch, err := r.ledger.ListSkippedRecords(ctx, runtimeType, after, r.processing.PageSize)
		if err != nil {
			return fmt.Errorf("failed to list skipped instances: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		r.summary.AddRecords(batch...)
		for _, rec := range batch {
			r.summary.AddSkipped(runtimeType, rec.Reason)
		}
		after = ledger.CursorOf(batch[len(batch)-1])
	}
}

// start validates one legacy instance and starts its target counterpart.
// Skips are recorded in the ledger; only storage and connectivity failures
// are returned.
func (r *run) start(ctx context.Context, inst *legacy.Instance, retry bool) error {
	log := r.log.WithInstance(inst.ID)

	var (
		present bool
		err     error
	)
	if retry {
		present, err = r.ledger.HasTargetKey(ctx, inst.ID, runtimeType)
	} else {
		present, err = r.ledger.Exists(ctx, inst.ID, runtimeType)
	}
	if err != nil {
		return fmt.Errorf("ledger lookup for instance %s: %w", inst.ID, err)
	}
	if present {
		r.summary.AddExisting(runtimeType)
		return nil
	}
	r.attempted++

	result, plans, err := r.startInstance(ctx, inst)
	if err != nil {
		return fmt.Errorf("instance %s: %w", inst.ID, err)
	}

	switch result.Outcome {
	case convert.Skipped:
		if retry {
			err = r.ledger.UpdateSkipReason(ctx, inst.ID, runtimeType, result.Reason)
		} else {
			err = r.ledger.InsertSkipped(ctx, inst.ID, runtimeType, inst.Started(), result.Reason)
		}
		if err != nil {
			return fmt.Errorf("failed to record skipped instance %s: %w", inst.ID, err)
		}
		log.Infow("Skipped instance", "reason", result.Reason)
		r.summary.AddSkipped(runtimeType, result.Reason)
		r.metrics.Skipped(runtimeType, result.Reason)

	case convert.Migrated:
		if retry {
			_, err = r.ledger.Promote(ctx, inst.ID, runtimeType, result.TargetKey)
		} else {
			err = r.ledger.InsertMigrated(ctx, inst.ID, runtimeType, result.TargetKey, inst.Started())
		}
		if err != nil {
			return fmt.Errorf("failed to record started instance %s: %w", inst.ID, err)
		}
		for id, activations := range plans {
			r.pending[id] = activations
		}
		log.Infow("Started target instance",
			"process_instance_key", result.TargetKey,
			"elements", len(plans[inst.ID]),
			"called_instances", len(plans)-1,
		)
		r.summary.AddMigrated(runtimeType)
		r.metrics.Migrated(runtimeType)
	}
	return nil
}

// startInstance validates an instance and every instance its call
// activities started, converts their variables and creates the target
// root instance. Nothing is created when the result is a skip. The returned
// plans hold the handshake activations keyed by legacy instance id.
func (r *run) startInstance(ctx context.Context, inst *legacy.Instance) (convert.Result, map[string][]target.Activation, error) {
	v, err := r.validator.Validate(ctx, inst)
	if err != nil {
		return convert.Result{}, nil, err
	}
	if v.Reason != "" {
		return convert.SkippedFor(v.Reason), nil, nil
	}

	globals, reason, err := r.convertScope(ctx, inst.ID)
	if err != nil {
		return convert.Result{}, nil, err
	}
	if reason != "" {
		return convert.SkippedFor(reason), nil, nil
	}

	plans := make(map[string][]target.Activation)
	reason, err = r.plan(ctx, inst.ID, v, nil, plans)
	if err != nil {
		return convert.Result{}, nil, err
	}
	if reason != "" {
		return convert.SkippedFor(reason), nil, nil
	}

	globals[LegacyIDVariable] = inst.ID
	key, err := r.engine.CreateInstance(ctx, v.Definition.Key, v.TenantID, globals)
	if err != nil {
		return convert.Result{}, nil, err
	}
	return convert.MigratedAs(key), plans, nil
}

// convertScope converts the variables scoped to an activity instance. A
// non-empty reason names a value without a target representation.
func (m *Migrator) convertScope(ctx context.Context, activityInstanceID string) (map[string]interface{}, string, error) {
	values, err := m.source.Variables(ctx, activityInstanceID)
	if err != nil {
		return nil, "", err
	}
	out, err := m.pipeline.ConvertAll(values)
	if reason, ok := variables.SkipReason(err); ok {
		return nil, reason, nil
	}
	if err != nil {
		return nil, "", err
	}
	return out, "", nil
}

// plan adds the activations of a validated instance to plans, followed by
// the plans of the instances its call activities started. processVars are
// set on the process scope of the instance. A reason from any instance of
// the tree skips the whole tree.
func (m *Migrator) plan(ctx context.Context, legacyID string, v *Validation, processVars map[string]interface{}, plans map[string][]target.Activation) (string, error) {
	activations, called, err := m.activations(ctx, v.Elements)
	if reason, ok := variables.SkipReason(err); ok {
		return reason, nil
	}
	if err != nil {
		return "", err
	}
	if len(processVars) > 0 && len(activations) > 0 {
		activations[0].Variables = append(activations[0].Variables, target.ScopedVariables{
			ScopeID:   v.Definition.BPMNProcessID,
			Variables: processVars,
		})
	}
	plans[legacyID] = activations

	for _, calledID := range called {
		reason, err := m.planCalled(ctx, calledID, plans)
		if err != nil {
			return "", fmt.Errorf("called instance %s: %w", calledID, err)
		}
		if reason != "" {
			m.logger.WithInstance(calledID).Infow("Called instance cannot be transplanted",
				"root", legacyID, "reason", reason)
			return reason, nil
		}
	}
	return "", nil
}

// planCalled validates a called instance against its own target model and
// plans it together with its process variables.
func (m *Migrator) planCalled(ctx context.Context, calledID string, plans map[string][]target.Activation) (string, error) {
	if _, ok := plans[calledID]; ok {
		return "", nil
	}
	inst, err := m.source.GetInstance(ctx, calledID)
	if errors.Is(err, legacy.ErrNotFound) {
		return types.ReasonLegacyInstanceNotActive, nil
	}
	if err != nil {
		return "", err
	}

	v, err := m.validator.Validate(ctx, inst)
	if err != nil {
		return "", err
	}
	if v.Reason != "" {
		return v.Reason, nil
	}

	processVars, reason, err := m.convertScope(ctx, calledID)
	if err != nil || reason != "" {
		return reason, err
	}
	return m.plan(ctx, calledID, v, processVars, plans)
}

// activations builds one activation per active element, carrying the
// element's converted local variables. A call activity hosting a called
// instance also carries that instance's legacy id, so its own handshake
// can be correlated. The called instance ids are returned in element order.
func (m *Migrator) activations(ctx context.Context, elements []ActiveElement) ([]target.Activation, []string, error) {
	out := make([]target.Activation, 0, len(elements))
	var called []string
	for _, el := range elements {
		a := target.Activation{ElementID: el.ElementID}
		if el.Transition {
			out = append(out, a)
			continue
		}

		values, err := m.source.Variables(ctx, el.ID)
		if err != nil {
			return nil, nil, err
		}
		if el.MultiInstanceBody {
			kept := values[:0:0]
			for _, v := range values {
				if !multiInstanceCounters[v.Name] {
					kept = append(kept, v)
				}
			}
			values = kept
		}
		local, err := m.pipeline.ConvertAll(values)
		if err != nil {
			return nil, nil, err
		}

		if el.IsCallActivity() {
			id, err := m.source.CalledProcessInstance(ctx, el.ID)
			if err != nil {
				return nil, nil, err
			}
			if id != "" {
				local[LegacyIDVariable] = id
				called = append(called, id)
			}
		}

		if len(local) > 0 {
			a.Variables = []target.ScopedVariables{{Variables: local}}
		}
		out = append(out, a)
	}
	return out, called, nil
}

// handshakes activates migrator jobs until a poll returns none.
func (r *run) handshakes(ctx context.Context) error {
	req := target.JobRequest{
		Type:           r.runtime.JobType,
		Worker:         WorkerName,
		MaxJobs:        r.runtime.MaxJobsToActivate,
		LockTimeout:    r.runtime.JobLockTimeout,
		RequestTimeout: r.runtime.JobActivationTimeout,
		FetchVariables: []string{LegacyIDVariable},
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		jobs, err := r.engine.ActivateJobs(ctx, req)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			r.log.Infof("No %s jobs activated within %s, handshake phase done", req.Type, req.RequestTimeout)
			return nil
		}
		for _, job := range jobs {
			if err := r.handshake(ctx, job); err != nil {
				return err
			}
		}
	}
}

// handshake moves the tokens of one correlated legacy instance onto the
// target instance of job in a single modification. The start event token
// that holds the job is terminated, which also removes the job.
func (r *run) handshake(ctx context.Context, job target.Job) error {
	legacyID, _ := job.Variables[LegacyIDVariable].(string)
	if legacyID == "" {
		r.log.Debugw("Ignoring job without legacy id", "job_key", job.Key, "process_instance_key", job.ProcessInstanceKey)
		return nil
	}
	log := r.log.WithInstance(legacyID)

	activations, ok := r.pending[legacyID]
	if !ok {
		reason, err := r.replan(ctx, legacyID)
		if err != nil {
			return fmt.Errorf("instance %s: %w", legacyID, err)
		}
		if reason != "" {
			return r.incomplete(ctx, legacyID, job, reason)
		}
		activations = r.pending[legacyID]
	}

	mod := target.Modification{
		ProcessInstanceKey: job.ProcessInstanceKey,
		Activate:           activations,
		Terminate:          []int64{job.ElementInstanceKey},
	}
	if err := r.engine.ModifyInstance(ctx, mod); err != nil {
		return fmt.Errorf("instance %s: %w", legacyID, err)
	}
	delete(r.pending, legacyID)
	r.transplanted++
	log.Infow("Transplanted instance", "process_instance_key", job.ProcessInstanceKey, "elements", len(activations))
	return nil
}

// replan plans the handshake of an instance started by an earlier run,
// together with the instances it called. Root instances carry a ledger row
// and had their variables set on creation; called instances do not.
func (r *run) replan(ctx context.Context, legacyID string) (string, error) {
	root, err := r.ledger.HasTargetKey(ctx, legacyID, runtimeType)
	if err != nil {
		return "", fmt.Errorf("ledger lookup: %w", err)
	}

	plans := make(map[string][]target.Activation)
	var reason string
	if root {
		reason, err = r.replanRoot(ctx, legacyID, plans)
	} else {
		reason, err = r.planCalled(ctx, legacyID, plans)
	}
	if err != nil || reason != "" {
		return reason, err
	}
	for id, activations := range plans {
		r.pending[id] = activations
	}
	return "", nil
}

func (r *run) replanRoot(ctx context.Context, legacyID string, plans map[string][]target.Activation) (string, error) {
	inst, err := r.source.GetInstance(ctx, legacyID)
	if errors.Is(err, legacy.ErrNotFound) {
		return types.ReasonLegacyInstanceNotActive, nil
	}
	if err != nil {
		return "", err
	}
	v, err := r.validator.Validate(ctx, inst)
	if err != nil {
		return "", err
	}
	if v.Reason != "" {
		return v.Reason, nil
	}
	return r.plan(ctx, legacyID, v, nil, plans)
}

// incomplete records a target instance whose handshake cannot be applied.
// The target instance stays on its start event.
func (r *run) incomplete(ctx context.Context, legacyID string, job target.Job, reason string) error {
	recorded, err := r.ledger.RecordIncomplete(ctx, legacyID, runtimeType, reason)
	if err != nil {
		return fmt.Errorf("instance %s: %w", legacyID, err)
	}
	r.summary.AddSkipped(runtimeType, reason)
	r.metrics.Skipped(runtimeType, reason)
	r.log.WithInstance(legacyID).Warnw("Cannot transplant instance",
		"reason", reason,
		"process_instance_key", job.ProcessInstanceKey,
		"ledger_row", recorded,
	)
	return nil
}
