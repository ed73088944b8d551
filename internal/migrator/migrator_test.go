package migrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dbsmedya/gomigrator/internal/report"
	"github.com/dbsmedya/gomigrator/internal/types"
	"github.com/dbsmedya/gomigrator/internal/variables"
)

func stats(t *testing.T, h *harness, et types.EntityType) types.TypeStats {
	t.Helper()
	s, err := h.ledger.Stats(context.Background(), et)
	require.NoError(t, err)
	return s
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "migrate", ModeMigrate.String())
	assert.Equal(t, "retry-skipped", ModeRetrySkipped.String())
	assert.Equal(t, "list-skipped", ModeListSkipped.String())
}

func TestNewHistoryMigrator_Validation(t *testing.T) {
	_, err := NewHistoryMigrator(Deps{}, configWithPageSize(10))
	assert.Error(t, err)
}

func TestRun_FiveInstancesInPagesOfTwo(t *testing.T) {
	h := newHarness(t, 2,
		processDefinition("pd-1", 0),
		processInstance("pi-1", "pd-1", 10),
		processInstance("pi-2", "pd-1", 11),
		processInstance("pi-3", "pd-1", 12),
		processInstance("pi-4", "pd-1", 13),
		processInstance("pi-5", "pd-1", 14),
	)

	summary, err := h.m.Run(context.Background(), "run-1", ModeMigrate, types.ProcessDefinition, types.ProcessInstance)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, h.source.pageSizes(types.ProcessInstance))
	s := stats(t, h, types.ProcessInstance)
	assert.Equal(t, int64(5), s.Migrated)
	assert.Equal(t, int64(0), s.Skipped)
	assert.Len(t, h.writer.table("process_instance"), 5)

	pi, ok := summary.Type(types.ProcessInstance)
	require.True(t, ok)
	assert.Equal(t, report.StatusCompleted, pi.Status)
	assert.Equal(t, int64(5), pi.Migrated)
	assert.Equal(t, 3, pi.Pages)
}

func TestRun_IsIdempotent(t *testing.T) {
	h := newHarness(t, 2,
		processDefinition("pd-1", 0),
		processInstance("pi-1", "pd-1", 10),
		processInstance("pi-2", "pd-1", 11),
		processInstance("pi-3", "pd-1", 11),
	)
	ctx := context.Background()

	_, err := h.m.Run(ctx, "run-1", ModeMigrate)
	require.NoError(t, err)
	summary, err := h.m.Run(ctx, "run-2", ModeMigrate)
	require.NoError(t, err)

	// The high-water mark is inclusive: both records sharing it are fetched
	// again and recognized as present.
	pi, _ := summary.Type(types.ProcessInstance)
	assert.Equal(t, int64(0), pi.Migrated)
	assert.Equal(t, int64(2), pi.Existing)

	assert.Len(t, h.writer.table("process_instance"), 3)
	assert.Equal(t, int64(3), stats(t, h, types.ProcessInstance).Total())
}

func TestRun_DependencyGating(t *testing.T) {
	h := newHarness(t, 10, processInstance("pi-1", "pd-missing", 10))

	summary, err := h.m.Run(context.Background(), "run", ModeMigrate)
	require.NoError(t, err)

	rec, err := h.ledger.Get(context.Background(), "pi-1", types.ProcessInstance)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Migrated())
	assert.Equal(t, types.ReasonMissingProcessDefinition, rec.SkipReason.String)
	assert.Equal(t, at(10), rec.CreateTime)
	assert.Empty(t, h.writer.table("process_instance"))

	pi, _ := summary.Type(types.ProcessInstance)
	assert.Equal(t, int64(1), pi.Reasons[types.ReasonMissingProcessDefinition])
}

func TestRun_RetryPromotesSkipped(t *testing.T) {
	h := newHarness(t, 10, processInstance("pi-1", "pd-1", 10))
	ctx := context.Background()

	_, err := h.m.Run(ctx, "run-1", ModeMigrate)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats(t, h, types.ProcessInstance).Skipped)

	// The definition shows up in the legacy store later.
	h.source.add(processDefinition("pd-1", 0))
	_, err = h.m.Run(ctx, "run-2", ModeMigrate, types.ProcessDefinition)
	require.NoError(t, err)

	summary, err := h.m.Run(ctx, "run-3", ModeRetrySkipped, types.ProcessInstance)
	require.NoError(t, err)

	s := stats(t, h, types.ProcessInstance)
	assert.Equal(t, int64(1), s.Migrated)
	assert.Equal(t, int64(0), s.Skipped)
	assert.Equal(t, int64(1), s.Total(), "promotion must not duplicate the ledger row")
	assert.Len(t, h.writer.table("process_instance"), 1)

	pi, _ := summary.Type(types.ProcessInstance)
	assert.Equal(t, int64(1), pi.Migrated)
}

func TestRun_RetryKeepsStillMissingDependencies(t *testing.T) {
	h := newHarness(t, 10, processInstance("pi-1", "pd-1", 10))
	ctx := context.Background()

	_, err := h.m.Run(ctx, "run-1", ModeMigrate)
	require.NoError(t, err)
	summary, err := h.m.Run(ctx, "run-2", ModeRetrySkipped)
	require.NoError(t, err)

	pi, _ := summary.Type(types.ProcessInstance)
	assert.Equal(t, int64(1), pi.Skipped)
	assert.Equal(t, int64(1), stats(t, h, types.ProcessInstance).Total())
	assert.Empty(t, h.writer.table("process_instance"))
}

func TestRun_ListSkippedDoesNotMutate(t *testing.T) {
	h := newHarness(t, 1,
		processInstance("pi-1", "pd-1", 10),
		processInstance("pi-2", "pd-1", 11),
	)
	ctx := context.Background()

	_, err := h.m.Run(ctx, "run-1", ModeMigrate)
	require.NoError(t, err)
	h.source.add(processDefinition("pd-1", 0))

	summary, err := h.m.Run(ctx, "run-2", ModeListSkipped, types.ProcessInstance)
	require.NoError(t, err)

	records := summary.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "pi-1", records[0].LegacyID)
	assert.Equal(t, types.ReasonMissingProcessDefinition, records[1].Reason)
	assert.Equal(t, int64(2), stats(t, h, types.ProcessInstance).Skipped)
	assert.Equal(t, int64(0), stats(t, h, types.ProcessDefinition).Total())
}

func TestRun_UnsupportedByteArraySkipsVariable(t *testing.T) {
	h := newHarness(t, 10,
		processDefinition("pd-1", 0),
		processInstance("pi-1", "pd-1", 10),
		variable("var-1", "pi-1", "pi-1", "", variables.Value{Name: "blob", Kind: variables.KindBytes, Raw: []byte{1, 2}}, 11),
		variable("var-2", "pi-1", "", "", variables.Value{Name: "ok", Kind: variables.KindString, Raw: "fine"}, 12),
	)

	_, err := h.m.Run(context.Background(), "run", ModeMigrate)
	require.NoError(t, err)

	rec, err := h.ledger.Get(context.Background(), "var-1", types.Variable)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, types.ReasonUnsupportedByteArray, rec.SkipReason.String)

	rows := h.writer.table("variable")
	require.Len(t, rows, 1)
	name, _ := rows[0].Get("name")
	assert.Equal(t, "ok", name)
}

func TestRun_VariableScopes(t *testing.T) {
	h := newHarness(t, 10,
		processDefinition("pd-1", 0),
		processInstance("pi-1", "pd-1", 10),
		flowNode("act-1", "pi-1", "pd-1", 11),
		userTask("task-skipped", "pi-1", "pd-1", "act-unknown", 12),
		variable("var-local", "pi-1", "act-1", "", variables.Value{Name: "local", Kind: variables.KindInteger, Raw: int64(3)}, 13),
		variable("var-task", "pi-1", "act-unknown", "task-skipped", variables.Value{Name: "t", Kind: variables.KindBoolean, Raw: true}, 14),
		variable("var-orphan", "pi-1", "act-gone", "", variables.Value{Name: "o", Kind: variables.KindString, Raw: "x"}, 15),
	)
	ctx := context.Background()

	_, err := h.m.Run(ctx, "run", ModeMigrate)
	require.NoError(t, err)

	task, err := h.ledger.Get(ctx, "task-skipped", types.UserTask)
	require.NoError(t, err)
	assert.Equal(t, types.ReasonMissingFlowNode, task.SkipReason.String)

	taskVar, err := h.ledger.Get(ctx, "var-task", types.Variable)
	require.NoError(t, err)
	assert.Equal(t, types.ReasonBelongsToSkippedTask, taskVar.SkipReason.String)

	orphan, err := h.ledger.Get(ctx, "var-orphan", types.Variable)
	require.NoError(t, err)
	assert.Equal(t, types.ReasonMissingScopeKey, orphan.SkipReason.String)

	fnKey, ok, err := h.ledger.FindTargetKey(ctx, "act-1", types.FlowNode)
	require.NoError(t, err)
	require.True(t, ok)

	rows := h.writer.table("variable")
	require.Len(t, rows, 1)
	scope, _ := rows[0].Get("scope_key")
	assert.Equal(t, fnKey, scope)
	value, _ := rows[0].Get("value")
	assert.Equal(t, "3", value)
}

func TestRun_FatalFailureCancelsDescendantsOnly(t *testing.T) {
	h := newHarness(t, 10,
		processDefinition("pd-1", 0),
		processInstance("pi-1", "pd-1", 10),
		flowNode("act-1", "pi-1", "pd-1", 11),
		userTask("task-1", "pi-1", "pd-1", "act-1", 12),
		&legacyIncident,
	)
	boom := errors.New("target store unavailable")
	h.writer.fail["flow_node_instance"] = boom

	summary, err := h.m.Run(context.Background(), "run", ModeMigrate)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Failed, types.FlowNode)
	assert.ElementsMatch(t, []types.EntityType{types.DecisionInstance, types.UserTask, types.Variable}, perr.Canceled)

	status := func(et types.EntityType) string {
		e, _ := summary.Type(et)
		return e.Status
	}
	assert.Equal(t, report.StatusFailed, status(types.FlowNode))
	assert.Equal(t, report.StatusCanceled, status(types.UserTask))
	assert.Equal(t, report.StatusCompleted, status(types.Incident))
	assert.Equal(t, report.StatusCompleted, status(types.DecisionDefinition))

	assert.Len(t, h.writer.table("incident"), 1)
	assert.Empty(t, h.writer.table("user_task"))
	assert.Equal(t, int64(0), stats(t, h, types.FlowNode).Total(), "fatal failures are not recorded")
}

func TestRun_DecisionChain(t *testing.T) {
	h := newHarness(t, 10,
		&legacyDRD,
		&legacyDD,
		&legacyRootDecision,
		&legacyChildDecision,
	)
	ctx := context.Background()

	_, err := h.m.Run(ctx, "run", ModeMigrate)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats(t, h, types.DecisionDefinition).Migrated)
	assert.Equal(t, int64(2), stats(t, h, types.DecisionInstance).Migrated)

	rootKey, _, err := h.ledger.FindTargetKey(ctx, legacyRootDecision.ID, types.DecisionInstance)
	require.NoError(t, err)
	rows := h.writer.table("decision_instance")
	require.Len(t, rows, 2)
	root, _ := rows[1].Get("root_decision_instance_key")
	assert.Equal(t, rootKey, root)
}

func TestRun_RejectsRuntimeType(t *testing.T) {
	h := newHarness(t, 10)
	_, err := h.m.Run(context.Background(), "run", ModeMigrate, types.RuntimeProcessInstance)
	assert.Error(t, err)
}

func TestRun_NoGoroutineLeaks(t *testing.T) {
	h := newHarness(t, 2,
		processDefinition("pd-1", 0),
		processInstance("pi-1", "pd-1", 10),
		flowNode("act-1", "pi-1", "pd-1", 11),
	)
	h.writer.fail["flow_node_instance"] = errors.New("boom")
	ignore := goleak.IgnoreCurrent()

	_, err := h.m.Run(context.Background(), "run", ModeMigrate)
	require.Error(t, err)
	goleak.VerifyNone(t, ignore)
}

func TestRun_CanceledContext(t *testing.T) {
	h := newHarness(t, 10, processDefinition("pd-1", 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.m.Run(ctx, "run", ModeMigrate, types.ProcessDefinition)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrder(t *testing.T) {
	h := newHarness(t, 10)
	order, err := h.m.Order(types.Variable, types.ProcessInstance, types.FlowNode)
	require.NoError(t, err)
	assert.Equal(t, []types.EntityType{types.ProcessInstance, types.FlowNode, types.Variable}, order)
}
