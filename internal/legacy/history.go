package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbsmedya/gomigrator/internal/types"
	"github.com/dbsmedya/gomigrator/internal/variables"
)

// ErrNotFound is returned by point lookups for an unknown legacy id.
var ErrNotFound = errors.New("legacy record not found")

// HistorySource is the paginated query side of the legacy history store.
// Pages are ordered by (CreatedAt, LegacyID) ascending. A zero since
// disables the lower bound.
type HistorySource interface {
	Count(ctx context.Context, t types.EntityType, since time.Time) (int64, error)
	Page(ctx context.Context, t types.EntityType, since time.Time, offset, limit int) ([]Record, error)
	Get(ctx context.Context, t types.EntityType, legacyID string) (Record, error)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// query describes how one entity type is read from the history schema.
type query struct {
	columns string
	from    string
	timeCol string
	idCol   string
	scan    func(scanner) (Record, error)
}

var queries = map[types.EntityType]query{
	types.ProcessDefinition: {
		columns: "d.ID_, d.KEY_, d.NAME_, d.VERSION_, d.VERSION_TAG_, d.DEPLOYMENT_ID_, d.RESOURCE_NAME_, d.TENANT_ID_, dep.DEPLOY_TIME_, b.BYTES_",
		from:    "ACT_RE_PROCDEF d JOIN ACT_RE_DEPLOYMENT dep ON dep.ID_ = d.DEPLOYMENT_ID_ LEFT JOIN ACT_GE_BYTEARRAY b ON b.DEPLOYMENT_ID_ = d.DEPLOYMENT_ID_ AND b.NAME_ = d.RESOURCE_NAME_",
		timeCol: "dep.DEPLOY_TIME_",
		idCol:   "d.ID_",
		scan:    scanProcessDefinition,
	},
	types.ProcessInstance: {
		columns: "ID_, BUSINESS_KEY_, PROC_DEF_ID_, PROC_DEF_KEY_, SUPER_PROCESS_INSTANCE_ID_, ROOT_PROC_INST_ID_, STATE_, TENANT_ID_, START_TIME_, END_TIME_",
		from:    "ACT_HI_PROCINST",
		timeCol: "START_TIME_",
		idCol:   "ID_",
		scan:    scanProcessInstance,
	},
	types.DecisionRequirementsDefinition: {
		columns: "r.ID_, r.KEY_, r.NAME_, r.VERSION_, r.DEPLOYMENT_ID_, r.RESOURCE_NAME_, r.TENANT_ID_, dep.DEPLOY_TIME_",
		from:    "ACT_RE_DECISION_REQ_DEF r JOIN ACT_RE_DEPLOYMENT dep ON dep.ID_ = r.DEPLOYMENT_ID_",
		timeCol: "dep.DEPLOY_TIME_",
		idCol:   "r.ID_",
		scan:    scanDecisionRequirements,
	},
	types.DecisionDefinition: {
		columns: "d.ID_, d.KEY_, d.NAME_, d.VERSION_, d.DEC_REQ_ID_, d.DEPLOYMENT_ID_, d.TENANT_ID_, dep.DEPLOY_TIME_",
		from:    "ACT_RE_DECISION_DEF d JOIN ACT_RE_DEPLOYMENT dep ON dep.ID_ = d.DEPLOYMENT_ID_",
		timeCol: "dep.DEPLOY_TIME_",
		idCol:   "d.ID_",
		scan:    scanDecisionDefinition,
	},
	types.DecisionInstance: {
		columns: "ID_, DEC_DEF_ID_, DEC_DEF_KEY_, PROC_DEF_ID_, PROC_INST_ID_, ACT_INST_ID_, ACT_ID_, ROOT_DEC_INST_ID_, TENANT_ID_, EVAL_TIME_",
		from:    "ACT_HI_DECINST",
		timeCol: "EVAL_TIME_",
		idCol:   "ID_",
		scan:    scanDecisionInstance,
	},
	types.Incident: {
		columns: "ID_, PROC_DEF_ID_, PROC_INST_ID_, EXECUTION_ID_, ACTIVITY_ID_, INCIDENT_TYPE_, INCIDENT_MSG_, INCIDENT_STATE_, TENANT_ID_, CREATE_TIME_, END_TIME_",
		from:    "ACT_HI_INCIDENT",
		timeCol: "CREATE_TIME_",
		idCol:   "ID_",
		scan:    scanIncident,
	},
	types.FlowNode: {
		columns: "ID_, PARENT_ACT_INST_ID_, PROC_DEF_ID_, PROC_INST_ID_, ACT_ID_, ACT_NAME_, ACT_TYPE_, TENANT_ID_, START_TIME_, END_TIME_",
		from:    "ACT_HI_ACTINST",
		timeCol: "START_TIME_",
		idCol:   "ID_",
		scan:    scanFlowNode,
	},
	types.UserTask: {
		columns: "ID_, PROC_DEF_ID_, PROC_INST_ID_, ACT_INST_ID_, TASK_DEF_KEY_, NAME_, ASSIGNEE_, PRIORITY_, DELETE_REASON_, TENANT_ID_, START_TIME_, END_TIME_, DUE_DATE_",
		from:    "ACT_HI_TASKINST",
		timeCol: "START_TIME_",
		idCol:   "ID_",
		scan:    scanUserTask,
	},
	types.Variable: {
		columns: "v.ID_, v.NAME_, v.VAR_TYPE_, v.PROC_DEF_ID_, v.PROC_INST_ID_, v.ACT_INST_ID_, v.TASK_ID_, v.TENANT_ID_, v.CREATE_TIME_, v.DOUBLE_, v.LONG_, v.TEXT_, v.TEXT2_, b.BYTES_",
		from:    "ACT_HI_VARINST v LEFT JOIN ACT_GE_BYTEARRAY b ON b.ID_ = v.BYTEARRAY_ID_",
		timeCol: "v.CREATE_TIME_",
		idCol:   "v.ID_",
		scan:    scanVariable,
	},
}

// Tables lists the legacy tables each entity type reads from.
func Tables(t types.EntityType) []string {
	switch t {
	case types.ProcessDefinition:
		return []string{"ACT_RE_PROCDEF", "ACT_RE_DEPLOYMENT", "ACT_GE_BYTEARRAY"}
	case types.ProcessInstance:
		return []string{"ACT_HI_PROCINST"}
	case types.DecisionRequirementsDefinition:
		return []string{"ACT_RE_DECISION_REQ_DEF", "ACT_RE_DEPLOYMENT"}
	case types.DecisionDefinition:
		return []string{"ACT_RE_DECISION_DEF", "ACT_RE_DEPLOYMENT"}
	case types.DecisionInstance:
		return []string{"ACT_HI_DECINST"}
	case types.Incident:
		return []string{"ACT_HI_INCIDENT"}
	case types.FlowNode:
		return []string{"ACT_HI_ACTINST"}
	case types.UserTask:
		return []string{"ACT_HI_TASKINST"}
	case types.Variable:
		return []string{"ACT_HI_VARINST", "ACT_GE_BYTEARRAY"}
	}
	return nil
}

// SQLHistorySource reads the legacy history schema over SQL.
type SQLHistorySource struct {
	db *sql.DB
}

// NewSQLHistorySource creates a history source on the legacy database.
func NewSQLHistorySource(db *sql.DB) (*SQLHistorySource, error) {
	if db == nil {
		return nil, fmt.Errorf("legacy database is nil")
	}
	return &SQLHistorySource{db: db}, nil
}

func lookup(t types.EntityType) (query, error) {
	q, ok := queries[t]
	if !ok {
		return query{}, fmt.Errorf("no history query for entity type %q", t)
	}
	return q, nil
}

func (q query) where(since time.Time) (string, []interface{}) {
	if since.IsZero() {
		return "", nil
	}
	return fmt.Sprintf(" WHERE %s >= ?", q.timeCol), []interface{}{since}
}

// Count returns the number of records created at or after since.
func (s *SQLHistorySource) Count(ctx context.Context, t types.EntityType, since time.Time) (int64, error) {
	q, err := lookup(t)
	if err != nil {
		return 0, err
	}

	where, args := q.where(since)
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.from, where)

	var count int64
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t, err)
	}
	return count, nil
}

// Page returns up to limit records created at or after since, skipping
// offset records.
func (s *SQLHistorySource) Page(ctx context.Context, t types.EntityType, since time.Time, offset, limit int) ([]Record, error) {
	q, err := lookup(t)
	if err != nil {
		return nil, err
	}

	where, args := q.where(since)
	stmt := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s, %s LIMIT ? OFFSET ?",
		q.columns, q.from, where, q.timeCol, q.idCol)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s page: %w", t, err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := q.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", t, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s page: %w", t, err)
	}
	return records, nil
}

// Get loads a single record by legacy id.
func (s *SQLHistorySource) Get(ctx context.Context, t types.EntityType, legacyID string) (Record, error) {
	q, err := lookup(t)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", q.columns, q.from, q.idCol)
	rec, err := q.scan(s.db.QueryRowContext(ctx, stmt, legacyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", t, legacyID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", t, legacyID, err)
	}
	return rec, nil
}

func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func scanProcessDefinition(row scanner) (Record, error) {
	var (
		r                           ProcessDefinition
		name, tag, resource, tenant sql.NullString
		deployed                    sql.NullTime
		xml                         []byte
	)
	if err := row.Scan(&r.ID, &r.Key, &name, &r.Version, &tag, &r.DeploymentID, &resource, &tenant, &deployed, &xml); err != nil {
		return nil, err
	}
	r.Name, r.VersionTag, r.ResourceName, r.TenantID = name.String, tag.String, resource.String, tenant.String
	r.DeployTime = timeOrZero(deployed)
	r.BPMNXML = string(xml)
	return &r, nil
}

func scanProcessInstance(row scanner) (Record, error) {
	var (
		r                                       ProcessInstance
		businessKey, defKey, super, root, state sql.NullString
		tenant                                  sql.NullString
		start, end                              sql.NullTime
	)
	if err := row.Scan(&r.ID, &businessKey, &r.ProcessDefinitionID, &defKey, &super, &root, &state, &tenant, &start, &end); err != nil {
		return nil, err
	}
	r.BusinessKey, r.ProcessDefinitionKey = businessKey.String, defKey.String
	r.SuperProcessInstanceID, r.RootProcessInstanceID = super.String, root.String
	r.State, r.TenantID = state.String, tenant.String
	r.StartTime, r.EndTime = timeOrZero(start), timePtr(end)
	return &r, nil
}

func scanDecisionRequirements(row scanner) (Record, error) {
	var (
		r                      DecisionRequirementsDefinition
		name, resource, tenant sql.NullString
		deployed               sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Key, &name, &r.Version, &r.DeploymentID, &resource, &tenant, &deployed); err != nil {
		return nil, err
	}
	r.Name, r.ResourceName, r.TenantID = name.String, resource.String, tenant.String
	r.DeployTime = timeOrZero(deployed)
	return &r, nil
}

func scanDecisionDefinition(row scanner) (Record, error) {
	var (
		r                 DecisionDefinition
		name, drd, tenant sql.NullString
		deployed          sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Key, &name, &r.Version, &drd, &r.DeploymentID, &tenant, &deployed); err != nil {
		return nil, err
	}
	r.Name, r.DecisionRequirementsID, r.TenantID = name.String, drd.String, tenant.String
	r.DeployTime = timeOrZero(deployed)
	return &r, nil
}

func scanDecisionInstance(row scanner) (Record, error) {
	var (
		r                                         DecisionInstance
		defKey, procDef, procInst, actInst, actID sql.NullString
		root, tenant                              sql.NullString
		evaluated                                 sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.DecisionDefinitionID, &defKey, &procDef, &procInst, &actInst, &actID, &root, &tenant, &evaluated); err != nil {
		return nil, err
	}
	r.DecisionDefinitionKey, r.ProcessDefinitionID, r.ProcessInstanceID = defKey.String, procDef.String, procInst.String
	r.ActivityInstanceID, r.ActivityID = actInst.String, actID.String
	r.RootDecisionInstanceID, r.TenantID = root.String, tenant.String
	r.EvaluationTime = timeOrZero(evaluated)
	return &r, nil
}

// incidentStates maps the numeric incident state column.
var incidentStates = map[int64]string{0: "ACTIVE", 1: "DELETED", 2: "RESOLVED"}

func scanIncident(row scanner) (Record, error) {
	var (
		r                                      Incident
		procDef, procInst, execution, activity sql.NullString
		incidentType, msg, tenant              sql.NullString
		state                                  sql.NullInt64
		created, ended                         sql.NullTime
	)
	if err := row.Scan(&r.ID, &procDef, &procInst, &execution, &activity, &incidentType, &msg, &state, &tenant, &created, &ended); err != nil {
		return nil, err
	}
	r.ProcessDefinitionID, r.ProcessInstanceID = procDef.String, procInst.String
	r.ExecutionID, r.ActivityID = execution.String, activity.String
	r.IncidentType, r.Message, r.TenantID = incidentType.String, msg.String, tenant.String
	r.State = incidentStates[state.Int64]
	r.CreateTime, r.EndTime = timeOrZero(created), timePtr(ended)
	return &r, nil
}

func scanFlowNode(row scanner) (Record, error) {
	var (
		r                    FlowNode
		parent, name, tenant sql.NullString
		start, end           sql.NullTime
	)
	if err := row.Scan(&r.ID, &parent, &r.ProcessDefinitionID, &r.ProcessInstanceID, &r.ActivityID, &name, &r.ActivityType, &tenant, &start, &end); err != nil {
		return nil, err
	}
	r.ParentActivityID, r.ActivityName, r.TenantID = parent.String, name.String, tenant.String
	r.StartTime, r.EndTime = timeOrZero(start), timePtr(end)
	return &r, nil
}

func scanUserTask(row scanner) (Record, error) {
	var (
		r                                    UserTask
		procDef, procInst, actInst, defKey   sql.NullString
		name, assignee, deleteReason, tenant sql.NullString
		priority                             sql.NullInt64
		start, end, due                      sql.NullTime
	)
	if err := row.Scan(&r.ID, &procDef, &procInst, &actInst, &defKey, &name, &assignee, &priority, &deleteReason, &tenant, &start, &end, &due); err != nil {
		return nil, err
	}
	r.ProcessDefinitionID, r.ProcessInstanceID, r.ActivityInstanceID = procDef.String, procInst.String, actInst.String
	r.TaskDefinitionKey, r.Name, r.Assignee = defKey.String, name.String, assignee.String
	r.DeleteReason, r.TenantID = deleteReason.String, tenant.String
	r.Priority = int(priority.Int64)
	r.StartTime, r.EndTime, r.DueDate = timeOrZero(start), timePtr(end), timePtr(due)
	return &r, nil
}

func scanVariable(row scanner) (Record, error) {
	var (
		r                                         Variable
		name, varType, procDef, procInst, actInst sql.NullString
		task, tenant, text, text2                 sql.NullString
		created                                   sql.NullTime
		double                                    sql.NullFloat64
		long                                      sql.NullInt64
		bytes                                     []byte
	)
	if err := row.Scan(&r.ID, &name, &varType, &procDef, &procInst, &actInst, &task, &tenant, &created, &double, &long, &text, &text2, &bytes); err != nil {
		return nil, err
	}
	r.ProcessDefinitionID, r.ProcessInstanceID, r.ActivityInstanceID = procDef.String, procInst.String, actInst.String
	r.TaskID, r.TenantID = task.String, tenant.String
	r.CreateTime = timeOrZero(created)
	r.Value = columnValue(name.String, varType.String, double, long, text, text2, bytes)
	return &r, nil
}

// columnValue rebuilds a typed value from the history value columns.
func columnValue(name, typeName string, double sql.NullFloat64, long sql.NullInt64, text, text2 sql.NullString, bytes []byte) variables.Value {
	v := variables.Value{Name: name, Kind: variables.ParseKind(typeName)}

	switch v.Kind {
	case variables.KindString, variables.KindXML:
		if text.Valid {
			v.Raw = text.String
		}
	case variables.KindJSON:
		if text.Valid {
			v.Raw = text.String
		} else if bytes != nil {
			v.Raw = bytes
		}
	case variables.KindBoolean, variables.KindShort, variables.KindInteger, variables.KindLong, variables.KindDate:
		if long.Valid {
			v.Raw = long.Int64
		}
	case variables.KindDouble:
		if double.Valid {
			v.Raw = double.Float64
		}
	case variables.KindObject:
		v.ObjectTypeName = text.String
		v.SerializationFormat = strings.TrimSpace(text2.String)
		if bytes != nil {
			v.Raw = bytes
		}
	case variables.KindBytes, variables.KindFile:
		if bytes != nil {
			v.Raw = bytes
		}
	}
	return v
}
