package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/types"
	"github.com/dbsmedya/gomigrator/internal/variables"
)

// Built-in priorities. Lower runs first; first Set wins.
const (
	PriorityEntity    = 100
	PriorityVariables = 200
	PriorityTenant    = 300
)

// Built-in interceptor names, usable in migration.disabled_interceptors.
const (
	NameProcessDefinition = "process_definition"
	NameProcessInstance   = "process_instance"
	NameDecisionReqs      = "decision_requirements"
	NameDecisionDef       = "decision_definition"
	NameDecisionInstance  = "decision_instance"
	NameIncident          = "incident"
	NameFlowNode          = "flow_node"
	NameUserTask          = "user_task"
	NameVariable          = "variable"
	NameVariableValue     = "variable_value"
	NameTenant            = "tenant"
)

// DefaultChain registers the built-in interceptors.
func DefaultChain(pipeline *variables.Pipeline, defaultTenant string) *Chain {
	c := NewChain()
	builtins := []Interceptor{
		Func(NameProcessDefinition, processDefinition, types.ProcessDefinition),
		Func(NameProcessInstance, processInstance, types.ProcessInstance),
		Func(NameDecisionReqs, decisionRequirements, types.DecisionRequirementsDefinition),
		Func(NameDecisionDef, decisionDefinition, types.DecisionDefinition),
		Func(NameDecisionInstance, decisionInstance, types.DecisionInstance),
		Func(NameIncident, incident, types.Incident),
		Func(NameFlowNode, flowNode, types.FlowNode),
		Func(NameUserTask, userTask, types.UserTask),
		Func(NameVariable, variable, types.Variable),
	}
	for _, i := range builtins {
		// Names are distinct constants.
		_ = c.Register(i, PriorityEntity)
	}
	_ = c.Register(VariableValue(pipeline), PriorityVariables)
	_ = c.Register(Tenant(defaultTenant), PriorityTenant)
	return c
}

// Tenant fills tenant_id, mapping the legacy null tenant to defaultTenant.
func Tenant(defaultTenant string) Interceptor {
	return Func(NameTenant, func(c *Context) error {
		tenant := c.Source.Tenant()
		if tenant == "" {
			tenant = defaultTenant
		}
		c.Target.Set("tenant_id", tenant)
		return nil
	})
}

// VariableValue runs the variable pipeline and stores the JSON encoded
// result. Unsupported values surface as *variables.UnsupportedValueError.
func VariableValue(pipeline *variables.Pipeline) Interceptor {
	return Func(NameVariableValue, func(c *Context) error {
		v, ok := c.Source.(*legacy.Variable)
		if !ok {
			return fmt.Errorf("expected variable, got %T", c.Source)
		}
		converted, err := pipeline.Convert(v.Value)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(converted)
		if err != nil {
			return fmt.Errorf("failed to encode variable %q: %w", v.Value.Name, err)
		}
		c.Target.Set("value", string(encoded))
		return nil
	}, types.Variable)
}

func processDefinition(c *Context) error {
	pd := c.Source.(*legacy.ProcessDefinition)
	r := c.Target
	r.Set("process_definition_id", pd.Key)
	r.Set("name", pd.Name)
	r.Set("version", pd.Version)
	r.Set("version_tag", pd.VersionTag)
	r.Set("resource_name", pd.ResourceName)
	r.Set("bpmn_xml", pd.BPMNXML)
	return nil
}

// processInstanceStates maps legacy instance states.
var processInstanceStates = map[string]string{
	"ACTIVE":                "ACTIVE",
	"SUSPENDED":             "ACTIVE",
	"COMPLETED":             "COMPLETED",
	"EXTERNALLY_TERMINATED": "CANCELED",
	"INTERNALLY_TERMINATED": "CANCELED",
}

func processInstance(c *Context) error {
	pi := c.Source.(*legacy.ProcessInstance)
	r := c.Target
	r.Set("process_definition_id", pi.ProcessDefinitionKey)
	r.Set("process_definition_key", c.MetaOrNil(MetaProcessDefinitionKey))
	r.Set("parent_process_instance_key", c.MetaOrNil(MetaParentProcessInstanceKey))
	r.Set("state", mapOr(processInstanceStates, pi.State, "ACTIVE"))
	r.Set("start_date", pi.StartTime)
	r.Set("end_date", pi.EndTime)
	return nil
}

func decisionRequirements(c *Context) error {
	drd := c.Source.(*legacy.DecisionRequirementsDefinition)
	r := c.Target
	r.Set("decision_requirements_id", drd.Key)
	r.Set("name", drd.Name)
	r.Set("version", drd.Version)
	r.Set("resource_name", drd.ResourceName)
	return nil
}

func decisionDefinition(c *Context) error {
	dd := c.Source.(*legacy.DecisionDefinition)
	r := c.Target
	r.Set("decision_definition_id", dd.Key)
	r.Set("name", dd.Name)
	r.Set("version", dd.Version)
	r.Set("decision_requirements_key", c.MetaOrNil(MetaDecisionRequirementsKey))
	return nil
}

func decisionInstance(c *Context) error {
	di := c.Source.(*legacy.DecisionInstance)
	r := c.Target
	r.Set("decision_definition_id", di.DecisionDefinitionKey)
	r.Set("decision_definition_key", c.MetaOrNil(MetaDecisionDefinitionKey))
	r.Set("process_definition_key", c.MetaOrNil(MetaProcessDefinitionKey))
	r.Set("process_instance_key", c.MetaOrNil(MetaProcessInstanceKey))
	r.Set("flow_node_instance_key", c.MetaOrNil(MetaFlowNodeInstanceKey))
	r.Set("flow_node_id", di.ActivityID)
	r.Set("root_decision_instance_key", c.MetaOrNil(MetaRootDecisionInstanceKey))
	r.Set("evaluation_date", di.EvaluationTime)
	return nil
}

var incidentStates = map[string]string{
	"ACTIVE":   "ACTIVE",
	"RESOLVED": "RESOLVED",
	"DELETED":  "RESOLVED",
}

func incident(c *Context) error {
	inc := c.Source.(*legacy.Incident)
	r := c.Target
	r.Set("process_definition_key", c.MetaOrNil(MetaProcessDefinitionKey))
	r.Set("process_instance_key", c.MetaOrNil(MetaProcessInstanceKey))
	r.Set("flow_node_id", inc.ActivityID)
	r.Set("error_type", errorType(inc.IncidentType))
	r.Set("error_message", inc.Message)
	r.Set("state", mapOr(incidentStates, inc.State, "ACTIVE"))
	r.Set("creation_date", inc.CreateTime)
	return nil
}

func errorType(legacyType string) string {
	switch legacyType {
	case "failedJob", "failedExternalTask":
		return "JOB_NO_RETRIES"
	}
	return "UNKNOWN"
}

// flowNodeTypes maps legacy activity types.
var flowNodeTypes = map[string]string{
	"startEvent":               "START_EVENT",
	"messageStartEvent":        "START_EVENT",
	"timerStartEvent":          "START_EVENT",
	"noneEndEvent":             "END_EVENT",
	"errorEndEvent":            "END_EVENT",
	"terminateEndEvent":        "END_EVENT",
	"userTask":                 "USER_TASK",
	"serviceTask":              "SERVICE_TASK",
	"scriptTask":               "SCRIPT_TASK",
	"sendTask":                 "SEND_TASK",
	"receiveTask":              "RECEIVE_TASK",
	"businessRuleTask":         "BUSINESS_RULE_TASK",
	"manualTask":               "MANUAL_TASK",
	"exclusiveGateway":         "EXCLUSIVE_GATEWAY",
	"parallelGateway":          "PARALLEL_GATEWAY",
	"inclusiveGateway":         "INCLUSIVE_GATEWAY",
	"eventBasedGateway":        "EVENT_BASED_GATEWAY",
	"subProcess":               "SUB_PROCESS",
	"eventSubProcess":          "EVENT_SUB_PROCESS",
	"callActivity":             "CALL_ACTIVITY",
	"multiInstanceBody":        "MULTI_INSTANCE_BODY",
	"boundaryTimer":            "BOUNDARY_EVENT",
	"boundaryMessage":          "BOUNDARY_EVENT",
	"boundaryError":            "BOUNDARY_EVENT",
	"intermediateTimer":        "INTERMEDIATE_CATCH_EVENT",
	"intermediateMessageCatch": "INTERMEDIATE_CATCH_EVENT",
}

func flowNode(c *Context) error {
	fn := c.Source.(*legacy.FlowNode)
	r := c.Target
	state := "ACTIVE"
	if fn.EndTime != nil {
		state = "COMPLETED"
	}
	r.Set("process_instance_key", c.MetaOrNil(MetaProcessInstanceKey))
	r.Set("process_definition_key", c.MetaOrNil(MetaProcessDefinitionKey))
	r.Set("flow_node_id", fn.ActivityID)
	r.Set("flow_node_name", fn.ActivityName)
	r.Set("type", mapOr(flowNodeTypes, fn.ActivityType, "UNSPECIFIED"))
	r.Set("state", state)
	r.Set("start_date", fn.StartTime)
	r.Set("end_date", fn.EndTime)
	return nil
}

func userTask(c *Context) error {
	ut := c.Source.(*legacy.UserTask)
	r := c.Target

	state := "CREATED"
	if ut.EndTime != nil {
		state = "COMPLETED"
		if strings.HasPrefix(ut.DeleteReason, "deleted") {
			state = "CANCELED"
		}
	}
	r.Set("process_instance_key", c.MetaOrNil(MetaProcessInstanceKey))
	r.Set("process_definition_key", c.MetaOrNil(MetaProcessDefinitionKey))
	r.Set("element_instance_key", c.MetaOrNil(MetaFlowNodeInstanceKey))
	r.Set("element_id", ut.TaskDefinitionKey)
	r.Set("name", ut.Name)
	r.Set("assignee", nullable(ut.Assignee))
	r.Set("priority", ut.Priority)
	r.Set("state", state)
	r.Set("creation_date", ut.StartTime)
	r.Set("completion_date", ut.EndTime)
	r.Set("due_date", ut.DueDate)
	return nil
}

func variable(c *Context) error {
	v := c.Source.(*legacy.Variable)
	r := c.Target
	r.Set("name", v.Value.Name)
	r.Set("scope_key", c.MetaOrNil(MetaScopeKey))
	r.Set("process_instance_key", c.MetaOrNil(MetaProcessInstanceKey))
	return nil
}

func mapOr(m map[string]string, key, fallback string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
