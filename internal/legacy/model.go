// Package legacy reads history and live state from the legacy engine.
package legacy

import (
	"time"

	"github.com/dbsmedya/gomigrator/internal/types"
	"github.com/dbsmedya/gomigrator/internal/variables"
)

// Record is one legacy history entity.
type Record interface {
	LegacyID() string
	EntityType() types.EntityType
	// CreatedAt is the timestamp pages are ordered by.
	CreatedAt() time.Time
	Tenant() string
}

// ProcessDefinition is a deployed legacy process model.
type ProcessDefinition struct {
	ID           string
	Key          string
	Name         string
	Version      int
	VersionTag   string
	DeploymentID string
	ResourceName string
	TenantID     string
	DeployTime   time.Time
	BPMNXML      string
}

func (r *ProcessDefinition) LegacyID() string             { return r.ID }
func (r *ProcessDefinition) EntityType() types.EntityType { return types.ProcessDefinition }
func (r *ProcessDefinition) CreatedAt() time.Time         { return r.DeployTime }
func (r *ProcessDefinition) Tenant() string               { return r.TenantID }

// ProcessInstance is a historic legacy process instance.
type ProcessInstance struct {
	ID                     string
	BusinessKey            string
	ProcessDefinitionID    string
	ProcessDefinitionKey   string
	SuperProcessInstanceID string
	RootProcessInstanceID  string
	State                  string
	TenantID               string
	StartTime              time.Time
	EndTime                *time.Time
}

func (r *ProcessInstance) LegacyID() string             { return r.ID }
func (r *ProcessInstance) EntityType() types.EntityType { return types.ProcessInstance }
func (r *ProcessInstance) CreatedAt() time.Time         { return r.StartTime }
func (r *ProcessInstance) Tenant() string               { return r.TenantID }

// DecisionRequirementsDefinition is a deployed decision requirements graph.
type DecisionRequirementsDefinition struct {
	ID           string
	Key          string
	Name         string
	Version      int
	DeploymentID string
	ResourceName string
	TenantID     string
	DeployTime   time.Time
}

func (r *DecisionRequirementsDefinition) LegacyID() string { return r.ID }
func (r *DecisionRequirementsDefinition) EntityType() types.EntityType {
	return types.DecisionRequirementsDefinition
}
func (r *DecisionRequirementsDefinition) CreatedAt() time.Time { return r.DeployTime }
func (r *DecisionRequirementsDefinition) Tenant() string       { return r.TenantID }

// DecisionDefinition is a deployed decision table or literal expression.
type DecisionDefinition struct {
	ID                     string
	Key                    string
	Name                   string
	Version                int
	DecisionRequirementsID string
	DeploymentID           string
	TenantID               string
	DeployTime             time.Time
}

func (r *DecisionDefinition) LegacyID() string             { return r.ID }
func (r *DecisionDefinition) EntityType() types.EntityType { return types.DecisionDefinition }
func (r *DecisionDefinition) CreatedAt() time.Time         { return r.DeployTime }
func (r *DecisionDefinition) Tenant() string               { return r.TenantID }

// DecisionInstance is one historic decision evaluation.
type DecisionInstance struct {
	ID                     string
	DecisionDefinitionID   string
	DecisionDefinitionKey  string
	ProcessDefinitionID    string
	ProcessInstanceID      string
	ActivityInstanceID     string
	ActivityID             string
	RootDecisionInstanceID string
	TenantID               string
	EvaluationTime         time.Time
}

func (r *DecisionInstance) LegacyID() string             { return r.ID }
func (r *DecisionInstance) EntityType() types.EntityType { return types.DecisionInstance }
func (r *DecisionInstance) CreatedAt() time.Time         { return r.EvaluationTime }
func (r *DecisionInstance) Tenant() string               { return r.TenantID }

// Incident is a historic incident.
type Incident struct {
	ID                  string
	ProcessDefinitionID string
	ProcessInstanceID   string
	ExecutionID         string
	ActivityID          string
	IncidentType        string
	Message             string
	State               string
	TenantID            string
	CreateTime          time.Time
	EndTime             *time.Time
}

func (r *Incident) LegacyID() string             { return r.ID }
func (r *Incident) EntityType() types.EntityType { return types.Incident }
func (r *Incident) CreatedAt() time.Time         { return r.CreateTime }
func (r *Incident) Tenant() string               { return r.TenantID }

// FlowNode is a historic activity instance.
type FlowNode struct {
	ID                  string
	ParentActivityID    string
	ProcessDefinitionID string
	ProcessInstanceID   string
	ActivityID          string
	ActivityName        string
	ActivityType        string
	TenantID            string
	StartTime           time.Time
	EndTime             *time.Time
}

func (r *FlowNode) LegacyID() string             { return r.ID }
func (r *FlowNode) EntityType() types.EntityType { return types.FlowNode }
func (r *FlowNode) CreatedAt() time.Time         { return r.StartTime }
func (r *FlowNode) Tenant() string               { return r.TenantID }

// UserTask is a historic task instance.
type UserTask struct {
	ID                  string
	ProcessDefinitionID string
	ProcessInstanceID   string
	ActivityInstanceID  string
	TaskDefinitionKey   string
	Name                string
	Assignee            string
	Priority            int
	DeleteReason        string
	TenantID            string
	StartTime           time.Time
	EndTime             *time.Time
	DueDate             *time.Time
}

func (r *UserTask) LegacyID() string             { return r.ID }
func (r *UserTask) EntityType() types.EntityType { return types.UserTask }
func (r *UserTask) CreatedAt() time.Time         { return r.StartTime }
func (r *UserTask) Tenant() string               { return r.TenantID }

// Variable is a historic variable instance.
type Variable struct {
	ID                  string
	ProcessDefinitionID string
	ProcessInstanceID   string
	ActivityInstanceID  string
	TaskID              string
	TenantID            string
	CreateTime          time.Time
	Value               variables.Value
}

func (r *Variable) LegacyID() string             { return r.ID }
func (r *Variable) EntityType() types.EntityType { return types.Variable }
func (r *Variable) CreatedAt() time.Time         { return r.CreateTime }
func (r *Variable) Tenant() string               { return r.TenantID }

// IsGlobal reports whether the variable lives on the process instance
// scope. The root activity instance of an instance shares its id.
func (r *Variable) IsGlobal() bool {
	return r.ActivityInstanceID == "" || r.ActivityInstanceID == r.ProcessInstanceID
}
