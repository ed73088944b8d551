// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import (
	"fmt"
	"strings"
)

// EntityType identifies the kind of legacy record tracked in the ledger.
type EntityType string

const (
	ProcessDefinition              EntityType = "process_definition"
	ProcessInstance                EntityType = "process_instance"
	DecisionRequirementsDefinition EntityType = "decision_requirements_definition"
	DecisionDefinition             EntityType = "decision_definition"
	DecisionInstance               EntityType = "decision_instance"
	Incident                       EntityType = "incident"
	FlowNode                       EntityType = "flow_node"
	UserTask                       EntityType = "user_task"
	Variable                       EntityType = "variable"

	// RuntimeProcessInstance is only used by the runtime transplanter.
	RuntimeProcessInstance EntityType = "runtime_process_instance"
)

// HistoryTypes lists the history entity types in their canonical order.
var HistoryTypes = []EntityType{
	ProcessDefinition,
	ProcessInstance,
	DecisionRequirementsDefinition,
	DecisionDefinition,
	DecisionInstance,
	Incident,
	FlowNode,
	UserTask,
	Variable,
}

// AllTypes lists every entity type, including the runtime type.
func AllTypes() []EntityType {
	all := make([]EntityType, 0, len(HistoryTypes)+1)
	all = append(all, HistoryTypes...)
	return append(all, RuntimeProcessInstance)
}

// String implements fmt.Stringer.
func (t EntityType) String() string {
	return string(t)
}

// IsValid reports whether t is one of the known entity types.
func (t EntityType) IsValid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// IsHistory reports whether t is migrated by the history migrator.
func (t EntityType) IsHistory() bool {
	return t.IsValid() && t != RuntimeProcessInstance
}

// ParseEntityType converts a name into an EntityType. Dashes are accepted
// in place of underscores so CLI input like "flow-node" works.
func ParseEntityType(name string) (EntityType, error) {
	normalized := EntityType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	if !normalized.IsValid() {
		return "", fmt.Errorf("unknown entity type %q", name)
	}
	return normalized, nil
}

// ParseEntityTypes converts a list of names, dropping duplicates while
// keeping the input order.
func ParseEntityTypes(names []string) ([]EntityType, error) {
	seen := make(map[EntityType]bool, len(names))
	result := make([]EntityType, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, err := ParseEntityType(name)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		result = append(result, t)
	}
	return result, nil
}
