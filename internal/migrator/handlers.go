package migrator

import (
	"context"
	"fmt"

	"github.com/dbsmedya/gomigrator/internal/convert"
	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/types"
)

// resolver looks up the target keys a record references and stores them as
// context metadata. A non-empty reason means a dependency is not migrated.
type resolver func(ctx context.Context, c *convert.Context) (reason string, err error)

func (m *HistoryMigrator) resolvers() map[types.EntityType]resolver {
	return map[types.EntityType]resolver{
		types.ProcessDefinition:              noDependencies,
		types.ProcessInstance:                m.processInstanceHandler,
		types.DecisionRequirementsDefinition: noDependencies,
		types.DecisionDefinition:             m.decisionDefinitionHandler,
		types.DecisionInstance:               m.decisionInstanceHandler,
		types.Incident:                       m.incidentHandler,
		types.FlowNode:                       m.flowNodeHandler,
		types.UserTask:                       m.userTaskHandler,
		types.Variable:                       m.variableHandler,
	}
}

func noDependencies(context.Context, *convert.Context) (string, error) {
	return "", nil
}

// dependency is one required reference of a record.
type dependency struct {
	legacyID string
	t        types.EntityType
	meta     string
	reason   string
}

// require resolves deps in order and stops at the first one missing. An
// empty legacy id counts as missing.
func (m *HistoryMigrator) require(ctx context.Context, c *convert.Context, deps ...dependency) (string, error) {
	for _, d := range deps {
		if d.legacyID == "" {
			return d.reason, nil
		}
		key, ok, err := m.ledger.FindTargetKey(ctx, d.legacyID, d.t)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s %s: %w", d.t, d.legacyID, err)
		}
		if !ok {
			return d.reason, nil
		}
		c.SetMeta(d.meta, key)
	}
	return "", nil
}

func processDefinitionOf(id string) dependency {
	return dependency{id, types.ProcessDefinition, convert.MetaProcessDefinitionKey, types.ReasonMissingProcessDefinition}
}

func processInstanceOf(id string) dependency {
	return dependency{id, types.ProcessInstance, convert.MetaProcessInstanceKey, types.ReasonMissingParentInstance}
}

func flowNodeOf(id string) dependency {
	return dependency{id, types.FlowNode, convert.MetaFlowNodeInstanceKey, types.ReasonMissingFlowNode}
}

func (m *HistoryMigrator) processInstanceHandler(ctx context.Context, c *convert.Context) (string, error) {
	pi := c.Source.(*legacy.ProcessInstance)
	deps := []dependency{processDefinitionOf(pi.ProcessDefinitionID)}
	if pi.SuperProcessInstanceID != "" {
		deps = append(deps, dependency{
			pi.SuperProcessInstanceID, types.ProcessInstance,
			convert.MetaParentProcessInstanceKey, types.ReasonMissingParentInstance,
		})
	}
	if pi.RootProcessInstanceID != "" && pi.RootProcessInstanceID != pi.ID {
		deps = append(deps, dependency{
			pi.RootProcessInstanceID, types.ProcessInstance,
			convert.MetaRootProcessInstanceKey, types.ReasonMissingParentInstance,
		})
	}
	return m.require(ctx, c, deps...)
}

func (m *HistoryMigrator) decisionDefinitionHandler(ctx context.Context, c *convert.Context) (string, error) {
	dd := c.Source.(*legacy.DecisionDefinition)
	// Standalone decisions have no requirements graph.
	if dd.DecisionRequirementsID == "" {
		return "", nil
	}
	return m.require(ctx, c, dependency{
		dd.DecisionRequirementsID, types.DecisionRequirementsDefinition,
		convert.MetaDecisionRequirementsKey, types.ReasonMissingDecisionRequirements,
	})
}

func (m *HistoryMigrator) decisionInstanceHandler(ctx context.Context, c *convert.Context) (string, error) {
	di := c.Source.(*legacy.DecisionInstance)
	deps := []dependency{{
		di.DecisionDefinitionID, types.DecisionDefinition,
		convert.MetaDecisionDefinitionKey, types.ReasonMissingDecisionDefinition,
	}}
	// Decisions evaluated outside a process carry no process references.
	if di.ProcessInstanceID != "" {
		deps = append(deps,
			processDefinitionOf(di.ProcessDefinitionID),
			processInstanceOf(di.ProcessInstanceID),
		)
		if di.ActivityInstanceID != "" {
			deps = append(deps, flowNodeOf(di.ActivityInstanceID))
		}
	}
	if di.RootDecisionInstanceID != "" && di.RootDecisionInstanceID != di.ID {
		deps = append(deps, dependency{
			di.RootDecisionInstanceID, types.DecisionInstance,
			convert.MetaRootDecisionInstanceKey, types.ReasonMissingRootDecisionInstance,
		})
	}
	return m.require(ctx, c, deps...)
}

func (m *HistoryMigrator) incidentHandler(ctx context.Context, c *convert.Context) (string, error) {
	inc := c.Source.(*legacy.Incident)
	return m.require(ctx, c,
		processInstanceOf(inc.ProcessInstanceID),
		processDefinitionOf(inc.ProcessDefinitionID),
	)
}

func (m *HistoryMigrator) flowNodeHandler(ctx context.Context, c *convert.Context) (string, error) {
	fn := c.Source.(*legacy.FlowNode)
	return m.require(ctx, c,
		processInstanceOf(fn.ProcessInstanceID),
		processDefinitionOf(fn.ProcessDefinitionID),
	)
}

func (m *HistoryMigrator) userTaskHandler(ctx context.Context, c *convert.Context) (string, error) {
	ut := c.Source.(*legacy.UserTask)
	return m.require(ctx, c,
		processInstanceOf(ut.ProcessInstanceID),
		processDefinitionOf(ut.ProcessDefinitionID),
		flowNodeOf(ut.ActivityInstanceID),
	)
}

// variableHandler resolves the owning instance and the scope: the user task
// for task variables, the instance for global variables, otherwise the flow
// node whose activity instance declares the variable.
func (m *HistoryMigrator) variableHandler(ctx context.Context, c *convert.Context) (string, error) {
	v := c.Source.(*legacy.Variable)
	if reason, err := m.require(ctx, c, processInstanceOf(v.ProcessInstanceID)); reason != "" || err != nil {
		return reason, err
	}

	switch {
	case v.TaskID != "":
		key, ok, err := m.ledger.FindTargetKey(ctx, v.TaskID, types.UserTask)
		if err != nil {
			return "", fmt.Errorf("failed to resolve user task %s: %w", v.TaskID, err)
		}
		if ok {
			c.SetMeta(convert.MetaScopeKey, key)
			return "", nil
		}
		seen, err := m.ledger.Exists(ctx, v.TaskID, types.UserTask)
		if err != nil {
			return "", fmt.Errorf("failed to look up user task %s: %w", v.TaskID, err)
		}
		if seen {
			return types.ReasonBelongsToSkippedTask, nil
		}
		return types.ReasonMissingScopeKey, nil

	case v.IsGlobal():
		key, _ := c.Meta(convert.MetaProcessInstanceKey)
		c.SetMeta(convert.MetaScopeKey, key)
		return "", nil

	default:
		return m.require(ctx, c, dependency{
			v.ActivityInstanceID, types.FlowNode, convert.MetaScopeKey, types.ReasonMissingScopeKey,
		})
	}
}
