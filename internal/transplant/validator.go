package transplant

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbsmedya/gomigrator/internal/bpmn"
	"github.com/dbsmedya/gomigrator/internal/config"
	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/target"
	"github.com/dbsmedya/gomigrator/internal/types"
)

// Validation is the outcome of checking one legacy instance against its
// target model. Reason is empty when the instance can be transplanted.
type Validation struct {
	Reason     string
	Definition *target.ProcessDefinition
	TenantID   string
	Elements   []ActiveElement
}

func skip(reason string) (*Validation, error) {
	return &Validation{Reason: reason}, nil
}

// Validator checks the preconditions of a transplant. Violations are
// reported as skip reasons; only connectivity failures are errors.
type Validator struct {
	source        legacy.RuntimeSource
	engine        target.Engine
	runtime       config.RuntimeConfig
	defaultTenant string
}

// NewValidator creates a validator.
func NewValidator(source legacy.RuntimeSource, engine target.Engine, runtime config.RuntimeConfig, defaultTenant string) *Validator {
	return &Validator{source: source, engine: engine, runtime: runtime, defaultTenant: defaultTenant}
}

// Validate checks, in order: the tenant allow-list, the target deployment,
// the synchronization start event and its listener, then every active
// legacy element against the target model.
func (v *Validator) Validate(ctx context.Context, inst *legacy.Instance) (*Validation, error) {
	if !v.runtime.TenantAllowed(inst.TenantID) {
		return skip(types.ReasonTenantNotAllowed)
	}
	tenantID := inst.TenantID
	if tenantID == "" {
		tenantID = v.defaultTenant
	}

	def, err := v.engine.LatestProcessDefinition(ctx, inst.ProcessDefinitionKey, tenantID)
	if errors.Is(err, target.ErrNoDeployment) {
		return skip(types.ReasonMissingTargetDeployment)
	}
	if err != nil {
		return nil, err
	}

	model, err := bpmn.Parse(def.XML, def.BPMNProcessID)
	if err != nil {
		return skip(fmt.Sprintf("%s: %v", types.ReasonInvalidTargetModel, err))
	}

	starts := model.NoneStartEvents()
	if len(starts) != 1 {
		return skip(fmt.Sprintf("%s (found %d)", types.ReasonStartEventCount, len(starts)))
	}
	if !starts[0].HasListener("end", v.runtime.JobType) {
		return skip(fmt.Sprintf("%s %q", types.ReasonMissingMigratorListener, v.runtime.JobType))
	}

	tree, err := v.source.ActivityTree(ctx, inst.ID)
	if errors.Is(err, legacy.ErrNotFound) {
		return skip(types.ReasonLegacyInstanceNotActive)
	}
	if err != nil {
		return nil, err
	}
	elements := CollectActive(tree)
	if len(elements) == 0 {
		return skip(types.ReasonLegacyInstanceNotActive)
	}

	for _, el := range elements {
		e, ok := model.Element(el.ElementID)
		if !ok {
			return skip(fmt.Sprintf("%s: %s", types.ReasonMissingTargetElement, el.ElementID))
		}
		if e.ParallelMultiInstance() && !v.runtime.AllowParallelMultiInstance {
			return skip(fmt.Sprintf("%s: %s", types.ReasonParallelMultiInstance, el.ElementID))
		}
	}

	return &Validation{Definition: def, TenantID: tenantID, Elements: elements}, nil
}
