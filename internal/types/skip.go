package types

// Skip reasons recorded in the ledger when a dependency has not been
// migrated yet. They form a closed set so the post-run summary can group
// on them.
const (
	ReasonMissingProcessDefinition    = "missing process definition"
	ReasonMissingParentInstance       = "missing parent process instance"
	ReasonMissingFlowNode             = "missing flow node"
	ReasonMissingScopeKey             = "missing scope key"
	ReasonMissingDecisionRequirements = "missing decision requirements definition"
	ReasonMissingDecisionDefinition   = "missing decision definition"
	ReasonMissingRootDecisionInstance = "missing root decision instance"
	ReasonBelongsToSkippedTask        = "belongs to a skipped parent task"
	ReasonUnsupportedByteArray        = "unsupported byte array"
	ReasonUnsupportedFile             = "unsupported file"
	ReasonUnsupportedJavaSerialized   = "unsupported java serialized object"
	ReasonUnsupportedXML              = "unsupported xml"
	ReasonUnsupportedVariableType     = "unsupported variable type"
	ReasonTenantNotAllowed            = "tenant not in allow-list"
	ReasonMissingTargetDeployment     = "no target deployment for process"
	ReasonInvalidTargetModel          = "target process model cannot be read"
	ReasonStartEventCount             = "target process must have exactly one none start event"
	ReasonMissingMigratorListener     = "target start event has no migrator execution listener"
	ReasonMissingTargetElement        = "active element missing in target process"
	ReasonParallelMultiInstance       = "parallel multi-instance element is not supported"
	ReasonLegacyInstanceNotActive     = "legacy instance is no longer active"
)

// SkipCategory classifies skip reasons for reporting.
type SkipCategory string

const (
	// CategoryTransient means a dependency is not migrated yet.
	CategoryTransient SkipCategory = "transient"
	// CategoryValidation means legacy and target models do not match.
	CategoryValidation SkipCategory = "validation"
	// CategoryUnsupportedValue means a variable has no safe target representation.
	CategoryUnsupportedValue SkipCategory = "unsupported_value"
)

var reasonCategories = map[string]SkipCategory{
	ReasonMissingProcessDefinition:    CategoryTransient,
	ReasonMissingParentInstance:       CategoryTransient,
	ReasonMissingFlowNode:             CategoryTransient,
	ReasonMissingScopeKey:             CategoryTransient,
	ReasonMissingDecisionRequirements: CategoryTransient,
	ReasonMissingDecisionDefinition:   CategoryTransient,
	ReasonMissingRootDecisionInstance: CategoryTransient,
	ReasonBelongsToSkippedTask:        CategoryTransient,
	ReasonUnsupportedByteArray:        CategoryUnsupportedValue,
	ReasonUnsupportedFile:             CategoryUnsupportedValue,
	ReasonUnsupportedJavaSerialized:   CategoryUnsupportedValue,
	ReasonUnsupportedXML:              CategoryUnsupportedValue,
	ReasonUnsupportedVariableType:     CategoryUnsupportedValue,
}

// CategoryOf returns the category of a recorded skip reason. Reasons that
// are not in the closed set carry validation detail and are reported as
// validation skips.
func CategoryOf(reason string) SkipCategory {
	if c, ok := reasonCategories[reason]; ok {
		return c
	}
	return CategoryValidation
}
