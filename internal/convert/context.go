// Package convert turns legacy history records into target rows through
// an ordered chain of interceptors.
package convert

import (
	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/target"
)

// Metadata names of resolved target keys.
const (
	MetaProcessDefinitionKey     = "processDefinitionKey"
	MetaProcessInstanceKey       = "processInstanceKey"
	MetaParentProcessInstanceKey = "parentProcessInstanceKey"
	MetaRootProcessInstanceKey   = "rootProcessInstanceKey"
	MetaDecisionRequirementsKey  = "decisionRequirementsKey"
	MetaDecisionDefinitionKey    = "decisionDefinitionKey"
	MetaRootDecisionInstanceKey  = "rootDecisionInstanceKey"
	MetaFlowNodeInstanceKey      = "flowNodeInstanceKey"
	MetaScopeKey                 = "scopeKey"
)

// Context carries one record through the chain. It is never shared
// between records.
type Context struct {
	Source legacy.Record
	Target *target.Record
	Key    int64
	meta   map[string]int64
}

// NewContext creates a context for a source record and its target row.
func NewContext(src legacy.Record, rec *target.Record, key int64) *Context {
	rec.Key = key
	return &Context{
		Source: src,
		Target: rec,
		Key:    key,
		meta:   make(map[string]int64),
	}
}

// AssignKey sets the allocated target key on the context and its record.
func (c *Context) AssignKey(key int64) {
	c.Key = key
	c.Target.Key = key
}

// SetMeta records a resolved key.
func (c *Context) SetMeta(name string, key int64) {
	c.meta[name] = key
}

// Meta returns a resolved key.
func (c *Context) Meta(name string) (int64, bool) {
	k, ok := c.meta[name]
	return k, ok
}

// MetaOrNil returns a resolved key as a column value, nil when unresolved.
func (c *Context) MetaOrNil(name string) interface{} {
	if k, ok := c.meta[name]; ok {
		return k
	}
	return nil
}

// Outcome is the result kind of a conversion.
type Outcome int

const (
	Migrated Outcome = iota + 1
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Migrated:
		return "migrated"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Result is the non-fatal outcome of converting one record. Fatal
// failures are returned as errors instead.
type Result struct {
	Outcome   Outcome
	TargetKey int64
	Reason    string
}

// MigratedAs returns a migrated result.
func MigratedAs(key int64) Result {
	return Result{Outcome: Migrated, TargetKey: key}
}

// SkippedFor returns a skipped result.
func SkippedFor(reason string) Result {
	return Result{Outcome: Skipped, Reason: reason}
}
