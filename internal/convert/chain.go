package convert

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/gomigrator/internal/types"
)

// Interceptor is one conversion step. An empty Types applies the step to
// every entity type.
type Interceptor interface {
	Name() string
	Types() []types.EntityType
	Execute(c *Context) error
}

type funcInterceptor struct {
	name  string
	types []types.EntityType
	fn    func(c *Context) error
}

func (f funcInterceptor) Name() string              { return f.name }
func (f funcInterceptor) Types() []types.EntityType { return f.types }
func (f funcInterceptor) Execute(c *Context) error  { return f.fn(c) }

// Func adapts a function into an Interceptor.
func Func(name string, fn func(c *Context) error, ts ...types.EntityType) Interceptor {
	return funcInterceptor{name: name, types: ts, fn: fn}
}

type entry struct {
	interceptor Interceptor
	priority    int
	seq         int
}

// Chain runs interceptors in ascending priority, then registration order.
// It is built once at startup and read-only afterwards.
type Chain struct {
	entries  []entry
	disabled map[string]bool
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{disabled: make(map[string]bool)}
}

// Register adds an interceptor. Names must be unique.
func (c *Chain) Register(i Interceptor, priority int) error {
	for _, e := range c.entries {
		if e.interceptor.Name() == i.Name() {
			return fmt.Errorf("interceptor %q already registered", i.Name())
		}
	}
	c.entries = append(c.entries, entry{interceptor: i, priority: priority, seq: len(c.entries)})
	sort.SliceStable(c.entries, func(a, b int) bool {
		if c.entries[a].priority != c.entries[b].priority {
			return c.entries[a].priority < c.entries[b].priority
		}
		return c.entries[a].seq < c.entries[b].seq
	})
	return nil
}

// Disable turns interceptors off by name. Unknown names are an error so
// that configuration typos surface at startup.
func (c *Chain) Disable(names ...string) error {
	var unknown []string
	for _, name := range names {
		if !c.has(name) {
			unknown = append(unknown, name)
			continue
		}
		c.disabled[name] = true
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown interceptors: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func (c *Chain) has(name string) bool {
	for _, e := range c.entries {
		if e.interceptor.Name() == name {
			return true
		}
	}
	return false
}

// Names returns the enabled interceptors applying to t, in run order.
func (c *Chain) Names(t types.EntityType) []string {
	var names []string
	for _, e := range c.entries {
		if c.applies(e.interceptor, t) {
			names = append(names, e.interceptor.Name())
		}
	}
	return names
}

func (c *Chain) applies(i Interceptor, t types.EntityType) bool {
	if c.disabled[i.Name()] {
		return false
	}
	ts := i.Types()
	if len(ts) == 0 {
		return true
	}
	for _, candidate := range ts {
		if candidate == t {
			return true
		}
	}
	return false
}

// Run executes the chain on a context and stops at the first error.
func (c *Chain) Run(ctx *Context) error {
	t := ctx.Source.EntityType()
	for _, e := range c.entries {
		if !c.applies(e.interceptor, t) {
			continue
		}
		if err := e.interceptor.Execute(ctx); err != nil {
			return fmt.Errorf("interceptor %s: %w", e.interceptor.Name(), err)
		}
	}
	return nil
}
