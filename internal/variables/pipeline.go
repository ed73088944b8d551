package variables

import (
	"sort"
	"sync"
)

// Converter turns a legacy value into its target representation. handled
// is false when the converter does not apply to the value; the pipeline
// then asks the next converter.
type Converter interface {
	Name() string
	Convert(v Value) (out interface{}, handled bool, err error)
}

// Built-in converter priorities. User converters registered with a lower
// priority run before them.
const (
	PriorityUnsupported = 100
	PriorityPrimitive   = 200
	PriorityDate        = 300
	PriorityJSON        = 400
)

type registration struct {
	converter Converter
	priority  int
	seq       int
}

// Pipeline runs converters in ascending priority. Converters sharing a
// priority run in registration order.
type Pipeline struct {
	mu      sync.RWMutex
	entries []registration
	seq     int
}

// NewPipeline returns an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// DefaultPipeline returns a pipeline with the built-in converters.
func DefaultPipeline() *Pipeline {
	p := NewPipeline()
	p.Register(UnsupportedConverter{}, PriorityUnsupported)
	p.Register(PrimitiveConverter{}, PriorityPrimitive)
	p.Register(DateConverter{}, PriorityDate)
	p.Register(JSONConverter{}, PriorityJSON)
	return p
}

// Register adds a converter at the given priority.
func (p *Pipeline) Register(c Converter, priority int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append(p.entries, registration{converter: c, priority: priority, seq: p.seq})
	p.seq++
	sort.SliceStable(p.entries, func(i, j int) bool {
		if p.entries[i].priority != p.entries[j].priority {
			return p.entries[i].priority < p.entries[j].priority
		}
		return p.entries[i].seq < p.entries[j].seq
	})
}

// Names returns the converter names in execution order.
func (p *Pipeline) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.converter.Name()
	}
	return names
}

// Convert runs v through the chain. The first converter that handles the
// value decides the result. A value no converter handles is unsupported.
func (p *Pipeline) Convert(v Value) (interface{}, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, e := range p.entries {
		out, handled, err := e.converter.Convert(v)
		if err != nil {
			return nil, err
		}
		if handled {
			return out, nil
		}
	}
	return nil, unsupported(v, reasonFor(v))
}

// ConvertAll converts a set of values into a name keyed map. It stops at
// the first value that fails.
func (p *Pipeline) ConvertAll(values []Value) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(values))
	for _, v := range values {
		converted, err := p.Convert(v)
		if err != nil {
			return nil, err
		}
		out[v.Name] = converted
	}
	return out, nil
}
