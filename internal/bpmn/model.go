// Package bpmn reads the parts of a BPMN model the runtime transplanter
// validates against.
package bpmn

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Namespaces.
const (
	ModelNS  = "http://www.omg.org/spec/BPMN/20100524/MODEL"
	ZeebeNS  = "http://camunda.org/schema/zeebe/1.0"
	startTag = "startEvent"
)

// ErrProcessNotFound is returned when the XML has no process with the
// requested id.
var ErrProcessNotFound = errors.New("process not found in model")

// Listener is an execution listener attached to an element.
type Listener struct {
	EventType string
	Type      string
}

// Element is a BPMN element with an id.
type Element struct {
	ID                      string
	Kind                    string
	Parent                  string
	HasEventDefinition      bool
	MultiInstance           bool
	SequentialMultiInstance bool
	Listeners               []Listener
}

// ParallelMultiInstance reports whether the element fans out concurrently.
func (e *Element) ParallelMultiInstance() bool {
	return e.MultiInstance && !e.SequentialMultiInstance
}

// HasListener reports whether an execution listener of the event type
// creates jobs of jobType. The listener type may be a literal or an
// expression quoting the job type.
func (e *Element) HasListener(eventType, jobType string) bool {
	for _, l := range e.Listeners {
		if l.EventType != eventType {
			continue
		}
		if l.Type == jobType || strings.Contains(l.Type, `"`+jobType+`"`) {
			return true
		}
	}
	return false
}

// Process is one executable process of a model.
type Process struct {
	ID       string
	elements map[string]*Element
	order    []string
}

// Element looks up an element by id.
func (p *Process) Element(id string) (*Element, bool) {
	e, ok := p.elements[id]
	return e, ok
}

// NoneStartEvents returns the start events of the process scope that
// have no event definition.
func (p *Process) NoneStartEvents() []*Element {
	var out []*Element
	for _, id := range p.order {
		e := p.elements[id]
		if e.Kind == startTag && e.Parent == p.ID && !e.HasEventDefinition {
			out = append(out, e)
		}
	}
	return out
}

type frame struct {
	local string
	id    string
}

// Parse reads the process with the given id from BPMN XML.
func Parse(data []byte, processID string) (*Process, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		stack   []frame
		current *Process
		found   *Process
	)

	nearest := func() *Element {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].id == "" || current == nil {
				continue
			}
			if e, ok := current.elements[stack[i].id]; ok {
				return e
			}
		}
		return nil
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid bpmn xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			id := attr(t, "id")
			local := t.Name.Local

			switch {
			case local == "process" && t.Name.Space == ModelNS:
				current = &Process{ID: id, elements: make(map[string]*Element)}
			case current == nil:
			case local == "multiInstanceLoopCharacteristics":
				if e := nearest(); e != nil {
					e.MultiInstance = true
					e.SequentialMultiInstance = attr(t, "isSequential") == "true"
				}
			case strings.HasSuffix(local, "EventDefinition"):
				if e := nearest(); e != nil {
					e.HasEventDefinition = true
				}
			case local == "executionListener" && t.Name.Space == ZeebeNS:
				if e := nearest(); e != nil {
					e.Listeners = append(e.Listeners, Listener{EventType: attr(t, "eventType"), Type: attr(t, "type")})
				}
			case id != "" && t.Name.Space == ModelNS:
				parent := current.ID
				if e := nearest(); e != nil {
					parent = e.ID
				}
				current.elements[id] = &Element{ID: id, Kind: local, Parent: parent}
				current.order = append(current.order, id)
			}
			stack = append(stack, frame{local: local, id: id})

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if t.Name.Local == "process" && t.Name.Space == ModelNS && current != nil {
				if current.ID == processID {
					found = current
				}
				current = nil
			}
		}
	}

	if found == nil {
		return nil, fmt.Errorf("%s: %w", processID, ErrProcessNotFound)
	}
	return found, nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
