package bpmn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderModel = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL"
                  xmlns:zeebe="http://camunda.org/schema/zeebe/1.0"
                  xmlns:bpmndi="http://www.omg.org/spec/BPMN/20100524/DI"
                  id="defs">
  <bpmn:process id="order" isExecutable="true">
    <bpmn:startEvent id="start">
      <bpmn:extensionElements>
        <zeebe:executionListeners>
          <zeebe:executionListener eventType="end" type="=if legacyId != null then &#34;migrator&#34; else &#34;noop&#34;" />
        </zeebe:executionListeners>
      </bpmn:extensionElements>
    </bpmn:startEvent>
    <bpmn:startEvent id="timerStart">
      <bpmn:timerEventDefinition id="timerDef" />
    </bpmn:startEvent>
    <bpmn:userTask id="review" />
    <bpmn:serviceTask id="notify">
      <bpmn:multiInstanceLoopCharacteristics />
    </bpmn:serviceTask>
    <bpmn:serviceTask id="archive">
      <bpmn:multiInstanceLoopCharacteristics isSequential="true" />
    </bpmn:serviceTask>
    <bpmn:subProcess id="sub">
      <bpmn:startEvent id="subStart" />
      <bpmn:userTask id="inner" />
    </bpmn:subProcess>
    <bpmn:sequenceFlow id="flow1" sourceRef="start" targetRef="review" />
  </bpmn:process>
  <bpmn:process id="other">
    <bpmn:startEvent id="otherStart" />
  </bpmn:process>
  <bpmndi:BPMNDiagram id="diagram" />
</bpmn:definitions>`

func TestParse_Elements(t *testing.T) {
	p, err := Parse([]byte(orderModel), "order")
	require.NoError(t, err)
	assert.Equal(t, "order", p.ID)

	for _, id := range []string{"start", "review", "notify", "sub", "inner", "flow1"} {
		_, ok := p.Element(id)
		assert.True(t, ok, id)
	}
	_, ok := p.Element("otherStart")
	assert.False(t, ok, "elements of other processes must not leak")
	_, ok = p.Element("diagram")
	assert.False(t, ok)

	inner, _ := p.Element("inner")
	assert.Equal(t, "sub", inner.Parent)
}

func TestParse_NoneStartEvents(t *testing.T) {
	p, err := Parse([]byte(orderModel), "order")
	require.NoError(t, err)

	starts := p.NoneStartEvents()
	require.Len(t, starts, 1)
	assert.Equal(t, "start", starts[0].ID)
	assert.True(t, starts[0].HasListener("end", "migrator"))
	assert.False(t, starts[0].HasListener("start", "migrator"))
	assert.False(t, starts[0].HasListener("end", "other"))
}

func TestParse_MultiInstance(t *testing.T) {
	p, err := Parse([]byte(orderModel), "order")
	require.NoError(t, err)

	notify, _ := p.Element("notify")
	assert.True(t, notify.ParallelMultiInstance())

	archive, _ := p.Element("archive")
	assert.True(t, archive.MultiInstance)
	assert.False(t, archive.ParallelMultiInstance())

	review, _ := p.Element("review")
	assert.False(t, review.MultiInstance)
}

func TestParse_LiteralListenerType(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL" xmlns:zeebe="http://camunda.org/schema/zeebe/1.0">
  <process id="p">
    <startEvent id="s"><extensionElements><zeebe:executionListeners>
      <zeebe:executionListener eventType="end" type="migrator" />
    </zeebe:executionListeners></extensionElements></startEvent>
  </process>
</definitions>`

	p, err := Parse([]byte(xml), "p")
	require.NoError(t, err)
	starts := p.NoneStartEvents()
	require.Len(t, starts, 1)
	assert.True(t, starts[0].HasListener("end", "migrator"))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(orderModel), "missing")
	assert.True(t, errors.Is(err, ErrProcessNotFound))

	_, err = Parse([]byte("<definitions><process"), "p")
	assert.Error(t, err)
}
