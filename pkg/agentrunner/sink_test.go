package agentrunner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolEventSinkBuffersUntilRunIDBound(t *testing.T) {
	var emitted []string
	sink := NewToolEventSink(func(runID string, e ToolEvent) {
		emitted = append(emitted, runID+":"+e.Tool)
	})

	sink.Record(ToolEvent{Tool: "a"})
	sink.Record(ToolEvent{Tool: "b"})
	assert.Empty(t, emitted)

	sink.BindRunID("run1")
	assert.Equal(t, []string{"run1:a", "run1:b"}, emitted)

	sink.Record(ToolEvent{Tool: "c"})
	assert.Equal(t, []string{"run1:a", "run1:b", "run1:c"}, emitted)
}

func TestCallAndRecordEmitsCallAndResultPair(t *testing.T) {
	var events []ToolEvent
	sink := NewToolEventSink(func(_ string, e ToolEvent) { events = append(events, e) })
	sink.BindRunID("run1")

	err := sink.CallAndRecord("lookup", nil, func() error { return errors.New("boom") })
	assert.Error(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, "tool_call", events[0].EventType)
	assert.Equal(t, "tool_result", events[1].EventType)
	assert.False(t, events[1].OK)
}

func TestToolEventSinkOnEventPanicDoesNotPropagate(t *testing.T) {
	sink := NewToolEventSink(func(_ string, _ ToolEvent) { panic("telemetry exploded") })
	sink.BindRunID("run1")
	assert.NotPanics(t, func() { sink.Record(ToolEvent{Tool: "x"}) })
}
