package agentrunner

import (
	"sync"
	"time"
)

// ToolEvent is one pre- or post-call telemetry record: a tool_call event precedes the call, a tool_result event
// follows it.
type ToolEvent struct {
	Tool       string
	EventType  string // "tool_call" or "tool_result"
	OK         bool
	DurationMS int64
	Context    map[string]any
	At         time.Time
}

// ToolEventSink buffers telemetry events until the owning AgentRun row's id
// is known, then flushes every buffered event plus all subsequent ones
// straight through. Failures in telemetry never abort execution — Flush and
// the sink's own writes are best-effort by construction (the sink never
// returns an error).
type ToolEventSink struct {
	mu        sync.Mutex
	runID     string
	buffered  []ToolEvent
	onEvent   func(runID string, e ToolEvent)
	nextIndex int
}

// NewToolEventSink constructs a sink. onEvent is called once runID is known
// for every event, in step order; it should itself never block long (e.g.
// it hands off to a buffered append inside the caller's transaction).
func NewToolEventSink(onEvent func(runID string, e ToolEvent)) *ToolEventSink {
	return &ToolEventSink{onEvent: onEvent}
}

// BindRunID supplies the AgentRun row id once it exists, flushing any events
// recorded before that point.
func (s *ToolEventSink) BindRunID(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
	for _, e := range s.buffered {
		s.emit(e)
	}
	s.buffered = nil
}

// Record appends one telemetry event, buffering it if the run id isn't
// bound yet.
func (s *ToolEventSink) Record(e ToolEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if s.runID == "" {
		s.buffered = append(s.buffered, e)
		return
	}
	s.emit(e)
}

// emit must be called with mu held.
func (s *ToolEventSink) emit(e ToolEvent) {
	defer func() { recover() }() // telemetry must never abort execution
	if s.onEvent != nil {
		s.onEvent(s.runID, e)
	}
}

// CallAndRecord wraps a tool invocation with the pre/post event pair.
func (s *ToolEventSink) CallAndRecord(tool string, ctx map[string]any, fn func() error) error {
	s.Record(ToolEvent{Tool: tool, EventType: "tool_call", Context: ctx})
	start := time.Now()
	err := fn()
	s.Record(ToolEvent{
		Tool:       tool,
		EventType:  "tool_result",
		OK:         err == nil,
		DurationMS: time.Since(start).Milliseconds(),
		Context:    ctx,
	})
	return err
}
