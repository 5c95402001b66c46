package protocol

import "strings"

// TraceContext threads correlation/causation identity through the pipeline
// from the moment a producer request is received to the moment its
// submission is acknowledged. Any field may be empty; propagation should
// never fabricate one that was not supplied upstream.
type TraceContext struct {
	TraceID       string `json:"traceId,omitempty"`
	ParentEventID string `json:"parentEventId,omitempty"`
	EventID       string `json:"eventId,omitempty"`
}

// CorrelationID returns the identifier events in this trace's span should
// carry as their correlationId: the trace id itself.
func (t TraceContext) CorrelationID() string {
	return strings.TrimSpace(t.TraceID)
}

// CausationID returns the identifier the next event in the span should
// carry as its causationId: the id of the event that caused it.
func (t TraceContext) CausationID() string {
	return strings.TrimSpace(t.ParentEventID)
}

// IsZero reports whether the trace context carries no identifying field.
func (t TraceContext) IsZero() bool {
	return strings.TrimSpace(t.TraceID) == "" &&
		strings.TrimSpace(t.ParentEventID) == "" &&
		strings.TrimSpace(t.EventID) == ""
}

// Child derives the trace context for an event caused by this one: same
// trace id, causation pointing at this event.
func (t TraceContext) Child(nextEventID string) TraceContext {
	return TraceContext{
		TraceID:       t.TraceID,
		ParentEventID: t.EventID,
		EventID:       nextEventID,
	}
}
