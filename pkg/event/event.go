// Package event defines the AgentEvent value type streamed by a
// backend while a run is in progress.
package event

import (
	"encoding/json"
	"time"
)

// Kind is a closed discriminated union of event kinds. New kinds may
// be added over time; unknown kinds decode into Kind(s) as-is so a
// forward-compatible consumer can still observe and forward them.
type Kind string

const (
	KindRunStarted      Kind = "run_started"
	KindRunCompleted    Kind = "run_completed"
	KindAssistantMsg    Kind = "assistant_message"
	KindAssistantDelta  Kind = "assistant_delta"
	KindToolCall        Kind = "tool_call"
	KindToolResult      Kind = "tool_result"
	KindWarning         Kind = "warning"
	KindError           Kind = "error"
	KindUsageUpdate     Kind = "usage_update"
	KindCancelled       Kind = "cancelled"
)

// ToolCall carries the fields specific to a tool_call event. It is
// embedded into Event.Extension as JSON when Kind == KindToolCall.
type ToolCall struct {
	ToolName       string          `json:"tool_name"`
	ToolUseID      string          `json:"tool_use_id,omitempty"`
	ParentToolUseID string         `json:"parent_tool_use_id,omitempty"`
	Input          json.RawMessage `json:"input,omitempty"`
}

// ErrorDetail carries the fields specific to an error event.
type ErrorDetail struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// Event is a single point-in-time occurrence emitted by a backend.
// Events are value types; ordering is producer-defined and preserved
// through the pipeline (spec §3, §5).
type Event struct {
	Timestamp time.Time       `json:"timestamp"`
	Kind      Kind            `json:"kind"`
	Extension json.RawMessage `json:"extension,omitempty"`
}

// NewToolCall builds a tool_call event with Extension populated from tc.
func NewToolCall(ts time.Time, tc ToolCall) (Event, error) {
	raw, err := json.Marshal(tc)
	if err != nil {
		return Event{}, err
	}
	return Event{Timestamp: ts, Kind: KindToolCall, Extension: raw}, nil
}

// NewError builds an error event with Extension populated from the
// given code and message.
func NewError(ts time.Time, code, message string) (Event, error) {
	raw, err := json.Marshal(ErrorDetail{ErrorCode: code, Message: message})
	if err != nil {
		return Event{}, err
	}
	return Event{Timestamp: ts, Kind: KindError, Extension: raw}, nil
}

// Simple builds an event of kind k with no extension payload, for
// kinds like run_started/run_completed/assistant_message that carry
// no mandatory structured fields.
func Simple(ts time.Time, k Kind) Event {
	return Event{Timestamp: ts, Kind: k}
}

// ErrorDetailOf extracts the ErrorDetail from an error-kind event.
// Returns false if the event is not an error or the extension cannot
// be decoded.
func ErrorDetailOf(e Event) (ErrorDetail, bool) {
	if e.Kind != KindError || len(e.Extension) == 0 {
		return ErrorDetail{}, false
	}
	var d ErrorDetail
	if err := json.Unmarshal(e.Extension, &d); err != nil {
		return ErrorDetail{}, false
	}
	return d, true
}

// MonotonicNonDecreasing reports whether trace is non-decreasing in
// Timestamp, per the Receipt.trace invariant in spec §3.
func MonotonicNonDecreasing(trace []Event) bool {
	for i := 1; i < len(trace); i++ {
		if trace[i].Timestamp.Before(trace[i-1].Timestamp) {
			return false
		}
	}
	return true
}
