// Package hook decodes the structured event the host agent delivers on
// each tool invocation, and produces the acknowledgment the agent reads
// back. The decoder is tolerant: garbled input degrades to a minimal
// event rather than a lost one.
package hook

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ToolUnknown is the tool name assigned when the payload cannot be
// decoded. Valid but unrecognized tool names pass through unmodified;
// the enumeration is open, new tools are recorded, not rejected.
const ToolUnknown = "unknown"

// EventToolUsage is the default event type for tool invocations.
const EventToolUsage = "tool_usage"

// Event is one decoded hook invocation. Unknown fields in the payload
// are ignored (forward-compatible schema).
type Event struct {
	SessionID      string         `json:"session_id"`
	TranscriptPath string         `json:"transcript_path"`
	Cwd            string         `json:"cwd"`
	HookEventName  string         `json:"hook_event_name"`
	ToolName       string         `json:"tool_name"`
	ToolInput      map[string]any `json:"tool_input"`

	// EventType is derived from HookEventName, not decoded.
	EventType string `json:"-"`
	// Raw is the original payload, retained for forensic replay.
	Raw []byte `json:"-"`
}

// DecodeError reports a malformed hook payload. It is informational:
// Decode always returns a usable event alongside it.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode hook event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a raw hook payload. On malformed input it returns a
// *DecodeError AND a best-effort fallback event with
// tool_name="unknown", so the invocation still produces exactly one
// telemetry record. The returned event is never nil.
func Decode(data []byte) (*Event, error) {
	ev := &Event{Raw: data}
	var decodeErr error

	if err := json.Unmarshal(data, ev); err != nil {
		decodeErr = &DecodeError{Err: err}
		ev.ToolName = ToolUnknown
	}

	if ev.ToolName == "" {
		ev.ToolName = ToolUnknown
	}
	if ev.ToolInput == nil {
		ev.ToolInput = map[string]any{}
	}
	if ev.SessionID == "" {
		// Records must stay attributable to a session even when the
		// caller omits one. The generated id groups only this
		// invocation's fallback records.
		ev.SessionID = "sess-" + uuid.NewString()
	}
	ev.EventType = eventType(ev.HookEventName)

	return ev, decodeErr
}

// eventType maps the hook phase name to the recorded event category.
func eventType(hookEvent string) string {
	switch hookEvent {
	case "SessionStart":
		return "session_start"
	case "SessionEnd", "Stop":
		return "session_end"
	case "UserPromptSubmit":
		return "prompt"
	default:
		return EventToolUsage
	}
}

// Ack is the capture-path response read by the host agent. The pipeline
// only observes and never vetoes the underlying tool action, so
// Continue is always true.
type Ack struct {
	Continue bool `json:"continue"`
}

// Acknowledge returns the wire-encoded ack for the host agent.
func Acknowledge() []byte {
	out, _ := json.Marshal(Ack{Continue: true})
	return out
}
