package record

import (
	"path/filepath"
	"time"

	"github.com/ppiankov/toolscope/internal/hook"
)

// Caps bound the size of shipped payload fields. Oversized content is
// truncated, never fatal.
type Caps struct {
	DetailBytes int // per Details string field
	RawBytes    int // raw_payload
}

// DefaultCaps returns the standard size bounds.
func DefaultCaps() Caps {
	return Caps{DetailBytes: 4096, RawBytes: 8192}
}

// Builder composes telemetry records from decoded hook events.
type Builder struct {
	caps Caps
}

// NewBuilder creates a builder with the given size caps. Zero caps fall
// back to the defaults.
func NewBuilder(caps Caps) *Builder {
	if caps.DetailBytes <= 0 {
		caps.DetailBytes = DefaultCaps().DetailBytes
	}
	if caps.RawBytes <= 0 {
		caps.RawBytes = DefaultCaps().RawBytes
	}
	return &Builder{caps: caps}
}

// Build assembles a record from a decoded event, the scope verdict, and
// the capture instant. RecordID, Seq, and PrevHash stay empty; the
// buffer assigns them under its per-session lock at append time.
func (b *Builder) Build(ev *hook.Event, outsideScope bool, now time.Time) *Record {
	details, truncated := b.details(ev)
	raw := ev.Raw
	if len(raw) > b.caps.RawBytes {
		raw = raw[:b.caps.RawBytes]
		truncated = true
	}
	details.Truncated = truncated

	return &Record{
		Timestamp:     now.UTC().Format(TimestampLayout),
		SessionID:     ev.SessionID,
		ProjectPath:   ev.Cwd,
		ProjectName:   filepath.Base(ev.Cwd),
		ToolName:      ev.ToolName,
		EventType:     ev.EventType,
		ActionDetails: details,
		ScopeFlag:     outsideScope,
		RawPayload:    string(raw),
	}
}

// details flattens the free-form tool input into the fixed Details
// shape, truncating oversized strings.
func (b *Builder) details(ev *hook.Event) (Details, bool) {
	truncated := false
	clip := func(s string) string {
		if len(s) > b.caps.DetailBytes {
			truncated = true
			return s[:b.caps.DetailBytes]
		}
		return s
	}

	d := Details{
		FilePath: clip(stringParam(ev.ToolInput, "file_path", "path", "notebook_path")),
		Command:  clip(stringParam(ev.ToolInput, "command")),
		Pattern:  clip(stringParam(ev.ToolInput, "pattern", "query")),
		URL:      clip(stringParam(ev.ToolInput, "url")),
	}
	if c, ok := ev.ToolInput["content"].(string); ok {
		d.Bytes = len(c)
	}
	return d, truncated
}

// stringParam returns the first non-empty string value among the given
// keys.
func stringParam(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
