package internal

import "encoding/json"

// Role identifies who sent a message. The set is closed except for
// RoleOther, which carries the original provider label.
type Role struct {
	kind  string
	label string
}

var (
	RoleUser      = Role{kind: "user"}
	RoleAssistant = Role{kind: "assistant"}
	RoleTool      = Role{kind: "tool"}
	RoleSystem    = Role{kind: "system"}
)

// RoleOther wraps an unrecognized provider role label.
func RoleOther(label string) Role {
	return Role{kind: "other", label: label}
}

// String returns the canonical role string. For Other roles this is the
// original provider label.
func (r Role) String() string {
	if r.kind == "other" {
		return r.label
	}
	return r.kind
}

// IsOther reports whether the role is an unrecognized provider label.
func (r Role) IsOther() bool {
	return r.kind == "other"
}

// MarshalJSON serializes the role as its string form.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON restores a role from its string form via NormalizeRole.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = NormalizeRole(s)
	return nil
}

// MarshalYAML serializes the role as its string form.
func (r Role) MarshalYAML() (any, error) {
	return r.String(), nil
}

// ToolCall is an opaque tool invocation. Arguments are provider-specific
// and passed through without interpretation.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// ToolResult is an opaque tool result, correlated to a call by CallID.
type ToolResult struct {
	CallID  string `json:"call_id,omitempty"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is one turn of a canonical session.
type Message struct {
	// Index is the zero-based position in the session. After any
	// filtering, ReindexMessages must be called to keep indices dense.
	Index int  `json:"index"`
	Role  Role `json:"role"`
	// Content is the flattened text body of the message.
	Content string `json:"content"`
	// Timestamp is epoch milliseconds; zero means unknown.
	Timestamp int64 `json:"timestamp,omitempty"`
	// Author is a model name, "user", or "reasoning" where known.
	Author      string       `json:"author,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	// Extra carries provider-specific fields that have no canonical
	// representation. The canonical layer never inspects its shape.
	Extra any `json:"extra,omitempty"`
}

// ReadStats is per-read telemetry surfaced to the validator. It is not
// part of the canonical content and is never serialized.
type ReadStats struct {
	// Records is the number of message-like records encountered.
	Records int
	// Skipped is the number of records dropped as malformed.
	Skipped int
}

// SkipRatio returns the fraction of records skipped, 0 when no records
// were seen.
func (rs ReadStats) SkipRatio() float64 {
	if rs.Records == 0 {
		return 0
	}
	return float64(rs.Skipped) / float64(rs.Records)
}

// Session is the provider-neutral representation of one conversation.
// Every reader produces one and every writer consumes one.
type Session struct {
	// SessionID is the source-native identifier.
	SessionID    string `json:"session_id"`
	ProviderSlug string `json:"provider_slug"`
	// Workspace is the project root directory, if known.
	Workspace string `json:"workspace,omitempty"`
	Title     string `json:"title,omitempty"`
	// StartedAt/EndedAt are epoch milliseconds; zero means unknown.
	StartedAt int64     `json:"started_at,omitempty"`
	EndedAt   int64     `json:"ended_at,omitempty"`
	Messages  []Message `json:"messages"`
	// Metadata carries provider extras with no fixed schema.
	Metadata map[string]any `json:"metadata,omitempty"`
	// SourcePath is the absolute path of the original session file.
	SourcePath string `json:"source_path"`
	// ModelName is the most common model seen in the session.
	ModelName string `json:"model_name,omitempty"`

	Stats ReadStats `json:"-"`
}

// HasRole reports whether any message carries the given role.
func (s *Session) HasRole(role Role) bool {
	for _, m := range s.Messages {
		if m.Role == role {
			return true
		}
	}
	return false
}

// ObserveTimestamp folds a message timestamp into the session start/end
// bounds. Zero timestamps are ignored.
func (s *Session) ObserveTimestamp(ts int64) {
	if ts == 0 {
		return
	}
	if s.StartedAt == 0 || ts < s.StartedAt {
		s.StartedAt = ts
	}
	if s.EndedAt == 0 || ts > s.EndedAt {
		s.EndedAt = ts
	}
}
