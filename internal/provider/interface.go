// Package provider implements the closed set of supported coding-agent
// providers: their on-disk session formats, home-directory resolution,
// detection probes, and the registry that locates sessions across them.
package provider

import (
	"fmt"

	"github.com/iksnae/session-bridge/internal"
)

// DetectionResult is the outcome of probing a provider installation.
type DetectionResult struct {
	Installed bool
	Evidence  []string
}

// SessionSummary is one row of a provider's session listing.
type SessionSummary struct {
	SessionID    string `json:"session_id"`
	Provider     string `json:"provider"`
	Title        string `json:"title,omitempty"`
	Workspace    string `json:"workspace,omitempty"`
	MessageCount int    `json:"message_count"`
	// UpdatedAt is epoch milliseconds of the last activity, zero if unknown.
	UpdatedAt int64  `json:"updated_at,omitempty"`
	Path      string `json:"path"`
}

// WriteOptions control how a session is written into a provider's format.
type WriteOptions struct {
	// Force overwrites an existing session file, renaming it aside to a
	// .bak backup first.
	Force bool
	// Enrich prepends synthetic orientation messages to the written
	// output to aid cross-tool context transfer. The canonical session
	// passed to the writer is never mutated.
	Enrich bool
}

// WrittenSession describes the files produced by a successful write.
type WrittenSession struct {
	Paths []string
	// SessionID is the freshly minted id in the target provider's
	// namespace. Writers never reuse the source id.
	SessionID     string
	ResumeCommand string
	BackupPath    string
}

// Provider is the uniform capability contract each supported coding
// agent implements. Implementations are stateless beyond their resolved
// home directory and are safe for concurrent reads.
type Provider interface {
	// Name is the human-readable name, e.g. "Claude Code".
	Name() string
	// Slug identifies the provider in session metadata, e.g. "claude-code".
	Slug() string
	// Alias is the short CLI alias, e.g. "cc".
	Alias() string
	// Detect probes whether the provider's home can be found and looks
	// valid on this machine.
	Detect() DetectionResult
	// SessionRoots returns the directories this provider stores sessions
	// under. Empty when the provider is not installed.
	SessionRoots() []string
	// OwnsSession reports the session file path if sessionID belongs to
	// this provider, or "" if not. Scans are read-only.
	OwnsSession(sessionID string) string
	// List enumerates the provider's discoverable sessions.
	List() ([]SessionSummary, error)
	// ReadSession parses a native session file into the canonical model.
	ReadSession(path string) (*internal.Session, error)
	// WriteSession serializes a canonical session into native files,
	// minting a new target session id.
	WriteSession(session *internal.Session, opts WriteOptions) (*WrittenSession, error)
	// ResumeCommand builds the shell command that resumes sessionID
	// under this provider.
	ResumeCommand(sessionID string) string
}

// roleLabel renders a canonical role in the wire form shared by the
// JSONL-based providers.
func roleLabel(role internal.Role) string {
	return role.String()
}

// EnrichMessages returns a copy of the session's messages with synthetic
// orientation messages prepended, used by writers in enrich mode. The
// input session is not modified.
func EnrichMessages(session *internal.Session, targetName string) []internal.Message {
	intro := fmt.Sprintf(
		"This conversation was converted from a %s session (id %s) so it can be resumed in %s.",
		session.ProviderSlug, session.SessionID, targetName)
	if session.Workspace != "" {
		intro += fmt.Sprintf(" The project workspace is %s.", session.Workspace)
	}
	if session.StartedAt != 0 {
		intro += fmt.Sprintf(" The original conversation started at %s.", internal.FormatTimestamp(session.StartedAt))
	}

	enriched := make([]internal.Message, 0, len(session.Messages)+1)
	enriched = append(enriched, internal.Message{
		Role:      internal.RoleSystem,
		Content:   intro,
		Timestamp: session.StartedAt,
		Author:    "session-bridge",
	})
	enriched = append(enriched, session.Messages...)
	internal.ReindexMessages(enriched)
	return enriched
}

// outputMessages picks the message sequence a writer should emit: the
// canonical messages, or an enriched copy when requested.
func outputMessages(session *internal.Session, opts WriteOptions, targetName string) []internal.Message {
	if opts.Enrich {
		return EnrichMessages(session, targetName)
	}
	return session.Messages
}
