package provider

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iksnae/session-bridge/internal"
)

func testConfig(slug, home string) *internal.Config {
	return &internal.Config{Homes: map[string]string{slug: home}}
}

func mustMillis(t *testing.T, value any) int64 {
	t.Helper()
	ms, ok := internal.ParseTimestamp(value)
	if !ok {
		t.Fatalf("ParseTimestamp(%v) failed", value)
	}
	return ms
}

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestProjectDirKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/data/projects/demo", "-data-projects-demo"},
		{"/home/user/my_app.md", "-home-user-my-app-md"},
		{"", ""},
		{"abc123", "abc123"},
	}
	for _, tt := range tests {
		if got := ProjectDirKey(tt.input); got != tt.want {
			t.Errorf("ProjectDirKey(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

const claudeFixture = `{"type":"user","sessionId":"sess-1","cwd":"/data/projects/demo","gitBranch":"main","version":"2.1.0","timestamp":"2026-01-02T03:04:05.000Z","message":{"role":"user","content":"Fix the failing test"}}
{"type":"assistant","sessionId":"sess-1","cwd":"/data/projects/demo","timestamp":"2026-01-02T03:04:07.000Z","message":{"role":"assistant","model":"some-model","content":[{"type":"text","text":"Looking into it."},{"type":"tool_use","id":"tu-1","name":"Bash","input":{"description":"run tests"}}]}}
{"type":"file-history-snapshot","snapshot":{"files":[]}}
not valid json
{"type":"user","sessionId":"sess-1","timestamp":"2026-01-02T03:04:09.000Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu-1","content":"tests pass"}]}}
{"type":"assistant","sessionId":"sess-1","timestamp":"2026-01-02T03:04:11.000Z","message":{"role":"assistant","model":"some-model","content":"Done."}}
`

func claudeFixturePath(t *testing.T, home string) string {
	path := filepath.Join(home, "projects", "-data-projects-demo", "sess-1.jsonl")
	writeFixture(t, path, claudeFixture)
	return path
}

func TestClaudeReadSession(t *testing.T) {
	home := t.TempDir()
	path := claudeFixturePath(t, home)
	claude := NewClaudeCode(testConfig("claude-code", home))

	session, err := claude.ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}

	if session.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", session.SessionID)
	}
	if session.Workspace != "/data/projects/demo" {
		t.Errorf("Workspace = %q", session.Workspace)
	}
	if len(session.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(session.Messages))
	}

	wantRoles := []internal.Role{internal.RoleUser, internal.RoleAssistant, internal.RoleUser, internal.RoleAssistant}
	for i, want := range wantRoles {
		if session.Messages[i].Role != want {
			t.Errorf("message %d role = %v, want %v", i, session.Messages[i].Role, want)
		}
		if session.Messages[i].Index != i {
			t.Errorf("message %d index = %d", i, session.Messages[i].Index)
		}
	}

	if session.Messages[1].Content != "Looking into it.\n[Tool: Bash - run tests]" {
		t.Errorf("flattened content = %q", session.Messages[1].Content)
	}
	if len(session.Messages[1].ToolCalls) != 1 || session.Messages[1].ToolCalls[0].Name != "Bash" {
		t.Errorf("tool calls = %+v", session.Messages[1].ToolCalls)
	}
	if len(session.Messages[2].ToolResults) != 1 || session.Messages[2].ToolResults[0].Content != "tests pass" {
		t.Errorf("tool results = %+v", session.Messages[2].ToolResults)
	}

	if session.Stats.Records != 6 || session.Stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 6 records 1 skipped", session.Stats)
	}
	if session.Title != "Fix the failing test" {
		t.Errorf("Title = %q", session.Title)
	}
	if session.ModelName != "some-model" {
		t.Errorf("ModelName = %q", session.ModelName)
	}
	if session.Metadata["gitBranch"] != "main" {
		t.Errorf("gitBranch metadata = %v", session.Metadata["gitBranch"])
	}

	wantStart := mustMillis(t, "2026-01-02T03:04:05.000Z")
	if session.StartedAt != wantStart {
		t.Errorf("StartedAt = %d, want %d", session.StartedAt, wantStart)
	}
	wantEnd := mustMillis(t, "2026-01-02T03:04:11.000Z")
	if session.EndedAt != wantEnd {
		t.Errorf("EndedAt = %d, want %d", session.EndedAt, wantEnd)
	}
}

func TestClaudeWriteReadRoundTrip(t *testing.T) {
	home := t.TempDir()
	claude := NewClaudeCode(testConfig("claude-code", home))

	source := &internal.Session{
		SessionID:    "orig-id",
		ProviderSlug: "codex",
		Workspace:    "/data/projects/demo",
		Messages: []internal.Message{
			{Index: 0, Role: internal.RoleUser, Content: "hello", Timestamp: 1700000000000},
			{Index: 1, Role: internal.RoleAssistant, Content: "hi there", Timestamp: 1700000002000, Author: "some-model"},
		},
	}

	written, err := claude.WriteSession(source, WriteOptions{})
	if err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	if written.SessionID == source.SessionID {
		t.Error("writer must mint a fresh session id")
	}
	if !strings.Contains(written.ResumeCommand, written.SessionID) {
		t.Errorf("resume command %q should contain the new id", written.ResumeCommand)
	}

	back, err := claude.ReadSession(written.Paths[0])
	if err != nil {
		t.Fatalf("reading written session: %v", err)
	}
	if len(back.Messages) != len(source.Messages) {
		t.Fatalf("round trip message count = %d, want %d", len(back.Messages), len(source.Messages))
	}
	for i := range source.Messages {
		if back.Messages[i].Role != source.Messages[i].Role {
			t.Errorf("message %d role = %v, want %v", i, back.Messages[i].Role, source.Messages[i].Role)
		}
		if back.Messages[i].Content != source.Messages[i].Content {
			t.Errorf("message %d content = %q, want %q", i, back.Messages[i].Content, source.Messages[i].Content)
		}
		if back.Messages[i].Timestamp != source.Messages[i].Timestamp {
			t.Errorf("message %d timestamp = %d, want %d", i, back.Messages[i].Timestamp, source.Messages[i].Timestamp)
		}
	}
	if back.Workspace != source.Workspace {
		t.Errorf("Workspace = %q, want %q", back.Workspace, source.Workspace)
	}
	if back.SessionID != written.SessionID {
		t.Errorf("read-back id = %q, want %q", back.SessionID, written.SessionID)
	}
}

func TestClaudeWriteEnrich(t *testing.T) {
	home := t.TempDir()
	claude := NewClaudeCode(testConfig("claude-code", home))

	source := &internal.Session{
		SessionID:    "orig-id",
		ProviderSlug: "vibe",
		Workspace:    "/w",
		Messages: []internal.Message{
			{Index: 0, Role: internal.RoleUser, Content: "hello", Timestamp: 1700000000000},
			{Index: 1, Role: internal.RoleAssistant, Content: "hi", Timestamp: 1700000001000},
		},
	}

	written, err := claude.WriteSession(source, WriteOptions{Enrich: true})
	if err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	back, err := claude.ReadSession(written.Paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Messages) != 3 {
		t.Fatalf("enriched session has %d messages, want 3", len(back.Messages))
	}
	if back.Messages[0].Role != internal.RoleSystem {
		t.Errorf("first message role = %v, want system", back.Messages[0].Role)
	}
	if !strings.Contains(back.Messages[0].Content, "converted") {
		t.Errorf("orientation message = %q", back.Messages[0].Content)
	}
	// The source session itself is untouched.
	if len(source.Messages) != 2 {
		t.Errorf("source session mutated: %d messages", len(source.Messages))
	}
}

func TestClaudeOwnsSession(t *testing.T) {
	home := t.TempDir()
	path := claudeFixturePath(t, home)
	claude := NewClaudeCode(testConfig("claude-code", home))

	if got := claude.OwnsSession("sess-1"); got != path {
		t.Errorf("OwnsSession(sess-1) = %q, want %q", got, path)
	}
	if got := claude.OwnsSession("missing"); got != "" {
		t.Errorf("OwnsSession(missing) = %q, want empty", got)
	}
}

func TestClaudeList(t *testing.T) {
	home := t.TempDir()
	claudeFixturePath(t, home)
	claude := NewClaudeCode(testConfig("claude-code", home))

	summaries, err := claude.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	if summaries[0].SessionID != "sess-1" || summaries[0].MessageCount != 4 {
		t.Errorf("summary = %+v", summaries[0])
	}
}

func TestMostCommon(t *testing.T) {
	if got := mostCommon(map[string]int{}); got != "" {
		t.Errorf("mostCommon(empty) = %q", got)
	}
	if got := mostCommon(map[string]int{"a": 1, "b": 3}); got != "b" {
		t.Errorf("mostCommon() = %q, want b", got)
	}
}
