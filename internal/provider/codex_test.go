package provider

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iksnae/session-bridge/internal"
)

func TestRolloutPath(t *testing.T) {
	now := time.Date(2026, 2, 6, 9, 30, 15, 0, time.UTC)
	got := RolloutPath("/sessions", "abc-123", now)
	want := filepath.Join("/sessions", "2026", "02", "06", "rollout-2026-02-06T09-30-15-abc-123.jsonl")
	if got != want {
		t.Errorf("RolloutPath() = %q, want %q", got, want)
	}
}

const codexEnvelopeFixture = `{"type":"session_meta","timestamp":"2026-02-06T09:30:15Z","payload":{"id":"rollout-id","cwd":"/data/projects/demo"}}
{"type":"response_item","timestamp":1770000000000,"payload":{"role":"user","content":"What does this code do?"}}
{"type":"event_msg","timestamp":1770000001000,"payload":{"type":"agent_reasoning","text":"Reading the file first."}}
{"type":"response_item","timestamp":1770000002000,"payload":{"role":"assistant","content":"It parses JSONL."}}
{"type":"event_msg","timestamp":1770000003000,"payload":{"type":"token_count","count":512}}
{"type":"event_msg","timestamp":1770000004000,"payload":{"type":"user_message","message":"Thanks!"}}
`

func TestCodexReadEnvelope(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "sessions", "2026", "02", "06", "rollout-2026-02-06T09-30-15-rollout-id.jsonl")
	writeFixture(t, path, codexEnvelopeFixture)
	codex := NewCodex(testConfig("codex", home))

	session, err := codex.ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}

	if session.SessionID != "rollout-id" {
		t.Errorf("SessionID = %q, want rollout-id", session.SessionID)
	}
	if session.Workspace != "/data/projects/demo" {
		t.Errorf("Workspace = %q", session.Workspace)
	}
	if len(session.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(session.Messages))
	}

	if session.Messages[0].Role != internal.RoleUser || session.Messages[0].Content != "What does this code do?" {
		t.Errorf("message 0 = %+v", session.Messages[0])
	}
	if session.Messages[1].Role != internal.RoleAssistant || session.Messages[1].Author != "reasoning" {
		t.Errorf("reasoning message = %+v", session.Messages[1])
	}
	if session.Messages[3].Role != internal.RoleUser || session.Messages[3].Content != "Thanks!" {
		t.Errorf("user_message event = %+v", session.Messages[3])
	}
	if session.Messages[0].Timestamp != 1770000000000 {
		t.Errorf("timestamp = %d", session.Messages[0].Timestamp)
	}
}

func TestCodexReadLegacy(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "sessions", "legacy.json")
	writeFixture(t, path, `{"session":{"id":"legacy-1","cwd":"/w"},"items":[{"role":"user","content":"hi","timestamp":1700000000},{"role":"assistant","content":"hello","timestamp":1700000002}]}`+"\n")
	codex := NewCodex(testConfig("codex", home))

	session, err := codex.ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}
	if session.SessionID != "legacy-1" || session.Workspace != "/w" {
		t.Errorf("session meta = %q %q", session.SessionID, session.Workspace)
	}
	if len(session.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(session.Messages))
	}
	// Second-precision timestamps scale to millis.
	if session.Messages[0].Timestamp != 1700000000000 {
		t.Errorf("timestamp = %d, want 1700000000000", session.Messages[0].Timestamp)
	}
}

func TestCodexWriteReadRoundTrip(t *testing.T) {
	home := t.TempDir()
	codex := NewCodex(testConfig("codex", home))

	source := &internal.Session{
		SessionID:    "orig",
		ProviderSlug: "claude-code",
		Workspace:    "/data/projects/demo",
		Messages: []internal.Message{
			{Index: 0, Role: internal.RoleUser, Content: "hello", Timestamp: 1700000000000},
			{Index: 1, Role: internal.RoleAssistant, Content: "hi", Timestamp: 1700000002000},
		},
	}

	written, err := codex.WriteSession(source, WriteOptions{})
	if err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	if !strings.Contains(written.Paths[0], filepath.Join(home, "sessions")) {
		t.Errorf("written path %q not under sessions dir", written.Paths[0])
	}

	back, err := codex.ReadSession(written.Paths[0])
	if err != nil {
		t.Fatalf("reading written session: %v", err)
	}
	if back.SessionID != written.SessionID {
		t.Errorf("read-back id = %q, want %q", back.SessionID, written.SessionID)
	}
	if back.Workspace != source.Workspace {
		t.Errorf("Workspace = %q", back.Workspace)
	}
	if len(back.Messages) != len(source.Messages) {
		t.Fatalf("round trip message count = %d", len(back.Messages))
	}
	for i := range source.Messages {
		if back.Messages[i].Role != source.Messages[i].Role ||
			back.Messages[i].Content != source.Messages[i].Content ||
			back.Messages[i].Timestamp != source.Messages[i].Timestamp {
			t.Errorf("message %d = %+v, want %+v", i, back.Messages[i], source.Messages[i])
		}
	}
}

func TestCodexOwnsSession(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "sessions", "2026", "02", "06", "rollout-2026-02-06T09-30-15-rollout-id.jsonl")
	writeFixture(t, path, codexEnvelopeFixture)
	codex := NewCodex(testConfig("codex", home))

	// Filename uuid suffix match.
	if got := codex.OwnsSession("rollout-id"); got != path {
		t.Errorf("OwnsSession(rollout-id) = %q, want %q", got, path)
	}
	// Relative path match.
	if got := codex.OwnsSession("2026/02/06/rollout-2026-02-06T09-30-15-rollout-id.jsonl"); got != path {
		t.Errorf("OwnsSession(relative path) = %q, want %q", got, path)
	}
	if got := codex.OwnsSession("missing"); got != "" {
		t.Errorf("OwnsSession(missing) = %q, want empty", got)
	}
}

func TestSessionMetaID(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "rollout-x.jsonl")
	writeFixture(t, path, codexEnvelopeFixture)
	if got := sessionMetaID(path); got != "rollout-id" {
		t.Errorf("sessionMetaID() = %q, want rollout-id", got)
	}
}
