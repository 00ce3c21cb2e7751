package provider

import (
	"path/filepath"
	"testing"

	"github.com/iksnae/session-bridge/internal"
)

const vibeFixture = `{"role":"user","content":"hello","timestamp":"2026-02-06T09:30:00Z"}
{"speaker":"assistant","text":"hi there","created_at":1770000001}
{"message":{"role":"user","content":"nested shape","ts":1770000002000}}
{"role":"assistant","content":"done","time":1770000003}
`

func vibeFixturePath(t *testing.T, home, id string) string {
	path := filepath.Join(home, id, "messages.jsonl")
	writeFixture(t, path, vibeFixture)
	return path
}

func TestVibeReadSession(t *testing.T) {
	home := t.TempDir()
	path := vibeFixturePath(t, home, "vibe-1")
	vibe := NewVibe(testConfig("vibe", home))

	session, err := vibe.ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}

	if session.SessionID != "vibe-1" {
		t.Errorf("SessionID = %q, want directory name", session.SessionID)
	}
	if len(session.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(session.Messages))
	}

	wantRoles := []internal.Role{internal.RoleUser, internal.RoleAssistant, internal.RoleUser, internal.RoleAssistant}
	wantContent := []string{"hello", "hi there", "nested shape", "done"}
	for i := range wantRoles {
		if session.Messages[i].Role != wantRoles[i] {
			t.Errorf("message %d role = %v, want %v", i, session.Messages[i].Role, wantRoles[i])
		}
		if session.Messages[i].Content != wantContent[i] {
			t.Errorf("message %d content = %q, want %q", i, session.Messages[i].Content, wantContent[i])
		}
	}

	// Each timestamp alias normalizes to epoch millis.
	if session.Messages[1].Timestamp != 1770000001000 {
		t.Errorf("created_at timestamp = %d", session.Messages[1].Timestamp)
	}
	if session.Messages[2].Timestamp != 1770000002000 {
		t.Errorf("nested ts timestamp = %d", session.Messages[2].Timestamp)
	}
	if session.Messages[3].Timestamp != 1770000003000 {
		t.Errorf("time timestamp = %d", session.Messages[3].Timestamp)
	}
}

func TestVibeWriteReadRoundTrip(t *testing.T) {
	home := t.TempDir()
	vibe := NewVibe(testConfig("vibe", home))

	source := &internal.Session{
		SessionID:    "orig",
		ProviderSlug: "gemini",
		Messages: []internal.Message{
			{Index: 0, Role: internal.RoleUser, Content: "hello", Timestamp: 1700000000000},
			{Index: 1, Role: internal.RoleAssistant, Content: "hi", Timestamp: 1700000002000},
		},
	}

	written, err := vibe.WriteSession(source, WriteOptions{})
	if err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	wantPath := filepath.Join(home, written.SessionID, "messages.jsonl")
	if written.Paths[0] != wantPath {
		t.Errorf("written path = %q, want %q", written.Paths[0], wantPath)
	}

	back, err := vibe.ReadSession(written.Paths[0])
	if err != nil {
		t.Fatalf("reading written session: %v", err)
	}
	if len(back.Messages) != 2 {
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

func TestVibeWritePassesThroughExtras(t *testing.T) {
	home := t.TempDir()
	vibe := NewVibe(testConfig("vibe", home))

	source := &internal.Session{
		SessionID:    "orig",
		ProviderSlug: "claude-code",
		Messages: []internal.Message{
			{
				Index: 0, Role: internal.RoleUser, Content: "hello", Timestamp: 1700000000000,
				Extra: map[string]any{"gitBranch": "main", "content": "shadowed", "role": "shadowed"},
			},
			{Index: 1, Role: internal.RoleAssistant, Content: "hi", Timestamp: 1700000001000},
		},
	}

	written, err := vibe.WriteSession(source, WriteOptions{})
	if err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	back, err := vibe.ReadSession(written.Paths[0])
	if err != nil {
		t.Fatal(err)
	}

	// The unreserved extra rides along; reserved keys never shadow the
	// canonical fields.
	if back.Messages[0].Content != "hello" {
		t.Errorf("content = %q, reserved extras must not shadow it", back.Messages[0].Content)
	}
	extra, ok := back.Messages[0].Extra.(map[string]any)
	if !ok {
		t.Fatal("read-back message has no extra map")
	}
	if extra["gitBranch"] != "main" {
		t.Errorf("passthrough field gitBranch = %v, want main", extra["gitBranch"])
	}
}

func TestVibeOwnsSession(t *testing.T) {
	home := t.TempDir()
	path := vibeFixturePath(t, home, "vibe-1")
	vibe := NewVibe(testConfig("vibe", home))

	if got := vibe.OwnsSession("vibe-1"); got != path {
		t.Errorf("OwnsSession(vibe-1) = %q, want %q", got, path)
	}
	if got := vibe.OwnsSession("missing"); got != "" {
		t.Errorf("OwnsSession(missing) = %q, want empty", got)
	}
}

func TestVibeReservedField(t *testing.T) {
	for _, reserved := range []string{"role", "speaker", "content", "text", "message", "timestamp", "created_at", "createdAt", "time", "ts"} {
		if !vibeReservedField(reserved) {
			t.Errorf("vibeReservedField(%q) = false", reserved)
		}
	}
	if vibeReservedField("gitBranch") {
		t.Error("vibeReservedField(gitBranch) = true")
	}
}
