package provider

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iksnae/session-bridge/internal"
)

// Vibe reads and writes JSONL chat sessions under ~/.vibe/logs/session/.
//
// Each session is a subdirectory named after its id holding a
// messages.jsonl file. The line format is flexible: the role may appear
// as "role", "speaker", or nested "message.role"; content as "content",
// "text", or "message.content"; timestamps under several names
// ("timestamp", "created_at", "createdAt", "time", "ts").
type Vibe struct {
	home string
}

// NewVibe resolves the provider home: VIBE_HOME override first,
// ~/.vibe/logs/session otherwise.
func NewVibe(cfg *internal.Config) *Vibe {
	fallback := ""
	if home, err := os.UserHomeDir(); err == nil {
		fallback = filepath.Join(home, ".vibe", "logs", "session")
	}
	return &Vibe{home: cfg.Home("vibe", fallback)}
}

func (v *Vibe) Name() string  { return "Vibe" }
func (v *Vibe) Slug() string  { return "vibe" }
func (v *Vibe) Alias() string { return "vib" }

func (v *Vibe) Detect() DetectionResult {
	if info, err := os.Stat(v.home); err == nil && info.IsDir() {
		return DetectionResult{
			Installed: true,
			Evidence:  []string{"sessions directory found: " + v.home},
		}
	}
	return DetectionResult{}
}

func (v *Vibe) SessionRoots() []string {
	if info, err := os.Stat(v.home); err == nil && info.IsDir() {
		return []string{v.home}
	}
	return nil
}

func (v *Vibe) OwnsSession(sessionID string) string {
	candidate := filepath.Join(v.home, sessionID, "messages.jsonl")
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		internal.LogDebug("found Vibe session at %s", candidate)
		return candidate
	}
	return ""
}

func (v *Vibe) List() ([]SessionSummary, error) {
	entries, err := os.ReadDir(v.home)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var summaries []SessionSummary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(v.home, entry.Name(), "messages.jsonl")
		session, err := v.ReadSession(path)
		if err != nil {
			continue
		}
		summaries = append(summaries, SessionSummary{
			SessionID:    session.SessionID,
			Provider:     v.Slug(),
			Title:        session.Title,
			MessageCount: len(session.Messages),
			UpdatedAt:    session.EndedAt,
			Path:         path,
		})
	}
	return summaries, nil
}

func (v *Vibe) ReadSession(path string) (*internal.Session, error) {
	internal.LogDebug("reading Vibe session %s", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, &internal.ReadError{Path: path, Provider: v.Slug(), Err: err}
	}
	defer f.Close()

	session := &internal.Session{
		ProviderSlug: v.Slug(),
		SourcePath:   path,
		Metadata:     map[string]any{"source": "vibe"},
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		session.Stats.Records++

		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			session.Stats.Skipped++
			continue
		}

		content := vibeContent(record)
		if strings.TrimSpace(content) == "" {
			continue
		}

		ts := vibeTimestamp(record)
		session.ObserveTimestamp(ts)

		session.Messages = append(session.Messages, internal.Message{
			Role:      internal.NormalizeRole(vibeRole(record)),
			Content:   content,
			Timestamp: ts,
			Extra:     record,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &internal.ReadError{Path: path, Provider: v.Slug(), Err: err}
	}

	internal.ReindexMessages(session.Messages)

	// The session id is the parent directory name.
	session.SessionID = filepath.Base(filepath.Dir(path))
	session.Title = firstUserTitle(session.Messages)

	internal.LogDebug("Vibe session %s parsed: %d messages", session.SessionID, len(session.Messages))
	return session, nil
}

func (v *Vibe) WriteSession(session *internal.Session, opts WriteOptions) (*WrittenSession, error) {
	targetID := uuid.NewString()
	targetPath := filepath.Join(v.home, targetID, "messages.jsonl")

	messages := outputMessages(session, opts, v.Name())

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, msg := range messages {
		line := map[string]any{
			"role":    roleLabel(msg.Role),
			"content": msg.Content,
		}
		if msg.Timestamp != 0 {
			line["timestamp"] = time.UnixMilli(msg.Timestamp).UTC().Format(time.RFC3339Nano)
		}
		// Vibe's reader tolerates unknown fields, so source extras can
		// ride along verbatim where they don't collide.
		if extra, ok := msg.Extra.(map[string]any); ok {
			for key, value := range extra {
				if _, taken := line[key]; !taken && !vibeReservedField(key) {
					line[key] = value
				}
			}
		}
		if err := enc.Encode(line); err != nil {
			return nil, &internal.WriteError{Path: targetPath, Provider: v.Slug(), Err: err}
		}
	}

	outcome, err := internal.AtomicWrite(targetPath, buf.Bytes(), opts.Force)
	if err != nil {
		return nil, decorateWriteErr(err, v.Slug(), targetID)
	}

	internal.LogInfo("Vibe session written to %s (%d messages)", outcome.TargetPath, len(messages))
	return &WrittenSession{
		Paths:         []string{outcome.TargetPath},
		SessionID:     targetID,
		ResumeCommand: v.ResumeCommand(targetID),
		BackupPath:    outcome.BackupPath,
	}, nil
}

func (v *Vibe) ResumeCommand(sessionID string) string {
	return fmt.Sprintf("vibe --resume %s", sessionID)
}

// vibeReservedField reports whether a field name would shadow one of the
// flexible role/content/timestamp aliases on read-back.
func vibeReservedField(key string) bool {
	switch key {
	case "role", "speaker", "content", "text", "message",
		"timestamp", "created_at", "createdAt", "time", "ts":
		return true
	}
	return false
}

func vibeRole(record map[string]any) string {
	if role, ok := record["role"].(string); ok {
		return role
	}
	if speaker, ok := record["speaker"].(string); ok {
		return speaker
	}
	if message, ok := record["message"].(map[string]any); ok {
		if role, ok := message["role"].(string); ok {
			return role
		}
	}
	return "assistant"
}

func vibeContent(record map[string]any) string {
	if content, ok := record["content"]; ok {
		return internal.FlattenContent(content)
	}
	if text, ok := record["text"]; ok {
		return internal.FlattenContent(text)
	}
	if message, ok := record["message"].(map[string]any); ok {
		if content, ok := message["content"]; ok {
			return internal.FlattenContent(content)
		}
	}
	return ""
}

var vibeTimestampFields = []string{"timestamp", "created_at", "createdAt", "time", "ts"}

func vibeTimestamp(record map[string]any) int64 {
	for _, key := range vibeTimestampFields {
		if value, ok := record[key]; ok {
			if ts, ok := internal.ParseTimestamp(value); ok {
				return ts
			}
		}
	}
	if message, ok := record["message"].(map[string]any); ok {
		for _, key := range vibeTimestampFields {
			if value, ok := message[key]; ok {
				if ts, ok := internal.ParseTimestamp(value); ok {
					return ts
				}
			}
		}
	}
	return 0
}
