package provider

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iksnae/session-bridge/internal"
)

// Codex reads and writes JSONL rollout sessions under ~/.codex/sessions/.
//
// Modern files live at YYYY/MM/DD/rollout-<ts>-<uuid>.jsonl and wrap each
// record in an envelope: {"type": "session_meta"|"response_item"|
// "event_msg", "timestamp": ..., "payload": {...}}. session_meta carries
// the session id and cwd; response_item carries conversational messages;
// event_msg is sub-typed (user_message and agent_reasoning are
// conversational, token_count and turn_aborted are not).
//
// A legacy single-JSON format also exists:
// {"session": {"id", "cwd"}, "items": [{role, content, timestamp}]}.
type Codex struct {
	home string
}

// NewCodex resolves the provider home: CODEX_HOME override first,
// ~/.codex otherwise.
func NewCodex(cfg *internal.Config) *Codex {
	fallback := ""
	if home, err := os.UserHomeDir(); err == nil {
		fallback = filepath.Join(home, ".codex")
	}
	return &Codex{home: cfg.Home("codex", fallback)}
}

// RolloutPath builds the target file path for a new Codex session:
// <sessions>/YYYY/MM/DD/rollout-YYYY-MM-DDThh-mm-ss-<session-id>.jsonl
func RolloutPath(sessionsDir, sessionID string, now time.Time) string {
	now = now.UTC()
	return filepath.Join(
		sessionsDir,
		now.Format("2006/01/02"),
		fmt.Sprintf("rollout-%s-%s.jsonl", now.Format("2006-01-02T15-04-05"), sessionID),
	)
}

func (c *Codex) Name() string  { return "Codex" }
func (c *Codex) Slug() string  { return "codex" }
func (c *Codex) Alias() string { return "cod" }

func (c *Codex) sessionsDir() string {
	if c.home == "" {
		return ""
	}
	return filepath.Join(c.home, "sessions")
}

func (c *Codex) Detect() DetectionResult {
	var result DetectionResult
	if _, err := exec.LookPath("codex"); err == nil {
		result.Installed = true
		result.Evidence = append(result.Evidence, "codex binary found in PATH")
	}
	if info, err := os.Stat(c.home); err == nil && info.IsDir() {
		result.Installed = true
		result.Evidence = append(result.Evidence, c.home+" exists")
	}
	return result
}

func (c *Codex) SessionRoots() []string {
	dir := c.sessionsDir()
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return []string{dir}
	}
	return nil
}

func (c *Codex) OwnsSession(sessionID string) string {
	sessionsDir := c.sessionsDir()
	if info, err := os.Stat(sessionsDir); err != nil || !info.IsDir() {
		return ""
	}

	// The id may be a relative path like "2026/02/06/rollout-1".
	asPath := filepath.Join(sessionsDir, sessionID)
	for _, candidate := range []string{asPath, asPath + ".jsonl", asPath + ".json"} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			internal.LogDebug("found Codex session by path %s", candidate)
			return candidate
		}
	}

	// Otherwise scan rollout files: match on the filename's uuid suffix,
	// then fall back to the session_meta payload id in the body.
	found := ""
	_ = filepath.WalkDir(sessionsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found != "" {
			return filepath.SkipAll
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasPrefix(name, "rollout-") ||
			(!strings.HasSuffix(name, ".jsonl") && !strings.HasSuffix(name, ".json")) {
			return nil
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if strings.HasSuffix(stem, sessionID) || sessionMetaID(path) == sessionID {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if found != "" {
		internal.LogDebug("found Codex session at %s", found)
	}
	return found
}

func (c *Codex) List() ([]SessionSummary, error) {
	sessionsDir := c.sessionsDir()
	var summaries []SessionSummary
	err := filepath.WalkDir(sessionsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), "rollout-") {
			return nil
		}
		session, readErr := c.ReadSession(path)
		if readErr != nil {
			internal.LogDebug("skipping unreadable Codex session %s: %v", path, readErr)
			return nil
		}
		summaries = append(summaries, SessionSummary{
			SessionID:    session.SessionID,
			Provider:     c.Slug(),
			Title:        session.Title,
			Workspace:    session.Workspace,
			MessageCount: len(session.Messages),
			UpdatedAt:    session.EndedAt,
			Path:         path,
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return summaries, nil
}

func (c *Codex) ReadSession(path string) (*internal.Session, error) {
	internal.LogDebug("reading Codex session %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &internal.ReadError{Path: path, Provider: c.Slug(), Err: err}
	}

	// Legacy detection: a first line carrying "session" or "items" keys
	// means the whole file is one JSON document.
	trimmed := strings.TrimLeft(string(data), " \t\r\n")
	if firstLine, _, _ := strings.Cut(trimmed, "\n"); firstLine != "" {
		var probe map[string]any
		if err := json.Unmarshal([]byte(firstLine), &probe); err == nil {
			_, hasSession := probe["session"]
			_, hasItems := probe["items"]
			if hasSession || hasItems {
				return c.readLegacyJSON(path, data)
			}
		}
	}
	return c.readJSONL(path, data)
}

// readJSONL parses the modern envelope format.
func (c *Codex) readJSONL(path string, data []byte) (*internal.Session, error) {
	session := &internal.Session{
		ProviderSlug: c.Slug(),
		SourcePath:   path,
		Metadata:     map[string]any{"source": "codex"},
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		session.Stats.Records++

		var envelope map[string]any
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			internal.LogWarn("skipping malformed JSON on line %d of %s: %v", lineNum, path, err)
			session.Stats.Skipped++
			continue
		}

		ts, _ := internal.ParseTimestamp(envelope["timestamp"])
		session.ObserveTimestamp(ts)

		payload, _ := envelope["payload"].(map[string]any)
		eventType, _ := envelope["type"].(string)

		switch eventType {
		case "session_meta":
			if session.SessionID == "" {
				if id, ok := payload["id"].(string); ok {
					session.SessionID = id
				}
			}
			if session.Workspace == "" {
				if cwd, ok := payload["cwd"].(string); ok {
					session.Workspace = cwd
				}
			}
		case "response_item":
			roleStr, _ := payload["role"].(string)
			if roleStr == "" {
				roleStr = "assistant"
			}
			content := internal.FlattenContent(payload["content"])
			if strings.TrimSpace(content) == "" {
				internal.LogTrace("line %d: skipping empty response_item", lineNum)
				continue
			}
			session.Messages = append(session.Messages, internal.Message{
				Role:        internal.NormalizeRole(roleStr),
				Content:     content,
				Timestamp:   ts,
				ToolCalls:   extractToolCalls(payload["content"]),
				ToolResults: extractToolResults(payload["content"]),
				Extra:       envelope,
			})
		case "event_msg":
			subType, _ := payload["type"].(string)
			switch subType {
			case "user_message":
				text, _ := payload["message"].(string)
				if strings.TrimSpace(text) == "" {
					continue
				}
				session.Messages = append(session.Messages, internal.Message{
					Role:      internal.RoleUser,
					Content:   text,
					Timestamp: ts,
					Extra:     envelope,
				})
			case "agent_reasoning":
				text, _ := payload["text"].(string)
				if strings.TrimSpace(text) == "" {
					continue
				}
				session.Messages = append(session.Messages, internal.Message{
					Role:      internal.RoleAssistant,
					Content:   text,
					Timestamp: ts,
					Author:    "reasoning",
					Extra:     envelope,
				})
			default:
				internal.LogTrace("line %d: skipping non-conversational event_msg %q", lineNum, subType)
			}
		default:
			internal.LogTrace("line %d: skipping unknown event type %q", lineNum, eventType)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &internal.ReadError{Path: path, Provider: c.Slug(), Err: err}
	}

	return c.finishSession(session, path), nil
}

// readLegacyJSON parses the single-document format.
func (c *Codex) readLegacyJSON(path string, data []byte) (*internal.Session, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, &internal.ReadError{Path: path, Provider: c.Slug(), Err: err}
	}

	session := &internal.Session{
		ProviderSlug: c.Slug(),
		SourcePath:   path,
		Metadata:     map[string]any{"source": "codex"},
	}
	if sessionObj, ok := root["session"].(map[string]any); ok {
		if id, ok := sessionObj["id"].(string); ok {
			session.SessionID = id
		}
		if cwd, ok := sessionObj["cwd"].(string); ok {
			session.Workspace = cwd
		}
	}

	items, _ := root["items"].([]any)
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			session.Stats.Records++
			session.Stats.Skipped++
			continue
		}
		session.Stats.Records++

		roleStr, _ := item["role"].(string)
		if roleStr == "" {
			roleStr = "assistant"
		}
		content := internal.FlattenContent(item["content"])
		if strings.TrimSpace(content) == "" {
			continue
		}
		ts, _ := internal.ParseTimestamp(item["timestamp"])
		session.ObserveTimestamp(ts)

		session.Messages = append(session.Messages, internal.Message{
			Role:      internal.NormalizeRole(roleStr),
			Content:   content,
			Timestamp: ts,
			Extra:     item,
		})
	}

	return c.finishSession(session, path), nil
}

func (c *Codex) finishSession(session *internal.Session, path string) *internal.Session {
	internal.ReindexMessages(session.Messages)

	if session.SessionID == "" {
		// Fall back to the rollout path relative to the sessions root.
		if rel, err := filepath.Rel(c.sessionsDir(), path); err == nil && !strings.HasPrefix(rel, "..") {
			session.SessionID = strings.TrimSuffix(rel, filepath.Ext(rel))
		} else {
			session.SessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
	}
	session.Title = firstUserTitle(session.Messages)

	internal.LogDebug("Codex session %s parsed: %d messages, %d skipped",
		session.SessionID, len(session.Messages), session.Stats.Skipped)
	return session
}

func (c *Codex) WriteSession(session *internal.Session, opts WriteOptions) (*WrittenSession, error) {
	targetID := uuid.NewString()
	now := time.Now()
	targetPath := RolloutPath(c.sessionsDir(), targetID, now)

	messages := outputMessages(session, opts, c.Name())

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	meta := map[string]any{
		"type":      "session_meta",
		"timestamp": now.UTC().Format(time.RFC3339),
		"payload": map[string]any{
			"id": targetID,
		},
	}
	if session.Workspace != "" {
		meta["payload"].(map[string]any)["cwd"] = session.Workspace
	}
	if err := enc.Encode(meta); err != nil {
		return nil, &internal.WriteError{Path: targetPath, Provider: c.Slug(), Err: err}
	}

	for _, msg := range messages {
		envelope := map[string]any{
			"type": "response_item",
			"payload": map[string]any{
				"role":    roleLabel(msg.Role),
				"content": msg.Content,
			},
		}
		if msg.Timestamp != 0 {
			envelope["timestamp"] = msg.Timestamp
		}
		if err := enc.Encode(envelope); err != nil {
			return nil, &internal.WriteError{Path: targetPath, Provider: c.Slug(), Err: err}
		}
	}

	outcome, err := internal.AtomicWrite(targetPath, buf.Bytes(), opts.Force)
	if err != nil {
		return nil, decorateWriteErr(err, c.Slug(), targetID)
	}

	internal.LogInfo("Codex session written to %s (%d messages)", outcome.TargetPath, len(messages))
	return &WrittenSession{
		Paths:         []string{outcome.TargetPath},
		SessionID:     targetID,
		ResumeCommand: c.ResumeCommand(targetID),
		BackupPath:    outcome.BackupPath,
	}, nil
}

func (c *Codex) ResumeCommand(sessionID string) string {
	return fmt.Sprintf("codex --resume %s", sessionID)
}

// sessionMetaID pulls the session_meta payload id from a rollout file,
// checking only the leading lines.
func sessionMetaID(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for i := 0; scanner.Scan() && i < 64; i++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var envelope map[string]any
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			continue
		}
		if envelope["type"] == "session_meta" {
			if payload, ok := envelope["payload"].(map[string]any); ok {
				if id, ok := payload["id"].(string); ok {
					return id
				}
			}
		}
	}
	return ""
}
