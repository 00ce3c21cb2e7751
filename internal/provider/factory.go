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

// Factory reads and writes JSONL sessions under ~/.factory/sessions/.
//
// Session files: <workspace-slug>/<session-id>.jsonl with typed entries:
// a "session_start" header carrying id, title, owner and cwd, then one
// "message" entry per turn with a timestamp and a nested
// message{role, content, model} object. Other entry types (todo_state,
// tool_result) are skipped. A <session-id>.settings.json sidecar next to
// the session file holds the model name. The parent directory name
// encodes the workspace path: -Users-alice-Dev -> /Users/alice/Dev.
type Factory struct {
	home string
}

// NewFactory resolves the provider home: FACTORY_HOME override first,
// ~/.factory/sessions otherwise.
func NewFactory(cfg *internal.Config) *Factory {
	fallback := ""
	if home, err := os.UserHomeDir(); err == nil {
		fallback = filepath.Join(home, ".factory", "sessions")
	}
	return &Factory{home: cfg.Home("factory", fallback)}
}

// DecodeWorkspaceSlug restores a filesystem path from a Factory workspace
// directory name. Names without the leading '-' are not slugs.
func DecodeWorkspaceSlug(slug string) string {
	if !strings.HasPrefix(slug, "-") {
		return ""
	}
	return strings.ReplaceAll(slug, "-", "/")
}

// EncodeWorkspaceSlug derives the workspace directory name from a path.
func EncodeWorkspaceSlug(workspace string) string {
	return strings.ReplaceAll(workspace, "/", "-")
}

func (f *Factory) Name() string  { return "Factory" }
func (f *Factory) Slug() string  { return "factory" }
func (f *Factory) Alias() string { return "fac" }

func (f *Factory) Detect() DetectionResult {
	if info, err := os.Stat(f.home); err == nil && info.IsDir() {
		return DetectionResult{
			Installed: true,
			Evidence:  []string{"sessions directory found: " + f.home},
		}
	}
	return DetectionResult{}
}

func (f *Factory) SessionRoots() []string {
	if info, err := os.Stat(f.home); err == nil && info.IsDir() {
		return []string{f.home}
	}
	return nil
}

func (f *Factory) OwnsSession(sessionID string) string {
	entries, err := os.ReadDir(f.home)
	if err != nil {
		return ""
	}
	target := sessionID + ".jsonl"
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(f.home, entry.Name(), target)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			internal.LogDebug("found Factory session at %s", candidate)
			return candidate
		}
	}
	return ""
}

func (f *Factory) List() ([]SessionSummary, error) {
	dirs, err := os.ReadDir(f.home)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var summaries []SessionSummary
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(f.home, dir.Name()))
		if err != nil {
			continue
		}
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".jsonl") {
				continue
			}
			path := filepath.Join(f.home, dir.Name(), file.Name())
			session, err := f.ReadSession(path)
			if err != nil {
				internal.LogDebug("skipping unreadable Factory session %s: %v", path, err)
				continue
			}
			summaries = append(summaries, SessionSummary{
				SessionID:    session.SessionID,
				Provider:     f.Slug(),
				Title:        session.Title,
				Workspace:    session.Workspace,
				MessageCount: len(session.Messages),
				UpdatedAt:    session.EndedAt,
				Path:         path,
			})
		}
	}
	return summaries, nil
}

func (f *Factory) ReadSession(path string) (*internal.Session, error) {
	internal.LogDebug("reading Factory session %s", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, &internal.ReadError{Path: path, Provider: f.Slug(), Err: err}
	}
	defer file.Close()

	session := &internal.Session{
		ProviderSlug: f.Slug(),
		SourcePath:   path,
		Metadata:     map[string]any{"source": "factory"},
	}
	headerTitle := ""

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		session.Stats.Records++

		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			internal.LogWarn("skipping malformed JSON on line %d of %s: %v", lineNum, path, err)
			session.Stats.Skipped++
			continue
		}

		entryType, _ := entry["type"].(string)
		switch entryType {
		case "session_start":
			if sid, ok := entry["id"].(string); ok {
				session.SessionID = sid
			}
			if title, ok := entry["title"].(string); ok {
				headerTitle = title
			}
			if owner, ok := entry["owner"].(string); ok {
				session.Metadata["owner"] = owner
			}
			if cwd, ok := entry["cwd"].(string); ok {
				session.Workspace = cwd
			}
		case "message":
			message, _ := entry["message"].(map[string]any)

			roleStr, _ := message["role"].(string)
			content := internal.FlattenContent(message["content"])
			if strings.TrimSpace(content) == "" {
				internal.LogTrace("line %d: skipping empty content message", lineNum)
				continue
			}

			ts, _ := internal.ParseTimestamp(entry["timestamp"])
			session.ObserveTimestamp(ts)

			author, _ := message["model"].(string)

			session.Messages = append(session.Messages, internal.Message{
				Role:      internal.NormalizeRole(roleStr),
				Content:   content,
				Timestamp: ts,
				Author:    author,
				Extra:     entry,
			})
		default:
			internal.LogTrace("line %d: skipping entry type %q", lineNum, entryType)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &internal.ReadError{Path: path, Provider: f.Slug(), Err: err}
	}

	internal.ReindexMessages(session.Messages)

	if session.SessionID == "" {
		session.SessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if session.Workspace == "" {
		session.Workspace = DecodeWorkspaceSlug(filepath.Base(filepath.Dir(path)))
	}
	session.Title = headerTitle
	if session.Title == "" {
		session.Title = firstUserTitle(session.Messages)
	}
	session.ModelName = f.settingsModel(path)
	if session.ModelName != "" {
		session.Metadata["model"] = session.ModelName
	}

	internal.LogDebug("Factory session %s parsed: %d messages, %d skipped",
		session.SessionID, len(session.Messages), session.Stats.Skipped)
	return session, nil
}

// settingsModel reads the model name from the session's settings sidecar,
// "" when the sidecar is missing or unreadable.
func (f *Factory) settingsModel(sessionPath string) string {
	data, err := os.ReadFile(settingsPath(sessionPath))
	if err != nil {
		return ""
	}
	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return ""
	}
	model, _ := settings["model"].(string)
	return model
}

// settingsPath maps <dir>/<id>.jsonl to <dir>/<id>.settings.json.
func settingsPath(sessionPath string) string {
	return strings.TrimSuffix(sessionPath, ".jsonl") + ".settings.json"
}

func (f *Factory) WriteSession(session *internal.Session, opts WriteOptions) (*WrittenSession, error) {
	targetID := uuid.NewString()

	slug := EncodeWorkspaceSlug(session.Workspace)
	if slug == "" {
		slug = "-tmp"
	}
	targetPath := filepath.Join(f.home, slug, targetID+".jsonl")

	messages := outputMessages(session, opts, f.Name())
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	header := map[string]any{
		"type": "session_start",
		"id":   targetID,
	}
	if session.Title != "" {
		header["title"] = session.Title
	}
	if session.Workspace != "" {
		header["cwd"] = session.Workspace
	}
	if err := enc.Encode(header); err != nil {
		return nil, &internal.WriteError{Path: targetPath, Provider: f.Slug(), Err: err}
	}

	for _, msg := range messages {
		inner := map[string]any{
			"role":    roleLabel(msg.Role),
			"content": msg.Content,
		}
		if msg.Author != "" {
			inner["model"] = msg.Author
		}
		entry := map[string]any{
			"type":    "message",
			"message": inner,
		}
		if msg.Timestamp != 0 {
			entry["timestamp"] = time.UnixMilli(msg.Timestamp).UTC().Format(time.RFC3339Nano)
		}
		if err := enc.Encode(entry); err != nil {
			return nil, &internal.WriteError{Path: targetPath, Provider: f.Slug(), Err: err}
		}
	}

	outcome, err := internal.AtomicWrite(targetPath, buf.Bytes(), opts.Force)
	if err != nil {
		return nil, decorateWriteErr(err, f.Slug(), targetID)
	}

	settings := map[string]any{}
	if session.ModelName != "" {
		settings["model"] = session.ModelName
	}
	settingsData, err := json.Marshal(settings)
	if err != nil {
		os.Remove(outcome.TargetPath)
		return nil, &internal.WriteError{Path: targetPath, Provider: f.Slug(), Err: err}
	}
	sidecar, err := internal.AtomicWrite(settingsPath(outcome.TargetPath), settingsData, opts.Force)
	if err != nil {
		// A write produces both files or neither.
		os.Remove(outcome.TargetPath)
		return nil, decorateWriteErr(err, f.Slug(), targetID)
	}

	internal.LogInfo("Factory session written to %s (%d messages)", outcome.TargetPath, len(messages))
	return &WrittenSession{
		Paths:         []string{outcome.TargetPath, sidecar.TargetPath},
		SessionID:     targetID,
		ResumeCommand: f.ResumeCommand(targetID),
		BackupPath:    outcome.BackupPath,
	}, nil
}

func (f *Factory) ResumeCommand(sessionID string) string {
	return fmt.Sprintf("factory --resume %s", sessionID)
}
