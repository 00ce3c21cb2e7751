package provider

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iksnae/session-bridge/internal"
)

// ClaudeCode reads and writes JSONL sessions under ~/.claude/projects/.
//
// Session files: <project-key>/<session-id>.jsonl. Each line is a JSON
// object with a "type" field; "user" and "assistant" entries are
// conversational, everything else (file-history-snapshot, summary) is
// skipped. Conversational entries carry message.role, message.content
// (string or content-block array), message.model, and top-level cwd,
// sessionId, gitBranch, version, and timestamp fields.
type ClaudeCode struct {
	home string
}

// NewClaudeCode resolves the provider home: CLAUDE_HOME override first,
// ~/.claude otherwise.
func NewClaudeCode(cfg *internal.Config) *ClaudeCode {
	fallback := ""
	if home, err := os.UserHomeDir(); err == nil {
		fallback = filepath.Join(home, ".claude")
	}
	return &ClaudeCode{home: cfg.Home("claude-code", fallback)}
}

// ProjectDirKey derives Claude Code's project directory name from a
// workspace path: every non-alphanumeric character becomes '-'.
//
// Example: /data/projects/my_app.md -> -data-projects-my-app-md
func ProjectDirKey(workspace string) string {
	var b strings.Builder
	for _, ch := range workspace {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

func (c *ClaudeCode) Name() string  { return "Claude Code" }
func (c *ClaudeCode) Slug() string  { return "claude-code" }
func (c *ClaudeCode) Alias() string { return "cc" }

func (c *ClaudeCode) projectsDir() string {
	if c.home == "" {
		return ""
	}
	return filepath.Join(c.home, "projects")
}

func (c *ClaudeCode) Detect() DetectionResult {
	var result DetectionResult
	if _, err := exec.LookPath("claude"); err == nil {
		result.Installed = true
		result.Evidence = append(result.Evidence, "claude binary found in PATH")
	}
	if info, err := os.Stat(c.home); err == nil && info.IsDir() {
		result.Installed = true
		result.Evidence = append(result.Evidence, c.home+" exists")
	}
	return result
}

func (c *ClaudeCode) SessionRoots() []string {
	dir := c.projectsDir()
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return []string{dir}
	}
	return nil
}

func (c *ClaudeCode) OwnsSession(sessionID string) string {
	projectsDir := c.projectsDir()
	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		return ""
	}
	target := sessionID + ".jsonl"
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(projectsDir, entry.Name(), target)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			internal.LogDebug("found Claude Code session at %s", candidate)
			return candidate
		}
	}
	return ""
}

func (c *ClaudeCode) List() ([]SessionSummary, error) {
	projectsDir := c.projectsDir()
	dirs, err := os.ReadDir(projectsDir)
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
		files, err := os.ReadDir(filepath.Join(projectsDir, dir.Name()))
		if err != nil {
			continue
		}
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".jsonl") {
				continue
			}
			path := filepath.Join(projectsDir, dir.Name(), file.Name())
			session, err := c.ReadSession(path)
			if err != nil {
				internal.LogDebug("skipping unreadable Claude Code session %s: %v", path, err)
				continue
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
		}
	}
	return summaries, nil
}

func (c *ClaudeCode) ReadSession(path string) (*internal.Session, error) {
	internal.LogDebug("reading Claude Code session %s", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, &internal.ReadError{Path: path, Provider: c.Slug(), Err: err}
	}
	defer f.Close()

	session := &internal.Session{
		ProviderSlug: c.Slug(),
		SourcePath:   path,
		Metadata:     map[string]any{"source": "claude_code"},
	}
	modelCounts := make(map[string]int)

	scanner := bufio.NewScanner(f)
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

		// Session-level metadata comes from the first entry that has it.
		if session.SessionID == "" {
			if sid, ok := entry["sessionId"].(string); ok {
				session.SessionID = sid
			}
		}
		if session.Workspace == "" {
			if cwd, ok := entry["cwd"].(string); ok {
				session.Workspace = cwd
			}
		}
		if _, seen := session.Metadata["gitBranch"]; !seen {
			if gb, ok := entry["gitBranch"].(string); ok && gb != "HEAD" {
				session.Metadata["gitBranch"] = gb
			}
		}
		if _, seen := session.Metadata["claudeVersion"]; !seen {
			if v, ok := entry["version"].(string); ok {
				session.Metadata["claudeVersion"] = v
			}
		}

		entryType, _ := entry["type"].(string)
		if entryType != "user" && entryType != "assistant" {
			internal.LogTrace("line %d: skipping non-conversational entry %q", lineNum, entryType)
			continue
		}

		message, _ := entry["message"].(map[string]any)

		roleStr := entryType
		if r, ok := message["role"].(string); ok {
			roleStr = r
		}
		role := internal.NormalizeRole(roleStr)

		contentValue := message["content"]
		if contentValue == nil {
			contentValue = entry["content"]
		}
		content := internal.FlattenContent(contentValue)
		if strings.TrimSpace(content) == "" {
			internal.LogTrace("line %d: skipping empty content message", lineNum)
			continue
		}

		tsValue := entry["timestamp"]
		if tsValue == nil {
			tsValue = message["timestamp"]
		}
		timestamp, _ := internal.ParseTimestamp(tsValue)
		session.ObserveTimestamp(timestamp)

		author := ""
		if model, ok := message["model"].(string); ok {
			author = model
			modelCounts[model]++
		}

		session.Messages = append(session.Messages, internal.Message{
			Role:        role,
			Content:     content,
			Timestamp:   timestamp,
			Author:      author,
			ToolCalls:   extractToolCalls(contentValue),
			ToolResults: extractToolResults(contentValue),
			Extra:       entry,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &internal.ReadError{Path: path, Provider: c.Slug(), Err: err}
	}

	internal.ReindexMessages(session.Messages)

	if session.SessionID == "" {
		session.SessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	session.Title = firstUserTitle(session.Messages)
	session.ModelName = mostCommon(modelCounts)

	internal.LogDebug("Claude Code session %s parsed: %d messages, %d skipped",
		session.SessionID, len(session.Messages), session.Stats.Skipped)
	return session, nil
}

func (c *ClaudeCode) WriteSession(session *internal.Session, opts WriteOptions) (*WrittenSession, error) {
	targetID := uuid.NewString()

	key := ProjectDirKey(session.Workspace)
	if key == "" {
		key = "-"
	}
	targetPath := filepath.Join(c.projectsDir(), key, targetID+".jsonl")

	messages := outputMessages(session, opts, c.Name())
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, msg := range messages {
		entryType := "user"
		if msg.Role == internal.RoleAssistant {
			entryType = "assistant"
		}
		inner := map[string]any{
			"role":    roleLabel(msg.Role),
			"content": msg.Content,
		}
		if msg.Author != "" && msg.Role == internal.RoleAssistant {
			inner["model"] = msg.Author
		}
		entry := map[string]any{
			"type":      entryType,
			"sessionId": targetID,
			"uuid":      uuid.NewString(),
			"message":   inner,
		}
		if session.Workspace != "" {
			entry["cwd"] = session.Workspace
		}
		if msg.Timestamp != 0 {
			entry["timestamp"] = time.UnixMilli(msg.Timestamp).UTC().Format("2006-01-02T15:04:05.000Z")
		}
		if err := enc.Encode(entry); err != nil {
			return nil, &internal.WriteError{Path: targetPath, Provider: c.Slug(), Err: err}
		}
	}

	outcome, err := internal.AtomicWrite(targetPath, buf.Bytes(), opts.Force)
	if err != nil {
		return nil, decorateWriteErr(err, c.Slug(), targetID)
	}

	internal.LogInfo("Claude Code session written to %s (%d messages)", outcome.TargetPath, len(messages))
	return &WrittenSession{
		Paths:         []string{outcome.TargetPath},
		SessionID:     targetID,
		ResumeCommand: c.ResumeCommand(targetID),
		BackupPath:    outcome.BackupPath,
	}, nil
}

func (c *ClaudeCode) ResumeCommand(sessionID string) string {
	return fmt.Sprintf("claude --resume %s", sessionID)
}

// decorateWriteErr fills the provider and session id into errors coming
// back from the atomic write manager, which does not know them.
func decorateWriteErr(err error, slug, sessionID string) error {
	switch e := err.(type) {
	case *internal.WriteError:
		e.Provider = slug
		return e
	case *internal.ConflictError:
		e.SessionID = sessionID
		return e
	default:
		return err
	}
}

// firstUserTitle derives the session title from the first user message.
func firstUserTitle(messages []internal.Message) string {
	for _, m := range messages {
		if m.Role == internal.RoleUser {
			return internal.TruncateTitle(m.Content, 100)
		}
	}
	return ""
}

// mostCommon returns the key with the highest count, "" for an empty map.
func mostCommon(counts map[string]int) string {
	best := ""
	bestCount := 0
	for name, count := range counts {
		if count > bestCount || (count == bestCount && name < best) {
			best, bestCount = name, count
		}
	}
	return best
}

// extractToolCalls pulls tool_use blocks out of a content-block array.
func extractToolCalls(content any) []internal.ToolCall {
	blocks, ok := content.([]any)
	if !ok {
		return nil
	}
	var calls []internal.ToolCall
	for _, block := range blocks {
		obj, ok := block.(map[string]any)
		if !ok || obj["type"] != "tool_use" {
			continue
		}
		call := internal.ToolCall{Arguments: obj["input"]}
		if id, ok := obj["id"].(string); ok {
			call.ID = id
		}
		if name, ok := obj["name"].(string); ok {
			call.Name = name
		} else {
			call.Name = "unknown"
		}
		calls = append(calls, call)
	}
	return calls
}

// extractToolResults pulls tool_result blocks out of a content-block array.
func extractToolResults(content any) []internal.ToolResult {
	blocks, ok := content.([]any)
	if !ok {
		return nil
	}
	var results []internal.ToolResult
	for _, block := range blocks {
		obj, ok := block.(map[string]any)
		if !ok || obj["type"] != "tool_result" {
			continue
		}
		result := internal.ToolResult{}
		if id, ok := obj["tool_use_id"].(string); ok {
			result.CallID = id
		}
		if text, ok := obj["content"].(string); ok {
			result.Content = text
		} else if out, ok := obj["output"].(string); ok {
			result.Content = out
		}
		if isErr, ok := obj["is_error"].(bool); ok {
			result.IsError = isErr
		}
		results = append(results, result)
	}
	return results
}
