package provider

import (
	"crypto/sha256"
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

// Gemini reads and writes JSON sessions under ~/.gemini/tmp/.
//
// Session files: <sha256(workspace)>/chats/session-<ts>-<uuid8>.json.
// One JSON object per file: {"sessionId", "projectHash", "startTime",
// "lastUpdated", "messages": [{"type": "user"|"gemini"|"model",
// "content", "timestamp"}]}. Assistant turns may carry either "gemini"
// or "model" as the type label.
type Gemini struct {
	home string
}

// NewGemini resolves the provider home: GEMINI_HOME override first,
// ~/.gemini otherwise.
func NewGemini(cfg *internal.Config) *Gemini {
	fallback := ""
	if home, err := os.UserHomeDir(); err == nil {
		fallback = filepath.Join(home, ".gemini")
	}
	return &Gemini{home: cfg.Home("gemini", fallback)}
}

// ProjectHash computes Gemini's project directory name: the lowercase
// hex SHA-256 of the absolute workspace path.
func ProjectHash(workspace string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(workspace)))
}

// SessionFilename builds the Gemini session file name:
// session-YYYY-MM-DDThh-mm-<uuid-prefix>.json where the prefix is the
// first 8 characters of the session id.
func SessionFilename(sessionID string, now time.Time) string {
	prefix := sessionID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("session-%s-%s.json", now.UTC().Format("2006-01-02T15-04"), prefix)
}

func (g *Gemini) Name() string  { return "Gemini CLI" }
func (g *Gemini) Slug() string  { return "gemini" }
func (g *Gemini) Alias() string { return "gmi" }

func (g *Gemini) tmpDir() string {
	if g.home == "" {
		return ""
	}
	return filepath.Join(g.home, "tmp")
}

func (g *Gemini) Detect() DetectionResult {
	var result DetectionResult
	if _, err := exec.LookPath("gemini"); err == nil {
		result.Installed = true
		result.Evidence = append(result.Evidence, "gemini binary found in PATH")
	}
	if info, err := os.Stat(g.home); err == nil && info.IsDir() {
		result.Installed = true
		result.Evidence = append(result.Evidence, g.home+" exists")
	}
	return result
}

// SessionRoots returns each hash directory's chats/ subdirectory.
func (g *Gemini) SessionRoots() []string {
	entries, err := os.ReadDir(g.tmpDir())
	if err != nil {
		return nil
	}
	var roots []string
	for _, entry := range entries {
		chats := filepath.Join(g.tmpDir(), entry.Name(), "chats")
		if info, err := os.Stat(chats); err == nil && info.IsDir() {
			roots = append(roots, chats)
		}
	}
	return roots
}

func (g *Gemini) OwnsSession(sessionID string) string {
	// Filenames carry only the first 8 characters of the session id, so
	// an exact-name check is backed by a body sessionId match.
	exactName := "session-" + sessionID + ".json"
	idPrefix := strings.ToLower(sessionID)
	if len(idPrefix) > 8 {
		idPrefix = idPrefix[:8]
	}

	for _, root := range g.SessionRoots() {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			path := filepath.Join(root, name)
			if name == exactName {
				internal.LogDebug("found Gemini session by exact filename %s", path)
				return path
			}
			if idPrefix != "" &&
				strings.HasSuffix(strings.ToLower(name), "-"+idPrefix+".json") &&
				bodySessionID(path) == sessionID {
				internal.LogDebug("found Gemini session by prefix + body match %s", path)
				return path
			}
		}
	}
	return ""
}

func (g *Gemini) List() ([]SessionSummary, error) {
	var summaries []SessionSummary
	for _, root := range g.SessionRoots() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
				return nil
			}
			session, readErr := g.ReadSession(path)
			if readErr != nil {
				internal.LogDebug("skipping unreadable Gemini session %s: %v", path, readErr)
				return nil
			}
			summaries = append(summaries, SessionSummary{
				SessionID:    session.SessionID,
				Provider:     g.Slug(),
				Title:        session.Title,
				Workspace:    session.Workspace,
				MessageCount: len(session.Messages),
				UpdatedAt:    session.EndedAt,
				Path:         path,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

func (g *Gemini) ReadSession(path string) (*internal.Session, error) {
	internal.LogDebug("reading Gemini session %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &internal.ReadError{Path: path, Provider: g.Slug(), Err: err}
	}
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, &internal.ReadError{Path: path, Provider: g.Slug(), Err: err}
	}

	session := &internal.Session{
		ProviderSlug: g.Slug(),
		SourcePath:   path,
		Metadata:     map[string]any{"source": "gemini"},
	}

	if sid, ok := root["sessionId"].(string); ok {
		session.SessionID = sid
	} else {
		// Derive from filename: session-<id>.json -> <id>.
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		session.SessionID = strings.TrimPrefix(stem, "session-")
	}
	if hash, ok := root["projectHash"].(string); ok {
		session.Metadata["project_hash"] = hash
	}
	if ts, ok := internal.ParseTimestamp(root["startTime"]); ok {
		session.StartedAt = ts
	}
	if ts, ok := internal.ParseTimestamp(root["lastUpdated"]); ok {
		session.EndedAt = ts
	}

	msgs, _ := root["messages"].([]any)
	for i, raw := range msgs {
		session.Stats.Records++
		msg, ok := raw.(map[string]any)
		if !ok {
			session.Stats.Skipped++
			continue
		}

		roleValue := msg["type"]
		if roleValue == nil {
			roleValue = msg["role"]
		}
		roleStr, _ := roleValue.(string)
		if roleStr == "" {
			roleStr = "user"
		}

		content := internal.FlattenContent(msg["content"])
		if strings.TrimSpace(content) == "" {
			internal.LogTrace("skipping empty Gemini message %d", i)
			continue
		}

		ts, _ := internal.ParseTimestamp(msg["timestamp"])
		if ts != 0 && ts > session.EndedAt {
			session.EndedAt = ts
		}

		session.Messages = append(session.Messages, internal.Message{
			Role:      internal.NormalizeRole(roleStr),
			Content:   content,
			Timestamp: ts,
			Extra:     msg,
		})
	}

	internal.ReindexMessages(session.Messages)
	session.Title = firstUserTitle(session.Messages)
	session.Workspace = workspaceFromMessages(session.Messages)

	internal.LogDebug("Gemini session %s parsed: %d messages", session.SessionID, len(session.Messages))
	return session, nil
}

func (g *Gemini) WriteSession(session *internal.Session, opts WriteOptions) (*WrittenSession, error) {
	targetID := uuid.NewString()
	now := time.Now()

	// Sessions with no workspace land under a literal "no-workspace" hash.
	workspace := session.Workspace
	if workspace == "" {
		workspace = "no-workspace"
	}
	targetPath := filepath.Join(g.tmpDir(), ProjectHash(workspace), "chats", SessionFilename(targetID, now))

	messages := outputMessages(session, opts, g.Name())

	outMessages := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		typeLabel := "user"
		switch msg.Role {
		case internal.RoleAssistant:
			typeLabel = "gemini"
		case internal.RoleUser:
			typeLabel = "user"
		default:
			typeLabel = roleLabel(msg.Role)
		}
		out := map[string]any{
			"type":    typeLabel,
			"content": msg.Content,
		}
		if msg.Timestamp != 0 {
			out["timestamp"] = time.UnixMilli(msg.Timestamp).UTC().Format("2006-01-02T15:04:05.000Z")
		}
		outMessages = append(outMessages, out)
	}

	doc := map[string]any{
		"sessionId":   targetID,
		"projectHash": ProjectHash(workspace),
		"messages":    outMessages,
	}
	if session.StartedAt != 0 {
		doc["startTime"] = internal.FormatTimestamp(session.StartedAt)
	}
	if session.EndedAt != 0 {
		doc["lastUpdated"] = internal.FormatTimestamp(session.EndedAt)
	}

	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, &internal.WriteError{Path: targetPath, Provider: g.Slug(), Err: err}
	}

	outcome, err := internal.AtomicWrite(targetPath, content, opts.Force)
	if err != nil {
		return nil, decorateWriteErr(err, g.Slug(), targetID)
	}

	internal.LogInfo("Gemini session written to %s (%d messages)", outcome.TargetPath, len(messages))
	return &WrittenSession{
		Paths:         []string{outcome.TargetPath},
		SessionID:     targetID,
		ResumeCommand: g.ResumeCommand(targetID),
		BackupPath:    outcome.BackupPath,
	}, nil
}

// ResumeCommand for Gemini has no session flag; the CLI picks up the
// latest chat when launched in the workspace directory.
func (g *Gemini) ResumeCommand(string) string {
	return "gemini"
}

// workspaceFromMessages scans leading messages for absolute path
// references, since Gemini session files do not record a workspace.
func workspaceFromMessages(messages []internal.Message) string {
	limit := len(messages)
	if limit > 50 {
		limit = 50
	}
	for _, msg := range messages[:limit] {
		for _, prefix := range []string{"/home/", "/Users/", "/root/", "/data/projects/"} {
			idx := strings.Index(msg.Content, prefix)
			if idx < 0 {
				continue
			}
			rest := msg.Content[idx:]
			end := strings.IndexFunc(rest, func(r rune) bool {
				return r == ' ' || r == '\n' || r == '\t' || r == '"' || r == '\'' || r == ')'
			})
			if end < 0 {
				end = len(rest)
			}
			path := rest[:end]
			if len(path) > len(prefix)+3 {
				return path
			}
		}
	}
	return ""
}

// bodySessionID reads just the sessionId field from a session file.
func bodySessionID(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var root struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &root); err != nil {
		return ""
	}
	return root.SessionID
}
