package provider

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/iksnae/session-bridge/internal"
)

// Cursor reads and writes cursor-agent sessions under ~/.cursor/chats/.
//
// Each session is a directory named after its id holding a store.db
// SQLite database with two key/value tables: meta (session id, title,
// workspace, created/updated timestamps) and blobs (one "message:NNNNNN"
// row per message, value a JSON object with role, content and
// timestamp). Column names vary between agent versions, so both tables
// are introspected before querying.
type Cursor struct {
	home string
}

// NewCursor resolves the provider home: CURSOR_AGENT_HOME override
// first, ~/.cursor/chats otherwise.
func NewCursor(cfg *internal.Config) *Cursor {
	fallback := ""
	if home, err := os.UserHomeDir(); err == nil {
		fallback = filepath.Join(home, ".cursor", "chats")
	}
	return &Cursor{home: cfg.Home("cursor", fallback)}
}

func (c *Cursor) Name() string  { return "Cursor Agent" }
func (c *Cursor) Slug() string  { return "cursor" }
func (c *Cursor) Alias() string { return "cur" }

func (c *Cursor) Detect() DetectionResult {
	var result DetectionResult
	if _, err := exec.LookPath("cursor-agent"); err == nil {
		result.Installed = true
		result.Evidence = append(result.Evidence, "cursor-agent binary found in PATH")
	}
	if info, err := os.Stat(c.home); err == nil && info.IsDir() {
		result.Installed = true
		result.Evidence = append(result.Evidence, c.home+" exists")
	}
	return result
}

func (c *Cursor) SessionRoots() []string {
	if info, err := os.Stat(c.home); err == nil && info.IsDir() {
		return []string{c.home}
	}
	return nil
}

func (c *Cursor) OwnsSession(sessionID string) string {
	candidate := filepath.Join(c.home, sessionID, "store.db")
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		internal.LogDebug("found Cursor session at %s", candidate)
		return candidate
	}
	return ""
}

func (c *Cursor) List() ([]SessionSummary, error) {
	entries, err := os.ReadDir(c.home)
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
		path := filepath.Join(c.home, entry.Name(), "store.db")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		session, err := c.ReadSession(path)
		if err != nil {
			internal.LogDebug("skipping unreadable Cursor session %s: %v", path, err)
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
	return summaries, nil
}

func (c *Cursor) ReadSession(path string) (*internal.Session, error) {
	internal.LogDebug("reading Cursor session %s", path)

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, &internal.ReadError{Path: path, Provider: c.Slug(), Err: err}
	}
	defer db.Close()

	meta, err := queryKeyValueTable(db, "meta")
	if err != nil {
		return nil, &internal.ReadError{Path: path, Provider: c.Slug(), Err: err}
	}
	blobs, err := queryKeyValueTable(db, "blobs")
	if err != nil {
		return nil, &internal.ReadError{Path: path, Provider: c.Slug(), Err: err}
	}

	session := &internal.Session{
		ProviderSlug: c.Slug(),
		SourcePath:   path,
		Metadata:     map[string]any{"source": "cursor"},
	}

	session.SessionID = meta["sessionId"]
	if session.SessionID == "" {
		// The directory name is the session id.
		session.SessionID = filepath.Base(filepath.Dir(path))
	}
	session.Title = meta["title"]
	session.Workspace = meta["cwd"]
	if ts, ok := internal.ParseTimestamp(meta["createdAt"]); ok {
		session.StartedAt = ts
	}
	if ts, ok := internal.ParseTimestamp(meta["updatedAt"]); ok {
		session.EndedAt = ts
	}

	// Blob keys are zero-padded, so a lexical sort restores message order.
	var keys []string
	for key := range blobs {
		if strings.HasPrefix(key, "message:") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		session.Stats.Records++
		var record map[string]any
		if err := json.Unmarshal([]byte(blobs[key]), &record); err != nil {
			session.Stats.Skipped++
			continue
		}

		roleStr, _ := record["role"].(string)
		content := internal.FlattenContent(record["content"])
		if strings.TrimSpace(content) == "" {
			continue
		}
		ts, _ := internal.ParseTimestamp(record["timestamp"])
		session.ObserveTimestamp(ts)

		session.Messages = append(session.Messages, internal.Message{
			Role:      internal.NormalizeRole(roleStr),
			Content:   content,
			Timestamp: ts,
			Extra:     record,
		})
	}

	internal.ReindexMessages(session.Messages)
	if session.Title == "" {
		session.Title = firstUserTitle(session.Messages)
	}

	internal.LogDebug("Cursor session %s parsed: %d messages", session.SessionID, len(session.Messages))
	return session, nil
}

func (c *Cursor) WriteSession(session *internal.Session, opts WriteOptions) (*WrittenSession, error) {
	targetID := uuid.NewString()
	targetDir := filepath.Join(c.home, targetID)
	targetPath := filepath.Join(targetDir, "store.db")

	messages := outputMessages(session, opts, c.Name())

	// The database is rendered into a temp file under the session root,
	// not the session directory, so a failed render or a conflict leaves
	// no empty <id>/ directory behind. InstallFile creates the session
	// directory as part of the rename protocol.
	if err := os.MkdirAll(c.home, 0o755); err != nil {
		return nil, &internal.WriteError{Path: targetPath, Provider: c.Slug(), Err: err}
	}
	tempPath := filepath.Join(c.home, ".session-bridge-tmp-"+uuid.NewString())
	if err := c.renderStore(tempPath, targetID, session, messages); err != nil {
		os.Remove(tempPath)
		return nil, &internal.WriteError{Path: targetPath, Provider: c.Slug(), Err: err}
	}

	outcome, err := internal.InstallFile(tempPath, targetPath, opts.Force)
	if err != nil {
		// Only ever an empty directory at this point.
		os.Remove(targetDir)
		return nil, decorateWriteErr(err, c.Slug(), targetID)
	}

	internal.LogInfo("Cursor session written to %s (%d messages)", outcome.TargetPath, len(messages))
	return &WrittenSession{
		Paths:         []string{outcome.TargetPath},
		SessionID:     targetID,
		ResumeCommand: c.ResumeCommand(targetID),
		BackupPath:    outcome.BackupPath,
	}, nil
}

func (c *Cursor) renderStore(path, sessionID string, session *internal.Session, messages []internal.Message) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	schema := `
	CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);
	CREATE TABLE IF NOT EXISTS blobs (key TEXT PRIMARY KEY, value TEXT);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create store schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	metaStmt, err := tx.Prepare("INSERT INTO meta (key, value) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer metaStmt.Close()

	metaRows := [][2]string{{"sessionId", sessionID}}
	if session.Title != "" {
		metaRows = append(metaRows, [2]string{"title", session.Title})
	}
	if session.Workspace != "" {
		metaRows = append(metaRows, [2]string{"cwd", session.Workspace})
	}
	if session.StartedAt != 0 {
		metaRows = append(metaRows, [2]string{"createdAt", fmt.Sprintf("%d", session.StartedAt)})
	}
	if session.EndedAt != 0 {
		metaRows = append(metaRows, [2]string{"updatedAt", fmt.Sprintf("%d", session.EndedAt)})
	}
	for _, row := range metaRows {
		if _, err := metaStmt.Exec(row[0], row[1]); err != nil {
			return fmt.Errorf("failed to insert meta %q: %w", row[0], err)
		}
	}

	blobStmt, err := tx.Prepare("INSERT INTO blobs (key, value) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer blobStmt.Close()

	for i, msg := range messages {
		record := map[string]any{
			"role":    roleLabel(msg.Role),
			"content": msg.Content,
		}
		if msg.Timestamp != 0 {
			record["timestamp"] = msg.Timestamp
		}
		value, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if _, err := blobStmt.Exec(fmt.Sprintf("message:%06d", i), string(value)); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return db.Close()
}

func (c *Cursor) ResumeCommand(sessionID string) string {
	return fmt.Sprintf("cursor-agent --resume %s", sessionID)
}

// queryKeyValueTable reads a two-column key/value table, tolerating
// schema drift: a missing table yields an empty map, and column names
// are discovered through PRAGMA table_info rather than assumed.
func queryKeyValueTable(db *sql.DB, table string) (map[string]string, error) {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check for %s table: %w", table, err)
	}

	columns, err := tableColumns(db, table)
	if err != nil {
		return nil, err
	}

	var keyCol, valueCol string
	switch {
	case contains(columns, "key") && contains(columns, "value"):
		keyCol, valueCol = "key", "value"
	case contains(columns, "id") && contains(columns, "data"):
		keyCol, valueCol = "id", "data"
	case len(columns) >= 2:
		keyCol, valueCol = columns[0], columns[1]
	default:
		return nil, fmt.Errorf("%s table has unusable schema: %v", table, columns)
	}

	rows, err := db.Query(fmt.Sprintf(
		"SELECT %s, %s FROM %s WHERE %s IS NOT NULL", keyCol, valueCol, table, valueCol,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s table: %w", table, err)
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			internal.LogWarn("failed to scan %s row: %v", table, err)
			continue
		}
		entries[key] = value
	}
	return entries, rows.Err()
}

func tableColumns(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s table info: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
