package provider

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/iksnae/session-bridge/internal"
)

// errNoParser is returned when an explicit path is outside every provider
// root and no reader produces a usable parse.
var errNoParser = errors.New("path is not under any provider root and could not be parsed as a session by any provider")

// Registry is the immutable, process-wide table of supported providers.
// It is built once at startup and never mutated during a run.
type Registry struct {
	providers []Provider
}

// NewRegistry builds the registry with every supported provider, in a
// fixed order that also serves as the deterministic merge order for
// discovery results.
func NewRegistry(cfg *internal.Config) *Registry {
	return &Registry{providers: []Provider{
		NewClaudeCode(cfg),
		NewCodex(cfg),
		NewGemini(cfg),
		NewVibe(cfg),
		NewCursor(cfg),
		NewFactory(cfg),
	}}
}

// Providers returns all registered providers in registration order.
func (r *Registry) Providers() []Provider {
	return r.providers
}

// BySlug finds a provider by its slug, or nil.
func (r *Registry) BySlug(slug string) Provider {
	for _, p := range r.providers {
		if p.Slug() == slug {
			return p
		}
	}
	return nil
}

// ByAlias finds a provider by CLI alias or slug. Fails with
// UnknownProviderError naming the known aliases.
func (r *Registry) ByAlias(alias string) (Provider, error) {
	for _, p := range r.providers {
		if p.Alias() == alias || p.Slug() == alias {
			return p, nil
		}
	}
	return nil, &internal.UnknownProviderError{Alias: alias, KnownAliases: r.KnownAliases()}
}

// KnownAliases lists every provider's alias with its name, for error
// messages.
func (r *Registry) KnownAliases() []string {
	aliases := make([]string, len(r.providers))
	for i, p := range r.providers {
		aliases[i] = p.Alias() + " (" + p.Name() + ")"
	}
	return aliases
}

// ResolvedSession is a successfully located session: its owning provider
// and native file path.
type ResolvedSession struct {
	Provider Provider
	Path     string
}

// SourceHint constrains session resolution, parsed from --source.
type SourceHint struct {
	// Alias is a provider alias or slug; empty when Path is set.
	Alias string
	// Path is a direct session file path; empty when Alias is set.
	Path string
}

// ParseSourceHint classifies a --source value. Values containing a path
// separator or starting with ./, ~ or / are paths; everything else is a
// provider alias. A leading ~/ expands to the user's home directory.
func ParseSourceHint(value string) SourceHint {
	if strings.ContainsRune(value, os.PathSeparator) ||
		strings.HasPrefix(value, ".") || strings.HasPrefix(value, "~") || strings.HasPrefix(value, "/") {
		if rest, ok := strings.CutPrefix(value, "~/"); ok {
			if home, err := os.UserHomeDir(); err == nil {
				return SourceHint{Path: filepath.Join(home, rest)}
			}
		}
		return SourceHint{Path: value}
	}
	return SourceHint{Alias: value}
}

// ResolveSession locates the provider and file for a session id.
//
//  1. A path hint bypasses discovery entirely.
//  2. An alias hint narrows the search to one provider.
//  3. Otherwise every installed provider is scanned concurrently; the
//     merged match set is deterministic for a fixed on-disk state.
//
// Exactly one match resolves; zero fails with NotFound; more than one
// fails with Ambiguous, deliberately refusing to guess.
func (r *Registry) ResolveSession(sessionID string, hint *SourceHint) (*ResolvedSession, error) {
	switch {
	case hint != nil && hint.Path != "":
		return r.resolveFromPath(sessionID, hint.Path)
	case hint != nil && hint.Alias != "":
		return r.resolveWithAlias(sessionID, hint.Alias)
	default:
		return r.resolveAuto(sessionID)
	}
}

// resolveFromPath uses an explicit file directly, inferring the owning
// provider from session roots, then from the file signature, then by
// probing every reader and keeping the most plausible parse.
func (r *Registry) resolveFromPath(sessionID, path string) (*ResolvedSession, error) {
	internal.LogDebug("resolving session from explicit path %s", path)

	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return nil, &internal.NotFoundError{SessionID: sessionID, ProvidersChecked: []string{"(direct path)"}}
	}

	for _, p := range r.providers {
		for _, root := range p.SessionRoots() {
			if strings.HasPrefix(path, root+string(os.PathSeparator)) || path == root {
				internal.LogDebug("path %s is under %s root", path, p.Slug())
				return &ResolvedSession{Provider: p, Path: path}, nil
			}
		}
	}

	// The file exists but lives outside every provider root; this
	// happens when session files are moved or copied for sharing.
	if p := r.inferProviderForPath(path); p != nil {
		internal.LogDebug("inferred provider %s for %s from file signature", p.Slug(), path)
		return &ResolvedSession{Provider: p, Path: path}, nil
	}

	var best Provider
	var bestLen int
	var bestPlausible bool
	for _, p := range r.providers {
		session, err := p.ReadSession(path)
		if err != nil || len(session.Messages) == 0 {
			continue
		}
		plausible := session.HasRole(internal.RoleUser) && session.HasRole(internal.RoleAssistant)
		if best == nil ||
			(plausible && !bestPlausible) ||
			(plausible == bestPlausible && len(session.Messages) > bestLen) {
			best, bestLen, bestPlausible = p, len(session.Messages), plausible
		}
	}
	if best != nil {
		if !bestPlausible {
			internal.LogWarn("no provider root matched %s; selected best-effort parser %s (session may not be resumable)", path, best.Slug())
		}
		return &ResolvedSession{Provider: best, Path: path}, nil
	}

	return nil, &internal.ReadError{
		Path:     path,
		Provider: "(unknown)",
		Err:      errNoParser,
	}
}

func (r *Registry) resolveWithAlias(sessionID, alias string) (*ResolvedSession, error) {
	provider, err := r.ByAlias(alias)
	if err != nil {
		return nil, err
	}
	if path := provider.OwnsSession(sessionID); path != "" {
		internal.LogDebug("resolved session %s via alias hint: %s", sessionID, path)
		return &ResolvedSession{Provider: provider, Path: path}, nil
	}
	return nil, &internal.NotFoundError{SessionID: sessionID, ProvidersChecked: []string{provider.Name()}}
}

// resolveAuto scans all installed providers in parallel. Each scan only
// reads filesystem state and fills its own slot, so the merged match set
// is independent of scan completion order.
func (r *Registry) resolveAuto(sessionID string) (*ResolvedSession, error) {
	internal.LogDebug("auto-resolving session %s across all providers", sessionID)

	type slot struct {
		checked bool
		path    string
	}
	slots := make([]slot, len(r.providers))

	var wg sync.WaitGroup
	for i, p := range r.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			if !p.Detect().Installed {
				return
			}
			slots[i] = slot{checked: true, path: p.OwnsSession(sessionID)}
		}(i, p)
	}
	wg.Wait()

	var checked []string
	var matches []*ResolvedSession
	for i, s := range slots {
		if !s.checked {
			continue
		}
		checked = append(checked, r.providers[i].Name())
		if s.path != "" {
			matches = append(matches, &ResolvedSession{Provider: r.providers[i], Path: s.path})
		}
	}

	switch len(matches) {
	case 0:
		return nil, &internal.NotFoundError{SessionID: sessionID, ProvidersChecked: checked}
	case 1:
		internal.LogDebug("unique match for %s in %s", sessionID, matches[0].Provider.Slug())
		return matches[0], nil
	default:
		candidates := make([]internal.Candidate, len(matches))
		for i, m := range matches {
			candidates[i] = internal.Candidate{Provider: m.Provider.Slug(), Path: m.Path}
		}
		return nil, &internal.AmbiguousError{SessionID: sessionID, Candidates: candidates}
	}
}

// ListSessions enumerates discoverable sessions across providers,
// optionally filtered to one slug. Scans run concurrently; results merge
// in a deterministic order (most recent first, then id) regardless of
// which scan finished first.
func (r *Registry) ListSessions(slugFilter string) ([]SessionSummary, error) {
	results := make([][]SessionSummary, len(r.providers))

	var wg sync.WaitGroup
	for i, p := range r.providers {
		if slugFilter != "" && p.Slug() != slugFilter {
			continue
		}
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			if !p.Detect().Installed {
				return
			}
			summaries, err := p.List()
			if err != nil {
				internal.LogWarn("listing %s sessions failed: %v", p.Slug(), err)
				return
			}
			results[i] = summaries
		}(i, p)
	}
	wg.Wait()

	var merged []SessionSummary
	for _, rs := range results {
		merged = append(merged, rs...)
	}
	sort.SliceStable(merged, func(a, b int) bool {
		if merged[a].UpdatedAt != merged[b].UpdatedAt {
			return merged[a].UpdatedAt > merged[b].UpdatedAt
		}
		return merged[a].SessionID < merged[b].SessionID
	})
	return merged, nil
}

// inferProviderForPath guesses the owning provider of a stray session
// file from its extension and first-record shape.
func (r *Registry) inferProviderForPath(path string) Provider {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".vscdb":
		return r.BySlug("cursor")
	case ".jsonl":
		return r.inferFromJSONL(path)
	case ".json":
		return r.inferFromJSON(path)
	}
	return nil
}

func (r *Registry) inferFromJSONL(path string) Provider {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil
		}
		if record["type"] == "session_meta" {
			return r.BySlug("codex")
		}
		if record["type"] == "session_start" {
			return r.BySlug("factory")
		}
		if _, hasSID := record["sessionId"]; hasSID {
			if _, hasCwd := record["cwd"]; hasCwd {
				return r.BySlug("claude-code")
			}
		}
		// Bare role/content lines with no envelope are vibe's shape.
		_, hasRole := record["role"]
		_, hasContent := record["content"]
		_, hasType := record["type"]
		if hasRole && hasContent && !hasType {
			return r.BySlug("vibe")
		}
		break
	}
	return nil
}

func (r *Registry) inferFromJSON(path string) Provider {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil
	}
	if _, hasSID := root["sessionId"]; hasSID {
		if _, hasMsgs := root["messages"]; hasMsgs {
			return r.BySlug("gemini")
		}
	}
	if _, hasSession := root["session"]; hasSession {
		return r.BySlug("codex")
	}
	return nil
}
