package internal

import (
	"fmt"
	"strings"
)

// TypedError is implemented by every error the pipeline surfaces to the
// CLI. ErrorType returns the stable string used in machine-readable
// output; it never changes once released.
type TypedError interface {
	error
	ErrorType() string
}

// NotFoundError means the session id did not match in any searched provider.
type NotFoundError struct {
	SessionID        string
	ProvidersChecked []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q not found (checked: %s); run 'session-bridge list' to see all sessions",
		e.SessionID, strings.Join(e.ProvidersChecked, ", "))
}

func (e *NotFoundError) ErrorType() string { return "SessionNotFound" }

// Candidate is one match recorded when discovery is ambiguous.
type Candidate struct {
	Provider string `json:"provider"`
	Path     string `json:"path"`
}

// AmbiguousError means the session id matched in more than one provider.
// The caller must disambiguate with an explicit --source hint.
type AmbiguousError struct {
	SessionID  string
	Candidates []Candidate
}

func (e *AmbiguousError) Error() string {
	providers := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		providers[i] = c.Provider
	}
	return fmt.Sprintf("session %q found in multiple providers: %s; use --source <alias> to choose",
		e.SessionID, strings.Join(providers, ", "))
}

func (e *AmbiguousError) ErrorType() string { return "AmbiguousSessionId" }

// UnknownProviderError means a provider alias was not in the registry.
type UnknownProviderError struct {
	Alias        string
	KnownAliases []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider alias %q; known aliases: %s",
		e.Alias, strings.Join(e.KnownAliases, ", "))
}

func (e *UnknownProviderError) ErrorType() string { return "UnknownProviderAlias" }

// ReadError means a session file could not be parsed in its native format.
type ReadError struct {
	Path     string
	Provider string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s session at %s: %v", e.Provider, e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) ErrorType() string { return "SessionReadError" }

// WriteError means a converted session could not be written to disk.
type WriteError struct {
	Path     string
	Provider string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s session to %s: %v", e.Provider, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) ErrorType() string { return "SessionWriteError" }

// ConflictError means the target path already exists and --force was not
// supplied. The existing file is left untouched.
type ConflictError struct {
	SessionID    string
	ExistingPath string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session already exists at %s; use --force to overwrite (creates .bak backup)", e.ExistingPath)
}

func (e *ConflictError) ErrorType() string { return "SessionConflict" }

// ValidationFailedError means the canonical session failed a hard-stop
// validation check. Warnings and info findings ride along for reporting.
type ValidationFailedError struct {
	Errors   []string
	Warnings []string
	Info     []string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("session validation failed: %s", strings.Join(e.Errors, "; "))
}

func (e *ValidationFailedError) ErrorType() string { return "ValidationError" }

// VerifyError means the written files could not be read back at all.
// This indicates a writer defect, not a transient condition.
type VerifyError struct {
	Provider     string
	WrittenPaths []string
	Detail       string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("written file(s) could not be read back (%s): %s", e.Provider, e.Detail)
}

func (e *VerifyError) ErrorType() string { return "VerifyFailed" }
