// Package pipeline sequences one session conversion: discovery, read,
// validation, write, and verification, assembling the final report.
package pipeline

import (
	"github.com/iksnae/session-bridge/internal"
	"github.com/iksnae/session-bridge/internal/provider"
)

// Options are the CLI flags threaded through a conversion.
type Options struct {
	DryRun bool
	Force  bool
	Enrich bool
	// Verbose surfaces informational findings (tool count mismatches,
	// dropped metadata) that are suppressed by default.
	Verbose bool
	// SourceHint is the raw --source value: a provider alias or a direct
	// session file path. Empty means auto-discovery.
	SourceHint string
}

// Result is the outcome of a successful (or dry-run) conversion.
type Result struct {
	SourceProvider  string
	TargetProvider  string
	Session         *internal.Session
	Written         *provider.WrittenSession
	DryRun          bool
	TargetSessionID string
	ResumeCommand   string
	Warnings        []string
}

// Report is the machine-readable conversion report.
type Report struct {
	OK              bool     `json:"ok"`
	DryRun          bool     `json:"dry_run"`
	SourceProvider  string   `json:"source_provider"`
	TargetProvider  string   `json:"target_provider"`
	SourceSessionID string   `json:"source_session_id"`
	TargetSessionID string   `json:"target_session_id"`
	WrittenPaths    []string `json:"written_paths"`
	ResumeCommand   string   `json:"resume_command"`
	Warnings        []string `json:"warnings"`
}

// ErrorReport is the machine-readable failure payload.
type ErrorReport struct {
	OK        bool   `json:"ok"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// NewErrorReport classifies an error into the stable error_type
// vocabulary. Errors outside the taxonomy fall back to "InternalError".
func NewErrorReport(err error) ErrorReport {
	errorType := "InternalError"
	if typed, ok := err.(internal.TypedError); ok {
		errorType = typed.ErrorType()
	}
	return ErrorReport{OK: false, ErrorType: errorType, Message: err.Error()}
}

// Report renders the result in the machine-readable shape.
func (r *Result) Report() Report {
	report := Report{
		OK:              true,
		DryRun:          r.DryRun,
		SourceProvider:  r.SourceProvider,
		TargetProvider:  r.TargetProvider,
		SourceSessionID: r.Session.SessionID,
		TargetSessionID: r.TargetSessionID,
		ResumeCommand:   r.ResumeCommand,
		Warnings:        r.Warnings,
	}
	if r.Warnings == nil {
		report.Warnings = []string{}
	}
	if r.Written != nil {
		report.WrittenPaths = r.Written.Paths
	}
	return report
}

// Pipeline runs conversions against a fixed provider registry.
type Pipeline struct {
	Registry *provider.Registry
}

func New(registry *provider.Registry) *Pipeline {
	return &Pipeline{Registry: registry}
}

// Convert runs one source -> target conversion.
//
// States: discovering -> reading -> validating -> writing -> verifying.
// Discovery, read, validation hard stops, and write failures are
// terminal. Verification mismatches are appended as warnings and never
// roll back the committed write; only an unreadable output fails.
func (p *Pipeline) Convert(targetAlias, sessionID string, opts Options) (*Result, error) {
	target, err := p.Registry.ByAlias(targetAlias)
	if err != nil {
		return nil, err
	}

	var hint *provider.SourceHint
	if opts.SourceHint != "" {
		parsed := provider.ParseSourceHint(opts.SourceHint)
		hint = &parsed
	}

	resolved, err := p.Registry.ResolveSession(sessionID, hint)
	if err != nil {
		return nil, err
	}
	internal.LogInfo("resolved session %s: provider=%s path=%s", sessionID, resolved.Provider.Slug(), resolved.Path)

	session, err := resolved.Provider.ReadSession(resolved.Path)
	if err != nil {
		return nil, err
	}

	validation := internal.ValidateSession(session)
	if validation.HasErrors() {
		return nil, &internal.ValidationFailedError{
			Errors:   validation.Messages(internal.SeverityError),
			Warnings: validation.Messages(internal.SeverityWarning),
			Info:     validation.Messages(internal.SeverityInfo),
		}
	}

	warnings := validation.Messages(internal.SeverityWarning)
	if opts.Verbose {
		warnings = append(warnings, validation.Messages(internal.SeverityInfo)...)
	}
	if resolved.Provider.Slug() == target.Slug() {
		warnings = append(warnings,
			"source and target provider are the same ("+target.Slug()+"); a new session copy will be created")
	}

	result := &Result{
		SourceProvider: resolved.Provider.Slug(),
		TargetProvider: target.Slug(),
		Session:        session,
		DryRun:         opts.DryRun,
		Warnings:       warnings,
	}

	if opts.DryRun {
		internal.LogInfo("dry run: skipping write to %s", target.Slug())
		result.ResumeCommand = target.ResumeCommand("<new-session-id>")
		return result, nil
	}

	written, err := target.WriteSession(session, provider.WriteOptions{
		Force:  opts.Force,
		Enrich: opts.Enrich,
	})
	if err != nil {
		return nil, err
	}
	result.Written = written
	result.TargetSessionID = written.SessionID
	result.ResumeCommand = written.ResumeCommand
	if written.BackupPath != "" {
		result.Warnings = append(result.Warnings, "previous file backed up to "+written.BackupPath)
	}

	expected := session.Messages
	if opts.Enrich {
		expected = provider.EnrichMessages(session, target.Name())
	}
	findings, err := VerifyConversion(target, written, expected, opts.Verbose)
	if err != nil {
		return nil, err
	}
	result.Warnings = append(result.Warnings, findings...)

	return result, nil
}
