package internal

import "fmt"

// Severity classifies a validation finding.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

// Validation finding codes. These are stable identifiers; messages may be
// reworded but codes never change.
const (
	CodeEmptySession      = "EMPTY_SESSION"
	CodeOneSided          = "ONE_SIDED"
	CodeNoWorkspace       = "NO_WORKSPACE"
	CodeNoTimestamps      = "NO_TIMESTAMPS"
	CodeUnusualRoleOrder  = "UNUSUAL_ROLE_ORDER"
	CodeShortSession      = "SHORT_SESSION"
	CodeHighSkipRatio     = "HIGH_SKIP_RATIO"
	CodeToolCountMismatch = "TOOL_COUNT_MISMATCH"
	CodeMetadataDropped   = "METADATA_DROPPED"
)

const (
	// shortSessionThreshold is the minimum message count below which a
	// session is flagged as very short.
	shortSessionThreshold = 4
	// highSkipRatio is the malformed-record ratio above which a read is
	// considered suspect.
	highSkipRatio = 0.25
)

// Finding is one classified structural issue in a canonical session.
type Finding struct {
	Severity Severity
	Code     string
	Message  string
}

// ValidationReport is an ordered list of findings produced fresh per run.
type ValidationReport struct {
	Findings []Finding
}

func (r *ValidationReport) add(severity Severity, code, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Severity: severity,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	})
}

// HasErrors reports whether any finding is a hard-stop error.
func (r *ValidationReport) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Messages returns the messages of all findings at the given severity,
// in order.
func (r *ValidationReport) Messages(severity Severity) []string {
	var out []string
	for _, f := range r.Findings {
		if f.Severity == severity {
			out = append(out, f.Message)
		}
	}
	return out
}

// ValidateSession classifies structural issues in a canonical session.
// It never mutates the session.
//
// Hard stops: no messages, or messages from only one of user/assistant.
// Everything else is a warning or informational finding.
func ValidateSession(session *Session) *ValidationReport {
	report := &ValidationReport{}

	if len(session.Messages) == 0 {
		report.add(SeverityError, CodeEmptySession, "session has no messages")
		return report
	}

	hasUser := session.HasRole(RoleUser)
	hasAssistant := session.HasRole(RoleAssistant)
	switch {
	case hasUser && !hasAssistant:
		report.add(SeverityError, CodeOneSided, "session has only user messages; a one-sided session cannot be resumed")
	case hasAssistant && !hasUser:
		report.add(SeverityError, CodeOneSided, "session has only assistant messages; a one-sided session cannot be resumed")
	case !hasUser && !hasAssistant:
		report.add(SeverityError, CodeOneSided, "session has no user or assistant messages")
	}
	if report.HasErrors() {
		return report
	}

	if session.Workspace == "" {
		report.add(SeverityWarning, CodeNoWorkspace, "session has no workspace; the resumed agent will not know the project directory")
	}

	hasTimestamps := false
	for _, m := range session.Messages {
		if m.Timestamp != 0 {
			hasTimestamps = true
			break
		}
	}
	if !hasTimestamps {
		report.add(SeverityWarning, CodeNoTimestamps, "session has no timestamps")
	}

	checkRoleOrder(session, report)

	if len(session.Messages) < shortSessionThreshold {
		report.add(SeverityWarning, CodeShortSession, "session is very short (%d messages)", len(session.Messages))
	}

	if ratio := session.Stats.SkipRatio(); ratio > highSkipRatio {
		report.add(SeverityWarning, CodeHighSkipRatio,
			"%d of %d records were malformed and skipped (%.0f%%)",
			session.Stats.Skipped, session.Stats.Records, ratio*100)
	}

	calls, results := 0, 0
	for _, m := range session.Messages {
		calls += len(m.ToolCalls)
		results += len(m.ToolResults)
	}
	if calls != results {
		report.add(SeverityInfo, CodeToolCountMismatch,
			"tool call/result counts differ (%d calls, %d results)", calls, results)
	}

	return report
}

// checkRoleOrder flags unusual conversational shapes: an assistant turn
// with no preceding user turn, and long consecutive same-role runs.
func checkRoleOrder(session *Session, report *ValidationReport) {
	if session.Messages[0].Role == RoleAssistant {
		report.add(SeverityWarning, CodeUnusualRoleOrder, "session starts with an assistant message and no preceding user turn")
	}

	run := 1
	for i := 1; i < len(session.Messages); i++ {
		cur, prev := session.Messages[i].Role, session.Messages[i-1].Role
		if cur == prev && (cur == RoleUser || cur == RoleAssistant) {
			run++
		} else {
			run = 1
		}
		if run == 3 {
			report.add(SeverityWarning, CodeUnusualRoleOrder,
				"consecutive %s messages without alternation", cur.String())
		}
	}
}
