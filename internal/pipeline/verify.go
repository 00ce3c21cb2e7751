package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iksnae/session-bridge/internal"
	"github.com/iksnae/session-bridge/internal/provider"
)

// timestampToleranceMillis absorbs rounding introduced by format
// round-trips (second-precision fields, unit normalization).
const timestampToleranceMillis = 2000

// maxReportedMismatches caps per-message findings so a systematically
// broken write yields a handful of lines, not one per message.
const maxReportedMismatches = 5

// VerifyConversion re-reads the just-written output through the target
// provider's own reader and compares it against the messages the writer
// was asked to emit.
//
// Mismatches are returned as fidelity findings for the report; they
// point at a writer defect, not a transient condition, so there is no
// retry and no rollback. Only an unreadable output is an error. The
// informational dropped-metadata finding is emitted only in verbose
// mode.
func VerifyConversion(target provider.Provider, written *provider.WrittenSession, expected []internal.Message, verbose bool) ([]string, error) {
	if len(written.Paths) == 0 {
		return nil, &internal.VerifyError{Provider: target.Slug(), Detail: "writer reported no output paths"}
	}

	readBack, err := target.ReadSession(written.Paths[0])
	if err != nil {
		return nil, &internal.VerifyError{
			Provider:     target.Slug(),
			WrittenPaths: written.Paths,
			Detail:       fmt.Sprintf("written session could not be read back: %v", err),
		}
	}

	var findings []string
	addFinding := func(format string, args ...interface{}) {
		findings = append(findings, "verification: "+fmt.Sprintf(format, args...))
	}

	got := readBack.Messages
	if len(got) != len(expected) {
		addFinding("message count mismatch: wrote %d, read back %d", len(expected), len(got))
	}

	n := len(expected)
	if len(got) < n {
		n = len(got)
	}
	mismatches := 0
	for i := 0; i < n && mismatches < maxReportedMismatches; i++ {
		want, have := expected[i], got[i]
		switch {
		case want.Role != have.Role:
			addFinding("message %d role changed: %s became %s", i, want.Role, have.Role)
			mismatches++
		case want.Content != have.Content:
			addFinding("message %d content differs after round-trip", i)
			mismatches++
		case want.Timestamp != 0 && have.Timestamp != 0 &&
			absDiff(want.Timestamp, have.Timestamp) > timestampToleranceMillis:
			addFinding("message %d timestamp drifted by %dms", i, absDiff(want.Timestamp, have.Timestamp))
			mismatches++
		}
	}

	if verbose {
		if dropped := droppedExtraKeys(expected, got); len(dropped) > 0 {
			addFinding("%s: source metadata fields not representable in %s were dropped: %s",
				internal.CodeMetadataDropped, target.Slug(), strings.Join(dropped, ", "))
		}
	}

	if len(findings) > 0 {
		internal.LogWarn("verification found %d fidelity issue(s) in %s output", len(findings), target.Slug())
	} else {
		internal.LogDebug("verification passed for %s output", target.Slug())
	}
	return findings, nil
}

// droppedExtraKeys reports which provider-specific passthrough fields
// present on the source messages did not survive into the written
// format. Purely informational; the canonical layer never interprets
// these fields.
func droppedExtraKeys(expected, got []internal.Message) []string {
	sourceKeys := extraKeySet(expected)
	if len(sourceKeys) == 0 {
		return nil
	}
	gotKeys := extraKeySet(got)

	// Fields with a canonical home are carried structurally even when the
	// raw key name changes between formats.
	canonical := map[string]struct{}{
		"role": {}, "content": {}, "text": {}, "message": {},
		"timestamp": {}, "type": {},
	}

	var dropped []string
	for key := range sourceKeys {
		if _, ok := canonical[key]; ok {
			continue
		}
		if _, ok := gotKeys[key]; !ok {
			dropped = append(dropped, key)
		}
	}
	sort.Strings(dropped)
	if len(dropped) > 6 {
		dropped = append(dropped[:6], fmt.Sprintf("and %d more", len(dropped)-6))
	}
	return dropped
}

func extraKeySet(messages []internal.Message) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, msg := range messages {
		extra, ok := msg.Extra.(map[string]any)
		if !ok {
			continue
		}
		for key := range extra {
			keys[key] = struct{}{}
		}
	}
	return keys
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
