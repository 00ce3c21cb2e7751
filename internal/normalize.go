package internal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// millisThreshold separates second-precision epoch values from
// millisecond-precision ones. Values below it are seconds.
const millisThreshold = 100_000_000_000

// FlattenContent collapses the content shapes seen across providers into
// plain text:
//   - string bodies pass through unchanged
//   - arrays concatenate "text"/"input_text" blocks, render "tool_use"
//     blocks as "[Tool: name]", and join plain strings with newlines
//   - objects with a bare "text" field return it
//   - null, numbers, and booleans yield ""
func FlattenContent(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		var parts []string
		for _, item := range v {
			switch block := item.(type) {
			case string:
				parts = append(parts, block)
			case map[string]any:
				blockType, _ := block["type"].(string)
				switch blockType {
				case "text", "input_text":
					if text, ok := block["text"].(string); ok {
						parts = append(parts, text)
					}
				case "tool_use":
					name, ok := block["name"].(string)
					if !ok {
						name = "unknown"
					}
					desc := toolUseDescription(block)
					if desc != "" {
						parts = append(parts, fmt.Sprintf("[Tool: %s - %s]", name, desc))
					} else {
						parts = append(parts, fmt.Sprintf("[Tool: %s]", name))
					}
				default:
					// Unrecognized block type but a text field is present.
					if text, ok := block["text"].(string); ok {
						parts = append(parts, text)
					}
				}
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return text
		}
		return ""
	default:
		return ""
	}
}

// toolUseDescription pulls a short human hint out of a tool_use block's
// input, preferring description over file_path.
func toolUseDescription(block map[string]any) string {
	input, ok := block["input"].(map[string]any)
	if !ok {
		return ""
	}
	if desc, ok := input["description"].(string); ok {
		return desc
	}
	if fp, ok := input["file_path"].(string); ok {
		return fp
	}
	return ""
}

// ParseTimestamp normalizes a timestamp value to epoch milliseconds.
//
// Integers and digit strings below millisThreshold are seconds (scaled by
// 1000); at or above they are already milliseconds. Floats are seconds.
// Strings also accept RFC 3339 and common ISO-8601 variants. Returns
// false for null, objects, arrays, and unparseable strings.
func ParseTimestamp(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return scaleEpoch(v), true
	case int:
		return scaleEpoch(int64(v)), true
	case float64:
		// encoding/json decodes all numbers as float64. Integral values
		// follow the integer heuristic; fractional values are seconds.
		if v == float64(int64(v)) {
			return scaleEpoch(int64(v)), true
		}
		return int64(v * 1000), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return scaleEpoch(i), true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f * 1000), true
		}
		for _, layout := range []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05.999999999Z",
			"2006-01-02T15:04:05Z",
			"2006-01-02T15:04:05.999999999",
			"2006-01-02T15:04:05",
		} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UnixMilli(), true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

func scaleEpoch(v int64) int64 {
	if v < millisThreshold {
		return v * 1000
	}
	return v
}

// NormalizeRole maps a provider role label onto the canonical role set.
// Matching is case-insensitive; unrecognized labels become a labeled
// Other role rather than failing.
func NormalizeRole(label string) Role {
	switch strings.ToLower(label) {
	case "user":
		return RoleUser
	case "assistant", "model", "agent", "gemini":
		return RoleAssistant
	case "tool":
		return RoleTool
	case "system":
		return RoleSystem
	default:
		return RoleOther(strings.ToLower(label))
	}
}

// ReindexMessages reassigns dense 0..n-1 indices in slice order. Callers
// must invoke this after filtering messages.
func ReindexMessages(messages []Message) {
	for i := range messages {
		messages[i].Index = i
	}
}

// TruncateTitle derives a title from message content: first line, trimmed,
// truncated to maxLen runes with "..." appended when cut.
func TruncateTitle(text string, maxLen int) string {
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	firstLine = strings.TrimSpace(firstLine)
	if firstLine == "" {
		return ""
	}
	if utf8.RuneCountInString(firstLine) <= maxLen {
		return firstLine
	}
	runes := []rune(firstLine)
	return string(runes[:maxLen]) + "..."
}

// FormatTimestamp renders epoch milliseconds as RFC 3339 UTC. Zero yields
// an empty string.
func FormatTimestamp(millis int64) string {
	if millis == 0 {
		return ""
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}
