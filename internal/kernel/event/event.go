// Package event implements the Runtime Event Model: a single deterministic,
// single-line event format shared by every kernel component (LSI, promotion,
// ODR, validator). The source system carried two divergent formatters; this
// package is the one canonical formatter used everywhere, since the replay
// parity surface (compare_runs) depends on every component emitting an
// identical shape.
package event

import (
	"sort"
	"strconv"
	"strings"

	"github.com/McElyea/orket-kernel/internal/canon"
)

// Level is the event severity tag.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Format renders a single event line:
//
//	[LEVEL] [STAGE:<stage>] [CODE:<CODE>] [LOC:<rfc6901>] <message> | k1=v1 k2=v2 …
//
// Detail keys are sorted; composite values are canonical-JSON encoded;
// newlines in the message and in string values are escaped so the whole
// event is exactly one line.
func Format(level Level, stage, code, location, message string, details map[string]any) string {
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(string(level))
	sb.WriteString("] [STAGE:")
	sb.WriteString(stage)
	sb.WriteString("] [CODE:")
	sb.WriteString(code)
	sb.WriteString("] [LOC:")
	sb.WriteString(location)
	sb.WriteString("] ")
	sb.WriteString(escapeLine(message))
	sb.WriteString(" |")

	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteByte(' ')
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(formatDetailValue(details[k]))
		}
	}

	return sb.String()
}

func escapeLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\n")
	return s
}

// ExtractCode pulls the "[CODE:...]" marker out of a formatted event line,
// for building the event_codes surface compare_runs checks for parity.
func ExtractCode(line string) (string, bool) {
	const marker = "[CODE:"
	start := strings.Index(line, marker)
	if start < 0 {
		return "", false
	}
	start += len(marker)
	end := strings.Index(line[start:], "]")
	if end < 0 {
		return "", false
	}
	return line[start : start+end], true
}

func formatDetailValue(v any) string {
	switch t := v.(type) {
	case string:
		return escapeLine(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case nil:
		return "null"
	default:
		return escapeLine(string(canon.CanonicalBytes(canon.FromGo(v))))
	}
}
