package odr

import (
	"fmt"
	"regexp"
	"strings"
)

// LeakGateMode selects the code-leak detector's strictness.
type LeakGateMode string

const (
	LeakGateStrict     LeakGateMode = "strict"
	LeakGateBalancedV1 LeakGateMode = "balanced_v1"
)

// DefaultLeakGateMode mirrors the Python original's default.
const DefaultLeakGateMode = LeakGateBalancedV1

// DefaultCodeLeakPatterns are the strict-mode regexes.
var DefaultCodeLeakPatterns = []string{
	"(?s)```(?:[^\n]*)\n.*?\n```",
	`\b(def|class|import|fn|let|const|interface|type)\b`,
	`\b(npm|pip|cargo|docker|venv|node_modules)\b`,
}

var weakTokens = []string{"type", "interface", "schema", "contract", "signature", "struct"}
var weakStrictSet = map[string]struct{}{"type": {}, "interface": {}}
var toolingTokens = []string{"npm", "pip", "cargo", "docker", "venv", "node_modules", "node", "bash", "sh"}

var pyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*(?:[-*]\s+)?def\s+[A-Za-z_]\w*\s*\(`),
	regexp.MustCompile(`(?m)^\s*(?:[-*]\s+)?class\s+[A-Za-z_]\w*\s*[:\(]`),
	regexp.MustCompile(`(?m)^\s*(?:[-*]\s+)?(from\s+\w[\w.]*\s+import|import\s+\w)`),
}

var jsTsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*(?:[-*]\s+)?interface\s+[A-Za-z_]\w*\b`),
	regexp.MustCompile(`(?m)^\s*(?:[-*]\s+)?type\s+[A-Za-z_]\w*\s*=`),
	regexp.MustCompile(`(?m)^\s*(?:[-*]\s+)?(const|let|var)\s+[A-Za-z_]\w*\s*=`),
	regexp.MustCompile(`(?m)^\s*(?:[-*]\s+)?function\s+[A-Za-z_]\w*\s*\(`),
}

var toolingPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(toolingTokens, "|") + `)\b`)

var cliMarkerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`--\w`),
	regexp.MustCompile(`-\w`),
	regexp.MustCompile(`&&|\|\||\|`),
	regexp.MustCompile(`\$\s*\w`),
	regexp.MustCompile(`(?i)\bpython\s+-m\b`),
	regexp.MustCompile(`(?i)\b(node|bash|sh)\b`),
}
var execVerbPattern = regexp.MustCompile(`(?i)\b(run|install|execute)\b`)
var indentBlockPattern = regexp.MustCompile(`(?m)^(?: {4,}|\t).+\n(?: {4,}|\t).+`)
var callPattern = regexp.MustCompile(`\b\w+\s*\([^)]*\)`)
var fenceOpenPrefix = "```"

// WeakMatch is a non-hard token hit surfaced only as a warning.
type WeakMatch struct {
	Token           string
	Detector        string
	ContextSnippet  string
}

// LeakDetection is the full result of the code-leak gate, carried into a
// round record's metrics/trace fields.
type LeakDetection struct {
	HardLeak    bool
	MatchesHard []string
	MatchesWeak []WeakMatch
	Classes     []string
	Warnings    []string
}

// TraceFields renders the detection as event/issue detail fields, matching
// the Python original's LeakDetection.as_trace_fields().
func (d LeakDetection) TraceFields() map[string]any {
	weak := make([]map[string]any, 0, len(d.MatchesWeak))
	for _, w := range d.MatchesWeak {
		weak = append(weak, map[string]any{
			"token":           w.Token,
			"detector":        w.Detector,
			"context_snippet": w.ContextSnippet,
		})
	}
	return map[string]any{
		"code_leak_matches_hard":  append([]string{}, d.MatchesHard...),
		"code_leak_matches_weak":  weak,
		"code_leak_warning_count": len(d.Warnings),
		"code_leak_classes":       append([]string{}, d.Classes...),
		"code_leak_warnings":      append([]string{}, d.Warnings...),
	}
}

func snippet(text string, start, end, maxChars int) string {
	if maxChars <= 0 {
		maxChars = 120
	}
	center := (start + end) / 2
	if center < 0 {
		center = 0
	}
	if center > len(text) {
		center = len(text)
	}
	half := maxChars / 2
	lo := center - half
	if lo < 0 {
		lo = 0
	}
	hi := center + half
	if hi > len(text) {
		hi = len(text)
	}
	raw := strings.TrimSpace(text[lo:hi])
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	escaped := strings.ReplaceAll(raw, "\n", "\\n")
	if len(escaped) > maxChars {
		escaped = escaped[:maxChars]
	}
	return escaped
}

func stripListPrefix(line string) string {
	stripped := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(stripped, "- ") || strings.HasPrefix(stripped, "* ") {
		return strings.TrimLeft(stripped[2:], " \t")
	}
	return stripped
}

func isFenceOpen(line string) bool {
	stripped := stripListPrefix(line)
	return strings.HasPrefix(stripped, fenceOpenPrefix) && !strings.HasPrefix(stripped, "````")
}

func isFenceClose(line string) bool {
	stripped := stripListPrefix(line)
	if !strings.HasPrefix(stripped, fenceOpenPrefix) || strings.HasPrefix(stripped, "````") {
		return false
	}
	return strings.TrimSpace(stripped[3:]) == ""
}

func hasFenceBlock(text string) bool {
	lines := strings.Split(normalizeNewlines(text), "\n")
	for i, line := range lines {
		if !isFenceOpen(line) {
			continue
		}
		for _, candidate := range lines[i+1:] {
			if isFenceClose(candidate) {
				return true
			}
		}
	}
	return false
}

func hasCLIContext(fragment string) bool {
	for _, p := range cliMarkerPatterns {
		if p.MatchString(fragment) {
			return true
		}
	}
	return execVerbPattern.MatchString(fragment)
}

func lineBounds(text string, start, end int) (int, int) {
	lineStart := strings.LastIndex(text[:start], "\n") + 1
	lineEnd := strings.Index(text[end:], "\n")
	if lineEnd == -1 {
		lineEnd = len(text)
	} else {
		lineEnd += end
	}
	return lineStart, lineEnd
}

func toolingHardMatches(text string) ([]string, []WeakMatch) {
	var hard []string
	var weak []WeakMatch
	for _, loc := range toolingPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[2], loc[3]
		token := strings.ToLower(text[start:end])
		lineStart, lineEnd := lineBounds(text, loc[0], loc[1])
		sameLine := text[lineStart:lineEnd]
		aroundStart := loc[0] - 80
		if aroundStart < 0 {
			aroundStart = 0
		}
		aroundEnd := loc[1] + 80
		if aroundEnd > len(text) {
			aroundEnd = len(text)
		}
		around := text[aroundStart:aroundEnd]
		if hasCLIContext(sameLine) || hasCLIContext(around) {
			hard = append(hard, fmt.Sprintf("tooling_context:%s", token))
		} else {
			weak = append(weak, WeakMatch{
				Token:          token,
				Detector:       "tooling_without_context",
				ContextSnippet: snippet(text, start, end, 120),
			})
		}
	}
	return hard, weak
}

func weakTokenMatches(text string) []WeakMatch {
	var matches []WeakMatch
	for _, token := range weakTokens {
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(token) + `\b`)
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			matches = append(matches, WeakMatch{
				Token:          token,
				Detector:       "weak_token",
				ContextSnippet: snippet(text, loc[0], loc[1], 120),
			})
		}
	}
	return matches
}

func fallbackSignalSummary(text string) (int, map[string]bool) {
	bracesPair := strings.Contains(text, "{") && strings.Contains(text, "}")
	semicolons := strings.Count(text, ";") >= 2
	equals := strings.Count(text, "=") >= 2
	callLike := callPattern.MatchString(text)
	arrow := strings.Contains(text, "->") || strings.Contains(text, "=>")
	indentBlock := indentBlockPattern.MatchString(text)
	signals := map[string]bool{
		"braces_pair":      bracesPair,
		"semicolons_ge_two": semicolons,
		"equals_ge_two":     equals,
		"call_like":         callLike,
		"arrow":             arrow,
		"indentation_block": indentBlock,
	}
	count := 0
	for _, v := range signals {
		if v {
			count++
		}
	}
	return count, signals
}

func dedupStrings(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// DetectCodeLeak runs the registered code-leak gate over a round's
// architect/auditor raw text, per mode.
func DetectCodeLeak(architectRaw, auditorRaw string, mode LeakGateMode, patterns []string) LeakDetection {
	normalizedArchitect := normalizeNewlines(architectRaw)
	normalizedAuditor := normalizeNewlines(auditorRaw)
	combined := normalizedArchitect + "\n" + normalizedAuditor

	selectedMode := mode
	if selectedMode != LeakGateStrict && selectedMode != LeakGateBalancedV1 {
		selectedMode = DefaultLeakGateMode
	}
	configured := patterns
	if configured == nil {
		configured = DefaultCodeLeakPatterns
	}

	if selectedMode == LeakGateStrict {
		var hard []string
		for i, pattern := range configured {
			if regexp.MustCompile(pattern).MatchString(combined) {
				hard = append(hard, fmt.Sprintf("strict_pattern_%d", i))
			}
		}
		classes := []string{}
		if len(hard) > 0 {
			classes = []string{"CODE"}
		}
		return LeakDetection{HardLeak: len(hard) > 0, MatchesHard: hard, Classes: classes}
	}

	var hard []string
	weak := weakTokenMatches(combined)
	var classes []string

	if hasFenceBlock(combined) {
		hard = append(hard, "fence_block")
		classes = append(classes, "FENCE")
	}

	for _, p := range pyPatterns {
		if p.MatchString(combined) {
			hard = append(hard, "python_struct:"+p.String())
		}
	}
	for _, p := range jsTsPatterns {
		if p.MatchString(combined) {
			hard = append(hard, "js_ts_struct:"+p.String())
		}
	}
	for _, h := range hard {
		if strings.HasPrefix(h, "python_struct:") || strings.HasPrefix(h, "js_ts_struct:") {
			classes = append(classes, "CODE")
			break
		}
	}

	toolingHard, toolingWeak := toolingHardMatches(combined)
	if len(toolingHard) > 0 {
		hard = append(hard, toolingHard...)
		classes = append(classes, "TOOLING")
	}
	weak = append(weak, toolingWeak...)

	if len(hard) == 0 {
		count, signals := fallbackSignalSummary(combined)
		structural := signals["indentation_block"] || signals["braces_pair"] || signals["semicolons_ge_two"]
		if count >= 3 && structural {
			hard = append(hard, "fallback_structural_signals")
			classes = append(classes, "CODE")
		}
	}

	var warnings []string
	for _, row := range weak {
		token := strings.ToLower(row.Token)
		if _, isStrict := weakStrictSet[token]; isStrict {
			warnings = append(warnings, "WARN_LEAK_WEAK_TOKEN:"+token)
		} else if token != "" {
			warnings = append(warnings, "WARN_LEAK_OBSERVED_TOKEN:"+token)
		}
	}

	return LeakDetection{
		HardLeak:    len(hard) > 0,
		MatchesHard: dedupStrings(hard),
		MatchesWeak: weak,
		Classes:     dedupStrings(classes),
		Warnings:    dedupStrings(warnings),
	}
}
