package odr

import (
	"fmt"
	"strings"
)

var architectHeaders = []string{
	"### REQUIREMENT",
	"### CHANGELOG",
	"### ASSUMPTIONS",
	"### OPEN_QUESTIONS",
}

var auditorHeaders = []string{
	"### CRITIQUE",
	"### PATCHES",
	"### EDGE_CASES",
	"### TEST_GAPS",
}

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text
}

// ParseError is a structured architect/auditor section parse failure.
type ParseError struct {
	Code    string
	Message string
}

func (e *ParseError) Error() string { return e.Message }

// ArchitectSections is the parsed architect output.
type ArchitectSections struct {
	Requirement    string
	Changelog      []string
	Assumptions    []string
	OpenQuestions  []string
}

// AuditorSections is the parsed auditor output.
type AuditorSections struct {
	Critique  []string
	Patches   []string
	EdgeCases []string
	TestGaps  []string
}

func extractSections(text string, required []string) (map[string]string, *ParseError) {
	normalized := normalizeNewlines(text)
	if strings.TrimSpace(normalized) == "" {
		return nil, &ParseError{Code: "EMPTY_INPUT", Message: "Input text is empty."}
	}

	lines := strings.Split(normalized, "\n")
	positions := make(map[string][]int, len(required))
	for _, h := range required {
		positions[h] = nil
	}
	lowerLookup := make(map[string]string, len(required))
	for _, h := range required {
		lowerLookup[strings.ToLower(h)] = h
	}

	for idx, line := range lines {
		stripped := strings.ToLower(strings.TrimSpace(line))
		if matched, ok := lowerLookup[stripped]; ok {
			positions[matched] = append(positions[matched], idx)
		}
	}

	for _, header := range required {
		if len(positions[header]) > 1 {
			return nil, &ParseError{Code: "DUPLICATE_HEADER", Message: fmt.Sprintf("Duplicate header detected: %s", header)}
		}
	}

	var missing []string
	for _, header := range required {
		if len(positions[header]) == 0 {
			missing = append(missing, header)
		}
	}
	if len(missing) > 0 {
		return nil, &ParseError{Code: "MISSING_HEADER", Message: fmt.Sprintf("Missing required header(s): %s", strings.Join(missing, ", "))}
	}

	foundSequence := make([]string, 0, len(required))
	type posHeader struct {
		pos    int
		header string
	}
	ordered := make([]posHeader, 0, len(required))
	for _, header := range required {
		ordered = append(ordered, posHeader{pos: positions[header][0], header: header})
	}
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].pos < ordered[i].pos {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	for _, ph := range ordered {
		foundSequence = append(foundSequence, ph.header)
	}
	if !equalStrings(foundSequence, required) {
		return nil, &ParseError{Code: "HEADER_OUT_OF_ORDER",
			Message: fmt.Sprintf("Required headers are out of order. expected=%v found=%v", required, foundSequence)}
	}

	sections := make(map[string]string, len(required))
	for idx, header := range required {
		start := positions[header][0] + 1
		end := len(lines)
		if idx != len(required)-1 {
			end = positions[required[idx+1]][0]
		}
		chunk := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		sections[header] = chunk
	}
	return sections, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toList(sectionText string) []string {
	var rows []string
	for _, line := range strings.Split(normalizeNewlines(sectionText), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "-") {
			item := strings.TrimSpace(trimmed[1:])
			if item != "" {
				rows = append(rows, item)
			}
			continue
		}
		rows = append(rows, trimmed)
	}
	return rows
}

// ParseArchitect parses an architect turn's raw text into its required
// sections, or returns the structured parse error.
func ParseArchitect(text string) (ArchitectSections, *ParseError) {
	sections, perr := extractSections(text, architectHeaders)
	if perr != nil {
		return ArchitectSections{}, perr
	}
	requirement := strings.TrimSpace(sections["### REQUIREMENT"])
	if requirement == "" {
		return ArchitectSections{}, &ParseError{Code: "EMPTY_REQUIREMENT", Message: "### REQUIREMENT section must contain non-whitespace text."}
	}
	return ArchitectSections{
		Requirement:   requirement,
		Changelog:     toList(sections["### CHANGELOG"]),
		Assumptions:   toList(sections["### ASSUMPTIONS"]),
		OpenQuestions: toList(sections["### OPEN_QUESTIONS"]),
	}, nil
}

// ParseAuditor parses an auditor turn's raw text into its required sections.
func ParseAuditor(text string) (AuditorSections, *ParseError) {
	sections, perr := extractSections(text, auditorHeaders)
	if perr != nil {
		return AuditorSections{}, perr
	}
	return AuditorSections{
		Critique:  toList(sections["### CRITIQUE"]),
		Patches:   toList(sections["### PATCHES"]),
		EdgeCases: toList(sections["### EDGE_CASES"]),
		TestGaps:  toList(sections["### TEST_GAPS"]),
	}, nil
}
