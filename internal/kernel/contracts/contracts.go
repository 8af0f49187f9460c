// Package contracts defines the uniform sum-typed return shape used by every
// kernel operation — staging, validation, promotion, the ODR reactor, and the
// validator front-end all return a Result instead of raising. This is the Go
// translation of the source system's KernelIssue/KernelResult dataclasses,
// promoted here from a validator-only detail to a shared contract so no
// kernel package reaches for a bare error return or a panic.
package contracts

import (
	"sort"

	"github.com/McElyea/orket-kernel/internal/canon"
)

// Outcome is the terminal PASS/FAIL verdict of a kernel operation.
type Outcome string

const (
	OutcomePass Outcome = "PASS"
	OutcomeFail Outcome = "FAIL"
)

// Level is the severity of an Issue.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ContractVersion is the kernel API version stamped onto every issue.
const ContractVersion = "kernel_api/v1"

// Issue is a single structured diagnostic: a stable (location, code) pair,
// human message, and arbitrary structured details.
type Issue struct {
	Stage           string         `json:"stage"`
	Code            string         `json:"code"`
	Location        string         `json:"location"`
	Message         string         `json:"message"`
	Details         map[string]any `json:"details,omitempty"`
	Level           Level          `json:"level"`
	ContractVersion string         `json:"contract_version"`
}

// NewIssue builds an Issue with the contract version and a default ERROR
// level, mirroring the source system's _issue() helper.
func NewIssue(stage, code, location, message string, details map[string]any) Issue {
	return Issue{
		Stage:           stage,
		Code:            code,
		Location:        location,
		Message:         message,
		Details:         details,
		Level:           LevelError,
		ContractVersion: ContractVersion,
	}
}

// NewInfoIssue builds an informational (non-failing) Issue.
func NewInfoIssue(stage, code, location, message string, details map[string]any) Issue {
	issue := NewIssue(stage, code, location, message, details)
	issue.Level = LevelInfo
	return issue
}

func (i Issue) canonValue() canon.Value {
	fields := map[string]canon.Value{
		"stage":    canon.String(i.Stage),
		"code":     canon.String(i.Code),
		"location": canon.String(i.Location),
		"level":    canon.String(string(i.Level)),
	}
	if len(i.Details) > 0 {
		fields["details"] = canon.Object(mapToCanonFields(i.Details))
	}
	return canon.Object(fields)
}

func mapToCanonFields(m map[string]any) map[string]canon.Value {
	out := make(map[string]canon.Value, len(m))
	for k, v := range m {
		out[k] = canon.FromGo(v)
	}
	return out
}

// SortIssues sorts issues by (location, code, canonical-details-bytes),
// ascending — the order spec.md mandates for any issue list returned to a
// caller.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return string(canon.CanonicalBytes(a.canonValue())) < string(canon.CanonicalBytes(b.canonValue()))
	})
}

// Result is the uniform return shape for every public kernel operation.
type Result struct {
	Outcome Outcome  `json:"outcome"`
	Issues  []Issue  `json:"issues"`
	Events  []string `json:"events"`
}

// Pass builds a PASS result with no issues.
func Pass(events ...string) Result {
	return Result{Outcome: OutcomePass, Issues: []Issue{}, Events: append([]string{}, events...)}
}

// Fail builds a FAIL result. issues must be non-empty.
func Fail(issues []Issue, events ...string) Result {
	SortIssues(issues)
	return Result{Outcome: OutcomeFail, Issues: issues, Events: append([]string{}, events...)}
}

// WithEvents returns a copy of r with events appended.
func (r Result) WithEvents(events ...string) Result {
	r.Events = append(append([]string{}, r.Events...), events...)
	return r
}

// OK reports whether the result outcome is PASS.
func (r Result) OK() bool { return r.Outcome == OutcomePass }
