package kernel

import (
	"encoding/json"

	"github.com/McElyea/orket-kernel/internal/canon"
)

// digestOfJSON canonicalizes v (any JSON-marshalable Go value) under the
// Orket profile and returns its structural digest. It round-trips through
// encoding/json and canon.ParseJSON rather than canon.FromGo so that
// integers decoded from a prior JSON hop keep exact precision (ParseJSON
// uses json.Decoder.UseNumber(), FromGo's float64 path would not).
func digestOfJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	value, err := canon.ParseJSON(data)
	if err != nil {
		return "", err
	}
	return canon.DigestOf(value), nil
}

// issueDigestView is an Issue with its free-text message stripped, for
// turn_result_digest computation.
type issueDigestView struct {
	Stage           string         `json:"stage"`
	Code            string         `json:"code"`
	Location        string         `json:"location"`
	Details         map[string]any `json:"details,omitempty"`
	Level           string         `json:"level"`
	ContractVersion string         `json:"contract_version"`
}

// turnResultDigestView is a TurnResult with events[] removed entirely and
// each issue's message stripped — the two fields spec.md and
// test_turn_result_digest_surface.py name as non-semantic for replay parity.
type turnResultDigestView struct {
	ContractVersion string             `json:"contract_version"`
	RunID           string             `json:"run_id"`
	TurnID          string             `json:"turn_id"`
	Outcome         string             `json:"outcome"`
	Stage           string             `json:"stage"`
	Errors          int                `json:"errors"`
	Warnings        int                `json:"warnings"`
	Issues          []issueDigestView  `json:"issues"`
	Transition      Transition         `json:"transition"`
	Capabilities    Capabilities       `json:"capabilities"`
}

// computeTurnResultDigest implements compute_turn_result_digest: digest the
// turn result excluding events[] and every issue's message text.
func computeTurnResultDigest(r TurnResult) (string, error) {
	issues := make([]issueDigestView, len(r.Issues))
	for i, issue := range r.Issues {
		issues[i] = issueDigestView{
			Stage:           issue.Stage,
			Code:            issue.Code,
			Location:        issue.Location,
			Details:         issue.Details,
			Level:           string(issue.Level),
			ContractVersion: issue.ContractVersion,
		}
	}
	view := turnResultDigestView{
		ContractVersion: r.ContractVersion,
		RunID:           r.RunID,
		TurnID:          r.TurnID,
		Outcome:         string(r.Outcome),
		Stage:           r.Stage,
		Errors:          r.Errors,
		Warnings:        r.Warnings,
		Issues:          issues,
		Transition:      r.Transition,
		Capabilities:    r.Capabilities,
	}
	return digestOfJSON(view)
}

// toJSONMap flattens a struct (or any JSON-marshalable value) into a plain
// map[string]any via a JSON round trip, so it can sit in an Issue's Details
// and be handled by canon.FromGo like any other detail value instead of
// falling through FromGo's default (struct) case to Null.
func toJSONMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// decisionID implements the Python original's
// hex(sha256(canonical_bytes(decision))) content address, computed over the
// decision record with its own (not-yet-assigned) decision_id field absent.
func decisionID(record CapabilityDecisionRecord) (string, error) {
	record.DecisionID = ""
	return digestOfJSON(record)
}
