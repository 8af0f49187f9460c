package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/McElyea/orket-kernel/internal/kernel/codes"
	"github.com/McElyea/orket-kernel/internal/kernel/contracts"
)

func completeDescriptor() *RunDescriptor {
	return &RunDescriptor{
		RunID:             "run-1",
		WorkflowID:        "wf-1",
		ContractVersion:   ContractVersion,
		SchemaVersion:     "1.0",
		PolicyProfileRef:  "policy-1",
		ModelProfileRef:   "model-1",
		RuntimeProfileRef: "runtime-1",
		TraceRef:          "trace-1",
		StateRef:          "state-1",
	}
}

func TestReplayRun_AcceptsCompleteDescriptor(t *testing.T) {
	v := NewValidator(CapabilityPolicy{}, "")
	report, err := v.ReplayRun(ReplayRunRequest{ContractVersion: ContractVersion, RunDescriptor: completeDescriptor()})
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomePass, report.Outcome)
}

func TestReplayRun_RejectsMissingField(t *testing.T) {
	v := NewValidator(CapabilityPolicy{}, "")
	desc := completeDescriptor()
	desc.TraceRef = ""

	report, err := v.ReplayRun(ReplayRunRequest{ContractVersion: ContractVersion, RunDescriptor: desc})
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomeFail, report.Outcome)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, codes.EReplayInputMissing, report.Issues[0].Code)
	assert.Equal(t, "/run_descriptor/trace_ref", report.Issues[0].Location)
}

func TestReplayRun_RejectsVersionMismatch(t *testing.T) {
	v := NewValidator(CapabilityPolicy{}, "")
	desc := completeDescriptor()
	desc.ContractVersion = "0.0.1"

	report, err := v.ReplayRun(ReplayRunRequest{ContractVersion: ContractVersion, RunDescriptor: desc})
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomeFail, report.Outcome)
	assert.Equal(t, codes.EReplayVersionMismatch, report.Issues[0].Code)
}

func TestReplayRun_RejectsRequestLevelVersionMismatch(t *testing.T) {
	v := NewValidator(CapabilityPolicy{}, "")
	_, err := v.ReplayRun(ReplayRunRequest{ContractVersion: "bogus"})
	assert.Error(t, err)
}

func samplePayload(turnDigest, stageOutcome string) *RunPayload {
	return &RunPayload{
		RunID:           "run-1",
		ContractVersion: ContractVersion,
		SchemaVersion:   "1.0",
		TurnDigests:     []TurnDigestEntry{{TurnID: "turn-0001", TurnResultDigest: turnDigest}},
		StageOutcomes:   []StageOutcomeEntry{{TurnID: "turn-0001", Stage: "staging", Outcome: stageOutcome}},
		Issues:          []IssueCodeEntry{},
		Events:          []string{},
	}
}

func TestCompareRuns_IdenticalPayloadsPass(t *testing.T) {
	v := NewValidator(CapabilityPolicy{}, "")
	a := samplePayload("digest-a", "PASS")
	b := samplePayload("digest-a", "PASS")

	report, err := v.CompareRuns(CompareRunsRequest{ContractVersion: ContractVersion, RunA: a, RunB: b})
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomePass, report.Outcome)
	assert.Equal(t, 0, report.Parity.Mismatches)
}

func TestCompareRuns_DivergentTurnDigestsFail(t *testing.T) {
	v := NewValidator(CapabilityPolicy{}, "")
	a := samplePayload("digest-a", "PASS")
	b := samplePayload("digest-b", "PASS")

	report, err := v.CompareRuns(CompareRunsRequest{ContractVersion: ContractVersion, RunA: a, RunB: b})
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomeFail, report.Outcome)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, codes.EReplayEquivalenceFailed, report.Issues[0].Code)
	assert.Greater(t, report.Parity.Mismatches, 0)
}

func TestCompareRuns_RejectsMissingRunPayloads(t *testing.T) {
	v := NewValidator(CapabilityPolicy{}, "")
	report, err := v.CompareRuns(CompareRunsRequest{ContractVersion: ContractVersion})
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomeFail, report.Outcome)
	assert.Equal(t, codes.EReplayInputMissing, report.Issues[0].Code)
}
