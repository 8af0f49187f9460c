package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSONMap_FlattensStruct(t *testing.T) {
	record := CapabilityDecisionRecord{DecisionID: "d-1", ToolName: "fs.write"}

	m := toJSONMap(record)
	assert.Equal(t, "d-1", m["decision_id"])
	assert.Equal(t, "fs.write", m["tool_name"])
}

func TestToJSONMap_UnmarshalableValueReturnsEmptyMap(t *testing.T) {
	m := toJSONMap(make(chan int))
	assert.Empty(t, m)
}

func TestComputeTurnResultDigest_IgnoresEventsAndIssueMessages(t *testing.T) {
	base := TurnResult{
		ContractVersion: ContractVersion,
		RunID:           "run-1",
		TurnID:          "turn-0001",
		Outcome:         "PASS",
		Stage:           "staging",
		Transition:      defaultTransition(),
		Capabilities:    disabledCapabilities(),
	}

	withEvents := base
	withEvents.Events = []string{"some human-readable event line"}

	d1, err := computeTurnResultDigest(base)
	require.NoError(t, err)
	d2, err := computeTurnResultDigest(withEvents)
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
}

func TestComputeTurnResultDigest_DifferentOutcomesDigestDifferently(t *testing.T) {
	pass := TurnResult{
		ContractVersion: ContractVersion,
		RunID:           "run-1",
		TurnID:          "turn-0001",
		Outcome:         "PASS",
		Stage:           "staging",
		Transition:      defaultTransition(),
		Capabilities:    disabledCapabilities(),
	}
	fail := pass
	fail.Outcome = "FAIL"

	d1, err := computeTurnResultDigest(pass)
	require.NoError(t, err)
	d2, err := computeTurnResultDigest(fail)
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
}
