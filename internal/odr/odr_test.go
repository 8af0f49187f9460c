package odr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func architectText(requirement string) string {
	return fmt.Sprintf(`### REQUIREMENT
%s

### CHANGELOG
- initial draft

### ASSUMPTIONS
- none

### OPEN_QUESTIONS
- none
`, requirement)
}

const auditorText = `### CRITIQUE
- looks fine

### PATCHES
- none

### EDGE_CASES
- none

### TEST_GAPS
- none
`

func TestRunRound_CleanRoundProducesNoStop(t *testing.T) {
	state := &ReactorState{}
	cfg := DefaultReactorConfig()

	RunRound(state, architectText("Build a login form."), auditorText, cfg)

	require.Len(t, state.HistoryRounds, 1)
	assert.Empty(t, state.StopReason)
	assert.Equal(t, 1, state.HistoryRounds[0].Round)
}

func TestRunRound_NoopsAfterStop(t *testing.T) {
	state := &ReactorState{StopReason: "MAX_ROUNDS"}
	cfg := DefaultReactorConfig()

	before := len(state.HistoryRounds)
	RunRound(state, architectText("x"), auditorText, cfg)

	assert.Len(t, state.HistoryRounds, before)
	assert.Equal(t, "MAX_ROUNDS", state.StopReason)
}

func TestRunRound_MissingHeaderStopsWithShapeViolation(t *testing.T) {
	state := &ReactorState{}
	cfg := DefaultReactorConfig()

	malformed := "### REQUIREMENT\nBuild a thing.\n"
	RunRound(state, malformed, auditorText, cfg)

	require.Len(t, state.HistoryRounds, 1)
	assert.Equal(t, "SHAPE_VIOLATION", state.StopReason)
	require.Len(t, state.HistoryRounds[0].ParseErrors, 1)
	assert.Equal(t, "architect", state.HistoryRounds[0].ParseErrors[0].Source)
}

func TestRunRound_CodeFenceTriggersHardLeak(t *testing.T) {
	state := &ReactorState{}
	cfg := DefaultReactorConfig()

	leaking := architectText("Build a login form.") + "\n```go\nfunc main() {}\n```\n"
	RunRound(state, leaking, auditorText, cfg)

	require.Len(t, state.HistoryRounds, 1)
	assert.Equal(t, "CODE_LEAK", state.StopReason)
	assert.True(t, state.HistoryRounds[0].Metrics.CodeLeakHit)
}

func TestRunRound_MaxRoundsStopsTheLoop(t *testing.T) {
	state := &ReactorState{}
	cfg := DefaultReactorConfig()
	cfg.MaxRounds = 2

	for i := 0; i < 3; i++ {
		RunRound(state, architectText(fmt.Sprintf("Requirement variant %d with distinct wording each round.", i)), auditorText, cfg)
	}

	require.Len(t, state.HistoryRounds, 2)
	assert.Equal(t, "MAX_ROUNDS", state.StopReason)
}

func TestRunRound_DiffFloorDetectsStableRequirement(t *testing.T) {
	state := &ReactorState{}
	cfg := DefaultReactorConfig()
	cfg.StableRounds = 2
	cfg.DiffFloorPct = 0.99

	text := architectText("Exactly the same requirement text every round.")
	for i := 0; i < 3; i++ {
		RunRound(state, text, auditorText, cfg)
		if state.StopReason != "" {
			break
		}
	}

	assert.Equal(t, "DIFF_FLOOR", state.StopReason)
}

func TestParseArchitect_RejectsOutOfOrderHeaders(t *testing.T) {
	outOfOrder := `### CHANGELOG
- x

### REQUIREMENT
Build a thing.

### ASSUMPTIONS
- none

### OPEN_QUESTIONS
- none
`
	_, err := ParseArchitect(outOfOrder)
	require.NotNil(t, err)
	assert.Equal(t, "HEADER_OUT_OF_ORDER", err.Code)
}

func TestParseArchitect_RejectsEmptyRequirement(t *testing.T) {
	text := `### REQUIREMENT


### CHANGELOG
- x

### ASSUMPTIONS
- none

### OPEN_QUESTIONS
- none
`
	_, err := ParseArchitect(text)
	require.NotNil(t, err)
	assert.Equal(t, "EMPTY_REQUIREMENT", err.Code)
}

func TestDetectCodeLeak_PlainProseHasNoHardLeak(t *testing.T) {
	detection := DetectCodeLeak("Build a login form.", "Looks fine.", DefaultLeakGateMode, nil)
	assert.False(t, detection.HardLeak)
}

func TestDetectCodeLeak_FenceBlockIsHardLeak(t *testing.T) {
	detection := DetectCodeLeak("```go\nfunc f() {}\n```", "fine", DefaultLeakGateMode, nil)
	assert.True(t, detection.HardLeak)
	assert.Contains(t, detection.MatchesHard, "fence_block")
}
