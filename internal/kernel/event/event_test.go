package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat_ProducesSingleLineWithSortedDetails(t *testing.T) {
	line := Format(LevelError, "staging", "E_TEST", "/a/b", "something failed", map[string]any{
		"b": 2,
		"a": "one",
	})

	assert.Equal(t, `[ERROR] [STAGE:staging] [CODE:E_TEST] [LOC:/a/b] something failed | a=one b=2`, line)
}

func TestFormat_EscapesNewlinesInMessage(t *testing.T) {
	line := Format(LevelInfo, "staging", "I_TEST", "/a", "line one\nline two", nil)
	assert.NotContains(t, line, "\n")
	assert.Contains(t, line, `line one\nline two`)
}

func TestFormat_OmitsPipeDetailsWhenNoDetailsGiven(t *testing.T) {
	line := Format(LevelWarn, "staging", "W_TEST", "/a", "hello", nil)
	assert.Equal(t, `[WARN] [STAGE:staging] [CODE:W_TEST] [LOC:/a] hello |`, line)
}

func TestExtractCode_FindsCodeMarker(t *testing.T) {
	line := Format(LevelInfo, "staging", "I_GATEKEEPER_PASS", "/a", "ok", nil)

	code, ok := ExtractCode(line)
	require.True(t, ok)
	assert.Equal(t, "I_GATEKEEPER_PASS", code)
}

func TestExtractCode_ReturnsFalseWhenMarkerAbsent(t *testing.T) {
	_, ok := ExtractCode("no markers here")
	assert.False(t, ok)
}

func TestFormat_EncodesCompositeDetailValuesAsCanonicalJSON(t *testing.T) {
	line := Format(LevelInfo, "staging", "I_TEST", "/a", "ok", map[string]any{
		"list": []any{"x", "y"},
	})
	assert.Contains(t, line, `list=`)
}
