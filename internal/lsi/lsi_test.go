package lsi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/McElyea/orket-kernel/internal/canon"
	"github.com/McElyea/orket-kernel/internal/kernel/contracts"
)

func mustValue(t *testing.T, raw string) canon.Value {
	t.Helper()
	v, err := canon.ParseJSON([]byte(raw))
	require.NoError(t, err)
	return v
}

func TestStageTriplet_WritesRecordAndRefs(t *testing.T) {
	ix := New(t.TempDir())

	body := mustValue(t, `{"dto_type": "note"}`)
	links := mustValue(t, `{"parent": {"type": "note", "id": "p-1"}}`)
	manifest := mustValue(t, `{}`)

	result := ix.StageTriplet("run-1", "turn-0001", "notes/a", body, links, manifest)
	require.Equal(t, contracts.OutcomePass, result.Outcome)

	scopeRoot := ix.StagingRoot("run-1", "turn-0001")
	rec, ok, err := ReadTripletRecord(scopeRoot, "notes/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "notes/a", rec.Stem)
	assert.Equal(t, "note", rec.DTOType)
	assert.Equal(t, "turn-0001", rec.UpdatedAtTurn)

	refRec, ok, err := ReadRefRecord(scopeRoot, "note", "p-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, refRec.Sources, 1)
	assert.Equal(t, "notes/a", refRec.Sources[0].Stem)
}

func TestStageTriplet_RejectsNonObjectLinks(t *testing.T) {
	ix := New(t.TempDir())

	body := mustValue(t, `{}`)
	links := mustValue(t, `[1,2,3]`)
	manifest := mustValue(t, `{}`)

	result := ix.StageTriplet("run-1", "turn-0001", "notes/a", body, links, manifest)
	require.Equal(t, contracts.OutcomeFail, result.Outcome)
	require.NotEmpty(t, result.Issues)
}

func TestStageTriplet_RestagingRewritesOnlyRefsInNewLinks(t *testing.T) {
	ix := New(t.TempDir())
	body := mustValue(t, `{}`)
	manifest := mustValue(t, `{}`)

	first := mustValue(t, `{"parent": {"type": "note", "id": "p-1"}}`)
	ix.StageTriplet("run-1", "turn-0001", "notes/a", body, first, manifest)

	second := mustValue(t, `{"parent": {"type": "note", "id": "p-2"}}`)
	result := ix.StageTriplet("run-1", "turn-0001", "notes/a", body, second, manifest)
	require.Equal(t, contracts.OutcomePass, result.Outcome)

	scopeRoot := ix.StagingRoot("run-1", "turn-0001")
	// p-1 is absent from the new links, so its record is not rewritten and
	// keeps the source from the first staging.
	oldRef, ok, err := ReadRefRecord(scopeRoot, "note", "p-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, oldRef.Sources, 1)

	newRef, ok, err := ReadRefRecord(scopeRoot, "note", "p-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, newRef.Sources, 1)
}

func TestValidateLinksAgainstIndex_VisibleInSelfScope(t *testing.T) {
	ix := New(t.TempDir())
	body := mustValue(t, `{}`)
	manifest := mustValue(t, `{}`)

	parentLinks := mustValue(t, `{}`)
	ix.StageTriplet("run-1", "turn-0001", "notes/parent", body, parentLinks, manifest)
	// Register the parent's ref identity via its own stem-as-id convention
	// is out of scope here; instead validate a self-contained ref: a stem
	// referencing itself is visible because staging already holds its ref
	// record from the StageTriplet call immediately prior in this scope.
	childLinks := mustValue(t, `{"parent": {"type": "notes/parent", "id": "notes/parent"}}`)
	ix.StageTriplet("run-1", "turn-0001", "notes/parent", body, childLinks, manifest)

	result := ix.ValidateLinksAgainstIndex("run-1", "turn-0001", "notes/parent")
	assert.Equal(t, contracts.OutcomePass, result.Outcome)
}

func TestValidateLinksAgainstIndex_OrphanReferenceFails(t *testing.T) {
	ix := New(t.TempDir())
	body := mustValue(t, `{}`)
	manifest := mustValue(t, `{}`)
	links := mustValue(t, `{"missing": {"type": "note", "id": "does-not-exist"}}`)

	ix.StageTriplet("run-1", "turn-0001", "notes/a", body, links, manifest)
	result := ix.ValidateLinksAgainstIndex("run-1", "turn-0001", "notes/a")

	require.Equal(t, contracts.OutcomeFail, result.Outcome)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0].Location, "missing")
}

func TestValidateLinksAgainstIndex_MissingStagedTripletFails(t *testing.T) {
	ix := New(t.TempDir())
	result := ix.ValidateLinksAgainstIndex("run-1", "turn-0001", "notes/never-staged")
	require.Equal(t, contracts.OutcomeFail, result.Outcome)
}

func TestExtractRefs_WalksObjectsAndArrays(t *testing.T) {
	links := mustValue(t, `{"a": {"type": "x", "id": "1"}, "b": [{"type": "y", "id": "2"}, "plain"]}`)
	refs, err := ExtractRefs(links)
	require.NoError(t, err)
	require.Len(t, refs, 2)
}

func TestStageTombstone_WritesMarker(t *testing.T) {
	ix := New(t.TempDir())
	require.NoError(t, ix.StageTombstone("run-1", "turn-0001", "notes/a", "note", "a"))

	scopeRoot := ix.StagingRoot("run-1", "turn-0001")
	var ts Tombstone
	ok, err := ReadJSONFile(TombstonePath(scopeRoot, "notes/a"), &ts)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tombstone", ts.Kind)
	assert.Equal(t, "turn-0001", ts.DeletedByTurn)
}
