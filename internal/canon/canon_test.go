package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalBytes_KeyOrderInsensitive(t *testing.T) {
	a := Object(map[string]Value{"b": Int(2), "a": Int(1)})
	b := Object(map[string]Value{"a": Int(1), "b": Int(2)})

	assert.Equal(t, CanonicalBytes(a), CanonicalBytes(b))
}

func TestCanonicalBytes_StripsNonSemanticKeys(t *testing.T) {
	withTimestamp := Object(map[string]Value{
		"run_id":    String("run-1"),
		"timestamp": String("2026-07-29T00:00:00Z"),
		"value":     Int(1),
	})
	without := Object(map[string]Value{"value": Int(1)})

	assert.Equal(t, CanonicalBytes(without), CanonicalBytes(withTimestamp))
}

func TestCanonicalBytes_SortsUnorderedListKeys(t *testing.T) {
	a := Object(map[string]Value{
		"refs": Array([]Value{String("b"), String("a")}),
	})
	b := Object(map[string]Value{
		"refs": Array([]Value{String("a"), String("b")}),
	})

	assert.Equal(t, CanonicalBytes(a), CanonicalBytes(b))
}

func TestCanonicalBytes_PreservesOrderedListOrder(t *testing.T) {
	a := Object(map[string]Value{
		"items": Array([]Value{String("b"), String("a")}),
	})
	b := Object(map[string]Value{
		"items": Array([]Value{String("a"), String("b")}),
	})

	assert.NotEqual(t, CanonicalBytes(a), CanonicalBytes(b))
}

func TestCanonicalBytes_NormalizesNewlines(t *testing.T) {
	crlf := String("line1\r\nline2")
	lf := String("line1\nline2")

	assert.Equal(t, CanonicalBytes(lf), CanonicalBytes(crlf))
}

func TestDigestOf_IsDeterministic(t *testing.T) {
	v := Object(map[string]Value{"a": Int(1), "b": Array([]Value{String("x"), String("y")})})

	d1 := DigestOf(v)
	d2 := DigestOf(v)

	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}

func TestParseJSON_RejectsFloats(t *testing.T) {
	_, err := ParseJSON([]byte(`{"x": 1.5}`))
	require.Error(t, err)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
}

func TestParseJSON_RejectsOutOfRangeInteger(t *testing.T) {
	_, err := ParseJSON([]byte(`{"x": 9007199254740993}`))
	require.Error(t, err)
}

func TestParseJSON_RejectsTrailingData(t *testing.T) {
	_, err := ParseJSON([]byte(`{"x": 1} {"y": 2}`))
	require.Error(t, err)
}

func TestParseJSON_RoundTripsObjects(t *testing.T) {
	v, err := ParseJSON([]byte(`{"a": 1, "b": ["x", "y"], "c": null, "d": true}`))
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())

	field, ok := v.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), field.IntValue())

	list, ok := v.Get("b")
	require.True(t, ok)
	require.Len(t, list.Items(), 2)
	assert.Equal(t, "x", list.Items()[0].StringValue())
}

func TestIsRefObject(t *testing.T) {
	ref := Object(map[string]Value{"type": String("triplet"), "id": String("abc")})
	notRef := Object(map[string]Value{"type": String("triplet")})

	assert.True(t, ref.IsRefObject())
	assert.False(t, notRef.IsRefObject())
	assert.False(t, Int(1).IsRefObject())
}

func TestFromGo_FallsBackToNullForUnsupportedTypes(t *testing.T) {
	type opaque struct{ X int }

	assert.Equal(t, KindNull, FromGo(opaque{X: 1}).Kind())
	assert.Equal(t, KindString, FromGo("x").Kind())
	assert.Equal(t, KindInt, FromGo(5).Kind())
}
