package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/McElyea/orket-kernel/internal/canon"
)

func TestPut_ThenGetRoundTrips(t *testing.T) {
	s := New(t.TempDir())

	err := s.Put("abcd", []byte("hello"))
	require.NoError(t, err)

	data, err := s.Get("abcd")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestPut_IsIdempotentForExistingDigest(t *testing.T) {
	s := New(t.TempDir())

	require.NoError(t, s.Put("abcd", []byte("first")))
	require.NoError(t, s.Put("abcd", []byte("second")))

	data, err := s.Get("abcd")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}

func TestGet_AbsentDigestReturnsNilWithoutError(t *testing.T) {
	s := New(t.TempDir())

	data, err := s.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestPutValue_ThenGetValueRoundTrips(t *testing.T) {
	s := New(t.TempDir())
	v, err := canon.ParseJSON([]byte(`{"a":1,"b":"two"}`))
	require.NoError(t, err)

	digest, err := s.PutValue(v)
	require.NoError(t, err)
	assert.NotEmpty(t, digest)

	got, ok, err := s.GetValue(digest)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, canon.CanonicalBytes(v), canon.CanonicalBytes(got))
}

func TestGetValue_AbsentDigestReturnsNotOK(t *testing.T) {
	s := New(t.TempDir())

	_, ok, err := s.GetValue("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutValue_SameContentProducesSameDigest(t *testing.T) {
	s := New(t.TempDir())
	a, err := canon.ParseJSON([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	b, err := canon.ParseJSON([]byte(`{"b":2,"a":1}`))
	require.NoError(t, err)

	da, err := s.PutValue(a)
	require.NoError(t, err)
	db, err := s.PutValue(b)
	require.NoError(t, err)

	assert.Equal(t, da, db)
}
