package settings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStringRoundTrip(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.SetString("name", "brewery-1"))
	v, err := s.GetString("name")
	require.NoError(t, err)
	assert.Equal(t, "brewery-1", v)
}

func TestMissingKeyIsNotFound(t *testing.T) {
	s := openTemp(t)
	_, err := s.GetString("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLargeValueFallsBackToBlob(t *testing.T) {
	s := openTemp(t)
	big := strings.Repeat("x", blobThreshold+100)
	require.NoError(t, s.SetString("big", big))
	v, err := s.GetString("big")
	require.NoError(t, err)
	assert.Equal(t, big, v)
}

func TestScalarHelpers(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.SetInt("count", 42))
	assert.Equal(t, 42, s.GetInt("count", -1))
	assert.Equal(t, -1, s.GetInt("missing", -1))

	require.NoError(t, s.SetFloat("kp", 2.5))
	assert.InDelta(t, 2.5, s.GetFloat("kp", 0), 1e-9)

	require.NoError(t, s.SetBool("enabled", true))
	assert.True(t, s.GetBool("enabled", false))
}

func TestGetIntWritesBackDefaultWhenAbsent(t *testing.T) {
	s := openTemp(t)
	assert.Equal(t, 60, s.GetInt("pidLoopTime", 60))

	v, err := s.GetString("pidLoopTime")
	require.NoError(t, err)
	assert.Equal(t, "60", v)
}

type sampleRecord struct {
	Names []string
	Count int
}

func TestRecordRoundTrip(t *testing.T) {
	s := openTemp(t)
	rec := sampleRecord{Names: []string{"a", "b"}, Count: 2}
	require.NoError(t, s.SetRecord("sensors", rec))

	var out sampleRecord
	require.NoError(t, s.GetRecord("sensors", &out))
	assert.Equal(t, rec, out)
}

func TestFactoryResetClearsAllKeys(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.SetString("k", "v"))
	require.NoError(t, s.FactoryReset())
	_, err := s.GetString("k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.SetString("k", "v"))
	require.NoError(t, s.Delete("k"))
	_, err := s.GetString("k")
	assert.ErrorIs(t, err, ErrNotFound)
}
