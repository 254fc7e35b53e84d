package blobcodec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRow() Row {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Row{
		Key:       "1",
		Version:   1,
		CreatedAt: ts,
		UpdatedAt: ts,
		Columns: map[string]any{
			"name": "Alice",
			"age":  float64(30),
		},
	}
}

func TestSerializeDeterministic(t *testing.T) {
	r1 := sampleRow()
	r2 := sampleRow()

	b1, err := Serialize(r1)
	require.NoError(t, err)
	b2, err := Serialize(r2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "byte-equal rows must serialize to byte-equal blobs")
}

func TestSerializeFieldOrder(t *testing.T) {
	b, err := Serialize(sampleRow())
	require.NoError(t, err)
	s := string(b)

	pkIdx := indexOf(s, `"_pk"`)
	versionIdx := indexOf(s, `"_version"`)
	createdIdx := indexOf(s, `"_created_at"`)
	updatedIdx := indexOf(s, `"_updated_at"`)
	ageIdx := indexOf(s, `"age"`)
	nameIdx := indexOf(s, `"name"`)

	assert.True(t, pkIdx < versionIdx)
	assert.True(t, versionIdx < createdIdx)
	assert.True(t, createdIdx < updatedIdx)
	assert.True(t, updatedIdx < ageIdx, "columns must come after metadata")
	assert.True(t, ageIdx < nameIdx, "columns must be lexicographically ordered")
	assert.Equal(t, byte('\n'), b[len(b)-1])
}

func TestRoundTrip(t *testing.T) {
	r := sampleRow()
	b, err := Serialize(r)
	require.NoError(t, err)

	got, err := Deserialize(b, r.Key)
	require.NoError(t, err)

	assert.Equal(t, r.Key, got.Key)
	assert.Equal(t, r.Version, got.Version)
	assert.True(t, r.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, r.Columns["name"], got.Columns["name"])
	assert.Equal(t, r.Columns["age"], got.Columns["age"])
}

func TestDeserializeKeyMismatch(t *testing.T) {
	r := sampleRow()
	b, err := Serialize(r)
	require.NoError(t, err)

	_, err = Deserialize(b, "not-1")
	require.Error(t, err)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
