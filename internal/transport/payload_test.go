package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecordPayloadSingle(t *testing.T) {
	p, err := DecodeRecordPayload([]byte(`  {"id":2,"name":"Song B"}`))
	require.NoError(t, err)

	r, ok := p.Record()
	require.True(t, ok)
	assert.Equal(t, "2", r.ID)
	assert.Equal(t, "Song B", r.Name)
}

func TestDecodeRecordPayloadMany(t *testing.T) {
	p, err := DecodeRecordPayload([]byte(`[{"id":"a","name":"A"},{"id":"b","name":"B"}]`))
	require.NoError(t, err)

	assert.False(t, p.IsSingle())
	records := p.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
}

func TestDecodeRecordPayloadRejectsGarbage(t *testing.T) {
	for _, body := range []string{"", "   ", `"success"`, `{"id":`} {
		_, err := DecodeRecordPayload([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestDecodeCollection(t *testing.T) {
	c, err := DecodeCollection([]byte(`null`))
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Empty(t, c)

	c, err = DecodeCollection([]byte(`[{"id":1,"name":"Song A"}]`))
	require.NoError(t, err)
	require.Len(t, c, 1)
	assert.Equal(t, "1", c[0].ID)

	_, err = DecodeCollection([]byte(`{"id":1}`))
	assert.Error(t, err)
}
