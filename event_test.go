package escore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	escore "github.com/corvusdb/escore"
)

func TestNewEventDefaults(t *testing.T) {
	record := escore.NewEvent(escore.NewEventInput{Type: "user:created"})

	assert.NotEmpty(t, record.ID)
	assert.NotEmpty(t, record.Stream)
	assert.Equal(t, "user:created", record.Type)
	assert.Equal(t, record.Created, record.Recorded)
}

func TestNewEventKeepsExplicitStream(t *testing.T) {
	record := escore.NewEvent(escore.NewEventInput{Type: "user:created", Stream: "user:42"})
	assert.Equal(t, "user:42", record.Stream)
}

func TestFormatCreatedIsLexicographicallySortable(t *testing.T) {
	earlier := escore.FormatCreated(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	later := escore.FormatCreated(time.Date(2026, 1, 1, 0, 0, 0, 1, time.UTC))
	assert.Less(t, earlier, later)

	parsed, err := escore.ParseCreated(later)
	require.NoError(t, err)
	assert.Equal(t, 1, parsed.Nanosecond())
}

func TestDecodeData(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	out, err := escore.DecodeData[payload](map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada", out.Name)
}

func TestMergeMeta(t *testing.T) {
	base := map[string]any{"tenant_id": "t1", "user_id": "u1"}
	override := map[string]any{"user_id": "u2", "trace_id": "tr1"}

	merged := escore.MergeMeta(base, override)
	assert.Equal(t, map[string]any{"tenant_id": "t1", "user_id": "u2", "trace_id": "tr1"}, merged)

	assert.Empty(t, escore.MergeMeta(nil, nil))
}
