package escore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	escore "github.com/corvusdb/escore"
)

func TestValidatorRegistryHasValidator(t *testing.T) {
	registry := escore.NewValidatorRegistry()
	assert.False(t, registry.HasValidator("user:created"))

	file := escore.SchemaFile{}
	file.Event.Type = "user:created"
	file.Event.Data = []byte(`{"type": "object"}`)
	loaded, err := escore.LoadSchemaSet([]escore.SchemaFile{file})
	assert.NoError(t, err)
	assert.True(t, loaded.HasValidator("user:created"))
	assert.False(t, loaded.HasValidator("user:name-set"))
}

func TestValidatorRegistryAllowsEmptyPayloadWithNoSchema(t *testing.T) {
	registry := escore.NewValidatorRegistry()
	err := registry.Validate(escore.EventRecord{Type: "user:created"})
	assert.NoError(t, err)
}
