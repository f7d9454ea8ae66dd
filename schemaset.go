package escore

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaFile mirrors one JSON event-schema document from the code-gen
// collaborator (spec.md §6): {event: {type, data?, meta?}, definitions?}.
// data/meta are raw JSON Schema Draft-04 documents; definitions are
// shared sub-schemas resolved across every file in a SchemaSet.
type SchemaFile struct {
	Event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
		Meta json.RawMessage `json:"meta,omitempty"`
	} `json:"event"`
	Definitions json.RawMessage `json:"definitions,omitempty"`
}

// LoadSchemaSet compiles a set of event schema files into a
// ValidatorRegistry. definitions are resolved across all files sharing
// one compiler instance; a definition key present in more than one file
// is a fatal configuration error, per spec.md §6.
func LoadSchemaSet(files []SchemaFile) (*ValidatorRegistry, error) {
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft4)

	seenDefinitions := make(map[string]string) // definition key -> owning event type

	for i, f := range files {
		if f.Event.Type == "" {
			return nil, fmt.Errorf("escore: schema file %d has no event.type", i)
		}

		if len(f.Definitions) > 0 {
			var defs map[string]json.RawMessage
			if err := json.Unmarshal(f.Definitions, &defs); err != nil {
				return nil, fmt.Errorf("escore: %s: invalid definitions: %w", f.Event.Type, err)
			}
			for key, raw := range defs {
				if owner, dup := seenDefinitions[key]; dup {
					return nil, fmt.Errorf("escore: duplicate definition %q (declared by %s and %s)", key, owner, f.Event.Type)
				}
				seenDefinitions[key] = f.Event.Type

				var doc any
				if err := json.Unmarshal(raw, &doc); err != nil {
					return nil, fmt.Errorf("escore: %s: invalid definition %q: %w", f.Event.Type, key, err)
				}
				if err := compiler.AddResource("definitions/"+key, doc); err != nil {
					return nil, fmt.Errorf("escore: %s: could not add definition %q: %w", f.Event.Type, key, err)
				}
			}
		}

		if len(f.Event.Data) > 0 {
			if err := addSchemaResource(compiler, f.Event.Type+"#data", f.Event.Data); err != nil {
				return nil, err
			}
		}
		if len(f.Event.Meta) > 0 {
			if err := addSchemaResource(compiler, f.Event.Type+"#meta", f.Event.Meta); err != nil {
				return nil, err
			}
		}
	}

	registry := NewValidatorRegistry()
	for _, f := range files {
		var dataSchema, metaSchema *jsonschema.Schema
		var err error
		if len(f.Event.Data) > 0 {
			if dataSchema, err = compiler.Compile(f.Event.Type + "#data"); err != nil {
				return nil, fmt.Errorf("escore: %s: could not compile data schema: %w", f.Event.Type, err)
			}
		}
		if len(f.Event.Meta) > 0 {
			if metaSchema, err = compiler.Compile(f.Event.Type + "#meta"); err != nil {
				return nil, fmt.Errorf("escore: %s: could not compile meta schema: %w", f.Event.Type, err)
			}
		}
		registry.Register(f.Event.Type, dataSchema, metaSchema)
	}

	return registry, nil
}

func addSchemaResource(compiler *jsonschema.Compiler, id string, raw json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("escore: invalid schema for %s: %w", id, err)
	}
	if err := compiler.AddResource(id, doc); err != nil {
		return fmt.Errorf("escore: could not add schema resource %s: %w", id, err)
	}
	return nil
}
