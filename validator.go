package escore

import (
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidatorRegistry holds the per-event-type data/meta schema
// validators (spec.md §4.2). It is built once, at store construction,
// from compiled *jsonschema.Schema values — typically produced by
// LoadSchemaSet from the §6 event-schema JSON files.
type ValidatorRegistry struct {
	data map[string]*jsonschema.Schema
	meta map[string]*jsonschema.Schema
}

// NewValidatorRegistry returns an empty registry; use Register to
// populate it, or build one via LoadSchemaSet.
func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{
		data: make(map[string]*jsonschema.Schema),
		meta: make(map[string]*jsonschema.Schema),
	}
}

// Register associates compiled schemas with an event type. Either
// schema may be nil, meaning "no constraints" for that half of the
// record (an empty data or meta payload is always valid in that case).
func (r *ValidatorRegistry) Register(eventType string, data, meta *jsonschema.Schema) {
	if data != nil {
		r.data[eventType] = data
	}
	if meta != nil {
		r.meta[eventType] = meta
	}
}

// HasValidator reports whether a data or meta schema is registered for
// eventType. Used at store construction to enforce spec.md §4.2's
// "missing validator for a known type is a configuration fault".
func (r *ValidatorRegistry) HasValidator(eventType string) bool {
	_, hasData := r.data[eventType]
	_, hasMeta := r.meta[eventType]
	return hasData || hasMeta
}

// Validate checks record.Data and record.Meta against the schemas
// registered for record.Type. It assumes the caller has already
// confirmed record.Type is a declared event (Store.HasEvent);
// Validate itself only ever returns *ValidationError.
func (r *ValidatorRegistry) Validate(record EventRecord) error {
	if schema, ok := r.data[record.Type]; ok {
		if err := schema.Validate(toInstance(record.Data)); err != nil {
			return newValidationError(record.Type, err)
		}
	}
	if schema, ok := r.meta[record.Type]; ok {
		if err := schema.Validate(toInstance(record.Meta)); err != nil {
			return newValidationError(record.Type, err)
		}
	}
	return nil
}

// toInstance turns a possibly-nil map into the value jsonschema expects
// to validate: an empty object rather than a nil interface, so that a
// schema requiring "type: object" does not spuriously fail on an
// absent-but-optional payload (spec.md §3: "data/meta may be empty").
func toInstance(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func newValidationError(eventType string, err error) *ValidationError {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		return &ValidationError{
			Type:    eventType,
			Path:    strings.Join(ve.InstanceLocation, "/"),
			Message: ve.Message,
		}
	}
	return &ValidationError{Type: eventType, Message: err.Error()}
}
