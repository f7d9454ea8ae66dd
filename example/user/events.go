package main

import (
	"encoding/json"

	escore "github.com/corvusdb/escore"
)

// Event types this example declares on its store, matching spec.md §8
// scenario 1's stream build-up: a user is created, then renamed, then
// given an email.
const (
	eventUserCreated  = "user:created"
	eventUserNameSet  = "user:name-set"
	eventUserEmailSet = "user:email-set"
)

func rawSchema(s string) json.RawMessage {
	return json.RawMessage(s)
}

// schemas returns the event schema set for this example's declared
// union, loaded the way a real deployment would load §6 schema files.
func schemas() []escore.SchemaFile {
	var files []escore.SchemaFile

	created := escore.SchemaFile{}
	created.Event.Type = eventUserCreated
	created.Event.Data = rawSchema(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"email": {"type": "string", "minLength": 1}
		},
		"required": ["name", "email"]
	}`)
	files = append(files, created)

	nameSet := escore.SchemaFile{}
	nameSet.Event.Type = eventUserNameSet
	nameSet.Event.Data = rawSchema(`{
		"type": "object",
		"properties": {"name": {"type": "string", "minLength": 1}},
		"required": ["name"]
	}`)
	files = append(files, nameSet)

	emailSet := escore.SchemaFile{}
	emailSet.Event.Type = eventUserEmailSet
	emailSet.Event.Data = rawSchema(`{
		"type": "object",
		"properties": {"email": {"type": "string", "minLength": 1}},
		"required": ["email"]
	}`)
	files = append(files, emailSet)

	return files
}

func declaredTypes() []string {
	return []string{eventUserCreated, eventUserNameSet, eventUserEmailSet}
}
