package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	escore "github.com/corvusdb/escore"
	"github.com/corvusdb/escore/stores/mem"
)

// This example walks through spec.md §8 scenario 1: a user stream is
// built up from three events, a projector keeps a derived read-model
// current as they're appended, and a second store with a fresh
// projector reproduces the same read-model purely by replaying the
// persisted stream. Swap mem.New() for postgres.New(pool) or
// sqlite.Open(path) (which also returns an error to check) to run the
// same walkthrough against either SQL backend; the rest of the file
// uses only the Events/Contexts/Snapshots fields all three expose.
func main() {
	ctx := context.Background()

	validators, err := escore.LoadSchemaSet(schemas())
	if err != nil {
		log.Fatalf("load schemas: %v", err)
	}

	backing := mem.New()
	index := NewProfileIndex()

	store := escore.New(backing.Events, backing.Contexts, backing.Snapshots, declaredTypes(), validators)
	index.register(store.Projector())

	userStream := "user:" + uuid.NewString()
	tenantMeta := map[string]any{"tenant_id": "t1"}
	requestMeta := escore.MergeMeta(tenantMeta, map[string]any{"user_id": "u1"})

	ids, err := store.AddEventSequence(ctx, []escore.NewEventInput{
		{Type: eventUserCreated, Stream: userStream, Data: map[string]any{"name": "Ada Lovelace", "email": "ada@example.com"}, Meta: requestMeta},
		{Type: eventUserNameSet, Stream: userStream, Data: map[string]any{"name": "Augusta Ada King"}, Meta: requestMeta},
		{Type: eventUserEmailSet, Stream: userStream, Data: map[string]any{"email": "ada.king@example.com"}, Meta: requestMeta},
	})
	if err != nil {
		log.Fatalf("append sequence: %v", err)
	}
	fmt.Printf("appended %d events to %s\n", len(ids), userStream)

	live, ok := index.Get(userStream)
	if !ok {
		log.Fatal("profile index has no entry for stream after append")
	}
	fmt.Printf("live projector profile: %+v\n", live)

	engine := store.ReducerEngine()
	folded, found, err := escore.Reduce(ctx, engine, userStream, profileReducer())
	if err != nil {
		log.Fatalf("reduce: %v", err)
	}
	if !found {
		log.Fatal("reducer found no events for stream")
	}
	fmt.Printf("reducer-engine profile: %+v\n", folded)

	// Rebuild the read-model from scratch against a second store that
	// has never seen these events, to show Replay reproduces the same
	// state a live append would have produced.
	replayIndex := NewProfileIndex()
	replayStore := escore.New(backing.Events, backing.Contexts, backing.Snapshots, declaredTypes(), validators)
	replayIndex.register(replayStore.Projector())

	if err := replayStore.ReplayStream(ctx, userStream, escore.GetOptions{}); err != nil {
		log.Fatalf("replay: %v", err)
	}

	replayed, ok := replayIndex.Get(userStream)
	if !ok {
		log.Fatal("profile index has no entry for stream after replay")
	}
	fmt.Printf("replayed profile:       %+v\n", replayed)

	if replayed != live {
		log.Fatal("replayed profile diverged from the live one")
	}
}
