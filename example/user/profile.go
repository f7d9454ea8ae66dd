package main

import (
	"context"
	"sync"

	escore "github.com/corvusdb/escore"
)

// UserProfile is the derived read-model this example builds from a
// user stream: the current name and email, last-write-wins per field.
type UserProfile struct {
	Stream string
	Name   string
	Email  string
}

// ProfileIndex holds one UserProfile per stream, kept current by a
// Projector "on" handler registered for each of the three declared
// event types. It stands in for the kind of read-model a real service
// would keep in a cache or a secondary table.
type ProfileIndex struct {
	mu       sync.RWMutex
	profiles map[string]UserProfile
}

func NewProfileIndex() *ProfileIndex {
	return &ProfileIndex{profiles: make(map[string]UserProfile)}
}

func (p *ProfileIndex) Get(stream string) (UserProfile, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	profile, ok := p.profiles[stream]
	return profile, ok
}

func (p *ProfileIndex) apply(record escore.EventRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	profile := p.profiles[record.Stream]
	profile.Stream = record.Stream
	switch record.Type {
	case eventUserCreated:
		profile.Name, _ = record.Data["name"].(string)
		profile.Email, _ = record.Data["email"].(string)
	case eventUserNameSet:
		profile.Name, _ = record.Data["name"].(string)
	case eventUserEmailSet:
		profile.Email, _ = record.Data["email"].(string)
	}
	p.profiles[record.Stream] = profile
}

// register wires the index into store's projector. Each handler runs
// for both freshly authored and replayed records (Projector.On), so
// the same code path builds the index live and rebuilds it via Replay.
func (p *ProfileIndex) register(projector *escore.Projector) {
	handler := func(_ context.Context, record escore.EventRecord) error {
		p.apply(record)
		return nil
	}
	projector.On(eventUserCreated, handler)
	projector.On(eventUserNameSet, handler)
	projector.On(eventUserEmailSet, handler)
}

// profileReducer folds a user stream's events into a UserProfile the
// same way ProfileIndex does, but through the Reducer/Reduce engine
// instead of the projector — grounded in spec.md §4.7's snapshot-
// resumable left-fold rather than §4.5's live dispatch.
func profileReducer() escore.Reducer[UserProfile] {
	return escore.Reducer[UserProfile]{
		Name: "user.profile",
		Kind: escore.ReducerStream,
		Fold: func(events []escore.EventRecord, state UserProfile) UserProfile {
			for _, record := range events {
				state.Stream = record.Stream
				switch record.Type {
				case eventUserCreated:
					state.Name, _ = record.Data["name"].(string)
					state.Email, _ = record.Data["email"].(string)
				case eventUserNameSet:
					state.Name, _ = record.Data["name"].(string)
				case eventUserEmailSet:
					state.Email, _ = record.Data["email"].(string)
				}
			}
			return state
		},
	}
}
