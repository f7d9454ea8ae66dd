package escore

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// createdLayout is a fixed-width, UTC, sub-millisecond-precision layout.
// Fixed width is what makes Created lexicographically sortable: every
// formatted value has exactly the same number of characters.
const createdLayout = "2006-01-02T15:04:05.000000000Z"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newID returns a new time-ordered, collision-resistant event id.
// ulid.Monotonic is not safe for concurrent use on its own; entropyMu
// serializes access the way the teacher guards its in-memory store.
func newID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// FormatCreated renders t as a Created cursor: UTC, fixed-width,
// lexicographically sortable alongside every other Created value.
func FormatCreated(t time.Time) string {
	return t.UTC().Format(createdLayout)
}

// ParseCreated parses a Created cursor back into a time.Time.
func ParseCreated(s string) (time.Time, error) {
	t, err := time.Parse(createdLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("escore: invalid created cursor %q: %w", s, err)
	}
	return t, nil
}

// bumpCreated advances a Created cursor by the smallest representable
// delta (one nanosecond), used by the (stream, created) conflict retry
// in Store.pushEvent.
func bumpCreated(s string) (string, error) {
	t, err := ParseCreated(s)
	if err != nil {
		return "", err
	}
	return FormatCreated(t.Add(time.Nanosecond)), nil
}

// EventRecord is the canonical, immutable unit of the event log (spec §3).
type EventRecord struct {
	ID       string
	Stream   string
	Type     string
	Data     map[string]any
	Meta     map[string]any
	Created  string
	Recorded string
}

// NewEventInput is the caller-supplied shape consumed by NewEvent.
type NewEventInput struct {
	Type   string
	Stream string // optional; defaults to a fresh unique id
	Data   map[string]any
	Meta   map[string]any
}

// NewEvent builds a canonical EventRecord from caller input.
//
// It is a pure function: no I/O, no validation. It populates ID (a new
// time-ordered ULID), Created (the current wall-clock time; calls within
// the same clock tick get the same value, and Created is not forced to
// increase across calls), and sets
// Recorded = Created — the store overwrites Recorded at insert time if
// server-side acceptance happens later than construction.
func NewEvent(input NewEventInput) EventRecord {
	now := time.Now()
	created := FormatCreated(now)

	stream := input.Stream
	if stream == "" {
		stream = uuid.NewString()
	}

	return EventRecord{
		ID:       newID(now),
		Stream:   stream,
		Type:     input.Type,
		Data:     input.Data,
		Meta:     input.Meta,
		Created:  created,
		Recorded: created,
	}
}

// DecodeData remarshals rec.Data into a concrete type, for callers that
// want a typed view of an otherwise schema-validated generic payload.
// Mirrors the teacher's JSONCodec generic helper, generalized from a
// byte-oriented codec to a map[string]any-oriented one since payloads
// are already decoded JSON by the time a handler sees them.
func DecodeData[T any](data map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("escore: could not remarshal data: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("escore: could not decode data: %w", err)
	}
	return out, nil
}

// MergeMeta combines several meta maps into one new map, later maps
// taking precedence over earlier ones. It is safe to call with a nil
// entry anywhere in ms. Mirrors the teacher's Metadata.Merge, adapted
// from a dedicated Metadata type to plain map[string]any since
// EventRecord.Meta (spec.md §3) is that type directly rather than a
// named wrapper.
func MergeMeta(ms ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range ms {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
