// Copyright 2026 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package list

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies the kind of mutation reported by a ChildEvent.
type EventType string

// Child event types reported by a live query.
const (
	Added   EventType = "child_added"
	Changed EventType = "child_changed"
	Removed EventType = "child_removed"
	Moved   EventType = "child_moved"
)

// AllEventTypes returns every child event type, in the order a live query reports them.
func AllEventTypes() []EventType {
	return []EventType{Added, Removed, Changed, Moved}
}

var shortNames = map[string]EventType{
	"added":   Added,
	"changed": Changed,
	"removed": Removed,
	"moved":   Moved,
}

// ParseEventType converts s into an EventType.
//
// Both the wire names (child_added) and the short names (added) are accepted.
func ParseEventType(s string) (EventType, error) {
	if t, ok := shortNames[s]; ok {
		return t, nil
	}
	t := EventType(s)
	if !t.valid() {
		return "", fmt.Errorf("unknown child event type: %q", s)
	}
	return t, nil
}

func (t EventType) valid() bool {
	switch t {
	case Added, Changed, Removed, Moved:
		return true
	}
	return false
}

// UnmarshalJSON accepts both the wire names and the short names of event types.
//
// Unknown names are retained as-is so that the reducer can reject the event with a descriptive
// error instead of failing at decode time.
func (t *EventType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if st, ok := shortNames[s]; ok {
		*t = st
	} else {
		*t = EventType(s)
	}
	return nil
}

// ChildEvent describes a single mutation to one element of a live, ordered, keyed collection.
type ChildEvent struct {
	Type EventType `json:"type"`
	Key  string    `json:"key"`

	// Value is the JSON-encoded payload of the element. It is absent for Removed events.
	Value json.RawMessage `json:"value,omitempty"`

	// PrevKey is the key of the element this one now follows. A nil PrevKey places the element
	// first.
	PrevKey *string `json:"previousKey,omitempty"`
}

// Unmarshal decodes the payload of the event into the value pointed to by v.
func (e ChildEvent) Unmarshal(v interface{}) error {
	return json.Unmarshal(e.Value, v)
}

func (e ChildEvent) validate() error {
	if !e.Type.valid() {
		return &EventError{Event: e, Reason: fmt.Sprintf("unknown event type %q", e.Type)}
	}
	if e.Key == "" {
		return &EventError{Event: e, Reason: "missing key"}
	}
	if (e.Type == Added || e.Type == Changed) && len(e.Value) == 0 {
		return &EventError{Event: e, Reason: "missing value"}
	}
	return nil
}

// ErrInvalidEventTypes is returned when a list stream is configured with an empty or invalid set
// of event types.
var ErrInvalidEventTypes = errors.New("invalid event types")

// EventError reports a malformed ChildEvent. It terminates the stream that received it.
type EventError struct {
	Event  ChildEvent
	Reason string
}

func (e *EventError) Error() string {
	return fmt.Sprintf("malformed child event (type: %q, key: %q): %s", e.Event.Type, e.Event.Key, e.Reason)
}

// String returns a pointer to s. It is a convenience for populating ChildEvent.PrevKey.
func String(s string) *string {
	return &s
}
