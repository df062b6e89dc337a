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
	"bytes"
	"encoding/json"
	"slices"
)

// Entry is a live element of a list, together with the event that last touched it.
type Entry struct {
	Key     string
	Value   json.RawMessage
	PrevKey *string
	Type    EventType
}

// State is the ordered set of live entries of a list.
//
// The zero State is an empty list. A State is never modified in place: Reduce returns a new
// State, so earlier states and snapshots remain valid.
type State struct {
	entries []Entry
}

// Len returns the number of live entries.
func (s State) Len() int {
	return len(s.entries)
}

// Reduce applies ev to s and returns the resulting state.
//
// Added inserts the element after PrevKey, or overwrites its payload in place when the key is
// already present. Changed replaces the payload in place. Removed deletes the element. Moved
// reinserts the element after PrevKey; a Moved event whose PrevKey is its own key keeps the
// element where it is. Changed, Removed and Moved events for unknown keys leave the state
// unchanged. A PrevKey that does not match any live key places the element last.
//
// Reduce returns an *EventError if ev is malformed.
func Reduce(s State, ev ChildEvent) (State, error) {
	if err := ev.validate(); err != nil {
		return s, err
	}

	pos := s.indexOf(ev.Key)
	entry := Entry{Key: ev.Key, Value: ev.Value, PrevKey: ev.PrevKey, Type: ev.Type}

	switch ev.Type {
	case Added:
		entries := slices.Clone(s.entries)
		if pos >= 0 {
			entries[pos] = entry
		} else {
			entries = slices.Insert(entries, positionAfter(entries, ev.PrevKey), entry)
		}
		return State{entries: entries}, nil

	case Changed:
		if pos < 0 {
			return s, nil
		}
		entries := slices.Clone(s.entries)
		entry.PrevKey = entries[pos].PrevKey
		entries[pos] = entry
		return State{entries: entries}, nil

	case Removed:
		if pos < 0 {
			return s, nil
		}
		return State{entries: slices.Delete(slices.Clone(s.entries), pos, pos+1)}, nil

	case Moved:
		if pos < 0 {
			return s, nil
		}
		if len(entry.Value) == 0 {
			entry.Value = s.entries[pos].Value
		}
		if ev.PrevKey != nil && *ev.PrevKey == ev.Key {
			entries := slices.Clone(s.entries)
			entry.PrevKey = entries[pos].PrevKey
			entries[pos] = entry
			return State{entries: entries}, nil
		}
		entries := slices.Delete(slices.Clone(s.entries), pos, pos+1)
		entries = slices.Insert(entries, positionAfter(entries, ev.PrevKey), entry)
		return State{entries: entries}, nil
	}

	// unreachable: validate rejects unknown types
	return s, nil
}

func (s State) indexOf(key string) int {
	return indexOf(s.entries, key)
}

func indexOf(entries []Entry, key string) int {
	return slices.IndexFunc(entries, func(e Entry) bool {
		return e.Key == key
	})
}

func positionAfter(entries []Entry, prevKey *string) int {
	if prevKey == nil {
		return 0
	}
	if i := indexOf(entries, *prevKey); i >= 0 {
		return i + 1
	}
	return len(entries)
}

// Project returns the materialized snapshot of s.
func Project(s State) Snapshot {
	return Snapshot(slices.Clone(s.entries))
}

// Snapshot is the fully materialized, ordered list of live entries at a point in time.
type Snapshot []Entry

// Keys returns the keys of the snapshot entries, in order.
func (s Snapshot) Keys() []string {
	keys := make([]string, len(s))
	for i, e := range s {
		keys[i] = e.Key
	}
	return keys
}

// Values returns the JSON-encoded payloads of the snapshot entries, in order.
func (s Snapshot) Values() []json.RawMessage {
	values := make([]json.RawMessage, len(s))
	for i, e := range s {
		values[i] = e.Value
	}
	return values
}

// MarshalJSON encodes the snapshot as a JSON array of payloads.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(e.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(e.Value)
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Unmarshal decodes the payloads of the snapshot into the slice pointed to by v.
func (s Snapshot) Unmarshal(v interface{}) error {
	b, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
