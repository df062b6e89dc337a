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

// Package firestorelist reports the results of Cloud Firestore queries as child events, so that
// they can be materialized with the list package.
package firestorelist

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"cloud.google.com/go/firestore"
	"github.com/firebase/livelist-go/list"
)

// Option configures a Source returned by New.
type Option func(*source)

// WithIDField adds the ID of each document to its payload, under the given field name.
func WithIDField(name string) Option {
	return func(s *source) {
		s.idField = name
	}
}

type snapshotIterator interface {
	Next() (*firestore.QuerySnapshot, error)
	Stop()
}

type source struct {
	snapshots func(ctx context.Context) snapshotIterator
	idField   string
}

// New returns a list.Source over the results of q.
//
// Each subscription listens to q with Query.Snapshots. The first snapshot reports every document
// as an Added event in query order. Subsequent snapshots report the changed documents. The
// payload of each event is the document data encoded as JSON, with document references replaced
// by their paths.
func New(q firestore.Query, opts ...Option) list.Source {
	s := &source{
		snapshots: func(ctx context.Context) snapshotIterator {
			return q.Snapshots(ctx)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *source) Subscribe(ctx context.Context, types []list.EventType) (list.Subscription, error) {
	wanted := make(map[list.EventType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	return &subscription{
		it:      s.snapshots(ctx),
		tracker: &tracker{idField: s.idField},
		wanted:  wanted,
	}, nil
}

type subscription struct {
	it      snapshotIterator
	tracker *tracker
	wanted  map[list.EventType]bool
	pending []list.ChildEvent
	once    sync.Once
}

func (s *subscription) Next() (list.ChildEvent, error) {
	for len(s.pending) == 0 {
		snap, err := s.it.Next()
		if err != nil {
			return list.ChildEvent{}, err
		}

		changes := make([]change, len(snap.Changes))
		for i, dc := range snap.Changes {
			changes[i] = newChange(dc)
		}
		events, err := s.tracker.apply(changes)
		if err != nil {
			s.Close()
			return list.ChildEvent{}, err
		}
		for _, e := range events {
			if s.wanted[e.Type] {
				s.pending = append(s.pending, e)
			}
		}
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *subscription) Close() error {
	s.once.Do(s.it.Stop)
	return nil
}

type changeKind int

const (
	added changeKind = iota
	modified
	removed
)

// change is a single document change of a query snapshot.
type change struct {
	kind     changeKind
	id       string
	data     map[string]interface{}
	oldIndex int
	newIndex int
}

func newChange(dc firestore.DocumentChange) change {
	c := change{
		id:       dc.Doc.Ref.ID,
		data:     dc.Doc.Data(),
		oldIndex: dc.OldIndex,
		newIndex: dc.NewIndex,
	}
	switch dc.Kind {
	case firestore.DocumentAdded:
		c.kind = added
	case firestore.DocumentModified:
		c.kind = modified
	case firestore.DocumentRemoved:
		c.kind = removed
	}
	return c
}

// tracker follows the document IDs of a query result, in order.
type tracker struct {
	idField string
	keys    []string
}

// apply translates the changes of a snapshot into child events.
//
// Changes are applied one at a time. The indices of each change refer to the result after all
// prior changes of the same snapshot are applied.
func (t *tracker) apply(changes []change) ([]list.ChildEvent, error) {
	var events []list.ChildEvent
	for _, c := range changes {
		switch c.kind {
		case added:
			if c.newIndex < 0 || c.newIndex > len(t.keys) {
				return nil, fmt.Errorf("document %q added at invalid index %d", c.id, c.newIndex)
			}
			v, err := t.encode(c)
			if err != nil {
				return nil, err
			}
			events = append(events, list.ChildEvent{
				Type: list.Added, Key: c.id, Value: v, PrevKey: t.prevKey(c.newIndex),
			})
			t.keys = slices.Insert(t.keys, c.newIndex, c.id)

		case modified:
			if err := t.checkIndex(c, c.oldIndex); err != nil {
				return nil, err
			}
			v, err := t.encode(c)
			if err != nil {
				return nil, err
			}
			if c.oldIndex != c.newIndex {
				t.keys = slices.Delete(t.keys, c.oldIndex, c.oldIndex+1)
				if c.newIndex < 0 || c.newIndex > len(t.keys) {
					return nil, fmt.Errorf("document %q moved to invalid index %d", c.id, c.newIndex)
				}
				t.keys = slices.Insert(t.keys, c.newIndex, c.id)
				events = append(events, list.ChildEvent{
					Type: list.Moved, Key: c.id, Value: v, PrevKey: t.prevKey(c.newIndex),
				})
			}
			events = append(events, list.ChildEvent{
				Type: list.Changed, Key: c.id, Value: v, PrevKey: t.prevKey(c.newIndex),
			})

		case removed:
			if err := t.checkIndex(c, c.oldIndex); err != nil {
				return nil, err
			}
			t.keys = slices.Delete(t.keys, c.oldIndex, c.oldIndex+1)
			events = append(events, list.ChildEvent{Type: list.Removed, Key: c.id})
		}
	}
	return events, nil
}

func (t *tracker) checkIndex(c change, i int) error {
	if i < 0 || i >= len(t.keys) || t.keys[i] != c.id {
		return fmt.Errorf("document %q not found at index %d", c.id, i)
	}
	return nil
}

func (t *tracker) prevKey(i int) *string {
	if i == 0 {
		return nil
	}
	return list.String(t.keys[i-1])
}

func (t *tracker) encode(c change) (json.RawMessage, error) {
	data := make(map[string]interface{}, len(c.data)+1)
	for k, v := range c.data {
		data[k] = normalize(v)
	}
	if t.idField != "" {
		data[t.idField] = c.id
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document %q: %v", c.id, err)
	}
	return b, nil
}

// normalize replaces the values of a document that do not have a natural JSON form.
func normalize(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, e := range v {
			m[k] = normalize(e)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(v))
		for i, e := range v {
			s[i] = normalize(e)
		}
		return s
	case *firestore.DocumentRef:
		if v == nil {
			return nil
		}
		return v.Path
	}
	return v
}
