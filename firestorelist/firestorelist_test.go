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

package firestorelist

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/firebase/livelist-go/list"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/iterator"
)

func doc(id string, n int) map[string]interface{} {
	return map[string]interface{}{"n": int64(n)}
}

func describe(events []list.ChildEvent) []string {
	var out []string
	for _, ev := range events {
		s := fmt.Sprintf("%s %s", ev.Type, ev.Key)
		if ev.PrevKey != nil {
			s += " after " + *ev.PrevKey
		}
		if len(ev.Value) > 0 {
			s += " " + string(ev.Value)
		}
		out = append(out, s)
	}
	return out
}

func TestTrackerApply(t *testing.T) {
	tr := &tracker{}
	steps := []struct {
		Name    string
		Changes []change
		Want    []string
		Keys    []string
	}{
		{
			Name: "Initial",
			Changes: []change{
				{kind: added, id: "a", data: doc("a", 1), oldIndex: -1, newIndex: 0},
				{kind: added, id: "b", data: doc("b", 2), oldIndex: -1, newIndex: 1},
				{kind: added, id: "c", data: doc("c", 3), oldIndex: -1, newIndex: 2},
			},
			Want: []string{
				`child_added a {"n":1}`,
				`child_added b after a {"n":2}`,
				`child_added c after b {"n":3}`,
			},
			Keys: []string{"a", "b", "c"},
		},
		{
			Name: "ModifiedInPlace",
			Changes: []change{
				{kind: modified, id: "b", data: doc("b", 5), oldIndex: 1, newIndex: 1},
			},
			Want: []string{`child_changed b after a {"n":5}`},
			Keys: []string{"a", "b", "c"},
		},
		{
			Name: "ModifiedAndMoved",
			Changes: []change{
				{kind: modified, id: "a", data: doc("a", 9), oldIndex: 0, newIndex: 2},
			},
			Want: []string{
				`child_moved a after c {"n":9}`,
				`child_changed a after c {"n":9}`,
			},
			Keys: []string{"b", "c", "a"},
		},
		{
			Name: "RemovedThenAdded",
			Changes: []change{
				{kind: removed, id: "b", data: doc("b", 5), oldIndex: 0, newIndex: -1},
				{kind: added, id: "d", data: doc("d", 0), oldIndex: -1, newIndex: 0},
			},
			Want: []string{`child_removed b`, `child_added d {"n":0}`},
			Keys: []string{"d", "c", "a"},
		},
	}

	var s list.State
	for _, step := range steps {
		events, err := tr.apply(step.Changes)
		if err != nil {
			t.Fatalf("%s: apply() = %v", step.Name, err)
		}
		if diff := cmp.Diff(step.Want, describe(events)); diff != "" {
			t.Errorf("%s: apply() mismatch (-want +got):\n%s", step.Name, diff)
		}
		if diff := cmp.Diff(step.Keys, tr.keys); diff != "" {
			t.Errorf("%s: keys mismatch (-want +got):\n%s", step.Name, diff)
		}

		for _, ev := range events {
			if s, err = list.Reduce(s, ev); err != nil {
				t.Fatal(err)
			}
		}
		if diff := cmp.Diff(step.Keys, list.Project(s).Keys()); diff != "" {
			t.Errorf("%s: Reduce() keys mismatch (-want +got):\n%s", step.Name, diff)
		}
	}
}

func TestTrackerApplyInvalidIndex(t *testing.T) {
	cases := []struct {
		Name   string
		Change change
	}{
		{"AddedOutOfRange", change{kind: added, id: "x", newIndex: 5}},
		{"ModifiedUnknown", change{kind: modified, id: "x", oldIndex: 0, newIndex: 0}},
		{"ModifiedWrongIndex", change{kind: modified, id: "a", oldIndex: 1, newIndex: 1}},
		{"MovedOutOfRange", change{kind: modified, id: "a", oldIndex: 0, newIndex: 3}},
		{"RemovedUnknown", change{kind: removed, id: "x", oldIndex: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			tr := &tracker{keys: []string{"a", "b"}}
			if _, err := tr.apply([]change{tc.Change}); err == nil {
				t.Errorf("apply() = nil; want = error")
			}
		})
	}
}

func TestEncode(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ref := &firestore.DocumentRef{ID: "u1", Path: "projects/p/databases/(default)/documents/users/u1"}
	c := change{
		id: "doc1",
		data: map[string]interface{}{
			"owner":   ref,
			"created": ts,
			"tags":    []interface{}{"a", ref},
			"nested":  map[string]interface{}{"ref": ref, "n": 1.5},
			"none":    nil,
		},
	}

	tr := &tracker{idField: "id"}
	got, err := tr.encode(c)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"created":"2026-01-02T03:04:05Z","id":"doc1",` +
		`"nested":{"n":1.5,"ref":"projects/p/databases/(default)/documents/users/u1"},"none":null,` +
		`"owner":"projects/p/databases/(default)/documents/users/u1",` +
		`"tags":["a","projects/p/databases/(default)/documents/users/u1"]}`
	if string(got) != want {
		t.Errorf("encode() = %s; want = %s", got, want)
	}
}

type fakeIterator struct {
	snaps   []*firestore.QuerySnapshot
	stopped int
}

func (it *fakeIterator) Next() (*firestore.QuerySnapshot, error) {
	if it.stopped > 0 || len(it.snaps) == 0 {
		return nil, iterator.Done
	}
	s := it.snaps[0]
	it.snaps = it.snaps[1:]
	return s, nil
}

func (it *fakeIterator) Stop() {
	it.stopped++
}

func docChange(kind firestore.DocumentChangeKind, id string, oldIndex, newIndex int) firestore.DocumentChange {
	return firestore.DocumentChange{
		Kind:     kind,
		Doc:      &firestore.DocumentSnapshot{Ref: &firestore.DocumentRef{ID: id}},
		OldIndex: oldIndex,
		NewIndex: newIndex,
	}
}

func TestSource(t *testing.T) {
	it := &fakeIterator{
		snaps: []*firestore.QuerySnapshot{
			{Changes: []firestore.DocumentChange{
				docChange(firestore.DocumentAdded, "a", -1, 0),
				docChange(firestore.DocumentAdded, "b", -1, 1),
			}},
			{Changes: nil},
			{Changes: []firestore.DocumentChange{
				docChange(firestore.DocumentModified, "b", 1, 0),
			}},
			{Changes: []firestore.DocumentChange{
				docChange(firestore.DocumentRemoved, "a", 1, -1),
			}},
		},
	}
	src := &source{
		snapshots: func(ctx context.Context) snapshotIterator { return it },
		idField:   "id",
	}

	snaps, err := list.Changes(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	var got [][]string
	for {
		snap, err := snaps.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, snap.Keys())
	}

	want := [][]string{
		{"a"},
		{"a", "b"},
		{"b", "a"}, // moved
		{"b", "a"}, // changed
		{"b"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshots mismatch (-want +got):\n%s", diff)
	}
	if it.stopped != 1 {
		t.Errorf("Stop() calls = %d; want = 1", it.stopped)
	}
}

func TestSourceWithEvents(t *testing.T) {
	it := &fakeIterator{
		snaps: []*firestore.QuerySnapshot{
			{Changes: []firestore.DocumentChange{
				docChange(firestore.DocumentAdded, "a", -1, 0),
				docChange(firestore.DocumentAdded, "b", -1, 1),
				docChange(firestore.DocumentModified, "b", 1, 0),
			}},
		},
	}
	src := &source{snapshots: func(ctx context.Context) snapshotIterator { return it }}

	sub, err := src.Subscribe(context.Background(), []list.EventType{list.Added})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	var got []string
	for {
		ev, err := sub.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, fmt.Sprintf("%s %s", ev.Type, ev.Key))
	}
	want := []string{"child_added a", "child_added b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Next() mismatch (-want +got):\n%s", diff)
	}
}

func TestSourceInvalidChange(t *testing.T) {
	it := &fakeIterator{
		snaps: []*firestore.QuerySnapshot{
			{Changes: []firestore.DocumentChange{
				docChange(firestore.DocumentRemoved, "a", 0, -1),
			}},
		},
	}
	src := &source{snapshots: func(ctx context.Context) snapshotIterator { return it }}

	sub, err := src.Subscribe(context.Background(), list.AllEventTypes())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sub.Next(); err == nil {
		t.Errorf("Next() = nil; want = error")
	}
	sub.Close()
	if it.stopped != 1 {
		t.Errorf("Stop() calls = %d; want = 1", it.stopped)
	}
}

func TestWithIDField(t *testing.T) {
	s := New(firestore.Query{}, WithIDField("key")).(*source)
	if s.idField != "key" {
		t.Errorf("idField = %q; want = %q", s.idField, "key")
	}
	if s.snapshots == nil {
		t.Errorf("snapshots = nil; want = non-nil")
	}
}
