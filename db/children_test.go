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

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/firebase/livelist-go/list"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/iterator"
)

func children(kv ...string) []child {
	var cs []child
	for i := 0; i < len(kv); i += 2 {
		cs = append(cs, newChild(kv[i], json.RawMessage(kv[i+1])))
	}
	return cs
}

func reduceAll(t *testing.T, s list.State, events []list.ChildEvent) list.State {
	t.Helper()
	for _, ev := range events {
		var err error
		if s, err = list.Reduce(s, ev); err != nil {
			t.Fatalf("Reduce(%v) = %v", ev, err)
		}
	}
	return s
}

func entries(s list.Snapshot) []string {
	var out []string
	for _, e := range s {
		out = append(out, fmt.Sprintf("%s=%s", e.Key, e.Value))
	}
	return out
}

func childEntries(cs []child) []string {
	var out []string
	for _, c := range cs {
		out = append(out, fmt.Sprintf("%s=%s", c.key, c.value))
	}
	return out
}

func describe(events []list.ChildEvent) []string {
	var out []string
	for _, ev := range events {
		s := fmt.Sprintf("%s %s", ev.Type, ev.Key)
		if ev.PrevKey != nil {
			s += " after " + *ev.PrevKey
		}
		out = append(out, s)
	}
	return out
}

func TestDiffChildren(t *testing.T) {
	cases := []struct {
		Name string
		Cur  []child
		Next []child
		Want []string
	}{
		{
			Name: "Initial",
			Next: children("a", "1", "b", "2"),
			Want: []string{"child_added a", "child_added b after a"},
		},
		{
			Name: "Unchanged",
			Cur:  children("a", "1", "b", "2"),
			Next: children("a", "1", "b", "2"),
		},
		{
			Name: "Removed",
			Cur:  children("a", "1", "b", "2", "c", "3"),
			Next: children("a", "1", "c", "3"),
			Want: []string{"child_removed b"},
		},
		{
			Name: "Cleared",
			Cur:  children("a", "1", "b", "2"),
			Want: []string{"child_removed a", "child_removed b"},
		},
		{
			Name: "AddedInMiddle",
			Cur:  children("a", "1", "c", "3"),
			Next: children("a", "1", "b", "2", "c", "3"),
			Want: []string{"child_added b after a"},
		},
		{
			Name: "AddedFirst",
			Cur:  children("b", "2"),
			Next: children("a", "1", "b", "2"),
			Want: []string{"child_added a"},
		},
		{
			Name: "Changed",
			Cur:  children("a", "1", "b", "2"),
			Next: children("a", "1", "b", "5"),
			Want: []string{"child_changed b after a"},
		},
		{
			Name: "MovedToFront",
			Cur:  children("a", "1", "b", "2", "c", "3"),
			Next: children("c", "0", "a", "1", "b", "2"),
			Want: []string{"child_moved c", "child_changed c"},
		},
		{
			Name: "MovedToBack",
			Cur:  children("a", "1", "b", "2", "c", "3"),
			Next: children("b", "2", "c", "3", "a", "9"),
			Want: []string{"child_moved b", "child_moved c after b", "child_changed a after c"},
		},
		{
			Name: "RemoveAddMove",
			Cur:  children("a", "1", "b", "2", "c", "3"),
			Next: children("d", "4", "c", "3", "a", "1"),
			Want: []string{"child_removed b", "child_added d", "child_moved c after d"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			events := diffChildren(tc.Cur, tc.Next)
			if diff := cmp.Diff(tc.Want, describe(events)); diff != "" {
				t.Errorf("diffChildren() mismatch (-want +got):\n%s", diff)
			}

			s := reduceAll(t, list.State{}, diffChildren(nil, tc.Cur))
			s = reduceAll(t, s, events)
			if diff := cmp.Diff(childEntries(tc.Next), entries(list.Project(s))); diff != "" {
				t.Errorf("Reduce(diffChildren()) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestDiffChildrenReplay checks that replaying the diff of two random views with list.Reduce
// always yields the second view.
func TestDiffChildrenReplay(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	randomView := func() []child {
		var cs []child
		for _, i := range r.Perm(10)[:r.IntN(10)] {
			cs = append(cs, newChild(strconv.Itoa(i), json.RawMessage(strconv.Itoa(r.IntN(3)))))
		}
		return cs
	}

	for i := 0; i < 500; i++ {
		cur, next := randomView(), randomView()
		s := reduceAll(t, list.State{}, diffChildren(nil, cur))
		s = reduceAll(t, s, diffChildren(cur, next))
		if diff := cmp.Diff(childEntries(next), entries(list.Project(s))); diff != "" {
			t.Fatalf("Reduce(diffChildren(%v, %v)) mismatch (-want +got):\n%s",
				childEntries(cur), childEntries(next), diff)
		}
	}
}

func TestViewApply(t *testing.T) {
	v := newView(ordering{kind: orderByKey})
	steps := []struct {
		Name  string
		Event *ServerEvent
		Want  []string
	}{
		{
			Name:  "InitialPut",
			Event: &ServerEvent{Type: EventPut, Path: "/", Data: json.RawMessage(`{"b": {"n": 2}, "a": {"n": 1}}`)},
			Want:  []string{`a={"n":1}`, `b={"n":2}`},
		},
		{
			Name:  "PutChild",
			Event: &ServerEvent{Type: EventPut, Path: "/c", Data: json.RawMessage(`{"n":3}`)},
			Want:  []string{`a={"n":1}`, `b={"n":2}`, `c={"n":3}`},
		},
		{
			Name:  "PutNested",
			Event: &ServerEvent{Type: EventPut, Path: "/a/tags/1", Data: json.RawMessage(`"x"`)},
			Want:  []string{`a={"n":1,"tags":{"1":"x"}}`, `b={"n":2}`, `c={"n":3}`},
		},
		{
			Name:  "DeleteNested",
			Event: &ServerEvent{Type: EventPut, Path: "/a/tags/1", Data: json.RawMessage(`null`)},
			Want:  []string{`a={"n":1}`, `b={"n":2}`, `c={"n":3}`},
		},
		{
			Name:  "Patch",
			Event: &ServerEvent{Type: EventPatch, Path: "/", Data: json.RawMessage(`{"b/n":5,"d":{"n":4},"c":null}`)},
			Want:  []string{`a={"n":1}`, `b={"n":5}`, `d={"n":4}`},
		},
		{
			Name:  "PatchChild",
			Event: &ServerEvent{Type: EventPatch, Path: "/d", Data: json.RawMessage(`{"m":"<b>"}`)},
			Want:  []string{`a={"n":1}`, `b={"n":5}`, `d={"m":"<b>","n":4}`},
		},
		{
			Name:  "DeleteLastField",
			Event: &ServerEvent{Type: EventPatch, Path: "/a", Data: json.RawMessage(`{"n":null}`)},
			Want:  []string{`b={"n":5}`, `d={"m":"<b>","n":4}`},
		},
		{
			Name:  "ReplaceLeaf",
			Event: &ServerEvent{Type: EventPut, Path: "/2", Data: json.RawMessage(`1`)},
			Want:  []string{`2=1`, `b={"n":5}`, `d={"m":"<b>","n":4}`},
		},
		{
			Name:  "LeafBecomesObject",
			Event: &ServerEvent{Type: EventPut, Path: "/2/x", Data: json.RawMessage(`true`)},
			Want:  []string{`2={"x":true}`, `b={"n":5}`, `d={"m":"<b>","n":4}`},
		},
		{
			Name:  "ResetPut",
			Event: &ServerEvent{Type: EventPut, Path: "/", Data: json.RawMessage(`{"z":0}`)},
			Want:  []string{`z=0`},
		},
		{
			Name:  "DeleteAll",
			Event: &ServerEvent{Type: EventPut, Path: "/", Data: json.RawMessage(`null`)},
		},
	}

	var s list.State
	for _, step := range steps {
		events, err := v.apply(step.Event)
		if err != nil {
			t.Fatalf("%s: apply() = %v", step.Name, err)
		}
		if diff := cmp.Diff(step.Want, childEntries(v.children)); diff != "" {
			t.Errorf("%s: children mismatch (-want +got):\n%s", step.Name, diff)
		}
		s = reduceAll(t, s, events)
		if diff := cmp.Diff(step.Want, entries(list.Project(s))); diff != "" {
			t.Errorf("%s: Reduce() mismatch (-want +got):\n%s", step.Name, diff)
		}
	}
}

func TestViewApplyError(t *testing.T) {
	cases := []*ServerEvent{
		{Type: "merge", Path: "/", Data: json.RawMessage(`{}`)},
		{Type: EventPut, Path: "/a", Data: json.RawMessage(`{"a":`)},
	}
	for _, tc := range cases {
		v := newView(ordering{kind: orderByKey})
		if _, err := v.apply(tc); err == nil {
			t.Errorf("apply(%v) = nil; want = error", tc)
		}
	}
}

func TestViewOrderByChild(t *testing.T) {
	v := newView(ordering{kind: orderByChild, child: "score"})
	events, err := v.apply(&ServerEvent{
		Type: EventPut,
		Path: "/",
		Data: json.RawMessage(`{"a":{"score":3},"b":{"score":1},"c":{"score":2}}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"child_added b", "child_added c after b", "child_added a after c"}
	if diff := cmp.Diff(want, describe(events)); diff != "" {
		t.Errorf("apply() mismatch (-want +got):\n%s", diff)
	}

	events, err = v.apply(&ServerEvent{Type: EventPut, Path: "/b/score", Data: json.RawMessage(`5`)})
	if err != nil {
		t.Fatal(err)
	}
	want = []string{"child_moved c", "child_moved a after c", "child_changed b after a"}
	if diff := cmp.Diff(want, describe(events)); diff != "" {
		t.Errorf("apply() mismatch (-want +got):\n%s", diff)
	}
}

func TestChildEvents(t *testing.T) {
	srv := startSSEServer(t, client,
		func(w *sseWriter) {
			w.event("put", `{"path":"/","data":{"a":{"n":2},"b":{"n":1}}}`)
			w.event("put", `{"path":"/b/n","data":3}`)
			w.event("patch", `{"path":"/","data":{"c":{"n":0}}}`)
		},
		func(w *sseWriter) {
			w.event("put", `{"path":"/","data":{"c":{"n":0},"b":{"n":3}}}`)
			w.wait()
		},
	)
	defer srv.Close()

	it, err := list.Changes(context.Background(), testref.OrderByChild("n").ChildEvents())
	if err != nil {
		t.Fatal(err)
	}
	defer it.Stop()

	want := [][]string{
		{"b"},
		{"b", "a"},
		{"a", "b"}, // a moved first
		{"a", "b"}, // b changed
		{"c", "a", "b"},
		{"c", "b"}, // a removed after reconnecting
	}
	for i, w := range want {
		snap, err := it.Next()
		if err != nil {
			t.Fatalf("Next() #%d = %v", i, err)
		}
		if diff := cmp.Diff(w, snap.Keys()); diff != "" {
			t.Errorf("Next() #%d keys mismatch (-want +got):\n%s", i, diff)
		}
	}

	reqs := srv.Reqs()
	if len(reqs) != 2 {
		t.Fatalf("Requests = %d; want = 2", len(reqs))
	}
	if got := reqs[0].Query["orderBy"]; got != `"n"` {
		t.Errorf("orderBy = %q; want = %q", got, `"n"`)
	}
}

func TestChildEventsWithEvents(t *testing.T) {
	srv := startSSEServer(t, client, func(w *sseWriter) {
		w.event("put", `{"path":"/","data":{"a":1,"b":2}}`)
		w.event("put", `{"path":"/a","data":5}`)
		w.event("put", `{"path":"/b","data":null}`)
		w.wait()
	})
	defer srv.Close()

	it, err := list.Changes(
		context.Background(), testref.ChildEvents(), list.WithEvents(list.Added, list.Removed))
	if err != nil {
		t.Fatal(err)
	}
	defer it.Stop()

	want := [][]string{{"1"}, {"1", "2"}, {"1"}}
	for i, w := range want {
		snap, err := it.Next()
		if err != nil {
			t.Fatalf("Next() #%d = %v", i, err)
		}
		var got []string
		for _, v := range snap.Values() {
			got = append(got, string(v))
		}
		if diff := cmp.Diff(w, got); diff != "" {
			t.Errorf("Next() #%d values mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestChildEventsStop(t *testing.T) {
	srv := startSSEServer(t, client, func(w *sseWriter) {
		w.event("put", `{"path":"/","data":{"a":1}}`)
		w.wait()
	})
	defer srv.Close()

	it, err := list.Changes(context.Background(), testref.ChildEvents())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := it.Next(); err != nil {
		t.Fatal(err)
	}
	it.Stop()
	if _, err := it.Next(); err != iterator.Done {
		t.Errorf("Next() after Stop() = %v; want = iterator.Done", err)
	}
}

func TestChildEventsSubscribeError(t *testing.T) {
	srv := startSSEServer(t, client, func(w *sseWriter) {
		w.status(404, `{"error":"not found"}`)
	})
	defer srv.Close()

	it, err := list.Changes(context.Background(), testref.ChildEvents())
	if it != nil || err == nil {
		t.Errorf("Changes() = (%v, %v); want = (nil, error)", it, err)
	}
}
