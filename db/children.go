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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/firebase/livelist-go/list"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ChildEvents returns a list.Source that reports the children of the Query result as child
// events.
//
// Each subscription opens its own event stream. The initial state of the location is reported as
// a sequence of Added events in query order. Subsequent server updates are diffed against the
// previous state and reported as Removed, Added, Moved and Changed events, in that order, such
// that applying the events with list.Reduce yields the current query result.
func (q *Query) ChildEvents() list.Source {
	return list.SourceFunc(func(ctx context.Context, types []list.EventType) (list.Subscription, error) {
		s, err := q.Listen(ctx)
		if err != nil {
			return nil, err
		}
		wanted := make(map[list.EventType]bool, len(types))
		for _, t := range types {
			wanted[t] = true
		}
		return &childSubscription{
			stream: s,
			view:   newView(q.order),
			wanted: wanted,
		}, nil
	})
}

type childSubscription struct {
	stream  *EventStream
	view    *view
	wanted  map[list.EventType]bool
	pending []list.ChildEvent
}

func (s *childSubscription) Next() (list.ChildEvent, error) {
	for len(s.pending) == 0 {
		ev, err := s.stream.Next()
		if err != nil {
			return list.ChildEvent{}, err
		}
		events, err := s.view.apply(ev)
		if err != nil {
			s.stream.Close()
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

func (s *childSubscription) Close() error {
	return s.stream.Close()
}

// view mirrors the value of a database location, and its children in query order.
type view struct {
	order    ordering
	data     []byte
	children []child
}

func newView(o ordering) *view {
	return &view{order: o, data: []byte("null")}
}

// apply updates the view with a server event, and returns the child events that transform the
// previous children into the new ones.
func (v *view) apply(ev *ServerEvent) ([]list.ChildEvent, error) {
	segs := parsePath(ev.Path)
	switch ev.Type {
	case EventPut:
		if err := v.set(segs, ev.Data); err != nil {
			return nil, err
		}
	case EventPatch:
		var err error
		gjson.ParseBytes(ev.Data).ForEach(func(k, val gjson.Result) bool {
			path := append(slices.Clone(segs), parsePath(k.String())...)
			err = v.set(path, json.RawMessage(val.Raw))
			return err == nil
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported server event: %q", ev.Type)
	}

	next, err := v.orderedChildren()
	if err != nil {
		return nil, err
	}
	events := diffChildren(v.children, next)
	v.children = next
	return events, nil
}

// set replaces the node at the given path. A null value deletes the node, along with any parents
// left empty.
func (v *view) set(segs []string, value json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return fmt.Errorf("invalid data at %q: %v", "/"+strings.Join(segs, "/"), err)
	}
	value = buf.Bytes()

	if len(segs) == 0 {
		v.data = value
		return nil
	}

	path := jsonPath(segs)
	var err error
	if isNull(value) {
		if !gjson.ParseBytes(v.data).IsObject() {
			return nil
		}
		if v.data, err = sjson.DeleteBytes(v.data, path); err != nil {
			return err
		}
		return v.prune(segs[:len(segs)-1])
	}

	if !gjson.ParseBytes(v.data).IsObject() {
		v.data = []byte("{}")
	}

	// Missing parents are created as nested objects, so that integer keys never turn into array
	// indices. Leaf values along the path are replaced by the new subtree.
	depth := 0
	for depth < len(segs)-1 && gjson.GetBytes(v.data, jsonPath(segs[:depth+1])).IsObject() {
		depth++
	}
	for i := len(segs) - 1; i > depth; i-- {
		wrapped, err := json.Marshal(map[string]json.RawMessage{segs[i]: value})
		if err != nil {
			return err
		}
		value = wrapped
	}
	v.data, err = sjson.SetRawBytes(v.data, jsonPath(segs[:depth+1]), value)
	return err
}

func (v *view) prune(segs []string) error {
	for i := len(segs); i > 0; i-- {
		path := jsonPath(segs[:i])
		n := gjson.GetBytes(v.data, path)
		if !n.IsObject() || len(n.Map()) > 0 {
			return nil
		}
		var err error
		if v.data, err = sjson.DeleteBytes(v.data, path); err != nil {
			return err
		}
	}
	return nil
}

func (v *view) orderedChildren() ([]child, error) {
	root := gjson.ParseBytes(v.data)
	if !root.IsObject() {
		return nil, nil
	}

	var children []child
	var err error
	root.ForEach(func(k, val gjson.Result) bool {
		if val.Type == gjson.Null {
			return true
		}
		var c json.RawMessage
		if c, err = canonicalJSON(val.Raw); err != nil {
			return false
		}
		children = append(children, newChild(k.String(), c))
		return true
	})
	if err != nil {
		return nil, err
	}
	v.order.sort(children)
	return children, nil
}

// diffChildren computes the child events that turn cur into next.
//
// Removals are reported first. The remaining children are then visited in their new order: after
// visiting the child at index i, the first i+1 keys of the working list match next. Children are
// added or moved directly after their new predecessor, and reported as changed when their value
// differs.
func diffChildren(cur, next []child) []list.ChildEvent {
	inNext := make(map[string]bool, len(next))
	for _, c := range next {
		inNext[c.key] = true
	}

	var events []list.ChildEvent
	work := make([]child, 0, len(cur))
	for _, c := range cur {
		if !inNext[c.key] {
			events = append(events, list.ChildEvent{Type: list.Removed, Key: c.key})
			continue
		}
		work = append(work, c)
	}

	for i, c := range next {
		var prev *string
		if i > 0 {
			prev = list.String(next[i-1].key)
		}

		pos := slices.IndexFunc(work, func(w child) bool { return w.key == c.key })
		if pos < 0 {
			events = append(events, list.ChildEvent{Type: list.Added, Key: c.key, Value: c.value, PrevKey: prev})
			work = slices.Insert(work, i, c)
			continue
		}

		old := work[pos]
		if pos != i {
			events = append(events, list.ChildEvent{Type: list.Moved, Key: c.key, Value: old.value, PrevKey: prev})
			work = slices.Delete(work, pos, pos+1)
			work = slices.Insert(work, i, old)
		}
		if !bytes.Equal(old.value, c.value) {
			events = append(events, list.ChildEvent{Type: list.Changed, Key: c.key, Value: c.value, PrevKey: prev})
			work[i] = c
		}
	}
	return events
}

// canonicalJSON re-encodes raw with object keys in sorted order, so that equal values compare
// equal byte for byte. Numbers keep their original representation.
func canonicalJSON(raw string) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func isNull(b []byte) bool {
	return string(b) == "null"
}
