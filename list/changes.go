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

// Package list materializes live child events of a keyed, ordered collection into list snapshots.
//
// The core of the package is the pure Reduce function, which applies one ChildEvent to a State,
// and Project, which turns a State into a Snapshot. Changes wires the two to a live Source and
// emits one Snapshot per accepted event:
//
//	it, err := list.Changes(ctx, ref.OrderByKey().ChildEvents())
//	if err != nil {
//		return err
//	}
//	defer it.Stop()
//	for {
//		snap, err := it.Next()
//		if err == iterator.Done {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		var messages []Message
//		if err := snap.Unmarshal(&messages); err != nil {
//			return err
//		}
//	}
package list

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"google.golang.org/api/iterator"
)

// Option configures a list stream.
type Option func(*options)

type options struct {
	types    []EventType
	typesSet bool
}

// WithEvents restricts a list stream to the given event types.
//
// By default all four event types are processed. Calling WithEvents with no types, or with a
// type that is not one of Added, Changed, Removed or Moved, makes Changes fail with
// ErrInvalidEventTypes.
func WithEvents(types ...EventType) Option {
	return func(o *options) {
		o.types = types
		o.typesSet = true
	}
}

func (o *options) eventTypes() ([]EventType, error) {
	if !o.typesSet {
		return AllEventTypes(), nil
	}
	if len(o.types) == 0 {
		return nil, fmt.Errorf("%w: at least one event type is required", ErrInvalidEventTypes)
	}
	seen := make(map[EventType]bool)
	var types []EventType
	for _, t := range o.types {
		if !t.valid() {
			return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidEventTypes, t)
		}
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types, nil
}

// Changes subscribes to src and returns an iterator over the list snapshots it produces.
//
// Configuration errors are returned before src is subscribed to. Every accepted event produces
// exactly one Snapshot reflecting the state after that event. Events whose type was not
// requested are dropped without producing a snapshot.
func Changes(ctx context.Context, src Source, opts ...Option) (*SnapshotIterator, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	types, err := o.eventTypes()
	if err != nil {
		return nil, err
	}

	wanted := make(map[EventType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	sub, err := src.Subscribe(ctx, types)
	if err != nil {
		return nil, err
	}

	return &SnapshotIterator{
		ctx:    ctx,
		sub:    sub,
		wanted: wanted,
	}, nil
}

// SnapshotIterator is an iterator over the snapshots of a live list.
//
// Next must not be called concurrently. Stop can be called from any goroutine.
type SnapshotIterator struct {
	ctx    context.Context
	sub    Subscription
	wanted map[EventType]bool
	state  State

	err      error
	stopped  atomic.Bool
	stopOnce sync.Once
}

// Next blocks until the next snapshot is available.
//
// Next returns iterator.Done after Stop is called or when the upstream ends. Any other error is
// terminal: the subscription is released and every subsequent call returns the same error.
func (it *SnapshotIterator) Next() (Snapshot, error) {
	for {
		if it.err != nil {
			return nil, it.err
		}
		if it.stopped.Load() {
			it.state = State{}
			return nil, iterator.Done
		}
		if err := it.ctx.Err(); err != nil {
			return nil, it.fail(err)
		}

		ev, err := it.sub.Next()
		if it.stopped.Load() {
			it.state = State{}
			return nil, iterator.Done
		}
		if err == iterator.Done {
			it.Stop()
			return nil, iterator.Done
		}
		if err != nil {
			return nil, it.fail(err)
		}

		if err := ev.validate(); err != nil {
			return nil, it.fail(err)
		}
		if !it.wanted[ev.Type] {
			continue
		}

		state, err := Reduce(it.state, ev)
		if err != nil {
			return nil, it.fail(err)
		}
		it.state = state
		return Project(state), nil
	}
}

// NextValues behaves like Next, but only returns the payloads of the snapshot.
func (it *SnapshotIterator) NextValues() ([]json.RawMessage, error) {
	snap, err := it.Next()
	if err != nil {
		return nil, err
	}
	return snap.Values(), nil
}

// Stop releases the upstream subscription and the list state. Stop is idempotent.
func (it *SnapshotIterator) Stop() {
	it.stopOnce.Do(func() {
		it.stopped.Store(true)
		it.sub.Close()
	})
}

func (it *SnapshotIterator) fail(err error) error {
	it.err = err
	it.Stop()
	it.state = State{}
	return err
}

// ForEach subscribes to src and calls fn with every snapshot until the upstream ends, ctx is
// cancelled, or fn returns an error.
//
// ForEach returns nil when the upstream ends normally, and the first error otherwise.
func ForEach(ctx context.Context, src Source, fn func(Snapshot) error, opts ...Option) error {
	it, err := Changes(ctx, src, opts...)
	if err != nil {
		return err
	}
	defer it.Stop()

	stop := context.AfterFunc(ctx, it.Stop)
	defer stop()

	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}
