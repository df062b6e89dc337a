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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"google.golang.org/api/iterator"
)

// Source is a live query that can be subscribed to for child events.
//
// Subscribing starts an initial replay of the whole collection, as a sequence of Added events,
// followed by incremental changes. Implementations only need to report the requested event
// types, but may report others; the list stream drops them.
type Source interface {
	Subscribe(ctx context.Context, types []EventType) (Subscription, error)
}

// Subscription is an active subscription to a Source.
type Subscription interface {
	// Next blocks until the next child event is available. It returns iterator.Done when the
	// upstream ends, and any other error when the upstream fails.
	Next() (ChildEvent, error)

	// Close releases the subscription and any server-side listeners. Close unblocks a pending
	// Next call.
	Close() error
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, types []EventType) (Subscription, error)

// Subscribe calls f(ctx, types).
func (f SourceFunc) Subscribe(ctx context.Context, types []EventType) (Subscription, error) {
	return f(ctx, types)
}

// Events returns a Source that replays the given events to every subscriber and then ends.
func Events(events ...ChildEvent) Source {
	return SourceFunc(func(ctx context.Context, types []EventType) (Subscription, error) {
		return &sliceSubscription{ctx: ctx, events: events}, nil
	})
}

type sliceSubscription struct {
	ctx    context.Context
	events []ChildEvent
	mu     sync.Mutex
	closed bool
}

func (s *sliceSubscription) Next() (ChildEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.events) == 0 {
		return ChildEvent{}, iterator.Done
	}
	if err := s.ctx.Err(); err != nil {
		return ChildEvent{}, err
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Decode returns a Source that reads newline-delimited JSON child events from r.
//
// Each line is a JSON object with the fields type, key, value and previousKey. The source can
// only be subscribed to once. A line that is not valid JSON fails the subscription.
func Decode(r io.Reader) Source {
	var once sync.Once
	return SourceFunc(func(ctx context.Context, types []EventType) (Subscription, error) {
		var sub Subscription
		once.Do(func() {
			sub = &decodeSubscription{ctx: ctx, dec: json.NewDecoder(r), r: r}
		})
		if sub == nil {
			return nil, errors.New("decode source already subscribed")
		}
		return sub, nil
	})
}

type decodeSubscription struct {
	ctx    context.Context
	dec    *json.Decoder
	r      io.Reader
	mu     sync.Mutex
	closed atomic.Bool
}

func (s *decodeSubscription) Next() (ChildEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ChildEvent{}, iterator.Done
	}
	if err := s.ctx.Err(); err != nil {
		return ChildEvent{}, err
	}

	var ev ChildEvent
	if err := s.dec.Decode(&ev); err != nil {
		if err == io.EOF || s.closed.Load() {
			return ChildEvent{}, iterator.Done
		}
		return ChildEvent{}, fmt.Errorf("error while decoding child event: %v", err)
	}
	return ev, nil
}

// Close does not take the lock, so that it can interrupt a Next call blocked on a read.
func (s *decodeSubscription) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
