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

package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Instance is a Client registered under a name.
type Instance struct {
	Name   string
	Client *Client
}

// Registry holds the Analytics clients of an application.
//
// Registry is safe for concurrent use. The zero value is not usable; call NewRegistry.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Client
	watchers  map[*watcher]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]*Client),
		watchers:  make(map[*watcher]struct{}),
	}
}

// Register adds c to the registry under name.
//
// Register fails if another client is already registered under the same name. Active watchers
// are notified of c unless they have already seen it.
func (r *Registry) Register(name string, c *Client) error {
	if name == "" {
		return errors.New("instance name must not be empty")
	}
	if c == nil {
		return errors.New("client must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[name]; ok {
		return fmt.Errorf("analytics instance %q already registered", name)
	}
	r.instances[name] = c
	for w := range r.watchers {
		w.push(c)
	}
	return nil
}

// Unregister removes the client registered under name, and reports whether one was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[name]; !ok {
		return false
	}
	delete(r.instances, name)
	return true
}

// Lookup returns the client registered under name.
func (r *Registry) Lookup(name string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.instances[name]
	return c, ok
}

// Instances returns the registered clients, sorted by name.
func (r *Registry) Instances() []Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instancesLocked()
}

func (r *Registry) instancesLocked() []Instance {
	result := make([]Instance, 0, len(r.instances))
	for name, c := range r.instances {
		result = append(result, Instance{Name: name, Client: c})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Watch returns a channel that delivers the registered clients.
//
// The channel first delivers the clients present when Watch is called, in name order, and then
// every client registered afterwards. Each client is delivered at most once, even when it is
// registered under several names or registered again after being removed. The channel is closed
// when ctx is done. Registrations never block on a slow receiver.
func (r *Registry) Watch(ctx context.Context) <-chan *Client {
	w := &watcher{
		seen: make(map[*Client]bool),
		wake: make(chan struct{}, 1),
	}
	r.mu.Lock()
	for _, inst := range r.instancesLocked() {
		w.push(inst.Client)
	}
	r.watchers[w] = struct{}{}
	r.mu.Unlock()

	out := make(chan *Client)
	go func() {
		defer close(out)
		defer r.removeWatcher(w)
		for {
			c, ok := w.pop()
			if !ok {
				select {
				case <-w.wake:
					continue
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (r *Registry) removeWatcher(w *watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, w)
}

// watcher queues the clients not yet delivered to one Watch channel.
type watcher struct {
	mu      sync.Mutex
	seen    map[*Client]bool
	pending []*Client
	wake    chan struct{}
}

func (w *watcher) push(c *Client) {
	w.mu.Lock()
	if w.seen[c] {
		w.mu.Unlock()
		return
	}
	w.seen[c] = true
	w.pending = append(w.pending, c)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) pop() (*Client, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil, false
	}
	c := w.pending[0]
	w.pending = w.pending[1:]
	return c, true
}
