// Copyright 2018 Google Inc. All Rights Reserved.
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
	"fmt"
	"net/http"
	"strings"

	"github.com/firebase/livelist-go/internal"
	"github.com/firebase/livelist-go/list"
)

// Ref represents a node in the Firebase Realtime Database.
type Ref struct {
	Key  string
	Path string

	segs   []string
	client *Client
}

// Parent returns a reference to the parent of the current node.
//
// If the current reference points to the root of the database, Parent returns nil.
func (r *Ref) Parent() *Ref {
	l := len(r.segs)
	if l > 0 {
		path := strings.Join(r.segs[:l-1], "/")
		return r.client.NewRef(path)
	}
	return nil
}

// Child returns a reference to the specified child node.
func (r *Ref) Child(path string) *Ref {
	fp := fmt.Sprintf("%s/%s", r.Path, path)
	return r.client.NewRef(fp)
}

// Get retrieves the value at the current database location, and stores it in the value pointed to
// by v.
//
// Data deserialization is performed using https://golang.org/pkg/encoding/json/#Unmarshal, and
// therefore v has the same requirements as the json package. Specifically, it must be a pointer,
// and must not be nil.
func (r *Ref) Get(ctx context.Context, v interface{}) error {
	resp, err := r.send(ctx, http.MethodGet)
	if err != nil {
		return err
	}
	return resp.Unmarshal(v)
}

// Set stores the value v in the current database node.
//
// Set uses https://golang.org/pkg/encoding/json/#Marshal to serialize values into JSON. Therefore
// v has the same requirements as the json package. Values like functions and channels cannot be
// saved into Realtime Database.
func (r *Ref) Set(ctx context.Context, v interface{}) error {
	_, err := r.sendWithBody(ctx, http.MethodPut, v, internal.WithQueryParam("print", "silent"))
	return err
}

// Push creates a new child node at the current location, and returns a reference to it.
//
// If v is not nil, it will be set as the initial value of the new child node. If v is nil, the
// new child node will be created with empty string as the value.
func (r *Ref) Push(ctx context.Context, v interface{}) (*Ref, error) {
	if v == nil {
		v = ""
	}
	resp, err := r.sendWithBody(ctx, http.MethodPost, v)
	if err != nil {
		return nil, err
	}
	var d struct {
		Name string `json:"name"`
	}
	if err := resp.Unmarshal(&d); err != nil {
		return nil, err
	}
	return r.Child(d.Name), nil
}

// Update modifies the specified child keys of the current location to the provided values.
func (r *Ref) Update(ctx context.Context, v map[string]interface{}) error {
	if len(v) == 0 {
		return fmt.Errorf("value argument must be a non-empty map")
	}
	_, err := r.sendWithBody(ctx, http.MethodPatch, v, internal.WithQueryParam("print", "silent"))
	return err
}

// Delete removes this node from the database.
func (r *Ref) Delete(ctx context.Context) error {
	_, err := r.send(ctx, http.MethodDelete)
	return err
}

// Listen opens a live stream of server events for this location.
//
// See Query.Listen for details.
func (r *Ref) Listen(ctx context.Context) (*EventStream, error) {
	return r.query().Listen(ctx)
}

// ChildEvents returns a list.Source reporting the children of this location ordered by key.
func (r *Ref) ChildEvents() list.Source {
	return r.query().ChildEvents()
}

// query returns an unfiltered query over this location. Children are ordered by key, without
// sending an orderBy parameter to the server.
func (r *Ref) query() *Query {
	return &Query{
		client: r.client,
		path:   r.Path,
		order:  ordering{kind: orderByKey},
	}
}

func (r *Ref) send(
	ctx context.Context,
	method string,
	opts ...internal.HTTPOption) (*internal.Response, error) {

	return r.client.send(ctx, method, r.Path, nil, opts...)
}

func (r *Ref) sendWithBody(
	ctx context.Context,
	method string,
	body interface{},
	opts ...internal.HTTPOption) (*internal.Response, error) {

	return r.client.send(ctx, method, r.Path, internal.NewJSONEntity(body), opts...)
}
