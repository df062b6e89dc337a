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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "github.com/firebase/livelist-go"
	"github.com/firebase/livelist-go/db"
	"github.com/firebase/livelist-go/firestorelist"
	"github.com/firebase/livelist-go/list"
	"github.com/spf13/pflag"
)

const (
	sourceDatabase  = "database"
	sourceFirestore = "firestore"
)

// listOptions describes the query behind a live list.
type listOptions struct {
	source     string
	orderBy    string
	limitFirst int
	limitLast  int
	events     []string
}

func addListFlags(fs *pflag.FlagSet, o *listOptions) {
	fs.StringVar(&o.source, "source", sourceDatabase, "list source: database or firestore")
	fs.StringVar(&o.orderBy, "order-by", "key", "ordering: key, value or a child path")
	fs.IntVar(&o.limitFirst, "limit-first", 0, "only keep the first n children")
	fs.IntVar(&o.limitLast, "limit-last", 0, "only keep the last n children")
	fs.StringSliceVar(&o.events, "events", nil, "child event types to apply (default all)")
}

// parseListQuery reads list options from the query string of a request.
func parseListQuery(q url.Values) (*listOptions, error) {
	o := &listOptions{
		source:  q.Get("source"),
		orderBy: q.Get("orderBy"),
	}
	if o.source == "" {
		o.source = sourceDatabase
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limitToFirst", &o.limitFirst},
		{"limitToLast", &o.limitLast},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", p.name, v)
		}
		*p.dst = n
	}
	if v := q.Get("events"); v != "" {
		o.events = strings.Split(v, ",")
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *listOptions) validate() error {
	if o.source != sourceDatabase && o.source != sourceFirestore {
		return fmt.Errorf("unknown source: %q", o.source)
	}
	if o.limitFirst < 0 || o.limitLast < 0 {
		return errors.New("limits must not be negative")
	}
	if o.limitFirst > 0 && o.limitLast > 0 {
		return errors.New("cannot limit to both the first and the last children")
	}
	if o.source == sourceFirestore && o.orderBy == "value" {
		return errors.New("firestore lists cannot be ordered by value")
	}
	_, err := o.listOpts()
	return err
}

// listOpts returns the reducer options selected by o.
func (o *listOptions) listOpts() ([]list.Option, error) {
	if len(o.events) == 0 {
		return nil, nil
	}
	types := make([]list.EventType, len(o.events))
	for i, s := range o.events {
		t, err := list.ParseEventType(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		types[i] = t
	}
	return []list.Option{list.WithEvents(types...)}, nil
}

// resolver turns the path of a live list into its source.
type resolver func(path string, o *listOptions) (list.Source, error)

func databaseResolver(client *db.Client) resolver {
	return func(path string, o *listOptions) (list.Source, error) {
		ref := client.NewRef(path)
		var q *db.Query
		switch o.orderBy {
		case "", "key":
			q = ref.OrderByKey()
		case "value":
			q = ref.OrderByValue()
		default:
			q = ref.OrderByChild(o.orderBy)
		}
		if o.limitFirst > 0 {
			q = q.LimitToFirst(o.limitFirst)
		}
		if o.limitLast > 0 {
			q = q.LimitToLast(o.limitLast)
		}
		return q.ChildEvents(), nil
	}
}

func firestoreResolver(client *firestore.Client) resolver {
	return func(path string, o *listOptions) (list.Source, error) {
		coll := client.Collection(strings.Trim(path, "/"))
		if coll == nil {
			return nil, fmt.Errorf("invalid collection path: %q", path)
		}
		q := coll.Query
		switch o.orderBy {
		case "", "key":
			q = q.OrderBy(firestore.DocumentID, firestore.Asc)
		default:
			q = q.OrderBy(o.orderBy, firestore.Asc)
		}
		if o.limitFirst > 0 {
			q = q.Limit(o.limitFirst)
		}
		if o.limitLast > 0 {
			q = q.LimitToLast(o.limitLast)
		}
		return firestorelist.New(q, firestorelist.WithIDField("id")), nil
	}
}

// newResolvers connects to the list sources that cfg enables. The returned function releases
// the connections.
func newResolvers(ctx context.Context, cfg *config, app *firebase.App) (map[string]resolver, func(), error) {
	resolvers := make(map[string]resolver)
	cleanup := func() {}
	if cfg.DatabaseURL != "" {
		client, err := app.Database(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create database client: %w", err)
		}
		resolvers[sourceDatabase] = databaseResolver(client)
	}
	if cfg.ProjectID != "" {
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create firestore client: %w", err)
		}
		resolvers[sourceFirestore] = firestoreResolver(client)
		cleanup = func() { client.Close() }
	}
	if len(resolvers) == 0 {
		return nil, nil, errors.New("no list source configured: set LIVELIST_DATABASE_URL or LIVELIST_PROJECT_ID")
	}
	return resolvers, cleanup, nil
}
