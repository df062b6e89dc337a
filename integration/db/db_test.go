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

// Package db contains integration tests for live lists backed by the Realtime Database.
package db

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"

	firebase "github.com/firebase/livelist-go"
	"github.com/firebase/livelist-go/db"
	"github.com/firebase/livelist-go/integration/internal"
	"github.com/firebase/livelist-go/list"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

var client *db.Client

type player struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() || !internal.Available() {
		log.Println("skipping database integration tests.")
		os.Exit(0)
	}

	pid, err := internal.ProjectID()
	if err != nil {
		log.Fatalln(err)
	}

	ctx := context.Background()
	app, err := internal.NewTestApp(ctx, &firebase.Config{
		DatabaseURL: fmt.Sprintf("https://%s.firebaseio.com", pid),
	})
	if err != nil {
		log.Fatalln(err)
	}
	if client, err = app.Database(ctx); err != nil {
		log.Fatalln(err)
	}

	os.Exit(m.Run())
}

func names(snap list.Snapshot) []string {
	var players []player
	if err := snap.Unmarshal(&players); err != nil {
		return nil
	}
	var ns []string
	for _, p := range players {
		ns = append(ns, p.Name)
	}
	return ns
}

func TestChildEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), internal.Timeout)
	defer cancel()

	ref := client.NewRef("_livelist/go/" + uuid.NewString())
	defer ref.Delete(context.Background())

	if err := ref.Set(ctx, map[string]player{
		"alice": {"alice", 30},
		"bob":   {"bob", 10},
		"carol": {"carol", 20},
	}); err != nil {
		t.Fatal(err)
	}

	it, err := list.Changes(ctx, ref.OrderByChild("score").ChildEvents())
	if err != nil {
		t.Fatal(err)
	}
	defer it.Stop()

	steps := []struct {
		name   string
		mutate func() error
		want   []string
	}{
		{
			name:   "initial",
			mutate: func() error { return nil },
			want:   []string{"bob", "carol", "alice"},
		},
		{
			name:   "added",
			mutate: func() error { return ref.Child("dave").Set(ctx, player{"dave", 15}) },
			want:   []string{"bob", "dave", "carol", "alice"},
		},
		{
			name:   "moved",
			mutate: func() error { return ref.Child("bob").Child("score").Set(ctx, 40) },
			want:   []string{"dave", "carol", "alice", "bob"},
		},
		{
			name:   "removed",
			mutate: func() error { return ref.Child("carol").Delete(ctx) },
			want:   []string{"dave", "alice", "bob"},
		},
	}
	for _, s := range steps {
		if err := s.mutate(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		snap, err := internal.WaitFor(it, func(snap list.Snapshot) bool {
			return cmp.Equal(names(snap), s.want)
		})
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if len(snap.Keys()) != len(s.want) {
			t.Errorf("%s: Keys() = %v; want %d keys", s.name, snap.Keys(), len(s.want))
		}
	}
}

func TestChildEventsLimit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), internal.Timeout)
	defer cancel()

	ref := client.NewRef("_livelist/go/" + uuid.NewString())
	defer ref.Delete(context.Background())

	if err := ref.Set(ctx, map[string]player{
		"alice": {"alice", 30},
		"bob":   {"bob", 10},
		"carol": {"carol", 20},
	}); err != nil {
		t.Fatal(err)
	}

	it, err := list.Changes(ctx, ref.OrderByChild("score").LimitToLast(2).ChildEvents())
	if err != nil {
		t.Fatal(err)
	}
	defer it.Stop()

	want := []string{"carol", "alice"}
	if _, err := internal.WaitFor(it, func(snap list.Snapshot) bool {
		return cmp.Equal(names(snap), want)
	}); err != nil {
		t.Fatal(err)
	}

	if err := ref.Child("dave").Set(ctx, player{"dave", 50}); err != nil {
		t.Fatal(err)
	}
	want = []string{"alice", "dave"}
	if _, err := internal.WaitFor(it, func(snap list.Snapshot) bool {
		return cmp.Equal(names(snap), want)
	}); err != nil {
		t.Fatal(err)
	}
}
