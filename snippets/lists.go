// Copyright 2026 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package snippets

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	firebase "github.com/firebase/livelist-go"
	"github.com/firebase/livelist-go/analytics"
	"github.com/firebase/livelist-go/firestorelist"
	"github.com/firebase/livelist-go/list"
	"google.golang.org/api/iterator"
)

// Dinosaur is a json-serializable type.
type Dinosaur struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

func watchOrderedList(ctx context.Context, app *firebase.App) {
	// [START watch_ordered_list]
	client, err := app.Database(ctx)
	if err != nil {
		log.Fatalln("Error initializing database client:", err)
	}

	ref := client.NewRef("dinosaurs")
	it, err := list.Changes(ctx, ref.OrderByChild("height").LimitToLast(3).ChildEvents())
	if err != nil {
		log.Fatalln("Error subscribing to list:", err)
	}
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Fatalln("Error reading list:", err)
		}
		var tallest []Dinosaur
		if err := snap.Unmarshal(&tallest); err != nil {
			log.Fatalln("Error decoding list:", err)
		}
		fmt.Printf("%v => %v\n", snap.Keys(), tallest)
	}
	// [END watch_ordered_list]
}

func watchAddedOnly(ctx context.Context, app *firebase.App) {
	// [START watch_added_only]
	client, err := app.Database(ctx)
	if err != nil {
		log.Fatalln("Error initializing database client:", err)
	}

	// Only child_added events are applied. Children that change or go away stay
	// in the list as they were first seen.
	err = list.ForEach(ctx, client.NewRef("messages").ChildEvents(), func(s list.Snapshot) error {
		fmt.Println(len(s), "messages")
		return nil
	}, list.WithEvents(list.Added))
	if err != nil {
		log.Fatalln("Error reading list:", err)
	}
	// [END watch_added_only]
}

func watchFirestoreList(ctx context.Context, app *firebase.App) {
	// [START watch_firestore_list]
	client, err := app.Firestore(ctx)
	if err != nil {
		log.Fatalln("Error initializing firestore client:", err)
	}
	defer client.Close()

	q := client.Collection("cities").OrderBy("population", firestore.Desc).Limit(10)
	src := firestorelist.New(q, firestorelist.WithIDField("id"))
	err = list.ForEach(ctx, src, func(s list.Snapshot) error {
		fmt.Println(s.Keys())
		return nil
	})
	if err != nil {
		log.Fatalln("Error reading list:", err)
	}
	// [END watch_firestore_list]
}

func registerAnalytics(ctx context.Context, app *firebase.App) {
	// [START register_analytics]
	client, err := app.Analytics(ctx)
	if err != nil {
		log.Fatalln("Error initializing analytics client:", err)
	}

	reg := analytics.NewRegistry()
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for c := range reg.Watch(watchCtx) {
			fmt.Println("analytics available:", c.MeasurementID())
		}
	}()

	if err := reg.Register("default", client); err != nil {
		log.Fatalln("Error registering analytics client:", err)
	}
	// [END register_analytics]
}
