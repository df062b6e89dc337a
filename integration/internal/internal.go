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

// Package internal contains utilities for running integration tests.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	firebase "github.com/firebase/livelist-go"
	"github.com/firebase/livelist-go/list"
	"google.golang.org/api/option"
)

// Timeout bounds how long an integration test waits for a snapshot.
const Timeout = 30 * time.Second

var certPath = filepath.Join("..", "testdata", "integration_cert.json")

// Available reports whether the service account used by the integration tests is present.
func Available() bool {
	_, err := os.Stat(certPath)
	return err == nil
}

// NewTestApp creates a new App instance for integration tests.
//
// NewTestApp looks for a service account JSON file named integration_cert.json in the
// testdata directory. This file is used to initialize the newly created App instance.
func NewTestApp(ctx context.Context, conf *firebase.Config) (*firebase.App, error) {
	return firebase.NewApp(ctx, conf, option.WithCredentialsFile(certPath))
}

// ProjectID returns the project ID from the integration test credentials.
func ProjectID() (string, error) {
	b, err := os.ReadFile(certPath)
	if err != nil {
		return "", err
	}
	var serviceAccount struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(b, &serviceAccount); err != nil {
		return "", err
	}
	if serviceAccount.ProjectID == "" {
		return "", errors.New("project_id not found in integration credentials")
	}
	return serviceAccount.ProjectID, nil
}

// WaitFor reads snapshots from it until one satisfies match, and returns that snapshot.
func WaitFor(it *list.SnapshotIterator, match func(list.Snapshot) bool) (list.Snapshot, error) {
	for {
		snap, err := it.Next()
		if err != nil {
			return nil, err
		}
		if match(snap) {
			return snap, nil
		}
	}
}
