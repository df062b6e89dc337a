// Copyright 2017 Google Inc. All Rights Reserved.
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

// Package firebase is the entry point to the livelist module. It provides functionality for
// initializing App instances, which give access to the Realtime Database, Cloud Firestore and
// Analytics services whose live queries can be materialized with the list package.
package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/firebase/livelist-go/analytics"
	"github.com/firebase/livelist-go/db"
	"github.com/firebase/livelist-go/internal"
	"google.golang.org/api/option"
	"google.golang.org/api/transport"
)

var firebaseScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/datastore",
	"https://www.googleapis.com/auth/firebase",
	"https://www.googleapis.com/auth/firebase.database",
	"https://www.googleapis.com/auth/userinfo.email",
}

var defaultAuthOverrides = make(map[string]interface{})

// Version of the livelist module.
const Version = "1.0.0"

// firebaseEnvName is the name of the environment variable with the Config.
const firebaseEnvName = "FIREBASE_CONFIG"

// An App holds configuration and state common to all Firebase services that are exposed from the
// module.
type App struct {
	authOverride       map[string]interface{}
	dbURL              string
	projectID          string
	measurementID      string
	analyticsAPISecret string
	logger             *slog.Logger
	opts               []option.ClientOption
}

// Config represents the configuration used to initialize an App.
type Config struct {
	AuthOverride       *map[string]interface{} `json:"databaseAuthVariableOverride"`
	DatabaseURL        string                  `json:"databaseURL"`
	ProjectID          string                  `json:"projectId"`
	MeasurementID      string                  `json:"measurementId"`
	AnalyticsAPISecret string                  `json:"analyticsApiSecret"`

	// Logger receives the diagnostics of long-lived listeners. Defaults to slog.Default().
	Logger *slog.Logger `json:"-"`
}

// Database returns an instance of db.Client.
func (a *App) Database(ctx context.Context) (*db.Client, error) {
	return a.DatabaseWithURL(ctx, a.dbURL)
}

// DatabaseWithURL returns an instance of db.Client for the database at url.
func (a *App) DatabaseWithURL(ctx context.Context, url string) (*db.Client, error) {
	conf := &internal.DatabaseConfig{
		AuthOverride: a.authOverride,
		URL:          url,
		Opts:         a.opts,
		Version:      Version,
		Logger:       a.logger,
	}
	return db.NewClient(ctx, conf)
}

// Firestore returns a new firestore.Client instance from the https://godoc.org/cloud.google.com/go/firestore
// package.
//
// Queries of the returned client can be turned into live lists with firestorelist.New.
func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	if a.projectID == "" {
		return nil, errors.New("project id is required to access Firestore")
	}
	return firestore.NewClient(ctx, a.projectID, a.opts...)
}

// Analytics returns an instance of analytics.Client.
func (a *App) Analytics(ctx context.Context) (*analytics.Client, error) {
	conf := &internal.AnalyticsConfig{
		MeasurementID: a.measurementID,
		APISecret:     a.analyticsAPISecret,
		Version:       Version,
	}
	return analytics.NewClient(ctx, conf)
}

// NewApp creates a new App from the provided config and client options.
//
// If the client options contain a valid credential (a service account file, a refresh token
// file or an oauth2.TokenSource) the App will be authenticated using that credential. Otherwise,
// NewApp attempts to authenticate the App with Google application default credentials.
// If `config` is nil, the SDK will attempt to load the config options from the
// `FIREBASE_CONFIG` environment variable. If the value in it starts with a `{` it is parsed as a
// JSON object, otherwise it is assumed to be the name of the JSON file containing the options.
func NewApp(ctx context.Context, config *Config, opts ...option.ClientOption) (*App, error) {
	o := []option.ClientOption{option.WithScopes(firebaseScopes...)}
	o = append(o, opts...)
	if config == nil {
		var err error
		if config, err = getConfigDefaults(); err != nil {
			return nil, err
		}
	}

	pid := getProjectID(ctx, config, o...)
	ao := defaultAuthOverrides
	if config.AuthOverride != nil {
		ao = *config.AuthOverride
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &App{
		authOverride:       ao,
		dbURL:              config.DatabaseURL,
		projectID:          pid,
		measurementID:      config.MeasurementID,
		analyticsAPISecret: config.AnalyticsAPISecret,
		logger:             logger,
		opts:               o,
	}, nil
}

// getConfigDefaults reads the default config file, defined by the FIREBASE_CONFIG
// env variable, used only when options are nil.
func getConfigDefaults() (*Config, error) {
	fbc := &Config{}
	confFileName := os.Getenv(firebaseEnvName)
	if confFileName == "" {
		return fbc, nil
	}
	var dat []byte
	if confFileName[0] == byte('{') {
		dat = []byte(confFileName)
	} else {
		var err error
		if dat, err = os.ReadFile(confFileName); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal(dat, fbc); err != nil {
		return nil, err
	}

	// Some special handling necessary for db auth overrides
	var m map[string]interface{}
	if err := json.Unmarshal(dat, &m); err != nil {
		return nil, err
	}
	if ao, ok := m["databaseAuthVariableOverride"]; ok && ao == nil {
		// Auth overrides are explicitly set to null
		var nullMap map[string]interface{}
		fbc.AuthOverride = &nullMap
	}
	return fbc, nil
}

func getProjectID(ctx context.Context, config *Config, opts ...option.ClientOption) string {
	if config.ProjectID != "" {
		return config.ProjectID
	}

	creds, _ := transport.Creds(ctx, opts...)
	if creds != nil && creds.ProjectID != "" {
		return creds.ProjectID
	}

	if pid := os.Getenv("GOOGLE_CLOUD_PROJECT"); pid != "" {
		return pid
	}
	return os.Getenv("GCLOUD_PROJECT")
}
