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

// Package db contains functions for accessing the Firebase Realtime Database, and for turning its
// live queries into child event streams.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/firebase/livelist-go/internal"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

const userAgentFormat = "Firebase/HTTP/%s/%s/LivelistGo"
const invalidChars = "[].#$"
const authVarOverride = "auth_variable_override"
const emulatorDatabaseEnvVar = "FIREBASE_DATABASE_EMULATOR_HOST"
const emulatorNamespaceParam = "ns"

// errInvalidPath is returned for refs whose path contains one of the invalidChars.
const errInvalidPath = "invalid path with illegal characters: %q"

// Client is the interface for the Firebase Realtime Database service.
type Client struct {
	hc           *internal.HTTPClient
	url          string
	params       map[string]string
	authOverride string
	logger       *slog.Logger
	newBackOff   func() backoff.BackOff
}

// NewClient creates a new instance of the Firebase Database Client.
//
// This function can only be invoked from within the SDK. Client applications should access the
// Database service through firebase.App.
func NewClient(ctx context.Context, c *internal.DatabaseConfig) (*Client, error) {
	urlConfig, isEmulator, err := parseURLConfig(c.URL)
	if err != nil {
		return nil, err
	}

	var ao []byte
	if c.AuthOverride == nil || len(c.AuthOverride) > 0 {
		ao, err = json.Marshal(c.AuthOverride)
		if err != nil {
			return nil, err
		}
	}

	opts := append([]option.ClientOption{}, c.Opts...)
	if isEmulator {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "owner"})
		opts = append(opts, option.WithTokenSource(ts))
	}
	ua := fmt.Sprintf(userAgentFormat, c.Version, runtime.Version())
	opts = append(opts, option.WithUserAgent(ua))
	hc, _, err := internal.NewHTTPClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	hc.CreateErrFn = handleRTDBError

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		hc:           hc,
		url:          urlConfig.baseURL,
		params:       urlConfig.params,
		authOverride: string(ao),
		logger:       logger.With("component", "db"),
		newBackOff:   newStreamBackOff,
	}, nil
}

// newStreamBackOff returns the delay policy used when reconnecting event streams.
func newStreamBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return b
}

// NewRef returns a new database reference representing the node at the specified path.
func (c *Client) NewRef(path string) *Ref {
	segs := parsePath(path)
	key := ""
	if len(segs) > 0 {
		key = segs[len(segs)-1]
	}

	return &Ref{
		Key:    key,
		Path:   "/" + strings.Join(segs, "/"),
		client: c,
		segs:   segs,
	}
}

func (c *Client) requestURL(path string) string {
	return fmt.Sprintf("%s%s.json", c.url, path)
}

func (c *Client) requestOpts(opts ...internal.HTTPOption) []internal.HTTPOption {
	var all []internal.HTTPOption
	if c.authOverride != "" {
		all = append(all, internal.WithQueryParam(authVarOverride, c.authOverride))
	}
	if len(c.params) > 0 {
		all = append(all, internal.WithQueryParams(c.params))
	}
	return append(all, opts...)
}

func (c *Client) send(
	ctx context.Context,
	method, path string,
	body internal.HTTPEntity,
	opts ...internal.HTTPOption) (*internal.Response, error) {

	if strings.ContainsAny(path, invalidChars) {
		return nil, fmt.Errorf(errInvalidPath, path)
	}

	return c.hc.Do(ctx, &internal.Request{
		Method: method,
		URL:    c.requestURL(path),
		Body:   body,
		Opts:   c.requestOpts(opts...),
	})
}

func handleRTDBError(resp *internal.Response) error {
	err := internal.NewFirebaseError(resp)
	var p struct {
		Error string `json:"error"`
	}
	json.Unmarshal(resp.Body, &p)
	if p.Error != "" {
		err.String = fmt.Sprintf("http error status: %d; reason: %s", resp.Status, p.Error)
	}

	return err
}

type dbURLConfig struct {
	baseURL string
	params  map[string]string
}

// parseURLConfig returns the base URL and query params of the database, and reports whether the
// client should talk to the local emulator.
func parseURLConfig(dbURL string) (*dbURLConfig, bool, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, false, err
	}
	if dbURL == "" || u.Host == "" {
		return nil, false, fmt.Errorf("invalid database URL: %q", dbURL)
	}

	if emulatorHost := os.Getenv(emulatorDatabaseEnvVar); emulatorHost != "" {
		return emulatorConfig(emulatorHost, u)
	}
	if u.Scheme == "http" && isLocalHost(u.Hostname()) {
		return emulatorConfig(u.Host, u)
	}

	if u.Scheme != "https" {
		return nil, false, fmt.Errorf("invalid database URL (incorrect scheme): %q", dbURL)
	}
	if !strings.HasSuffix(u.Host, ".firebaseio.com") && !strings.HasSuffix(u.Host, ".firebasedatabase.app") {
		return nil, false, fmt.Errorf("invalid database URL (incorrect host): %q", dbURL)
	}
	return &dbURLConfig{
		baseURL: fmt.Sprintf("https://%s", u.Host),
	}, false, nil
}

func emulatorConfig(host string, u *url.URL) (*dbURLConfig, bool, error) {
	if strings.Contains(host, "//") {
		return nil, false, fmt.Errorf("invalid %s: %q; must be in host:port format", emulatorDatabaseEnvVar, host)
	}

	ns := u.Query().Get(emulatorNamespaceParam)
	if ns == "" {
		ns = strings.Split(u.Hostname(), ".")[0]
	}
	if ns == "" {
		return nil, false, fmt.Errorf("invalid database URL: %q; missing namespace", u.String())
	}

	return &dbURLConfig{
		baseURL: fmt.Sprintf("http://%s", host),
		params:  map[string]string{emulatorNamespaceParam: ns},
	}, true, nil
}

func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func parsePath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
