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

// Package analytics contains functions for logging events to Google Analytics, and a registry
// through which an application can share its Analytics clients.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"runtime"
	"strings"

	"github.com/firebase/livelist-go/internal"
	"github.com/google/uuid"
)

const (
	defaultEndpoint     = "https://www.google-analytics.com/mp/collect"
	userAgentFormat     = "Firebase/HTTP/%s/%s/LivelistGo"
	maxEventsPerPayload = 25
	maxParamsPerEvent   = 25
)

var (
	eventNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,39}$`)
	reservedPrefixes = []string{"firebase_", "google_", "ga_"}
)

// Client is the interface for the Analytics service.
//
// Events are sent with the Google Analytics Measurement Protocol.
type Client struct {
	hc            *internal.HTTPClient
	endpoint      string
	measurementID string
	apiSecret     string
	clientID      string
}

// NewClient creates a new instance of the Analytics Client.
//
// This function can only be invoked from within the SDK. Client applications should access the
// Analytics service through firebase.App.
func NewClient(ctx context.Context, c *internal.AnalyticsConfig) (*Client, error) {
	if c.MeasurementID == "" {
		return nil, errors.New("measurement id is required to access Analytics")
	}
	if c.APISecret == "" {
		return nil, errors.New("api secret is required to access Analytics")
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	client := internal.WithDefaultRetryConfig(hc)
	client.CreateErrFn = handleAnalyticsError
	client.Opts = []internal.HTTPOption{
		internal.WithHeader("User-Agent", fmt.Sprintf(userAgentFormat, c.Version, runtime.Version())),
	}
	return &Client{
		hc:            client,
		endpoint:      endpoint,
		measurementID: c.MeasurementID,
		apiSecret:     c.APISecret,
		clientID:      uuid.NewString(),
	}, nil
}

// MeasurementID returns the ID of the data stream this client reports to.
func (c *Client) MeasurementID() string {
	return c.measurementID
}

// ClientID returns the pseudonymous ID used for events logged with LogEvent.
func (c *Client) ClientID() string {
	return c.clientID
}

// Event is a single Analytics event.
type Event struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Payload is a batch of events reported for one client.
type Payload struct {
	ClientID string   `json:"client_id"`
	UserID   string   `json:"user_id,omitempty"`
	Events   []*Event `json:"events"`
}

// LogEvent sends a single event, attributed to the ClientID of this client.
func (c *Client) LogEvent(ctx context.Context, e *Event) error {
	return c.Send(ctx, &Payload{
		ClientID: c.clientID,
		Events:   []*Event{e},
	})
}

// Send sends a batch of events.
//
// A payload must carry a client ID and between 1 and 25 events.
func (c *Client) Send(ctx context.Context, p *Payload) error {
	if err := validatePayload(p); err != nil {
		return err
	}

	req := &internal.Request{
		Method: http.MethodPost,
		URL:    c.endpoint,
		Body:   internal.NewJSONEntity(p),
		Opts: []internal.HTTPOption{
			internal.WithQueryParams(map[string]string{
				"measurement_id": c.measurementID,
				"api_secret":     c.apiSecret,
			}),
		},
	}
	_, err := c.hc.Do(ctx, req)
	return err
}

func handleAnalyticsError(resp *internal.Response) error {
	return internal.NewFirebaseErrorOnePlatform(resp)
}

func validatePayload(p *Payload) error {
	if p == nil {
		return errors.New("payload must not be nil")
	}
	if p.ClientID == "" {
		return errors.New("client id must not be empty")
	}
	if len(p.Events) == 0 || len(p.Events) > maxEventsPerPayload {
		return fmt.Errorf("payload must contain between 1 and %d events", maxEventsPerPayload)
	}
	for _, e := range p.Events {
		if err := validateEvent(e); err != nil {
			return err
		}
	}
	return nil
}

func validateEvent(e *Event) error {
	if e == nil {
		return errors.New("event must not be nil")
	}
	if !eventNamePattern.MatchString(e.Name) {
		return fmt.Errorf("invalid event name %q: must start with a letter, contain only letters, "+
			"digits and underscores, and be at most 40 characters long", e.Name)
	}
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(e.Name, prefix) {
			return fmt.Errorf("invalid event name %q: prefix %q is reserved", e.Name, prefix)
		}
	}
	if len(e.Params) > maxParamsPerEvent {
		return fmt.Errorf("event %q has more than %d params", e.Name, maxParamsPerEvent)
	}
	for k := range e.Params {
		if !eventNamePattern.MatchString(k) {
			return fmt.Errorf("invalid param name %q in event %q", k, e.Name)
		}
	}
	return nil
}
