// Copyright 2019 Google Inc. All Rights Reserved.
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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/firebase/livelist-go/internal"
	"google.golang.org/api/iterator"
)

// Server event types that carry data.
const (
	EventPut   = "put"
	EventPatch = "patch"
)

const (
	sseKeepAlive   = "keep-alive"
	sseCancel      = "cancel"
	sseAuthRevoked = "auth_revoked"
)

// ServerEvent is a data event received from a streaming Realtime Database connection.
//
// A put event replaces the node at Path (relative to the listened location) with Data. A null
// Data deletes the node. A patch event merges the children of Data into the node at Path.
type ServerEvent struct {
	Type string
	Path string
	Data json.RawMessage
}

// Unmarshal decodes the data of the event into the value pointed to by v.
func (e *ServerEvent) Unmarshal(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// EventStream is a live stream of server events for a database location.
//
// The first event of a stream, and the first event after every reconnect, is a put at the root
// path that carries the complete state of the location.
type EventStream struct {
	q      *Query
	params map[string]string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu   sync.Mutex
	body io.ReadCloser
	r    *bufio.Reader
	err  error
}

// Listen opens a streaming connection for the Query.
//
// Listen returns an error if the initial connection cannot be established. Once connected, the
// stream reconnects transparently with exponential backoff when the connection drops, or when
// the server revokes the credentials of the stream. A stream cancelled by the server, typically
// because the security rules no longer permit reading the location, fails with a
// PERMISSION_DENIED error.
//
// The stream holds on to a connection until Close is called or ctx is done.
func (q *Query) Listen(ctx context.Context) (*EventStream, error) {
	qp, err := q.params()
	if err != nil {
		return nil, err
	}
	if strings.ContainsAny(q.path, invalidChars) {
		return nil, fmt.Errorf(errInvalidPath, q.path)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &EventStream{
		q:      q,
		params: qp,
		logger: q.client.logger.With("path", q.path),
		ctx:    ctx,
		cancel: cancel,
	}
	body, err := s.open()
	if err != nil {
		cancel()
		return nil, err
	}
	s.setBody(body)
	return s, nil
}

// Next blocks until the next put or patch event is received.
//
// Next returns iterator.Done after the stream is closed. Any other error is terminal.
func (s *EventStream) Next() (*ServerEvent, error) {
	for {
		s.mu.Lock()
		r, err := s.r, s.err
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if r == nil {
			if err := s.reconnect(); err != nil {
				return nil, s.fail(err)
			}
			continue
		}

		name, data, err := readEvent(r)
		if err != nil {
			if s.ctx.Err() != nil {
				return nil, s.fail(s.ctx.Err())
			}
			s.logger.Warn("event stream interrupted", "error", err)
			s.setBody(nil)
			continue
		}

		switch name {
		case EventPut, EventPatch:
			var p struct {
				Path string          `json:"path"`
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(data, &p); err != nil {
				return nil, s.fail(fmt.Errorf("invalid %s event data: %v", name, err))
			}
			return &ServerEvent{Type: name, Path: p.Path, Data: p.Data}, nil

		case sseKeepAlive:

		case sseCancel:
			return nil, s.fail(internal.Errorf(
				internal.PermissionDenied, "listener at %q cancelled by the server: %s", s.q.path, data))

		case sseAuthRevoked:
			s.logger.Info("stream credentials revoked; reconnecting")
			s.setBody(nil)

		default:
			s.logger.Debug("ignoring unknown server event", "event", name)
		}
	}
}

// Close terminates the stream and releases the underlying connection. Close unblocks a pending
// Next call.
func (s *EventStream) Close() error {
	s.closed.Store(true)
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = iterator.Done
	}
	if s.body != nil {
		s.body.Close()
		s.body, s.r = nil, nil
	}
	return nil
}

// fail records err as the terminal error of the stream. Errors caused by Close are reported as
// iterator.Done.
func (s *EventStream) fail(err error) error {
	s.mu.Lock()
	if s.err == nil {
		if s.closed.Load() {
			err = iterator.Done
		}
		s.err = err
	}
	err = s.err
	s.mu.Unlock()
	s.cancel()
	return err
}

func (s *EventStream) setBody(body io.ReadCloser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.body != nil {
		s.body.Close()
	}
	s.body = body
	if body == nil {
		s.r = nil
		return
	}
	s.r = bufio.NewReader(body)
}

func (s *EventStream) reconnect() error {
	notify := func(err error, d time.Duration) {
		s.logger.Warn("failed to reconnect event stream", "error", err, "retryIn", d)
	}
	body, err := backoff.Retry(s.ctx, func() (io.ReadCloser, error) {
		body, err := s.open()
		if err != nil && !retryableStreamError(err) {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}, backoff.WithBackOff(s.q.client.newBackOff()), backoff.WithNotify(notify))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		body.Close()
		return s.err
	}
	s.body, s.r = body, bufio.NewReader(body)
	s.logger.Info("event stream reconnected")
	return nil
}

func (s *EventStream) open() (io.ReadCloser, error) {
	opts := s.q.client.requestOpts(
		internal.WithHeader("Accept", "text/event-stream"),
		internal.WithHeader("Cache-Control", "no-cache"),
		internal.WithQueryParams(s.params),
	)
	resp, err := s.q.client.hc.DoStream(s.ctx, &internal.Request{
		Method: http.MethodGet,
		URL:    s.q.client.requestURL(s.q.path),
		Opts:   opts,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func retryableStreamError(err error) bool {
	for _, code := range []internal.ErrorCode{
		internal.Unavailable,
		internal.Internal,
		internal.DeadlineExceeded,
		internal.Unknown,
		internal.ResourceExhausted,
	} {
		if internal.HasPlatformErrorCode(err, code) {
			return true
		}
	}
	return false
}

// readEvent reads a single server-sent event, skipping comments and blank lines in between
// events. Fields other than event and data are ignored.
func readEvent(r *bufio.Reader) (string, []byte, error) {
	var name string
	var data [][]byte
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(line) == 0 {
				return "", nil, io.ErrUnexpectedEOF
			}
			if err != io.EOF {
				return "", nil, err
			}
		}
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if name != "" || len(data) > 0 {
				return name, bytes.Join(data, []byte("\n")), nil
			}
			if err == io.EOF {
				return "", nil, io.ErrUnexpectedEOF
			}
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			name = string(value)
		case "data":
			data = append(data, value)
		}
		if err == io.EOF {
			return "", nil, io.ErrUnexpectedEOF
		}
	}
}
