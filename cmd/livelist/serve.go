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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/firebase/livelist-go/analytics"
	"github.com/firebase/livelist-go/list"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

const (
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	maxCloseReason  = 120
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve live lists to browsers over WebSocket",
	Long: "Serves GET /lists/{path}. The request is upgraded to a WebSocket, and every snapshot " +
		"of the list is written as a JSON text message. Query parameters source, orderBy, " +
		"limitToFirst, limitToLast and events select the list.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx := cmd.Context()
	app, err := cfg.newApp(ctx)
	if err != nil {
		return err
	}
	resolvers, cleanup, err := newResolvers(ctx, cfg, app)
	if err != nil {
		return err
	}
	defer cleanup()

	s := &server{
		resolvers: resolvers,
		analytics: analytics.NewRegistry(),
		logger:    slog.Default(),
	}
	go s.logAnalyticsInstances(ctx)
	if cfg.MeasurementID != "" {
		client, err := app.Analytics(ctx)
		if err != nil {
			return fmt.Errorf("create analytics client: %w", err)
		}
		if err := s.analytics.Register("default", client); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.router(),
		// Shutdown does not wait for hijacked connections. Deriving request contexts from ctx
		// ends the WebSocket subscriptions when the command stops.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("livelist serving", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// server bridges live lists to WebSocket clients.
type server struct {
	resolvers map[string]resolver
	analytics *analytics.Registry
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

func (s *server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/lists/{path:.+}", s.handleList).Methods(http.MethodGet)
	return r
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	o, err := parseListQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resolve, ok := s.resolvers[o.source]
	if !ok {
		http.Error(w, fmt.Sprintf("source %q is not configured", o.source), http.StatusBadRequest)
		return
	}
	src, err := resolve(path, o)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts, err := o.listOpts()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "path", path, "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("path", path, "source", o.source)
	logger.Info("list subscribed")
	s.logSubscription(path, o.source)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The client never sends data messages. A read error means the socket is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err = list.ForEach(ctx, src, func(snap list.Snapshot) error {
		b, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, b)
	}, opts...)

	code, reason := websocket.CloseNormalClosure, ""
	if err != nil && ctx.Err() == nil {
		logger.Warn("list failed", "error", err)
		code, reason = websocket.CloseInternalServerErr, truncate(err.Error(), maxCloseReason)
	}
	if ctx.Err() == nil {
		msg := websocket.FormatCloseMessage(code, reason)
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	}
	logger.Info("list unsubscribed")
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// logSubscription reports a new subscription to every registered Analytics client.
func (s *server) logSubscription(path, source string) {
	instances := s.analytics.Instances()
	if len(instances) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		ev := &analytics.Event{
			Name:   "list_subscribed",
			Params: map[string]interface{}{"list_path": path, "list_source": source},
		}
		for _, inst := range instances {
			if err := inst.Client.LogEvent(ctx, ev); err != nil {
				s.logger.Warn("analytics event failed", "instance", inst.Name, "error", err)
			}
		}
	}()
}

func (s *server) logAnalyticsInstances(ctx context.Context) {
	for c := range s.analytics.Watch(ctx) {
		s.logger.Info("analytics enabled", "measurement_id", c.MeasurementID())
	}
}
