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
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/firebase/livelist-go/list"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var watchOpts listOptions

func init() {
	rootCmd.AddCommand(watchCmd, replayCmd)
	addListFlags(watchCmd.Flags(), &watchOpts)
	replayCmd.Flags().StringSlice("events", nil, "child event types to apply (default all)")
}

var watchCmd = &cobra.Command{
	Use:   "watch <path>...",
	Short: "Print the snapshots of live lists as JSON lines",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

var replayCmd = &cobra.Command{
	Use:   "replay [file]",
	Short: "Print the snapshots produced by a recorded child event log",
	Long: "Reads newline-delimited JSON child events from file, or from stdin when no file is " +
		"given, and prints the snapshot after each event.",
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

// snapshotLine is a single line of output.
type snapshotLine struct {
	Path   string        `json:"path,omitempty"`
	Keys   []string      `json:"keys"`
	Values list.Snapshot `json:"values"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	if err := watchOpts.validate(); err != nil {
		return err
	}

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

	resolve, ok := resolvers[watchOpts.source]
	if !ok {
		return fmt.Errorf("source %q is not configured", watchOpts.source)
	}
	return watch(ctx, cmd.OutOrStdout(), resolve, &watchOpts, args)
}

// watch prints the snapshots of every path until the lists end or ctx is cancelled.
func watch(ctx context.Context, w io.Writer, resolve resolver, o *listOptions, paths []string) error {
	opts, err := o.listOpts()
	if err != nil {
		return err
	}

	sources := make([]list.Source, len(paths))
	for i, p := range paths {
		if sources[i], err = resolve(p, o); err != nil {
			return err
		}
	}

	var mu sync.Mutex
	enc := json.NewEncoder(w)
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			slog.Debug("watching list", "path", p, "source", o.source)
			err := list.ForEach(gctx, sources[i], func(s list.Snapshot) error {
				mu.Lock()
				defer mu.Unlock()
				return enc.Encode(&snapshotLine{Path: p, Keys: s.Keys(), Values: s})
			}, opts...)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watch %s: %w", p, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func runReplay(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	events, _ := cmd.Flags().GetStringSlice("events")
	o := &listOptions{events: events}
	opts, err := o.listOpts()
	if err != nil {
		return err
	}
	return replay(cmd.Context(), cmd.OutOrStdout(), r, opts...)
}

// replay prints the snapshot after each child event read from r.
func replay(ctx context.Context, w io.Writer, r io.Reader, opts ...list.Option) error {
	enc := json.NewEncoder(w)
	return list.ForEach(ctx, list.Decode(r), func(s list.Snapshot) error {
		return enc.Encode(&snapshotLine{Keys: s.Keys(), Values: s})
	}, opts...)
}
