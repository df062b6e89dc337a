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
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	firebase "github.com/firebase/livelist-go"
	"google.golang.org/api/option"
)

// config holds the settings of the command, read from the environment.
type config struct {
	DatabaseURL        string `env:"LIVELIST_DATABASE_URL"`
	ProjectID          string `env:"LIVELIST_PROJECT_ID"`
	CredentialsFile    string `env:"LIVELIST_CREDENTIALS_FILE"`
	ListenAddr         string `env:"LIVELIST_LISTEN_ADDR" envDefault:":8080"`
	LogLevel           string `env:"LIVELIST_LOG_LEVEL" envDefault:"info"`
	MeasurementID      string `env:"LIVELIST_MEASUREMENT_ID"`
	AnalyticsAPISecret string `env:"LIVELIST_ANALYTICS_API_SECRET"`
}

func loadConfig() (*config, error) {
	cfg := &config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func (c *config) newApp(ctx context.Context) (*firebase.App, error) {
	var opts []option.ClientOption
	if c.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	conf := &firebase.Config{
		DatabaseURL:        c.DatabaseURL,
		ProjectID:          c.ProjectID,
		MeasurementID:      c.MeasurementID,
		AnalyticsAPISecret: c.AnalyticsAPISecret,
		Logger:             slog.Default(),
	}
	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("create app: %w", err)
	}
	return app, nil
}
