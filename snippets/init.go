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

// [START livelist_import_golang]
import (
	"context"
	"log"
	"log/slog"
	"os"

	firebase "github.com/firebase/livelist-go"
	"github.com/firebase/livelist-go/db"
	"google.golang.org/api/option"
)

// [END livelist_import_golang]

func initializeAppWithServiceAccount() *firebase.App {
	// [START initialize_app_service_account_golang]
	opt := option.WithCredentialsFile("path/to/serviceAccountKey.json")
	conf := &firebase.Config{
		DatabaseURL: "https://databaseName.firebaseio.com",
	}
	app, err := firebase.NewApp(context.Background(), conf, opt)
	if err != nil {
		log.Fatalf("error initializing app: %v\n", err)
	}
	// [END initialize_app_service_account_golang]

	return app
}

func initializeAppDefault() *firebase.App {
	// [START initialize_app_default_golang]
	// Reads the config from FIREBASE_CONFIG and the credentials from
	// GOOGLE_APPLICATION_CREDENTIALS.
	app, err := firebase.NewApp(context.Background(), nil)
	if err != nil {
		log.Fatalf("error initializing app: %v\n", err)
	}
	// [END initialize_app_default_golang]

	return app
}

func initializeAppWithLogger() *firebase.App {
	// [START initialize_app_logger_golang]
	conf := &firebase.Config{
		DatabaseURL: "https://databaseName.firebaseio.com",
		Logger:      slog.New(slog.NewJSONHandler(os.Stderr, nil)),
	}
	app, err := firebase.NewApp(context.Background(), conf)
	if err != nil {
		log.Fatalf("error initializing app: %v\n", err)
	}
	// [END initialize_app_logger_golang]

	return app
}

func authenticateWithLimitedPrivileges() *db.Client {
	// [START authenticate_with_limited_privileges]
	ctx := context.Background()
	// Create a database client with limited privileges. Security Rules see
	// auth.uid == "my-service-worker".
	ao := map[string]interface{}{"uid": "my-service-worker"}
	conf := &firebase.Config{
		DatabaseURL:  "https://databaseName.firebaseio.com",
		AuthOverride: &ao,
	}
	app, err := firebase.NewApp(ctx, conf)
	if err != nil {
		log.Fatalln("Error initializing app:", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		log.Fatalln("Error initializing database client:", err)
	}
	// [END authenticate_with_limited_privileges]

	return client
}
