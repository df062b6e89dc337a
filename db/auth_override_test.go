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

package db

import (
	"context"
	"testing"
)

func TestAuthOverrideRequests(t *testing.T) {
	ref := aoClient.NewRef("peter")
	cases := []struct {
		Name string
		Op   func(ctx context.Context) error
		Want *testReq
	}{
		{
			Name: "Get",
			Op: func(ctx context.Context) error {
				var got string
				return ref.Get(ctx, &got)
			},
			Want: &testReq{Method: "GET", Path: "/peter.json"},
		},
		{
			Name: "Set",
			Op: func(ctx context.Context) error {
				return ref.Set(ctx, "data")
			},
			Want: &testReq{
				Method: "PUT",
				Path:   "/peter.json",
				Body:   serialize("data"),
				Query:  map[string]string{"print": "silent"},
			},
		},
		{
			Name: "Query",
			Op: func(ctx context.Context) error {
				var got string
				return ref.OrderByChild("foo").Get(ctx, &got)
			},
			Want: &testReq{
				Method: "GET",
				Path:   "/peter.json",
				Query:  map[string]string{"orderBy": "\"foo\""},
			},
		},
		{
			Name: "RangeQuery",
			Op: func(ctx context.Context) error {
				var got string
				return ref.OrderByChild("foo").StartAt(1).EndAt(10).Get(ctx, &got)
			},
			Want: &testReq{
				Method: "GET",
				Path:   "/peter.json",
				Query:  map[string]string{"orderBy": "\"foo\"", "startAt": "1", "endAt": "10"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			mock := &mockServer{Resp: "data"}
			srv := mock.Start(aoClient)
			defer srv.Close()

			if err := tc.Op(context.Background()); err != nil {
				t.Fatal(err)
			}
			if tc.Want.Query == nil {
				tc.Want.Query = make(map[string]string)
			}
			tc.Want.Query["auth_variable_override"] = testAuthOverrides
			checkOnlyRequest(t, mock.Reqs, tc.Want)
		})
	}
}

func TestAuthOverrideListen(t *testing.T) {
	srv := startSSEServer(t, aoClient, func(w *sseWriter) {
		w.event("put", `{"path":"/","data":"data"}`)
		w.wait()
	})
	defer srv.Close()

	s, err := aoClient.NewRef("peter").OrderByKey().LimitToFirst(2).Listen(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Next(); err != nil {
		t.Fatal(err)
	}
	checkOnlyRequest(t, srv.Reqs(), &testReq{
		Method: "GET",
		Path:   "/peter.json",
		Query: map[string]string{
			"auth_variable_override": testAuthOverrides,
			"orderBy":                "\"$key\"",
			"limitToFirst":           "2",
		},
	})
}
