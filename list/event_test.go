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

package list

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseEventType(t *testing.T) {
	cases := []struct {
		in   string
		want EventType
	}{
		{"added", Added},
		{"changed", Changed},
		{"removed", Removed},
		{"moved", Moved},
		{"child_added", Added},
		{"child_changed", Changed},
		{"child_removed", Removed},
		{"child_moved", Moved},
	}
	for _, tc := range cases {
		got, err := ParseEventType(tc.in)
		if err != nil {
			t.Errorf("ParseEventType(%q) = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseEventType(%q) = %q; want = %q", tc.in, got, tc.want)
		}
	}
}

func TestParseEventTypeError(t *testing.T) {
	for _, in := range []string{"", "unknown", "Added", "child_"} {
		if got, err := ParseEventType(in); err == nil {
			t.Errorf("ParseEventType(%q) = %q; want error", in, got)
		}
	}
}

func TestEventUnmarshalJSON(t *testing.T) {
	var ev ChildEvent
	in := `{"type":"moved","key":"b","previousKey":"a"}`
	if err := json.Unmarshal([]byte(in), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != Moved || ev.Key != "b" || ev.PrevKey == nil || *ev.PrevKey != "a" {
		t.Errorf("Unmarshal() = %+v", ev)
	}
}

func TestEventValidate(t *testing.T) {
	cases := []struct {
		name   string
		ev     ChildEvent
		reason string
	}{
		{"UnknownType", ChildEvent{Type: "unknown", Key: "a"}, "unknown event type"},
		{"MissingKey", ChildEvent{Type: Removed}, "missing key"},
		{"AddedWithoutValue", ChildEvent{Type: Added, Key: "a"}, "missing value"},
		{"ChangedWithoutValue", ChildEvent{Type: Changed, Key: "a"}, "missing value"},
	}
	for _, tc := range cases {
		err := tc.ev.validate()
		var ee *EventError
		if !errors.As(err, &ee) {
			t.Errorf("%s: validate() = %v; want = *EventError", tc.name, err)
			continue
		}
		if !strings.Contains(ee.Reason, tc.reason) {
			t.Errorf("%s: Reason = %q; want = %q", tc.name, ee.Reason, tc.reason)
		}
	}

	for _, ev := range []ChildEvent{
		{Type: Removed, Key: "a"},
		{Type: Moved, Key: "a"},
		{Type: Added, Key: "a", Value: json.RawMessage(`null`)},
	} {
		if err := ev.validate(); err != nil {
			t.Errorf("validate(%+v) = %v", ev, err)
		}
	}
}
