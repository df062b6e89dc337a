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

package db

import (
	"cmp"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

type orderKind int

const (
	orderByKey orderKind = iota
	orderByValue
	orderByChild
)

type ordering struct {
	kind  orderKind
	child string
}

type child struct {
	key   string
	value json.RawMessage
}

func newChild(k string, v json.RawMessage) child {
	return child{key: k, value: v}
}

func (o ordering) sort(cs []child) {
	slices.SortStableFunc(cs, o.compare)
}

// compare orders children the way the Realtime Database does: by sort value first, with ties
// broken by key.
func (o ordering) compare(a, b child) int {
	if o.kind != orderByKey {
		if c := compareValues(o.sortValue(a), o.sortValue(b)); c != 0 {
			return c
		}
	}
	return compareKeys(a.key, b.key)
}

func (o ordering) sortValue(c child) gjson.Result {
	if o.kind == orderByValue {
		return gjson.ParseBytes(c.value)
	}
	return gjson.GetBytes(c.value, jsonPath(parsePath(o.child)))
}

// compareKeys sorts keys that are canonical 32-bit integers first, in numeric order, followed by
// all other keys in lexicographic order.
func compareKeys(a, b string) int {
	ai, aok := intKey(a)
	bi, bok := intKey(b)
	switch {
	case aok && bok:
		return cmp.Compare(ai, bi)
	case aok:
		return -1
	case bok:
		return 1
	}
	return strings.Compare(a, b)
}

func intKey(k string) (int64, bool) {
	n, err := strconv.ParseInt(k, 10, 32)
	if err != nil || strconv.FormatInt(n, 10) != k {
		return 0, false
	}
	return n, true
}

// valueRank orders value types: null < false < true < numbers < strings < objects.
func valueRank(r gjson.Result) int {
	switch r.Type {
	case gjson.False:
		return 1
	case gjson.True:
		return 2
	case gjson.Number:
		return 3
	case gjson.String:
		return 4
	case gjson.JSON:
		return 5
	}
	return 0
}

func compareValues(a, b gjson.Result) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch a.Type {
	case gjson.Number:
		return cmp.Compare(a.Float(), b.Float())
	case gjson.String:
		return strings.Compare(a.Str, b.Str)
	}
	return 0
}

const pathSpecialChars = `\.*?|#@!=<>%,~:`

// jsonPath converts database path segments into a gjson/sjson path.
func jsonPath(segs []string) string {
	escaped := make([]string, len(segs))
	for i, s := range segs {
		var sb strings.Builder
		for _, r := range s {
			if strings.ContainsRune(pathSpecialChars, r) {
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		}
		escaped[i] = sb.String()
	}
	return strings.Join(escaped, ".")
}
