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
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/firebase/livelist-go/internal"
)

// QueryNode represents a data node retrieved from an ordered query.
type QueryNode interface {
	Key() string
	Unmarshal(v interface{}) error
}

// Query represents a complex query that can be executed on a Ref.
//
// Complex queries can consist of up to 2 components: a required ordering constraint, and an
// optional filtering constraint. At the server, data is first sorted according to the given
// ordering constraint (e.g. order by child). Then the filtering constraint (e.g. limit, range) is
// applied on the sorted data to produce the final result. Despite the ordering constraint, the
// final result is returned by the server as an unordered collection. Therefore the values read
// from a Query instance are not ordered. GetOrdered and ChildEvents restore the order on the
// client side.
type Query struct {
	client        *Client
	path          string
	order         ordering
	explicitOrder bool

	limFirst, limLast       int
	start, end, equalTo     interface{}
	hasStart, hasEnd, hasEq bool
}

// OrderByChild returns a Query that orders data by child values before applying filters.
//
// Returned Query can be used to set additional parameters, and execute complex database queries
// (e.g. limit queries, range queries).
func (r *Ref) OrderByChild(child string) *Query {
	return r.newQuery(ordering{kind: orderByChild, child: child})
}

// OrderByKey returns a Query that orders data by key before applying filters.
func (r *Ref) OrderByKey() *Query {
	return r.newQuery(ordering{kind: orderByKey})
}

// OrderByValue returns a Query that orders data by value before applying filters.
func (r *Ref) OrderByValue() *Query {
	return r.newQuery(ordering{kind: orderByValue})
}

func (r *Ref) newQuery(o ordering) *Query {
	return &Query{
		client:        r.client,
		path:          r.Path,
		order:         o,
		explicitOrder: true,
	}
}

// StartAt returns a shallow copy of the Query with v set as a lower bound of a range query.
//
// The resulting Query will only return child nodes with a value greater than or equal to v.
func (q *Query) StartAt(v interface{}) *Query {
	q2 := *q
	q2.start, q2.hasStart = v, true
	return &q2
}

// EndAt returns a shallow copy of the Query with v set as a upper bound of a range query.
//
// The resulting Query will only return child nodes with a value less than or equal to v.
func (q *Query) EndAt(v interface{}) *Query {
	q2 := *q
	q2.end, q2.hasEnd = v, true
	return &q2
}

// EqualTo returns a shallow copy of the Query with v set as an equals constraint.
func (q *Query) EqualTo(v interface{}) *Query {
	q2 := *q
	q2.equalTo, q2.hasEq = v, true
	return &q2
}

// LimitToFirst returns a shallow copy of the Query, which is anchored to the first n
// elements of the window.
func (q *Query) LimitToFirst(n int) *Query {
	q2 := *q
	q2.limFirst = n
	return &q2
}

// LimitToLast returns a shallow copy of the Query, which is anchored to the last n
// elements of the window.
func (q *Query) LimitToLast(n int) *Query {
	q2 := *q
	q2.limLast = n
	return &q2
}

// Get executes the Query and populates v with the results.
//
// Data deserialization is performed using https://golang.org/pkg/encoding/json/#Unmarshal, and
// therefore v has the same requirements as the json package. Specifically, it must be a pointer,
// and must not be nil.
//
// Despite the ordering constraint of the Query, results are not stored in any particular order
// in v. Use GetOrdered to retrieve the results in order.
func (q *Query) Get(ctx context.Context, v interface{}) error {
	qp, err := q.params()
	if err != nil {
		return err
	}

	resp, err := q.client.send(ctx, http.MethodGet, q.path, nil, internal.WithQueryParams(qp))
	if err != nil {
		return err
	}
	return resp.Unmarshal(v)
}

// GetOrdered executes the Query and returns the results as an ordered slice.
func (q *Query) GetOrdered(ctx context.Context) ([]QueryNode, error) {
	var temp map[string]json.RawMessage
	if err := q.Get(ctx, &temp); err != nil {
		return nil, err
	}

	children := make([]child, 0, len(temp))
	for k, v := range temp {
		children = append(children, newChild(k, v))
	}
	q.order.sort(children)

	result := make([]QueryNode, len(children))
	for i, c := range children {
		result[i] = &queryNodeImpl{key: c.key, value: c.value}
	}
	return result, nil
}

func (q *Query) params() (map[string]string, error) {
	qp := make(map[string]string)
	if q.explicitOrder {
		ob, err := q.order.param()
		if err != nil {
			return nil, err
		}
		qp["orderBy"] = ob
	}

	if q.limFirst < 0 || q.limLast < 0 {
		return nil, fmt.Errorf("limit parameters must not be negative: %d, %d", q.limFirst, q.limLast)
	}
	if q.limFirst > 0 && q.limLast > 0 {
		return nil, fmt.Errorf("cannot set both limit parameters")
	}
	if q.limFirst > 0 {
		qp["limitToFirst"] = strconv.Itoa(q.limFirst)
	} else if q.limLast > 0 {
		qp["limitToLast"] = strconv.Itoa(q.limLast)
	}

	if q.hasEq && (q.hasStart || q.hasEnd) {
		return nil, fmt.Errorf("cannot set both equalTo and range parameters")
	}
	for _, p := range []struct {
		name string
		set  bool
		v    interface{}
	}{
		{"startAt", q.hasStart, q.start},
		{"endAt", q.hasEnd, q.end},
		{"equalTo", q.hasEq, q.equalTo},
	} {
		if !p.set {
			continue
		}
		if !q.explicitOrder {
			return nil, fmt.Errorf("%s requires an ordering constraint", p.name)
		}
		b, err := json.Marshal(p.v)
		if err != nil {
			return nil, err
		}
		qp[p.name] = string(b)
	}
	return qp, nil
}

func (o ordering) param() (string, error) {
	var ob string
	switch o.kind {
	case orderByKey:
		ob = "$key"
	case orderByValue:
		ob = "$value"
	case orderByChild:
		if o.child == "" {
			return "", fmt.Errorf("key must not be empty")
		}
		if strings.ContainsAny(o.child, invalidChars) {
			return "", fmt.Errorf("invalid child path with illegal characters: %q", o.child)
		}
		segs := parsePath(o.child)
		if len(segs) == 0 {
			return "", fmt.Errorf("invalid child path: %q", o.child)
		}
		ob = strings.Join(segs, "/")
	}
	b, err := json.Marshal(ob)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type queryNodeImpl struct {
	key   string
	value json.RawMessage
}

func (q *queryNodeImpl) Key() string {
	return q.key
}

func (q *queryNodeImpl) Unmarshal(v interface{}) error {
	return json.Unmarshal(q.value, v)
}
