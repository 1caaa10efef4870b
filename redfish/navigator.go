/*
 * Copyright 2025 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package redfish

import (
	"context"
	"strconv"
)

// Predicate selects a collection member.
type Predicate func(*Resource) bool

// Visitor is called for each collection member in order. Returning stop=true
// ends the scan early.
type Visitor func(index int, member *Resource) (stop bool, err error)

// FieldEquals matches members whose field equals value.
func FieldEquals(field, value string) Predicate {
	return func(r *Resource) bool {
		v := r.Get(field)
		return v.Exists() && v.String() == value
	}
}

// Members fetches a collection and returns its member URLs in index order
// 0..Members@odata.count-1.
func (s *Session) Members(ctx context.Context, collectionURL string) ([]string, error) {
	coll, err := s.Get(ctx, collectionURL)
	if err != nil {
		return nil, err
	}
	return coll.Members()
}

// Members returns the member URLs of a collection representation in index
// order 0..Members@odata.count-1.
func (r *Resource) Members() ([]string, error) {
	var count int
	if c := r.Get(odataCount); c.Exists() {
		count = int(c.Int())
	} else {
		count = len(r.Get("Members").Array())
	}

	urls := make([]string, 0, count)
	for i := 0; i < count; i++ {
		link := r.Get("Members." + strconv.Itoa(i) + "." + odataID)
		if !link.Exists() || link.String() == "" {
			return nil, &PathError{URL: r.URL, Link: "Members." + strconv.Itoa(i)}
		}
		urls = append(urls, link.String())
	}
	return urls, nil
}

// ScanMembers fetches every member of a collection in order and hands it to
// visit. The member list is materialised before the first member fetch. A
// member that cannot be read aborts the scan with its error.
func (s *Session) ScanMembers(ctx context.Context, collectionURL string, visit Visitor) error {
	urls, err := s.Members(ctx, collectionURL)
	if err != nil {
		return err
	}

	for i, u := range urls {
		member, err := s.Get(ctx, u)
		if err != nil {
			return err
		}
		stop, err := visit(i, member)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// FindMember returns the first member satisfying pred and its index. After
// examining all N members without a match it returns a *NotFoundError.
func (s *Session) FindMember(ctx context.Context, collectionURL string, pred Predicate) (*Resource, int, error) {
	var found *Resource
	index := -1
	examined := 0

	err := s.ScanMembers(ctx, collectionURL, func(i int, member *Resource) (bool, error) {
		examined++
		if pred(member) {
			found = member
			index = i
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, -1, err
	}
	if found == nil {
		return nil, -1, &NotFoundError{Collection: collectionURL, Examined: examined}
	}
	return found, index, nil
}

// ResolvePath starts at rootURL and follows each link in turn, fetching the
// resource at every hop. A link name may be a dotted path into a nested
// object, e.g. "Oem.Lenovo.ServiceData".
func (s *Session) ResolvePath(ctx context.Context, rootURL string, links ...string) (*Resource, error) {
	current, err := s.Get(ctx, rootURL)
	if err != nil {
		return nil, err
	}
	for _, name := range links {
		next, err := current.Link(name)
		if err != nil {
			return nil, err
		}
		current, err = s.Get(ctx, next)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}
