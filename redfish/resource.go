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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// ServiceRoot is the default Redfish service root path
	ServiceRoot = "/redfish/v1"

	odataID    = `@odata\.id`
	odataEtag  = `@odata\.etag`
	odataCount = `Members@odata\.count`
)

// Resource is one fetched representation. It carries no identity beyond its URL.
type Resource struct {
	URL  string
	ETag string
	Raw  []byte
}

func newResource(url string, raw []byte, etagHeader string) *Resource {
	r := &Resource{URL: url}
	if gjson.ValidBytes(raw) {
		r.Raw = raw
	}
	if tag := r.Get(odataEtag); tag.Exists() && tag.String() != "" {
		r.ETag = tag.String()
	} else {
		r.ETag = etagHeader
	}
	return r
}

// Get returns the value at a gjson path, e.g. "Oem.Lenovo.DateTimeService".
// Keys containing dots must be escaped ("@odata\\.id").
func (r *Resource) Get(path string) gjson.Result {
	if r == nil || len(r.Raw) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Raw, path)
}

// String is a convenience for Get(path).String().
func (r *Resource) String(path string) string {
	return r.Get(path).String()
}

// Has reports whether path exists in the representation.
func (r *Resource) Has(path string) bool {
	return r.Get(path).Exists()
}

// ID returns the @odata.id of the representation, or the URL it was fetched from.
func (r *Resource) ID() string {
	if id := r.String(odataID); id != "" {
		return id
	}
	return r.URL
}

// Link returns the @odata.id of the object at path.
func (r *Resource) Link(path string) (string, error) {
	link := r.Get(path + "." + odataID)
	if !link.Exists() || link.String() == "" {
		return "", &PathError{URL: r.URL, Link: path}
	}
	return link.String(), nil
}

// Target returns the target URI of a Redfish action, e.g.
// "#LenovoDateTimeService.ImmediatelySync".
func (r *Resource) Target(action string) (string, error) {
	path := "Actions." + escapeKey(action) + ".target"
	target := r.Get(path)
	if !target.Exists() || target.String() == "" {
		return "", &PathError{URL: r.URL, Link: "Actions." + action}
	}
	return target.String(), nil
}

// Decode unmarshals the representation into v.
func (r *Resource) Decode(v interface{}) error {
	if r == nil || len(r.Raw) == 0 {
		return fmt.Errorf("resource has no representation to decode")
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("error unmarshalling %s - %w", r.URL, err)
	}
	return nil
}

// Map returns the representation as a field mapping.
func (r *Resource) Map() map[string]interface{} {
	m, ok := r.Get("@this").Value().(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return m
}

func escapeKey(k string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(k)
}
