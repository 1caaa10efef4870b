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

package operations

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/comcast/fishyctl/oem"
	"github.com/comcast/fishyctl/redfish"
)

// SystemLog reads every entry of every log service of every system.
type SystemLog struct{}

func (l *SystemLog) Name() string { return NameSystemLog }

func (l *SystemLog) Validate() error { return nil }

func (l *SystemLog) Execute(ctx context.Context, s *redfish.Session) (redfish.Result, error) {
	systems, err := rootMembers(ctx, s, "Systems", "system")
	if err != nil {
		return redfish.Result{}, err
	}

	entries := []oem.LogEntry{}
	for _, sys := range systems {
		services, err := s.ResolvePath(ctx, sys, "LogServices")
		if err != nil {
			return redfish.Result{}, err
		}
		urls, err := services.Members()
		if err != nil {
			return redfish.Result{}, err
		}
		for _, u := range urls {
			coll, err := s.ResolvePath(ctx, u, "Entries")
			if err != nil {
				return redfish.Result{}, err
			}
			entries, err = readEntries(ctx, s, coll, entries)
			if err != nil {
				return redfish.Result{}, err
			}
		}
	}
	return redfish.OKEntries("", entries), nil
}

// readEntries appends the entries of coll and of every following page.
// Members are normally expanded inline; a bare link is fetched.
func readEntries(ctx context.Context, s *redfish.Session, coll *redfish.Resource, entries []oem.LogEntry) ([]oem.LogEntry, error) {
	for seen := map[string]bool{coll.URL: true}; ; {
		for _, m := range coll.Get("Members").Array() {
			raw := []byte(m.Raw)
			if !m.Get("Message").Exists() && !m.Get("Name").Exists() {
				link := m.Get(`@odata\.id`).String()
				if link == "" {
					continue
				}
				res, err := s.Get(ctx, link)
				if err != nil {
					return entries, err
				}
				raw = res.Raw
			}
			var e oem.LogEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				return entries, fmt.Errorf("error decoding log entry in %s - %w", coll.URL, err)
			}
			entries = append(entries, e)
		}

		next := coll.Get(`Members@odata\.nextLink`).String()
		if next == "" || seen[next] {
			return entries, nil
		}
		seen[next] = true
		page, err := s.Get(ctx, next)
		if err != nil {
			return entries, err
		}
		coll = page
	}
}
