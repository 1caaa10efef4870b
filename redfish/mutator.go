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
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Apply PATCHes fields onto res. With usePrecondition the resource is fetched
// again and its current entity tag, if the BMC publishes one, is sent as
// If-Match; without a tag no precondition header is sent at all.
//
// A 412 comes back as *PreconditionFailedError. Nothing is retried: the caller
// re-reads and re-applies if it wants to.
func (s *Session) Apply(ctx context.Context, res *Resource, fields interface{}, usePrecondition bool) (*Resource, error) {
	var etag string
	if usePrecondition {
		current, err := s.Get(ctx, res.URL)
		if err != nil {
			return nil, err
		}
		etag = current.ETag
	}

	updated, err := s.Patch(ctx, res.URL, fields, etag)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusPreconditionFailed {
			return nil, &PreconditionFailedError{URL: res.URL, ETag: etag, Err: apiErr}
		}
		return nil, err
	}

	s.log.Debug("resource updated", zap.String("url", res.URL), zap.Bool("if_match", etag != ""))
	return updated, nil
}
