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
	"testing"

	"github.com/comcast/fishyctl/redfish/redfishtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ntpPath = "/redfish/v1/Managers/1/NetworkProtocol"

func lastPatch(srv *redfishtest.Server, path string) *redfishtest.Request {
	reqs := srv.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == http.MethodPatch && reqs[i].Path == path {
			return &reqs[i]
		}
	}
	return nil
}

func Test_Apply(t *testing.T) {
	tests := []struct {
		name            string
		resource        redfishtest.Resource
		usePrecondition bool
		ifMatch         string
	}{
		{
			name:            "tag sent as if-match",
			resource:        redfishtest.Resource{"@odata.etag": `W/"abc"`, "NTP": map[string]interface{}{"ProtocolEnabled": false}},
			usePrecondition: true,
			ifMatch:         `W/"abc"`,
		},
		{
			name:            "no tag no header",
			resource:        redfishtest.Resource{"NTP": map[string]interface{}{"ProtocolEnabled": false}},
			usePrecondition: true,
			ifMatch:         "",
		},
		{
			name:            "precondition not requested",
			resource:        redfishtest.Resource{"@odata.etag": `W/"abc"`, "NTP": map[string]interface{}{"ProtocolEnabled": false}},
			usePrecondition: false,
			ifMatch:         "",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := redfishtest.NewServer(testUser, testPass)
			defer srv.Close()
			srv.Set(ntpPath, test.resource)

			s := openTestSession(t, srv)
			defer s.Close(context.Background())

			res, err := s.Get(context.Background(), ntpPath)
			require.NoError(t, err)

			_, err = s.Apply(context.Background(), res, map[string]interface{}{
				"NTP": map[string]interface{}{"ProtocolEnabled": true},
			}, test.usePrecondition)
			assert.NoError(t, err)

			req := lastPatch(srv, ntpPath)
			require.NotNil(t, req)
			assert.Equal(t, test.ifMatch, req.Header.Get("If-Match"))
			_, present := req.Header["If-Match"]
			assert.Equal(t, test.ifMatch != "", present)

			assert.Equal(t, true, srv.Get(ntpPath)["NTP"].(map[string]interface{})["ProtocolEnabled"])
			assert.Equal(t, 1, srv.Count(http.MethodPatch, ntpPath))
		})
	}
}

func Test_Apply_UsesCurrentTag(t *testing.T) {
	srv := redfishtest.NewServer(testUser, testPass)
	defer srv.Close()
	srv.Set(ntpPath, redfishtest.Resource{"@odata.etag": `"1"`})

	s := openTestSession(t, srv)
	defer s.Close(context.Background())
	ctx := context.Background()

	stale, err := s.Get(ctx, ntpPath)
	require.NoError(t, err)

	// someone else writes in between
	srv.Set(ntpPath, redfishtest.Resource{"@odata.etag": `"2"`})

	_, err = s.Apply(ctx, stale, map[string]interface{}{"HostName": "bmc01"}, true)
	assert.NoError(t, err)
	assert.Equal(t, `"2"`, lastPatch(srv, ntpPath).Header.Get("If-Match"))
}

func Test_Apply_PreconditionFailed(t *testing.T) {
	srv := redfishtest.NewServer(testUser, testPass)
	defer srv.Close()
	srv.Set(ntpPath, redfishtest.Resource{"@odata.etag": `"1"`})
	srv.Fail(http.MethodPatch, ntpPath, http.StatusPreconditionFailed, redfishtest.ExtendedError("etag mismatch"))

	s := openTestSession(t, srv)
	defer s.Close(context.Background())

	res, err := s.Get(context.Background(), ntpPath)
	require.NoError(t, err)

	_, err = s.Apply(context.Background(), res, map[string]interface{}{"HostName": "bmc01"}, true)
	var pre *PreconditionFailedError
	if assert.True(t, errors.As(err, &pre)) {
		assert.Equal(t, `"1"`, pre.ETag)
		assert.Equal(t, "etag mismatch", pre.Err.Message)
	}
	assert.Equal(t, KindPreconditionFailed, Classify(err))
	assert.Equal(t, 1, srv.Count(http.MethodPatch, ntpPath))

	r := Fail(err)
	assert.Equal(t, http.StatusPreconditionFailed, r.Status)
}

func Test_Apply_APIError(t *testing.T) {
	srv := redfishtest.NewServer(testUser, testPass)
	defer srv.Close()
	srv.Set(ntpPath, redfishtest.Resource{})
	srv.Fail(http.MethodPatch, ntpPath, http.StatusBadRequest, redfishtest.ExtendedError("The property NTPServers is read only."))

	s := openTestSession(t, srv)
	defer s.Close(context.Background())

	res, err := s.Get(context.Background(), ntpPath)
	require.NoError(t, err)

	_, err = s.Apply(context.Background(), res, map[string]interface{}{"NTPServers": []string{"a"}}, false)
	var apiErr *APIError
	if assert.True(t, errors.As(err, &apiErr)) {
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, "The property NTPServers is read only.", apiErr.Message)
	}
	assert.Equal(t, KindAPI, Classify(err))
}
