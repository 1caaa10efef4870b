/*
 * Copyright 2023 Comcast Cable Communications Management, LLC
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

package logger

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/comcast/fishyctl/config"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const vectorScheme = "vector"

var (
	registerOnce sync.Once
	registerErr  error
)

type vectorSink struct {
	name     string
	client   *retryablehttp.Client
	endpoint *url.URL
}

// registerVectorSink makes vector://host/path?scheme=http URLs openable
// with zap.Open. Sinks can only be registered once per process.
func registerVectorSink() error {
	registerOnce.Do(func() {
		registerErr = zap.RegisterSink(vectorScheme, initVectorSink)
	})
	return registerErr
}

func vectorSinkURL(endpoint *url.URL) string {
	u := url.URL{
		Scheme:   vectorScheme,
		Host:     endpoint.Host,
		Path:     endpoint.Path,
		RawQuery: url.Values{"scheme": {endpoint.Scheme}}.Encode(),
	}
	return u.String()
}

func newVectorSink(u *url.URL) vectorSink {

	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 3 * time.Second,
		}).Dial,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.GetConfig().InsecureSkipVerify,
		},
		TLSHandshakeTimeout: 10 * time.Second,
	}

	retryClient := retryablehttp.NewClient()
	retryClient.CheckRetry = retryablehttp.ErrorPropagatedRetryPolicy
	retryClient.HTTPClient.Transport = tr
	retryClient.HTTPClient.Timeout = 30 * time.Second
	retryClient.Logger = nil
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 1 * time.Second
	retryClient.RetryMax = 2
	retryClient.RequestLogHook = func(l retryablehttp.Logger, r *http.Request, i int) {
		retryCount := i
		if retryCount > 0 {
			// the logger itself is what failed, so fall back to stderr
			fmt.Fprintf(os.Stderr, "api call %s failed, retry #%d\n", r.URL.String(), retryCount)
		}
	}
	return vectorSink{
		name:     "vector-sink",
		client:   retryClient,
		endpoint: u,
	}
}

func initVectorSink(u *url.URL) (zap.Sink, error) {
	scheme := u.Query().Get("scheme")
	if scheme == "" {
		scheme = "http"
	}
	endpoint := &url.URL{Scheme: scheme, Host: u.Host, Path: u.Path}
	return newVectorSink(endpoint), nil
}

// Close implement zap.Sink func Close
func (v vectorSink) Close() error {
	return nil
}

// Write implement zap.Sink func Write
func (v vectorSink) Write(b []byte) (n int, err error) {
	req, err := retryablehttp.NewRequest(http.MethodPost, v.endpoint.String(), b)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "fishyctl-vector-http")

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("vector endpoint %s returned %d", v.endpoint, resp.StatusCode)
	}

	return len(b), nil
}

// Sync implement zap.Sink func Sync
func (v vectorSink) Sync() error {
	return nil
}
