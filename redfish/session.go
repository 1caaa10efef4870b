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
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	defaultSessionsPath = ServiceRoot + "/SessionService/Sessions"

	headerAuthToken = "X-Auth-Token"
	headerIfMatch   = "If-Match"
)

// RequestObserver is notified after every request that got a response, or
// with status 0 when it did not. Used for metrics.
type RequestObserver func(method string, status int, elapsed time.Duration)

// Config describes how to reach one BMC.
type Config struct {
	// BaseURL is scheme://host[:port]. A bare host gets https:// prefixed.
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	// RetryMax bounds retries of idempotent requests (GET, DELETE).
	RetryMax  int
	RetryWait time.Duration
	// Proxy is the http proxy used for this BMC instead of the one from
	// the environment. A bare host gets http:// prefixed.
	Proxy string
	// Observer is optional.
	Observer RequestObserver
}

func (c Config) normalize() (Config, error) {
	if c.BaseURL == "" {
		return c, fmt.Errorf("%w: empty BMC address", ErrInvalidArgument)
	}
	if !strings.Contains(c.BaseURL, "://") {
		c.BaseURL = "https://" + c.BaseURL
	}
	u, err := url.ParseRequestURI(c.BaseURL)
	if err != nil || u.Host == "" {
		return c, fmt.Errorf("%w: bad BMC address %q", ErrInvalidArgument, c.BaseURL)
	}
	c.BaseURL = u.Scheme + "://" + u.Host
	if c.Proxy != "" {
		if !strings.Contains(c.Proxy, "://") {
			c.Proxy = "http://" + c.Proxy
		}
		if p, err := url.Parse(c.Proxy); err != nil || p.Host == "" {
			return c, fmt.Errorf("%w: bad proxy %q", ErrInvalidArgument, c.Proxy)
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryWait <= 0 {
		c.RetryWait = 2 * time.Second
	}
	return c, nil
}

// Session is an authenticated Redfish session. It is not safe for concurrent
// use; one session serves one logical operation at a time.
type Session struct {
	cfg      Config
	username string
	password string

	token    string
	location string
	closed   bool

	// client retries idempotent requests, once never retries
	client *retryablehttp.Client
	once   *retryablehttp.Client
	log    *zap.Logger
}

func newHTTPClients(cfg Config) (*retryablehttp.Client, *retryablehttp.Client) {
	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 3 * time.Second,
		}).Dial,
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          1,
		MaxConnsPerHost:       1,
		MaxIdleConnsPerHost:   1,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Renegotiation:      tls.RenegotiateOnceAsClient,
		},
		TLSHandshakeTimeout: 10 * time.Second,
	}
	// normalize already checked it parses
	if p, err := url.Parse(cfg.Proxy); err == nil && cfg.Proxy != "" {
		tr.Proxy = http.ProxyURL(p)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.CheckRetry = retryablehttp.DefaultRetryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient.Transport = tr
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil
	retryClient.RetryWaitMin = cfg.RetryWait
	retryClient.RetryWaitMax = cfg.RetryWait
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, r *http.Request, i int) {
		if i > 0 {
			zap.L().Warn("api call "+r.URL.String()+" failed, retry #"+strconv.Itoa(i), zap.String("method", r.Method))
		}
	}

	onceClient := retryablehttp.NewClient()
	onceClient.CheckRetry = retryablehttp.DefaultRetryPolicy
	onceClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	onceClient.HTTPClient = retryClient.HTTPClient
	onceClient.Logger = nil
	onceClient.RetryMax = 0

	return retryClient, onceClient
}

// Open logs in with session authentication. On failure the returned session is
// nil and the error is an *AuthError (or wraps ErrInvalidArgument for a bad
// address), so callers never observe a half-initialised session.
func Open(ctx context.Context, cfg Config, username, password string) (*Session, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	client, once := newHTTPClients(cfg)
	s := &Session{
		cfg:      cfg,
		username: username,
		password: password,
		client:   client,
		once:     once,
		log:      zap.L().With(zap.String("bmc", cfg.BaseURL)),
	}

	sessionsURL := s.discoverSessions(ctx)
	body, _ := json.Marshal(map[string]string{
		"UserName": username,
		"Password": password,
	})

	resp, raw, err := s.send(ctx, s.once, http.MethodPost, sessionsURL, body, nil)
	if err != nil {
		return nil, &AuthError{URL: cfg.BaseURL, Err: err}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, &AuthError{URL: cfg.BaseURL, Err: s.apiError(http.MethodPost, sessionsURL, resp.StatusCode, raw)}
	}

	token := resp.Header.Get(headerAuthToken)
	location := resp.Header.Get("Location")
	if location == "" {
		location = gjson.GetBytes(raw, odataID).String()
	}
	if u, err := url.ParseRequestURI(location); err == nil && u.Host != "" {
		location = u.RequestURI()
	}
	if token == "" || location == "" {
		return nil, &AuthError{URL: cfg.BaseURL, Err: errors.New("session created without token or location")}
	}

	s.token = token
	s.location = location
	s.log.Debug("session opened", zap.String("session", location))
	return s, nil
}

// discoverSessions reads Links.Sessions from the unauthenticated service root,
// falling back to the well known path.
func (s *Session) discoverSessions(ctx context.Context) string {
	resp, raw, err := s.send(ctx, s.once, http.MethodGet, ServiceRoot, nil, nil)
	if err != nil || resp.StatusCode != http.StatusOK {
		return defaultSessionsPath
	}
	if link := gjson.GetBytes(raw, `Links.Sessions.`+odataID).String(); link != "" {
		return link
	}
	return defaultSessionsPath
}

// BaseURL returns the scheme://host the session talks to.
func (s *Session) BaseURL() string {
	return s.cfg.BaseURL
}

// Location returns the session resource path.
func (s *Session) Location() string {
	return s.location
}

// Username returns the account the session was opened with.
func (s *Session) Username() string {
	return s.username
}

// Reopen logs in again with the same configuration and credentials, returning
// an independent session. The receiver is left untouched.
func (s *Session) Reopen(ctx context.Context) (*Session, error) {
	return Open(ctx, s.cfg, s.username, s.password)
}

// Close deletes the session on the BMC. Only the first call sends a request.
func (s *Session) Close(ctx context.Context) error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	resp, raw, err := s.send(ctx, s.client, http.MethodDelete, s.location, nil, nil)
	if err != nil {
		return fmt.Errorf("logout failed - %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return s.apiError(http.MethodDelete, s.location, resp.StatusCode, raw)
	}
	s.log.Debug("session closed", zap.String("session", s.location))
	return nil
}

// Get fetches path.
func (s *Session) Get(ctx context.Context, path string) (*Resource, error) {
	return s.do(ctx, http.MethodGet, path, nil, nil)
}

// Patch sends fields as a PATCH body. A non-empty etag is sent as If-Match.
func (s *Session) Patch(ctx context.Context, path string, fields interface{}, etag string) (*Resource, error) {
	var headers map[string]string
	if etag != "" {
		headers = map[string]string{headerIfMatch: etag}
	}
	return s.do(ctx, http.MethodPatch, path, fields, headers)
}

// Post sends body to path.
func (s *Session) Post(ctx context.Context, path string, body interface{}) (*Resource, error) {
	return s.do(ctx, http.MethodPost, path, body, nil)
}

// Delete deletes path.
func (s *Session) Delete(ctx context.Context, path string) error {
	_, err := s.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// Download streams the body at path into w.
func (s *Session) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	uri := s.resolve(path)
	req, err := s.newRequest(ctx, http.MethodGet, uri, nil, map[string]string{"Accept": "*/*"})
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := s.client.Do(req)
	if resp == nil {
		s.observe(http.MethodGet, 0, start)
		msg := "no response"
		if err != nil {
			msg = err.Error()
		}
		return 0, &APIError{Method: http.MethodGet, URL: uri, Message: msg}
	}
	defer emptyAndCloseBody(resp)
	s.observe(http.MethodGet, resp.StatusCode, start)

	if !isSuccess(resp.StatusCode) {
		raw, _ := io.ReadAll(resp.Body)
		return 0, s.apiError(http.MethodGet, uri, resp.StatusCode, raw)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("error reading download body from %s - %w", uri, err)
	}
	return n, nil
}

func (s *Session) do(ctx context.Context, method, path string, body interface{}, headers map[string]string) (*Resource, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	client := s.client
	if method == http.MethodPatch || method == http.MethodPost {
		client = s.once
	}

	uri := s.resolve(path)
	resp, raw, err := s.send(ctx, client, method, uri, payload, headers)
	if err != nil {
		return nil, &APIError{Method: method, URL: uri, Message: err.Error()}
	}
	if !isSuccess(resp.StatusCode) {
		return nil, s.apiError(method, uri, resp.StatusCode, raw)
	}

	s.log.Debug("redfish call", zap.String("method", method), zap.String("url", uri), zap.Int("status", resp.StatusCode))
	return newResource(path, raw, resp.Header.Get("ETag")), nil
}

// send issues one logical request and reads the whole body.
func (s *Session) send(ctx context.Context, client *retryablehttp.Client, method, path string, payload []byte, headers map[string]string) (*http.Response, []byte, error) {
	uri := s.resolve(path)
	req, err := s.newRequest(ctx, method, uri, payload, headers)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	// the passthrough handler hands back the last response along with the
	// retry policy's error once retries are exhausted
	resp, err := client.Do(req)
	if resp == nil {
		s.observe(method, 0, start)
		if err == nil {
			err = errors.New("no response")
		}
		return nil, nil, err
	}
	defer emptyAndCloseBody(resp)
	s.observe(method, resp.StatusCode, start)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("error reading response body - %w", err)
	}
	return resp, raw, nil
}

func (s *Session) newRequest(ctx context.Context, method, uri string, payload []byte, headers map[string]string) (*retryablehttp.Request, error) {
	var body interface{}
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, uri, body)
	if err != nil || req == nil {
		return nil, fmt.Errorf("failed to build retryable request - %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-Version", "4.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set(headerAuthToken, s.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (s *Session) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.cfg.BaseURL + path
}

func (s *Session) apiError(method, uri string, status int, raw []byte) *APIError {
	return &APIError{
		Method:  method,
		URL:     uri,
		Status:  status,
		Message: extendedMessage(raw),
	}
}

func (s *Session) observe(method string, status int, start time.Time) {
	if s.cfg.Observer != nil {
		s.cfg.Observer(method, status, time.Since(start))
	}
}

// encodeBody accepts raw JSON as []byte or string, anything else is marshalled.
func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("error marshalling request body - %w", err)
		}
		return payload, nil
	}
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// emptyAndCloseBody drains the body so keep-alive connections are reused.
func emptyAndCloseBody(resp *http.Response) {
	if resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
