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

// Package redfishtest provides an in-memory Redfish service for tests.
package redfishtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

const (
	SessionsPath = "/redfish/v1/SessionService/Sessions"
	Root         = "/redfish/v1"
)

// Request is a request the server received.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Resource is a JSON object served at a path.
type Resource map[string]interface{}

// ActionFunc handles a POST to an action target. The returned value is
// marshalled as the response body.
type ActionFunc func(body map[string]interface{}) (status int, resp interface{})

type failure struct {
	status int
	body   string
}

// Server is a minimal session-authenticated Redfish service.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	user      string
	pass      string
	resources map[string]Resource
	files     map[string][]byte
	actions   map[string]ActionFunc
	failures  map[string]failure
	tasks     map[string][]string
	tokens    map[string]string
	requests  []Request
	logins    int
	logouts   int
	nextID    int
}

// NewServer starts a server accepting user/pass. Close it when done.
func NewServer(user, pass string) *Server {
	s := &Server{
		user:      user,
		pass:      pass,
		resources: make(map[string]Resource),
		files:     make(map[string][]byte),
		actions:   make(map[string]ActionFunc),
		failures:  make(map[string]failure),
		tasks:     make(map[string][]string),
		tokens:    make(map[string]string),
	}
	s.resources[Root] = Resource{
		"@odata.id": Root,
		"Links": map[string]interface{}{
			"Sessions": map[string]interface{}{"@odata.id": SessionsPath},
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Set stores a resource at path, adding @odata.id.
func (s *Server) Set(path string, r Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// normalise nested values to plain maps and slices
	var norm Resource
	b, _ := json.Marshal(r)
	json.Unmarshal(b, &norm)
	if norm == nil {
		norm = Resource{}
	}
	norm["@odata.id"] = path
	s.resources[path] = norm
}

// Get returns a copy of the resource stored at path.
func (s *Server) Get(path string) Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[path]
	if !ok {
		return nil
	}
	b, _ := json.Marshal(r)
	var out Resource
	json.Unmarshal(b, &out)
	return out
}

// Link merges an {"@odata.id": target} link into the resource at path under
// the dotted key, creating intermediate objects as needed.
func (s *Server) Link(path, key, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[path]
	if !ok {
		r = Resource{"@odata.id": path}
		s.resources[path] = r
	}
	parts := strings.Split(key, ".")
	cur := map[string]interface{}(r)
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = map[string]interface{}{"@odata.id": target}
}

// Collection stores a collection at path whose members are the given paths.
func (s *Server) Collection(path string, members ...string) {
	list := make([]interface{}, 0, len(members))
	for _, m := range members {
		list = append(list, map[string]interface{}{"@odata.id": m})
	}
	s.Set(path, Resource{
		"Members":             list,
		"Members@odata.count": len(members),
	})
}

// File serves raw bytes at path.
func (s *Server) File(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
}

// Action registers a POST handler.
func (s *Server) Action(path string, fn ActionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[path] = fn
}

// Task stores a task resource whose TaskState advances through states, one
// per GET, and then stays on the last one.
func (s *Server) Task(path string, extra Resource, states ...string) {
	if extra == nil {
		extra = Resource{}
	}
	extra["TaskState"] = states[0]
	s.Set(path, extra)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[path] = states
}

// Fail makes every method request on path answer status with body.
func (s *Server) Fail(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, body: body}
}

// Requests returns every request received, in order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many method requests hit path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Logins returns the number of sessions created.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Logouts returns the number of sessions deleted.
func (s *Server) Logouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}

// LiveSessions returns the number of sessions not yet deleted.
func (s *Server) LiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// ExtendedError builds a Redfish error body carrying msg.
func ExtendedError(msg string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "Base.1.0.GeneralError",
			"message": "See @Message.ExtendedInfo for more information.",
			"@Message.ExtendedInfo": []interface{}{
				map[string]interface{}{"MessageId": "Base.1.0.GeneralError", "Message": msg},
			},
		},
	})
	return string(b)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimSuffix(r.URL.Path, "/")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: path, Header: r.Header.Clone(), Body: body})

	if f, ok := s.failures[r.Method+" "+path]; ok {
		w.WriteHeader(f.status)
		io.WriteString(w, f.body)
		return
	}

	if path == Root && r.Method == http.MethodGet {
		s.writeJSON(w, http.StatusOK, s.resources[Root])
		return
	}

	if path == SessionsPath && r.Method == http.MethodPost {
		s.login(w, body)
		return
	}

	token := r.Header.Get("X-Auth-Token")
	if _, ok := s.tokens[token]; !ok {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, ExtendedError("No valid session found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.get(w, path)
	case http.MethodPatch:
		s.patch(w, r, path, body)
	case http.MethodPost:
		s.post(w, path, body)
	case http.MethodDelete:
		s.delete(w, path, token)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) login(w http.ResponseWriter, body []byte) {
	var creds struct {
		UserName string `json:"UserName"`
		Password string `json:"Password"`
	}
	if err := json.Unmarshal(body, &creds); err != nil || creds.UserName != s.user || creds.Password != s.pass {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, ExtendedError("Invalid username or password"))
		return
	}
	s.nextID++
	s.logins++
	token := fmt.Sprintf("token-%d", s.nextID)
	location := fmt.Sprintf("%s/%d", SessionsPath, s.nextID)
	s.tokens[token] = location
	w.Header().Set("X-Auth-Token", token)
	w.Header().Set("Location", location)
	s.writeJSON(w, http.StatusCreated, Resource{"@odata.id": location, "UserName": creds.UserName})
}

func (s *Server) get(w http.ResponseWriter, path string) {
	if content, ok := s.files[path]; ok {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write(content)
		return
	}
	res, ok := s.resources[path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, ExtendedError("The resource at the URI "+path+" was not found."))
		return
	}
	s.writeJSON(w, http.StatusOK, res)
	if states, ok := s.tasks[path]; ok && len(states) > 1 {
		s.tasks[path] = states[1:]
		res["TaskState"] = states[1]
	}
}

func (s *Server) patch(w http.ResponseWriter, r *http.Request, path string, body []byte) {
	res, ok := s.resources[path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, ExtendedError("The resource at the URI "+path+" was not found."))
		return
	}
	etag, hasTag := res["@odata.etag"].(string)
	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" && hasTag && ifMatch != etag {
		w.WriteHeader(http.StatusPreconditionFailed)
		io.WriteString(w, ExtendedError("The ETag supplied did not match the ETag required to change this resource."))
		return
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, ExtendedError("The request body submitted was malformed JSON."))
		return
	}
	merge(res, fields)
	if hasTag {
		res["@odata.etag"] = etag + "+"
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) post(w http.ResponseWriter, path string, body []byte) {
	fn, ok := s.actions[path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, ExtendedError("The action "+path+" is not supported."))
		return
	}
	var fields map[string]interface{}
	json.Unmarshal(body, &fields)
	status, resp := fn(fields)
	s.writeJSON(w, status, resp)
}

func (s *Server) delete(w http.ResponseWriter, path, token string) {
	if strings.HasPrefix(path, SessionsPath+"/") {
		if s.tokens[token] != path {
			found := false
			for t, loc := range s.tokens {
				if loc == path {
					delete(s.tokens, t)
					found = true
				}
			}
			if !found {
				w.WriteHeader(http.StatusNotFound)
				return
			}
		} else {
			delete(s.tokens, token)
		}
		s.logouts++
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if _, ok := s.resources[path]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	delete(s.resources, path)
	delete(s.tasks, path)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func merge(dst, src map[string]interface{}) {
	for k, v := range src {
		if sub, ok := v.(map[string]interface{}); ok {
			if existing, ok := dst[k].(map[string]interface{}); ok {
				merge(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}
