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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var (
	// ErrInvalidArgument is wrapped by validation failures detected before any
	// request is sent to the BMC.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict is wrapped when the BMC state makes the request impossible,
	// e.g. the user already exists or no account slot is free.
	ErrConflict = errors.New("conflict")
	// ErrSessionClosed is returned when a request is issued on a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

// AuthError is returned when a session cannot be established. Rejected
// credentials and an unreachable host look the same to the caller.
type AuthError struct {
	URL string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("unable to login to %s, please check the username, password and address are correct - %v", e.URL, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// APIError is any non-2xx response. Status is 0 when the request never got a
// response.
type APIError struct {
	Method  string
	URL     string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s failed - %s", e.Method, e.URL, e.Message)
	}
	return fmt.Sprintf("url '%s' response error code %d - error_message: %s", e.URL, e.Status, e.Message)
}

// PathError reports a navigation link missing from a representation.
type PathError struct {
	URL  string
	Link string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("resource %s has no link %q", e.URL, e.Link)
}

// NotFoundError is returned when a predicate scan exhausts a collection.
type NotFoundError struct {
	Collection string
	Examined   int
	What       string
}

func (e *NotFoundError) Error() string {
	if e.What != "" {
		return fmt.Sprintf("%s not found in %s (%d members examined)", e.What, e.Collection, e.Examined)
	}
	return fmt.Sprintf("no matching member in %s (%d members examined)", e.Collection, e.Examined)
}

// PreconditionFailedError is a write rejected because the entity tag was stale.
type PreconditionFailedError struct {
	URL  string
	ETag string
	Err  *APIError
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("precondition failed writing %s with etag %q, re-read the resource and retry - %s", e.URL, e.ETag, e.Err.Message)
}

func (e *PreconditionFailedError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when a task did not reach a terminal state within
// the caller supplied bound.
type TimeoutError struct {
	Task     string
	State    TaskState
	Attempts int
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s still %q after %d polls (%s)", e.Task, e.State, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

// TaskFailedError is returned when a task ends in a terminal failure state.
type TaskFailedError struct {
	Task     string
	State    TaskState
	Messages []string
}

func (e *TaskFailedError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("task %s ended in state %q", e.Task, e.State)
	}
	return fmt.Sprintf("task %s ended in state %q - %s", e.Task, e.State, strings.Join(e.Messages, "; "))
}

// extendedMessage pulls the first @Message.ExtendedInfo message out of a
// Redfish error body, echoing the raw payload when it is not there.
func extendedMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		msg := gjson.GetBytes(body, `error.@Message\.ExtendedInfo.0.Message`)
		if msg.Exists() {
			return msg.String()
		}
	}
	return strings.TrimSpace(string(body))
}
