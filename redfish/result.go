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
)

// ErrorKind classifies a failed Result.
type ErrorKind string

const (
	KindAuth               ErrorKind = "AuthError"
	KindAPI                ErrorKind = "ApiError"
	KindPath               ErrorKind = "PathError"
	KindNotFound           ErrorKind = "NotFound"
	KindPreconditionFailed ErrorKind = "PreconditionFailed"
	KindTimeout            ErrorKind = "TimeoutError"
	KindTaskFailed         ErrorKind = "TaskFailed"
	KindInvalidArgument    ErrorKind = "InvalidArgument"
	KindConflict           ErrorKind = "Conflict"
	KindInternal           ErrorKind = "InternalError"
)

// Result is the single outcome shape every BMC operation returns. Ret mirrors
// the {ret, msg | entries} mapping consumed by automation wrappers.
type Result struct {
	Ret     bool        `json:"ret"`
	Kind    ErrorKind   `json:"error_kind,omitempty"`
	Status  int         `json:"status,omitempty"`
	Msg     string      `json:"msg,omitempty"`
	Entries interface{} `json:"entries,omitempty"`
}

// OK builds a successful Result carrying a message.
func OK(msg string) Result {
	return Result{Ret: true, Msg: msg}
}

// OKEntries builds a successful Result carrying a payload.
func OKEntries(msg string, entries interface{}) Result {
	return Result{Ret: true, Msg: msg, Entries: entries}
}

// Fail converts err into a failed Result.
func Fail(err error) Result {
	if err == nil {
		return Result{Ret: false, Kind: KindInternal, Msg: "unknown error"}
	}
	r := Result{Ret: false, Kind: Classify(err), Msg: err.Error()}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		r.Status = apiErr.Status
	}
	return r
}

// Classify maps an error onto its ErrorKind.
func Classify(err error) ErrorKind {
	var (
		authErr    *AuthError
		preErr     *PreconditionFailedError
		apiErr     *APIError
		pathErr    *PathError
		notFound   *NotFoundError
		timeoutErr *TimeoutError
		taskErr    *TaskFailedError
	)

	// order matters, PreconditionFailedError wraps an APIError
	switch {
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &preErr):
		return KindPreconditionFailed
	case errors.As(err, &timeoutErr):
		return KindTimeout
	case errors.As(err, &taskErr):
		return KindTaskFailed
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.As(err, &pathErr):
		return KindPath
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
