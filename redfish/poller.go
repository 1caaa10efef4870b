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
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// TaskState is the Redfish TaskState of a task resource.
type TaskState string

const (
	TaskNew       TaskState = "New"
	TaskStarting  TaskState = "Starting"
	TaskRunning   TaskState = "Running"
	TaskPending   TaskState = "Pending"
	TaskCompleted TaskState = "Completed"
	TaskException TaskState = "Exception"
	TaskKilled    TaskState = "Killed"
	TaskCancelled TaskState = "Cancelled"
)

// Failed reports whether the state is a terminal failure.
func (t TaskState) Failed() bool {
	return t == TaskException || t == TaskKilled || t == TaskCancelled
}

// Task is a server side handle for an asynchronous action.
type Task struct {
	URL      string
	State    TaskState
	Resource *Resource
}

// PollOptions bounds a Poll. Interval is required along with at least one of
// MaxAttempts or Timeout.
type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

// Validate checks that the options bound the poll.
func (o PollOptions) Validate() error {
	if o.Interval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidArgument)
	}
	if o.MaxAttempts <= 0 && o.Timeout <= 0 {
		return fmt.Errorf("%w: poll needs max attempts or a timeout", ErrInvalidArgument)
	}
	return nil
}

// Submit POSTs body to an action target and expects 202 Accepted with a task
// handle. Any other status is an *APIError and no task exists.
func (s *Session) Submit(ctx context.Context, actionURL string, body interface{}) (*Task, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = []byte("{}")
	}

	uri := s.resolve(actionURL)
	resp, raw, err := s.send(ctx, s.once, http.MethodPost, uri, payload, nil)
	if err != nil {
		return nil, &APIError{Method: http.MethodPost, URL: uri, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusAccepted {
		if isSuccess(resp.StatusCode) {
			return nil, &APIError{Method: http.MethodPost, URL: uri, Status: resp.StatusCode,
				Message: "expected 202 Accepted with a task handle"}
		}
		return nil, s.apiError(http.MethodPost, uri, resp.StatusCode, raw)
	}

	taskURL := gjson.GetBytes(raw, odataID).String()
	if taskURL == "" {
		taskURL = resp.Header.Get("Location")
	}
	if taskURL == "" {
		return nil, &PathError{URL: uri, Link: "@odata.id"}
	}

	task := &Task{URL: taskURL, State: TaskNew, Resource: newResource(taskURL, raw, "")}
	if st := task.Resource.String("TaskState"); st != "" {
		task.State = TaskState(st)
	}
	s.log.Info("task submitted", zap.String("action", actionURL), zap.String("task", taskURL))
	return task, nil
}

// Poll fetches the task every Interval until it reaches a terminal state or
// the bound is exhausted. A failed fetch ends the poll with that error.
func (s *Session) Poll(ctx context.Context, task *Task, opts PollOptions) (*Task, error) {
	if err := opts.Validate(); err != nil {
		return task, err
	}

	start := time.Now()
	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = start.Add(opts.Timeout)
	}

	attempts := 0
	for {
		res, err := s.Get(ctx, task.URL)
		attempts++
		if err != nil {
			return task, err
		}
		task.Resource = res
		task.State = TaskState(res.String("TaskState"))

		switch {
		case task.State == TaskCompleted:
			s.log.Info("task completed", zap.String("task", task.URL), zap.Int("polls", attempts))
			return task, nil
		case task.State.Failed():
			return task, &TaskFailedError{Task: task.URL, State: task.State, Messages: taskMessages(res)}
		}

		if opts.MaxAttempts > 0 && attempts >= opts.MaxAttempts {
			return task, &TimeoutError{Task: task.URL, State: task.State, Attempts: attempts, Elapsed: time.Since(start)}
		}
		if !deadline.IsZero() && time.Now().Add(opts.Interval).After(deadline) {
			return task, &TimeoutError{Task: task.URL, State: task.State, Attempts: attempts, Elapsed: time.Since(start)}
		}

		s.log.Debug("task in progress", zap.String("task", task.URL), zap.String("state", string(task.State)),
			zap.Int64("percent", res.Get("PercentComplete").Int()))

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return task, fmt.Errorf("polling task %s - %w", task.URL, ctx.Err())
		case <-timer.C:
		}
	}
}

// Cleanup deletes the task resource. Failure is logged and not returned.
func (s *Session) Cleanup(ctx context.Context, task *Task) {
	if task == nil || task.URL == "" {
		return
	}
	if err := s.Delete(ctx, task.URL); err != nil {
		s.log.Warn("unable to delete task", zap.String("task", task.URL), zap.Error(err))
	}
}

// RunTask submits an action, polls it to a terminal state and deletes the
// task exactly once, whatever the outcome of the poll. The delete still goes
// out when ctx is cancelled.
func (s *Session) RunTask(ctx context.Context, actionURL string, body interface{}, opts PollOptions) (*Task, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	task, err := s.Submit(ctx, actionURL, body)
	if err != nil {
		return nil, err
	}
	defer s.Cleanup(context.WithoutCancel(ctx), task)

	return s.Poll(ctx, task, opts)
}

func taskMessages(res *Resource) []string {
	var msgs []string
	for _, m := range res.Get("Messages").Array() {
		if msg := m.Get("Message").String(); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}
