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
	"time"

	"github.com/comcast/fishyctl/redfish/redfishtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	actionPath = "/redfish/v1/Managers/1/Actions/Oem/LenovoManager.InitiateFFDC"
	taskPath   = "/redfish/v1/TaskService/Tasks/7"
)

func acceptTask(srv *redfishtest.Server) {
	srv.Action(actionPath, func(body map[string]interface{}) (int, interface{}) {
		return http.StatusAccepted, map[string]interface{}{
			"@odata.id": taskPath,
			"TaskState": "New",
		}
	})
}

func fastPoll() PollOptions {
	return PollOptions{Interval: time.Millisecond, MaxAttempts: 10}
}

func Test_RunTask(t *testing.T) {
	tests := []struct {
		name   string
		states []string
		state  TaskState
		kind   ErrorKind
		polls  int
	}{
		{
			name:   "completes",
			states: []string{"New", "Running", "Running", "Completed"},
			state:  TaskCompleted,
			polls:  4,
		},
		{
			name:   "exception",
			states: []string{"Running", "Exception"},
			state:  TaskException,
			kind:   KindTaskFailed,
			polls:  2,
		},
		{
			name:   "killed",
			states: []string{"Killed"},
			state:  TaskKilled,
			kind:   KindTaskFailed,
			polls:  1,
		},
		{
			name:   "cancelled",
			states: []string{"Pending", "Cancelled"},
			state:  TaskCancelled,
			kind:   KindTaskFailed,
			polls:  2,
		},
		{
			name:   "never finishes",
			states: []string{"Running"},
			state:  TaskRunning,
			kind:   KindTimeout,
			polls:  10,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := redfishtest.NewServer(testUser, testPass)
			defer srv.Close()
			acceptTask(srv)
			srv.Task(taskPath, redfishtest.Resource{
				"Messages": []interface{}{map[string]interface{}{"Message": "collecting data"}},
			}, test.states...)

			s := openTestSession(t, srv)
			defer s.Close(context.Background())

			task, err := s.RunTask(context.Background(), actionPath, nil, fastPoll())
			require.NotNil(t, task)
			assert.Equal(t, test.state, task.State)
			if test.kind == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, test.kind, Classify(err))
			}
			if test.kind == KindTaskFailed {
				var tf *TaskFailedError
				require.True(t, errors.As(err, &tf))
				assert.Equal(t, []string{"collecting data"}, tf.Messages)
			}

			assert.Equal(t, test.polls, srv.Count(http.MethodGet, taskPath))
			assert.Equal(t, 1, srv.Count(http.MethodDelete, taskPath))
			assert.Nil(t, srv.Get(taskPath))
		})
	}
}

func Test_RunTask_SubmitRejected(t *testing.T) {
	srv := redfishtest.NewServer(testUser, testPass)
	defer srv.Close()
	srv.Fail(http.MethodPost, actionPath, http.StatusInternalServerError, redfishtest.ExtendedError("FFDC busy"))

	s := openTestSession(t, srv)
	defer s.Close(context.Background())

	task, err := s.RunTask(context.Background(), actionPath, map[string]string{"DataCollectionType": "ProcessorDump"}, fastPoll())
	assert.Nil(t, task)
	var apiErr *APIError
	if assert.True(t, errors.As(err, &apiErr)) {
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
		assert.Equal(t, "FFDC busy", apiErr.Message)
	}
	assert.Equal(t, 0, srv.Count(http.MethodGet, taskPath))
	assert.Equal(t, 0, srv.Count(http.MethodDelete, taskPath))
}

func Test_RunTask_TaskFetchError(t *testing.T) {
	srv := redfishtest.NewServer(testUser, testPass)
	defer srv.Close()
	acceptTask(srv)
	srv.Task(taskPath, nil, "Running")
	srv.Fail(http.MethodGet, taskPath, http.StatusInternalServerError, redfishtest.ExtendedError("task service unavailable"))

	s := openTestSession(t, srv)
	defer s.Close(context.Background())

	_, err := s.RunTask(context.Background(), actionPath, map[string]string{"DataCollectionType": "ProcessorDump"}, fastPoll())
	require.Error(t, err)
	assert.Equal(t, KindAPI, Classify(err))
	assert.GreaterOrEqual(t, srv.Count(http.MethodGet, taskPath), 1)
	assert.Equal(t, 1, srv.Count(http.MethodDelete, taskPath))
}

func Test_RunTask_CancelledStillDeletes(t *testing.T) {
	srv := redfishtest.NewServer(testUser, testPass)
	defer srv.Close()
	acceptTask(srv)
	srv.Task(taskPath, nil, "Running")

	s := openTestSession(t, srv)
	defer s.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.RunTask(ctx, actionPath, map[string]string{"DataCollectionType": "ProcessorDump"}, PollOptions{Interval: time.Hour, MaxAttempts: 3})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, srv.Count(http.MethodDelete, taskPath))
	assert.Nil(t, srv.Get(taskPath))
}

func Test_Submit_NotAccepted(t *testing.T) {
	srv := redfishtest.NewServer(testUser, testPass)
	defer srv.Close()
	srv.Action(actionPath, func(body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{}
	})

	s := openTestSession(t, srv)
	defer s.Close(context.Background())

	_, err := s.Submit(context.Background(), actionPath, nil)
	var apiErr *APIError
	if assert.True(t, errors.As(err, &apiErr)) {
		assert.Equal(t, http.StatusOK, apiErr.Status)
	}
}

func Test_Submit_EmptyBody(t *testing.T) {
	srv := redfishtest.NewServer(testUser, testPass)
	defer srv.Close()
	var got map[string]interface{}
	srv.Action(actionPath, func(body map[string]interface{}) (int, interface{}) {
		got = body
		return http.StatusAccepted, map[string]interface{}{"@odata.id": taskPath}
	})

	s := openTestSession(t, srv)
	defer s.Close(context.Background())

	task, err := s.Submit(context.Background(), actionPath, nil)
	require.NoError(t, err)
	assert.Equal(t, taskPath, task.URL)
	assert.Equal(t, TaskNew, task.State)
	assert.Equal(t, map[string]interface{}{}, got)
}

func Test_Poll_Timeout(t *testing.T) {
	srv := redfishtest.NewServer(testUser, testPass)
	defer srv.Close()
	srv.Task(taskPath, nil, "Running")

	s := openTestSession(t, srv)
	defer s.Close(context.Background())

	start := time.Now()
	task, err := s.Poll(context.Background(), &Task{URL: taskPath}, PollOptions{
		Interval: 20 * time.Millisecond,
		Timeout:  100 * time.Millisecond,
	})
	elapsed := time.Since(start)

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, TaskRunning, te.State)
	assert.Equal(t, TaskRunning, task.State)
	assert.LessOrEqual(t, te.Attempts, 6)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 0, srv.Count(http.MethodDelete, taskPath))
}

func Test_Poll_ContextCancelled(t *testing.T) {
	srv := redfishtest.NewServer(testUser, testPass)
	defer srv.Close()
	srv.Task(taskPath, nil, "Running")

	s := openTestSession(t, srv)
	defer s.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Poll(ctx, &Task{URL: taskPath}, PollOptions{Interval: time.Hour, MaxAttempts: 3})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func Test_PollOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts PollOptions
		ok   bool
	}{
		{name: "attempts", opts: PollOptions{Interval: time.Second, MaxAttempts: 3}, ok: true},
		{name: "timeout", opts: PollOptions{Interval: time.Second, Timeout: time.Minute}, ok: true},
		{name: "no interval", opts: PollOptions{MaxAttempts: 3}},
		{name: "unbounded", opts: PollOptions{Interval: time.Second}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.opts.Validate()
			if test.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidArgument)
			}
		})
	}
}

func Test_TaskState_Failed(t *testing.T) {
	for _, st := range []TaskState{TaskException, TaskKilled, TaskCancelled} {
		assert.True(t, st.Failed(), st)
	}
	for _, st := range []TaskState{TaskNew, TaskStarting, TaskRunning, TaskPending, TaskCompleted} {
		assert.False(t, st.Failed(), st)
	}
}
