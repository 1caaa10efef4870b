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

package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/comcast/fishyctl/redfish"
)

// Task encapsulates one operation against one BMC
type Task struct {
	// Target is the BMC address the task works on
	Target string `json:"target"`
	// Result is only meaningful after Run has been called
	// for the pool that holds it.
	Result redfish.Result `json:"result"`

	f func(ctx context.Context) redfish.Result
}

// NewTask initializes a new task based on a given work
// function.
func NewTask(target string, f func(ctx context.Context) redfish.Result) *Task {
	return &Task{Target: target, f: f}
}

// Run runs a Task and does appropriate accounting via a
// given sync.WorkGroup.
func (t *Task) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	if err := ctx.Err(); err != nil {
		t.Result = redfish.Result{Ret: false, Kind: redfish.KindInternal, Msg: fmt.Sprintf("not started - %v", err)}
		return
	}
	t.Result = t.f(ctx)
}
