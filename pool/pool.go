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
	"sync"
)

// Pool is a worker group that runs one task per BMC at a
// configured concurrency.
type Pool struct {
	Tasks []*Task

	concurrency int
	tasksChan   chan *Task
	wg          sync.WaitGroup
}

// NewPool initializes a new pool with the given tasks and
// at the given concurrency. Concurrency below 1 runs the
// tasks one at a time.
func NewPool(tasks []*Task, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		Tasks:       tasks,
		concurrency: concurrency,
		tasksChan:   make(chan *Task),
	}
}

// Run runs all work within the pool and blocks until it's
// finished. Tasks not yet started when ctx is done are not
// run, they get a cancelled result instead.
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		go p.work(ctx)
	}

	p.wg.Add(len(p.Tasks))
	for _, task := range p.Tasks {
		p.tasksChan <- task
	}

	// all workers return
	close(p.tasksChan)

	p.wg.Wait()
}

func (p *Pool) AddTask(task *Task) {
	p.Tasks = append(p.Tasks, task)
}

// Results returns the task results in task order
func (p *Pool) Results() []*Task {
	return p.Tasks
}

// Failed counts the tasks whose operation did not succeed
func (p *Pool) Failed() int {
	n := 0
	for _, t := range p.Tasks {
		if !t.Result.Ret {
			n++
		}
	}
	return n
}

// The work loop for any single goroutine.
func (p *Pool) work(ctx context.Context) {
	for task := range p.tasksChan {
		task.Run(ctx, &p.wg)
	}
}
