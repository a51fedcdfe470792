/*
 * Copyright 2025 The RuleGo Authors.
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

package advice

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/utils/pool"
	"github.com/rulego/weaver/utils/runtime"
)

// DefaultBulkheadWorkers is used when Bulkhead.MaxWorkers is not positive.
const DefaultBulkheadWorkers = 10

// ErrBulkheadFull is returned when every bulkhead worker is busy.
var ErrBulkheadFull = errors.New("bulkhead full")

var _ types.Interceptor = (*Bulkhead)(nil)

// Bulkhead runs the rest of the chain on a bounded worker pool, isolating
// the advised members from the caller's goroutine. Calls arriving while every
// worker is busy fail with ErrBulkheadFull. The caller stops waiting when the
// invocation context is done and gets the context error; the call itself runs
// to completion on its worker.
//
// Bulkhead 在有界工作池上执行后续拦截器链。所有工作者都繁忙时调用返回 ErrBulkheadFull，
// 调用上下文结束时调用方返回上下文错误，而调用本身在工作者上继续执行完毕。
type Bulkhead struct {
	MaxWorkers int
	// MaxIdle is how long an idle worker is kept, 10 seconds by default.
	MaxIdle time.Duration

	once sync.Once
	pool *pool.WorkerPool
}

// NewBulkhead creates a bulkhead running at most maxWorkers calls at a time.
func NewBulkhead(maxWorkers int) *Bulkhead {
	return &Bulkhead{MaxWorkers: maxWorkers}
}

func (a *Bulkhead) Name() string {
	return "bulkhead"
}

type outcome struct {
	result interface{}
	err    error
}

func (a *Bulkhead) Invoke(inv types.Invocation) (interface{}, error) {
	next := inv.Copy()
	done := make(chan outcome, 1)
	err := a.workers().Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %s: %v\n%s", ErrPanic, next.Joinpoint().Key(), r, runtime.Stack())}
			}
		}()
		result, err := next.InvokeNext()
		done <- outcome{result: result, err: err}
	})
	if errors.Is(err, pool.ErrNoIdleWorkers) {
		return nil, ErrBulkheadFull
	} else if err != nil {
		return nil, err
	}
	select {
	case o := <-done:
		return o.result, o.err
	case <-inv.Context().Done():
		return nil, inv.Context().Err()
	}
}

// Workers returns the number of live workers, idle ones included.
func (a *Bulkhead) Workers() int {
	return a.workers().WorkersCount()
}

// Close stops the pool. Later calls fail with pool.ErrPoolStopped.
func (a *Bulkhead) Close() {
	a.workers().Stop()
}

func (a *Bulkhead) workers() *pool.WorkerPool {
	a.once.Do(func() {
		n := a.MaxWorkers
		if n <= 0 {
			n = DefaultBulkheadWorkers
		}
		a.pool = &pool.WorkerPool{MaxWorkersCount: n, MaxIdleWorkerDuration: a.MaxIdle}
	})
	return a.pool
}
