/*
 * Copyright 2023 The RuleGo Authors.
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

// Package pool provides the bounded worker pool behind bulkhead advice.
//
// Package pool 提供隔离舱（bulkhead）增强使用的有界工作池。
//
// Note: This file is inspired by:
// Valyala, A. (2023) workerpool.go (Version 1.48.0)
// [Source code]. https://github.com/valyala/fasthttp/blob/master/workerpool.go
package pool

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNoIdleWorkers is returned by Submit when every worker is busy.
	ErrNoIdleWorkers = errors.New("no idle workers")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// WorkerPool runs submitted functions on at most MaxWorkersCount goroutines.
// Idle workers are reused in FILO order and exit after MaxIdleWorkerDuration.
//
// WorkerPool 最多使用 MaxWorkersCount 个协程执行提交的函数，
// 空闲工作者按 FILO 顺序复用，空闲超过 MaxIdleWorkerDuration 后退出。
//
//	wp := &WorkerPool{MaxWorkersCount: 16}
//	wp.Start()
//	defer wp.Stop()
//	err := wp.Submit(func() { ... })
type WorkerPool struct {
	MaxWorkersCount int
	// MaxIdleWorkerDuration defaults to 10 seconds.
	MaxIdleWorkerDuration time.Duration

	lock         sync.Mutex
	workersCount int
	mustStop     bool
	// ready is sorted by lastUseTime, oldest first.
	ready  []*workerChan
	stopCh chan struct{}
}

type workerChan struct {
	lastUseTime time.Time
	ch          chan func()
}

// Start launches the idle worker collector. Submit starts it on first use.
func (wp *WorkerPool) Start() {
	wp.lock.Lock()
	defer wp.lock.Unlock()
	if wp.stopCh != nil || wp.mustStop {
		return
	}
	stopCh := make(chan struct{})
	wp.stopCh = stopCh
	go func() {
		ticker := time.NewTicker(wp.maxIdleWorkerDuration())
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				wp.clean()
			}
		}
	}()
}

// Stop terminates idle workers and rejects further submissions. Running
// functions complete; their workers exit afterwards.
func (wp *WorkerPool) Stop() {
	wp.lock.Lock()
	defer wp.lock.Unlock()
	if wp.mustStop {
		return
	}
	wp.mustStop = true
	if wp.stopCh != nil {
		close(wp.stopCh)
		wp.stopCh = nil
	}
	for i, ch := range wp.ready {
		ch.ch <- nil
		wp.ready[i] = nil
	}
	wp.ready = wp.ready[:0]
}

// WorkersCount returns the number of live workers, idle ones included.
func (wp *WorkerPool) WorkersCount() int {
	wp.lock.Lock()
	defer wp.lock.Unlock()
	return wp.workersCount
}

func (wp *WorkerPool) maxIdleWorkerDuration() time.Duration {
	if wp.MaxIdleWorkerDuration <= 0 {
		return 10 * time.Second
	}
	return wp.MaxIdleWorkerDuration
}

// clean stops the workers idle for longer than MaxIdleWorkerDuration.
func (wp *WorkerPool) clean() {
	critical := time.Now().Add(-wp.maxIdleWorkerDuration())
	wp.lock.Lock()
	n := 0
	for n < len(wp.ready) && wp.ready[n].lastUseTime.Before(critical) {
		n++
	}
	expired := append([]*workerChan(nil), wp.ready[:n]...)
	m := copy(wp.ready, wp.ready[n:])
	for i := m; i < len(wp.ready); i++ {
		wp.ready[i] = nil
	}
	wp.ready = wp.ready[:m]
	wp.lock.Unlock()

	for _, ch := range expired {
		ch.ch <- nil
	}
}

// Submit runs fn on an idle or new worker. It does not block: when every
// worker is busy it returns ErrNoIdleWorkers.
func (wp *WorkerPool) Submit(fn func()) error {
	wp.Start()
	ch, err := wp.getCh()
	if err != nil {
		return err
	}
	ch.ch <- fn
	return nil
}

func (wp *WorkerPool) getCh() (*workerChan, error) {
	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return nil, ErrPoolStopped
	}
	if n := len(wp.ready) - 1; n >= 0 {
		ch := wp.ready[n]
		wp.ready[n] = nil
		wp.ready = wp.ready[:n]
		wp.lock.Unlock()
		return ch, nil
	}
	if wp.workersCount >= wp.MaxWorkersCount {
		wp.lock.Unlock()
		return nil, ErrNoIdleWorkers
	}
	wp.workersCount++
	wp.lock.Unlock()

	ch := &workerChan{ch: make(chan func(), 1)}
	go wp.workerFunc(ch)
	return ch, nil
}

// release returns ch to the ready list, or reports false once the pool is stopped.
func (wp *WorkerPool) release(ch *workerChan) bool {
	ch.lastUseTime = time.Now()
	wp.lock.Lock()
	defer wp.lock.Unlock()
	if wp.mustStop {
		return false
	}
	wp.ready = append(wp.ready, ch)
	return true
}

func (wp *WorkerPool) workerFunc(ch *workerChan) {
	for fn := range ch.ch {
		if fn == nil {
			break
		}
		fn()
		if !wp.release(ch) {
			break
		}
	}
	wp.lock.Lock()
	wp.workersCount--
	wp.lock.Unlock()
}
