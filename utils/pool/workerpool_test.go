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

package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool(t *testing.T) {
	wp := &WorkerPool{MaxWorkersCount: 8}
	defer wp.Stop()

	var n int32
	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		for wp.Submit(func() {
			defer wg.Done()
			atomic.AddInt32(&n, 1)
		}) == ErrNoIdleWorkers {
			time.Sleep(time.Microsecond)
		}
	}
	wg.Wait()
	assert.Equal(t, int32(1000), atomic.LoadInt32(&n))
	assert.LessOrEqual(t, wp.WorkersCount(), 8)
}

func TestWorkerPoolBusy(t *testing.T) {
	wp := &WorkerPool{MaxWorkersCount: 1}
	release := make(chan struct{})
	started := make(chan struct{})
	require.Nil(t, wp.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	assert.Equal(t, ErrNoIdleWorkers, wp.Submit(func() {}))
	close(release)

	require.Eventually(t, func() bool { return wp.Submit(func() {}) == nil }, time.Second, time.Millisecond)
	wp.Stop()
	assert.Equal(t, ErrPoolStopped, wp.Submit(func() {}))
	require.Eventually(t, func() bool { return wp.WorkersCount() == 0 }, time.Second, time.Millisecond)
}

func TestWorkerPoolIdleCleanup(t *testing.T) {
	wp := &WorkerPool{MaxWorkersCount: 4, MaxIdleWorkerDuration: 10 * time.Millisecond}
	defer wp.Stop()
	done := make(chan struct{})
	require.Nil(t, wp.Submit(func() { close(done) }))
	<-done
	assert.Equal(t, 1, wp.WorkersCount())
	require.Eventually(t, func() bool { return wp.WorkersCount() == 0 }, time.Second, 5*time.Millisecond)
}
