/*
 * Copyright 2024 The RuleGo Authors.
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
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/rulego/weaver/api/types"
)

var (
	// ErrConcurrencyLimitReached is returned when a call would exceed ConcurrencyLimiter.Max.
	ErrConcurrencyLimitReached = errors.New("concurrency limit reached")
	// ErrRateLimited is returned when RateLimiter has no token for a call.
	ErrRateLimited = errors.New("rate limit exceeded")
)

var _ types.Interceptor = (*ConcurrencyLimiter)(nil)
var _ types.Interceptor = (*RateLimiter)(nil)

// ConcurrencyLimiter restricts the number of calls running through it at the
// same time. Calls above the limit fail with ErrConcurrencyLimitReached without
// reaching the rest of the chain.
//
// ConcurrencyLimiter 使用原子操作限制同时经过它的调用数量，
// 超过限制的调用直接返回 ErrConcurrencyLimitReached，不会执行后续拦截器链。
//
// Used as a scoped aspect, each scope owner gets its own counter:
// 作为有作用域的切面使用时，每个作用域拥有独立的计数器：
//
//	def := types.NewAspectDefinition("limiter", types.PerClass,
//		engine.NewPrototypeFactory(&advice.ConcurrencyLimiter{}))
//	config := types.NewConfig(types.WithProperties("limiter", map[string]interface{}{"max": 10}))
type ConcurrencyLimiter struct {
	Max          int64 // Maximum number of concurrent calls  最大并发调用数量
	currentCount int64 // Current number of concurrent calls  当前并发调用数量
}

// NewConcurrencyLimiter creates a limiter allowing max concurrent calls.
//
// NewConcurrencyLimiter 创建允许 max 个并发调用的限制器。
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{
		Max: int64(max),
	}
}

func (a *ConcurrencyLimiter) Name() string {
	return "concurrencyLimiter"
}

// Invoke reserves a slot with compare-and-swap, runs the rest of the chain and
// releases the slot.
//
// Invoke 使用比较并交换占用一个名额，执行后续拦截器链后释放名额。
func (a *ConcurrencyLimiter) Invoke(inv types.Invocation) (interface{}, error) {
	if !a.acquire() {
		return nil, ErrConcurrencyLimitReached
	}
	defer atomic.AddInt64(&a.currentCount, -1)
	return inv.InvokeNext()
}

func (a *ConcurrencyLimiter) acquire() bool {
	for {
		current := atomic.LoadInt64(&a.currentCount)
		if current >= a.Max {
			return false
		}
		// 如果CAS失败，说明有其他goroutine修改了计数器，重试
		if atomic.CompareAndSwapInt64(&a.currentCount, current, current+1) {
			return true
		}
	}
}

// Current returns the number of calls in progress.
func (a *ConcurrencyLimiter) Current() int64 {
	return atomic.LoadInt64(&a.currentCount)
}

// RateLimiter admits calls at Rate per second with bursts of Burst, using a
// token bucket. Calls without a token fail with ErrRateLimited, or wait for
// one when Wait is true.
//
// RateLimiter 使用令牌桶按每秒 Rate 次、突发 Burst 次放行调用。
// 没有令牌的调用返回 ErrRateLimited；Wait 为 true 时等待令牌，直到调用上下文结束。
type RateLimiter struct {
	Rate  float64 // Calls per second  每秒调用次数
	Burst int     // Bucket size, at least 1  令牌桶大小
	Wait  bool    // Wait for a token instead of failing  等待令牌而不是失败

	once    sync.Once
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter admitting perSecond calls per second with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{Rate: perSecond, Burst: burst}
}

func (a *RateLimiter) Name() string {
	return "rateLimiter"
}

func (a *RateLimiter) bucket() *rate.Limiter {
	a.once.Do(func() {
		burst := a.Burst
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(a.Rate), burst)
	})
	return a.limiter
}

func (a *RateLimiter) Invoke(inv types.Invocation) (interface{}, error) {
	limiter := a.bucket()
	if a.Wait {
		if err := limiter.Wait(inv.Context()); err != nil {
			return nil, errors.Join(ErrRateLimited, err)
		}
	} else if !limiter.Allow() {
		return nil, ErrRateLimited
	}
	return inv.InvokeNext()
}
