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

// Package advice provides ready-made interceptors for advised classes.
// Every interceptor implements types.Interceptor and can be bound directly
// through engine.NewInterceptorFactory, or used as a scoped aspect through
// engine.NewPrototypeFactory so each scope owner gets its own state.
//
// Package advice 提供可直接绑定到被增强类的内置拦截器。
// 每个拦截器都实现了 types.Interceptor，可以通过 engine.NewInterceptorFactory 直接绑定，
// 也可以通过 engine.NewPrototypeFactory 作为有作用域的切面使用，使每个作用域拥有独立状态。
//
// Available Built-in Interceptors:
// 可用的内置拦截器：
//
//   - Debug: Reports every call before and after it runs through Config.OnDebug
//     Debug：通过 Config.OnDebug 报告每次调用的进入和返回
//
//   - Metrics: Counts current, total, failed and successful calls
//     Metrics：统计当前、总数、失败和成功的调用次数
//
//   - Prometheus: Exports call counters and durations to a Prometheus registry
//     Prometheus：将调用计数和耗时导出到 Prometheus 注册表
//
//   - Tracing: Opens an OpenTelemetry span around every call
//     Tracing：为每次调用创建 OpenTelemetry span
//
//   - RateLimiter: Rejects calls above a token bucket rate
//     RateLimiter：按令牌桶速率拒绝超额调用
//
//   - ConcurrencyLimiter: Rejects calls above a number of concurrent executions
//     ConcurrencyLimiter：拒绝超过最大并发数的调用
//
//   - JsGuard: Lets a JavaScript function decide whether a call proceeds
//     JsGuard：由 JavaScript 函数决定调用是否继续
//
//   - Recover: Turns panics in the rest of the chain into errors
//     Recover：将后续拦截器链中的 panic 转换为错误
//
//   - Cache: Memoizes successful results per join point and arguments
//     Cache：按连接点和参数缓存成功的调用结果
//
//   - Bulkhead: Runs calls on a bounded worker pool
//     Bulkhead：在有界工作池上执行调用
//
//   - CFlow: Runs an inner chain only when the call is made from a matching caller
//     CFlow：仅当调用来自匹配的调用方时才运行内部拦截器链
//
// Usage Examples:
// 使用示例：
//
//	manager := engine.NewManager(types.NewConfig())
//	_ = manager.AddBinding(engine.NewAdviceBinding("limits", pc,
//		engine.NewInterceptorFactory(advice.NewConcurrencyLimiter(100)),
//		engine.NewInterceptorFactory(&advice.Debug{}),
//	))
package advice
