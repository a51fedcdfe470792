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

package types

import (
	"time"
)

const (
	// In is the flow type reported to OnDebug before an interceptor runs.
	In = "IN"
	// Out is the flow type reported to OnDebug after an interceptor returns.
	Out = "OUT"
)

// Config defines the configuration of the weaving engine.
type Config struct {
	// OnDebug is a callback for interceptor debug information. It is called by the
	// debug interceptor for every advised call it wraps.
	// - invocationId: The ID of the in-flight invocation.
	// - flowType: IN before the rest of the chain runs, OUT after it returned.
	// - joinpoint: The structural key of the join point.
	// - result: The value returned by the rest of the chain, nil for IN.
	// - err: Error information, if any.
	OnDebug func(invocationId string, flowType string, joinpoint string, result interface{}, err error)
	// Logger is the logging interface, defaulting to `DefaultLogger()`.
	Logger Logger
	// Properties are externally resolved aspect attributes, keyed by aspect name.
	// Generic aspect factories inject them into every instance they build.
	Properties map[string]map[string]interface{}
	// MatchOnAdvisor lets a method declared on the advised class match a class
	// expression naming one of its supertypes.
	MatchOnAdvisor bool
	// ScriptMaxExecutionTime is the maximum execution time for guard scripts, defaulting to 2000 milliseconds.
	ScriptMaxExecutionTime time.Duration
	// Udf is a map for registering custom Golang functions callable from guard scripts.
	Udf map[string]interface{}
}

// RegisterUdf registers a custom function callable from guard scripts.
func (c *Config) RegisterUdf(name string, value interface{}) {
	if c.Udf == nil {
		c.Udf = make(map[string]interface{})
	}
	c.Udf[name] = value
}

// AspectProperties returns the attributes configured for the named aspect.
func (c *Config) AspectProperties(aspect string) map[string]interface{} {
	if c.Properties == nil {
		return nil
	}
	return c.Properties[aspect]
}

// NewConfig creates a new Config with default values and applies the provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		ScriptMaxExecutionTime: time.Millisecond * 2000,
		Logger:                 DefaultLogger(),
		Properties:             make(map[string]map[string]interface{}),
	}

	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}
