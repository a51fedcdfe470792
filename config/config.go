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

// Package config loads weaving configuration files.
//
// A configuration file declares engine options, symbolic classes, named
// pointcuts, aspect definitions, advice bindings and metadata bindings:
//
//	matchOnAdvisor: true
//	scriptMaxExecutionTime: 500ms
//	properties:
//	  logging: {prefix: "> "}
//	classes:
//	  - name: shop.Cart
//	    methods:
//	      - {name: Total, modifiers: [public], returns: float64}
//	pointcuts:
//	  - name: totals
//	    expr: {execution: {name: Total}}
//	aspects:
//	  - {name: logging, scope: PER_CLASS, type: logging}
//	bindings:
//	  - name: log
//	    pointcut: totals
//	    order: 1
//	    interceptors:
//	      - aspect: logging
//	      - {aspect: logging, advice: Trace, kind: around}
//	      - interceptor: debug
//	metadata:
//	  - {name: tx, pointcut: totals, tag: tx, attributes: {timeout: 5}}
//
// Aspect and interceptor types are resolved through a Registry.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/engine"
	"github.com/rulego/weaver/member"
	"github.com/rulego/weaver/pointcut"
)

// File is a decoded configuration file.
type File struct {
	MatchOnAdvisor         bool                              `yaml:"matchOnAdvisor"`
	ScriptMaxExecutionTime time.Duration                     `yaml:"scriptMaxExecutionTime" validate:"gte=0"`
	Properties             map[string]map[string]interface{} `yaml:"properties"`
	Classes                []member.ClassDecl                `yaml:"classes" validate:"dive"`
	Pointcuts              []PointcutDecl                    `yaml:"pointcuts" validate:"unique=Name,dive"`
	Aspects                []AspectDecl                      `yaml:"aspects" validate:"unique=Name,dive"`
	Bindings               []BindingDecl                     `yaml:"bindings" validate:"unique=Name,dive"`
	MetaData               []MetaDataDecl                    `yaml:"metadata" validate:"dive"`
}

// PointcutDecl is a named pointcut expression in the format of pointcut.Decode.
type PointcutDecl struct {
	Name string    `yaml:"name" validate:"required"`
	Expr yaml.Node `yaml:"expr"`
}

// AspectDecl declares an aspect definition. Type names a Registry aspect factory.
type AspectDecl struct {
	Name  string `yaml:"name" validate:"required"`
	Scope string `yaml:"scope" validate:"required,scope"`
	Type  string `yaml:"type" validate:"required"`
}

// BindingDecl binds interceptors to the join points selected by Pointcut.
type BindingDecl struct {
	Name         string            `yaml:"name" validate:"required"`
	Pointcut     string            `yaml:"pointcut" validate:"required"`
	Order        int               `yaml:"order"`
	Interceptors []InterceptorDecl `yaml:"interceptors" validate:"required,min=1,dive"`
}

// InterceptorDecl is one chain entry of a binding. It names either a
// registered interceptor, an aspect whose instances are interceptors, or an
// advice method of an aspect.
type InterceptorDecl struct {
	Interceptor string `yaml:"interceptor" validate:"required_without=Aspect,excluded_with=Aspect"`
	Aspect      string `yaml:"aspect" validate:"required_without=Interceptor"`
	Advice      string `yaml:"advice" validate:"excluded_without=Aspect"`
	Kind        string `yaml:"kind" validate:"omitempty,advicekind"`
}

// MetaDataDecl attaches a tag and its attributes to the members selected by Pointcut.
type MetaDataDecl struct {
	Name       string                 `yaml:"name" validate:"required"`
	Pointcut   string                 `yaml:"pointcut" validate:"required"`
	Tag        string                 `yaml:"tag" validate:"required"`
	Attributes map[string]interface{} `yaml:"attributes"`
	Default    bool                   `yaml:"default"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("scope", func(fl validator.FieldLevel) bool {
		_, err := types.ParseScope(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("advicekind", func(fl validator.FieldLevel) bool {
		_, err := engine.ParseAdviceKind(fl.Field().String())
		return err == nil
	})
	return v
}

// Load reads and validates the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &f, nil
}

// Options returns the engine options declared by the file.
func (f *File) Options() []types.Option {
	opts := []types.Option{types.WithMatchOnAdvisor(f.MatchOnAdvisor)}
	if f.ScriptMaxExecutionTime > 0 {
		opts = append(opts, types.WithScriptMaxExecutionTime(f.ScriptMaxExecutionTime))
	}
	for aspect, properties := range f.Properties {
		opts = append(opts, types.WithProperties(aspect, properties))
	}
	return opts
}

// ClassPool declares the file's classes in a new pool whose unknown names
// resolve through parent.
func (f *File) ClassPool(parent member.Resolver) (*member.ClassPool, error) {
	pool := member.NewClassPool(parent)
	for _, decl := range f.Classes {
		if _, err := pool.Add(decl); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

// PointcutList decodes the file's pointcuts in declaration order. A pointcut may
// refer to one declared before it or to one of known.
func (f *File) PointcutList(known ...*pointcut.Pointcut) ([]*pointcut.Pointcut, error) {
	named := make(map[string]*pointcut.Pointcut, len(f.Pointcuts)+len(known))
	for _, p := range known {
		named[p.Name] = p
	}
	result := make([]*pointcut.Pointcut, 0, len(f.Pointcuts))
	for i := range f.Pointcuts {
		decl := &f.Pointcuts[i]
		expr, err := pointcut.DecodeNode(&decl.Expr, named)
		if err != nil {
			return nil, fmt.Errorf("pointcut %s: %w", decl.Name, err)
		}
		p := pointcut.New(decl.Name, expr)
		named[p.Name] = p
		result = append(result, p)
	}
	return result, nil
}

// NewManager creates a manager configured by the file, with opts applied
// after the file's options, and applies the file's declarations to it.
func (f *File) NewManager(registry *Registry, opts ...types.Option) (*engine.Manager, error) {
	m := engine.NewManager(types.NewConfig(append(f.Options(), opts...)...))
	if err := f.Apply(m, registry); err != nil {
		return nil, err
	}
	return m, nil
}

// Apply registers the file's aspect definitions, advice bindings and metadata
// bindings with m, then rebuilds every advisor once. Errors of every
// declaration are collected.
func (f *File) Apply(m *engine.Manager, registry *Registry) error {
	if registry == nil {
		registry = DefaultRegistry
	}
	pointcuts, err := f.PointcutList()
	if err != nil {
		return err
	}
	named := make(map[string]*pointcut.Pointcut, len(pointcuts))
	for _, p := range pointcuts {
		named[p.Name] = p
	}

	var errs []error
	for _, decl := range f.Aspects {
		if err := f.addAspect(m, registry, decl); err != nil {
			errs = append(errs, fmt.Errorf("aspect %s: %w", decl.Name, err))
		}
	}
	metaData := make([]*engine.MetaDataBinding, 0, len(f.MetaData))
	for _, decl := range f.MetaData {
		pc, ok := named[decl.Pointcut]
		if !ok {
			errs = append(errs, fmt.Errorf("metadata %s: unknown pointcut %s", decl.Name, decl.Pointcut))
			continue
		}
		metaData = append(metaData, &engine.MetaDataBinding{
			Name:       decl.Name,
			Pointcut:   pc,
			Tag:        decl.Tag,
			Attributes: decl.Attributes,
			Default:    decl.Default,
		})
	}
	bindings := make([]*engine.AdviceBinding, 0, len(f.Bindings))
	for _, decl := range f.Bindings {
		b, err := f.binding(m, registry, named, decl)
		if err != nil {
			errs = append(errs, fmt.Errorf("binding %s: %w", decl.Name, err))
			continue
		}
		bindings = append(bindings, b)
	}
	if len(bindings) > 0 || len(metaData) > 0 {
		if err := m.AddBindings(bindings, metaData); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *File) addAspect(m *engine.Manager, registry *Registry, decl AspectDecl) error {
	scope, err := types.ParseScope(decl.Scope)
	if err != nil {
		return err
	}
	newFactory, ok := registry.aspect(decl.Type)
	if !ok {
		return fmt.Errorf("unknown aspect type %s", decl.Type)
	}
	return m.AddAspectDefinition(types.NewAspectDefinition(decl.Name, scope, newFactory()))
}

func (f *File) binding(m *engine.Manager, registry *Registry, named map[string]*pointcut.Pointcut, decl BindingDecl) (*engine.AdviceBinding, error) {
	pc, ok := named[decl.Pointcut]
	if !ok {
		return nil, fmt.Errorf("unknown pointcut %s", decl.Pointcut)
	}
	factories := make([]engine.InterceptorFactory, 0, len(decl.Interceptors))
	for _, i := range decl.Interceptors {
		if i.Interceptor != "" {
			newInterceptor, ok := registry.interceptor(i.Interceptor)
			if !ok {
				return nil, fmt.Errorf("unknown interceptor %s", i.Interceptor)
			}
			factories = append(factories, engine.NewInterceptorFactory(newInterceptor()))
			continue
		}
		def, ok := m.GetAspectDefinition(i.Aspect)
		if !ok {
			return nil, fmt.Errorf("unknown aspect %s", i.Aspect)
		}
		if i.Advice == "" {
			factories = append(factories, engine.NewScopedInterceptorFactory(def))
			continue
		}
		kind := engine.Around
		if i.Kind != "" {
			var err error
			if kind, err = engine.ParseAdviceKind(i.Kind); err != nil {
				return nil, err
			}
		}
		factories = append(factories, engine.NewAdviceFactory(def, i.Advice, kind))
	}
	return engine.NewAdviceBinding(decl.Name, pc, factories...).WithOrder(decl.Order), nil
}
