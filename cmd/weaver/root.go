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

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/config"
	"github.com/rulego/weaver/member"
	"github.com/rulego/weaver/pointcut"
	"github.com/rulego/weaver/utils/fs"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "weaver",
		Short:         "Inspect pointcuts and advice bindings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMatchCmd(), newCheckCmd())
	return root
}

func newMatchCmd() *cobra.Command {
	var classesPath, pointcutsPath string
	var matchOnAdvisor bool
	cmd := &cobra.Command{
		Use:   "match",
		Short: "List the members every pointcut selects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := loadClasses(classesPath)
			if err != nil {
				return err
			}
			pointcuts, err := os.ReadFile(pointcutsPath)
			if err != nil {
				return err
			}
			pcs, err := pointcut.Decode(pointcuts)
			if err != nil {
				return err
			}
			return runMatch(cmd.OutOrStdout(), pool, pcs, pointcut.MatchOptions{MatchOnAdvisor: matchOnAdvisor})
		},
	}
	cmd.Flags().StringVar(&classesPath, "classes", "", "YAML file of class declarations, or a pattern such as classes/*.yaml")
	cmd.Flags().StringVar(&pointcutsPath, "pointcuts", "", "YAML file of named pointcuts")
	cmd.Flags().BoolVar(&matchOnAdvisor, "match-on-advisor", false, "match inherited members against the class they are found on")
	_ = cmd.MarkFlagRequired("classes")
	_ = cmd.MarkFlagRequired("pointcuts")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "check <config.yaml>",
		Short: "Apply a configuration to its classes and print every advised chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(args[0])
			if err != nil {
				return err
			}
			logger := types.DiscardLogger()
			if verbose {
				logger = types.NewLogger(nil)
			}
			return runCheck(cmd.OutOrStdout(), f, logger)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log engine messages")
	return cmd
}

// loadClasses declares the classes of every file matching pattern in one pool.
func loadClasses(pattern string) (*member.ClassPool, error) {
	paths, err := fs.GetFilePaths(pattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no class files match %s", pattern)
	}
	pool := member.NewClassPool(nil)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if _, err := pool.LoadYAML(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return pool, nil
}

// runMatch prints one line per pointcut and selected member.
func runMatch(out io.Writer, pool *member.ClassPool, pcs []*pointcut.Pointcut, opts pointcut.MatchOptions) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range pool.Names() {
		class, err := pool.Resolve(name)
		if err != nil {
			return err
		}
		methods, err := member.AllMethods(class)
		if err != nil {
			return err
		}
		fields, err := member.AllFields(class)
		if err != nil {
			return err
		}
		for _, p := range pcs {
			for _, m := range methods {
				if err := printMatch(w, p, types.MethodExecution, m.Key(), func() (bool, error) {
					return p.MatchesExecution(opts, m)
				}); err != nil {
					return err
				}
			}
			for _, f := range fields {
				if err := printMatch(w, p, types.FieldRead, f.Key(), func() (bool, error) {
					return p.MatchesGet(opts, f)
				}); err != nil {
					return err
				}
				if err := printMatch(w, p, types.FieldWrite, f.Key(), func() (bool, error) {
					return p.MatchesSet(opts, f)
				}); err != nil {
					return err
				}
			}
			for _, c := range class.Constructors() {
				if err := printMatch(w, p, types.ConstructorExecution, c.Key(), func() (bool, error) {
					return p.MatchesConstruction(opts, c)
				}); err != nil {
					return err
				}
			}
		}
	}
	return w.Flush()
}

func printMatch(w io.Writer, p *pointcut.Pointcut, kind types.JoinpointKind, key string, matches func() (bool, error)) error {
	ok, err := matches()
	if err != nil {
		return fmt.Errorf("pointcut %s on %s: %w", p.Name, key, err)
	}
	if ok {
		_, err = fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, kind, key)
	}
	return err
}

// runCheck advises every class declared by f and prints the chain of each
// advised method.
func runCheck(out io.Writer, f *config.File, logger types.Logger) error {
	pool, err := f.ClassPool(nil)
	if err != nil {
		return err
	}
	m, err := f.NewManager(config.DefaultRegistry, types.WithLogger(logger))
	if err != nil {
		return err
	}
	defer m.Stop()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range pool.Names() {
		class, err := pool.Resolve(name)
		if err != nil {
			return err
		}
		advisor, err := m.Advise(class)
		if err != nil {
			return err
		}
		methods, err := member.AllMethods(class)
		if err != nil {
			return err
		}
		for _, method := range methods {
			chain, err := advisor.Chain(method.Key())
			if err != nil || len(chain) == 0 {
				continue
			}
			fmt.Fprintf(w, "%s\t%v\n", method.Key(), chain)
		}
	}
	return w.Flush()
}
