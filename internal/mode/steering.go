// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mode

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// SteeringRule forces a strategy when its condition evaluates true against
// the selection context. Conditions use expr syntax, e.g.
// `Intent == "analyze" && Confidence < 0.5`.
type SteeringRule struct {
	// Name identifies the rule in logs and selections
	Name string `yaml:"name" json:"name"`
	// Condition is an expr expression over SelectionContext
	Condition string `yaml:"condition" json:"condition"`
	// Strategy is forced when the condition matches
	Strategy Strategy `yaml:"strategy" json:"strategy"`
}

// SelectionContext is the environment steering conditions evaluate against.
type SelectionContext struct {
	Text            string
	Intent          string
	Confidence      float64
	IsManualTrigger bool
	Hour            int
	DayOfWeek       string
}

// ConditionEvaluator compiles and caches steering conditions.
type ConditionEvaluator struct {
	programs map[string]*vm.Program
}

// NewConditionEvaluator creates an empty evaluator.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{
		programs: make(map[string]*vm.Program),
	}
}

// Compile precompiles a condition so later evaluations reuse the program.
// Rules are installed at startup; the cache is not guarded for concurrent
// compilation.
func (e *ConditionEvaluator) Compile(condition string) error {
	if condition == "" || condition == "true" {
		return nil
	}
	if _, exists := e.programs[condition]; exists {
		return nil
	}

	program, err := expr.Compile(condition, expr.Env(&SelectionContext{}), expr.AsBool())
	if err != nil {
		return fmt.Errorf("failed to compile condition %q: %w", condition, err)
	}
	e.programs[condition] = program
	return nil
}

// Evaluate runs a condition against the selection context.
func (e *ConditionEvaluator) Evaluate(condition string, ctx *SelectionContext) (bool, error) {
	if condition == "" || condition == "true" {
		return true, nil
	}

	program, exists := e.programs[condition]
	if !exists {
		if err := e.Compile(condition); err != nil {
			return false, err
		}
		program = e.programs[condition]
	}

	output, err := expr.Run(program, ctx)
	if err != nil {
		return false, fmt.Errorf("failed to run condition %q: %w", condition, err)
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return a boolean", condition)
	}
	return result, nil
}
