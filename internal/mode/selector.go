// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mode combines intent classification with confidence evaluation to
// pick a processing strategy and decide whether clarification is required.
package mode

import (
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tierwise/cascade/internal/confidence"
	"github.com/tierwise/cascade/internal/intent"
)

// Strategy is a processing approach for an incoming task.
type Strategy string

const (
	// StrategyDirect executes the task in a single pass
	StrategyDirect Strategy = "direct"
	// StrategyExploreFirst gathers context before committing to an approach
	StrategyExploreFirst Strategy = "explore_first"
	// StrategyParallel tries several approaches concurrently
	StrategyParallel Strategy = "parallel"
	// StrategyIterative refines the result over multiple passes
	StrategyIterative Strategy = "iterative"
)

// Tuning holds the confidence cut points for the strategy ladder and the
// clarification floor.
type Tuning struct {
	// Direct is the minimum combined confidence for single-pass execution
	Direct float64 `yaml:"direct" json:"direct"`
	// Iterative is the minimum combined confidence for iterative refinement
	Iterative float64 `yaml:"iterative" json:"iterative"`
	// Parallel is the minimum combined confidence for parallel attempts
	Parallel float64 `yaml:"parallel" json:"parallel"`
	// Clarify is the floor below which a clarification question is required
	Clarify float64 `yaml:"clarify" json:"clarify"`
}

// DefaultTuning returns the standard strategy ladder.
func DefaultTuning() Tuning {
	return Tuning{
		Direct:    0.8,
		Iterative: 0.6,
		Parallel:  0.4,
		Clarify:   0.4,
	}
}

// Selection is the outcome of a mode selection.
type Selection struct {
	// Intent is the classified intent tag
	Intent string `json:"intent"`
	// Strategy is the chosen processing strategy
	Strategy Strategy `json:"strategy"`
	// Confidence is the combined confidence (0.0-1.0)
	Confidence float64 `json:"confidence"`
	// NeedsClarification is set when the caller should ask before executing
	NeedsClarification bool `json:"needs_clarification"`
	// Clarification is the templated question to ask, when required
	Clarification string `json:"clarification,omitempty"`
	// SteeredBy names the steering rule that forced the strategy, if any
	SteeredBy string `json:"steered_by,omitempty"`
	// Reasoning carries the classifier's explanation
	Reasoning string `json:"reasoning,omitempty"`
}

// fixedStrategies maps intents whose strategy does not depend on confidence.
var fixedStrategies = map[string]Strategy{
	intent.IntentExplore:   StrategyParallel,
	intent.IntentReflect:   StrategyIterative,
	intent.IntentToolBuild: StrategyExploreFirst,
}

// clarifications holds the per-intent templated clarification questions.
var clarifications = map[string]string{
	intent.IntentCreate:    "What exactly should be created, and are there constraints to respect?",
	intent.IntentModify:    "Which part should be changed, and what should it look like afterwards?",
	intent.IntentAnalyze:   "What should the analysis focus on?",
	intent.IntentExplore:   "Which directions are worth exploring first?",
	intent.IntentReflect:   "What outcome are you unsure about?",
	intent.IntentToolBuild: "What should the tool take as input and produce?",
	intent.IntentUnknown:   "Could you describe what you want to accomplish?",
}

// Selector picks a processing strategy from intent classification plus,
// when a task category is recognizable, confidence evaluation.
type Selector struct {
	classifier *intent.Classifier
	evaluator  *confidence.Evaluator
	tuning     Tuning

	// mu guards vocabulary, rules, and the compiled rule cache so
	// SetVocabulary and AddRule are safe alongside concurrent Selects.
	mu         sync.RWMutex
	vocabulary []string
	rules      []*SteeringRule
	evalRules  *ConditionEvaluator
}

// NewSelector creates a Selector. The evaluator may be nil, in which case
// selection relies on intent confidence alone.
func NewSelector(classifier *intent.Classifier, evaluator *confidence.Evaluator, tuning Tuning) *Selector {
	return &Selector{
		classifier: classifier,
		evaluator:  evaluator,
		tuning:     tuning,
		vocabulary: []string{"document", "dataset", "report", "schema", "pipeline", "query"},
		evalRules:  NewConditionEvaluator(),
	}
}

// SetVocabulary replaces the category extraction vocabulary.
func (s *Selector) SetVocabulary(words []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vocabulary = words
}

// AddRule compiles and installs a steering rule. Rules are checked in
// installation order; the first match forces its strategy.
func (s *Selector) AddRule(rule SteeringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.evalRules.Compile(rule.Condition); err != nil {
		return fmt.Errorf("steering rule %s: %w", rule.Name, err)
	}
	r := rule
	s.rules = append(s.rules, &r)
	log.Debugf("Installed steering rule %s (strategy %s)", r.Name, r.Strategy)
	return nil
}

// Select classifies the text, combines confidences, and picks a strategy.
func (s *Selector) Select(text string, state map[string]interface{}) Selection {
	classification := s.classifier.Classify(text, state)

	combined := classification.Confidence
	category := s.extractCategory(text)
	if category != "" && s.evaluator != nil {
		evalRes := s.evaluator.Evaluate(category, "", state)
		combined = (classification.Confidence + evalRes.TotalScore) / 2
	}

	selection := Selection{
		Intent:     classification.Intent,
		Confidence: combined,
		Reasoning:  classification.Reasoning,
	}

	selection.Strategy = s.strategyFor(classification.Intent, combined)

	// Steering rules can force a strategy regardless of the ladder.
	if rule := s.matchRule(text, classification, combined); rule != nil {
		selection.Strategy = rule.Strategy
		selection.SteeredBy = rule.Name
	}

	s.applyClarification(&selection, classification)
	return selection
}

func (s *Selector) strategyFor(tag string, combined float64) Strategy {
	if fixed, ok := fixedStrategies[tag]; ok {
		return fixed
	}
	switch {
	case combined >= s.tuning.Direct:
		return StrategyDirect
	case combined >= s.tuning.Iterative:
		return StrategyIterative
	case combined >= s.tuning.Parallel:
		return StrategyParallel
	default:
		return StrategyExploreFirst
	}
}

// applyClarification enforces the clarification policy: never for manual
// triggers, always below the clarify floor, always for unknown intents.
func (s *Selector) applyClarification(selection *Selection, classification intent.Classification) {
	if classification.IsManualTrigger {
		return
	}

	needsIt := selection.Confidence < s.tuning.Clarify || classification.Intent == intent.IntentUnknown
	if !needsIt {
		return
	}

	selection.NeedsClarification = true
	if q, ok := clarifications[classification.Intent]; ok {
		selection.Clarification = q
	} else {
		selection.Clarification = clarifications[intent.IntentUnknown]
	}
}

// extractCategory checks the text against the small category vocabulary.
func (s *Selector) extractCategory(text string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(text)
	for _, word := range s.vocabulary {
		if strings.Contains(lowered, strings.ToLower(word)) {
			return word
		}
	}
	return ""
}

func (s *Selector) matchRule(text string, classification intent.Classification, combined float64) *SteeringRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rules) == 0 {
		return nil
	}

	now := time.Now()
	ctx := &SelectionContext{
		Text:            text,
		Intent:          classification.Intent,
		Confidence:      combined,
		IsManualTrigger: classification.IsManualTrigger,
		Hour:            now.Hour(),
		DayOfWeek:       now.Weekday().String(),
	}

	for _, rule := range s.rules {
		matched, err := s.evalRules.Evaluate(rule.Condition, ctx)
		if err != nil {
			log.Warnf("Steering rule %s failed to evaluate: %v", rule.Name, err)
			continue
		}
		if matched {
			return rule
		}
	}
	return nil
}
