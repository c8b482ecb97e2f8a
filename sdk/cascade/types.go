// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cascade is the embeddable public surface of the cascade engine.
// It re-exports the internal types external programs need and wires the
// evaluator, router, classifier, selector, and orchestrator together from
// one configuration file.
package cascade

import (
	"github.com/tierwise/cascade/internal/confidence"
	"github.com/tierwise/cascade/internal/config"
	"github.com/tierwise/cascade/internal/expert"
	"github.com/tierwise/cascade/internal/feedback"
	"github.com/tierwise/cascade/internal/intent"
	"github.com/tierwise/cascade/internal/mode"
	"github.com/tierwise/cascade/internal/orchestrator"
)

// Configuration types, usable with NewServiceFromConfig.
type (
	Config             = config.Config
	CascadeConfig      = config.CascadeConfig
	ThresholdsConfig   = config.ThresholdsConfig
	TablesConfig       = config.TablesConfig
	IntentConfig       = config.IntentConfig
	ModeConfig         = config.ModeConfig
	SteeringRuleConfig = config.SteeringRuleConfig
	ExpertConfig       = config.ExpertConfig
	FeedbackConfig     = config.FeedbackConfig
)

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return config.Default()
}

// Confidence scoring types.
type (
	Source     = confidence.Source
	Action     = confidence.Action
	Thresholds = confidence.Thresholds
	Evaluation = confidence.Result
)

// Confidence sources and actions.
const (
	SourceEmbedding  = confidence.SourceEmbedding
	SourcePattern    = confidence.SourcePattern
	SourceHistory    = confidence.SourceHistory
	SourceValidation = confidence.SourceValidation

	ActionPass   = confidence.ActionPass
	ActionReview = confidence.ActionReview
	ActionRetry  = confidence.ActionRetry
)

// Expert routing types.
type Capability = expert.Capability

// Intent classification types.
type Classification = intent.Classification

// Execution mode types.
type (
	Strategy     = mode.Strategy
	Selection    = mode.Selection
	SteeringRule = mode.SteeringRule
)

// Execution strategies.
const (
	StrategyDirect       = mode.StrategyDirect
	StrategyExploreFirst = mode.StrategyExploreFirst
	StrategyParallel     = mode.StrategyParallel
	StrategyIterative    = mode.StrategyIterative
)

// Orchestration types.
type (
	Level       = orchestrator.Level
	Task        = orchestrator.Task
	Outcome     = orchestrator.Outcome
	Handler     = orchestrator.Handler
	HandlerFunc = orchestrator.HandlerFunc
	Result      = orchestrator.Result
)

// LevelHuman is the terminal pseudo-level appended when every real tier is
// exhausted and human fallback is enabled.
const LevelHuman = orchestrator.LevelHuman

// Feedback types.
type OutcomeRecord = feedback.Record
