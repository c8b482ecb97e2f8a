// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package orchestrator drives sequential tier escalation: each tier's
// handler runs under a timeout budget, the confidence evaluator decides
// whether to stop or escalate, and the full escalation path is recorded.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tierwise/cascade/internal/confidence"
)

// Level is one tier of the cascade. Levels are ordered: 0 is the cheapest,
// rule-based tier; higher levels are more capable and more expensive.
type Level int

// LevelHuman is the terminal pseudo-level appended when every real tier has
// been exhausted and human fallback is enabled. It is never part of the
// ordered tier sequence and never has a handler.
const LevelHuman Level = -1

// String renders a level for logs and escalation paths.
func (l Level) String() string {
	if l == LevelHuman {
		return "human"
	}
	return fmt.Sprintf("L%d", int(l))
}

// Task is an incoming unit of work. The context map is read-only to the
// orchestrator and is passed through to handlers untouched.
type Task struct {
	// Description is the free-text task description
	Description string `json:"description"`
	// Category is the routed task category used for confidence scoring
	Category string `json:"category"`
	// Context is the opaque caller-supplied key/value map
	Context map[string]interface{} `json:"context,omitempty"`
}

// Outcome is what a tier handler returns on success.
type Outcome struct {
	// Payload is the handler's result, opaque to the orchestrator
	Payload interface{} `json:"payload"`
	// ValidationScore is the caller-supplied validation signal (0.0-1.0)
	ValidationScore float64 `json:"validation_score"`
}

// Handler executes a task at one tier. Implementations must honor the
// context: when it is cancelled the handler's work is abandoned.
type Handler interface {
	Handle(ctx context.Context, task *Task) (*Outcome, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task *Task) (*Outcome, error)

// Handle calls the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, task *Task) (*Outcome, error) {
	return f(ctx, task)
}

// Config holds the cascade engine configuration. Built once at startup and
// immutable afterwards.
type Config struct {
	// StartLevel is the first tier attempted
	StartLevel Level `yaml:"start-level" json:"start_level"`
	// MaxLevel is the last real tier attempted before fallback
	MaxLevel Level `yaml:"max-level" json:"max_level"`
	// EnableHumanFallback appends the HUMAN pseudo-level on exhaustion
	EnableHumanFallback bool `yaml:"human-fallback" json:"human_fallback"`
	// Thresholds drives the pass/review/retry decision per tier
	Thresholds confidence.Thresholds `yaml:"thresholds" json:"thresholds"`
	// Timeouts is the per-level handler budget
	Timeouts map[Level]time.Duration `yaml:"timeouts" json:"timeouts"`
	// DefaultTimeout applies to levels missing from Timeouts
	DefaultTimeout time.Duration `yaml:"default-timeout" json:"default_timeout"`
}

// DefaultConfig returns a three-tier cascade with human fallback.
func DefaultConfig() Config {
	return Config{
		StartLevel:          0,
		MaxLevel:            2,
		EnableHumanFallback: true,
		Thresholds:          confidence.DefaultThresholds(),
		Timeouts:            map[Level]time.Duration{},
		DefaultTimeout:      30 * time.Second,
	}
}

// TimeoutFor returns the handler budget for a level.
func (c Config) TimeoutFor(level Level) time.Duration {
	if d, ok := c.Timeouts[level]; ok && d > 0 {
		return d
	}
	if c.DefaultTimeout > 0 {
		return c.DefaultTimeout
	}
	return 30 * time.Second
}

// Result is the outcome of one orchestration run, owned by the caller.
type Result struct {
	// RunID uniquely identifies the run in logs and feedback records
	RunID string `json:"run_id"`
	// Success is true when some tier's result was accepted
	Success bool `json:"success"`
	// Payload is the accepted handler payload, nil otherwise
	Payload interface{} `json:"payload,omitempty"`
	// LevelUsed is the tier that produced the accepted result, or
	// LevelHuman / the last attempted tier on failure
	LevelUsed Level `json:"level_used"`
	// Confidence is the combined score of the accepted result
	Confidence float64 `json:"confidence"`
	// EscalationPath lists every attempted tier exactly once in ascending
	// order, with HUMAN appended at most once at the very end
	EscalationPath []Level `json:"escalation_path"`
	// Elapsed is the total wall-clock time of the run
	Elapsed time.Duration `json:"elapsed"`
	// Details carries diagnostic flags: requires_human, all_levels_failed,
	// cancelled, timeout_levels, failed_levels
	Details map[string]interface{} `json:"details,omitempty"`
}

// Registration and invocation errors. Handler errors during a run never
// surface to the caller; they drive escalation instead.
var (
	// ErrLevelOutOfRange is returned when registering outside the tier sequence
	ErrLevelOutOfRange = errors.New("orchestrator: level outside configured tier sequence")
	// ErrNilHandler is returned when registering a nil handler
	ErrNilHandler = errors.New("orchestrator: nil handler")
)
