// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tierwise/cascade/internal/confidence"
	"github.com/tierwise/cascade/internal/expert"
	"github.com/tierwise/cascade/internal/feedback"
)

// Core is the cascade engine. Handlers are registered per level before use;
// independent runs may then execute concurrently, sharing only the
// evaluator's read-mostly tables and its synchronized history.
type Core struct {
	cfg       Config
	evaluator *confidence.Evaluator
	router    *expert.Router
	collector *feedback.Collector

	mu       sync.RWMutex
	handlers map[Level]Handler
}

// NewCore creates a cascade engine. The router may be nil when callers
// always pre-set Task.Category; the collector is optional.
func NewCore(cfg Config, evaluator *confidence.Evaluator, router *expert.Router) *Core {
	if cfg.MaxLevel < cfg.StartLevel {
		cfg.MaxLevel = cfg.StartLevel
	}
	if cfg.StartLevel < 0 {
		cfg.StartLevel = 0
	}
	return &Core{
		cfg:       cfg,
		evaluator: evaluator,
		router:    router,
		handlers:  make(map[Level]Handler),
	}
}

// SetCollector attaches a feedback collector that records every run.
func (c *Core) SetCollector(collector *feedback.Collector) {
	c.collector = collector
}

// Register installs the handler for one tier. Registering the same level
// twice overrides the previous handler.
func (c *Core) Register(level Level, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	if level < c.cfg.StartLevel || level > c.cfg.MaxLevel {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrLevelOutOfRange, level, c.cfg.StartLevel, c.cfg.MaxLevel)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[level] = handler
	return nil
}

// RegisterFunc is Register for plain functions.
func (c *Core) RegisterFunc(level Level, fn HandlerFunc) error {
	return c.Register(level, fn)
}

// Orchestrate runs the cascade for a task. It always returns a Result:
// handler failures and timeouts drive escalation, exhaustion and caller
// cancellation are terminal result states, never errors.
func (c *Core) Orchestrate(ctx context.Context, taskText string, taskCtx map[string]interface{}) *Result {
	start := time.Now()

	task := &Task{
		Description: taskText,
		Context:     taskCtx,
	}
	if c.router != nil {
		task.Category = c.router.Route(taskText).Category
	}

	result := &Result{
		RunID:          uuid.NewString(),
		LevelUsed:      c.cfg.StartLevel,
		EscalationPath: make([]Level, 0, int(c.cfg.MaxLevel-c.cfg.StartLevel)+2),
		Details:        map[string]interface{}{},
	}

	logger := log.WithFields(log.Fields{
		"run_id":   result.RunID,
		"category": task.Category,
	})
	logger.Debugf("Starting cascade for task (%d tiers)", int(c.cfg.MaxLevel-c.cfg.StartLevel)+1)

	var timeoutLevels, failedLevels []string

	for level := c.cfg.StartLevel; level <= c.cfg.MaxLevel; level++ {
		if ctx.Err() != nil {
			return c.finishCancelled(result, task, start, logger)
		}

		result.EscalationPath = append(result.EscalationPath, level)
		result.LevelUsed = level

		attempt := c.invoke(ctx, level, task)
		switch {
		case attempt.cancelled:
			return c.finishCancelled(result, task, start, logger)

		case attempt.timedOut:
			timeoutLevels = append(timeoutLevels, level.String())
			logger.Warnf("Tier %s exceeded its %s budget, escalating", level, c.cfg.TimeoutFor(level))
			continue

		case attempt.err != nil:
			failedLevels = append(failedLevels, level.String())
			logger.Warnf("Tier %s failed (%v), escalating", level, attempt.err)
			continue
		}

		evalCtx := mergeValidation(taskCtx, attempt.outcome.ValidationScore)
		evalRes := c.evaluator.Evaluate(task.Category, "", evalCtx)

		if evalRes.Action == confidence.ActionPass {
			result.Success = true
			result.Payload = attempt.outcome.Payload
			result.Confidence = evalRes.TotalScore
			result.Details["action"] = string(evalRes.Action)
			c.storeDiagnostics(result, timeoutLevels, failedLevels)
			c.finish(result, task, start, true)
			logger.Infof("Cascade succeeded at tier %s (confidence %.3f)", level, evalRes.TotalScore)
			return result
		}

		result.Confidence = evalRes.TotalScore
		logger.Debugf("Tier %s scored %.3f (%s), escalating", level, evalRes.TotalScore, evalRes.Action)
	}

	c.storeDiagnostics(result, timeoutLevels, failedLevels)

	if c.cfg.EnableHumanFallback {
		result.EscalationPath = append(result.EscalationPath, LevelHuman)
		result.LevelUsed = LevelHuman
		result.Details["requires_human"] = true
		logger.Warn("All tiers exhausted, handing off to human")
	} else {
		result.Details["all_levels_failed"] = true
		logger.Warn("All tiers exhausted, no human fallback configured")
	}

	c.finish(result, task, start, false)
	return result
}

// attemptResult separates the timeout case from the handler-reported
// failure case; both escalate, but they stay separately observable.
type attemptResult struct {
	outcome   *Outcome
	err       error
	timedOut  bool
	cancelled bool
}

// invoke runs a tier handler under its timeout budget. The handler runs in
// its own goroutine so an over-budget handler is abandoned rather than
// waited on; its context is cancelled so it can stop early.
func (c *Core) invoke(ctx context.Context, level Level, task *Task) attemptResult {
	c.mu.RLock()
	handler, ok := c.handlers[level]
	c.mu.RUnlock()

	if !ok {
		return attemptResult{err: fmt.Errorf("no handler registered for tier %s", level)}
	}

	levelCtx, cancel := context.WithTimeout(ctx, c.cfg.TimeoutFor(level))
	defer cancel()

	type handlerReturn struct {
		outcome *Outcome
		err     error
	}
	done := make(chan handlerReturn, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- handlerReturn{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		outcome, err := handler.Handle(levelCtx, task)
		done <- handlerReturn{outcome: outcome, err: err}
	}()

	select {
	case ret := <-done:
		if ret.err != nil {
			return attemptResult{err: ret.err}
		}
		if ret.outcome == nil {
			return attemptResult{err: fmt.Errorf("handler for tier %s returned no outcome", level)}
		}
		return attemptResult{outcome: ret.outcome}
	case <-levelCtx.Done():
		if ctx.Err() != nil {
			return attemptResult{cancelled: true}
		}
		return attemptResult{timedOut: true}
	}
}

func (c *Core) finishCancelled(result *Result, task *Task, start time.Time, logger *log.Entry) *Result {
	result.Details["cancelled"] = true
	result.Success = false
	result.Elapsed = time.Since(start)
	logger.Infof("Cascade cancelled after %s", result.Elapsed)
	c.record(result, task)
	return result
}

// finish stamps the elapsed time, records the outcome into the rolling
// history, and hands the run to the collector. Cancelled runs skip the
// history so aborted work does not skew success rates.
func (c *Core) finish(result *Result, task *Task, start time.Time, success bool) {
	result.Elapsed = time.Since(start)
	if task.Category != "" {
		c.evaluator.RecordResult(task.Category, success)
	}
	c.record(result, task)
}

func (c *Core) record(result *Result, task *Task) {
	if c.collector == nil {
		return
	}
	if err := c.collector.Record(feedback.RecordFromRun(
		result.RunID,
		task.Category,
		result.LevelUsed.String(),
		result.Confidence,
		result.Success,
		escalationStrings(result.EscalationPath),
		result.Elapsed,
		result.Details,
	)); err != nil {
		log.Warnf("Failed to record run %s: %v", result.RunID, err)
	}
}

func (c *Core) storeDiagnostics(result *Result, timeoutLevels, failedLevels []string) {
	if len(timeoutLevels) > 0 {
		result.Details["timeout_levels"] = timeoutLevels
	}
	if len(failedLevels) > 0 {
		result.Details["failed_levels"] = failedLevels
	}
}

// mergeValidation copies the task context and overlays the handler's
// validation signal; the caller's map is never mutated.
func mergeValidation(taskCtx map[string]interface{}, score float64) map[string]interface{} {
	merged := make(map[string]interface{}, len(taskCtx)+1)
	for k, v := range taskCtx {
		merged[k] = v
	}
	merged["validation_score"] = score
	return merged
}

func escalationStrings(path []Level) []string {
	out := make([]string, len(path))
	for i, level := range path {
		out[i] = level.String()
	}
	return out
}
