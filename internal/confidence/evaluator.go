// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package confidence

import (
	"strings"
	"sync"
	"sync/atomic"
)

// historyWindow bounds the per-category outcome ring buffer.
const historyWindow = 20

// defaultScore is used for sources that have no signal available.
const defaultScore = 0.5

// categoryHistory is a bounded ring of boolean outcomes for one category.
// Each category carries its own lock so concurrent RecordResult calls on
// different categories never contend.
type categoryHistory struct {
	mu       sync.Mutex
	outcomes []bool
}

func (h *categoryHistory) record(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.outcomes = append(h.outcomes, success)
	if len(h.outcomes) > historyWindow {
		h.outcomes = h.outcomes[len(h.outcomes)-historyWindow:]
	}
}

func (h *categoryHistory) successRate() (float64, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.outcomes) == 0 {
		return defaultScore, 0
	}
	wins := 0
	for _, ok := range h.outcomes {
		if ok {
			wins++
		}
	}
	return float64(wins) / float64(len(h.outcomes)), len(h.outcomes)
}

func (h *categoryHistory) snapshot() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]bool, len(h.outcomes))
	copy(out, h.outcomes)
	return out
}

// Evaluator combines the four weighted confidence sources into a single
// score and cascade action. Lookup tables are read-only snapshots swapped
// atomically on reload; the outcome history is mutable and synchronized
// per category.
type Evaluator struct {
	thresholds Thresholds
	tables     atomic.Pointer[tables]

	historyMu sync.RWMutex
	history   map[string]*categoryHistory

	// Metrics (atomic for thread safety)
	evaluationCount int64
	passCount       int64
	reviewCount     int64
	retryCount      int64
}

// NewEvaluator creates an Evaluator with empty lookup tables.
func NewEvaluator(thresholds Thresholds) *Evaluator {
	e := &Evaluator{
		thresholds: thresholds,
		history:    make(map[string]*categoryHistory),
	}
	e.tables.Store(emptyTables())
	return e
}

// Thresholds returns the configured (normalized) thresholds.
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate scores a category against the loaded tables, the rolling outcome
// history, and the caller-supplied validation signal. The context map is
// read-only to the evaluator; validation_score is the only key consulted.
func (e *Evaluator) Evaluate(category, targetHint string, ctx map[string]interface{}) Result {
	atomic.AddInt64(&e.evaluationCount, 1)

	snap := e.tables.Load()

	embedding, embeddingDetail := e.embeddingScore(snap, category, targetHint)
	pattern, patternDetail := e.patternScore(snap, category)
	history, samples := e.historyScore(category)
	validation := validationScore(ctx)

	scores := map[Source]float64{
		SourceEmbedding:  embedding,
		SourcePattern:    pattern,
		SourceHistory:    history,
		SourceValidation: validation,
	}

	// Stable source order keeps the float sum bit-for-bit reproducible.
	total := 0.0
	for _, src := range Sources {
		total += scores[src] * e.thresholds.Weights[src]
	}
	total = clamp01(total)

	action := e.thresholds.ActionFor(total)
	switch action {
	case ActionPass:
		atomic.AddInt64(&e.passCount, 1)
	case ActionReview:
		atomic.AddInt64(&e.reviewCount, 1)
	default:
		atomic.AddInt64(&e.retryCount, 1)
	}

	return Result{
		TotalScore: total,
		Scores:     scores,
		Action:     action,
		Details: map[string]interface{}{
			"category":        category,
			"embedding_match": embeddingDetail,
			"pattern_match":   patternDetail,
			"history_samples": samples,
		},
	}
}

// embeddingScore rates how well the category is represented in the loaded
// vector table. The vectors themselves are opaque here; presence and key
// similarity carry the signal.
func (e *Evaluator) embeddingScore(snap *tables, category, targetHint string) (float64, string) {
	if category == "" {
		return 0.35, "none"
	}

	if _, ok := snap.embeddings[category]; ok {
		return 0.95, "exact"
	}

	lowered := strings.ToLower(category)
	hint := strings.ToLower(targetHint)
	for key := range snap.embeddings {
		lk := strings.ToLower(key)
		if strings.Contains(lk, lowered) || strings.Contains(lowered, lk) {
			return 0.8, "substring"
		}
		if hint != "" && (strings.Contains(lk, hint) || strings.Contains(hint, lk)) {
			return 0.8, "hint"
		}
	}

	for _, token := range tokenize(lowered) {
		if len(token) <= 2 {
			continue
		}
		for key := range snap.embeddings {
			for _, keyToken := range tokenize(strings.ToLower(key)) {
				if token == keyToken {
					return 0.6, "token"
				}
			}
		}
	}

	return 0.35, "none"
}

// patternScore accumulates frequency-weighted matches from the pattern
// table. The constants shape a monotonic score bounded in [0.3, 0.95].
func (e *Evaluator) patternScore(snap *tables, category string) (float64, int) {
	if category == "" {
		return 0.3, 0
	}

	lowered := strings.ToLower(category)
	matches := 0
	weight := 0.0
	for key, freq := range snap.patterns {
		if strings.Contains(strings.ToLower(key), lowered) {
			matches++
			weight += freq
		}
	}

	if matches == 0 {
		return 0.3, 0
	}

	score := 0.4 + float64(matches)/5.0*0.3 + weight/50.0*0.2
	if score > 0.95 {
		score = 0.95
	}
	return score, matches
}

// historyScore returns the rolling success rate for the category, or the
// default when no outcomes have been recorded yet.
func (e *Evaluator) historyScore(category string) (float64, int) {
	e.historyMu.RLock()
	h, ok := e.history[category]
	e.historyMu.RUnlock()

	if !ok {
		return defaultScore, 0
	}
	return h.successRate()
}

// validationScore reads the caller-supplied signal from the context map.
func validationScore(ctx map[string]interface{}) float64 {
	if ctx == nil {
		return defaultScore
	}
	switch v := ctx["validation_score"].(type) {
	case float64:
		return clamp01(v)
	case float32:
		return clamp01(float64(v))
	case int:
		return clamp01(float64(v))
	default:
		return defaultScore
	}
}

// RecordResult appends an outcome to the category's bounded history window.
// Once the window holds 20 entries the oldest outcome is evicted first.
func (e *Evaluator) RecordResult(category string, success bool) {
	if category == "" {
		return
	}

	e.historyMu.RLock()
	h, ok := e.history[category]
	e.historyMu.RUnlock()

	if !ok {
		e.historyMu.Lock()
		h, ok = e.history[category]
		if !ok {
			h = &categoryHistory{}
			e.history[category] = h
		}
		e.historyMu.Unlock()
	}

	h.record(success)
}

// History returns a copy of the recorded outcomes for a category.
func (e *Evaluator) History(category string) []bool {
	e.historyMu.RLock()
	h, ok := e.history[category]
	e.historyMu.RUnlock()

	if !ok {
		return nil
	}
	return h.snapshot()
}

// GetMetrics returns evaluation metrics and table sizes.
func (e *Evaluator) GetMetrics() map[string]interface{} {
	snap := e.tables.Load()

	e.historyMu.RLock()
	categories := len(e.history)
	e.historyMu.RUnlock()

	return map[string]interface{}{
		"evaluation_count":   atomic.LoadInt64(&e.evaluationCount),
		"pass_count":         atomic.LoadInt64(&e.passCount),
		"review_count":       atomic.LoadInt64(&e.reviewCount),
		"retry_count":        atomic.LoadInt64(&e.retryCount),
		"embedding_entries":  len(snap.embeddings),
		"pattern_entries":    len(snap.patterns),
		"history_categories": categories,
	}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
