// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package confidence

import (
	"fmt"
	"sync"
	"testing"
)

func testThresholds() Thresholds {
	return NewThresholds(0.8, 0.6, 0.4, map[Source]float64{
		SourceEmbedding:  0.3,
		SourcePattern:    0.4,
		SourceHistory:    0.2,
		SourceValidation: 0.1,
	})
}

func TestNewThresholds_Normalization(t *testing.T) {
	tests := []struct {
		name    string
		weights map[Source]float64
	}{
		{
			name: "already normalized",
			weights: map[Source]float64{
				SourceEmbedding: 0.3, SourcePattern: 0.4, SourceHistory: 0.2, SourceValidation: 0.1,
			},
		},
		{
			name: "unnormalized",
			weights: map[Source]float64{
				SourceEmbedding: 3, SourcePattern: 4, SourceHistory: 2, SourceValidation: 1,
			},
		},
		{
			name:    "all zero falls back to equal",
			weights: map[Source]float64{},
		},
		{
			name: "negative treated as zero",
			weights: map[Source]float64{
				SourceEmbedding: -1, SourcePattern: 2, SourceHistory: 2, SourceValidation: 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := NewThresholds(0.8, 0.6, 0.4, tt.weights)

			sum := 0.0
			for _, src := range Sources {
				w := th.Weights[src]
				if w < 0 {
					t.Errorf("weight for %s is negative: %v", src, w)
				}
				sum += w
			}
			if sum < 1-1e-9 || sum > 1+1e-9 {
				t.Errorf("weights sum = %v, want 1.0", sum)
			}
		})
	}
}

func TestThresholds_ActionFor(t *testing.T) {
	th := testThresholds()

	tests := []struct {
		total float64
		want  Action
	}{
		{0.9, ActionPass},
		{0.8, ActionPass},
		{0.7, ActionReview},
		{0.6, ActionReview},
		{0.555, ActionRetry},
		{0.1, ActionRetry},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.3f", tt.total), func(t *testing.T) {
			if got := th.ActionFor(tt.total); got != tt.want {
				t.Errorf("ActionFor(%v) = %v, want %v", tt.total, got, tt.want)
			}
		})
	}
}

func TestEvaluator_EmbeddingScore(t *testing.T) {
	e := NewEvaluator(testThresholds())
	e.tables.Store(&tables{
		embeddings: map[string][]float64{
			"Box":           {0.1, 0.2},
			"surface panel": {0.3, 0.4},
		},
		patterns: map[string]float64{},
	})

	tests := []struct {
		name     string
		category string
		want     float64
	}{
		{"exact match", "Box", 0.95},
		{"substring match", "BoxGrid", 0.8},
		{"shared token", "panel layout", 0.6},
		{"short tokens ignored", "an of", 0.35},
		{"no match", "unrelated", 0.35},
		{"empty category", "", 0.35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := e.embeddingScore(e.tables.Load(), tt.category, "")
			if got != tt.want {
				t.Errorf("embeddingScore(%q) = %v, want %v", tt.category, got, tt.want)
			}
		})
	}
}

func TestEvaluator_PatternScore(t *testing.T) {
	e := NewEvaluator(testThresholds())
	e.tables.Store(&tables{
		embeddings: map[string][]float64{},
		patterns: map[string]float64{
			"grid layout":  10,
			"grid spacing": 5,
			"panel":        3,
		},
	})

	t.Run("no match floors at 0.3", func(t *testing.T) {
		got, matches := e.patternScore(e.tables.Load(), "unrelated")
		if got != 0.3 || matches != 0 {
			t.Errorf("patternScore = (%v, %d), want (0.3, 0)", got, matches)
		}
	})

	t.Run("matches raise the score monotonically", func(t *testing.T) {
		single, _ := e.patternScore(e.tables.Load(), "panel")
		double, _ := e.patternScore(e.tables.Load(), "grid")
		if single <= 0.3 {
			t.Errorf("single match score %v, want > 0.3", single)
		}
		if double <= single {
			t.Errorf("two matches scored %v, want > single match %v", double, single)
		}
	})

	t.Run("score is capped at 0.95", func(t *testing.T) {
		snap := &tables{embeddings: map[string][]float64{}, patterns: map[string]float64{}}
		for i := 0; i < 40; i++ {
			snap.patterns[fmt.Sprintf("mass entry %d", i)] = 100
		}
		got, _ := e.patternScore(snap, "mass")
		if got != 0.95 {
			t.Errorf("patternScore = %v, want cap 0.95", got)
		}
	})
}

// The worked scenario from the design review: exact embedding match, no
// pattern match, empty history, default validation.
func TestEvaluator_BoxScenario(t *testing.T) {
	e := NewEvaluator(testThresholds())
	e.tables.Store(&tables{
		embeddings: map[string][]float64{"Box": {0.5, 0.5}},
		patterns:   map[string]float64{},
	})

	res := e.Evaluate("Box", "", nil)

	want := 0.95*0.3 + 0.3*0.4 + 0.5*0.2 + 0.5*0.1 // 0.555
	if res.TotalScore < want-1e-9 || res.TotalScore > want+1e-9 {
		t.Errorf("TotalScore = %v, want %v", res.TotalScore, want)
	}
	if res.Action != ActionRetry {
		t.Errorf("Action = %v, want %v", res.Action, ActionRetry)
	}
	if res.Scores[SourceEmbedding] != 0.95 {
		t.Errorf("embedding score = %v, want 0.95", res.Scores[SourceEmbedding])
	}
	if res.Scores[SourcePattern] != 0.3 {
		t.Errorf("pattern score = %v, want 0.3", res.Scores[SourcePattern])
	}
}

func TestEvaluator_Deterministic(t *testing.T) {
	e := NewEvaluator(testThresholds())
	e.tables.Store(&tables{
		embeddings: map[string][]float64{"Box": {0.5}, "panel grid": {0.1}},
		patterns:   map[string]float64{"box frame": 4, "panel": 2},
	})
	ctx := map[string]interface{}{"validation_score": 0.7}

	first := e.Evaluate("Box", "", ctx)
	for i := 0; i < 50; i++ {
		again := e.Evaluate("Box", "", ctx)
		if again.TotalScore != first.TotalScore {
			t.Fatalf("TotalScore differs on call %d: %v != %v", i, again.TotalScore, first.TotalScore)
		}
		if again.Action != first.Action {
			t.Fatalf("Action differs on call %d: %v != %v", i, again.Action, first.Action)
		}
	}
}

func TestEvaluator_ValidationScore(t *testing.T) {
	tests := []struct {
		name string
		ctx  map[string]interface{}
		want float64
	}{
		{"nil context", nil, 0.5},
		{"missing key", map[string]interface{}{}, 0.5},
		{"float64", map[string]interface{}{"validation_score": 0.9}, 0.9},
		{"int", map[string]interface{}{"validation_score": 1}, 1.0},
		{"clamped above", map[string]interface{}{"validation_score": 1.4}, 1.0},
		{"clamped below", map[string]interface{}{"validation_score": -0.2}, 0.0},
		{"wrong type", map[string]interface{}{"validation_score": "high"}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validationScore(tt.ctx); got != tt.want {
				t.Errorf("validationScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluator_HistoryWindow(t *testing.T) {
	e := NewEvaluator(testThresholds())

	// 25 failures then 20 successes: only the last 20 outcomes survive.
	for i := 0; i < 25; i++ {
		e.RecordResult("Box", false)
	}
	for i := 0; i < 20; i++ {
		e.RecordResult("Box", true)
	}

	history := e.History("Box")
	if len(history) != historyWindow {
		t.Fatalf("history length = %d, want %d", len(history), historyWindow)
	}
	for i, ok := range history {
		if !ok {
			t.Errorf("history[%d] = false, want all true after eviction", i)
		}
	}

	score, samples := e.historyScore("Box")
	if score != 1.0 {
		t.Errorf("historyScore = %v, want 1.0", score)
	}
	if samples != historyWindow {
		t.Errorf("samples = %d, want %d", samples, historyWindow)
	}
}

func TestEvaluator_HistoryEmpty(t *testing.T) {
	e := NewEvaluator(testThresholds())
	score, samples := e.historyScore("never-seen")
	if score != 0.5 || samples != 0 {
		t.Errorf("historyScore = (%v, %d), want (0.5, 0)", score, samples)
	}
}

func TestEvaluator_RecordResult_Concurrent(t *testing.T) {
	e := NewEvaluator(testThresholds())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			category := fmt.Sprintf("cat-%d", g%4)
			for i := 0; i < 50; i++ {
				e.RecordResult(category, i%2 == 0)
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 4; g++ {
		history := e.History(fmt.Sprintf("cat-%d", g))
		if len(history) != historyWindow {
			t.Errorf("cat-%d history length = %d, want %d", g, len(history), historyWindow)
		}
	}
}

func TestEvaluator_GetMetrics(t *testing.T) {
	e := NewEvaluator(testThresholds())
	e.Evaluate("Box", "", nil)
	e.Evaluate("Box", "", map[string]interface{}{"validation_score": 1.0})

	metrics := e.GetMetrics()
	if metrics["evaluation_count"].(int64) != 2 {
		t.Errorf("evaluation_count = %v, want 2", metrics["evaluation_count"])
	}
}
