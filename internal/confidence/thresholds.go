// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package confidence combines weighted scoring signals into a single
// cascade decision. Four sources feed the combined score: embedding
// similarity, pattern frequency, rolling outcome history, and a
// caller-supplied validation signal.
package confidence

// Source identifies one signal feeding the combined confidence score.
type Source string

const (
	// SourceEmbedding scores category similarity against the loaded vector table
	SourceEmbedding Source = "embedding"
	// SourcePattern scores category frequency against the loaded pattern table
	SourcePattern Source = "pattern"
	// SourceHistory scores the rolling success rate of recent outcomes
	SourceHistory Source = "history"
	// SourceValidation carries the caller-supplied validation signal verbatim
	SourceValidation Source = "validation"
)

// Sources lists every scoring source in a stable order.
var Sources = []Source{SourceEmbedding, SourcePattern, SourceHistory, SourceValidation}

// Action is the cascade decision derived from a combined score.
type Action string

const (
	// ActionPass accepts the current tier's result
	ActionPass Action = "pass"
	// ActionReview accepts the result but flags it for review
	ActionReview Action = "review"
	// ActionRetry rejects the result and triggers escalation
	ActionRetry Action = "retry"
)

// Thresholds holds the cascade cut points and normalized per-source weights.
// Construct via NewThresholds; the zero value is not usable.
type Thresholds struct {
	// CascadePass is the minimum combined score to accept a result outright
	CascadePass float64 `yaml:"cascade-pass" json:"cascade_pass"`
	// CascadeReview is the minimum combined score to accept with review
	CascadeReview float64 `yaml:"cascade-review" json:"cascade_review"`
	// CascadeFail marks the score band below which results are rejected
	CascadeFail float64 `yaml:"cascade-fail" json:"cascade_fail"`
	// Weights maps each source to its normalized weight (sums to 1.0)
	Weights map[Source]float64 `yaml:"weights" json:"weights"`
}

// DefaultThresholds returns the standard cut points and an equal weighting.
func DefaultThresholds() Thresholds {
	return NewThresholds(0.8, 0.6, 0.4, map[Source]float64{
		SourceEmbedding:  0.3,
		SourcePattern:    0.3,
		SourceHistory:    0.2,
		SourceValidation: 0.2,
	})
}

// NewThresholds builds a Thresholds with the weights normalized to sum to 1.0.
// Negative weights are treated as zero. When every weight is zero the sources
// fall back to equal weighting, so construction never fails.
func NewThresholds(pass, review, fail float64, weights map[Source]float64) Thresholds {
	normalized := make(map[Source]float64, len(Sources))

	sum := 0.0
	for _, src := range Sources {
		w := weights[src]
		if w < 0 {
			w = 0
		}
		normalized[src] = w
		sum += w
	}

	if sum == 0 {
		equal := 1.0 / float64(len(Sources))
		for _, src := range Sources {
			normalized[src] = equal
		}
	} else {
		for src, w := range normalized {
			normalized[src] = w / sum
		}
	}

	return Thresholds{
		CascadePass:   pass,
		CascadeReview: review,
		CascadeFail:   fail,
		Weights:       normalized,
	}
}

// ActionFor maps a combined score to a cascade action.
func (t Thresholds) ActionFor(total float64) Action {
	switch {
	case total >= t.CascadePass:
		return ActionPass
	case total >= t.CascadeReview:
		return ActionReview
	default:
		return ActionRetry
	}
}

// Result is the outcome of a single confidence evaluation.
type Result struct {
	// TotalScore is the weighted combination of all sources (0.0-1.0)
	TotalScore float64 `json:"total_score"`
	// Scores holds the raw per-source scores before weighting
	Scores map[Source]float64 `json:"scores"`
	// Action is the cascade decision derived from TotalScore
	Action Action `json:"action"`
	// Details carries free-form diagnostic information
	Details map[string]interface{} `json:"details,omitempty"`
}
