// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package intent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_ManualTrigger(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		text       string
		wantIntent string
	}{
		{"/explore something completely unrelated", IntentExplore},
		{"/reflect", IntentReflect},
		{"/CREATE a box", IntentCreate},
		{"/tool for batch renames", IntentToolBuild},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := c.Classify(tt.text, nil)
			assert.Equal(t, tt.wantIntent, got.Intent)
			assert.Equal(t, 1.0, got.Confidence)
			assert.True(t, got.IsManualTrigger)
		})
	}
}

func TestClassify_ManualTriggerIgnoresRemainingText(t *testing.T) {
	c := NewClassifier()

	// The body is full of analyze keywords; the prefix still wins.
	got := c.Classify("/explore analyze compare measure inspect", nil)
	assert.Equal(t, IntentExplore, got.Intent)
	assert.Equal(t, 1.0, got.Confidence)
	assert.True(t, got.IsManualTrigger)
}

func TestClassify_KeywordScoring(t *testing.T) {
	c := NewClassifier()

	t.Run("single keyword", func(t *testing.T) {
		got := c.Classify("please analyze the results", nil)
		assert.Equal(t, IntentAnalyze, got.Intent)
		assert.InDelta(t, 0.2, got.Confidence, 1e-9)
		assert.False(t, got.IsManualTrigger)
	})

	t.Run("phrase scores higher than keyword", func(t *testing.T) {
		got := c.Classify("let's look into this", nil)
		assert.Equal(t, IntentAnalyze, got.Intent)
		assert.InDelta(t, 0.3, got.Confidence, 1e-9)
	})

	t.Run("keyword and phrase accumulate", func(t *testing.T) {
		got := c.Classify("look into and compare the two runs", nil)
		assert.Equal(t, IntentAnalyze, got.Intent)
		assert.InDelta(t, 0.5, got.Confidence, 1e-9)
		assert.Contains(t, got.MatchedKeywords, "look into")
		assert.Contains(t, got.MatchedKeywords, "compare")
	})

	t.Run("score capped at 0.9", func(t *testing.T) {
		got := c.Classify("analyze compare measure check inspect count and break down", nil)
		assert.Equal(t, IntentAnalyze, got.Intent)
		assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	})

	t.Run("keywords match on word boundaries", func(t *testing.T) {
		// "address" must not match the modify keyword "add".
		got := c.Classify("what is the address", nil)
		assert.NotEqual(t, IntentCreate, got.Intent)
	})
}

func TestClassify_ContextBoosts(t *testing.T) {
	c := NewClassifier()

	t.Run("active intent boost", func(t *testing.T) {
		plain := c.Classify("update the layout", nil)
		boosted := c.Classify("update the layout", map[string]interface{}{
			"active_intent": IntentModify,
		})
		assert.Equal(t, IntentModify, boosted.Intent)
		assert.InDelta(t, plain.Confidence+0.1, boosted.Confidence, 1e-9)
	})

	t.Run("pending decisions boost exploratory intents", func(t *testing.T) {
		got := c.Classify("explore other options", map[string]interface{}{
			"pending_decisions": 2,
		})
		assert.Equal(t, IntentExplore, got.Intent)
		// two keywords (0.4) + pending boost (0.15)
		assert.InDelta(t, 0.55, got.Confidence, 1e-9)
	})

	t.Run("low prior confidence boosts exploratory intents", func(t *testing.T) {
		got := c.Classify("explore other options", map[string]interface{}{
			"last_confidence": 0.3,
		})
		assert.InDelta(t, 0.5, got.Confidence, 1e-9)
	})

	t.Run("boost is capped at 1.0", func(t *testing.T) {
		got := c.Classify("explore try alternatives options variations and see what happens", map[string]interface{}{
			"active_intent":     IntentExplore,
			"pending_decisions": 1,
			"last_confidence":   0.1,
		})
		assert.Equal(t, IntentExplore, got.Intent)
		assert.LessOrEqual(t, got.Confidence, 1.0)
	})
}

func TestClassify_ActionVerbFallback(t *testing.T) {
	c := NewClassifier()

	// "write" is an action verb but not a create keyword, so no intent
	// scores and the action-verb fallback kicks in.
	got := c.Classify("write it down please", nil)
	assert.Equal(t, IntentCreate, got.Intent)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
	assert.False(t, got.IsManualTrigger)
	assert.Contains(t, got.Reasoning, "action-verb fallback")
}

func TestClassify_UnknownIntent(t *testing.T) {
	c := NewClassifier()

	got := c.Classify("lorem ipsum dolor", nil)
	assert.Equal(t, IntentUnknown, got.Intent)
	assert.Less(t, got.Confidence, 0.2)
}

func TestClassify_ReasoningBands(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name string
		text string
		band string
	}{
		{"high", "/analyze", "manual trigger"},
		{"medium", "look into and compare the two runs", "medium certainty"},
		{"low", "please analyze the results", "low certainty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text, nil)
			assert.True(t, strings.Contains(got.Reasoning, tt.band),
				"reasoning %q should contain %q", got.Reasoning, tt.band)
		})
	}
}

func TestClassifier_LoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intents.yaml")
	content := `intents:
  - name: deploy
    keywords: [deploy, release, ship]
    phrases: ["roll out"]
  - name: rollback
    keywords: [rollback, revert]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c := NewClassifier()
	require.NoError(t, c.LoadDefinitions(path))

	got := c.Classify("roll out the new build and ship it", nil)
	assert.Equal(t, "deploy", got.Intent)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
}

func TestClassifier_LoadDefinitions_Missing(t *testing.T) {
	c := NewClassifier()
	assert.Error(t, c.LoadDefinitions(filepath.Join(t.TempDir(), "nope.yaml")))
	// Built-in vocabulary survives a failed load.
	got := c.Classify("please analyze the results", nil)
	assert.Equal(t, IntentAnalyze, got.Intent)
}

func TestClassifier_RegisterTrigger(t *testing.T) {
	c := NewClassifier()
	c.RegisterTrigger("/ship", "deploy")

	got := c.Classify("/ship the release", nil)
	assert.Equal(t, "deploy", got.Intent)
	assert.True(t, got.IsManualTrigger)
}
