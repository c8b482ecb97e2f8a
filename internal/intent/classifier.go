// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package intent classifies a task's high-level processing intent from its
// text plus running-session context. Manual override commands bypass
// scoring entirely.
package intent

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

// Well-known intent tags. Callers may register additional definitions.
const (
	IntentCreate    = "create"
	IntentModify    = "modify"
	IntentAnalyze   = "analyze"
	IntentExplore   = "explore"
	IntentReflect   = "reflect"
	IntentToolBuild = "tool_build"
	IntentUnknown   = "unknown"
)

// Scoring constants: a multi-word phrase is a stronger signal than a single
// keyword, and raw keyword scores cap below manual-trigger certainty.
const (
	phraseWeight  = 0.3
	keywordWeight = 0.2
	keywordCap    = 0.9
	minKeyword    = 0.2
	actionScore   = 0.5
)

// Context keys consulted during classification.
const (
	ctxActiveIntent     = "active_intent"
	ctxPendingDecisions = "pending_decisions"
	ctxLastConfidence   = "last_confidence"
)

// Definition declares the scoring vocabulary for one intent.
type Definition struct {
	// Name is the intent tag
	Name string `yaml:"name" json:"name"`
	// Keywords are single words worth 0.2 each
	Keywords []string `yaml:"keywords" json:"keywords"`
	// Phrases are multi-word matches worth 0.3 each
	Phrases []string `yaml:"phrases" json:"phrases"`
	// Exploratory marks intents boosted when the session has open questions
	Exploratory bool `yaml:"exploratory" json:"exploratory"`
}

// definitionsFile is the on-disk shape of an intent vocabulary file.
type definitionsFile struct {
	Intents []Definition `yaml:"intents"`
}

// Classification is the outcome of classifying one task text.
type Classification struct {
	// Intent is the chosen intent tag
	Intent string `json:"intent"`
	// Confidence is the classification confidence (0.0-1.0)
	Confidence float64 `json:"confidence"`
	// MatchedKeywords lists the keywords and phrases that scored
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	// IsManualTrigger is set when a manual override prefix chose the intent
	IsManualTrigger bool `json:"is_manual_trigger"`
	// Reasoning is a human-readable explanation of the decision
	Reasoning string `json:"reasoning"`
}

// Classifier scores task text against intent definitions. Definitions are
// fixed after construction; Classify is safe for concurrent use.
type Classifier struct {
	definitions []Definition
	triggers    map[string]string // manual prefix → intent
	actionVerbs []string
}

// NewClassifier creates a Classifier with the built-in vocabulary.
func NewClassifier() *Classifier {
	return &Classifier{
		definitions: defaultDefinitions(),
		triggers: map[string]string{
			"/create":  IntentCreate,
			"/modify":  IntentModify,
			"/analyze": IntentAnalyze,
			"/explore": IntentExplore,
			"/reflect": IntentReflect,
			"/tool":    IntentToolBuild,
		},
		actionVerbs: []string{"create", "build", "make", "add", "generate", "write", "set up"},
	}
}

func defaultDefinitions() []Definition {
	return []Definition{
		{
			Name:     IntentCreate,
			Keywords: []string{"create", "build", "make", "generate", "add", "new"},
			Phrases:  []string{"set up", "put together", "start from scratch"},
		},
		{
			Name:     IntentModify,
			Keywords: []string{"modify", "change", "update", "adjust", "edit", "rename", "move"},
			Phrases:  []string{"switch out", "clean up"},
		},
		{
			Name:     IntentAnalyze,
			Keywords: []string{"analyze", "compare", "measure", "check", "inspect", "count"},
			Phrases:  []string{"look into", "break down"},
		},
		{
			Name:        IntentExplore,
			Keywords:    []string{"explore", "try", "alternatives", "options", "variations"},
			Phrases:     []string{"what if", "play around", "see what happens"},
			Exploratory: true,
		},
		{
			Name:        IntentReflect,
			Keywords:    []string{"review", "reconsider", "rethink", "why", "clarify"},
			Phrases:     []string{"step back", "think about", "not sure"},
			Exploratory: true,
		},
		{
			Name:     IntentToolBuild,
			Keywords: []string{"tool", "helper", "script", "automation", "reusable"},
			Phrases:  []string{"build a tool", "automate this"},
		},
	}
}

// LoadDefinitions replaces the built-in vocabulary with definitions from a
// YAML file. Intended for startup configuration, before concurrent use.
func (c *Classifier) LoadDefinitions(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read intent definitions: %w", err)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse intent definitions: %w", err)
	}
	if len(file.Intents) == 0 {
		return fmt.Errorf("no intents found in %s", path)
	}

	c.definitions = file.Intents
	log.Infof("Loaded %d intent definitions from %s", len(file.Intents), path)
	return nil
}

// RegisterTrigger adds a manual override prefix for an intent.
func (c *Classifier) RegisterTrigger(prefix, intent string) {
	c.triggers[strings.ToLower(prefix)] = intent
}

// Classify determines the processing intent for a task text.
//
// A manual override prefix short-circuits scoring with full confidence.
// Otherwise every intent accumulates keyword and phrase weights, the session
// context applies its boosts, and the max scorer wins. When nothing scores,
// action verbs fall back to the create intent at a middling confidence.
func (c *Classifier) Classify(text string, ctx map[string]interface{}) Classification {
	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(trimmed)

	// Manual override: the prefix decides, the rest of the text is ignored.
	if intent, prefix, ok := c.manualTrigger(lowered); ok {
		return Classification{
			Intent:          intent,
			Confidence:      1.0,
			MatchedKeywords: []string{prefix},
			IsManualTrigger: true,
			Reasoning:       fmt.Sprintf("manual trigger %q selected intent %s", prefix, intent),
		}
	}

	scores := make(map[string]float64, len(c.definitions))
	matched := make(map[string][]string, len(c.definitions))

	for _, def := range c.definitions {
		score := 0.0
		for _, phrase := range def.Phrases {
			if strings.Contains(lowered, strings.ToLower(phrase)) {
				score += phraseWeight
				matched[def.Name] = append(matched[def.Name], phrase)
			}
		}
		for _, keyword := range def.Keywords {
			if containsWord(lowered, strings.ToLower(keyword)) {
				score += keywordWeight
				matched[def.Name] = append(matched[def.Name], keyword)
			}
		}
		if score > keywordCap {
			score = keywordCap
		}
		scores[def.Name] = score
	}

	c.applyContextBoosts(scores, ctx)

	best, bestScore := maxIntent(scores)

	if bestScore < minKeyword {
		if c.hasActionVerb(lowered) {
			return Classification{
				Intent:     IntentCreate,
				Confidence: actionScore,
				Reasoning:  c.reasoning(actionScore, nil, IntentCreate) + " (action-verb fallback)",
			}
		}
		return Classification{
			Intent:     IntentUnknown,
			Confidence: bestScore,
			Reasoning:  c.reasoning(bestScore, nil, IntentUnknown),
		}
	}

	return Classification{
		Intent:          best,
		Confidence:      bestScore,
		MatchedKeywords: matched[best],
		Reasoning:       c.reasoning(bestScore, matched[best], best),
	}
}

func (c *Classifier) manualTrigger(lowered string) (intent, prefix string, ok bool) {
	// Longest prefix wins so "/toolchain" style triggers stay unambiguous.
	prefixes := make([]string, 0, len(c.triggers))
	for p := range c.triggers {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	for _, p := range prefixes {
		if strings.HasPrefix(lowered, p) {
			return c.triggers[p], p, true
		}
	}
	return "", "", false
}

// applyContextBoosts folds the running session state into the raw scores.
func (c *Classifier) applyContextBoosts(scores map[string]float64, ctx map[string]interface{}) {
	if ctx == nil {
		return
	}

	if active, ok := ctx[ctxActiveIntent].(string); ok && active != "" {
		if _, exists := scores[active]; exists {
			scores[active] += 0.1
			if scores[active] > 1.0 {
				scores[active] = 1.0
			}
		}
	}

	pending := pendingDecisions(ctx)
	lowPrior := false
	if prior, ok := ctx[ctxLastConfidence].(float64); ok && prior < 0.5 {
		lowPrior = true
	}

	if pending || lowPrior {
		for _, def := range c.definitions {
			if !def.Exploratory {
				continue
			}
			if pending {
				scores[def.Name] += 0.15
			}
			if lowPrior {
				scores[def.Name] += 0.1
			}
			if scores[def.Name] > 1.0 {
				scores[def.Name] = 1.0
			}
		}
	}
}

func pendingDecisions(ctx map[string]interface{}) bool {
	switch v := ctx[ctxPendingDecisions].(type) {
	case int:
		return v > 0
	case []string:
		return len(v) > 0
	case []interface{}:
		return len(v) > 0
	case bool:
		return v
	default:
		return false
	}
}

func (c *Classifier) hasActionVerb(lowered string) bool {
	for _, verb := range c.actionVerbs {
		if containsWord(lowered, verb) {
			return true
		}
	}
	return false
}

func (c *Classifier) reasoning(confidence float64, matched []string, intent string) string {
	band := "low"
	switch {
	case confidence >= 0.7:
		band = "high"
	case confidence >= 0.4:
		band = "medium"
	}
	if len(matched) == 0 {
		return fmt.Sprintf("%s certainty (%.2f), no keyword matches, intent %s", band, confidence, intent)
	}
	return fmt.Sprintf("%s certainty (%.2f), matched [%s], intent %s", band, confidence, strings.Join(matched, ", "), intent)
}

func maxIntent(scores map[string]float64) (string, float64) {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	best := IntentUnknown
	bestScore := 0.0
	for _, name := range names {
		if scores[name] > bestScore {
			best = name
			bestScore = scores[name]
		}
	}
	return best, bestScore
}

// containsWord reports whether word appears in text on token boundaries, so
// "add" does not match inside "address".
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordRune(rune(text[start-1]))
		afterOK := end == len(text) || !isWordRune(rune(text[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
