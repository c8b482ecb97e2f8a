// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package expert routes free-text task descriptions to specialized handler
// capabilities via keyword overlap. A generic fallback expert absorbs
// everything that no registered capability claims.
package expert

import (
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Capability describes one registered expert.
type Capability struct {
	// Name is a human-readable identifier for the expert
	Name string `yaml:"name" json:"name"`
	// Category is the task-category tag the expert is keyed by
	Category string `yaml:"category" json:"category"`
	// Keywords drive text-overlap scoring in Route
	Keywords []string `yaml:"keywords" json:"keywords"`
	// Threshold is the per-expert confidence threshold for accepting results
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// minRouteScore is the keyword-overlap floor below which routing falls back
// to the generic expert.
const minRouteScore = 0.1

// Router maps task descriptions to expert capabilities.
type Router struct {
	mu       sync.RWMutex
	experts  map[string]*Capability // keyed by Category
	fallback Capability

	categoryTags map[string]string // category name → expert category tag
	stageTags    map[string]string // pipeline stage → expert category tag
}

// NewRouter creates a Router with the built-in category and stage tables
// and a generic fallback expert.
func NewRouter() *Router {
	return &Router{
		experts: make(map[string]*Capability),
		fallback: Capability{
			Name:      "generalist",
			Category:  "general",
			Keywords:  nil,
			Threshold: 0.5,
		},
		categoryTags: map[string]string{
			"extraction":    "extraction",
			"generation":    "generation",
			"analysis":      "analysis",
			"validation":    "validation",
			"conversation":  "conversation",
			"data cleanup":  "extraction",
			"report":        "generation",
			"documentation": "generation",
			"review":        "analysis",
		},
		stageTags: map[string]string{
			"plan":    "analysis",
			"build":   "generation",
			"verify":  "validation",
			"deliver": "generation",
		},
	}
}

// Register inserts or overrides a capability keyed by its category tag.
func (r *Router) Register(capability Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := capability
	r.experts[c.Category] = &c
	log.Debugf("Registered expert %s for category %s (%d keywords)", c.Name, c.Category, len(c.Keywords))
}

// Fallback returns the generic fallback expert.
func (r *Router) Fallback() Capability {
	return r.fallback
}

// Route scores every registered expert by keyword overlap with the text and
// returns the highest scorer. Texts that no expert claims above the floor
// fall back to the generic expert.
func (r *Router) Route(text string) Capability {
	capability, _ := r.RouteScored(text)
	return capability
}

// RouteScored is Route with the winning overlap score exposed.
func (r *Router) RouteScored(text string) (Capability, float64) {
	lowered := strings.ToLower(text)

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Sorted iteration keeps ties deterministic.
	categories := make([]string, 0, len(r.experts))
	for category := range r.experts {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	best := r.fallback
	bestScore := 0.0
	for _, category := range categories {
		expert := r.experts[category]
		if len(expert.Keywords) == 0 {
			continue
		}
		matched := 0
		for _, keyword := range expert.Keywords {
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				matched++
			}
		}
		score := float64(matched) / float64(len(expert.Keywords))
		if score > bestScore {
			bestScore = score
			best = *expert
		}
	}

	if bestScore < minRouteScore {
		return r.fallback, bestScore
	}
	return best, bestScore
}

// RouteByCategory resolves a category name against the static category
// table, exact match first, then substring either way.
func (r *Router) RouteByCategory(name string) Capability {
	capability, _ := r.routeByCategoryTag(name)
	return capability
}

func (r *Router) routeByCategoryTag(name string) (Capability, string) {
	lowered := strings.ToLower(strings.TrimSpace(name))
	if lowered == "" {
		return r.fallback, ""
	}

	tag, ok := r.categoryTags[lowered]
	if !ok {
		keys := make([]string, 0, len(r.categoryTags))
		for key := range r.categoryTags {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if strings.Contains(key, lowered) || strings.Contains(lowered, key) {
				tag = r.categoryTags[key]
				ok = true
				break
			}
		}
	}
	if !ok {
		return r.fallback, ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if expert, exists := r.experts[tag]; exists {
		return *expert, tag
	}
	return r.fallback, tag
}

// RouteComposite blends the text route, the category table, and the stage
// table into a single weighted choice.
//
// The text route keeps its overlap score plus a 0.1 bonus; the category and
// stage tables contribute fixed weights (0.3 and 0.2). The heaviest
// candidate wins.
func (r *Router) RouteComposite(text, category, stage string) Capability {
	weights := make(map[string]float64)

	textExpert, textScore := r.RouteScored(text)
	if textScore >= minRouteScore {
		weights[textExpert.Category] += textScore + 0.1
	}

	if category != "" {
		if _, tag := r.routeByCategoryTag(category); tag != "" {
			weights[tag] += 0.3
		}
	}

	if stage != "" {
		if tag, ok := r.stageTags[strings.ToLower(strings.TrimSpace(stage))]; ok {
			weights[tag] += 0.2
		}
	}

	bestTag := ""
	bestWeight := 0.0
	for tag, weight := range weights {
		if weight > bestWeight || (weight == bestWeight && tag < bestTag) {
			bestTag = tag
			bestWeight = weight
		}
	}
	if bestTag == "" {
		return r.fallback
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if expert, ok := r.experts[bestTag]; ok {
		return *expert
	}
	return r.fallback
}

// Experts returns a copy of all registered capabilities.
func (r *Router) Experts() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Capability, 0, len(r.experts))
	for _, expert := range r.experts {
		out = append(out, *expert)
	}
	return out
}
