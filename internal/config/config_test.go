// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Cascade.StartLevel != 0 || cfg.Cascade.MaxLevel != 2 {
		t.Errorf("Tier defaults wrong: start=%d max=%d", cfg.Cascade.StartLevel, cfg.Cascade.MaxLevel)
	}
	if !cfg.Cascade.HumanFallback {
		t.Error("HumanFallback should be true by default")
	}
	if got := cfg.Cascade.DefaultTimeout(); got != 30*time.Second {
		t.Errorf("DefaultTimeout = %s, want 30s", got)
	}
	if cfg.Thresholds.CascadePass != 0.8 || cfg.Thresholds.CascadeReview != 0.6 || cfg.Thresholds.CascadeFail != 0.4 {
		t.Errorf("Threshold defaults wrong: %+v", cfg.Thresholds)
	}
	if cfg.Feedback.Enabled {
		t.Error("Feedback should be disabled by default")
	}
	if cfg.Feedback.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", cfg.Feedback.RetentionDays)
	}
}

func TestLoadConfig_ExplicitValues(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
cascade:
  start-level: 0
  max-level: 3
  human-fallback: false
  default-timeout-ms: 5000
  timeouts-ms:
    0: 250
    1: 1500
thresholds:
  cascade-pass: 0.85
  cascade-review: 0.65
  cascade-fail: 0.45
  weights:
    embedding: 0.4
    pattern: 0.3
    history: 0.2
    validation: 0.1
tables:
  embeddings: ./tables/embeddings.yaml
  patterns: ./tables/patterns.json
  watch: true
experts:
  - name: extractor
    category: extraction
    keywords: [extract, parse]
    threshold: 0.7
feedback:
  enabled: true
  db-path: ./data/runs.db
  retention-days: 14
`))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Cascade.MaxLevel != 3 || cfg.Cascade.HumanFallback {
		t.Errorf("Cascade section not honored: %+v", cfg.Cascade)
	}
	timeouts := cfg.Cascade.Timeouts()
	if timeouts[0] != 250*time.Millisecond || timeouts[1] != 1500*time.Millisecond {
		t.Errorf("Per-tier timeouts wrong: %v", timeouts)
	}
	if cfg.Thresholds.Weights["embedding"] != 0.4 {
		t.Errorf("Weights not honored: %v", cfg.Thresholds.Weights)
	}
	if !cfg.Tables.Watch || cfg.Tables.Patterns != "./tables/patterns.json" {
		t.Errorf("Tables section not honored: %+v", cfg.Tables)
	}
	if len(cfg.Experts) != 1 || cfg.Experts[0].Category != "extraction" {
		t.Errorf("Experts section not honored: %+v", cfg.Experts)
	}
	if !cfg.Feedback.Enabled || cfg.Feedback.RetentionDays != 14 {
		t.Errorf("Feedback section not honored: %+v", cfg.Feedback)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"max below start", "cascade:\n  start-level: 2\n  max-level: 1"},
		{"negative start", "cascade:\n  start-level: -1\n  max-level: 2"},
		{"pass below review", "thresholds:\n  cascade-pass: 0.5\n  cascade-review: 0.6"},
		{"feedback without path", "feedback:\n  enabled: true\n  db-path: \"\""},
		{"malformed yaml", "cascade: ["},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.content)); err == nil {
				t.Error("Expected load to fail")
			}
		})
	}
}

func TestLoadConfigOptional_MissingFile(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err != nil {
		t.Fatalf("Optional load of missing file failed: %v", err)
	}
	if cfg.Cascade.MaxLevel != 2 {
		t.Errorf("Missing optional file should yield defaults, got max-level %d", cfg.Cascade.MaxLevel)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Required load of missing file should fail")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CASCADE_DEBUG", "true")
	t.Setenv("CASCADE_MAX_LEVEL", "4")
	t.Setenv("CASCADE_FEEDBACK_DB", "/tmp/override.db")

	cfg, err := LoadConfig(writeConfig(t, "debug: false"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if !cfg.Debug {
		t.Error("CASCADE_DEBUG override not applied")
	}
	if cfg.Cascade.MaxLevel != 4 {
		t.Errorf("CASCADE_MAX_LEVEL override not applied, got %d", cfg.Cascade.MaxLevel)
	}
	if !cfg.Feedback.Enabled || cfg.Feedback.DBPath != "/tmp/override.db" {
		t.Errorf("CASCADE_FEEDBACK_DB override not applied: %+v", cfg.Feedback)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg, err := LoadConfigOptional(path, true)
	if err != nil {
		t.Fatalf("Failed to build defaults: %v", err)
	}
	cfg.Cascade.MaxLevel = 5

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	if loaded.Cascade.MaxLevel != 5 {
		t.Errorf("Round-trip lost max-level, got %d", loaded.Cascade.MaxLevel)
	}
}
