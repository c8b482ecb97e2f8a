// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the cascade engine.
// It handles loading and parsing YAML configuration files, and provides
// structured access to tier settings, confidence thresholds, lookup table
// paths, steering rules, and feedback storage options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Cascade holds the tier ladder settings.
	Cascade CascadeConfig `yaml:"cascade" json:"cascade"`

	// Thresholds holds the confidence cut points and source weights.
	Thresholds ThresholdsConfig `yaml:"thresholds" json:"thresholds"`

	// Tables holds the lookup table file paths and reload behavior.
	Tables TablesConfig `yaml:"tables" json:"tables"`

	// Intent holds the intent classifier settings.
	Intent IntentConfig `yaml:"intent" json:"intent"`

	// Mode holds the execution mode tuning and steering rules.
	Mode ModeConfig `yaml:"mode" json:"mode"`

	// Experts lists the routing capabilities registered at startup.
	Experts []ExpertConfig `yaml:"experts" json:"experts"`

	// Feedback holds the outcome storage settings.
	Feedback FeedbackConfig `yaml:"feedback" json:"feedback"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is the directory for rotating log files when LoggingToFile is set.
	LogDir string `yaml:"log-dir" json:"log-dir"`
}

// CascadeConfig holds the tier ladder settings.
type CascadeConfig struct {
	// StartLevel is the first tier attempted.
	StartLevel int `yaml:"start-level" json:"start-level"`

	// MaxLevel is the last real tier attempted before fallback.
	MaxLevel int `yaml:"max-level" json:"max-level"`

	// HumanFallback appends the human pseudo-level when every tier is exhausted.
	HumanFallback bool `yaml:"human-fallback" json:"human-fallback"`

	// DefaultTimeoutMs is the per-tier handler budget in milliseconds.
	DefaultTimeoutMs int `yaml:"default-timeout-ms" json:"default-timeout-ms"`

	// TimeoutsMs maps tier numbers to handler budgets in milliseconds,
	// overriding DefaultTimeoutMs for the listed tiers.
	TimeoutsMs map[int]int `yaml:"timeouts-ms" json:"timeouts-ms"`
}

// ThresholdsConfig holds the confidence cut points and source weights.
type ThresholdsConfig struct {
	// CascadePass is the minimum combined score to accept a result outright.
	CascadePass float64 `yaml:"cascade-pass" json:"cascade-pass"`

	// CascadeReview is the minimum combined score to accept with review.
	CascadeReview float64 `yaml:"cascade-review" json:"cascade-review"`

	// CascadeFail marks the score band below which results are rejected.
	CascadeFail float64 `yaml:"cascade-fail" json:"cascade-fail"`

	// Weights maps scoring source names to raw weights. Normalized at build
	// time, so they do not need to sum to 1.0 here.
	Weights map[string]float64 `yaml:"weights" json:"weights"`
}

// TablesConfig holds the lookup table file paths.
type TablesConfig struct {
	// Embeddings is the path to the embedding table (YAML or JSON).
	Embeddings string `yaml:"embeddings" json:"embeddings"`

	// Patterns is the path to the pattern weight table (YAML or JSON).
	Patterns string `yaml:"patterns" json:"patterns"`

	// Watch enables hot reload of the table files on change.
	Watch bool `yaml:"watch" json:"watch"`
}

// IntentConfig holds the intent classifier settings.
type IntentConfig struct {
	// Definitions is an optional path to a YAML intent vocabulary that
	// replaces the built-in definitions.
	Definitions string `yaml:"definitions" json:"definitions"`

	// Triggers maps additional manual trigger prefixes to intent names.
	Triggers map[string]string `yaml:"triggers" json:"triggers"`
}

// ModeConfig holds the execution mode tuning and steering rules.
type ModeConfig struct {
	// DirectThreshold is the minimum confidence for the direct strategy.
	DirectThreshold float64 `yaml:"direct-threshold" json:"direct-threshold"`

	// IterativeThreshold is the minimum confidence for the iterative strategy.
	IterativeThreshold float64 `yaml:"iterative-threshold" json:"iterative-threshold"`

	// ParallelThreshold is the minimum confidence for the parallel strategy.
	ParallelThreshold float64 `yaml:"parallel-threshold" json:"parallel-threshold"`

	// ClarifyBelow triggers a clarification question under this confidence.
	ClarifyBelow float64 `yaml:"clarify-below" json:"clarify-below"`

	// Steering lists expression rules that can override the selected strategy.
	Steering []SteeringRuleConfig `yaml:"steering" json:"steering"`
}

// SteeringRuleConfig is one declarative strategy override rule.
type SteeringRuleConfig struct {
	// Name identifies the rule in logs and selection results.
	Name string `yaml:"name" json:"name"`

	// Condition is an expression over the selection context; empty means
	// always true.
	Condition string `yaml:"condition" json:"condition"`

	// Strategy is the strategy forced when the condition holds.
	Strategy string `yaml:"strategy" json:"strategy"`
}

// ExpertConfig is one routing capability registered at startup.
type ExpertConfig struct {
	Name      string   `yaml:"name" json:"name"`
	Category  string   `yaml:"category" json:"category"`
	Keywords  []string `yaml:"keywords" json:"keywords"`
	Threshold float64  `yaml:"threshold" json:"threshold"`
}

// FeedbackConfig holds the outcome storage settings.
type FeedbackConfig struct {
	// Enabled toggles outcome persistence.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// DBPath is the SQLite database file path.
	DBPath string `yaml:"db-path" json:"db-path"`

	// RetentionDays bounds how long outcomes are kept.
	RetentionDays int `yaml:"retention-days" json:"retention-days"`
}

// DefaultTimeout returns the cascade default timeout as a duration.
func (c CascadeConfig) DefaultTimeout() time.Duration {
	if c.DefaultTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.DefaultTimeoutMs) * time.Millisecond
}

// Timeouts returns the per-tier budgets as durations.
func (c CascadeConfig) Timeouts() map[int]time.Duration {
	out := make(map[int]time.Duration, len(c.TimeoutsMs))
	for level, ms := range c.TimeoutsMs {
		if ms > 0 {
			out[level] = time.Duration(ms) * time.Millisecond
		}
	}
	return out
}

// LoadConfig reads a YAML configuration file from the given path, unmarshals
// it into a Config struct, applies environment variable overrides, and
// returns it.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads YAML from configFile.
// If optional is true and the file is missing, it returns the defaults.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	// A .env next to the config file supplies environment overrides for
	// local development; missing files are fine.
	_ = godotenv.Load()

	cfg := defaultConfig()

	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err = cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in defaults, the same ones absent YAML keys
// fall back to.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns the built-in defaults. Absent YAML keys keep these
// values after unmarshal.
func defaultConfig() *Config {
	return &Config{
		Cascade: CascadeConfig{
			StartLevel:       0,
			MaxLevel:         2,
			HumanFallback:    true,
			DefaultTimeoutMs: 30000,
		},
		Thresholds: ThresholdsConfig{
			CascadePass:   0.8,
			CascadeReview: 0.6,
			CascadeFail:   0.4,
			Weights: map[string]float64{
				"embedding":  0.3,
				"pattern":    0.3,
				"history":    0.2,
				"validation": 0.2,
			},
		},
		Mode: ModeConfig{
			DirectThreshold:    0.8,
			IterativeThreshold: 0.6,
			ParallelThreshold:  0.4,
			ClarifyBelow:       0.4,
		},
		Feedback: FeedbackConfig{
			Enabled:       false,
			DBPath:        "./data/outcomes.db",
			RetentionDays: 90,
		},
		LogDir: "./logs",
	}
}

// applyEnvOverrides overlays CASCADE_* environment variables on the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CASCADE_DEBUG"); v != "" {
		cfg.Debug = isTruthy(v)
	}
	if v := os.Getenv("CASCADE_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("CASCADE_FEEDBACK_DB"); v != "" {
		cfg.Feedback.DBPath = v
		cfg.Feedback.Enabled = true
	}
	if v := os.Getenv("CASCADE_MAX_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cascade.MaxLevel = n
		}
	}
	if v := os.Getenv("CASCADE_HUMAN_FALLBACK"); v != "" {
		cfg.Cascade.HumanFallback = isTruthy(v)
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	if c.Cascade.MaxLevel < c.Cascade.StartLevel {
		return fmt.Errorf("cascade max-level %d below start-level %d", c.Cascade.MaxLevel, c.Cascade.StartLevel)
	}
	if c.Cascade.StartLevel < 0 {
		return fmt.Errorf("cascade start-level %d must not be negative", c.Cascade.StartLevel)
	}
	if c.Thresholds.CascadePass < c.Thresholds.CascadeReview {
		return fmt.Errorf("cascade-pass %.2f below cascade-review %.2f", c.Thresholds.CascadePass, c.Thresholds.CascadeReview)
	}
	if c.Thresholds.CascadeReview < c.Thresholds.CascadeFail {
		return fmt.Errorf("cascade-review %.2f below cascade-fail %.2f", c.Thresholds.CascadeReview, c.Thresholds.CascadeFail)
	}
	if c.Feedback.Enabled && c.Feedback.DBPath == "" {
		return fmt.Errorf("feedback enabled but db-path is empty")
	}
	return nil
}

// SaveConfig writes the configuration back to disk as YAML.
func SaveConfig(cfg *Config, configFile string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
