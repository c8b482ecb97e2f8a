// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cascade

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tierwise/cascade/internal/confidence"
	"github.com/tierwise/cascade/internal/config"
	"github.com/tierwise/cascade/internal/expert"
	"github.com/tierwise/cascade/internal/feedback"
	"github.com/tierwise/cascade/internal/intent"
	"github.com/tierwise/cascade/internal/logging"
	"github.com/tierwise/cascade/internal/mode"
	"github.com/tierwise/cascade/internal/orchestrator"
)

// Service wraps the full cascade engine so external programs can embed it.
// It owns the evaluator, router, classifier, selector, orchestrator core,
// and the optional table watcher and feedback collector.
type Service struct {
	cfg *config.Config

	evaluator  *confidence.Evaluator
	router     *expert.Router
	classifier *intent.Classifier
	selector   *mode.Selector
	core       *orchestrator.Core

	watcher   *confidence.Watcher
	collector *feedback.Collector

	shutdownOnce sync.Once
}

// NewService builds a Service from a configuration file. Pass optional=true
// to run on defaults when the file is missing.
func NewService(configPath string, optional bool) (*Service, error) {
	cfg, err := config.LoadConfigOptional(configPath, optional)
	if err != nil {
		return nil, err
	}
	return NewServiceFromConfig(cfg)
}

// NewServiceFromConfig builds a Service from an already loaded configuration.
func NewServiceFromConfig(cfg *config.Config) (*Service, error) {
	logging.SetupBaseLogger()
	logging.SetDebug(cfg.Debug)
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogDir); err != nil {
		return nil, err
	}

	thresholds := buildThresholds(cfg.Thresholds)
	evaluator := confidence.NewEvaluator(thresholds)

	router := expert.NewRouter()
	for _, e := range cfg.Experts {
		router.Register(expert.Capability{
			Name:      e.Name,
			Category:  e.Category,
			Keywords:  e.Keywords,
			Threshold: e.Threshold,
		})
	}

	classifier := intent.NewClassifier()
	if cfg.Intent.Definitions != "" {
		if err := classifier.LoadDefinitions(cfg.Intent.Definitions); err != nil {
			log.Warnf("Keeping built-in intent definitions: %v", err)
		}
	}
	for prefix, name := range cfg.Intent.Triggers {
		classifier.RegisterTrigger(prefix, name)
	}

	selector := mode.NewSelector(classifier, evaluator, mode.Tuning{
		Direct:    cfg.Mode.DirectThreshold,
		Iterative: cfg.Mode.IterativeThreshold,
		Parallel:  cfg.Mode.ParallelThreshold,
		Clarify:   cfg.Mode.ClarifyBelow,
	})
	for _, rule := range cfg.Mode.Steering {
		err := selector.AddRule(mode.SteeringRule{
			Name:      rule.Name,
			Condition: rule.Condition,
			Strategy:  mode.Strategy(rule.Strategy),
		})
		if err != nil {
			return nil, err
		}
	}

	coreCfg := orchestrator.Config{
		StartLevel:          orchestrator.Level(cfg.Cascade.StartLevel),
		MaxLevel:            orchestrator.Level(cfg.Cascade.MaxLevel),
		EnableHumanFallback: cfg.Cascade.HumanFallback,
		Thresholds:          thresholds,
		Timeouts:            make(map[orchestrator.Level]time.Duration),
		DefaultTimeout:      cfg.Cascade.DefaultTimeout(),
	}
	for level, d := range cfg.Cascade.Timeouts() {
		coreCfg.Timeouts[orchestrator.Level(level)] = d
	}

	s := &Service{
		cfg:        cfg,
		evaluator:  evaluator,
		router:     router,
		classifier: classifier,
		selector:   selector,
		core:       orchestrator.NewCore(coreCfg, evaluator, router),
	}

	// Table load failures are non-fatal at startup: the loaders warn and
	// the evaluator keeps its floor scores until a valid file appears.
	_ = s.loadTables()
	if cfg.Tables.Watch {
		watcher, err := confidence.NewWatcher(evaluator, cfg.Tables.Embeddings, cfg.Tables.Patterns)
		if err != nil {
			return nil, fmt.Errorf("table watcher: %w", err)
		}
		s.watcher = watcher
	}

	if cfg.Feedback.Enabled {
		collector, err := feedback.NewCollector(cfg.Feedback.DBPath, cfg.Feedback.RetentionDays)
		if err != nil {
			return nil, err
		}
		if err := collector.Initialize(context.Background()); err != nil {
			return nil, err
		}
		s.collector = collector
		s.core.SetCollector(collector)
	}

	return s, nil
}

// buildThresholds converts the config weight map into normalized thresholds.
func buildThresholds(tc config.ThresholdsConfig) confidence.Thresholds {
	weights := make(map[confidence.Source]float64, len(tc.Weights))
	for name, w := range tc.Weights {
		weights[confidence.Source(name)] = w
	}
	return confidence.NewThresholds(tc.CascadePass, tc.CascadeReview, tc.CascadeFail, weights)
}

// RegisterHandler installs the handler for one cascade tier.
func (s *Service) RegisterHandler(level Level, handler Handler) error {
	return s.core.Register(level, handler)
}

// RegisterHandlerFunc is RegisterHandler for plain functions.
func (s *Service) RegisterHandlerFunc(level Level, fn HandlerFunc) error {
	return s.core.Register(level, fn)
}

// Orchestrate runs the cascade for a task description and returns the
// terminal result. It never returns an error; exhaustion and cancellation
// are result states.
func (s *Service) Orchestrate(ctx context.Context, text string, taskCtx map[string]interface{}) *Result {
	return s.core.Orchestrate(ctx, text, taskCtx)
}

// Evaluate scores a category against the loaded tables and rolling history.
func (s *Service) Evaluate(category, targetHint string, ctx map[string]interface{}) Evaluation {
	return s.evaluator.Evaluate(category, targetHint, ctx)
}

// ClassifyIntent classifies a task description.
func (s *Service) ClassifyIntent(text string, ctx map[string]interface{}) Classification {
	return s.classifier.Classify(text, ctx)
}

// SelectMode picks a processing strategy for a task description.
func (s *Service) SelectMode(text string, state map[string]interface{}) Selection {
	return s.selector.Select(text, state)
}

// RouteExpert returns the capability that claims a task description.
func (s *Service) RouteExpert(text string) Capability {
	return s.router.Route(text)
}

// RecordOutcome feeds an externally observed outcome into the rolling
// history for a category.
func (s *Service) RecordOutcome(category string, success bool) {
	s.evaluator.RecordResult(category, success)
}

// RecentOutcomes returns the latest persisted run records, newest first.
// It returns nil when feedback storage is disabled.
func (s *Service) RecentOutcomes(limit int) ([]*OutcomeRecord, error) {
	if s.collector == nil {
		return nil, nil
	}
	return s.collector.Recent(limit)
}

// LoadTables reloads the embedding and pattern tables from the configured
// paths. Missing or malformed files keep the current tables.
func (s *Service) LoadTables() error {
	return s.loadTables()
}

func (s *Service) loadTables() error {
	var err error
	if s.cfg.Tables.Embeddings != "" {
		if lerr := s.evaluator.LoadEmbeddings(s.cfg.Tables.Embeddings); lerr != nil {
			err = lerr
		}
	}
	if s.cfg.Tables.Patterns != "" {
		if lerr := s.evaluator.LoadPatterns(s.cfg.Tables.Patterns); lerr != nil && err == nil {
			err = lerr
		}
	}
	return err
}

// Metrics returns evaluator counters for monitoring.
func (s *Service) Metrics() map[string]interface{} {
	return s.evaluator.GetMetrics()
}

// Close stops the table watcher and the feedback collector. It is
// idempotent.
func (s *Service) Close() error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.watcher != nil {
			if werr := s.watcher.Close(); werr != nil {
				err = werr
			}
		}
		if s.collector != nil {
			if cerr := s.collector.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}
