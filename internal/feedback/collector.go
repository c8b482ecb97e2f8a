// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package feedback persists orchestration run outcomes to SQLite so the
// escalation behavior can be inspected and tuned after the fact.
package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"
)

// Record is one persisted orchestration outcome.
type Record struct {
	ID             int64                  `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	RunID          string                 `json:"run_id"`
	Category       string                 `json:"category"`
	LevelUsed      string                 `json:"level_used"`
	Confidence     float64                `json:"confidence"`
	Success        bool                   `json:"success"`
	EscalationPath []string               `json:"escalation_path"`
	ElapsedMs      int64                  `json:"elapsed_ms"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// RecordFromRun builds a Record from the fields of a finished run.
func RecordFromRun(runID, category, levelUsed string, confidence float64, success bool, path []string, elapsed time.Duration, details map[string]interface{}) *Record {
	return &Record{
		Timestamp:      time.Now(),
		RunID:          runID,
		Category:       category,
		LevelUsed:      levelUsed,
		Confidence:     confidence,
		Success:        success,
		EscalationPath: path,
		ElapsedMs:      elapsed.Milliseconds(),
		Details:        details,
	}
}

// Collector manages outcome collection and storage. A collector that has
// not been initialized silently drops records, so attaching one is always
// safe.
type Collector struct {
	db            *sql.DB
	dbPath        string
	retentionDays int
	enabled       bool
	mu            sync.RWMutex
}

// NewCollector creates a collector for the given SQLite database path.
func NewCollector(dbPath string, retentionDays int) (*Collector, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Collector{
		dbPath:        dbPath,
		retentionDays: retentionDays,
	}, nil
}

// Initialize opens the database and creates the schema.
func (c *Collector) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", c.dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS run_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		run_id TEXT NOT NULL,
		category TEXT NOT NULL,
		level_used TEXT NOT NULL,
		confidence REAL,
		success INTEGER NOT NULL,
		escalation_path TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		details TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_run_outcomes_timestamp ON run_outcomes(timestamp);
	CREATE INDEX IF NOT EXISTS idx_run_outcomes_category ON run_outcomes(category);
	CREATE INDEX IF NOT EXISTS idx_run_outcomes_level ON run_outcomes(level_used);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	c.db = db
	c.enabled = true
	log.Infof("Feedback collector initialized (db: %s, retention: %d days)", c.dbPath, c.retentionDays)

	go c.cleanupOldRecords(context.Background())
	return nil
}

// IsEnabled returns whether the collector is active.
func (c *Collector) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Record stores one run outcome. Disabled collectors drop silently.
func (c *Collector) Record(record *Record) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.enabled || c.db == nil {
		return nil
	}

	details := ""
	if len(record.Details) > 0 {
		raw, err := json.Marshal(record.Details)
		if err != nil {
			return fmt.Errorf("failed to encode details: %w", err)
		}
		details = string(raw)
	}

	success := 0
	if record.Success {
		success = 1
	}

	_, err := c.db.Exec(
		`INSERT INTO run_outcomes
		(timestamp, run_id, category, level_used, confidence, success, escalation_path, elapsed_ms, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp, record.RunID, record.Category, record.LevelUsed,
		record.Confidence, success, strings.Join(record.EscalationPath, ","),
		record.ElapsedMs, details,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run outcome: %w", err)
	}
	return nil
}

// Recent returns the most recent run outcomes, newest first.
func (c *Collector) Recent(limit int) ([]*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.enabled || c.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.Query(
		`SELECT id, timestamp, run_id, category, level_used, confidence, success, escalation_path, elapsed_ms, details
		FROM run_outcomes ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run outcomes: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			rec     Record
			success int
			path    string
			details sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.RunID, &rec.Category, &rec.LevelUsed,
			&rec.Confidence, &success, &path, &rec.ElapsedMs, &details); err != nil {
			return nil, fmt.Errorf("failed to scan run outcome: %w", err)
		}
		rec.Success = success == 1
		if path != "" {
			rec.EscalationPath = strings.Split(path, ",")
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &rec.Details); err != nil {
				log.Warnf("Skipping malformed details for run %s: %v", rec.RunID, err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// SuccessRate returns the fraction of successful runs for a category.
func (c *Collector) SuccessRate(category string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.enabled || c.db == nil {
		return 0, nil
	}

	var total, wins int
	err := c.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(success), 0) FROM run_outcomes WHERE category = ?`,
		category).Scan(&total, &wins)
	if err != nil {
		return 0, fmt.Errorf("failed to compute success rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(wins) / float64(total), nil
}

// cleanupOldRecords removes outcomes older than the retention window.
func (c *Collector) cleanupOldRecords(ctx context.Context) {
	c.mu.RLock()
	db := c.db
	retention := c.retentionDays
	c.mu.RUnlock()

	if db == nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -retention)
	res, err := db.ExecContext(ctx, `DELETE FROM run_outcomes WHERE timestamp < ?`, cutoff)
	if err != nil {
		log.Warnf("Feedback cleanup failed: %v", err)
		return
	}
	if removed, err := res.RowsAffected(); err == nil && removed > 0 {
		log.Infof("Feedback cleanup removed %d records older than %s", removed, cutoff.Format("2006-01-02"))
	}
}

// Close shuts the collector down.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = false
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}
