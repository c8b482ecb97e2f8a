// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package confidence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// tables is an immutable snapshot of the loaded lookup tables. Readers grab
// the current snapshot once per evaluation; reloads swap the whole snapshot
// so in-flight readers never observe a partial table.
type tables struct {
	embeddings map[string][]float64
	patterns   map[string]float64
}

func emptyTables() *tables {
	return &tables{
		embeddings: map[string][]float64{},
		patterns:   map[string]float64{},
	}
}

// parseEmbeddings decodes a category→vector table from YAML or JSON,
// selected by file extension.
func parseEmbeddings(path string, data []byte) (map[string][]float64, error) {
	out := make(map[string][]float64)

	if isJSONPath(path) {
		parsed := gjson.ParseBytes(data)
		if !parsed.IsObject() {
			return nil, fmt.Errorf("embeddings file %s: expected a JSON object", path)
		}
		parsed.ForEach(func(key, value gjson.Result) bool {
			vec := make([]float64, 0, len(value.Array()))
			for _, v := range value.Array() {
				vec = append(vec, v.Float())
			}
			out[key.String()] = vec
			return true
		})
		return out, nil
	}

	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("embeddings file %s: %w", path, err)
	}
	return out, nil
}

// parsePatterns decodes a category→frequency table from YAML or JSON.
func parsePatterns(path string, data []byte) (map[string]float64, error) {
	out := make(map[string]float64)

	if isJSONPath(path) {
		parsed := gjson.ParseBytes(data)
		if !parsed.IsObject() {
			return nil, fmt.Errorf("patterns file %s: expected a JSON object", path)
		}
		parsed.ForEach(func(key, value gjson.Result) bool {
			out[key.String()] = value.Float()
			return true
		})
		return out, nil
	}

	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("patterns file %s: %w", path, err)
	}
	return out, nil
}

func isJSONPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// LoadEmbeddings populates the embedding table from a YAML or JSON file and
// swaps it into the active snapshot. A load failure leaves the current
// snapshot untouched, so defaults stay in effect.
func (e *Evaluator) LoadEmbeddings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warnf("Embeddings table %s not loaded, defaults stay in effect: %v", path, err)
		return err
	}

	embeddings, err := parseEmbeddings(path, data)
	if err != nil {
		log.Warnf("Embeddings table %s not parsed, defaults stay in effect: %v", path, err)
		return err
	}

	cur := e.tables.Load()
	e.tables.Store(&tables{
		embeddings: embeddings,
		patterns:   cur.patterns,
	})

	log.Infof("Loaded %d embedding entries from %s", len(embeddings), path)
	return nil
}

// LoadPatterns populates the pattern frequency table from a YAML or JSON file
// and swaps it into the active snapshot. Load failures are non-fatal.
func (e *Evaluator) LoadPatterns(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warnf("Pattern table %s not loaded, defaults stay in effect: %v", path, err)
		return err
	}

	patterns, err := parsePatterns(path, data)
	if err != nil {
		log.Warnf("Pattern table %s not parsed, defaults stay in effect: %v", path, err)
		return err
	}

	cur := e.tables.Load()
	e.tables.Store(&tables{
		embeddings: cur.embeddings,
		patterns:   patterns,
	})

	log.Infof("Loaded %d pattern entries from %s", len(patterns), path)
	return nil
}

// ValidationFromJSON extracts a validation score from a JSON payload.
// Returns false when the payload carries no validation_score field.
func ValidationFromJSON(payload string) (float64, bool) {
	v := gjson.Get(payload, "validation_score")
	if !v.Exists() {
		return 0, false
	}
	return clamp01(v.Float()), true
}
