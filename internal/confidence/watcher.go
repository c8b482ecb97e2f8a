// Copyright 2026 The Cascade Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package confidence

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher hot-reloads the evaluator's lookup tables when their source files
// change. Each reload replaces the table snapshot atomically, so concurrent
// evaluations keep reading a consistent snapshot during the swap.
type Watcher struct {
	evaluator      *Evaluator
	embeddingsPath string
	patternsPath   string

	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewWatcher starts watching the given table files. Either path may be empty
// to skip that table. Watching the parent directories covers editors that
// replace files via rename.
func NewWatcher(evaluator *Evaluator, embeddingsPath, patternsPath string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		evaluator:      evaluator,
		embeddingsPath: embeddingsPath,
		patternsPath:   patternsPath,
		watcher:        fw,
		stop:           make(chan struct{}),
	}

	dirs := map[string]struct{}{}
	for _, path := range []string{embeddingsPath, patternsPath} {
		if path == "" {
			continue
		}
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}

	go w.run()
	return w, nil
}

// debounceDelay coalesces the burst of events editors emit per save.
const debounceDelay = 100 * time.Millisecond

func (w *Watcher) run() {
	timers := map[string]*time.Timer{}
	pending := make(chan string, 2)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// One resettable timer per path; the reload fires once the
			// burst settles, without blocking event consumption.
			path := filepath.Clean(event.Name)
			if t, ok := timers[path]; ok {
				t.Reset(debounceDelay)
				continue
			}
			timers[path] = time.AfterFunc(debounceDelay, func() {
				select {
				case pending <- path:
				case <-w.stop:
				}
			})
		case path := <-pending:
			w.reload(path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("Table watcher error: %v", err)
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) reload(changed string) {
	if w.embeddingsPath != "" && sameFile(changed, w.embeddingsPath) {
		log.Infof("Embeddings table changed (%s), reloading...", changed)
		if err := w.evaluator.LoadEmbeddings(w.embeddingsPath); err != nil {
			log.Errorf("Failed to reload embeddings table: %v", err)
		}
	}
	if w.patternsPath != "" && sameFile(changed, w.patternsPath) {
		log.Infof("Pattern table changed (%s), reloading...", changed)
		if err := w.evaluator.LoadPatterns(w.patternsPath); err != nil {
			log.Errorf("Failed to reload pattern table: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	return w.watcher.Close()
}

func sameFile(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
