// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a rules file whenever it changes on disk and hands every
// valid revision to a callback. Invalid revisions are logged and skipped so
// the previous rules stay in effect.
type Watcher struct {
	path     string
	onChange func(Rules)
	log      *zap.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher prepares a watcher for path. The parent directory is watched
// rather than the file itself so editors that replace files on save are
// still picked up.
func NewWatcher(path string, onChange func(Rules), log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving rules path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating rules watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{path: abs, onChange: onChange, log: log, watcher: w}, nil
}

// Run blocks until ctx is done or the underlying watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("rules watcher error", zap.Error(err))
		}
	}
}

// Close stops a watcher that is not running.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) reload() {
	r, err := Load(w.path)
	if err != nil {
		w.log.Warn("ignoring invalid rules revision", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.log.Info("rules reloaded", zap.String("path", w.path), zap.Int("entities", len(r.Entities)))
	w.onChange(r)
}
