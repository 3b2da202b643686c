// Package watcher reloads vault files that change on disk.
//
// It can be used standalone via `kiln watch`.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aidanlsb/kiln/internal/atomicfile"
)

// Reloader re-reads one vault file. *vault.Vault implements it.
type Reloader interface {
	Reload(path string) (bool, error)
}

// Watcher monitors a vault directory for changes and reloads changed files.
type Watcher struct {
	vaultPath string
	target    Reloader

	debounceDelay time.Duration
	log           *slog.Logger

	fsWatcher *fsnotify.Watcher
	pending   map[string]time.Time
	mu        sync.Mutex

	onReload func(path string, changed bool, err error)
}

// Config holds configuration options for the Watcher.
type Config struct {
	VaultPath     string
	Target        Reloader
	DebounceDelay time.Duration // Default: 100ms
	Logger        *slog.Logger
	OnReload      func(path string, changed bool, err error) // Optional callback
}

// New creates a new Watcher with the given configuration.
func New(cfg Config) (*Watcher, error) {
	if cfg.VaultPath == "" {
		return nil, fmt.Errorf("vault path is required")
	}
	if cfg.Target == nil {
		return nil, fmt.Errorf("reload target is required")
	}

	debounce := cfg.DebounceDelay
	if debounce == 0 {
		debounce = 100 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Watcher{
		vaultPath:     cfg.VaultPath,
		target:        cfg.Target,
		debounceDelay: debounce,
		log:           log.With("component", "watcher"),
		pending:       make(map[string]time.Time),
		onReload:      cfg.OnReload,
	}, nil
}

// Start begins watching the vault for file changes.
// It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	var err error
	w.fsWatcher, err = fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer w.fsWatcher.Close()

	if err := w.addWatchRecursive(w.vaultPath); err != nil {
		return fmt.Errorf("failed to watch vault: %w", err)
	}

	w.log.Debug("watching vault", "path", w.vaultPath)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.log.Debug("watcher error", "error", err)
		}
	}
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if w.shouldIgnore(path) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.addWatchRecursive(path)
			return
		}
	}

	w.log.Debug("event", "op", event.Op.String(), "path", path)

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
		w.schedule(path)
	}
}

// schedule adds a file to the pending reload queue with debouncing.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = time.Now()
}

// processDebounced processes pending reloads after the debounce delay.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending()
		}
	}
}

// processPending reloads files that have been quiet for the debounce delay.
func (w *Watcher) processPending() {
	w.mu.Lock()
	now := time.Now()
	ready := make([]string, 0)

	for path, scheduledAt := range w.pending {
		if now.Sub(scheduledAt) >= w.debounceDelay {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		changed, err := w.target.Reload(path)
		if w.onReload != nil {
			w.onReload(path, changed, err)
		}
		switch {
		case err != nil:
			w.log.Warn("reload failed", "path", path, "error", err)
		case changed:
			w.log.Info("reloaded", "path", path)
		}
	}
}

// addWatchRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addWatchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if info.IsDir() {
			if path != w.vaultPath && w.shouldIgnoreDir(path) {
				return filepath.SkipDir
			}
			if err := w.fsWatcher.Add(path); err != nil {
				w.log.Debug("failed to watch", "path", path, "error", err)
			}
		}
		return nil
	})
}

// shouldIgnore returns true for paths under hidden folders and for temp
// files left by atomic writes.
func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.vaultPath, path)
	if err != nil {
		return false
	}
	if atomicfile.IsTemp(path) {
		return true
	}

	parts := strings.Split(rel, string(filepath.Separator))
	for _, part := range parts[:len(parts)-1] {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// shouldIgnoreDir returns true if the directory should not be watched.
func (w *Watcher) shouldIgnoreDir(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || base == "node_modules"
}
