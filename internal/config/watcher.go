package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/FairForge/sal/internal/engine"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// PolicyUpdater reads and applies routing policies. *engine.Manager
// satisfies it.
type PolicyUpdater interface {
	Policy(level engine.SecurityLevel) (engine.RoutingPolicy, bool)
	UpdatePolicy(ctx context.Context, policy engine.RoutingPolicy, changedBy string) error
}

// PolicyWatcher pushes a policy file into the updater whenever it changes
type PolicyWatcher struct {
	path     string
	updater  PolicyUpdater
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	reloads int
}

// NewPolicyWatcher creates a watcher for path
func NewPolicyWatcher(path string, updater PolicyUpdater, logger *zap.Logger) *PolicyWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyWatcher{
		path:     filepath.Clean(path),
		updater:  updater,
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}
}

// SetDebounce changes how long the watcher waits for writes to settle
func (w *PolicyWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Reloads returns the number of successful reloads
func (w *PolicyWatcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Reload reads the file and applies the policies in it that differ
// from the active ones. An invalid document is rejected as a whole and
// the current policies stay active.
func (w *PolicyWatcher) Reload(ctx context.Context) error {
	policies, err := LoadPolicyFile(w.path)
	if err != nil {
		return err
	}

	changedBy := "policy_file:" + w.path
	var errs []error
	var applied int
	for _, p := range policies {
		if current, ok := w.updater.Policy(p.SecurityLevel); ok && current.Equal(p) {
			continue
		}
		if err := w.updater.UpdatePolicy(ctx, p, changedBy); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.SecurityLevel, err))
			continue
		}
		applied++
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	w.logger.Info("routing policies reloaded",
		zap.String("path", w.path),
		zap.Int("policies", len(policies)),
		zap.Int("changed", applied))
	return nil
}

// Run watches the file's directory until ctx is done. Editors often
// replace files by rename, so the directory is watched rather than the
// file itself.
func (w *PolicyWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.Reload(ctx); err != nil {
				w.logger.Error("policy reload rejected",
					zap.String("path", w.path),
					zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("policy watcher error", zap.Error(err))
		}
	}
}
