package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ReloadFunc receives the configuration that was replaced and the one that
// replaced it.
type ReloadFunc func(old, updated *Config)

// Watcher keeps the configuration file at a path loaded. A revision only
// takes effect when its content differs from the current one and it parses
// and validates; anything else leaves the current configuration in place.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc

	mu      sync.Mutex
	current *Config
	sum     [sha256.Size]byte

	// Size and mtime of the last revision looked at, valid or not.
	seenSize int64
	seenMod  time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets how often [Watcher.Run] checks the file. Non-positive
// values keep the default of 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the file at path. It fails if that first load fails.
// Polling starts with [Watcher.Run].
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: 5 * time.Second, onReload: onReload}
	for _, opt := range opts {
		opt(w)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current = cfg
	w.sum = sha256.Sum256(data)
	w.seenSize, w.seenMod = info.Size(), info.ModTime()
	return w, nil
}

// Current returns the configuration in effect.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run checks the file every interval until ctx is done. Rejected revisions
// are logged.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				slog.Warn("config: keeping previous configuration", "path", w.path, "err", err)
			}
		}
	}
}

// Check looks at the file once and reports whether a new configuration took
// effect. The reload callback runs before Check returns. A rejected
// revision is reported once; Check stays quiet until the file changes
// again.
func (w *Watcher) Check() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, fmt.Errorf("config: stat %s: %w", w.path, err)
	}

	w.mu.Lock()
	if info.Size() == w.seenSize && info.ModTime().Equal(w.seenMod) {
		w.mu.Unlock()
		return false, nil
	}
	w.seenSize, w.seenMod = info.Size(), info.ModTime()
	w.mu.Unlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, fmt.Errorf("config: read %s: %w", w.path, err)
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	same := sum == w.sum
	w.mu.Unlock()
	if same {
		return false, nil
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("config: reload %s: %w", w.path, err)
	}

	w.mu.Lock()
	old := w.current
	w.current, w.sum = cfg, sum
	w.mu.Unlock()

	slog.Info("config: configuration reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(old, cfg)
	}
	return true, nil
}
