package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a configuration file whenever it changes on disk,
// following the teacher's recommendation to watch a file's containing
// directory rather than the file itself (some editors and atomic-rename
// writers replace a watched file's inode, silently detaching a direct
// watch on it).
type Watcher struct {
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	path    string
	onLoad  func(*Config)
}

// NewWatcher starts watching path's containing directory for writes. Each
// time path itself is written, the file is reloaded via [Load] and, on
// success, onLoad is called with the new configuration; load errors are
// logged and the previous configuration is left in place.
func NewWatcher(logger *slog.Logger, path string, onLoad func(*Config)) (w *Watcher, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err = fw.Add(dir); err != nil {
		fw.Close()

		return nil, fmt.Errorf("watching %q: %w", dir, err)
	}

	return &Watcher{logger: logger, watcher: fw, path: path, onLoad: onLoad}, nil
}

// Run processes filesystem events until ctx is done or the watcher is
// closed. It is intended to run in its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	defer slogutil.RecoverAndLog(ctx, w.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			w.logger.Error("watching configuration file", "err", err)
		}
	}
}

// handleEvent reloads the configuration if ev names the watched path and
// is a write or an atomic-rename replacement of it.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
		return
	}

	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	conf, err := Load(w.path)
	if err != nil {
		w.logger.Error("reloading configuration", "path", w.path, "err", err)

		return
	}

	w.logger.Info("configuration reloaded", "path", w.path)
	w.onLoad(conf)
}

// Close stops the watcher.
func (w *Watcher) Close() (err error) {
	return w.watcher.Close()
}
