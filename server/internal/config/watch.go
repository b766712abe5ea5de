package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay is how long the file must stay quiet before it is reloaded.
// A save usually arrives as a truncate followed by one or more writes.
const reloadDelay = 100 * time.Millisecond

// Watch monitors path and calls onChange with the newly loaded Config each
// time the file is written or replaced. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file itself so that editors
// saving via rename keep triggering reloads. Events are coalesced until the
// file has been quiet for reloadDelay. A reload that reads an empty file or
// fails to parse or validate is logged and skipped; onChange only ever sees
// valid configs taken from a non-empty file.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", target)

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(reloadDelay)

		case <-timer.C:
			if cfg := reload(target); cfg != nil {
				onChange(cfg)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// reload reads and parses the file at path. It returns nil when the file is
// empty or invalid.
func reload(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		slog.Warn("config: file is empty, keeping previous config", "path", path)
		return nil
	}
	cfg, err := Parse(data)
	if err != nil {
		slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
		return nil
	}
	slog.Info("config: reloaded", "path", path)
	return cfg
}
