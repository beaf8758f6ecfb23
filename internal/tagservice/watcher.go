package tagservice

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/eihwaz/internal/checksum"
)

// ApplyCallback is called after a watcher-driven reconciliation.
type ApplyCallback func(defPath string)

// WatchDefinition watches the tag-definition document and re-applies it
// whenever its content changes, until ctx is cancelled. Editors that
// replace the file on save emit Rename/Create rather than Write, so the
// watcher follows the containing directory and filters on the filename.
// A short debounce coalesces bursts; a checksum gate skips reconciling
// content that has not actually changed.
func (s *Service) WatchDefinition(ctx context.Context, defPath string, cb ApplyCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(defPath)
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		return err
	}

	target := filepath.Base(defPath)
	lastSum := sumOf(defPath)

	s.logger.Info("watcher: started", slog.String("definition", defPath))

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	schedule := func() {
		if debounce == nil {
			debounce = time.NewTimer(200 * time.Millisecond)
			debounceCh = debounce.C
		} else {
			debounce.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-debounceCh:
			sum := sumOf(defPath)
			if sum == "" || sum == lastSum {
				continue
			}
			if err := s.ApplyDefinition(ctx, defPath); err != nil {
				s.logger.Warn("watcher: apply failed",
					slog.String("definition", defPath),
					slog.String("error", err.Error()))
				continue
			}
			lastSum = sum
			if cb != nil {
				cb(defPath)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func sumOf(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return checksum.Sum(data)
}
