package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher calls OnChange once a burst of writes to any watched file has settled.
type Watcher struct {
	Paths    []string
	Debounce time.Duration
	OnChange func(ctx context.Context)
	Logger   *slog.Logger
}

func (w *Watcher) Run(ctx context.Context) error {
	if len(w.Paths) == 0 {
		return fmt.Errorf("no local dataset paths to watch")
	}
	if w.OnChange == nil {
		return fmt.Errorf("change handler is required")
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Directories are watched instead of files so atomic replaces (write temp, rename) are seen.
	files := map[string]struct{}{}
	dirs := map[string]struct{}{}
	for _, path := range w.Paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", path, err)
		}
		files[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, ok := dirs[dir]; ok {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %q: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, watched := files[abs]; !watched {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if w.Logger != nil {
				w.Logger.DebugContext(ctx, "dataset file changed", slog.String("path", abs), slog.String("op", event.Op.String()))
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if w.Logger != nil {
				w.Logger.WarnContext(ctx, "file watcher error", slog.Any("error", err))
			}
		case <-timer.C:
			w.OnChange(ctx)
		}
	}
}
