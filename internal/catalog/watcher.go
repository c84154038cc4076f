package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// WatcherConfig — конфигурация Watcher.
type WatcherConfig struct {
	// Path — путь к seed-файлу каталога.
	Path string

	// Catalog — каталог, который перезагружается.
	Catalog *Catalog

	// OnReload вызывается после успешной перезагрузки (опционально).
	// Например, для синхронизации каталога в БД.
	OnReload func(ctx context.Context, seed *Seed)

	// Debounce — пауза после последней записи (default: 500ms).
	Debounce time.Duration

	Logger *slog.Logger
}

// Watcher следит за seed-файлом и перезагружает каталог при изменении.
//
// Следим за директорией, а не за файлом: деплой обычно подменяет файл
// через rename, и watch на сам файл после этого теряется.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	catalog  *Catalog
	onReload func(ctx context.Context, seed *Seed)
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher создаёт Watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %q: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		watcher:  w,
		path:     path,
		catalog:  cfg.Catalog,
		onReload: cfg.OnReload,
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Run обрабатывает события файловой системы. Блокируется до отмены ctx.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if err := w.Reload(ctx); err != nil {
					w.logger.Error("catalog reload failed", "path", w.path, "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("catalog watcher error", "error", err)
		}
	}
}

// Reload перечитывает seed-файл и подменяет каталог.
// Некорректный файл не применяется, каталог остаётся прежним.
func (w *Watcher) Reload(ctx context.Context) error {
	seed, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	if err := w.catalog.Replace(seed.Runbooks); err != nil {
		return err
	}

	w.logger.Info("catalog reloaded", "path", w.path, "runbooks", w.catalog.Len())

	if w.onReload != nil {
		w.onReload(ctx, seed)
	}
	return nil
}
