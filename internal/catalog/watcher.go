package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the catalog when files under the intents path change and
// publishes the result to a Holder.
type Watcher struct {
	path     string
	holder   *Holder
	debounce time.Duration
	onReload func(*Catalog)
	logger   *zap.Logger
}

// NewWatcher creates a watcher. onReload runs after every successful reload.
func NewWatcher(path string, holder *Holder, onReload func(*Catalog), logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:     path,
		holder:   holder,
		debounce: 500 * time.Millisecond,
		onReload: onReload,
		logger:   logger,
	}
}

// Run watches until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.logger.Info("👀 watching intents", zap.String("path", w.path))

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			// editors emit bursts of events for one save
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			trigger = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("⚠️ intents watcher error", zap.Error(err))

		case <-trigger:
			trigger = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	c, err := Load(w.path)
	if err != nil {
		w.logger.Error("❌ failed to reload intents, keeping previous catalog", zap.Error(err))
		return
	}

	w.holder.Set(c)
	w.logger.Info("📚 intents reloaded", zap.Int("intents", len(c.Tags())))

	if w.onReload != nil {
		w.onReload(c)
	}
}
