package actionable

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"call-compass-go/internal/logger"
)

// Watch reloads the rules file into e whenever it is written or replaced, then calls
// onReload. A file that fails to parse leaves the current rules in place. Watch returns
// once the watcher is running; it stops when ctx is done.
func Watch(ctx context.Context, path string, e *Engine, onReload func([]Rule), log *logger.Logger) error {
	if log == nil {
		log = logger.New()
	}
	log = log.WithComponent("alert_rules")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors replace files on save, so watch the directory and filter by name.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target || evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				rules, err := LoadRules(path)
				if err != nil {
					log.WithError(err).Warn("rules reload failed, keeping previous rules")
					continue
				}
				e.SetRules(rules)
				log.WithField("rules", len(rules)).Info("alert rules reloaded")
				if onReload != nil {
					onReload(rules)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("rules watcher error")
			}
		}
	}()
	return nil
}
