package ignore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the policy whenever the backing file is edited out of band.
//
// The parent directory is watched rather than the file itself so that editors
// which replace the file (write temp, rename) are picked up. Watch blocks until
// ctx is cancelled or the watcher fails.
func (p *Policy) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create ignore list watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(p.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	p.logger.Info("watching ignore list", zap.String("path", target))

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
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			p.logger.Debug("ignore list changed on disk",
				zap.String("path", target),
				zap.String("op", event.Op.String()))
			p.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("ignore list watcher error", zap.Error(err))
		}
	}
}
