package grants

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/logging"
)

// Watch reloads the store whenever its backing file changes on disk, so
// edits made by an external settings surface are picked up without a
// restart. It blocks until ctx is cancelled.
func Watch(ctx context.Context, s *Store) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: editors replace files rather than rewrite them,
	// which drops a watch on the file itself.
	if err := w.Add(filepath.Dir(s.Path())); err != nil {
		return err
	}

	target := filepath.Clean(s.Path())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				logging.Warn("grants reload failed", "error", err)
				continue
			}
			logging.Info("grants reloaded", "path", s.Path())
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Warn("grants watcher error", "error", err)
		}
	}
}
