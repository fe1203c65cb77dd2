package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/nabiya/diarymem/core"
)

// DefaultWatchDebounce is how long Watch waits after the last change to the
// index file before reloading.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the store whenever another process persists a newer index
// to the same path. It blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return core.E(core.ErrStorage, "memory.Watch", err)
	}
	defer w.Close()

	dir := filepath.Dir(s.config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.E(core.ErrStorage, "memory.Watch", err)
	}
	if err := w.Add(dir); err != nil {
		return core.E(core.ErrStorage, "memory.Watch", err)
	}
	base := filepath.Base(s.config.Path)

	log.WithField("path", s.config.Path).Info("[MEMORY] watching index file")

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			// sqlite touches -journal and -wal siblings as well as the file.
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("[MEMORY] watcher error")
		case <-timer.C:
			if err := s.Reload(ctx); err != nil {
				log.WithError(err).Warn("[MEMORY] reload failed")
			}
		}
	}
}
