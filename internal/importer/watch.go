package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settling tracks the file while writes may still be landing.
type settling struct {
	mu      sync.Mutex
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// Watch re-imports the file each time it settles after a change. It watches the
// parent directory so editors that save by rename are seen. Watch blocks until ctx is
// cancelled and returns nil then.
func (im *Importer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(filepath.Clean(im.path))
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	im.logger.Info("watching trainers file", slog.Duration("settle_delay", im.opts.SettleDelay))

	settled := make(chan struct{}, 1)
	s := &settling{}
	defer s.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(im.path) {
				continue
			}
			if event.Op&fsnotify.Remove != 0 {
				im.logger.Warn("trainers file removed; keeping current trainers")
				s.stop()
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				im.startSettling(s, settled)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			im.logger.Warn("file watch error", slog.String("error", err.Error()))

		case <-settled:
			if _, err := im.Import(ctx); err != nil && ctx.Err() == nil {
				im.logger.Error("re-import failed", slog.String("error", err.Error()))
			}
		}
	}
}

// startSettling (re)starts the settle timer for the file.
func (im *Importer) startSettling(s *settling, settled chan<- struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	info, err := os.Stat(im.path)
	if err != nil {
		s.timer = nil
		return
	}
	s.size, s.modTime = info.Size(), info.ModTime()
	s.timer = time.AfterFunc(im.opts.SettleDelay, func() { im.checkSettled(s, settled) })
}

// checkSettled signals a re-import once size and mtime stop changing.
func (im *Importer) checkSettled(s *settling, settled chan<- struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(im.path)
	if err != nil {
		s.timer = nil
		return
	}
	if info.Size() != s.size || !info.ModTime().Equal(s.modTime) {
		s.size, s.modTime = info.Size(), info.ModTime()
		s.timer = time.AfterFunc(im.opts.SettleDelay, func() { im.checkSettled(s, settled) })
		return
	}
	s.timer = nil

	select {
	case settled <- struct{}{}:
	default:
	}
}

func (s *settling) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
