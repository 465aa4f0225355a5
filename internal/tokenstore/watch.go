package tokenstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"deskauth/pkg/logging"
)

// DefaultDebounceInterval is how long the watcher waits after the last file
// event before looking at the record.
const DefaultDebounceInterval = 200 * time.Millisecond

// Change describes what another process did to the record.
type Change int

const (
	// Changed means the record was written.
	Changed Change = iota
	// Removed means the record was deleted.
	Removed
)

func (c Change) String() string {
	if c == Removed {
		return "removed"
	}
	return "changed"
}

// Watch calls onChange when another process writes or removes the record.
// Writes made through this Store are not reported. Watching stops when ctx
// is cancelled.
func (s *Store) Watch(ctx context.Context, onChange func(Change)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: the record is replaced by rename, which drops a
	// watch on the file itself.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go s.watchLoop(ctx, watcher, onChange)

	logging.Info("TokenStore", "Watching %s for external changes", s.path)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, onChange func(Change)) {
	defer watcher.Close()

	var (
		debounceMu sync.Mutex
		debounce   *time.Timer
	)
	defer func() {
		debounceMu.Lock()
		if debounce != nil {
			debounce.Stop()
		}
		debounceMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			debounceMu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(DefaultDebounceInterval, func() {
				if ctx.Err() != nil {
					return
				}
				if change, ok := s.externalChange(); ok {
					logging.Info("TokenStore", "Stored session %s by another process", change)
					onChange(change)
				}
			})
			debounceMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("TokenStore", err, "File watcher error")
		}
	}
}

// externalChange compares the record on disk with what this Store last
// wrote.
func (s *Store) externalChange() (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.currentFingerprint()
	if current == s.fingerprint {
		return Changed, false
	}
	s.fingerprint = current
	if current == "" {
		return Removed, true
	}
	return Changed, true
}
