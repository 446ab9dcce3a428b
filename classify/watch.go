package classify

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher signals changes in the directories being listed, so the owner can filter them again.
// Signals are coalesced: a burst of file system events yields at least one value on Changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan struct{}
	done    chan struct{}
	log     zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewWatcher watches the given directories, non-recursively.
func NewWatcher(log zerolog.Logger, dirs ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: fsw,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
		log:     log,
	}
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	go w.processEvents()
	return w, nil
}

// Add starts watching dir.
func (w *Watcher) Add(dir string) error {
	return w.watcher.Add(filepath.Clean(dir))
}

// Remove stops watching dir.
func (w *Watcher) Remove(dir string) error {
	return w.watcher.Remove(filepath.Clean(dir))
}

// Changes fires after entries were created, written, removed or renamed.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			w.log.Debug().Str("path", event.Name).Stringer("op", event.Op).Msg("directory changed")
			select {
			case w.changes <- struct{}{}:
			default:
				// a signal is already queued
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("directory watch error")
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}
