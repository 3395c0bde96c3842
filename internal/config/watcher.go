package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/llm-quota-governor/internal/logger"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads a limits file when it changes on disk and hands every
// valid version to a callback. Invalid versions are logged and skipped.
type Watcher struct {
	onChange      func(*Limits)
	watcher       *fsnotify.Watcher
	debounceTimer *time.Timer
	stopChan      chan struct{}
	done          chan struct{}
	path          string
	debounce      time.Duration
	mu            sync.Mutex
	closeOnce     sync.Once
}

// WatchLimits starts watching path. The directory is watched so editors that
// replace the file atomically are noticed.
func WatchLimits(path string, onChange func(*Limits)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		if closeErr := fw.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &Watcher{
		onChange: onChange,
		watcher:  fw,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		path:     path,
		debounce: defaultDebounce,
	}
	go w.watchLoop()
	return w, nil
}

// watchLoop handles file system events with debouncing.
func (w *Watcher) watchLoop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.mu.Lock()
			if w.debounceTimer != nil {
				w.debounceTimer.Stop()
			}
			w.debounceTimer = time.AfterFunc(w.debounce, w.reload)
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("limits watcher error", "path", w.path, "error", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.stopChan:
		return
	default:
	}

	l, err := LoadLimits(w.path)
	if err != nil {
		logger.Warn("ignoring invalid limits file", "path", w.path, "error", err)
		return
	}
	logger.Info("limits file reloaded", "path", w.path, "providers", len(l.Providers))
	w.onChange(l)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopChan)

		w.mu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.mu.Unlock()

		err = w.watcher.Close()
		<-w.done
	})
	return err
}
