package cli

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/valter-silva-au/taskloop/internal/observability"
	"github.com/valter-silva-au/taskloop/internal/storage"
)

const watchDebounce = 50 * time.Millisecond

var watchedFiles = map[string]bool{
	storage.BacklogFileName:        true,
	storage.CheckpointFileName:     true,
	storage.ProgressFileName:       true,
	observability.EventLogFileName: true,
}

// storeWatcher reports changes to the loop's state files. Stores replace
// files by rename, so the base directory is watched rather than the files.
type storeWatcher struct {
	watcher  *fsnotify.Watcher
	names    map[string]bool
	onChange func()
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newStoreWatcher(basePath string, onChange func()) (*storeWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.Add(basePath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", basePath, err)
	}
	return &storeWatcher{
		watcher:  watcher,
		names:    watchedFiles,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}, nil
}

func (w *storeWatcher) Start() {
	go w.watchLoop()
}

func (w *storeWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
}

func (w *storeWatcher) watchLoop() {
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.names[filepath.Base(event.Name)] {
				continue
			}
			debounceTimer.Reset(watchDebounce)

		case <-debounceTimer.C:
			w.onChange()

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
