package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/flowforge/taskctl/internal/log"
)

// Watcher records when the workspace or a watched project config file
// changes on disk and reports it through Dirty. The heartbeat engine does
// not use it: it resolves the config again on every tick.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dirty    map[string]bool
	stopOnce sync.Once
	stop     chan struct{}
}

// NewWatcher starts watching the given config file paths (workspace-level
// and any number of project-level files). Missing files are skipped; they
// simply won't invalidate until they're created and fsnotify is re-armed by
// a later NewWatcher call.
func NewWatcher(paths ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher: fsw,
		dirty:   map[string]bool{},
		stop:    make(chan struct{}),
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := fsw.Add(p); err != nil {
			log.Warn(log.CatConfig, "config watch add failed", "path", p, "error", err)
			continue
		}
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.dirty[event.Name] = true
				w.mu.Unlock()
				log.Debug(log.CatConfig, "config file changed", "path", event.Name, "op", event.Op.String())
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatConfig, "config watch error", "error", err)
		case <-w.stop:
			return
		}
	}
}

// Dirty reports and clears whether any watched file has changed since the
// last call, so a caller can decide to re-resolve.
func (w *Watcher) Dirty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.dirty) == 0 {
		return false
	}
	w.dirty = map[string]bool{}
	return true
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })
	return w.watcher.Close()
}
