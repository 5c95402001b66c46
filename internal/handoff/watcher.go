package handoff

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// CacheInvalidator watches watchPath for external writes (an operator
// editing handoffs/session.md by hand) and invalidates a cached "last
// materialized" byte slice (via onInvalidate) so the next read rebuilds
// the document instead of serving a stale in-memory copy.
type CacheInvalidator struct {
	watcher *fsnotify.Watcher
	onInvalidate func()
	log *slog.Logger
}

func NewCacheInvalidator(watchPath string, onInvalidate func(), log *slog.Logger) (*CacheInvalidator, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(watchPath); err != nil {
		w.Close()
		return nil, err
	}
	ci := &CacheInvalidator{watcher: w, onInvalidate: onInvalidate, log: log}
	go ci.run()
	return ci, nil
}

func (ci *CacheInvalidator) run() {
	for {
		select {
		case event, ok := <-ci.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				ci.log.Debug("handoff.cache.invalidated", "path", event.Name, "op", event.Op.String())
				if ci.onInvalidate != nil {
					ci.onInvalidate()
				}
			}
		case err, ok := <-ci.watcher.Errors:
			if !ok {
				return
			}
			ci.log.Warn("handoff.watch.error", "error", err)
		}
	}
}

func (ci *CacheInvalidator) Close() error {
	return ci.watcher.Close()
}
