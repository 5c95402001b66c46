package main

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"panehub/internal/handoff"
	"panehub/internal/journal"
)

// handoffManager rematerializes the handoff document from the comms
// journal on demand and mirrors it to disk, invalidating its cached copy
// whenever an operator edits the on-disk file directly.
type handoffManager struct {
	journalStore *journal.Store
	path         string
	legacyPath   string
	sessionID    string
	source       string
	log          *slog.Logger
	nowFunc      func() time.Time

	mu       sync.Mutex
	cached   *handoff.Document
	cacheSet bool

	invalidator *handoff.CacheInvalidator
}

func newHandoffManager(journalStore *journal.Store, dataDir, sessionID string, log *slog.Logger) *handoffManager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	hm := &handoffManager{
		journalStore: journalStore,
		path:         filepath.Join(dataDir, "handoffs", "session.md"),
		legacyPath:   filepath.Join(dataDir, "handoff.md"),
		sessionID:    sessionID,
		source:       "panehubd",
		log:          log,
		nowFunc:      time.Now,
	}
	return hm
}

// watch starts the fsnotify-backed cache invalidator once the handoff file
// exists on disk; a missing file (first run, before any write) is not an
// error, just nothing to watch yet.
func (hm *handoffManager) watch() {
	inv, err := handoff.NewCacheInvalidator(hm.path, hm.invalidate, hm.log)
	if err != nil {
		hm.log.Debug("handoff.watch.skipped", "path", hm.path, "error", err)
		return
	}
	hm.invalidator = inv
}

func (hm *handoffManager) invalidate() {
	hm.mu.Lock()
	hm.cacheSet = false
	hm.cached = nil
	hm.mu.Unlock()
}

func (hm *handoffManager) Close() error {
	if hm.invalidator == nil {
		return nil
	}
	return hm.invalidator.Close()
}

// Current returns the materialized handoff document, recomputing and
// persisting it if the cache was invalidated or never populated.
func (hm *handoffManager) Current() (handoff.Document, error) {
	hm.mu.Lock()
	if hm.cacheSet {
		doc := *hm.cached
		hm.mu.Unlock()
		return doc, nil
	}
	hm.mu.Unlock()
	return hm.refresh()
}

// Refresh forces a rematerialization from the journal, used after a
// pane lifecycle event that changes the comms journal's tail.
func (hm *handoffManager) Refresh() {
	if _, err := hm.refresh(); err != nil {
		hm.log.Warn("handoff.refresh.failed", "error", err)
	}
}

func (hm *handoffManager) refresh() (handoff.Document, error) {
	rows, err := hm.journalStore.Rows(0, hm.nowFunc().UnixMilli())
	if err != nil {
		return handoff.Document{}, err
	}
	claims, err := hm.journalStore.Claims()
	if err != nil {
		return handoff.Document{}, err
	}
	doc, err := handoff.Materialize(rows, claims, hm.nowFunc().UnixMilli(), hm.sessionID, hm.source)
	if err != nil {
		return handoff.Document{}, err
	}
	if _, err := handoff.WriteIfChanged(hm.path, hm.legacyPath, true, doc, hm.log); err != nil {
		return handoff.Document{}, err
	}
	if hm.invalidator == nil {
		hm.watch()
	}

	hm.mu.Lock()
	cp := doc
	hm.cached = &cp
	hm.cacheSet = true
	hm.mu.Unlock()
	return doc, nil
}
