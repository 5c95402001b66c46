// Package paneregistry persists pane snapshots (role, runtime kind,
// status, scrollback tail, last activity) so the Coordinator can
// reconstruct its in-memory pane map across process restarts.
package paneregistry

import (
	"errors"
	"time"

	"panehub/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshot is the persisted view of one pane.
type Snapshot struct {
	PaneID         string
	Role           string
	RuntimeKind    string
	Status         string
	ScrollbackTail string
	LastActivity   time.Time
}

type Store struct {
	gdb *gorm.DB
}

func NewStore(gdb *gorm.DB) (*Store, error) {
	if gdb == nil {
		return nil, errors.New("paneregistry: db is required")
	}
	return &Store{gdb: gdb}, nil
}

// Save upserts one pane's snapshot.
func (s *Store) Save(snap Snapshot) error {
	rec := db.PaneSnapshot{
		PaneID:         snap.PaneID,
		Role:           snap.Role,
		RuntimeKind:    snap.RuntimeKind,
		Status:         snap.Status,
		ScrollbackTail: snap.ScrollbackTail,
		LastActivityMs: snap.LastActivity.UnixMilli(),
		UpdatedAt:      time.Now().UTC().UnixMilli(),
	}
	return s.gdb.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pane_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"role": rec.Role, "runtime_kind": rec.RuntimeKind, "status": rec.Status,
			"scrollback_tail": rec.ScrollbackTail, "last_activity_ms": rec.LastActivityMs,
			"updated_at": rec.UpdatedAt,
		}),
	}).Create(&rec).Error
}

// Get returns one pane's snapshot, or ok=false if never saved.
func (s *Store) Get(paneID string) (Snapshot, bool, error) {
	var rec db.PaneSnapshot
	err := s.gdb.Where("pane_id = ?", paneID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	return toSnapshot(rec), true, nil
}

// All returns every persisted pane snapshot.
func (s *Store) All() ([]Snapshot, error) {
	var recs []db.PaneSnapshot
	if err := s.gdb.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(recs))
	for _, r := range recs {
		out = append(out, toSnapshot(r))
	}
	return out, nil
}

// Delete removes a pane's snapshot, e.g. on teardown.
func (s *Store) Delete(paneID string) error {
	return s.gdb.Where("pane_id = ?", paneID).Delete(&db.PaneSnapshot{}).Error
}

func toSnapshot(rec db.PaneSnapshot) Snapshot {
	return Snapshot{
		PaneID: rec.PaneID, Role: rec.Role, RuntimeKind: rec.RuntimeKind, Status: rec.Status,
		ScrollbackTail: rec.ScrollbackTail, LastActivity: time.UnixMilli(rec.LastActivityMs).UTC(),
	}
}
