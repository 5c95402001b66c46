// Package journal persists the append-only comms journal (rows and
// unresolved claims) and the recovery escalation audit trail, backed by
// the shared sqlite handle in internal/db.
package journal

import (
	"errors"
	"time"

	"panehub/internal/db"
	"panehub/internal/handoff"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps a *gorm.DB scoped to the journal tables. The caller owns
// opening/closing the underlying connection (via internal/db).
type Store struct {
	gdb *gorm.DB
}

func NewStore(gdb *gorm.DB) (*Store, error) {
	if gdb == nil {
		return nil, errors.New("journal: db is required")
	}
	return &Store{gdb: gdb}, nil
}

// AppendRow inserts one immutable comms-journal row. Existing rows are
// never mutated; a repeat insert with the same ID is a no-op.
func (s *Store) AppendRow(row handoff.Row, deliveryID string) error {
	rec := db.JournalRow{
		ID:         row.ID,
		Ts:         row.Ts,
		Channel:    row.Channel,
		Direction:  row.Direction,
		Status:     row.Status,
		AckStatus:  row.AckStatus,
		Body:       row.Body,
		DeliveryID: deliveryID,
	}
	return s.gdb.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

// UpdateRowStatus advances a row's delivery status in place (e.g.
// recorded -> routed -> brokered/failed), used by the throttle/inject
// outcome path.
func (s *Store) UpdateRowStatus(id, status, ackStatus string) error {
	return s.gdb.Model(&db.JournalRow{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "ack_status": ackStatus}).Error
}

// Rows returns all rows ordered chronologically, optionally windowed.
func (s *Store) Rows(sinceMs, untilMs int64) ([]handoff.Row, error) {
	var recs []db.JournalRow
	q := s.gdb.Order("ts asc")
	if sinceMs > 0 {
		q = q.Where("ts >= ?", sinceMs)
	}
	if untilMs > 0 {
		q = q.Where("ts <= ?", untilMs)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]handoff.Row, 0, len(recs))
	for _, r := range recs {
		out = append(out, handoff.Row{
			ID: r.ID, Ts: r.Ts, Channel: r.Channel, Direction: r.Direction,
			Status: r.Status, AckStatus: r.AckStatus, Body: r.Body,
		})
	}
	return out, nil
}

// UpsertClaim records or updates an unresolved claim.
func (s *Store) UpsertClaim(claim handoff.Claim) error {
	rec := db.JournalClaim{
		ID: claim.ID, Status: claim.Status, Confidence: claim.Confidence,
		Statement: claim.Statement, UpdatedAt: time.Now().UTC().UnixMilli(),
	}
	return s.gdb.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status": rec.Status, "confidence": rec.Confidence,
			"statement": rec.Statement, "updated_at": rec.UpdatedAt,
		}),
	}).Create(&rec).Error
}

// Claims returns every claim currently on file.
func (s *Store) Claims() ([]handoff.Claim, error) {
	var recs []db.JournalClaim
	if err := s.gdb.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]handoff.Claim, 0, len(recs))
	for _, r := range recs {
		out = append(out, handoff.Claim{ID: r.ID, Status: r.Status, Confidence: r.Confidence, Statement: r.Statement})
	}
	return out, nil
}

// RecordEscalation implements recovery.AuditSink, persisting one
// escalation-ladder step for debug-replay.
func (s *Store) RecordEscalation(paneID string, level int, step string, at time.Time) {
	rec := db.RecoveryEvent{PaneID: paneID, Level: level, Step: step, Ts: at.UnixMilli()}
	_ = s.gdb.Create(&rec).Error
}

// RecoveryEvents returns every persisted escalation audit row for paneID.
func (s *Store) RecoveryEvents(paneID string) ([]db.RecoveryEvent, error) {
	var recs []db.RecoveryEvent
	if err := s.gdb.Where("pane_id = ?", paneID).Order("ts asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
