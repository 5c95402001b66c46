package db

// JournalRow is one append-only comms-journal entry (C8 input).
type JournalRow struct {
	ID        string `gorm:"primaryKey"`
	Ts        int64  `gorm:"index"`
	Channel   string
	Direction string
	Status    string
	AckStatus string
	Body      string
	DeliveryID string `gorm:"index"`
}

// JournalClaim is one entry from the unresolved-claims reader.
type JournalClaim struct {
	ID         string `gorm:"primaryKey"`
	Status     string `gorm:"index"`
	Confidence float64
	Statement  string
	UpdatedAt  int64
}

// PaneSnapshot is the persisted last-known state of a pane, used to
// reconstruct Coordinator state across process restarts.
type PaneSnapshot struct {
	PaneID        string `gorm:"primaryKey"`
	Role          string
	RuntimeKind   string
	Status        string
	ScrollbackTail string
	LastActivityMs int64
	UpdatedAt     int64
}

// RecoveryEvent is one escalation-ladder audit row (C7).
type RecoveryEvent struct {
	ID     uint `gorm:"primaryKey;autoIncrement"`
	PaneID string `gorm:"index"`
	Level  int
	Step   string
	Ts     int64
}
