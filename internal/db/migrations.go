package db

import (
	"errors"

	"gorm.io/gorm"
)

// SyncSchema creates/updates tables from models. Table structure changes do
// not use versioned migrations.
func SyncSchema(gdb *gorm.DB) error {
	if gdb == nil {
		return errors.New("db is required")
	}
	return gdb.AutoMigrate(
		&JournalRow{},
		&JournalClaim{},
		&PaneSnapshot{},
		&RecoveryEvent{},
	)
}
