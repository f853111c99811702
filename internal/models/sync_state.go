package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncState is the latest outcome of one reconciliation scope.
type SyncState struct {
	Scope         string         `gorm:"primaryKey;type:text;comment:reconciliation scope"`
	LastRunID     *string        `gorm:"type:varchar(36);comment:run that last touched the scope"`
	LastSuccessAt *time.Time     `gorm:"type:timestamptz;comment:last successful pass"`
	LastAttemptAt *time.Time     `gorm:"type:timestamptz;comment:last attempted pass"`
	LastError     *string        `gorm:"type:text;comment:last error message"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb;comment:statistics of the last pass"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
