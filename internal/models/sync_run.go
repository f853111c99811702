package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncRun records one reconciliation sub-pass.
type SyncRun struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	RunID      string         `gorm:"type:varchar(36);not null;index"`
	Scope      string         `gorm:"type:varchar(32);not null;index"`
	Trigger    string         `gorm:"type:varchar(16);not null"`
	Status     string         `gorm:"type:varchar(16);not null;index"`
	Guarded    bool           `gorm:"not null;default:false"`
	Error      *string        `gorm:"type:text"`
	StatsJSON  datatypes.JSON `gorm:"type:jsonb"`
	StartedAt  time.Time      `gorm:"type:timestamptz;not null;index"`
	FinishedAt time.Time      `gorm:"type:timestamptz;not null"`
	DurationMS int64          `gorm:"not null"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}
