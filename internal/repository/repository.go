package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"vfzsync/internal/models"
)

type SyncRepository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncStateTx(ctx context.Context, tx *gorm.DB, state *models.SyncState) error
	ListSyncStates(ctx context.Context) ([]models.SyncState, error)
	InsertSyncRunTx(ctx context.Context, tx *gorm.DB, run *models.SyncRun) error
	GetSyncRun(ctx context.Context, runID string) ([]models.SyncRun, error)
	ListSyncRuns(ctx context.Context, params ListSyncRunsParams) ([]models.SyncRun, error)
	CountSyncRuns(ctx context.Context, params ListSyncRunsParams) (int64, error)
	DeleteSyncRunsBefore(ctx context.Context, before time.Time) (int64, error)
}

type SettingsRepository interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)
}

type Repository interface {
	SyncRepository
	SettingsRepository
}

type ListSyncRunsParams struct {
	Limit   int
	Offset  int
	Scope   *string
	Status  *string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
