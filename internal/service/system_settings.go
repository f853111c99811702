package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"vfzsync/internal/models"
	"vfzsync/internal/repository"
)

// FeaturePrefix namespaces feature switches in system_settings.
const FeaturePrefix = "feature."

const (
	FeatureVPollerFNT  = FeaturePrefix + "vpoller_fnt"
	FeatureFNTZabbix   = FeaturePrefix + "fnt_zabbix"
	FeatureGroupUpdate = FeaturePrefix + "group_update"
)

type featureDefault struct {
	enabled     bool
	description string
}

var featureDefaults = map[string]featureDefault{
	FeatureVPollerFNT:  {true, "scheduled vpoller-fnt pass"},
	FeatureFNTZabbix:   {true, "scheduled fnt-zabbix pass"},
	FeatureGroupUpdate: {false, "recompute flag host groups after each scheduled run"},
}

func DefaultFeatureSwitches() map[string]bool {
	out := make(map[string]bool, len(featureDefaults))
	for key, d := range featureDefaults {
		out[key] = d.enabled
	}
	return out
}

// ScopeFeature returns the switch gating a reconciliation scope.
func ScopeFeature(scope string) string {
	switch scope {
	case ScopeVPollerFNT:
		return FeatureVPollerFNT
	case ScopeFNTZabbix:
		return FeatureFNTZabbix
	default:
		return ""
	}
}

// FeatureSwitch is the effective state of one switch. Stored is false when
// the value comes from the built-in default.
type FeatureSwitch struct {
	Key         string     `json:"key"`
	Enabled     bool       `json:"enabled"`
	Stored      bool       `json:"stored"`
	Description string     `json:"description,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// SystemSettingsService reads and writes feature switches. A nil service or
// one without a repository answers every lookup with the fallback.
type SystemSettingsService struct {
	Repo repository.SettingsRepository
}

// EnsureDefaultSwitches inserts missing switches. Existing values are kept,
// including switches an operator turned off.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, d := range featureDefaults {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.Repo.UpsertSystemSetting(ctx, switchSetting(key, d.enabled, d.description, now)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil {
		return fallback
	}
	enabled, ok := parseSwitch(item.Value)
	if !ok {
		return fallback
	}
	return enabled
}

// SetEnabled stores a switch value, keeping a description set earlier.
func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	desc := featureDefaults[key].description
	if existing, err := s.Repo.GetSystemSettingByKey(ctx, key); err == nil && existing != nil && existing.Description != "" {
		desc = existing.Description
	}
	return s.Repo.UpsertSystemSetting(ctx, switchSetting(key, enabled, desc, time.Now().UTC()))
}

// Switches lists every known switch merged with the stored ones, sorted by
// key. Built-in switches without a row report their default.
func (s *SystemSettingsService) Switches(ctx context.Context) ([]FeatureSwitch, error) {
	byKey := make(map[string]FeatureSwitch, len(featureDefaults))
	for key, d := range featureDefaults {
		byKey[key] = FeatureSwitch{Key: key, Enabled: d.enabled, Description: d.description}
	}
	if s != nil && s.Repo != nil {
		prefix := FeaturePrefix
		asc := true
		items, err := s.Repo.ListSystemSettings(ctx, repository.ListSystemSettingsParams{
			Limit:   200,
			Prefix:  &prefix,
			OrderBy: "key",
			Asc:     &asc,
		})
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if !strings.HasPrefix(it.Key, FeaturePrefix) {
				continue
			}
			sw := byKey[it.Key]
			sw.Key = it.Key
			if enabled, ok := parseSwitch(it.Value); ok {
				sw.Enabled = enabled
				sw.Stored = true
			}
			if it.Description != "" {
				sw.Description = it.Description
			}
			updated := it.UpdatedAt
			sw.UpdatedAt = &updated
			byKey[it.Key] = sw
		}
	}
	out := make([]FeatureSwitch, 0, len(byKey))
	for _, sw := range byKey {
		out = append(out, sw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func parseSwitch(raw datatypes.JSON) (bool, bool) {
	if len(raw) == 0 {
		return false, false
	}
	var enabled bool
	if err := json.Unmarshal(raw, &enabled); err != nil {
		return false, false
	}
	return enabled, true
}

func switchSetting(key string, enabled bool, desc string, now time.Time) *models.SystemSetting {
	raw, _ := json.Marshal(enabled)
	return &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: desc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
