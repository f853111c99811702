package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vfzsync/internal/inventory"
	"vfzsync/internal/transform"
)

// LinkedEntitySynchronizer keeps the IP address and filesystem records of a
// virtual server in line with the VM they describe.
type LinkedEntitySynchronizer struct {
	CMDB   CMDBClient
	Tables transform.Tables
	Logger *zap.Logger
}

type LinkedResult struct {
	Created    int             `json:"created"`
	Updated    int             `json:"updated"`
	Deleted    int             `json:"deleted"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	CapacityGB decimal.Decimal `json:"capacity_gb"`
	UsedGB     decimal.Decimal `json:"used_gb"`
}

func (r *LinkedResult) Add(other LinkedResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Deleted += other.Deleted
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	r.CapacityGB = r.CapacityGB.Add(other.CapacityGB)
	r.UsedGB = r.UsedGB.Add(other.UsedGB)
}

// Sync reconciles every linked class of vs against vm. vm may be nil when the
// parent is being soft-deleted; deleting forces cleanup of records that have
// no source counterpart.
func (s *LinkedEntitySynchronizer) Sync(ctx context.Context, vs *inventory.VirtualServer, vm *inventory.VM, deleting bool) LinkedResult {
	var result LinkedResult
	if s == nil || vs == nil {
		return result
	}
	for _, class := range inventory.LinkedClasses {
		result.Add(s.syncClass(ctx, class, vs, vm, deleting))
	}
	return result
}

func (s *LinkedEntitySynchronizer) syncClass(ctx context.Context, class inventory.LinkedClass, vs *inventory.VirtualServer, vm *inventory.VM, deleting bool) LinkedResult {
	var result LinkedResult
	var sources map[string]inventory.SourceRecord
	if vm != nil {
		sources = vm.Sources(class.Kind)
	}
	if len(sources) == 0 && !deleting {
		result.Skipped++
		return result
	}
	table := s.Tables.Linked(class.Kind)
	existing := vs.LinkedOf(class.Kind)
	log := nopIfNil(s.Logger).With(
		zap.String("parent", vs.VisibleID),
		zap.String("class", class.Type.Name),
	)

	for _, key := range sortedKeys(sources) {
		src := sources[key]
		if disk, ok := src.(inventory.Disk); ok {
			result.CapacityGB = result.CapacityGB.Add(disk.CapacityGB())
			result.UsedGB = result.UsedGB.Add(disk.UsedGB())
		}

		current, found := existing[key]
		var dst transform.Record
		if found {
			dst = current
		}
		set := transform.Diff(src, dst, table)
		if set.Empty() {
			continue
		}

		if found {
			if err := s.CMDB.Update(ctx, class.Type, current.Elid, set.Map()); err != nil {
				result.Failed++
				log.Warn("update linked entity failed", zap.String("key", key), zap.Stringer("update_set", set), zap.Error(err))
				continue
			}
			result.Updated++
			log.Debug("updated linked entity", zap.String("key", key), zap.Stringer("update_set", set))
			continue
		}

		elid, err := s.CMDB.Create(ctx, class.Type, set.Map())
		if err != nil {
			result.Failed++
			log.Warn("create linked entity failed", zap.String("key", key), zap.Stringer("update_set", set), zap.Error(err))
			continue
		}
		if err := s.CMDB.Link(ctx, vs.Elid, class, elid); err != nil {
			result.Failed++
			log.Warn("link entity failed", zap.String("key", key), zap.String("elid", elid), zap.Error(err))
			// an unlinked record is invisible to later passes
			if derr := s.CMDB.Delete(ctx, class.Type, elid); derr != nil {
				log.Error("orphaned linked entity needs manual cleanup", zap.String("key", key), zap.String("elid", elid), zap.Error(derr))
			}
			continue
		}
		result.Created++
		log.Info("created linked entity", zap.String("key", key), zap.Stringer("update_set", set))
	}

	s.cleanup(ctx, class, vs.Elid, existing, sources, log, &result)
	return result
}

// cleanup deletes records whose natural key vanished from the source.
func (s *LinkedEntitySynchronizer) cleanup(ctx context.Context, class inventory.LinkedClass, vsElid string, existing map[string]inventory.LinkedRecord, sources map[string]inventory.SourceRecord, log *zap.Logger, result *LinkedResult) {
	keys := make([]string, 0, len(existing))
	for key := range existing {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := sources[key]; ok {
			continue
		}
		rec := existing[key]
		if err := s.CMDB.Delete(ctx, class.Type, rec.Elid); err != nil {
			result.Failed++
			log.Warn("delete linked entity failed", zap.String("key", key), zap.String("elid", rec.Elid), zap.Error(err))
			s.detach(ctx, class, vsElid, rec, log)
			continue
		}
		result.Deleted++
		log.Info("deleted linked entity", zap.String("key", key))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// detach drops the relation of a record that could not be deleted so the
// server stops reporting it. The entity itself stays behind.
func (s *LinkedEntitySynchronizer) detach(ctx context.Context, class inventory.LinkedClass, vsElid string, rec inventory.LinkedRecord, log *zap.Logger) {
	if rec.Link == "" {
		return
	}
	if err := s.CMDB.Unlink(ctx, vsElid, class, rec.Link); err != nil {
		log.Warn("unlink linked entity failed", zap.String("key", rec.Key), zap.String("link", rec.Link), zap.Error(err))
		return
	}
	log.Error("orphaned linked entity needs manual cleanup", zap.String("key", rec.Key), zap.String("elid", rec.Elid))
}
