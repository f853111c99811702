package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"vfzsync/internal/inventory"
	"vfzsync/internal/progress"
	"vfzsync/internal/transform"
)

// VirtualServerLifecycle drives CMDB virtual servers through discovery,
// update, soft-delete and purge.
type VirtualServerLifecycle struct {
	CMDB     CMDBClient
	Linked   *LinkedEntitySynchronizer
	Map      transform.Map
	Location *time.Location
	Logger   *zap.Logger
	Hub      *progress.Hub
	RunID    string
}

type LifecycleResult struct {
	Created     int          `json:"created"`
	Updated     int          `json:"updated"`
	Unchanged   int          `json:"unchanged"`
	Undeleted   int          `json:"undeleted"`
	SoftDeleted int          `json:"soft_deleted"`
	Confirmed   int          `json:"confirmed"`
	Purged      int          `json:"purged"`
	Failed      int          `json:"failed"`
	Guarded     bool         `json:"guarded"`
	Linked      LinkedResult `json:"linked"`
}

func (r LifecycleResult) Writes() map[string]int {
	return map[string]int{
		"created":      r.Created,
		"updated":      r.Updated,
		"undeleted":    r.Undeleted,
		"soft_deleted": r.SoftDeleted,
		"confirmed":    r.Confirmed,
		"purged":       r.Purged,
		"failed":       r.Failed + r.Linked.Failed,
		"linked":       r.Linked.Created + r.Linked.Updated + r.Linked.Deleted,
	}
}

// Add merges the counters of another lifecycle pass.
func (r *LifecycleResult) Add(other LifecycleResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.Undeleted += other.Undeleted
	r.SoftDeleted += other.SoftDeleted
	r.Confirmed += other.Confirmed
	r.Purged += other.Purged
	r.Failed += other.Failed
	r.Guarded = r.Guarded || other.Guarded
	r.Linked.Add(other.Linked)
}

// Discover creates or updates one virtual server per VM. index maps the
// correlation key to the current CMDB record.
func (l *VirtualServerLifecycle) Discover(ctx context.Context, vms []inventory.VM, index map[string]*inventory.VirtualServer) LifecycleResult {
	var result LifecycleResult
	log := nopIfNil(l.Logger)
	counter := progress.NewCounter(ScopeVPollerFNT, "discover", len(vms), log, l.Hub)
	counter.RunID = l.RunID

	for i := range vms {
		vm := vms[i]
		counter.Inc()
		vm.LastBackup = inventory.ParseLastBackup(vm.Annotation, l.Location)

		m := l.Map
		if vm.LastBackup == nil {
			m = withoutTarget(m, inventory.AttrLastBackup)
		}

		vs := index[vm.InstanceUUID]
		set := transform.Diff(vm, vs, m)

		if vs == nil {
			l.create(ctx, &vm, set, &result)
			continue
		}

		if vs.Deleted {
			if vs.DelConfirmed {
				set.Set(inventory.AttrNewServer, true)
			}
			set.Set(inventory.AttrDeleted, false)
			set.Set(inventory.AttrDelConfirmed, false)
		}

		result.Linked.Add(l.Linked.Sync(ctx, vs, &vm, false))

		if set.Empty() {
			result.Unchanged++
			continue
		}
		if err := l.CMDB.Update(ctx, inventory.VirtualServerType, vs.Elid, set.Map()); err != nil {
			result.Failed++
			log.Error("update virtual server failed",
				zap.String("name", vs.VisibleID),
				zap.Stringer("update_set", set),
				zap.Error(err),
			)
			continue
		}
		result.Updated++
		if vs.Deleted {
			result.Undeleted++
		}
		log.Info("updated virtual server", zap.String("name", vs.VisibleID))
		log.Debug("virtual server update set", zap.String("name", vs.VisibleID), zap.Stringer("update_set", set))
	}
	return result
}

func (l *VirtualServerLifecycle) create(ctx context.Context, vm *inventory.VM, set *transform.UpdateSet, result *LifecycleResult) {
	log := nopIfNil(l.Logger)
	set.Set(inventory.AttrNewServer, true)
	elid, err := l.CMDB.Create(ctx, inventory.VirtualServerType, set.Map())
	if err != nil {
		result.Failed++
		log.Error("create virtual server failed",
			zap.String("name", vm.Name),
			zap.Stringer("update_set", set),
			zap.Error(err),
		)
		return
	}
	result.Created++
	log.Info("created virtual server", zap.String("name", vm.Name), zap.String("elid", elid))
	log.Debug("virtual server update set", zap.String("name", vm.Name), zap.Stringer("update_set", set))

	created := inventory.VirtualServerFromAttributes(set.Map())
	created.Elid = elid
	created.Linked = map[inventory.LinkedKind]map[string]inventory.LinkedRecord{}
	result.Linked.Add(l.Linked.Sync(ctx, &created, vm, false))
}

// Cleanup soft-deletes servers whose VM is gone. An empty vmIndex means the
// source returned nothing and no server is touched.
func (l *VirtualServerLifecycle) Cleanup(ctx context.Context, servers []inventory.VirtualServer, vmIndex map[string]*inventory.VM) LifecycleResult {
	var result LifecycleResult
	log := nopIfNil(l.Logger)
	if len(vmIndex) == 0 {
		log.Warn("no VMs in snapshot, skipping virtual server cleanup")
		result.Guarded = true
		return result
	}

	ordered := make([]*inventory.VirtualServer, 0, len(servers))
	for i := range servers {
		ordered = append(ordered, &servers[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].UUID < ordered[j].UUID })

	counter := progress.NewCounter(ScopeVPollerFNT, "cleanup", len(ordered), log, l.Hub)
	counter.RunID = l.RunID
	for _, vs := range ordered {
		counter.Inc()
		if _, ok := vmIndex[vs.UUID]; ok || vs.Deleted {
			continue
		}

		set := transform.NewUpdateSet()
		set.Set(inventory.AttrDeleted, true)
		set.Set(inventory.AttrNewServer, false)
		set.Set(inventory.AttrDelConfirmed, false)

		result.Linked.Add(l.Linked.Sync(ctx, vs, nil, true))

		purge := false
		if vs.NewServer {
			if vs.WithHistory {
				set.Set(inventory.AttrDelConfirmed, true)
			} else {
				purge = true
			}
		}

		if purge {
			if err := l.CMDB.Delete(ctx, inventory.VirtualServerType, vs.Elid); err != nil {
				result.Failed++
				log.Error("delete virtual server failed", zap.String("name", vs.VisibleID), zap.Error(err))
				continue
			}
			result.Purged++
			log.Info("deleted virtual server", zap.String("name", vs.VisibleID))
			continue
		}

		if err := l.CMDB.Update(ctx, inventory.VirtualServerType, vs.Elid, set.Map()); err != nil {
			result.Failed++
			log.Error("soft-delete virtual server failed",
				zap.String("name", vs.VisibleID),
				zap.Stringer("update_set", set),
				zap.Error(err),
			)
			continue
		}
		if vs.NewServer {
			result.Confirmed++
		} else {
			result.SoftDeleted++
		}
		log.Info("marked virtual server deleted", zap.String("name", vs.VisibleID))
		log.Debug("virtual server update set", zap.String("name", vs.VisibleID), zap.Stringer("update_set", set))
	}
	return result
}

func withoutTarget(m transform.Map, target string) transform.Map {
	out := make(transform.Map, 0, len(m))
	for _, r := range m {
		if r.Target != target {
			out = append(out, r)
		}
	}
	return out
}

// IndexVMs indexes VMs by instance UUID.
func IndexVMs(vms []inventory.VM) map[string]*inventory.VM {
	out := make(map[string]*inventory.VM, len(vms))
	for i := range vms {
		out[vms[i].InstanceUUID] = &vms[i]
	}
	return out
}
