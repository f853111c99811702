package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"vfzsync/internal/inventory"
	"vfzsync/internal/progress"
)

const defaultCommunity = "public"

// MonitoringTargets are the monitoring objects new hosts are attached to.
type MonitoringTargets struct {
	GroupID    string
	TemplateID string
	ProxyID    string
}

// MonitoringHostSynchronizer mirrors virtual servers onto monitoring hosts.
type MonitoringHostSynchronizer struct {
	Zabbix MonitoringClient
	Sender MetricSender
	Flags  []string
	VCHost string
	Logger *zap.Logger
	Hub    *progress.Hub
	RunID  string
}

type MonitoringResult struct {
	Created   int  `json:"created"`
	Updated   int  `json:"updated"`
	Unchanged int  `json:"unchanged"`
	Deleted   int  `json:"deleted"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	Metrics   int  `json:"metrics"`
	Guarded   bool `json:"guarded"`
}

func (r *MonitoringResult) Add(other MonitoringResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.Deleted += other.Deleted
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Metrics += other.Metrics
	r.Guarded = r.Guarded || other.Guarded
}

func (r MonitoringResult) Writes() map[string]int {
	return map[string]int{
		"created": r.Created,
		"updated": r.Updated,
		"deleted": r.Deleted,
		"failed":  r.Failed,
		"metrics": r.Metrics,
	}
}

func (m *MonitoringHostSynchronizer) flags() []string {
	if len(m.Flags) == 0 {
		return inventory.DefaultCapabilityFlags
	}
	return m.Flags
}

// Cleanup deletes hosts whose server is gone or soft-deleted. An empty
// serversByID leaves every host in place.
func (m *MonitoringHostSynchronizer) Cleanup(ctx context.Context, hosts []inventory.Host, serversByID map[string]*inventory.VirtualServer) MonitoringResult {
	var result MonitoringResult
	log := nopIfNil(m.Logger)
	if len(serversByID) == 0 {
		log.Warn("no virtual servers in snapshot, skipping host cleanup")
		result.Guarded = true
		return result
	}
	for _, host := range hosts {
		vs := serversByID[host.Host]
		if vs != nil && !vs.Deleted {
			continue
		}
		if err := m.Zabbix.DeleteHost(ctx, host.ID); err != nil {
			result.Failed++
			log.Error("delete monitoring host failed", zap.String("host", host.Host), zap.Error(err))
			continue
		}
		result.Deleted++
		log.Info("deleted monitoring host", zap.String("host", host.Host))
	}
	return result
}

// Sync creates missing hosts and brings existing hosts in line with their
// server. Servers still flagged new are ignored.
func (m *MonitoringHostSynchronizer) Sync(ctx context.Context, servers []inventory.VirtualServer, hostsByName map[string]*inventory.Host, targets MonitoringTargets) MonitoringResult {
	var result MonitoringResult
	log := nopIfNil(m.Logger)
	counter := progress.NewCounter(ScopeFNTZabbix, "sync", len(servers), log, m.Hub)
	counter.RunID = m.RunID

	for i := range servers {
		vs := &servers[i]
		counter.Inc()
		if vs.NewServer {
			result.Skipped++
			continue
		}
		host := hostsByName[vs.ID]
		if host == nil {
			m.create(ctx, vs, targets, &result)
			continue
		}
		m.update(ctx, vs, host, &result)
	}
	return result
}

func (m *MonitoringHostSynchronizer) macros(vs *inventory.VirtualServer) []inventory.Macro {
	return []inventory.Macro{
		{Macro: inventory.MacroCommunity, Value: vs.CommunityName},
		{Macro: inventory.MacroVSphere, Value: m.VCHost},
		{Macro: inventory.MacroPurpose, Value: vs.Purpose},
	}
}

func (m *MonitoringHostSynchronizer) create(ctx context.Context, vs *inventory.VirtualServer, targets MonitoringTargets, result *MonitoringResult) {
	log := nopIfNil(m.Logger)
	if vs.ManagementInterface == "" || vs.Deleted {
		result.Skipped++
		return
	}
	spec := inventory.HostSpec{
		Host:       vs.ID,
		Name:       vs.VisibleID,
		GroupID:    targets.GroupID,
		TemplateID: targets.TemplateID,
		ProxyID:    targets.ProxyID,
		IP:         vs.ManagementInterface,
		Macros:     m.macros(vs),
	}
	hostID, err := m.Zabbix.CreateHost(ctx, spec)
	if err != nil {
		result.Failed++
		log.Error("create monitoring host failed", zap.String("name", vs.VisibleID), zap.Any("host", spec), zap.Error(err))
		return
	}
	if err := m.Zabbix.CreateApplication(ctx, hostID, "elid_"+vs.Elid); err != nil {
		result.Failed++
		log.Error("create host application failed", zap.String("name", vs.VisibleID), zap.String("hostid", hostID), zap.Error(err))
		return
	}
	result.Created++
	log.Info("created monitoring host", zap.String("name", vs.VisibleID), zap.String("hostid", hostID))
}

// hostPlan is the set of changes computed for one existing host.
type hostPlan struct {
	items       []inventory.StatusUpdate
	triggers    []inventory.StatusUpdate
	interfaceID string
	ip          string
	fields      map[string]any
	metrics     []inventory.Metric
}

func (p hostPlan) empty() bool {
	return len(p.items) == 0 && len(p.triggers) == 0 && p.interfaceID == "" && len(p.fields) == 0
}

func (m *MonitoringHostSynchronizer) plan(vs *inventory.VirtualServer, host *inventory.Host) hostPlan {
	p := hostPlan{fields: map[string]any{}}
	if host.Name != vs.VisibleID {
		p.fields["name"] = vs.VisibleID
	}
	if vs.ManagementInterface != "" && host.Interface != nil && host.Interface.IP != vs.ManagementInterface {
		p.interfaceID = host.Interface.ID
		p.ip = vs.ManagementInterface
	}

	community, ok := host.Macro(inventory.MacroCommunity)
	if !ok {
		community = defaultCommunity
	}
	purpose, _ := host.Macro(inventory.MacroPurpose)
	vsphere, _ := host.Macro(inventory.MacroVSphere)
	if community != vs.CommunityName || purpose != vs.Purpose || vsphere != m.VCHost {
		p.fields["macros"] = m.macros(vs)
	}

	triggers := host.TriggersByFlag()
	items := host.ItemsByApplication()
	hostStatus := inventory.StatusDisabled
	for _, flag := range m.flags() {
		set := vs.Flag(flag)
		if set {
			hostStatus = inventory.StatusEnabled
		}
		status := inventory.StatusFor(set)
		for _, it := range items[flag] {
			if it.Status != status {
				p.items = append(p.items, inventory.StatusUpdate{ID: it.ID, Status: status})
			}
		}
		changed := false
		for _, tr := range triggers[flag] {
			if tr.Status == status {
				continue
			}
			changed = true
			p.triggers = append(p.triggers, inventory.StatusUpdate{ID: tr.ID, Status: status})
		}
		// one metric per flag transition, however many triggers carry the tag
		if changed {
			p.metrics = append(p.metrics, inventory.Metric{
				Host:  host.Host,
				Key:   TriggerStatusKey(flag),
				Value: strconv.Itoa(boolInt(set) - 1),
			})
		}
	}
	if hostStatus != host.Status {
		p.fields["status"] = hostStatus
	}
	return p
}

func (m *MonitoringHostSynchronizer) update(ctx context.Context, vs *inventory.VirtualServer, host *inventory.Host, result *MonitoringResult) {
	log := nopIfNil(m.Logger).With(zap.String("name", vs.VisibleID), zap.String("hostid", host.ID))
	p := m.plan(vs, host)

	if len(p.metrics) > 0 && m.Sender != nil {
		res, err := m.Sender.Send(ctx, p.metrics)
		if err != nil {
			log.Warn("push trigger status failed", zap.Any("metrics", p.metrics), zap.Any("result", res), zap.Error(err))
		} else {
			result.Metrics += len(p.metrics)
		}
	}

	if p.empty() {
		result.Unchanged++
		return
	}

	failed := false
	if len(p.items) > 0 {
		log.Debug("item update set", zap.Any("items", p.items))
		if err := m.Zabbix.UpdateItems(ctx, p.items); err != nil {
			failed = true
			log.Error("update items failed", zap.Any("items", p.items), zap.Error(err))
		}
	}
	if len(p.triggers) > 0 {
		log.Debug("trigger update set", zap.Any("triggers", p.triggers))
		if err := m.Zabbix.UpdateTriggers(ctx, p.triggers); err != nil {
			failed = true
			log.Error("update triggers failed", zap.Any("triggers", p.triggers), zap.Error(err))
		}
	}
	if p.interfaceID != "" {
		log.Debug("interface update set", zap.String("interfaceid", p.interfaceID), zap.String("ip", p.ip))
		if err := m.Zabbix.UpdateInterface(ctx, p.interfaceID, p.ip); err != nil {
			failed = true
			log.Error("update interface failed", zap.String("ip", p.ip), zap.Error(err))
		}
	}
	if len(p.fields) > 0 {
		log.Debug("host update set", zap.Any("fields", p.fields))
		if err := m.Zabbix.UpdateHost(ctx, host.ID, p.fields); err != nil {
			failed = true
			log.Error("update host failed", zap.Any("fields", p.fields), zap.Error(err))
		}
	}
	if failed {
		result.Failed++
		return
	}
	result.Updated++
	log.Info("updated monitoring host")
}

// TriggerStatusKey is the trapper item key mirroring a flag trigger.
func TriggerStatusKey(flag string) string {
	return fmt.Sprintf("trigger.status[%s]", flag)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
