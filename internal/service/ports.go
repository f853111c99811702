package service

import (
	"context"

	"vfzsync/internal/client/zabbix"
	"vfzsync/internal/inventory"
)

// SourceClient lists the live VM inventory of one vCenter.
type SourceClient interface {
	Fetch(ctx context.Context, vcHost string) ([]inventory.VM, error)
}

// CMDBClient reads and writes virtual servers and their sub-entities.
type CMDBClient interface {
	ListVirtualServers(ctx context.Context, restrictions inventory.Restrictions) ([]inventory.VirtualServer, error)
	ListRelated(ctx context.Context, class inventory.LinkedClass, vsElid string) (map[string]inventory.LinkedRecord, error)
	Create(ctx context.Context, t inventory.EntityType, attrs map[string]any) (string, error)
	Update(ctx context.Context, t inventory.EntityType, elid string, attrs map[string]any) error
	Delete(ctx context.Context, t inventory.EntityType, elid string) error
	Link(ctx context.Context, vsElid string, class inventory.LinkedClass, linkedElid string) error
	Unlink(ctx context.Context, vsElid string, class inventory.LinkedClass, linkElid string) error
}

// MonitoringClient manages monitoring hosts and their objects.
type MonitoringClient interface {
	HostGroupID(ctx context.Context, name string) (string, error)
	CreateHostGroup(ctx context.Context, name string) (string, error)
	TemplateID(ctx context.Context, name string) (string, error)
	ProxyID(ctx context.Context, name string) (string, error)
	Hosts(ctx context.Context, groupID string) ([]inventory.Host, error)
	HostsWithObjects(ctx context.Context, groupID string) ([]inventory.Host, error)
	Triggers(ctx context.Context, groupID string) ([]inventory.Trigger, error)
	CreateHost(ctx context.Context, spec inventory.HostSpec) (string, error)
	CreateApplication(ctx context.Context, hostID, name string) error
	DeleteHost(ctx context.Context, hostID string) error
	UpdateHost(ctx context.Context, hostID string, fields map[string]any) error
	UpdateInterface(ctx context.Context, interfaceID, ip string) error
	UpdateItems(ctx context.Context, updates []inventory.StatusUpdate) error
	UpdateTriggers(ctx context.Context, updates []inventory.StatusUpdate) error
	MassUpdateHostGroup(ctx context.Context, groupID string, hostIDs []string) error
	CountProblemTriggers(ctx context.Context, groupID, flag string) (int, error)
}

// MetricSender pushes trapper values.
type MetricSender interface {
	Send(ctx context.Context, metrics []inventory.Metric) (zabbix.SendResult, error)
}
