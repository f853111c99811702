package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vfzsync/internal/inventory"
)

// StatsService reports pending operator work and active flag problems.
type StatsService struct {
	CMDB      CMDBClient
	Zabbix    MonitoringClient
	VCHost    string
	HostGroup string
	Flags     []string
	Logger    *zap.Logger
}

type Stats struct {
	Datasource string         `json:"datasource"`
	Servers    int            `json:"servers"`
	New        int            `json:"vs_new"`
	Deleted    int            `json:"vs_deleted"`
	Problems   map[string]int `json:"problems,omitempty"`
}

func (s *StatsService) Stats(ctx context.Context) (Stats, error) {
	out := Stats{Datasource: s.VCHost}
	servers, err := s.CMDB.ListVirtualServers(ctx, inventory.Restrictions{
		inventory.AttrDatasource: inventory.Eq(s.VCHost),
	})
	if err != nil {
		return out, fmt.Errorf("fetch virtual servers: %w", err)
	}
	out.Servers = len(servers)
	for _, vs := range servers {
		switch vs.State() {
		case inventory.StateNew:
			out.New++
		case inventory.StateSoftDeletedPending:
			out.Deleted++
		}
	}

	if s.Zabbix == nil {
		return out, nil
	}
	groupID, err := s.Zabbix.HostGroupID(ctx, s.HostGroup)
	if err != nil {
		return out, fmt.Errorf("host group %q: %w", s.HostGroup, err)
	}
	if groupID == "" {
		nopIfNil(s.Logger).Warn("host group missing, no problem counts", zap.String("hostgroup", s.HostGroup))
		return out, nil
	}
	flags := s.Flags
	if len(flags) == 0 {
		flags = inventory.DefaultCapabilityFlags
	}
	out.Problems = make(map[string]int, len(flags))
	for _, flag := range flags {
		n, err := s.Zabbix.CountProblemTriggers(ctx, groupID, flag)
		if err != nil {
			return out, fmt.Errorf("count problems for %s: %w", flag, err)
		}
		out.Problems[flag] = n
	}
	return out, nil
}
