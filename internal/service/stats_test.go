package service

import (
	"context"
	"testing"

	"vfzsync/internal/inventory"
)

func TestStats(t *testing.T) {
	cmdb := newStubCMDB()
	cmdb.seedServer(inventory.VirtualServer{UUID: "u1", Datasource: "vc1", NewServer: true})
	cmdb.seedServer(inventory.VirtualServer{UUID: "u2", Datasource: "vc1", Deleted: true})
	cmdb.seedServer(inventory.VirtualServer{UUID: "u3", Datasource: "vc1", Deleted: true, DelConfirmed: true})
	cmdb.seedServer(inventory.VirtualServer{UUID: "u4", Datasource: "vc1"})
	cmdb.seedServer(inventory.VirtualServer{UUID: "u5", Datasource: "vc2", NewServer: true})

	zbx := newStubZabbix()
	zbx.groups["FNT"] = "G0"
	zbx.problems = map[string]int{inventory.FlagMonitoring: 3}

	s := &StatsService{
		CMDB:      cmdb,
		Zabbix:    zbx,
		VCHost:    "vc1",
		HostGroup: "FNT",
		Flags:     []string{inventory.FlagMonitoring, inventory.FlagBackupNeeded},
	}
	got, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got.Servers != 4 || got.New != 1 || got.Deleted != 1 {
		t.Fatalf("stats=%+v", got)
	}
	if got.Problems[inventory.FlagMonitoring] != 3 || got.Problems[inventory.FlagBackupNeeded] != 0 {
		t.Fatalf("problems=%v", got.Problems)
	}
}

func TestStats_WithoutHostGroup(t *testing.T) {
	s := &StatsService{CMDB: newStubCMDB(), Zabbix: newStubZabbix(), VCHost: "vc1", HostGroup: "FNT"}
	got, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got.Problems != nil {
		t.Fatalf("problems=%v", got.Problems)
	}
}
