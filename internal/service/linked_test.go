package service

import (
	"context"
	"strings"
	"testing"

	"vfzsync/internal/inventory"
	"vfzsync/internal/transform"
)

func loadServer(t *testing.T, cmdb *stubCMDB, elid string) inventory.VirtualServer {
	t.Helper()
	vs := cmdb.server(elid)
	vs.Linked = map[inventory.LinkedKind]map[string]inventory.LinkedRecord{}
	for _, class := range inventory.LinkedClasses {
		records, err := cmdb.ListRelated(context.Background(), class, elid)
		if err != nil {
			t.Fatalf("list related: %v", err)
		}
		vs.Linked[class.Kind] = records
	}
	return vs
}

func TestLinkedEntitySynchronizer_Converges(t *testing.T) {
	cmdb := newStubCMDB()
	elid := cmdb.seedServer(inventory.VirtualServer{UUID: "u1", VisibleID: "web01"})
	a := cmdb.seedLinked(elid, inventory.IPAddressClass, map[string]any{inventory.AttrIPAddress: "10.0.0.1"})
	cmdb.seedLinked(elid, inventory.IPAddressClass, map[string]any{inventory.AttrIPAddress: "10.0.0.2"})

	vs := loadServer(t, cmdb, elid)
	vm := inventory.VM{InstanceUUID: "u1", IPAddresses: []string{"10.0.0.2", "10.0.0.3"}}
	s := &LinkedEntitySynchronizer{CMDB: cmdb, Tables: transform.DefaultTables()}

	res := s.Sync(context.Background(), &vs, &vm, false)
	if res.Created != 1 || res.Deleted != 1 || res.Failed != 0 {
		t.Fatalf("result=%+v", res)
	}
	// No disks reported: the filesystem class is left alone.
	if res.Skipped != 1 {
		t.Fatalf("skipped=%d want 1", res.Skipped)
	}
	if _, ok := cmdb.entities[a]; ok {
		t.Fatalf("stale record %s not deleted", a)
	}

	vs = loadServer(t, cmdb, elid)
	ips := vs.LinkedOf(inventory.LinkedIPAddress)
	if len(ips) != 2 {
		t.Fatalf("ips=%v", ips)
	}
	for _, key := range []string{"10.0.0.2", "10.0.0.3"} {
		if _, ok := ips[key]; !ok {
			t.Fatalf("missing %s in %v", key, ips)
		}
	}

	cmdb.writes = nil
	res = s.Sync(context.Background(), &vs, &vm, false)
	if res.Created+res.Updated+res.Deleted != 0 || len(cmdb.writes) != 0 {
		t.Fatalf("second sync not a no-op: %+v %v", res, cmdb.writes)
	}
}

func TestLinkedEntitySynchronizer_UpdatesFilesystem(t *testing.T) {
	cmdb := newStubCMDB()
	elid := cmdb.seedServer(inventory.VirtualServer{UUID: "u1", VisibleID: "web01"})
	fs := cmdb.seedLinked(elid, inventory.FilesystemClass, map[string]any{
		inventory.AttrMountpoint: "/data",
		inventory.AttrCapacityGB: "10",
		inventory.AttrUsedGB:     "1",
	})

	vs := loadServer(t, cmdb, elid)
	vm := inventory.VM{Disks: []inventory.Disk{{Path: "/data", Capacity: 10 * gib, FreeSpace: 4 * gib}}}
	s := &LinkedEntitySynchronizer{CMDB: cmdb, Tables: transform.DefaultTables()}

	res := s.Sync(context.Background(), &vs, &vm, false)
	if res.Updated != 1 || res.Created != 0 {
		t.Fatalf("result=%+v", res)
	}
	rec := inventory.LinkedRecordFromAttributes(inventory.FilesystemClass, cmdb.entities[fs].attrs, nil)
	if rec.UsedGB == nil || rec.UsedGB.String() != "6" {
		t.Fatalf("used=%v want 6", rec.UsedGB)
	}
	if res.CapacityGB.String() != "10" || res.UsedGB.String() != "6" {
		t.Fatalf("totals capacity=%s used=%s", res.CapacityGB, res.UsedGB)
	}
}

func TestLinkedEntitySynchronizer_DeletingParentCleansAll(t *testing.T) {
	cmdb := newStubCMDB()
	elid := cmdb.seedServer(inventory.VirtualServer{UUID: "u1"})
	cmdb.seedLinked(elid, inventory.IPAddressClass, map[string]any{inventory.AttrIPAddress: "10.0.0.1"})
	cmdb.seedLinked(elid, inventory.FilesystemClass, map[string]any{inventory.AttrMountpoint: "/"})

	vs := loadServer(t, cmdb, elid)
	s := &LinkedEntitySynchronizer{CMDB: cmdb, Tables: transform.DefaultTables()}
	res := s.Sync(context.Background(), &vs, nil, true)
	if res.Deleted != 2 || res.Skipped != 0 {
		t.Fatalf("result=%+v", res)
	}
}

func TestLinkedEntitySynchronizer_LinkFailureCounted(t *testing.T) {
	cmdb := newStubCMDB()
	elid := cmdb.seedServer(inventory.VirtualServer{UUID: "u1"})
	cmdb.fail = []string{"link:"}

	vs := loadServer(t, cmdb, elid)
	vm := inventory.VM{IPAddresses: []string{"10.0.0.1", "10.0.0.2"}}
	s := &LinkedEntitySynchronizer{CMDB: cmdb, Tables: transform.DefaultTables()}
	res := s.Sync(context.Background(), &vs, &vm, false)
	if res.Failed != 2 || res.Created != 0 {
		t.Fatalf("result=%+v", res)
	}
	for id, e := range cmdb.entities {
		if e.typ == inventory.IPAddressClass.Type {
			t.Fatalf("unlinked record %s left behind", id)
		}
	}
	deletes := 0
	for _, w := range cmdb.writes {
		if strings.HasPrefix(w, "delete:"+inventory.IPAddressClass.Type.Name+":") {
			deletes++
		}
	}
	if deletes != 2 {
		t.Fatalf("writes=%v want two rollback deletes", cmdb.writes)
	}
}

func TestLinkedEntitySynchronizer_UpdateFailureIsolated(t *testing.T) {
	cmdb := newStubCMDB()
	elid := cmdb.seedServer(inventory.VirtualServer{UUID: "u1", VisibleID: "web01"})
	a := cmdb.seedLinked(elid, inventory.FilesystemClass, map[string]any{
		inventory.AttrMountpoint: "/a",
		inventory.AttrCapacityGB: "10",
		inventory.AttrUsedGB:     "1",
	})
	b := cmdb.seedLinked(elid, inventory.FilesystemClass, map[string]any{
		inventory.AttrMountpoint: "/b",
		inventory.AttrCapacityGB: "10",
		inventory.AttrUsedGB:     "1",
	})
	cmdb.fail = []string{"update:" + inventory.FilesystemClass.Type.Name + ":" + a}

	vs := loadServer(t, cmdb, elid)
	vm := inventory.VM{Disks: []inventory.Disk{
		{Path: "/a", Capacity: 10 * gib, FreeSpace: 4 * gib},
		{Path: "/b", Capacity: 10 * gib, FreeSpace: 4 * gib},
	}}
	s := &LinkedEntitySynchronizer{CMDB: cmdb, Tables: transform.DefaultTables()}
	res := s.Sync(context.Background(), &vs, &vm, false)

	if res.Failed != 1 || res.Updated != 1 {
		t.Fatalf("result=%+v", res)
	}
	got := inventory.LinkedRecordFromAttributes(inventory.FilesystemClass, cmdb.entities[b].attrs, nil)
	if got.UsedGB == nil || got.UsedGB.String() != "6" {
		t.Fatalf("sibling used=%v want 6", got.UsedGB)
	}
	kept := inventory.LinkedRecordFromAttributes(inventory.FilesystemClass, cmdb.entities[a].attrs, nil)
	if kept.UsedGB == nil || kept.UsedGB.String() != "1" {
		t.Fatalf("failed update applied: used=%v", kept.UsedGB)
	}
}

func TestLinkedEntitySynchronizer_FilesystemReplacement(t *testing.T) {
	cmdb := newStubCMDB()
	elid := cmdb.seedServer(inventory.VirtualServer{UUID: "u1", VisibleID: "web01"})
	a := cmdb.seedLinked(elid, inventory.FilesystemClass, map[string]any{
		inventory.AttrMountpoint: "/a",
		inventory.AttrCapacityGB: "10",
		inventory.AttrUsedGB:     "1",
	})
	b := cmdb.seedLinked(elid, inventory.FilesystemClass, map[string]any{
		inventory.AttrMountpoint: "/b",
		inventory.AttrCapacityGB: "5",
		inventory.AttrUsedGB:     "2",
	})

	vs := loadServer(t, cmdb, elid)
	vm := inventory.VM{Disks: []inventory.Disk{
		{Path: "/b", Capacity: 5 * gib, FreeSpace: 3 * gib},
		{Path: "/c", Capacity: 8 * gib, FreeSpace: 8 * gib},
	}}
	s := &LinkedEntitySynchronizer{CMDB: cmdb, Tables: transform.DefaultTables()}
	res := s.Sync(context.Background(), &vs, &vm, false)

	if res.Created != 1 || res.Deleted != 1 || res.Updated != 0 || res.Failed != 0 {
		t.Fatalf("result=%+v", res)
	}
	if _, ok := cmdb.entities[a]; ok {
		t.Fatalf("/a not deleted")
	}
	for _, w := range cmdb.writes {
		if strings.HasSuffix(w, ":"+b) {
			t.Fatalf("/b touched: %s", w)
		}
	}

	fs := loadServer(t, cmdb, elid).LinkedOf(inventory.LinkedFilesystem)
	if len(fs) != 2 {
		t.Fatalf("filesystems=%v", fs)
	}
	if fs["/b"].Elid != b {
		t.Fatalf("/b elid=%s want %s", fs["/b"].Elid, b)
	}
	c, ok := fs["/c"]
	if !ok || c.CapacityGB == nil || c.CapacityGB.String() != "8" {
		t.Fatalf("/c not created and linked: %+v", fs)
	}
}

func TestLinkedEntitySynchronizer_DeleteFailureDetaches(t *testing.T) {
	cmdb := newStubCMDB()
	elid := cmdb.seedServer(inventory.VirtualServer{UUID: "u1", VisibleID: "web01"})
	stale := cmdb.seedLinked(elid, inventory.IPAddressClass, map[string]any{inventory.AttrIPAddress: "10.0.0.1"})
	cmdb.seedLinked(elid, inventory.IPAddressClass, map[string]any{inventory.AttrIPAddress: "10.0.0.2"})
	cmdb.fail = []string{"delete:"}

	vs := loadServer(t, cmdb, elid)
	vm := inventory.VM{IPAddresses: []string{"10.0.0.2"}}
	s := &LinkedEntitySynchronizer{CMDB: cmdb, Tables: transform.DefaultTables()}
	res := s.Sync(context.Background(), &vs, &vm, false)

	if res.Failed != 1 || res.Deleted != 0 {
		t.Fatalf("result=%+v", res)
	}
	want := "unlink:" + inventory.IPAddressClass.Relation + ":L" + stale
	if len(cmdb.writes) != 1 || cmdb.writes[0] != want {
		t.Fatalf("writes=%v want [%s]", cmdb.writes, want)
	}
	ips := loadServer(t, cmdb, elid).LinkedOf(inventory.LinkedIPAddress)
	if _, ok := ips["10.0.0.1"]; ok || len(ips) != 1 {
		t.Fatalf("ips=%v want only 10.0.0.2", ips)
	}
}
