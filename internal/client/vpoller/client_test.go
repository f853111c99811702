package vpoller

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"vfzsync/internal/syncerr"
)

type fakeTransport struct {
	replies map[string]any
	fail    string
	calls   []Request
}

func (f *fakeTransport) Exchange(_ context.Context, payload []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	f.calls = append(f.calls, req)
	if req.Method == f.fail {
		return nil, errors.New("connection refused")
	}
	key := req.Method
	if req.Key != "" {
		key += ":" + req.Key
	}
	res, ok := f.replies[key]
	if !ok {
		return json.Marshal(map[string]any{"success": 1, "msg": "unknown " + key})
	}
	return json.Marshal(map[string]any{"success": 0, "msg": "ok", "result": res})
}

func newFake() *fakeTransport {
	return &fakeTransport{replies: map[string]any{
		"vm.discover": []map[string]any{{"name": "web01"}},
		"vm.get": []map[string]any{{
			"name":                         "web01",
			"config.instanceUuid":          "u-1",
			"config.hardware.numCPU":       2,
			"config.hardware.memoryMB":     4096,
			"runtime.powerState":           "poweredOn",
			"config.annotation":            "Time: [01.02.2024 03:04:05]",
			"summary.storage.committed":    1 << 30,
			"summary.storage.uncommitted":  1 << 29,
			"summary.guest.hostName":       "web01.local",
			"summary.config.guestFullName": "Debian",
		}},
		"vm.guest.net.get": map[string]any{"net": []map[string]any{
			{"ipAddress": []string{"10.0.0.5", "fe80::1"}},
			{"ipAddress": []string{"10.0.0.5", "192.168.1.9"}},
		}},
		"vm.disk.discover": []map[string]any{{"disk": []map[string]any{{"diskPath": "/"}}}},
		"vm.disk.get:/": []map[string]any{{"disk": map[string]any{
			"diskPath": "/", "capacity": 10 << 30, "freeSpace": 4 << 30,
		}}},
	}}
}

func TestClient_Fetch(t *testing.T) {
	f := newFake()
	c := NewClient(f, nil)
	vms, err := c.Fetch(context.Background(), "vc1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(vms) != 1 {
		t.Fatalf("len=%d", len(vms))
	}
	vm := vms[0]
	if vm.InstanceUUID != "u-1" || vm.NumCPU != 2 || vm.VCHost != "vc1" {
		t.Fatalf("vm=%+v", vm)
	}
	if len(vm.IPAddresses) != 2 || vm.IPAddresses[0] != "10.0.0.5" || vm.IPAddresses[1] != "192.168.1.9" {
		t.Fatalf("ips=%v", vm.IPAddresses)
	}
	if len(vm.Disks) != 1 || vm.Disks[0].UsedGB().String() != "6" {
		t.Fatalf("disks=%+v", vm.Disks)
	}
	if vm.StorageProvisioned() != 3<<29 {
		t.Fatalf("provisioned=%d", vm.StorageProvisioned())
	}
	if f.calls[0].Hostname != "vc1" {
		t.Fatalf("hostname=%q", f.calls[0].Hostname)
	}
}

func TestClient_FetchAbortsOnFailure(t *testing.T) {
	f := newFake()
	f.fail = "vm.disk.get"
	c := NewClient(f, nil)
	vms, err := c.Fetch(context.Background(), "vc1")
	if err == nil || vms != nil {
		t.Fatalf("vms=%v err=%v want abort", vms, err)
	}
	if !syncerr.IsTransport(err) {
		t.Fatalf("err=%v want transport", err)
	}
}

func TestClient_RejectedTask(t *testing.T) {
	c := NewClient(&fakeTransport{replies: map[string]any{}}, nil)
	if err := c.Ping(context.Background(), "vc1"); !syncerr.IsRejected(err) {
		t.Fatalf("err=%v want rejected", err)
	}
}

func TestIsIPv4(t *testing.T) {
	for ip, want := range map[string]bool{
		"10.0.0.1":       true,
		"fe80::1":        false,
		"::ffff:1.2.3.4": false,
		"999.1.1.1":      false,
	} {
		if got := IsIPv4(ip); got != want {
			t.Fatalf("IsIPv4(%q)=%v want %v", ip, got, want)
		}
	}
}
