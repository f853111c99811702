package inventory

import (
	"testing"
	"time"
)

func TestParseLastBackup(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	got := ParseLastBackup("Owner: ops\nBackup Time: [01.02.2024 03:04:05]\n", loc)
	if got == nil {
		t.Fatalf("expected timestamp")
	}
	want := time.Date(2024, 2, 1, 3, 4, 5, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}

	for _, in := range []string{"", "no stamp here", "Backup Time: [garbage]"} {
		if got := ParseLastBackup(in, loc); got != nil {
			t.Fatalf("ParseLastBackup(%q)=%v want nil", in, got)
		}
	}
}

func TestGiBRound(t *testing.T) {
	d := Disk{Capacity: 10 << 30, FreeSpace: 4 << 30}
	if got := d.CapacityGB().String(); got != "10" {
		t.Fatalf("capacity=%s", got)
	}
	if got := d.UsedGB().String(); got != "6" {
		t.Fatalf("used=%s", got)
	}
	if got := GiBRound(1 << 29).String(); got != "0.5" {
		t.Fatalf("half=%s", got)
	}
}

func TestVirtualServerState(t *testing.T) {
	cases := []struct {
		vs   VirtualServer
		want LifecycleState
	}{
		{VirtualServer{}, StateActive},
		{VirtualServer{NewServer: true}, StateNew},
		{VirtualServer{NewServer: true, Deleted: true}, StateSoftDeletedPending},
		{VirtualServer{Deleted: true, DelConfirmed: true}, StateSoftDeletedConfirmed},
	}
	for _, c := range cases {
		if got := c.vs.State(); got != c.want {
			t.Fatalf("%+v: got %s want %s", c.vs, got, c.want)
		}
	}
}

func TestYesNo(t *testing.T) {
	if YesNo(true) != "Y" || YesNo(false) != "N" {
		t.Fatalf("YesNo encoding")
	}
	for in, want := range map[string]bool{"Y": true, "yes": true, " y ": true, "N": false, "": false, "true": false} {
		if got := ParseYesNo(in); got != want {
			t.Fatalf("ParseYesNo(%q)=%v", in, got)
		}
	}
}

func TestStatusFor(t *testing.T) {
	if StatusFor(true) != StatusEnabled || StatusFor(false) != StatusDisabled {
		t.Fatalf("status mapping")
	}
}
