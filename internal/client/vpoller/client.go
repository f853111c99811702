// Package vpoller fetches virtual machine inventory from a vPoller proxy.
package vpoller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"

	"vfzsync/internal/instrument"
	"vfzsync/internal/inventory"
	"vfzsync/internal/syncerr"
)

const system = "vpoller"

var (
	vmProperties = []string{
		"name",
		"config.instanceUuid",
		"config.hardware.numCPU",
		"config.hardware.memoryMB",
		"runtime.powerState",
		"config.annotation",
		"summary.storage.committed",
		"summary.storage.uncommitted",
		"summary.guest.hostName",
		"summary.config.guestFullName",
	}
	netProperties  = []string{"ipAddress"}
	diskProperties = []string{"diskPath", "capacity", "freeSpace", "freeSpacePercentage"}
)

// Request is one vPoller task.
type Request struct {
	Method     string   `json:"method"`
	Hostname   string   `json:"hostname"`
	Name       string   `json:"name,omitempty"`
	Key        string   `json:"key,omitempty"`
	Properties []string `json:"properties,omitempty"`
}

type response struct {
	Success int             `json:"success"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

type Client struct {
	Transport Transport
	Recorder  *instrument.Recorder
}

func NewClient(transport Transport, recorder *instrument.Recorder) *Client {
	return &Client{Transport: transport, Recorder: recorder}
}

// Run executes one task and returns its raw result.
func (c *Client) Run(ctx context.Context, req Request) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, syncerr.Rejected(system, req.Method, err)
	}
	var resp response
	err = c.Recorder.Call(ctx, system, req.Method, func(ctx context.Context) error {
		raw, err := c.Transport.Exchange(ctx, payload)
		if err != nil {
			return syncerr.Transport(system, req.Method, err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&resp); err != nil {
			return syncerr.Rejected(system, req.Method, fmt.Errorf("decode reply: %w", err))
		}
		if resp.Success != 0 {
			return syncerr.Rejected(system, req.Method, errors.New(resp.Msg))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Ping runs the about task to check connectivity to vCenter.
func (c *Client) Ping(ctx context.Context, vcHost string) error {
	_, err := c.Run(ctx, Request{Method: "about", Hostname: vcHost})
	return err
}

type vmRow struct {
	Name          string      `json:"name"`
	InstanceUUID  string      `json:"config.instanceUuid"`
	NumCPU        json.Number `json:"config.hardware.numCPU"`
	MemoryMB      json.Number `json:"config.hardware.memoryMB"`
	PowerState    string      `json:"runtime.powerState"`
	Annotation    string      `json:"config.annotation"`
	Committed     json.Number `json:"summary.storage.committed"`
	Uncommitted   json.Number `json:"summary.storage.uncommitted"`
	GuestHostName string      `json:"summary.guest.hostName"`
	GuestFullName string      `json:"summary.config.guestFullName"`
}

type diskRow struct {
	DiskPath  string      `json:"diskPath"`
	Capacity  json.Number `json:"capacity"`
	FreeSpace json.Number `json:"freeSpace"`
}

func numInt64(n json.Number) int64 {
	if n == "" {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

// Fetch returns every VM of vcHost. Any failed task aborts the fetch so a
// partial inventory never reaches the reconciler.
func (c *Client) Fetch(ctx context.Context, vcHost string) ([]inventory.VM, error) {
	names, err := c.discover(ctx, vcHost)
	if err != nil {
		return nil, err
	}
	out := make([]inventory.VM, 0, len(names))
	for _, name := range names {
		vm, err := c.fetchVM(ctx, vcHost, name)
		if err != nil {
			return nil, fmt.Errorf("vm %s: %w", name, err)
		}
		out = append(out, vm)
	}
	return out, nil
}

func (c *Client) discover(ctx context.Context, vcHost string) ([]string, error) {
	raw, err := c.Run(ctx, Request{Method: "vm.discover", Hostname: vcHost})
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Name string `json:"name"`
	}
	if err := decode(raw, &rows); err != nil {
		return nil, syncerr.Rejected(system, "vm.discover", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

func (c *Client) fetchVM(ctx context.Context, vcHost, name string) (inventory.VM, error) {
	raw, err := c.Run(ctx, Request{Method: "vm.get", Hostname: vcHost, Name: name, Properties: vmProperties})
	if err != nil {
		return inventory.VM{}, err
	}
	var rows []vmRow
	if err := decode(raw, &rows); err != nil || len(rows) == 0 {
		return inventory.VM{}, syncerr.Rejected(system, "vm.get", fmt.Errorf("unexpected result: %s", raw))
	}
	row := rows[0]
	vm := inventory.VM{
		InstanceUUID:       row.InstanceUUID,
		Name:               row.Name,
		NumCPU:             int(numInt64(row.NumCPU)),
		MemoryMB:           int(numInt64(row.MemoryMB)),
		PowerState:         row.PowerState,
		Annotation:         row.Annotation,
		GuestHostName:      row.GuestHostName,
		GuestFullName:      row.GuestFullName,
		StorageCommitted:   numInt64(row.Committed),
		StorageUncommitted: numInt64(row.Uncommitted),
		VCHost:             vcHost,
	}
	if vm.Name == "" {
		vm.Name = name
	}

	if vm.IPAddresses, err = c.fetchIPs(ctx, vcHost, name); err != nil {
		return inventory.VM{}, err
	}
	if vm.Disks, err = c.fetchDisks(ctx, vcHost, name); err != nil {
		return inventory.VM{}, err
	}
	return vm, nil
}

type netRow struct {
	Net []struct {
		IPAddress []string `json:"ipAddress"`
	} `json:"net"`
}

func (c *Client) fetchIPs(ctx context.Context, vcHost, name string) ([]string, error) {
	raw, err := c.Run(ctx, Request{Method: "vm.guest.net.get", Hostname: vcHost, Name: name, Properties: netProperties})
	if err != nil {
		return nil, err
	}
	var rows []netRow
	if err := decode(raw, &rows); err != nil {
		var single netRow
		if err := decode(raw, &single); err != nil {
			return nil, syncerr.Rejected(system, "vm.guest.net.get", err)
		}
		rows = []netRow{single}
	}
	var ips []string
	seen := map[string]bool{}
	for _, r := range rows {
		for _, n := range r.Net {
			for _, ip := range n.IPAddress {
				if IsIPv4(ip) && !seen[ip] {
					seen[ip] = true
					ips = append(ips, ip)
				}
			}
		}
	}
	return ips, nil
}

type diskSet struct {
	Disk json.RawMessage `json:"disk"`
}

func (c *Client) fetchDisks(ctx context.Context, vcHost, name string) ([]inventory.Disk, error) {
	raw, err := c.Run(ctx, Request{Method: "vm.disk.discover", Hostname: vcHost, Name: name})
	if err != nil {
		return nil, err
	}
	var sets []diskSet
	if err := decode(raw, &sets); err != nil {
		return nil, syncerr.Rejected(system, "vm.disk.discover", err)
	}
	if len(sets) == 0 {
		return nil, nil
	}
	var found []diskRow
	if err := decode(sets[0].Disk, &found); err != nil {
		return nil, syncerr.Rejected(system, "vm.disk.discover", err)
	}

	disks := make([]inventory.Disk, 0, len(found))
	for _, d := range found {
		raw, err := c.Run(ctx, Request{
			Method:     "vm.disk.get",
			Hostname:   vcHost,
			Name:       name,
			Key:        d.DiskPath,
			Properties: diskProperties,
		})
		if err != nil {
			return nil, err
		}
		var got []struct {
			Disk diskRow `json:"disk"`
		}
		if err := decode(raw, &got); err != nil || len(got) == 0 {
			return nil, syncerr.Rejected(system, "vm.disk.get", fmt.Errorf("unexpected result: %s", raw))
		}
		path := got[0].Disk.DiskPath
		if path == "" {
			path = d.DiskPath
		}
		disks = append(disks, inventory.Disk{
			Path:      path,
			Capacity:  numInt64(got[0].Disk.Capacity),
			FreeSpace: numInt64(got[0].Disk.FreeSpace),
		})
	}
	return disks, nil
}

var ipv4Pattern = regexp.MustCompile(`^(\d+\.){3}\d+$`)

// IsIPv4 reports whether s is a dotted-quad IPv4 address.
func IsIPv4(s string) bool {
	if !ipv4Pattern.MatchString(s) {
		return false
	}
	return net.ParseIP(s) != nil
}

func decode(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
