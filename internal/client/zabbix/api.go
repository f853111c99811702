package zabbix

import (
	"context"
	"fmt"
	"strconv"

	"vfzsync/internal/inventory"
	"vfzsync/internal/syncerr"
)

const (
	interfaceTypeSNMP = 2
	snmpPort          = "161"
	snmpVersion2      = 2
)

// HostGroupID returns the id of the named host group, or "" when missing.
func (c *Client) HostGroupID(ctx context.Context, name string) (string, error) {
	var groups []struct {
		GroupID flexString `json:"groupid"`
	}
	params := map[string]any{
		"output": []string{"groupid"},
		"filter": map[string]any{"name": []string{name}},
	}
	if err := c.call(ctx, "hostgroup.get", params, &groups); err != nil {
		return "", err
	}
	if len(groups) == 0 {
		return "", nil
	}
	return string(groups[0].GroupID), nil
}

func (c *Client) CreateHostGroup(ctx context.Context, name string) (string, error) {
	var res struct {
		GroupIDs []flexString `json:"groupids"`
	}
	if err := c.call(ctx, "hostgroup.create", map[string]any{"name": name}, &res); err != nil {
		return "", err
	}
	if len(res.GroupIDs) == 0 {
		return "", syncerr.Rejected(system, "hostgroup.create", fmt.Errorf("no group id returned for %q", name))
	}
	return string(res.GroupIDs[0]), nil
}

func (c *Client) TemplateID(ctx context.Context, name string) (string, error) {
	var rows []struct {
		TemplateID flexString `json:"templateid"`
	}
	params := map[string]any{
		"output": []string{"templateid"},
		"filter": map[string]any{"host": []string{name}},
	}
	if err := c.call(ctx, "template.get", params, &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("template %q: %w", name, syncerr.ErrNotFound)
	}
	return string(rows[0].TemplateID), nil
}

func (c *Client) ProxyID(ctx context.Context, name string) (string, error) {
	var rows []struct {
		ProxyID flexString `json:"proxyid"`
	}
	params := map[string]any{
		"output": []string{"proxyid"},
		"filter": map[string]any{"host": []string{name}},
	}
	if err := c.call(ctx, "proxy.get", params, &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("proxy %q: %w", name, syncerr.ErrNotFound)
	}
	return string(rows[0].ProxyID), nil
}

type hostRow struct {
	HostID     flexString `json:"hostid"`
	Host       string     `json:"host"`
	Name       string     `json:"name"`
	Status     flexInt    `json:"status"`
	Interfaces []struct {
		InterfaceID flexString `json:"interfaceid"`
		IP          string     `json:"ip"`
		Port        string     `json:"port"`
	} `json:"interfaces"`
	Macros []inventory.Macro `json:"macros"`
}

// Hosts returns the hosts of a group with interfaces and macros.
func (c *Client) Hosts(ctx context.Context, groupID string) ([]inventory.Host, error) {
	var rows []hostRow
	params := map[string]any{
		"output":           []string{"hostid", "host", "name", "status", "description"},
		"groupids":         groupID,
		"selectInterfaces": []string{"interfaceid", "ip", "port", "type"},
		"selectMacros":     "extend",
	}
	if err := c.call(ctx, "host.get", params, &rows); err != nil {
		return nil, err
	}
	out := make([]inventory.Host, 0, len(rows))
	for _, r := range rows {
		h := inventory.Host{
			ID:     string(r.HostID),
			Host:   r.Host,
			Name:   r.Name,
			Status: int(r.Status),
			Macros: r.Macros,
		}
		if len(r.Interfaces) > 0 {
			h.Interface = &inventory.Interface{
				ID:   string(r.Interfaces[0].InterfaceID),
				IP:   r.Interfaces[0].IP,
				Port: r.Interfaces[0].Port,
			}
		}
		out = append(out, h)
	}
	return out, nil
}

type triggerRow struct {
	TriggerID   flexString      `json:"triggerid"`
	Description string          `json:"description"`
	Status      flexInt         `json:"status"`
	Value       flexInt         `json:"value"`
	Tags        []inventory.Tag `json:"tags"`
	Hosts       []struct {
		HostID flexString `json:"hostid"`
		Host   string     `json:"host"`
	} `json:"hosts"`
}

// Triggers returns the triggers of a group with tags and owning host.
func (c *Client) Triggers(ctx context.Context, groupID string) ([]inventory.Trigger, error) {
	var rows []triggerRow
	params := map[string]any{
		"output":      []string{"triggerid", "description", "status", "value"},
		"groupids":    groupID,
		"selectTags":  "extend",
		"selectHosts": []string{"hostid", "host"},
	}
	if err := c.call(ctx, "trigger.get", params, &rows); err != nil {
		return nil, err
	}
	out := make([]inventory.Trigger, 0, len(rows))
	for _, r := range rows {
		t := inventory.Trigger{
			ID:          string(r.TriggerID),
			Description: r.Description,
			Status:      int(r.Status),
			Value:       int(r.Value),
			Tags:        r.Tags,
		}
		if len(r.Hosts) > 0 {
			t.HostID = string(r.Hosts[0].HostID)
			t.HostName = r.Hosts[0].Host
		}
		out = append(out, t)
	}
	return out, nil
}

// Items returns the items of a group with their application names.
func (c *Client) Items(ctx context.Context, groupID string) ([]inventory.Item, error) {
	var rows []struct {
		ItemID       flexString `json:"itemid"`
		Key          string     `json:"key_"`
		Status       flexInt    `json:"status"`
		Applications []struct {
			Name string `json:"name"`
		} `json:"applications"`
		Hosts []struct {
			HostID flexString `json:"hostid"`
		} `json:"hosts"`
	}
	params := map[string]any{
		"output":             []string{"itemid", "key_", "status"},
		"groupids":           groupID,
		"selectApplications": "extend",
		"selectHosts":        []string{"hostid"},
	}
	if err := c.call(ctx, "item.get", params, &rows); err != nil {
		return nil, err
	}
	out := make([]inventory.Item, 0, len(rows))
	for _, r := range rows {
		it := inventory.Item{ID: string(r.ItemID), Key: r.Key, Status: int(r.Status)}
		for _, app := range r.Applications {
			it.Applications = append(it.Applications, app.Name)
		}
		if len(r.Hosts) > 0 {
			it.HostID = string(r.Hosts[0].HostID)
		}
		out = append(out, it)
	}
	return out, nil
}

// HostsWithObjects returns the hosts of a group with their flag triggers
// and items attached.
func (c *Client) HostsWithObjects(ctx context.Context, groupID string) ([]inventory.Host, error) {
	hosts, err := c.Hosts(ctx, groupID)
	if err != nil {
		return nil, err
	}
	triggers, err := c.Triggers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	items, err := c.Items(ctx, groupID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*inventory.Host, len(hosts))
	for i := range hosts {
		byID[hosts[i].ID] = &hosts[i]
	}
	for _, t := range triggers {
		if h, ok := byID[t.HostID]; ok {
			h.Triggers = append(h.Triggers, t)
		}
	}
	for _, it := range items {
		if h, ok := byID[it.HostID]; ok {
			h.Items = append(h.Items, it)
		}
	}
	return hosts, nil
}

// CreateHost creates an SNMPv2 host and returns its id.
func (c *Client) CreateHost(ctx context.Context, spec inventory.HostSpec) (string, error) {
	params := map[string]any{
		"host":   spec.Host,
		"name":   spec.Name,
		"groups": []map[string]string{{"groupid": spec.GroupID}},
		"interfaces": []map[string]any{{
			"type":  interfaceTypeSNMP,
			"main":  1,
			"useip": 1,
			"ip":    spec.IP,
			"dns":   "",
			"port":  snmpPort,
			"details": map[string]any{
				"version":   snmpVersion2,
				"community": inventory.MacroCommunity,
				"bulk":      0,
			},
		}},
		"macros":    spec.Macros,
		"templates": []map[string]string{{"templateid": spec.TemplateID}},
	}
	if spec.ProxyID != "" {
		params["proxy_hostid"] = spec.ProxyID
	}
	var res struct {
		HostIDs []flexString `json:"hostids"`
	}
	if err := c.call(ctx, "host.create", params, &res); err != nil {
		return "", err
	}
	if len(res.HostIDs) == 0 {
		return "", syncerr.Rejected(system, "host.create", fmt.Errorf("no host id returned for %q", spec.Host))
	}
	return string(res.HostIDs[0]), nil
}

func (c *Client) CreateApplication(ctx context.Context, hostID, name string) error {
	return c.call(ctx, "application.create", map[string]any{"name": name, "hostid": hostID}, nil)
}

func (c *Client) DeleteHost(ctx context.Context, hostID string) error {
	return c.call(ctx, "host.delete", []string{hostID}, nil)
}

// UpdateHost applies fields (name, macros, status) to one host.
func (c *Client) UpdateHost(ctx context.Context, hostID string, fields map[string]any) error {
	params := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		params[k] = v
	}
	params["hostid"] = hostID
	return c.call(ctx, "host.update", params, nil)
}

func (c *Client) UpdateInterface(ctx context.Context, interfaceID, ip string) error {
	return c.call(ctx, "hostinterface.update", map[string]any{"interfaceid": interfaceID, "ip": ip}, nil)
}

func (c *Client) UpdateItems(ctx context.Context, updates []inventory.StatusUpdate) error {
	params := make([]map[string]any, 0, len(updates))
	for _, u := range updates {
		params = append(params, map[string]any{"itemid": u.ID, "status": u.Status})
	}
	return c.call(ctx, "item.update", params, nil)
}

func (c *Client) UpdateTriggers(ctx context.Context, updates []inventory.StatusUpdate) error {
	params := make([]map[string]any, 0, len(updates))
	for _, u := range updates {
		params = append(params, map[string]any{"triggerid": u.ID, "status": u.Status})
	}
	return c.call(ctx, "trigger.update", params, nil)
}

// MassUpdateHostGroup replaces the member hosts of a group.
func (c *Client) MassUpdateHostGroup(ctx context.Context, groupID string, hostIDs []string) error {
	hosts := make([]map[string]string, 0, len(hostIDs))
	for _, id := range hostIDs {
		hosts = append(hosts, map[string]string{"hostid": id})
	}
	params := map[string]any{
		"groups": []map[string]string{{"groupid": groupID}},
		"hosts":  hosts,
	}
	return c.call(ctx, "hostgroup.massupdate", params, nil)
}

// CountProblemTriggers counts enabled triggers in problem state tagged with
// the given flag.
func (c *Client) CountProblemTriggers(ctx context.Context, groupID, flag string) (int, error) {
	params := map[string]any{
		"groupids":    groupID,
		"countOutput": true,
		"filter":      map[string]any{"value": 1, "status": 0},
		"tags":        []map[string]any{{"tag": inventory.FlagTag, "value": flag, "operator": 1}},
	}
	var raw flexString
	if err := c.call(ctx, "trigger.get", params, &raw); err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, syncerr.Rejected(system, "trigger.get", fmt.Errorf("count %q: %w", raw, err))
	}
	return n, nil
}
