package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"vfzsync/internal/client/zabbix"
	"vfzsync/internal/inventory"
	"vfzsync/internal/models"
	"vfzsync/internal/repository"
)

var errStub = errors.New("stub failure")

type stubSource struct {
	vms []inventory.VM
	err error
}

func (s *stubSource) Fetch(_ context.Context, _ string) ([]inventory.VM, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]inventory.VM, len(s.vms))
	copy(out, s.vms)
	return out, nil
}

type stubEntity struct {
	typ   inventory.EntityType
	attrs map[string]any
}

// stubCMDB is an in-memory CMDB. Write calls are journaled in writes.
type stubCMDB struct {
	seq      int
	entities map[string]*stubEntity
	// links maps vs elid -> kind -> linked elids.
	links  map[string]map[inventory.LinkedKind][]string
	writes []string
	// fail makes a write fail when its journal entry has this prefix.
	fail    []string
	listErr error
}

func newStubCMDB() *stubCMDB {
	return &stubCMDB{
		entities: map[string]*stubEntity{},
		links:    map[string]map[inventory.LinkedKind][]string{},
	}
}

func (c *stubCMDB) failing(entry string) bool {
	for _, f := range c.fail {
		if strings.HasPrefix(entry, f) {
			return true
		}
	}
	return false
}

func (c *stubCMDB) journal(entry string) error {
	if c.failing(entry) {
		return errStub
	}
	c.writes = append(c.writes, entry)
	return nil
}

// seedServer stores a virtual server and returns its elid.
func (c *stubCMDB) seedServer(vs inventory.VirtualServer) string {
	c.seq++
	elid := fmt.Sprintf("E%d", c.seq)
	attrs := vs.Attributes()
	attrs[inventory.AttrElid] = elid
	c.entities[elid] = &stubEntity{typ: inventory.VirtualServerType, attrs: attrs}
	return elid
}

func (c *stubCMDB) seedLinked(vsElid string, class inventory.LinkedClass, attrs map[string]any) string {
	c.seq++
	elid := fmt.Sprintf("E%d", c.seq)
	copied := map[string]any{inventory.AttrElid: elid}
	for k, v := range attrs {
		copied[k] = v
	}
	c.entities[elid] = &stubEntity{typ: class.Type, attrs: copied}
	if c.links[vsElid] == nil {
		c.links[vsElid] = map[inventory.LinkedKind][]string{}
	}
	c.links[vsElid][class.Kind] = append(c.links[vsElid][class.Kind], elid)
	return elid
}

func (c *stubCMDB) server(elid string) inventory.VirtualServer {
	e := c.entities[elid]
	if e == nil {
		return inventory.VirtualServer{}
	}
	return inventory.VirtualServerFromAttributes(e.attrs)
}

func (c *stubCMDB) serverByUUID(uuid string) (inventory.VirtualServer, bool) {
	for _, e := range c.entities {
		if e.typ == inventory.VirtualServerType && e.attrs[inventory.AttrUUID] == uuid {
			return inventory.VirtualServerFromAttributes(e.attrs), true
		}
	}
	return inventory.VirtualServer{}, false
}

func (c *stubCMDB) set(elid, attr string, value any) {
	c.entities[elid].attrs[attr] = value
}

func matches(attrs map[string]any, restrictions inventory.Restrictions) bool {
	for name, r := range restrictions {
		got := fmt.Sprint(attrs[name])
		if b, ok := attrs[name].(bool); ok {
			got = inventory.YesNo(b)
		}
		if attrs[name] == nil {
			got = ""
		}
		if got != r.Value {
			return false
		}
	}
	return true
}

func (c *stubCMDB) ListVirtualServers(_ context.Context, restrictions inventory.Restrictions) ([]inventory.VirtualServer, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	var elids []string
	for elid, e := range c.entities {
		if e.typ == inventory.VirtualServerType && matches(e.attrs, restrictions) {
			elids = append(elids, elid)
		}
	}
	sort.Strings(elids)
	out := make([]inventory.VirtualServer, 0, len(elids))
	for _, elid := range elids {
		out = append(out, c.server(elid))
	}
	return out, nil
}

func (c *stubCMDB) ListRelated(_ context.Context, class inventory.LinkedClass, vsElid string) (map[string]inventory.LinkedRecord, error) {
	out := map[string]inventory.LinkedRecord{}
	for _, elid := range c.links[vsElid][class.Kind] {
		e := c.entities[elid]
		if e == nil {
			continue
		}
		rec := inventory.LinkedRecordFromAttributes(class, e.attrs, map[string]any{inventory.AttrElid: "L" + elid})
		out[rec.Key] = rec
	}
	return out, nil
}

func (c *stubCMDB) Create(_ context.Context, t inventory.EntityType, attrs map[string]any) (string, error) {
	key := attrs[inventory.AttrVisibleID]
	if key == nil {
		key = attrs[inventory.AttrIPAddress]
	}
	if key == nil {
		key = attrs[inventory.AttrMountpoint]
	}
	if err := c.journal(fmt.Sprintf("create:%s:%v", t.Name, key)); err != nil {
		return "", err
	}
	c.seq++
	elid := fmt.Sprintf("E%d", c.seq)
	copied := map[string]any{inventory.AttrElid: elid}
	for k, v := range attrs {
		copied[k] = v
	}
	if t == inventory.VirtualServerType {
		copied[inventory.AttrID] = fmt.Sprintf("VS-%d", c.seq)
		for _, flag := range []string{inventory.AttrNewServer, inventory.AttrDeleted, inventory.AttrDelConfirmed, inventory.AttrWithHistory} {
			if _, ok := copied[flag]; !ok {
				copied[flag] = false
			}
		}
	}
	c.entities[elid] = &stubEntity{typ: t, attrs: copied}
	return elid, nil
}

func (c *stubCMDB) Update(_ context.Context, t inventory.EntityType, elid string, attrs map[string]any) error {
	if err := c.journal(fmt.Sprintf("update:%s:%s", t.Name, elid)); err != nil {
		return err
	}
	e := c.entities[elid]
	if e == nil {
		return errStub
	}
	for k, v := range attrs {
		e.attrs[k] = v
	}
	return nil
}

func (c *stubCMDB) Delete(_ context.Context, t inventory.EntityType, elid string) error {
	if err := c.journal(fmt.Sprintf("delete:%s:%s", t.Name, elid)); err != nil {
		return err
	}
	delete(c.entities, elid)
	delete(c.links, elid)
	return nil
}

func (c *stubCMDB) Link(_ context.Context, vsElid string, class inventory.LinkedClass, linkedElid string) error {
	if err := c.journal(fmt.Sprintf("link:%s:%s", class.Relation, linkedElid)); err != nil {
		return err
	}
	if c.links[vsElid] == nil {
		c.links[vsElid] = map[inventory.LinkedKind][]string{}
	}
	c.links[vsElid][class.Kind] = append(c.links[vsElid][class.Kind], linkedElid)
	return nil
}

func (c *stubCMDB) Unlink(_ context.Context, vsElid string, class inventory.LinkedClass, linkElid string) error {
	if err := c.journal(fmt.Sprintf("unlink:%s:%s", class.Relation, linkElid)); err != nil {
		return err
	}
	// ListRelated reports link elids as "L" + entity elid.
	elid := strings.TrimPrefix(linkElid, "L")
	kept := c.links[vsElid][class.Kind][:0]
	for _, e := range c.links[vsElid][class.Kind] {
		if e != elid {
			kept = append(kept, e)
		}
	}
	if c.links[vsElid] != nil {
		c.links[vsElid][class.Kind] = kept
	}
	return nil
}

// stubZabbix is an in-memory monitoring backend.
type stubZabbix struct {
	groups   map[string]string
	hosts    []inventory.Host
	triggers []inventory.Trigger
	problems map[string]int
	calls    []string
	fail     map[string]bool

	itemUpdates    []inventory.StatusUpdate
	triggerUpdates []inventory.StatusUpdate
	hostUpdates    map[string]map[string]any
	created        []inventory.HostSpec
	massUpdates    map[string][]string
}

func newStubZabbix() *stubZabbix {
	return &stubZabbix{
		groups:      map[string]string{},
		fail:        map[string]bool{},
		hostUpdates: map[string]map[string]any{},
		massUpdates: map[string][]string{},
	}
}

func (z *stubZabbix) call(method string) error {
	z.calls = append(z.calls, method)
	if z.fail[method] {
		return errStub
	}
	return nil
}

func (z *stubZabbix) HostGroupID(_ context.Context, name string) (string, error) {
	if err := z.call("hostgroup.get"); err != nil {
		return "", err
	}
	return z.groups[name], nil
}

func (z *stubZabbix) CreateHostGroup(_ context.Context, name string) (string, error) {
	if err := z.call("hostgroup.create"); err != nil {
		return "", err
	}
	id := fmt.Sprintf("G%d", len(z.groups)+1)
	z.groups[name] = id
	return id, nil
}

func (z *stubZabbix) TemplateID(context.Context, string) (string, error) { return "T1", z.call("template.get") }
func (z *stubZabbix) ProxyID(context.Context, string) (string, error)    { return "P1", z.call("proxy.get") }

func (z *stubZabbix) Hosts(context.Context, string) ([]inventory.Host, error) {
	if err := z.call("host.get"); err != nil {
		return nil, err
	}
	return append([]inventory.Host(nil), z.hosts...), nil
}

func (z *stubZabbix) HostsWithObjects(ctx context.Context, groupID string) ([]inventory.Host, error) {
	return z.Hosts(ctx, groupID)
}

func (z *stubZabbix) Triggers(context.Context, string) ([]inventory.Trigger, error) {
	if err := z.call("trigger.get"); err != nil {
		return nil, err
	}
	return z.triggers, nil
}

func (z *stubZabbix) CreateHost(_ context.Context, spec inventory.HostSpec) (string, error) {
	if err := z.call("host.create"); err != nil {
		return "", err
	}
	z.created = append(z.created, spec)
	id := fmt.Sprintf("H%d", len(z.hosts)+len(z.created))
	z.hosts = append(z.hosts, inventory.Host{ID: id, Host: spec.Host, Name: spec.Name})
	return id, nil
}

func (z *stubZabbix) CreateApplication(context.Context, string, string) error {
	return z.call("application.create")
}

func (z *stubZabbix) DeleteHost(_ context.Context, hostID string) error {
	if err := z.call("host.delete"); err != nil {
		return err
	}
	kept := z.hosts[:0]
	for _, h := range z.hosts {
		if h.ID != hostID {
			kept = append(kept, h)
		}
	}
	z.hosts = kept
	return nil
}

func (z *stubZabbix) UpdateHost(_ context.Context, hostID string, fields map[string]any) error {
	if err := z.call("host.update"); err != nil {
		return err
	}
	z.hostUpdates[hostID] = fields
	return nil
}

func (z *stubZabbix) UpdateInterface(context.Context, string, string) error {
	return z.call("hostinterface.update")
}

func (z *stubZabbix) UpdateItems(_ context.Context, updates []inventory.StatusUpdate) error {
	if err := z.call("item.update"); err != nil {
		return err
	}
	z.itemUpdates = append(z.itemUpdates, updates...)
	return nil
}

func (z *stubZabbix) UpdateTriggers(_ context.Context, updates []inventory.StatusUpdate) error {
	if err := z.call("trigger.update"); err != nil {
		return err
	}
	z.triggerUpdates = append(z.triggerUpdates, updates...)
	return nil
}

func (z *stubZabbix) MassUpdateHostGroup(_ context.Context, groupID string, hostIDs []string) error {
	if err := z.call("hostgroup.massupdate"); err != nil {
		return err
	}
	z.massUpdates[groupID] = hostIDs
	return nil
}

func (z *stubZabbix) CountProblemTriggers(_ context.Context, _ string, flag string) (int, error) {
	if err := z.call("trigger.get"); err != nil {
		return 0, err
	}
	return z.problems[flag], nil
}

type stubSender struct {
	batches [][]inventory.Metric
	err     error
}

func (s *stubSender) Send(_ context.Context, metrics []inventory.Metric) (zabbix.SendResult, error) {
	s.batches = append(s.batches, metrics)
	if s.err != nil {
		return zabbix.SendResult{Failed: len(metrics), Total: len(metrics)}, s.err
	}
	return zabbix.SendResult{Processed: len(metrics), Total: len(metrics)}, nil
}

func (s *stubSender) metrics() []inventory.Metric {
	var out []inventory.Metric
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

type stubSyncRepo struct {
	states   map[string]models.SyncState
	runs     []models.SyncRun
	settings map[string]*models.SystemSetting
}

var _ repository.Repository = (*stubSyncRepo)(nil)

func newStubSyncRepo() *stubSyncRepo {
	return &stubSyncRepo{states: map[string]models.SyncState{}, settings: map[string]*models.SystemSetting{}}
}

func (r *stubSyncRepo) InTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (r *stubSyncRepo) GetSyncState(_ context.Context, scope string) (*models.SyncState, error) {
	st, ok := r.states[scope]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (r *stubSyncRepo) SaveSyncStateTx(_ context.Context, _ *gorm.DB, state *models.SyncState) error {
	r.states[state.Scope] = *state
	return nil
}

func (r *stubSyncRepo) ListSyncStates(context.Context) ([]models.SyncState, error) {
	out := make([]models.SyncState, 0, len(r.states))
	for _, st := range r.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out, nil
}

func (r *stubSyncRepo) InsertSyncRunTx(_ context.Context, _ *gorm.DB, run *models.SyncRun) error {
	r.runs = append(r.runs, *run)
	return nil
}

func (r *stubSyncRepo) GetSyncRun(_ context.Context, runID string) ([]models.SyncRun, error) {
	var out []models.SyncRun
	for _, run := range r.runs {
		if run.RunID == runID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *stubSyncRepo) ListSyncRuns(context.Context, repository.ListSyncRunsParams) ([]models.SyncRun, error) {
	return r.runs, nil
}

func (r *stubSyncRepo) CountSyncRuns(context.Context, repository.ListSyncRunsParams) (int64, error) {
	return int64(len(r.runs)), nil
}

func (r *stubSyncRepo) DeleteSyncRunsBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *stubSyncRepo) UpsertSystemSetting(_ context.Context, item *models.SystemSetting) error {
	copied := *item
	r.settings[item.Key] = &copied
	return nil
}

func (r *stubSyncRepo) GetSystemSettingByKey(_ context.Context, key string) (*models.SystemSetting, error) {
	return r.settings[key], nil
}

func (r *stubSyncRepo) ListSystemSettings(context.Context, repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	var out []models.SystemSetting
	for _, s := range r.settings {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *stubSyncRepo) CountSystemSettings(context.Context, repository.ListSystemSettingsParams) (int64, error) {
	return int64(len(r.settings)), nil
}
