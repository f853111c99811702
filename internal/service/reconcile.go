package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vfzsync/internal/instrument"
	"vfzsync/internal/inventory"
	"vfzsync/internal/models"
	"vfzsync/internal/notify"
	"vfzsync/internal/progress"
	"vfzsync/internal/repository"
	"vfzsync/internal/transform"
)

const (
	ModeAll         = "all"
	ScopeVPollerFNT = "vpoller-fnt"
	ScopeFNTZabbix  = "fnt-zabbix"
)

const (
	PassOK       = "ok"
	PassGuarded  = "guarded"
	PassFailed   = "failed"
	PassDisabled = "disabled"
)

const (
	TriggerCron = "cron"
	TriggerAPI  = "api"
	TriggerCLI  = "cli"
)

var ErrUnknownMode = errors.New("unknown sync mode")

// ParseMode validates a sync mode, defaulting to all.
func ParseMode(mode string) (string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case "":
		return ModeAll, nil
	case ModeAll, ScopeVPollerFNT, ScopeFNTZabbix:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
}

// ReconcileService runs reconciliation passes across the source, the CMDB
// and monitoring.
type ReconcileService struct {
	Source   SourceClient
	CMDB     CMDBClient
	Zabbix   MonitoringClient
	Sender   MetricSender
	Store    repository.SyncRepository
	Settings *SystemSettingsService
	Recorder *instrument.Recorder
	Hub      *progress.Hub
	Notifier *notify.WebhookSender
	Logger   *zap.Logger

	Project   string
	VCHost    string
	Tables    transform.Tables
	Flags     []string
	Location  *time.Location
	HostGroup string
	Template  string
	Proxy     string

	now func() time.Time
}

type RunOptions struct {
	Mode    string
	Trigger string
	// CheckFeatures skips scopes whose feature switch is off.
	CheckFeatures bool
}

type PassResult struct {
	Scope      string            `json:"scope"`
	Status     string            `json:"status"`
	Guarded    bool              `json:"guarded"`
	Error      string            `json:"error,omitempty"`
	VMs        int               `json:"vms"`
	Servers    int               `json:"servers"`
	Hosts      int               `json:"hosts"`
	Lifecycle  *LifecycleResult  `json:"lifecycle,omitempty"`
	Monitoring *MonitoringResult `json:"monitoring,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

func (p PassResult) writes() map[string]int {
	switch {
	case p.Lifecycle != nil:
		return p.Lifecycle.Writes()
	case p.Monitoring != nil:
		return p.Monitoring.Writes()
	default:
		return nil
	}
}

type RunResult struct {
	RunID      string       `json:"run_id"`
	Mode       string       `json:"mode"`
	Trigger    string       `json:"trigger"`
	Passes     []PassResult `json:"passes"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

func (s *ReconcileService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// Run executes one pass in the given mode. The pass runs to completion even
// if ctx is cancelled. Sub-pass errors are aggregated.
func (s *ReconcileService) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	mode, err := ParseMode(opts.Mode)
	if err != nil {
		return RunResult{}, err
	}
	trigger := opts.Trigger
	if trigger == "" {
		trigger = TriggerCLI
	}
	ctx = context.WithoutCancel(ctx)
	log := nopIfNil(s.Logger)
	run := RunResult{
		RunID:     uuid.NewString(),
		Mode:      mode,
		Trigger:   trigger,
		StartedAt: s.clock(),
	}
	log = log.With(zap.String("run_id", run.RunID), zap.String("mode", mode))
	log.Info("sync started", zap.String("trigger", trigger))

	var errs error
	for _, scope := range []string{ScopeVPollerFNT, ScopeFNTZabbix} {
		if mode != ModeAll && mode != scope {
			continue
		}
		if opts.CheckFeatures && !s.Settings.IsEnabled(ctx, ScopeFeature(scope), true) {
			log.Info("sync scope disabled", zap.String("scope", scope))
			run.Passes = append(run.Passes, PassResult{Scope: scope, Status: PassDisabled})
			continue
		}
		pass, err := s.runScope(ctx, run.RunID, scope)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", scope, err))
		}
		s.record(ctx, run.RunID, trigger, pass, log)
		run.Passes = append(run.Passes, pass)
	}

	run.FinishedAt = s.clock()
	if errs != nil {
		log.Error("sync completed with errors", zap.Error(errs))
		s.notifyFailure(ctx, run.RunID, errs, log)
	} else {
		log.Info("sync completed", zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)))
	}
	return run, errs
}

func (s *ReconcileService) runScope(ctx context.Context, runID, scope string) (PassResult, error) {
	pass := PassResult{Scope: scope, StartedAt: s.clock()}
	s.Hub.Publish(progress.Event{RunID: runID, Scope: scope, Stage: "started"})
	var err error
	switch scope {
	case ScopeVPollerFNT:
		err = s.runVPollerFNT(ctx, runID, &pass)
	case ScopeFNTZabbix:
		err = s.runFNTZabbix(ctx, runID, &pass)
	}
	pass.FinishedAt = s.clock()
	switch {
	case err != nil:
		pass.Status = PassFailed
		pass.Error = err.Error()
	case pass.Guarded:
		pass.Status = PassGuarded
	default:
		pass.Status = PassOK
	}
	s.Hub.Publish(progress.Event{
		RunID:   runID,
		Scope:   scope,
		Stage:   "finished",
		Percent: 100,
		Message: pass.Status,
	})
	return pass, err
}

func (s *ReconcileService) runVPollerFNT(ctx context.Context, runID string, pass *PassResult) error {
	log := nopIfNil(s.Logger).With(zap.String("run_id", runID), zap.String("scope", ScopeVPollerFNT))

	vms, err := s.Source.Fetch(ctx, s.VCHost)
	if err != nil {
		return fmt.Errorf("fetch vms: %w", err)
	}
	servers, err := s.listServers(ctx, inventory.Restrictions{
		inventory.AttrDatasource: inventory.Eq(s.VCHost),
	}, true)
	if err != nil {
		return fmt.Errorf("fetch virtual servers: %w", err)
	}
	pass.VMs = len(vms)
	pass.Servers = len(servers)
	if len(vms) == 0 {
		log.Warn("no VMs received from vPoller, aborting sync")
		pass.Guarded = true
		return nil
	}

	lifecycle := &VirtualServerLifecycle{
		CMDB: s.CMDB,
		Linked: &LinkedEntitySynchronizer{
			CMDB:   s.CMDB,
			Tables: s.Tables,
			Logger: log,
		},
		Map:      s.Tables.VirtualServer,
		Location: s.Location,
		Logger:   log,
		Hub:      s.Hub,
		RunID:    runID,
	}
	result := lifecycle.Discover(ctx, vms, inventory.IndexByUUID(servers))
	result.Add(lifecycle.Cleanup(ctx, servers, IndexVMs(vms)))
	pass.Lifecycle = &result
	pass.Guarded = result.Guarded
	log.Info("vpoller-fnt pass done",
		zap.Int("vms", pass.VMs),
		zap.Int("servers", pass.Servers),
		zap.Any("writes", result.Writes()),
	)
	return nil
}

func (s *ReconcileService) runFNTZabbix(ctx context.Context, runID string, pass *PassResult) error {
	log := nopIfNil(s.Logger).With(zap.String("run_id", runID), zap.String("scope", ScopeFNTZabbix))

	servers, err := s.listServers(ctx, inventory.Restrictions{
		inventory.AttrDatasource: inventory.Eq(s.VCHost),
		inventory.AttrNewServer:  inventory.Like(inventory.YesNo(false)),
	}, false)
	if err != nil {
		return fmt.Errorf("fetch virtual servers: %w", err)
	}
	pass.Servers = len(servers)
	if len(servers) == 0 {
		log.Warn("no virtual servers received from CMDB, aborting sync")
		pass.Guarded = true
		return nil
	}

	targets, err := s.resolveTargets(ctx)
	if err != nil {
		return err
	}
	hosts, err := s.Zabbix.Hosts(ctx, targets.GroupID)
	if err != nil {
		return fmt.Errorf("fetch hosts: %w", err)
	}

	mon := &MonitoringHostSynchronizer{
		Zabbix: s.Zabbix,
		Sender: s.Sender,
		Flags:  s.Flags,
		VCHost: s.VCHost,
		Logger: log,
		Hub:    s.Hub,
		RunID:  runID,
	}
	result := mon.Cleanup(ctx, hosts, inventory.IndexByID(servers))

	hosts, err = s.Zabbix.HostsWithObjects(ctx, targets.GroupID)
	if err != nil {
		pass.Monitoring = &result
		return fmt.Errorf("refetch hosts: %w", err)
	}
	pass.Hosts = len(hosts)
	result.Add(mon.Sync(ctx, servers, inventory.IndexHostsByName(hosts), targets))
	pass.Monitoring = &result
	log.Info("fnt-zabbix pass done",
		zap.Int("servers", pass.Servers),
		zap.Int("hosts", pass.Hosts),
		zap.Any("writes", result.Writes()),
	)
	return nil
}

// listServers fetches virtual servers and, when linked is set, their
// related sub-entities. Any failure aborts the listing.
func (s *ReconcileService) listServers(ctx context.Context, restrictions inventory.Restrictions, linked bool) ([]inventory.VirtualServer, error) {
	servers, err := s.CMDB.ListVirtualServers(ctx, restrictions)
	if err != nil {
		return nil, err
	}
	if !linked {
		return servers, nil
	}
	for i := range servers {
		vs := &servers[i]
		vs.Linked = make(map[inventory.LinkedKind]map[string]inventory.LinkedRecord, len(inventory.LinkedClasses))
		for _, class := range inventory.LinkedClasses {
			records, err := s.CMDB.ListRelated(ctx, class, vs.Elid)
			if err != nil {
				return nil, fmt.Errorf("%s of %s: %w", class.RelationPlural, vs.VisibleID, err)
			}
			vs.Linked[class.Kind] = records
		}
	}
	return servers, nil
}

// EnsureHostGroup returns the configured host group id, creating the group
// when missing.
func (s *ReconcileService) EnsureHostGroup(ctx context.Context) (string, error) {
	id, err := s.Zabbix.HostGroupID(ctx, s.HostGroup)
	if err != nil {
		return "", fmt.Errorf("host group %q: %w", s.HostGroup, err)
	}
	if id != "" {
		return id, nil
	}
	id, err = s.Zabbix.CreateHostGroup(ctx, s.HostGroup)
	if err != nil {
		return "", fmt.Errorf("create host group %q: %w", s.HostGroup, err)
	}
	nopIfNil(s.Logger).Info("created host group", zap.String("name", s.HostGroup), zap.String("groupid", id))
	return id, nil
}

func (s *ReconcileService) resolveTargets(ctx context.Context) (MonitoringTargets, error) {
	var targets MonitoringTargets
	var err error
	if targets.GroupID, err = s.EnsureHostGroup(ctx); err != nil {
		return targets, err
	}
	if targets.TemplateID, err = s.Zabbix.TemplateID(ctx, s.Template); err != nil {
		return targets, fmt.Errorf("resolve template: %w", err)
	}
	if strings.TrimSpace(s.Proxy) != "" {
		if targets.ProxyID, err = s.Zabbix.ProxyID(ctx, s.Proxy); err != nil {
			return targets, fmt.Errorf("resolve proxy: %w", err)
		}
	}
	return targets, nil
}

type passStats struct {
	Guarded    bool              `json:"guarded"`
	VMs        int               `json:"vms"`
	Servers    int               `json:"servers"`
	Hosts      int               `json:"hosts"`
	Lifecycle  *LifecycleResult  `json:"lifecycle,omitempty"`
	Monitoring *MonitoringResult `json:"monitoring,omitempty"`
}

// record persists the pass and exports it to metrics. Persistence failures
// are logged only.
func (s *ReconcileService) record(ctx context.Context, runID, trigger string, pass PassResult, log *zap.Logger) {
	elapsed := pass.FinishedAt.Sub(pass.StartedAt)
	s.Recorder.ObservePass(pass.Scope, pass.Status, elapsed, pass.writes())
	if s.Store == nil {
		return
	}

	raw, _ := json.Marshal(passStats{
		Guarded:    pass.Guarded,
		VMs:        pass.VMs,
		Servers:    pass.Servers,
		Hosts:      pass.Hosts,
		Lifecycle:  pass.Lifecycle,
		Monitoring: pass.Monitoring,
	})
	var errMsg *string
	if pass.Error != "" {
		msg := pass.Error
		errMsg = &msg
	}

	state, err := s.Store.GetSyncState(ctx, pass.Scope)
	if err != nil {
		log.Warn("load sync state failed", zap.String("scope", pass.Scope), zap.Error(err))
	}
	if state == nil {
		state = &models.SyncState{Scope: pass.Scope}
	}
	attempt := pass.FinishedAt
	state.LastRunID = &runID
	state.LastAttemptAt = &attempt
	state.LastError = errMsg
	state.StatsJSON = datatypes.JSON(raw)
	if pass.Status != PassFailed {
		state.LastSuccessAt = &attempt
	}

	row := &models.SyncRun{
		RunID:      runID,
		Scope:      pass.Scope,
		Trigger:    trigger,
		Status:     pass.Status,
		Guarded:    pass.Guarded,
		Error:      errMsg,
		StatsJSON:  datatypes.JSON(raw),
		StartedAt:  pass.StartedAt,
		FinishedAt: pass.FinishedAt,
		DurationMS: elapsed.Milliseconds(),
	}
	err = s.Store.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Store.InsertSyncRunTx(ctx, tx, row); err != nil {
			return err
		}
		return s.Store.SaveSyncStateTx(ctx, tx, state)
	})
	if err != nil {
		log.Warn("persist sync run failed", zap.String("scope", pass.Scope), zap.Error(err))
	}
}

func (s *ReconcileService) notifyFailure(ctx context.Context, runID string, errs error, log *zap.Logger) {
	if !s.Notifier.Enabled() {
		return
	}
	err := s.Notifier.Send(ctx, notify.WebhookPayload{
		Project: s.Project,
		Event:   "sync_failed",
		RunID:   runID,
		Message: errs.Error(),
	})
	if err != nil {
		log.Warn("failure notification not delivered", zap.Error(err))
	}
}
