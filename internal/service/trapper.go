package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"vfzsync/internal/client/zabbix"
	"vfzsync/internal/inventory"
)

const (
	SendModeTrapper     = "trapper"
	SendModeGroupUpdate = "groupupdate"
)

var ErrInvalidSend = errors.New("invalid send request")

// TrapperService pushes trapper values and maintains the per-flag host
// groups.
type TrapperService struct {
	Zabbix    MonitoringClient
	Sender    MetricSender
	HostGroup string
	Flags     []string
	Logger    *zap.Logger
}

type SendRequest struct {
	Mode   string `json:"mode"`
	Host   string `json:"host,omitempty"`
	Key    string `json:"key,omitempty"`
	Status string `json:"status,omitempty"`
}

type SendResult struct {
	Mode      string         `json:"mode"`
	Metrics   int            `json:"metrics"`
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Groups    map[string]int `json:"groups,omitempty"`
}

func (s *TrapperService) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case SendModeTrapper, "":
		return s.trapper(ctx, req)
	case SendModeGroupUpdate:
		return s.GroupUpdate(ctx)
	default:
		return SendResult{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidSend, req.Mode)
	}
}

func (s *TrapperService) trapper(ctx context.Context, req SendRequest) (SendResult, error) {
	out := SendResult{Mode: SendModeTrapper}
	if strings.TrimSpace(req.Host) == "" || strings.TrimSpace(req.Key) == "" {
		return out, fmt.Errorf("%w: host and key are required", ErrInvalidSend)
	}
	metrics := []inventory.Metric{{Host: req.Host, Key: req.Key, Value: req.Status}}
	res, err := s.Sender.Send(ctx, metrics)
	out.apply(len(metrics), res)
	return out, err
}

func (r *SendResult) apply(n int, res zabbix.SendResult) {
	r.Metrics = n
	r.Processed = res.Processed
	r.Failed = res.Failed
}

func (s *TrapperService) flags() []string {
	if len(s.Flags) == 0 {
		return inventory.DefaultCapabilityFlags
	}
	return s.Flags
}

// GroupUpdate puts every host with an active problem on a flag trigger into
// the "<hostgroup>/<flag>" group and re-pushes the trigger status values.
func (s *TrapperService) GroupUpdate(ctx context.Context) (SendResult, error) {
	out := SendResult{Mode: SendModeGroupUpdate, Groups: map[string]int{}}
	log := nopIfNil(s.Logger)

	groupID, err := s.Zabbix.HostGroupID(ctx, s.HostGroup)
	if err != nil {
		return out, fmt.Errorf("host group %q: %w", s.HostGroup, err)
	}
	if groupID == "" {
		return out, fmt.Errorf("host group %q not found", s.HostGroup)
	}

	flags := s.flags()
	known := make(map[string]bool, len(flags))
	flagGroups := make(map[string]string, len(flags))
	members := make(map[string]map[string]struct{}, len(flags))
	for _, flag := range flags {
		known[flag] = true
		members[flag] = map[string]struct{}{}
		name := s.HostGroup + "/" + flag
		id, err := s.Zabbix.HostGroupID(ctx, name)
		if err != nil {
			return out, fmt.Errorf("host group %q: %w", name, err)
		}
		if id == "" {
			if id, err = s.Zabbix.CreateHostGroup(ctx, name); err != nil {
				return out, fmt.Errorf("create host group %q: %w", name, err)
			}
			log.Info("created host group", zap.String("name", name))
		}
		flagGroups[flag] = id
	}

	triggers, err := s.Zabbix.Triggers(ctx, groupID)
	if err != nil {
		return out, fmt.Errorf("fetch triggers: %w", err)
	}
	var metrics []inventory.Metric
	for _, tr := range triggers {
		flag := tr.FlagName()
		if !known[flag] || tr.HostName == "" {
			continue
		}
		enabled := tr.Status == inventory.StatusEnabled
		if enabled && tr.Value == 1 {
			members[flag][tr.HostID] = struct{}{}
		}
		value := -1
		if enabled {
			value = tr.Value
		}
		metrics = append(metrics, inventory.Metric{
			Host:  tr.HostName,
			Key:   TriggerStatusKey(flag),
			Value: strconv.Itoa(value),
		})
	}

	var errs error
	if len(metrics) > 0 {
		res, err := s.Sender.Send(ctx, metrics)
		out.apply(len(metrics), res)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("push trigger status: %w", err))
		}
	}
	for _, flag := range flags {
		ids := sortedKeys(members[flag])
		if err := s.Zabbix.MassUpdateHostGroup(ctx, flagGroups[flag], ids); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("update group of %s: %w", flag, err))
			continue
		}
		out.Groups[flag] = len(ids)
	}
	log.Debug("group update done", zap.Any("groups", out.Groups), zap.Int("metrics", out.Metrics))
	return out, errs
}
