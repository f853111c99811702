package inventory

// Capability flags mirrored to monitoring triggers.
const (
	FlagMonitoring     = AttrMonitoring
	FlagMonitoringSnmp = AttrMonitoringSnmp
	FlagNoShutdown     = AttrNoShutdown
	FlagBackupNeeded   = AttrBackupNeeded
)

var DefaultCapabilityFlags = []string{
	FlagMonitoring,
	FlagMonitoringSnmp,
	FlagNoShutdown,
	FlagBackupNeeded,
}

// Macro names set on every monitoring host.
const (
	MacroCommunity = "{$SNMP_COMMUNITY}"
	MacroPurpose   = "{$HOST_PURPOSE}"
	MacroVSphere   = "{$VSPHERE.HOST}"
)

// FlagTag is the trigger tag carrying the capability flag name.
const FlagTag = "FNT_Flag"

// Zabbix object status codes.
const (
	StatusEnabled  = 0
	StatusDisabled = 1
)

// StatusFor maps a capability flag onto a trigger/item status.
func StatusFor(flag bool) int {
	if flag {
		return StatusEnabled
	}
	return StatusDisabled
}

type Interface struct {
	ID   string `json:"interfaceid,omitempty"`
	IP   string `json:"ip"`
	Port string `json:"port,omitempty"`
}

type Macro struct {
	Macro string `json:"macro"`
	Value string `json:"value"`
}

type Tag struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

type Trigger struct {
	ID          string
	Description string
	Status      int
	Value       int
	Tags        []Tag
	// HostID and HostName identify the first host the trigger belongs to.
	HostID   string
	HostName string
}

// FlagName returns the FNT_Flag tag value, or "".
func (t Trigger) FlagName() string {
	for _, tag := range t.Tags {
		if tag.Tag == FlagTag {
			return tag.Value
		}
	}
	return ""
}

type Item struct {
	ID           string
	Key          string
	Status       int
	HostID       string
	Applications []string
}

// StatusUpdate enables or disables one trigger or item.
type StatusUpdate struct {
	ID     string
	Status int
}

// Host is a monitoring host with the objects the synchronizer touches.
type Host struct {
	ID        string
	Host      string
	Name      string
	Status    int
	Interface *Interface
	Macros    []Macro
	Triggers  []Trigger
	Items     []Item
}

// Macro returns the value of the named macro and whether it is set.
func (h Host) Macro(name string) (string, bool) {
	for _, m := range h.Macros {
		if m.Macro == name {
			return m.Value, true
		}
	}
	return "", false
}

// TriggersByFlag indexes triggers by their FNT_Flag tag value.
func (h Host) TriggersByFlag() map[string][]Trigger {
	out := make(map[string][]Trigger)
	for _, t := range h.Triggers {
		if flag := t.FlagName(); flag != "" {
			out[flag] = append(out[flag], t)
		}
	}
	return out
}

// ItemsByApplication indexes items by application name.
func (h Host) ItemsByApplication() map[string][]Item {
	out := make(map[string][]Item)
	for _, it := range h.Items {
		for _, app := range it.Applications {
			out[app] = append(out[app], it)
		}
	}
	return out
}

// IndexHostsByName indexes hosts by technical name (the CMDB id).
func IndexHostsByName(hosts []Host) map[string]*Host {
	out := make(map[string]*Host, len(hosts))
	for i := range hosts {
		out[hosts[i].Host] = &hosts[i]
	}
	return out
}

// HostSpec is the payload of a monitoring host creation.
type HostSpec struct {
	Host       string
	Name       string
	GroupID    string
	TemplateID string
	ProxyID    string
	IP         string
	Macros     []Macro
}

// Metric is a single value pushed through the sender protocol.
type Metric struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Clock int64  `json:"clock,omitempty"`
}

// Restriction is one CMDB query restriction.
type Restriction struct {
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type Restrictions map[string]Restriction

func Eq(value string) Restriction   { return Restriction{Operator: "=", Value: value} }
func Like(value string) Restriction { return Restriction{Operator: "like", Value: value} }
