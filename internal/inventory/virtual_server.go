package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType names a CMDB entity class. Custom classes live under the
// entity/custom/ API prefix.
type EntityType struct {
	Name   string
	Custom bool
}

var VirtualServerType = EntityType{Name: "virtualServer"}

type LifecycleState string

const (
	StateNew                  LifecycleState = "new"
	StateActive               LifecycleState = "active"
	StateSoftDeletedPending   LifecycleState = "soft_deleted_pending"
	StateSoftDeletedConfirmed LifecycleState = "soft_deleted_confirmed"
	StatePurged               LifecycleState = "purged"
)

// VirtualServer is the CMDB record of a virtual machine.
type VirtualServer struct {
	ID                  string
	Elid                string
	VisibleID           string
	UUID                string
	CPU                 int
	RAM                 int
	ManagementInterface string
	CommunityName       string
	Purpose             string
	Status              string
	Remark              string
	Datasource          string
	Hostname            string
	VMType              string
	HddTotal            *decimal.Decimal
	HddUsed             *decimal.Decimal
	LastBackup          *time.Time

	Monitoring     bool
	MonitoringSnmp bool
	NoShutdown     bool
	BackupNeeded   bool

	NewServer    bool
	Deleted      bool
	DelConfirmed bool
	WithHistory  bool

	// Linked holds the related sub-records keyed by natural key. A nil map
	// means the relation was not fetched.
	Linked map[LinkedKind]map[string]LinkedRecord
}

// State derives the lifecycle state from the CMDB flags.
func (v VirtualServer) State() LifecycleState {
	switch {
	case v.Deleted && v.DelConfirmed:
		return StateSoftDeletedConfirmed
	case v.Deleted:
		return StateSoftDeletedPending
	case v.NewServer:
		return StateNew
	default:
		return StateActive
	}
}

// Flag returns the value of a boolean capability flag by attribute name.
func (v VirtualServer) Flag(name string) bool {
	b, _ := v.Field(name).(bool)
	return b
}

// AnyFlag reports whether at least one of the named flags is set.
func (v VirtualServer) AnyFlag(names []string) bool {
	for _, name := range names {
		if v.Flag(name) {
			return true
		}
	}
	return false
}

func (v VirtualServer) LinkedOf(kind LinkedKind) map[string]LinkedRecord {
	if v.Linked == nil {
		return nil
	}
	return v.Linked[kind]
}

func (v VirtualServer) Field(name string) any {
	switch name {
	case AttrID:
		return v.ID
	case AttrElid:
		return v.Elid
	case AttrVisibleID:
		return v.VisibleID
	case AttrUUID:
		return v.UUID
	case AttrCPU:
		return v.CPU
	case AttrRAM:
		return v.RAM
	case AttrManagementInterface:
		return v.ManagementInterface
	case AttrCommunityName:
		return v.CommunityName
	case AttrPurpose:
		return v.Purpose
	case AttrStatus:
		return v.Status
	case AttrRemark:
		return v.Remark
	case AttrDatasource:
		return v.Datasource
	case AttrHostname:
		return v.Hostname
	case AttrVMType:
		return v.VMType
	case AttrHddTotal:
		if v.HddTotal == nil {
			return nil
		}
		return *v.HddTotal
	case AttrHddUsed:
		if v.HddUsed == nil {
			return nil
		}
		return *v.HddUsed
	case AttrLastBackup:
		if v.LastBackup == nil {
			return nil
		}
		return *v.LastBackup
	case AttrMonitoring:
		return v.Monitoring
	case AttrMonitoringSnmp:
		return v.MonitoringSnmp
	case AttrNoShutdown:
		return v.NoShutdown
	case AttrBackupNeeded:
		return v.BackupNeeded
	case AttrNewServer:
		return v.NewServer
	case AttrDeleted:
		return v.Deleted
	case AttrDelConfirmed:
		return v.DelConfirmed
	case AttrWithHistory:
		return v.WithHistory
	default:
		return nil
	}
}

// Attributes returns every known attribute keyed by CMDB name.
func (v VirtualServer) Attributes() map[string]any {
	out := make(map[string]any, len(VirtualServerAttributes))
	for _, name := range VirtualServerAttributes {
		if val := v.Field(name); val != nil {
			out[name] = val
		}
	}
	return out
}

// VirtualServerFromAttributes decodes a CMDB attribute map. Values may be
// wire-encoded (Y/N strings, JSON numbers, timestamp strings) or already
// typed.
func VirtualServerFromAttributes(attrs map[string]any) VirtualServer {
	return VirtualServer{
		ID:                  attrString(attrs, AttrID),
		Elid:                attrString(attrs, AttrElid),
		VisibleID:           attrString(attrs, AttrVisibleID),
		UUID:                attrString(attrs, AttrUUID),
		CPU:                 attrInt(attrs, AttrCPU),
		RAM:                 attrInt(attrs, AttrRAM),
		ManagementInterface: attrString(attrs, AttrManagementInterface),
		CommunityName:       attrString(attrs, AttrCommunityName),
		Purpose:             attrString(attrs, AttrPurpose),
		Status:              attrString(attrs, AttrStatus),
		Remark:              attrString(attrs, AttrRemark),
		Datasource:          attrString(attrs, AttrDatasource),
		Hostname:            attrString(attrs, AttrHostname),
		VMType:              attrString(attrs, AttrVMType),
		HddTotal:            attrDecimal(attrs, AttrHddTotal),
		HddUsed:             attrDecimal(attrs, AttrHddUsed),
		LastBackup:          attrTime(attrs, AttrLastBackup),
		Monitoring:          attrBool(attrs, AttrMonitoring),
		MonitoringSnmp:      attrBool(attrs, AttrMonitoringSnmp),
		NoShutdown:          attrBool(attrs, AttrNoShutdown),
		BackupNeeded:        attrBool(attrs, AttrBackupNeeded),
		NewServer:           attrBool(attrs, AttrNewServer),
		Deleted:             attrBool(attrs, AttrDeleted),
		DelConfirmed:        attrBool(attrs, AttrDelConfirmed),
		WithHistory:         attrBool(attrs, AttrWithHistory),
	}
}

// IndexByUUID indexes servers by correlation key.
func IndexByUUID(items []VirtualServer) map[string]*VirtualServer {
	out := make(map[string]*VirtualServer, len(items))
	for i := range items {
		out[items[i].UUID] = &items[i]
	}
	return out
}

// IndexByID indexes servers by external identifier.
func IndexByID(items []VirtualServer) map[string]*VirtualServer {
	out := make(map[string]*VirtualServer, len(items))
	for i := range items {
		out[items[i].ID] = &items[i]
	}
	return out
}
