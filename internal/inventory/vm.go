package inventory

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source field names addressable through VM.Field.
const (
	SourceInstanceUUID   = "config.instanceUuid"
	SourceName           = "name"
	SourceNumCPU         = "config.hardware.numCPU"
	SourceMemoryMB       = "config.hardware.memoryMB"
	SourcePowerState     = "runtime.powerState"
	SourceAnnotation     = "config.annotation"
	SourceLastBackup     = "last_backup"
	SourceVCHost         = "vc_host"
	SourceCommittedGB    = "summary.storage.committed.gb"
	SourceProvisionedGB  = "summary.storage.provisioned.gb"
	SourceGuestHostName  = "summary.guest.hostName"
	SourceGuestFullName  = "summary.config.guestFullName"
	SourceIPAddress      = "ipAddress"
	SourceDiskPath       = "diskPath"
	SourceDiskCapacityGB = "capacityGb"
	SourceDiskUsedGB     = "usedGb"
)

const (
	bytesPerGiB        = int64(1) << 30
	gibPrecision int32 = 3
)

// VM is one virtual machine as reported by vPoller for a single pass.
type VM struct {
	InstanceUUID       string
	Name               string
	NumCPU             int
	MemoryMB           int
	PowerState         string
	Annotation         string
	GuestHostName      string
	GuestFullName      string
	StorageCommitted   int64
	StorageUncommitted int64
	IPAddresses        []string
	Disks              []Disk

	// VCHost is the datasource tag of the vCenter the VM was polled from.
	VCHost string
	// LastBackup is parsed from the annotation; nil when absent.
	LastBackup *time.Time
}

// Disk is a guest filesystem of a VM.
type Disk struct {
	Path      string
	Capacity  int64
	FreeSpace int64
}

// GiBRound converts bytes to GiB rounded to three decimals.
func GiBRound(bytes int64) decimal.Decimal {
	return decimal.NewFromInt(bytes).Div(decimal.NewFromInt(bytesPerGiB)).Round(gibPrecision)
}

func (d Disk) CapacityGB() decimal.Decimal {
	return GiBRound(d.Capacity)
}

func (d Disk) UsedGB() decimal.Decimal {
	return GiBRound(d.Capacity - d.FreeSpace)
}

func (d Disk) Field(name string) any {
	switch name {
	case SourceDiskPath:
		return d.Path
	case SourceDiskCapacityGB:
		return d.CapacityGB()
	case SourceDiskUsedGB:
		return d.UsedGB()
	default:
		return nil
	}
}

// IPSource is a single source-side IP address record.
type IPSource string

func (ip IPSource) Field(name string) any {
	if name == SourceIPAddress {
		return string(ip)
	}
	return nil
}

func (v VM) StorageProvisioned() int64 {
	return v.StorageCommitted + v.StorageUncommitted
}

func (v VM) Field(name string) any {
	switch name {
	case SourceInstanceUUID:
		return v.InstanceUUID
	case SourceName:
		return v.Name
	case SourceNumCPU:
		return v.NumCPU
	case SourceMemoryMB:
		return v.MemoryMB
	case SourcePowerState:
		return v.PowerState
	case SourceAnnotation:
		return v.Annotation
	case SourceLastBackup:
		if v.LastBackup == nil {
			return nil
		}
		return *v.LastBackup
	case SourceVCHost:
		return v.VCHost
	case SourceCommittedGB:
		return GiBRound(v.StorageCommitted)
	case SourceProvisionedGB:
		return GiBRound(v.StorageProvisioned())
	case SourceGuestHostName:
		return v.GuestHostName
	case SourceGuestFullName:
		return v.GuestFullName
	default:
		return nil
	}
}

// Sources returns the per-record source collection of a linked class. The
// result is keyed by natural key; later duplicates win.
func (v VM) Sources(kind LinkedKind) map[string]SourceRecord {
	out := make(map[string]SourceRecord)
	switch kind {
	case LinkedIPAddress:
		for _, ip := range v.IPAddresses {
			if ip = strings.TrimSpace(ip); ip != "" {
				out[ip] = IPSource(ip)
			}
		}
	case LinkedFilesystem:
		for _, d := range v.Disks {
			if d.Path != "" {
				out[d.Path] = d
			}
		}
	}
	return out
}

// SourceRecord is anything addressable by source field name.
type SourceRecord interface {
	Field(name string) any
}

var backupPattern = regexp.MustCompile(`Time: \[(\d\d\.\d\d\.\d\d\d\d .*?)\]`)

const backupLayout = "02.01.2006 15:04:05"

// ParseLastBackup extracts the backup timestamp embedded in an annotation,
// interpreting it in loc. A missing or malformed stamp yields nil.
func ParseLastBackup(annotation string, loc *time.Location) *time.Time {
	m := backupPattern.FindStringSubmatch(annotation)
	if len(m) < 2 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	raw := strings.TrimSpace(m[1])
	for _, layout := range []string{backupLayout, "02.01.2006 15:04", "2.1.2006 15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t
		}
	}
	return nil
}
