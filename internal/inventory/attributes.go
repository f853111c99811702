package inventory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CMDB attribute names of the virtualServer entity.
const (
	AttrID                  = "id"
	AttrElid                = "elid"
	AttrVisibleID           = "visibleId"
	AttrCPU                 = "cCpu"
	AttrRAM                 = "cRam"
	AttrManagementInterface = "cManagementInterface"
	AttrCommunityName       = "cCommunityName"
	AttrNewServer           = "cSdiNewServer"
	AttrMonitoring          = "cSdiMonitoring"
	AttrDeleted             = "cSdiDeleted"
	AttrDelConfirmed        = "cCSdiDelConfirmed"
	AttrUUID                = "cUuid"
	AttrStatus              = "cSdiStatus"
	AttrHddTotal            = "cSdHddTotal"
	AttrHddUsed             = "cSdiHddUsed"
	AttrBackupNeeded        = "cSdiBackupNeeded"
	AttrLastBackup          = "cSdiLastBackup"
	AttrMonitoringSnmp      = "cSdiMonitoringSnmp"
	AttrNoShutdown          = "cSdiNoShutdown"
	AttrRemark              = "remark"
	AttrDatasource          = "datasource"
	AttrHostname            = "cSdiHostname"
	AttrPurpose             = "cSdiPurpose"
	AttrVMType              = "virtualMachineType"
	AttrWithHistory         = "cServerWithHistory"
)

// VirtualServerAttributes is the attribute list requested from the CMDB.
var VirtualServerAttributes = []string{
	AttrID,
	AttrVisibleID,
	AttrElid,
	AttrCPU,
	AttrRAM,
	AttrManagementInterface,
	AttrCommunityName,
	AttrNewServer,
	AttrMonitoring,
	AttrDeleted,
	AttrDelConfirmed,
	AttrUUID,
	AttrStatus,
	AttrHddTotal,
	AttrHddUsed,
	AttrBackupNeeded,
	AttrLastBackup,
	AttrMonitoringSnmp,
	AttrNoShutdown,
	AttrRemark,
	AttrDatasource,
	AttrHostname,
	AttrPurpose,
	AttrVMType,
	AttrWithHistory,
}

// TimestampLayout is the wire format of CMDB timestamps.
const TimestampLayout = "2006-01-02T15:04:05-0700"

// YesNo encodes a CMDB boolean.
func YesNo(v bool) string {
	if v {
		return "Y"
	}
	return "N"
}

// ParseYesNo accepts y/yes in any case as true, anything else as false.
func ParseYesNo(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func attrString(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func attrInt(attrs map[string]any, key string) int {
	switch v := attrs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return 0
}

func attrBool(attrs map[string]any, key string) bool {
	switch v := attrs[key].(type) {
	case bool:
		return v
	case string:
		return ParseYesNo(v)
	}
	return false
}

func attrDecimal(attrs map[string]any, key string) *decimal.Decimal {
	var (
		d   decimal.Decimal
		err error
	)
	switch v := attrs[key].(type) {
	case nil:
		return nil
	case decimal.Decimal:
		d = v
	case *decimal.Decimal:
		return v
	case float64:
		d = decimal.NewFromFloat(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		d, err = decimal.NewFromString(strings.TrimSpace(v))
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &d
}

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func attrTime(attrs map[string]any, key string) *time.Time {
	switch v := attrs[key].(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return &v
	case *time.Time:
		return v
	case string:
		return ParseTimestamp(v)
	}
	return nil
}

// ParseTimestamp parses CMDB timestamp strings, returning nil for empty or
// unparseable input.
func ParseTimestamp(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
