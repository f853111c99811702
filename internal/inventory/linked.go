package inventory

import (
	"github.com/shopspring/decimal"
)

type LinkedKind string

const (
	LinkedIPAddress  LinkedKind = "ip"
	LinkedFilesystem LinkedKind = "filesystem"
)

// Linked record attribute names.
const (
	AttrIPAddress  = "ipAddress"
	AttrMountpoint = "mountpoint"
	AttrCapacityGB = "capacityGb"
	AttrUsedGB     = "usedGb"
)

// LinkedClass describes how a sub-entity class hangs off a virtual server.
type LinkedClass struct {
	Kind LinkedKind
	// Index is the natural key attribute on the CMDB side.
	Index string
	// SourceIndex is the natural key field on the source side.
	SourceIndex    string
	Type           EntityType
	Relation       string
	RelationPlural string
	Attributes     []string
}

var (
	IPAddressClass = LinkedClass{
		Kind:           LinkedIPAddress,
		Index:          AttrIPAddress,
		SourceIndex:    SourceIPAddress,
		Type:           EntityType{Name: "vmIpAddress", Custom: true},
		Relation:       "CustomVmIpAddress",
		RelationPlural: "CustomVmIpAddresses",
		Attributes:     []string{AttrElid, AttrIPAddress},
	}
	FilesystemClass = LinkedClass{
		Kind:           LinkedFilesystem,
		Index:          AttrMountpoint,
		SourceIndex:    SourceDiskPath,
		Type:           EntityType{Name: "fileSystem"},
		Relation:       "FileSystem",
		RelationPlural: "FileSystems",
		Attributes:     []string{AttrElid, AttrMountpoint, AttrCapacityGB, AttrUsedGB},
	}
)

// LinkedClasses lists the sub-entity classes in processing order.
var LinkedClasses = []LinkedClass{IPAddressClass, FilesystemClass}

// LinkedRecord is a CMDB sub-entity. Link is the elid of the relation
// itself, needed to unlink.
type LinkedRecord struct {
	Elid       string
	Link       string
	Key        string
	CapacityGB *decimal.Decimal
	UsedGB     *decimal.Decimal
}

func (r LinkedRecord) Field(name string) any {
	switch name {
	case AttrElid:
		return r.Elid
	case AttrIPAddress, AttrMountpoint:
		return r.Key
	case AttrCapacityGB:
		if r.CapacityGB == nil {
			return nil
		}
		return *r.CapacityGB
	case AttrUsedGB:
		if r.UsedGB == nil {
			return nil
		}
		return *r.UsedGB
	default:
		return nil
	}
}

// LinkedRecordFromAttributes decodes a related entity returned by the CMDB.
func LinkedRecordFromAttributes(class LinkedClass, entity, relation map[string]any) LinkedRecord {
	return LinkedRecord{
		Elid:       attrString(entity, AttrElid),
		Link:       attrString(relation, AttrElid),
		Key:        attrString(entity, class.Index),
		CapacityGB: attrDecimal(entity, AttrCapacityGB),
		UsedGB:     attrDecimal(entity, AttrUsedGB),
	}
}
