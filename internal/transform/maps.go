package transform

import "vfzsync/internal/inventory"

// DefaultVirtualServerMap maps VM fields onto virtual server attributes.
var DefaultVirtualServerMap = Map{
	{Source: inventory.SourceInstanceUUID, Target: inventory.AttrUUID},
	{Source: inventory.SourceName, Target: inventory.AttrVisibleID},
	{Source: inventory.SourceNumCPU, Target: inventory.AttrCPU},
	{Source: inventory.SourceMemoryMB, Target: inventory.AttrRAM},
	{Source: inventory.SourcePowerState, Target: inventory.AttrStatus},
	{Source: inventory.SourceAnnotation, Target: inventory.AttrRemark},
	{Source: inventory.SourceLastBackup, Target: inventory.AttrLastBackup},
	{Source: inventory.SourceVCHost, Target: inventory.AttrDatasource},
	{Source: inventory.SourceCommittedGB, Target: inventory.AttrHddUsed},
	{Source: inventory.SourceProvisionedGB, Target: inventory.AttrHddTotal},
	{Source: inventory.SourceGuestHostName, Target: inventory.AttrHostname},
	{Source: inventory.SourceGuestFullName, Target: inventory.AttrVMType},
}

var DefaultIPAddressMap = Map{
	{Source: inventory.SourceIPAddress, Target: inventory.AttrIPAddress},
}

var DefaultFilesystemMap = Map{
	{Source: inventory.SourceDiskPath, Target: inventory.AttrMountpoint},
	{Source: inventory.SourceDiskCapacityGB, Target: inventory.AttrCapacityGB},
	{Source: inventory.SourceDiskUsedGB, Target: inventory.AttrUsedGB},
}

// Tables bundles the mapping tables used by one pass.
type Tables struct {
	VirtualServer Map
	IPAddress     Map
	Filesystem    Map
}

func DefaultTables() Tables {
	return Tables{
		VirtualServer: append(Map(nil), DefaultVirtualServerMap...),
		IPAddress:     append(Map(nil), DefaultIPAddressMap...),
		Filesystem:    append(Map(nil), DefaultFilesystemMap...),
	}
}

// WithOverrides replaces each non-empty table.
func (t Tables) WithOverrides(vs, ip, fs Map) Tables {
	if len(vs) > 0 {
		t.VirtualServer = vs
	}
	if len(ip) > 0 {
		t.IPAddress = ip
	}
	if len(fs) > 0 {
		t.Filesystem = fs
	}
	return t
}

// Linked returns the table of a linked class.
func (t Tables) Linked(kind inventory.LinkedKind) Map {
	switch kind {
	case inventory.LinkedIPAddress:
		return t.IPAddress
	case inventory.LinkedFilesystem:
		return t.Filesystem
	default:
		return nil
	}
}
