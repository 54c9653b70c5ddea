package hypervisor

import (
	"encoding/xml"
	"fmt"

	"github.com/cuemby/vcp/pkg/types"
)

// domainDisk is one <disk> element, tagged with the volume id in
// <serial> so a later detach can find the matching device without the
// caller having to resend the volume's path.
type domainDisk struct {
	XMLName xml.Name `xml:"disk"`
	Type    string   `xml:"type,attr"`
	Device  string   `xml:"device,attr"`
	Driver  struct {
		Name string `xml:"name,attr"`
		Type string `xml:"type,attr"`
	} `xml:"driver"`
	Source struct {
		File string `xml:"file,attr"`
	} `xml:"source"`
	Target struct {
		Dev string `xml:"dev,attr"`
		Bus string `xml:"bus,attr"`
	} `xml:"target"`
	Serial string `xml:"serial,omitempty"`
}

// domainInterface is one <interface> element.
type domainInterface struct {
	XMLName xml.Name `xml:"interface"`
	Type    string   `xml:"type,attr"`
	MAC     struct {
		Address string `xml:"address,attr"`
	} `xml:"mac"`
	Source struct {
		Bridge string `xml:"bridge,attr"`
	} `xml:"source"`
	Model struct {
		Type string `xml:"type,attr"`
	} `xml:"model"`
}

// domainDoc is the subset of libvirt's domain XML this driver reads and
// writes: enough to define a domain and to locate an attached disk by
// volume id for detach.
type domainDoc struct {
	XMLName xml.Name `xml:"domain"`
	Type    string   `xml:"type,attr"`
	Name    string   `xml:"name"`
	UUID    string   `xml:"uuid"`
	Memory  struct {
		Unit  string `xml:"unit,attr"`
		Value int    `xml:",chardata"`
	} `xml:"memory"`
	VCPU   int    `xml:"vcpu"`
	OSType string `xml:"os>type"`
	Devices struct {
		Disks      []domainDisk      `xml:"disk"`
		Interfaces []domainInterface `xml:"interface"`
	} `xml:"devices"`
}

func diskTargetName(index int) string {
	// virtio disks are vda, vdb, vdc, ...
	return fmt.Sprintf("vd%c", 'a'+index)
}

// buildDomainXML renders a full domain definition for vm with the given
// disks already resolved to host paths and NIC bridges already ensured
// to exist on the host.
func buildDomainXML(vm *types.VM, disks []DiskAttachment) (string, error) {
	doc := domainDoc{Type: "kvm", Name: vm.ID, UUID: vm.UUID, VCPU: vm.VCPU}
	doc.Memory.Unit = "MiB"
	doc.Memory.Value = vm.MemoryMB
	if vm.OSType != "" {
		doc.OSType = vm.OSType
	} else {
		doc.OSType = "hvm"
	}

	for i, d := range disks {
		var disk domainDisk
		disk.Type = "file"
		disk.Device = "disk"
		disk.Driver.Name = "qemu"
		if d.Format != "" {
			disk.Driver.Type = d.Format
		} else {
			disk.Driver.Type = "qcow2"
		}
		disk.Source.File = d.Path
		disk.Target.Dev = diskTargetName(i)
		disk.Target.Bus = "virtio"
		disk.Serial = d.VolumeID
		doc.Devices.Disks = append(doc.Devices.Disks, disk)
	}

	for _, nic := range vm.NICs {
		var iface domainInterface
		iface.Type = "bridge"
		iface.MAC.Address = nic.MAC
		iface.Source.Bridge = nic.Bridge
		if nic.Model != "" {
			iface.Model.Type = nic.Model
		} else {
			iface.Model.Type = "virtio"
		}
		doc.Devices.Interfaces = append(doc.Devices.Interfaces, iface)
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal domain xml for vm %s: %w", vm.ID, err)
	}
	return xml.Header + string(body), nil
}

// diskAttachXML renders a standalone <disk> element for hot-attach.
func diskAttachXML(index int, disk DiskAttachment) string {
	format := disk.Format
	if format == "" {
		format = "qcow2"
	}
	return fmt.Sprintf(`<disk type='file' device='disk'>
  <driver name='qemu' type='%s'/>
  <source file='%s'/>
  <target dev='%s' bus='virtio'/>
  <serial>%s</serial>
</disk>`, format, disk.Path, diskTargetName(index), disk.VolumeID)
}

// findDiskBySerial parses a domain's live XML and returns the <disk>
// element whose serial matches volumeID, for building the matching
// detach request. Reports ok=false if no such disk is attached.
func findDiskBySerial(domainXML, volumeID string) (xmlFragment string, ok bool) {
	var doc domainDoc
	if err := xml.Unmarshal([]byte(domainXML), &doc); err != nil {
		return "", false
	}
	for _, disk := range doc.Devices.Disks {
		if disk.Serial != volumeID {
			continue
		}
		body, err := xml.Marshal(disk)
		if err != nil {
			return "", false
		}
		return string(body), true
	}
	return "", false
}

// domainStatus maps a libvirt domain state constant to the controller's
// VMStatus vocabulary. Unrecognized states map to error so a drifted or
// crashed domain surfaces rather than silently reporting healthy.
func domainStatus(state int32) types.VMStatus {
	switch state {
	case domainStateRunning:
		return types.VMStatusRunning
	case domainStatePaused:
		return types.VMStatusPaused
	case domainStateShutdown, domainStateShutoff:
		return types.VMStatusStopped
	case domainStateCrashed:
		return types.VMStatusError
	default:
		return types.VMStatusError
	}
}

// libvirt's virDomainState enum values (include/libvirt/libvirt-domain.h).
const (
	domainStateRunning  int32 = 1
	domainStatePaused   int32 = 3
	domainStateShutdown int32 = 4
	domainStateShutoff  int32 = 5
	domainStateCrashed  int32 = 6
)
