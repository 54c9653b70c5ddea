package hypervisor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/types"
)

func testVM() *types.VM {
	return &types.VM{
		ID:       "vm-1",
		UUID:     "11111111-1111-1111-1111-111111111111",
		Name:     "web-1",
		VCPU:     2,
		MemoryMB: 2048,
		OSType:   "hvm",
		NICs: []*types.NICSpec{
			{NetworkID: "net-1", MAC: "52:54:00:00:00:01", Bridge: "br0", Model: "virtio"},
		},
	}
}

func TestBuildDomainXMLIncludesDisksAndNICs(t *testing.T) {
	disks := []DiskAttachment{{VolumeID: "vol-1", Path: "/pool/vol-1.qcow2", Format: "qcow2"}}
	out, err := buildDomainXML(testVM(), disks)
	require.NoError(t, err)
	require.Contains(t, out, "vol-1")
	require.Contains(t, out, "/pool/vol-1.qcow2")
	require.Contains(t, out, "br0")
	require.Contains(t, out, "vda")
}

func TestFindDiskBySerialRoundTrips(t *testing.T) {
	disks := []DiskAttachment{
		{VolumeID: "vol-1", Path: "/pool/vol-1.qcow2", Format: "qcow2"},
		{VolumeID: "vol-2", Path: "/pool/vol-2.qcow2", Format: "qcow2"},
	}
	domXML, err := buildDomainXML(testVM(), disks)
	require.NoError(t, err)

	fragment, ok := findDiskBySerial(domXML, "vol-2")
	require.True(t, ok)
	require.Contains(t, fragment, "vol-2")
	require.Contains(t, fragment, "vdb")

	_, ok = findDiskBySerial(domXML, "vol-missing")
	require.False(t, ok)
}

func TestDiskTargetNameSequence(t *testing.T) {
	require.Equal(t, "vda", diskTargetName(0))
	require.Equal(t, "vdb", diskTargetName(1))
	require.Equal(t, "vdc", diskTargetName(2))
}

func TestDomainStatusMapping(t *testing.T) {
	require.Equal(t, types.VMStatusRunning, domainStatus(domainStateRunning))
	require.Equal(t, types.VMStatusStopped, domainStatus(domainStateShutoff))
	require.Equal(t, types.VMStatusError, domainStatus(domainStateCrashed))
}

func TestDiskAttachXMLContainsSerial(t *testing.T) {
	xmlStr := diskAttachXML(1, DiskAttachment{VolumeID: "vol-9", Path: "/pool/vol-9.qcow2", Format: "raw"})
	require.True(t, strings.Contains(xmlStr, "vol-9"))
	require.True(t, strings.Contains(xmlStr, "vdb"))
}
