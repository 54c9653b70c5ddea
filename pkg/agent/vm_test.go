package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/types"
)

func testAgent() (*Agent, *fakeHypervisor, *fakeStorage, *fakeNetwork) {
	hv := &fakeHypervisor{}
	st := &fakeStorage{}
	nw := &fakeNetwork{ensureRet: "br-test0"}
	a := NewAgent(Config{NodeID: "node-1"}, hv, st, nw)
	return a, hv, st, nw
}

func TestHandleDefineAndStartEnsuresBridgesAndStarts(t *testing.T) {
	a, hv, _, nw := testAgent()

	vm := &types.VM{ID: "vm-1", NICs: []*types.NICSpec{{NetworkID: "net-1"}}}
	payload, err := json.Marshal(domainRequest{
		VM:       vm,
		Disks:    nil,
		Networks: map[string]*types.Network{"net-1": {ID: "net-1", Gateway: "10.0.0.1"}},
	})
	require.NoError(t, err)

	result, err := a.handleDefineAndStart(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, struct{}{}, result)

	require.Equal(t, "vm-1", hv.defineVM.ID)
	require.Equal(t, "br-test0", hv.defineVM.NICs[0].Bridge)
	require.Len(t, nw.ensured, 1)
	require.Len(t, nw.natted, 1, "gateway-bearing network should get NAT")
}

func TestHandleDefineAndStartMissingNetworkFails(t *testing.T) {
	a, _, _, _ := testAgent()

	vm := &types.VM{ID: "vm-1", NICs: []*types.NICSpec{{NetworkID: "net-missing"}}}
	payload, err := json.Marshal(domainRequest{VM: vm, Networks: map[string]*types.Network{}})
	require.NoError(t, err)

	_, err = a.handleDefineAndStart(context.Background(), payload)
	require.Error(t, err)
}

func TestHandleMigratePassesTargetAddress(t *testing.T) {
	a, hv, _, _ := testAgent()

	payload, _ := json.Marshal(map[string]string{
		"vm_id": "vm-1", "target_node_id": "node-2", "target_address": "192.168.1.20",
	})
	_, err := a.handleMigrate(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "vm-1", hv.migrateVM)
	require.Equal(t, "192.168.1.20", hv.migrateAddr)
}

func TestHandleVMDescribeReturnsStatus(t *testing.T) {
	a, hv, _, _ := testAgent()
	hv.describeRet = types.VMStatusRunning

	payload, _ := json.Marshal(map[string]string{"vm_id": "vm-1"})
	result, err := a.handleVMDescribe(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "running", result.(struct {
		Status string `json:"status"`
	}).Status)
}

func TestHandleAttachDiskBuildsDiskAttachment(t *testing.T) {
	a, hv, _, _ := testAgent()

	payload, _ := json.Marshal(map[string]string{
		"vm_id": "vm-1", "volume_id": "vol-1", "path": "/dev/vg0/vol-1", "format": "raw",
	})
	_, err := a.handleAttachDisk(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "vol-1", hv.attachDisk.VolumeID)
	require.Equal(t, "/dev/vg0/vol-1", hv.attachDisk.Path)
	require.Equal(t, "raw", hv.attachDisk.Format)
}
