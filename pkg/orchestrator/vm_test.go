package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/rpc"
	"github.com/cuemby/vcp/pkg/types"
)

func testVMSpec(nodeID string) *types.VM {
	return &types.VM{
		Name:     "test-vm",
		NodeID:   nodeID,
		VCPU:     1,
		MemoryMB: 512,
	}
}

func TestCreateVMAllocatesIPAndStartStop(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	ctx := context.Background()

	network := &types.Network{ID: "net-1", Name: "net-1", CIDR: "10.0.0.0/29"}
	require.NoError(t, svc.manager.CreateNetwork(network))
	require.NoError(t, svc.ipam.MaterializeNetwork(network))

	spec := testVMSpec("node-1")
	spec.NICs = []*types.NICSpec{{NetworkID: "net-1"}}

	vm, err := svc.CreateVM(ctx, "user-1", spec)
	require.NoError(t, err)
	require.Equal(t, types.VMStatusStopped, vm.Status)
	require.NotEmpty(t, vm.NICs[0].IP)

	allocs, err := svc.manager.ListIPAllocations("net-1")
	require.NoError(t, err)
	var matched *types.IPAllocation
	for _, a := range allocs {
		if a.IPAddress == vm.NICs[0].IP {
			matched = a
		}
	}
	require.NotNil(t, matched)
	require.Equal(t, vm.ID, matched.VMID)
	require.Equal(t, types.IPStatusAllocated, matched.Status)

	started, err := svc.StartVM(ctx, "user-1", vm.ID)
	require.NoError(t, err)
	require.Equal(t, types.VMStatusRunning, started.Status)
	require.NotNil(t, started.StartedAt)

	stopped, err := svc.StopVM(ctx, "user-1", vm.ID, false)
	require.NoError(t, err)
	require.Equal(t, types.VMStatusStopped, stopped.Status)
}

func TestStartVMDriverFailureMarksError(t *testing.T) {
	failHandler := func(method string, payload json.RawMessage) (json.RawMessage, *rpc.FrameError) {
		return nil, &rpc.FrameError{Code: "HYPERVISOR_ERROR", Message: "no such domain"}
	}
	svc := newTestService(t, "node-1", failHandler)
	ctx := context.Background()

	vm, err := svc.CreateVM(ctx, "user-1", testVMSpec("node-1"))
	require.NoError(t, err)

	_, err = svc.StartVM(ctx, "user-1", vm.ID)
	require.Error(t, err)

	got, err := svc.manager.GetVM(vm.ID)
	require.NoError(t, err)
	require.Equal(t, types.VMStatusError, got.Status)
}

func TestStartVMTransportFailureLeavesIntentState(t *testing.T) {
	svc := newTestService(t, "node-1", nil) // no agent connection registered
	ctx := context.Background()

	vm, err := svc.CreateVM(ctx, "user-1", testVMSpec("node-1"))
	require.NoError(t, err)

	_, err = svc.StartVM(ctx, "user-1", vm.ID)
	require.Error(t, err)

	got, err := svc.manager.GetVM(vm.ID)
	require.NoError(t, err)
	require.Equal(t, types.VMStatusStarting, got.Status)
}

func TestDeleteVMRejectsRunning(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	ctx := context.Background()

	vm, err := svc.CreateVM(ctx, "user-1", testVMSpec("node-1"))
	require.NoError(t, err)
	_, err = svc.StartVM(ctx, "user-1", vm.ID)
	require.NoError(t, err)

	err = svc.DeleteVM(ctx, "user-1", vm.ID)
	require.Error(t, err)
}

func TestDeleteVMFreesVolumes(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	ctx := context.Background()

	pool := &types.StoragePool{ID: "pool-1", Name: "pool-1", NodeID: "node-1", Type: types.StoragePoolLVM}
	require.NoError(t, svc.manager.CreateStoragePool(pool))
	vol := &types.Volume{ID: "vol-1", Name: "vol-1", PoolID: "pool-1", Status: types.VolumeStatusAvailable, SizeGB: 10}
	require.NoError(t, svc.manager.CreateVolume(vol))

	spec := testVMSpec("node-1")
	spec.DiskIDs = []string{"vol-1"}
	vm, err := svc.CreateVM(ctx, "user-1", spec)
	require.NoError(t, err)

	attached, err := svc.manager.GetVolume("vol-1")
	require.NoError(t, err)
	require.Equal(t, types.VolumeStatusInUse, attached.Status)

	require.NoError(t, svc.DeleteVM(ctx, "user-1", vm.ID))

	freed, err := svc.manager.GetVolume("vol-1")
	require.NoError(t, err)
	require.Equal(t, types.VolumeStatusAvailable, freed.Status)
	require.Empty(t, freed.VMID)
}
