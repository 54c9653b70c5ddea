package storage

import (
	"testing"
	"time"

	"github.com/cuemby/vcp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNodeCRUD(t *testing.T) {
	store := newTestStore(t)

	node := &types.Node{ID: "node-1", Hostname: "h1", Status: types.NodeStatusOnline}
	require.NoError(t, store.CreateNode(node))

	got, err := store.GetNode("node-1")
	require.NoError(t, err)
	assert.Equal(t, "h1", got.Hostname)

	node.Status = types.NodeStatusOffline
	require.NoError(t, store.UpdateNode(node))
	got, err = store.GetNode("node-1")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusOffline, got.Status)

	nodes, err := store.ListNodes()
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	require.NoError(t, store.DeleteNode("node-1"))
	_, err = store.GetNode("node-1")
	assert.Error(t, err)
}

func TestVMByName(t *testing.T) {
	store := newTestStore(t)
	vm := &types.VM{ID: "vm-1", Name: "web-1", Status: types.VMStatusStopped}
	require.NoError(t, store.CreateVM(vm))

	got, err := store.GetVMByName("web-1")
	require.NoError(t, err)
	assert.Equal(t, "vm-1", got.ID)

	_, err = store.GetVMByName("missing")
	assert.Error(t, err)
}

func TestVolumeRecomputesPoolAllocatedGB(t *testing.T) {
	store := newTestStore(t)

	pool := &types.StoragePool{ID: "pool-1", Name: "default", CapacityGB: 100}
	require.NoError(t, store.CreateStoragePool(pool))

	v1 := &types.Volume{ID: "vol-1", PoolID: "pool-1", SizeGB: 20}
	v2 := &types.Volume{ID: "vol-2", PoolID: "pool-1", SizeGB: 30}
	require.NoError(t, store.CreateVolume(v1))
	require.NoError(t, store.CreateVolume(v2))

	got, err := store.GetStoragePool("pool-1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.AllocatedGB)
	assert.Equal(t, 50.0, got.AvailableGB)

	require.NoError(t, store.DeleteVolume("vol-1"))
	got, err = store.GetStoragePool("pool-1")
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.AllocatedGB)
	assert.Equal(t, 70.0, got.AvailableGB)
}

func TestIPAllocationListAndDeleteByNetwork(t *testing.T) {
	store := newTestStore(t)

	for i, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		require.NoError(t, store.CreateIPAllocation(&types.IPAllocation{
			ID:        ip,
			NetworkID: "net-1",
			IPAddress: ip,
			IPNumeric: uint32(i + 1),
			Status:    types.IPStatusAvailable,
		}))
	}
	require.NoError(t, store.CreateIPAllocation(&types.IPAllocation{
		ID: "10.1.0.1", NetworkID: "net-2", IPAddress: "10.1.0.1", Status: types.IPStatusAvailable,
	}))

	allocs, err := store.ListIPAllocations("net-1")
	require.NoError(t, err)
	assert.Len(t, allocs, 3)

	require.NoError(t, store.DeleteIPAllocationsByNetwork("net-1"))
	allocs, err = store.ListIPAllocations("net-1")
	require.NoError(t, err)
	assert.Len(t, allocs, 0)

	allocs, err = store.ListIPAllocations("net-2")
	require.NoError(t, err)
	assert.Len(t, allocs, 1)
}

func TestAuditLogOrderedNewestFirst(t *testing.T) {
	store := newTestStore(t)

	for _, action := range []string{"create_vm", "start_vm", "delete_vm"} {
		require.NoError(t, store.AppendAuditLog(&types.AuditLog{
			ID: action, Action: action, CreatedAt: time.Now(),
		}))
	}

	entries, err := store.ListAuditLogs(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "delete_vm", entries[0].Action)
	assert.Equal(t, "start_vm", entries[1].Action)
}

func TestTaskListByTargetAndNode(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateTask(&types.Task{
		ID: "t1", TargetType: "vm", TargetID: "vm-1", NodeID: "node-1", Status: types.TaskStatusPending,
	}))
	require.NoError(t, store.CreateTask(&types.Task{
		ID: "t2", TargetType: "vm", TargetID: "vm-2", NodeID: "node-1", Status: types.TaskStatusPending,
	}))

	byTarget, err := store.ListTasksByTarget("vm", "vm-1")
	require.NoError(t, err)
	assert.Len(t, byTarget, 1)

	byNode, err := store.ListTasksByNode("node-1")
	require.NoError(t, err)
	assert.Len(t, byNode, 2)
}

func TestUserByUsername(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateUser(&types.User{ID: "u1", Username: "admin"}))

	got, err := store.GetUserByUsername("admin")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
}

func TestCARoundTrip(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetCA()
	assert.Error(t, err)

	require.NoError(t, store.SaveCA([]byte("root-cert-bytes")))
	data, err := store.GetCA()
	require.NoError(t, err)
	assert.Equal(t, "root-cert-bytes", string(data))
}
