package ipam

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/manager"
	"github.com/cuemby/vcp/pkg/types"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newTestManager(t *testing.T) *manager.Manager {
	t.Helper()
	m, err := manager.NewManager(&manager.Config{
		NodeID:   "controller-1",
		BindAddr: freeAddr(t),
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, m.Bootstrap())
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

// small30 is a /30: 4 addresses total, 2 usable hosts (network + broadcast
// excluded), one of which is reserved below as the gateway.
const small30 = "10.0.0.0/30"

func testNetwork(id string) *types.Network {
	return &types.Network{
		ID:      id,
		Name:    id,
		CIDR:    small30,
		Gateway: "10.0.0.1",
	}
}

func TestMaterializeNetworkSkipsGatewayAndEdges(t *testing.T) {
	mgr := newTestManager(t)
	a := NewAllocator(mgr)

	network := testNetwork("net-1")
	require.NoError(t, mgr.CreateNetwork(network))
	require.NoError(t, a.MaterializeNetwork(network))

	allocs, err := mgr.ListIPAllocations("net-1")
	require.NoError(t, err)
	// /30 has 2 usable hosts (.1, .2); .1 is the gateway and excluded.
	require.Len(t, allocs, 1)
	require.Equal(t, "10.0.0.2", allocs[0].IPAddress)
	require.Equal(t, types.IPStatusAvailable, allocs[0].Status)
}

func TestAllocateAssociateRelease(t *testing.T) {
	mgr := newTestManager(t)
	a := NewAllocator(mgr)

	network := &types.Network{ID: "net-2", Name: "net-2", CIDR: "10.0.1.0/29"}
	require.NoError(t, mgr.CreateNetwork(network))
	require.NoError(t, a.MaterializeNetwork(network))

	alloc, err := a.Allocate("net-2")
	require.NoError(t, err)
	require.Equal(t, types.IPStatusAllocated, alloc.Status)
	require.NotNil(t, alloc.AllocatedAt)

	require.NoError(t, a.Associate(alloc.ID, "vm-1"))
	// idempotent re-associate with the same VM is a no-op, not an error.
	require.NoError(t, a.Associate(alloc.ID, "vm-1"))

	got, err := mgr.GetIPAllocation(alloc.ID)
	require.NoError(t, err)
	require.Equal(t, "vm-1", got.VMID)

	require.NoError(t, a.Release("net-2", "vm-1"))
	got, err = mgr.GetIPAllocation(alloc.ID)
	require.NoError(t, err)
	require.Equal(t, types.IPStatusAvailable, got.Status)
	require.Empty(t, got.VMID)
	require.Nil(t, got.AllocatedAt)
}

func TestAllocateExhaustion(t *testing.T) {
	mgr := newTestManager(t)
	a := NewAllocator(mgr)

	network := testNetwork("net-3")
	network.CIDR = small30
	network.Gateway = ""
	require.NoError(t, mgr.CreateNetwork(network))
	require.NoError(t, a.MaterializeNetwork(network))

	// /30 without a gateway reservation has exactly 2 usable hosts.
	_, err := a.Allocate("net-3")
	require.NoError(t, err)
	_, err = a.Allocate("net-3")
	require.NoError(t, err)

	_, err = a.Allocate("net-3")
	require.Error(t, err)
}

func TestReserveOnlyFromAvailable(t *testing.T) {
	mgr := newTestManager(t)
	a := NewAllocator(mgr)

	network := &types.Network{ID: "net-4", Name: "net-4", CIDR: "10.0.2.0/29"}
	require.NoError(t, mgr.CreateNetwork(network))
	require.NoError(t, a.MaterializeNetwork(network))

	allocs, err := mgr.ListIPAllocations("net-4")
	require.NoError(t, err)
	require.NotEmpty(t, allocs)

	target := allocs[0].IPAddress
	require.NoError(t, a.Reserve("net-4", target))

	got, err := mgr.GetIPAllocation(allocs[0].ID)
	require.NoError(t, err)
	require.Equal(t, types.IPStatusReserved, got.Status)

	// reserving an already-reserved address is rejected.
	require.Error(t, a.Reserve("net-4", target))
}

func TestAssociateRejectsNonAllocatedRow(t *testing.T) {
	mgr := newTestManager(t)
	a := NewAllocator(mgr)

	network := &types.Network{ID: "net-5", Name: "net-5", CIDR: "10.0.3.0/29"}
	require.NoError(t, mgr.CreateNetwork(network))
	require.NoError(t, a.MaterializeNetwork(network))

	allocs, err := mgr.ListIPAllocations("net-5")
	require.NoError(t, err)
	require.NotEmpty(t, allocs)

	// row is still available, never allocated; associating must fail.
	require.Error(t, a.Associate(allocs[0].ID, "vm-x"))
}
