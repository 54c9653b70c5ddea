package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/types"
)

func TestCreateNetworkRejectsBadGateway(t *testing.T) {
	svc := newTestService(t, "node-1", nil)

	_, err := svc.CreateNetwork("user-1", &types.Network{Name: "net-1", CIDR: "10.0.0.0/24", Gateway: "192.168.0.1"})
	require.Error(t, err)
}

func TestCreateNetworkMaterializesAllocations(t *testing.T) {
	svc := newTestService(t, "node-1", nil)

	network, err := svc.CreateNetwork("user-1", &types.Network{Name: "net-1", CIDR: "10.0.0.0/29", Gateway: "10.0.0.1"})
	require.NoError(t, err)
	require.Equal(t, types.NetworkStatusActive, network.Status)

	allocs, err := svc.manager.ListIPAllocations(network.ID)
	require.NoError(t, err)
	require.NotEmpty(t, allocs)
}

func TestDeleteNetworkRejectsWithAllocatedAddresses(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)

	network, err := svc.CreateNetwork("user-1", &types.Network{Name: "net-1", CIDR: "10.0.0.0/29"})
	require.NoError(t, err)

	alloc, err := svc.ipam.Allocate(network.ID)
	require.NoError(t, err)
	require.NoError(t, svc.ipam.Associate(alloc.ID, "vm-1"))

	require.Error(t, svc.DeleteNetwork("user-1", network.ID))

	require.NoError(t, svc.ipam.Release(network.ID, "vm-1"))
	require.NoError(t, svc.DeleteNetwork("user-1", network.ID))
}
