package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/rpc"
	"github.com/cuemby/vcp/pkg/types"
)

func TestHandleNodeRegisteredCreatesAndRejoinsNode(t *testing.T) {
	svc := newTestService(t, "node-1", nil)

	svc.HandleNodeRegistered(rpc.RegistrationInfo{NodeID: "node-2", Hostname: "host-2", IPAddress: "10.0.0.9"})
	node, err := svc.manager.GetNode("node-2")
	require.NoError(t, err)
	require.Equal(t, types.NodeStatusOnline, node.Status)

	node.Status = types.NodeStatusOffline
	require.NoError(t, svc.manager.UpdateNode(node))

	svc.HandleNodeRegistered(rpc.RegistrationInfo{NodeID: "node-2", Hostname: "host-2", IPAddress: "10.0.0.9"})
	rejoined, err := svc.manager.GetNode("node-2")
	require.NoError(t, err)
	require.Equal(t, types.NodeStatusOnline, rejoined.Status)
}

func TestSetMaintenanceTogglesOnlineAndMaintenance(t *testing.T) {
	svc := newTestService(t, "node-1", nil)

	node, err := svc.SetMaintenance("admin", "node-1", true)
	require.NoError(t, err)
	require.Equal(t, types.NodeStatusMaintenance, node.Status)

	_, err = svc.SetMaintenance("admin", "node-1", true)
	require.Error(t, err)

	node, err = svc.SetMaintenance("admin", "node-1", false)
	require.NoError(t, err)
	require.Equal(t, types.NodeStatusOnline, node.Status)
}

func TestDeleteNodeRejectsWithAssignedVMs(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)

	_, err := svc.CreateVM(testCtx(), "user-1", testVMSpec("node-1"))
	require.NoError(t, err)

	require.Error(t, svc.DeleteNode("admin", "node-1"))
}

func TestReconcileStaleNodesMarksOffline(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	svc.registry.Heartbeat("node-1")

	svc.ReconcileStaleNodes(time.Now().Add(2 * time.Hour))

	node, err := svc.manager.GetNode("node-1")
	require.NoError(t, err)
	require.Equal(t, types.NodeStatusOffline, node.Status)
}
