package scheduler

import (
	"net"
	"testing"

	"github.com/cuemby/vcp/pkg/manager"
	"github.com/cuemby/vcp/pkg/types"
	"github.com/stretchr/testify/require"
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

func TestSelectNodePicksLeastLoaded(t *testing.T) {
	mgr := newTestManager(t)
	s := NewScheduler(mgr)

	require.NoError(t, mgr.CreateNode(&types.Node{
		ID: "node-busy", Status: types.NodeStatusOnline,
		CPUThreads: 8, MemoryTotalBytes: 16 * 1024 * 1024 * 1024,
	}))
	require.NoError(t, mgr.CreateNode(&types.Node{
		ID: "node-idle", Status: types.NodeStatusOnline,
		CPUThreads: 8, MemoryTotalBytes: 16 * 1024 * 1024 * 1024,
	}))
	require.NoError(t, mgr.CreateVM(&types.VM{
		ID: "vm-existing", Name: "existing", NodeID: "node-busy",
		Status: types.VMStatusRunning, VCPU: 6, MemoryMB: 14000,
	}))

	selected, err := s.SelectNode(&types.VM{ID: "vm-new", Name: "new", VCPU: 2, MemoryMB: 2048})
	require.NoError(t, err)
	require.Equal(t, "node-idle", selected.ID)
}

func TestSelectNodeSkipsOfflineAndUndersized(t *testing.T) {
	mgr := newTestManager(t)
	s := NewScheduler(mgr)

	require.NoError(t, mgr.CreateNode(&types.Node{
		ID: "node-offline", Status: types.NodeStatusOffline,
		CPUThreads: 32, MemoryTotalBytes: 64 * 1024 * 1024 * 1024,
	}))
	require.NoError(t, mgr.CreateNode(&types.Node{
		ID: "node-small", Status: types.NodeStatusOnline,
		CPUThreads: 1, MemoryTotalBytes: 512 * 1024 * 1024,
	}))

	_, err := s.SelectNode(&types.VM{ID: "vm-new", VCPU: 4, MemoryMB: 4096})
	require.Error(t, err)
}

func TestSelectNodeNoNodes(t *testing.T) {
	mgr := newTestManager(t)
	s := NewScheduler(mgr)

	_, err := s.SelectNode(&types.VM{ID: "vm-new", VCPU: 1, MemoryMB: 512})
	require.Error(t, err)
}
