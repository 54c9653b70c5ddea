package orchestrator

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/ipam"
	"github.com/cuemby/vcp/pkg/manager"
	"github.com/cuemby/vcp/pkg/rpc"
	"github.com/cuemby/vcp/pkg/scheduler"
	"github.com/cuemby/vcp/pkg/types"
)

func testCtx() context.Context { return context.Background() }

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

// fakeAgentConn is an in-memory rpc.Conn that answers every request
// frame through a caller-supplied handler, standing in for a real agent
// websocket session.
type fakeAgentConn struct {
	t       *testing.T
	registry *rpc.Registry
	nodeID  string
	handle  func(method string, payload json.RawMessage) (json.RawMessage, *rpc.FrameError)
}

func (f *fakeAgentConn) Send(fr rpc.Frame) error {
	if fr.Type != rpc.FrameRequest {
		return nil
	}
	go func() {
		result, ferr := f.handle(fr.Method, fr.Payload)
		f.registry.HandleFrame(f.nodeID, rpc.Frame{ID: fr.ID, Type: rpc.FrameResponse, Payload: result, Error: ferr})
	}()
	return nil
}

func (f *fakeAgentConn) Close() error { return nil }

// okHandler answers every request with an empty success payload.
func okHandler(method string, payload json.RawMessage) (json.RawMessage, *rpc.FrameError) {
	return json.RawMessage(`{}`), nil
}

func newTestService(t *testing.T, nodeID string, handle func(method string, payload json.RawMessage) (json.RawMessage, *rpc.FrameError)) *Service {
	t.Helper()
	mgr := newTestManager(t)
	sched := scheduler.NewScheduler(mgr)
	registry := rpc.NewRegistry(rpc.RegisterHooks{})
	alloc := ipam.NewAllocator(mgr)
	svc := NewService(mgr, sched, registry, alloc)

	node := &types.Node{
		ID:            nodeID,
		Hostname:      nodeID,
		Status:        types.NodeStatusOnline,
		CPUCores:      8,
		MemoryTotalBytes: 16 << 30,
		LastHeartbeat: time.Now(),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, mgr.CreateNode(node))

	if handle != nil {
		conn := &fakeAgentConn{t: t, registry: registry, nodeID: nodeID, handle: handle}
		registry.Register(rpc.RegistrationInfo{NodeID: nodeID}, conn)
	}
	return svc
}
