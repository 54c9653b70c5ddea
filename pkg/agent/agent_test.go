package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/rpc"
	"github.com/cuemby/vcp/pkg/types"
)

// TestAgentRegistersAndHandlesDispatchedRPC exercises the full wire path
// this package exists to drive: connect, complete the register
// handshake against a real pkg/rpc.ServeAgent endpoint, then answer a
// request the registry dispatches back over the same connection.
func TestAgentRegistersAndHandlesDispatchedRPC(t *testing.T) {
	registry := rpc.NewRegistry(rpc.RegisterHooks{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpc.ServeAgent(registry, nil, w, r)
	}))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	hv := &fakeHypervisor{describeRet: types.VMStatusRunning}
	a := NewAgent(Config{NodeID: "node-1", Hostname: "h1", ControllerURL: wsURL}, hv, &fakeStorage{}, &fakeNetwork{})

	conn, err := a.connect()
	require.NoError(t, err)
	defer a.Stop()

	go a.serve(context.Background(), conn)

	result, err := registry.Dispatch(context.Background(), "node-1", "vm.describe", map[string]string{"vm_id": "vm-1"})
	require.NoError(t, err)

	var out struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(result, &out))
	require.Equal(t, "running", out.Status)
	require.Equal(t, "vm-1", hv.describeVM)
}

func TestAgentConnectFailsAgainstUnreachableController(t *testing.T) {
	a := NewAgent(Config{NodeID: "node-1", ControllerURL: "ws://127.0.0.1:1"}, &fakeHypervisor{}, &fakeStorage{}, &fakeNetwork{})
	_, err := a.connect()
	require.Error(t, err)
}
