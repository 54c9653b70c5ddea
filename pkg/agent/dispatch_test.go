package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/rpc"
)

func TestDispatcherUnknownMethodReturnsMethodNotFound(t *testing.T) {
	d := newDispatcher()
	resp := d.handle(context.Background(), rpc.Frame{ID: "f-1", Type: rpc.FrameRequest, Method: "vm.nonexistent"})
	require.NotNil(t, resp.Error)
	require.Equal(t, apperr.MethodNotFound, resp.Error.Code)
}

func TestDispatcherReplaysCachedResultForSameFrameID(t *testing.T) {
	d := newDispatcher()
	calls := 0
	d.register("vm.describe", func(ctx context.Context, payload json.RawMessage) (any, error) {
		calls++
		return struct {
			Status string `json:"status"`
		}{Status: "running"}, nil
	})

	f := rpc.Frame{ID: "f-1", Type: rpc.FrameRequest, Method: "vm.describe"}
	first := d.handle(context.Background(), f)
	second := d.handle(context.Background(), f)

	require.Equal(t, 1, calls, "a replayed frame id must not re-invoke the handler")
	require.JSONEq(t, string(first.Payload), string(second.Payload))
}

func TestDispatcherReplaysCachedErrorForSameFrameID(t *testing.T) {
	d := newDispatcher()
	calls := 0
	d.register("vm.stop", func(ctx context.Context, payload json.RawMessage) (any, error) {
		calls++
		return nil, apperr.New(apperr.HypervisorError, apperr.KindDriver, "domain busy")
	})

	f := rpc.Frame{ID: "f-1", Type: rpc.FrameRequest, Method: "vm.stop"}
	first := d.handle(context.Background(), f)
	second := d.handle(context.Background(), f)

	require.Equal(t, 1, calls)
	require.Equal(t, first.Error.Code, second.Error.Code)
}

func TestDispatcherSweepDropsExpiredEntries(t *testing.T) {
	d := newDispatcher()
	d.store("f-1", json.RawMessage(`{}`), nil)

	d.sweep(time.Now().Add(idempotencyTTL + time.Second))

	d.mu.Lock()
	_, ok := d.cache["f-1"]
	d.mu.Unlock()
	require.False(t, ok)
}

func TestDispatcherMethodsListsEveryRegisteredMethod(t *testing.T) {
	a, _, _, _ := testAgent()
	methods := a.dispatcher.methods()
	require.Contains(t, methods, "vm.define_and_start")
	require.Contains(t, methods, "volume.create_nfs")
	require.Contains(t, methods, "volume.create_lvm")
	require.Contains(t, methods, "volume.create_ceph")
	require.Contains(t, methods, "volume.create_iscsi")
	require.Contains(t, methods, "snapshot.create_live")
}
