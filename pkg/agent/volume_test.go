package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/types"
)

func TestHandleVolumeCreateReturnsPath(t *testing.T) {
	a, _, st, _ := testAgent()
	st.createPath = "/srv/nfs/vol-1.qcow2"

	payload, _ := json.Marshal(poolVolumeRequest{
		Pool:   &types.StoragePool{ID: "pool-1", Type: types.StoragePoolNFS},
		Volume: &types.Volume{ID: "vol-1"},
	})
	result, err := a.handleVolumeCreate(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "/srv/nfs/vol-1.qcow2", result.(struct {
		Path string `json:"path"`
	}).Path)
	require.Equal(t, "pool-1", st.createPool.ID)
	require.Equal(t, "vol-1", st.createVol.ID)
}

func TestHandleVolumeResizePassesSizeGB(t *testing.T) {
	a, _, st, _ := testAgent()

	payload, _ := json.Marshal(map[string]any{
		"pool": &types.StoragePool{ID: "pool-1"}, "volume": &types.Volume{ID: "vol-1"}, "size_gb": 40.0,
	})
	_, err := a.handleVolumeResize(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, 40.0, st.resizeSizeGB)
}

func TestHandleVolumeCloneReturnsPath(t *testing.T) {
	a, _, st, _ := testAgent()
	st.clonePath = "/srv/nfs/vol-2.qcow2"

	payload, _ := json.Marshal(map[string]any{
		"pool": &types.StoragePool{ID: "pool-1"}, "source": &types.Volume{ID: "vol-1"}, "new_volume_id": "vol-2",
	})
	result, err := a.handleVolumeClone(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "/srv/nfs/vol-2.qcow2", result.(struct {
		Path string `json:"path"`
	}).Path)
	require.Equal(t, "vol-2", st.cloneNewID)
}

func TestHandleVolumeDescribeReturnsExists(t *testing.T) {
	a, _, st, _ := testAgent()
	st.describeRet = true

	payload, _ := json.Marshal(poolVolumeRequest{Pool: &types.StoragePool{ID: "pool-1"}, Volume: &types.Volume{ID: "vol-1"}})
	result, err := a.handleVolumeDescribe(context.Background(), payload)
	require.NoError(t, err)
	require.True(t, result.(struct {
		Exists bool `json:"exists"`
	}).Exists)
}

func TestHandleVolumeDeleteFailurePropagates(t *testing.T) {
	a, _, st, _ := testAgent()
	st.err = context.DeadlineExceeded

	payload, _ := json.Marshal(poolVolumeRequest{Pool: &types.StoragePool{ID: "pool-1"}, Volume: &types.Volume{ID: "vol-1"}})
	_, err := a.handleVolumeDelete(context.Background(), payload)
	require.Error(t, err)
}
