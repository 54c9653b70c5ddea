package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/types"
)

func TestHandleSnapshotCreateLiveGoesThroughHypervisor(t *testing.T) {
	a, hv, _, _ := testAgent()

	payload, _ := json.Marshal(map[string]string{"vm_id": "vm-1", "volume_id": "vol-1", "snapshot_id": "snap-1"})
	_, err := a.handleSnapshotCreateLive(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "vm-1", hv.snapVM)
	require.Equal(t, "vol-1", hv.snapVol)
	require.Equal(t, "snap-1", hv.snapID)
}

func TestHandleSnapshotCreateOfflineGoesThroughStorage(t *testing.T) {
	a, _, st, _ := testAgent()

	payload, _ := json.Marshal(poolSnapshotRequest{
		Pool: &types.StoragePool{ID: "pool-1"}, Volume: &types.Volume{ID: "vol-1"}, SnapshotID: "snap-1",
	})
	_, err := a.handleSnapshotCreateOffline(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "snap-1", st.snapID)
}

func TestHandleSnapshotRestore(t *testing.T) {
	a, _, st, _ := testAgent()

	payload, _ := json.Marshal(poolSnapshotRequest{
		Pool: &types.StoragePool{ID: "pool-1"}, Volume: &types.Volume{ID: "vol-1"}, SnapshotID: "snap-1",
	})
	_, err := a.handleSnapshotRestore(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "pool-1", st.snapPool.ID)
}
