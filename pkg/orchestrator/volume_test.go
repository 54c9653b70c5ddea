package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/types"
)

func testPool(t *testing.T, svc *Service, id, nodeID string) *types.StoragePool {
	t.Helper()
	pool := &types.StoragePool{ID: id, Name: id, NodeID: nodeID, Type: types.StoragePoolLVM}
	require.NoError(t, svc.manager.CreateStoragePool(pool))
	return pool
}

func TestCreateVolumeLifecycle(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	ctx := context.Background()
	testPool(t, svc, "pool-1", "node-1")

	vol, err := svc.CreateVolume(ctx, "user-1", &types.Volume{Name: "disk-1", PoolID: "pool-1", SizeGB: 20})
	require.NoError(t, err)
	require.Equal(t, types.VolumeStatusAvailable, vol.Status)
	require.NotEmpty(t, vol.ID)
}

func TestResizeVolumeRequiresAvailable(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	ctx := context.Background()
	testPool(t, svc, "pool-1", "node-1")

	vol := &types.Volume{ID: "vol-1", Name: "vol-1", PoolID: "pool-1", SizeGB: 10, Status: types.VolumeStatusInUse}
	require.NoError(t, svc.manager.CreateVolume(vol))

	_, err := svc.ResizeVolume(ctx, "user-1", "vol-1", 20)
	require.Error(t, err)

	vol.Status = types.VolumeStatusAvailable
	require.NoError(t, svc.manager.UpdateVolume(vol))

	resized, err := svc.ResizeVolume(ctx, "user-1", "vol-1", 40)
	require.NoError(t, err)
	require.Equal(t, 40.0, resized.SizeGB)
}

func TestCloneVolumeRequiresSourceAvailable(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	ctx := context.Background()
	testPool(t, svc, "pool-1", "node-1")

	src := &types.Volume{ID: "vol-src", Name: "vol-src", PoolID: "pool-1", SizeGB: 10, Status: types.VolumeStatusInUse}
	require.NoError(t, svc.manager.CreateVolume(src))

	_, err := svc.CloneVolume(ctx, "user-1", "vol-src", "vol-clone")
	require.Error(t, err)

	src.Status = types.VolumeStatusAvailable
	require.NoError(t, svc.manager.UpdateVolume(src))

	clone, err := svc.CloneVolume(ctx, "user-1", "vol-src", "vol-clone")
	require.NoError(t, err)
	require.Equal(t, types.VolumeStatusAvailable, clone.Status)
	require.Equal(t, src.PoolID, clone.PoolID)
	require.NotEqual(t, src.ID, clone.ID)
}

func TestDeleteVolumeRejectsInUse(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	ctx := context.Background()
	testPool(t, svc, "pool-1", "node-1")

	vol := &types.Volume{ID: "vol-1", Name: "vol-1", PoolID: "pool-1", SizeGB: 10, Status: types.VolumeStatusInUse}
	require.NoError(t, svc.manager.CreateVolume(vol))

	require.Error(t, svc.DeleteVolume(ctx, "user-1", "vol-1"))

	vol.Status = types.VolumeStatusAvailable
	require.NoError(t, svc.manager.UpdateVolume(vol))
	require.NoError(t, svc.DeleteVolume(ctx, "user-1", "vol-1"))

	_, err := svc.manager.GetVolume("vol-1")
	require.Error(t, err)
}
