package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/types"
)

func TestCreateSnapshotOfflineWhenVolumeNotAttached(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	ctx := context.Background()
	testPool(t, svc, "pool-1", "node-1")

	vol := &types.Volume{ID: "vol-1", Name: "vol-1", PoolID: "pool-1", SizeGB: 10, Status: types.VolumeStatusAvailable}
	require.NoError(t, svc.manager.CreateVolume(vol))

	snap, err := svc.CreateSnapshot(ctx, "user-1", "vol-1", "snap-1")
	require.NoError(t, err)
	require.Equal(t, types.SnapshotStatusAvailable, snap.Status)
}

func TestCreateSnapshotLiveWhenVolumeAttachedToRunningVM(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	ctx := context.Background()
	testPool(t, svc, "pool-1", "node-1")

	vol := &types.Volume{ID: "vol-1", Name: "vol-1", PoolID: "pool-1", SizeGB: 10, Status: types.VolumeStatusAvailable}
	require.NoError(t, svc.manager.CreateVolume(vol))

	spec := testVMSpec("node-1")
	spec.DiskIDs = []string{"vol-1"}
	vm, err := svc.CreateVM(ctx, "user-1", spec)
	require.NoError(t, err)
	_, err = svc.StartVM(ctx, "user-1", vm.ID)
	require.NoError(t, err)

	snap, err := svc.CreateSnapshot(ctx, "user-1", "vol-1", "snap-live")
	require.NoError(t, err)
	require.Equal(t, types.SnapshotStatusAvailable, snap.Status)
}

func TestRestoreSnapshotRequiresAvailableVolume(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	ctx := context.Background()
	testPool(t, svc, "pool-1", "node-1")

	vol := &types.Volume{ID: "vol-1", Name: "vol-1", PoolID: "pool-1", SizeGB: 10, Status: types.VolumeStatusInUse}
	require.NoError(t, svc.manager.CreateVolume(vol))
	snap := &types.Snapshot{ID: "snap-1", Name: "snap-1", VolumeID: "vol-1", Status: types.SnapshotStatusAvailable}
	require.NoError(t, svc.manager.CreateSnapshot(snap))

	_, err := svc.RestoreSnapshot(ctx, "user-1", "snap-1")
	require.Error(t, err)

	vol.Status = types.VolumeStatusAvailable
	require.NoError(t, svc.manager.UpdateVolume(vol))

	_, err = svc.RestoreSnapshot(ctx, "user-1", "snap-1")
	require.NoError(t, err)
}

func TestDeleteSnapshot(t *testing.T) {
	svc := newTestService(t, "node-1", okHandler)
	ctx := context.Background()
	testPool(t, svc, "pool-1", "node-1")

	vol := &types.Volume{ID: "vol-1", Name: "vol-1", PoolID: "pool-1", SizeGB: 10, Status: types.VolumeStatusAvailable}
	require.NoError(t, svc.manager.CreateVolume(vol))
	snap := &types.Snapshot{ID: "snap-1", Name: "snap-1", VolumeID: "vol-1", Status: types.SnapshotStatusAvailable}
	require.NoError(t, svc.manager.CreateSnapshot(snap))

	require.NoError(t, svc.DeleteSnapshot(ctx, "user-1", "snap-1"))
	_, err := svc.manager.GetSnapshot("snap-1")
	require.Error(t, err)
}
