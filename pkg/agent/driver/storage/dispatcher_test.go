package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/types"
)

func TestDispatcherRoutesToNFSBackend(t *testing.T) {
	dir := t.TempDir()
	pool := &types.StoragePool{ID: "pool-1", Type: types.StoragePoolNFS, NFSConfig: &types.NFSPoolConfig{ExportPath: dir}}
	vol := &types.Volume{ID: "vol-1", SizeGB: 1}

	d := NewDispatcher()
	path, err := d.CreateVolume(context.Background(), pool, vol)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "vol-1.img"), path)

	exists, err := d.Describe(context.Background(), pool, vol)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, d.DeleteVolume(context.Background(), pool, vol))
	exists, err = d.Describe(context.Background(), pool, vol)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestDispatcherRejectsUnsupportedPoolType(t *testing.T) {
	d := NewDispatcher()
	pool := &types.StoragePool{ID: "pool-x", Type: types.StoragePoolType("unknown")}
	_, err := d.CreateVolume(context.Background(), pool, &types.Volume{ID: "vol-1"})
	require.Error(t, err)
}

func TestNFSBackendCloneAndSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pool := &types.StoragePool{ID: "pool-1", Type: types.StoragePoolNFS, NFSConfig: &types.NFSPoolConfig{ExportPath: dir}}
	d := NewDispatcher()

	src := &types.Volume{ID: "vol-src", SizeGB: 1}
	_, err := d.CreateVolume(context.Background(), pool, src)
	require.NoError(t, err)

	require.NoError(t, d.CreateSnapshotOffline(context.Background(), pool, src, "snap-1"))
	_, err = os.Stat(filepath.Join(dir, "snapshots", "snap-1.img"))
	require.NoError(t, err)

	clonePath, err := d.CloneVolume(context.Background(), pool, src, "vol-clone")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "vol-clone.img"), clonePath)

	require.NoError(t, d.RestoreSnapshot(context.Background(), pool, src, "snap-1"))
	require.NoError(t, d.DeleteSnapshot(context.Background(), pool, src, "snap-1"))
}
