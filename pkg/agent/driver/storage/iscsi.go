package storage

import (
	"context"
	"fmt"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/types"
)

// ISCSIBackend provisions volumes as LUNs on an already-configured
// iSCSI target, logging this node in via iscsiadm and exposing the
// resulting local block device.
type ISCSIBackend struct{}

func (b *ISCSIBackend) lunName(volumeID string) string {
	return "vcp-" + volumeID
}

func (b *ISCSIBackend) login(ctx context.Context, pool *types.StoragePool) error {
	if pool.ISCSIConfig == nil {
		return apperr.New(apperr.StorageError, apperr.KindDriver, "pool %s has no iscsi config", pool.ID)
	}
	if err := run(ctx, "iscsiadm", "-m", "discovery", "-t", "sendtargets", "-p", pool.ISCSIConfig.Portal); err != nil {
		return err
	}
	return run(ctx, "iscsiadm", "-m", "node", "-T", pool.ISCSIConfig.Target, "-p", pool.ISCSIConfig.Portal, "--login")
}

func (b *ISCSIBackend) devicePath(pool *types.StoragePool, volumeID string) string {
	return fmt.Sprintf("/dev/disk/by-path/ip-%s-iscsi-%s-lun-%s", pool.ISCSIConfig.Portal, pool.ISCSIConfig.Target, b.lunName(volumeID))
}

func (b *ISCSIBackend) CreateVolume(ctx context.Context, pool *types.StoragePool, spec *types.Volume) (string, error) {
	if err := b.login(ctx, pool); err != nil {
		return "", err
	}
	// LUN allocation on the array/target side is out of band (target
	// management API or pre-carved LUN pool); the agent only attaches
	// to what the portal already exposes for this volume id.
	return b.devicePath(pool, spec.ID), nil
}

func (b *ISCSIBackend) ResizeVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume, newSizeGB float64) error {
	return run(ctx, "iscsiadm", "-m", "node", "-T", pool.ISCSIConfig.Target, "-p", pool.ISCSIConfig.Portal, "--rescan")
}

func (b *ISCSIBackend) CloneVolume(ctx context.Context, pool *types.StoragePool, source *types.Volume, newVolumeID string) (string, error) {
	srcPath := b.devicePath(pool, source.ID)
	dstPath := b.devicePath(pool, newVolumeID)
	if err := run(ctx, "dd", "if="+srcPath, "of="+dstPath, "bs=4M"); err != nil {
		return "", err
	}
	return dstPath, nil
}

func (b *ISCSIBackend) DeleteVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume) error {
	return run(ctx, "iscsiadm", "-m", "node", "-T", pool.ISCSIConfig.Target, "-p", pool.ISCSIConfig.Portal, "--logout")
}

func (b *ISCSIBackend) Describe(ctx context.Context, pool *types.StoragePool, vol *types.Volume) (bool, error) {
	if err := run(ctx, "iscsiadm", "-m", "session"); err != nil {
		return false, nil
	}
	return true, nil
}

func (b *ISCSIBackend) CreateSnapshotOffline(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	return apperr.New(apperr.StorageError, apperr.KindDriver, "iscsi pools do not support snapshots")
}

func (b *ISCSIBackend) DeleteSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	return apperr.New(apperr.StorageError, apperr.KindDriver, "iscsi pools do not support snapshots")
}

func (b *ISCSIBackend) RestoreSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error {
	return apperr.New(apperr.StorageError, apperr.KindDriver, "iscsi pools do not support snapshots")
}
