// Package storage implements the node agent's storage backends: volume
// and snapshot operations against an NFS export, an LVM volume group, a
// Ceph RBD pool, or an iSCSI target, selected by the StoragePool type
// carried in the controller's dispatch.
package storage

import (
	"context"

	"github.com/cuemby/vcp/pkg/types"
)

// Driver is the node agent's contract for volume and snapshot
// lifecycle operations on local or networked storage. Every volume.*
// RPC method maps to one of these calls; Dispatcher (dispatcher.go)
// routes based on the pool's type.
type Driver interface {
	// CreateVolume provisions spec inside pool and returns the path
	// (device node, image file, or RBD image name) the hypervisor
	// driver should attach.
	CreateVolume(ctx context.Context, pool *types.StoragePool, spec *types.Volume) (path string, err error)

	ResizeVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume, newSizeGB float64) error

	// CloneVolume produces a new volume with id newVolumeID from
	// source's current contents and returns its path.
	CloneVolume(ctx context.Context, pool *types.StoragePool, source *types.Volume, newVolumeID string) (path string, err error)

	DeleteVolume(ctx context.Context, pool *types.StoragePool, vol *types.Volume) error

	// Describe reports whether vol's backing storage still exists, for
	// the reconciliation sweep to resolve a stuck intent state.
	Describe(ctx context.Context, pool *types.StoragePool, vol *types.Volume) (exists bool, err error)

	CreateSnapshotOffline(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error
	DeleteSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error
	RestoreSnapshot(ctx context.Context, pool *types.StoragePool, vol *types.Volume, snapshotID string) error
}
