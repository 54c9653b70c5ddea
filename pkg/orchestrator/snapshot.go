package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/vcp/pkg/apperr"
	"github.com/cuemby/vcp/pkg/events"
	"github.com/cuemby/vcp/pkg/types"
)

// CreateSnapshot captures a point-in-time image of a volume. If the
// volume is in_use (attached to a running VM) the capture goes through
// the hypervisor's live-snapshot path on the VM's node; otherwise it is
// an offline capture dispatched to the pool's host node directly.
func (s *Service) CreateSnapshot(ctx context.Context, userID, volID, name string) (*types.Snapshot, error) {
	vol, err := s.manager.GetVolume(volID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VolumeNotFound, "volume %s not found", volID)
	}

	nodeID, method, mode, err := s.snapshotRoute(vol)
	if err != nil {
		return nil, err
	}

	snap := &types.Snapshot{
		ID:        uuid.NewString(),
		Name:      name,
		VolumeID:  volID,
		Status:    types.SnapshotStatusCreating,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.manager.CreateSnapshot(snap); err != nil {
		s.audit(userID, "snapshot.create", "snapshot", snap.ID, err.Error(), false)
		return nil, err
	}

	task, err := s.newTask("snapshot.create", "snapshot", snap.ID, nodeID, userID, map[string]string{"volume_id": volID, "mode": string(mode)})
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if mode == types.SnapshotModeLive {
		payload = map[string]any{"vm_id": vol.VMID, "volume_id": volID, "snapshot_id": snap.ID}
	} else {
		pool, perr := s.manager.GetStoragePool(vol.PoolID)
		if perr != nil {
			return nil, apperr.NotFound(apperr.VolumeNotFound, "storage pool %s not found", vol.PoolID)
		}
		payload = map[string]any{"pool": pool, "volume": vol, "snapshot_id": snap.ID}
	}
	outcome := s.dispatch(ctx, task, nodeID, method, payload)
	if outcome.err != nil {
		snap.Status = types.SnapshotStatusError
		snap.UpdatedAt = time.Now()
		_ = s.manager.UpdateSnapshot(snap)
		s.audit(userID, "snapshot.create", "snapshot", snap.ID, outcome.err.Error(), false)
		return snap, outcome.err
	}

	snap.Status = types.SnapshotStatusAvailable
	snap.UpdatedAt = time.Now()
	if err := s.manager.UpdateSnapshot(snap); err != nil {
		return nil, err
	}
	s.audit(userID, "snapshot.create", "snapshot", snap.ID, "", true)
	s.publish(events.EventSnapshotCreated, fmt.Sprintf("snapshot %s created", snap.Name), map[string]string{"snapshot_id": snap.ID, "volume_id": volID})
	return snap, nil
}

// snapshotRoute decides whether a volume's capture is live (through the
// owning VM's node, via the hypervisor domain API) or offline (through
// the pool's host node, via the image tool), per spec.md §4.4.
func (s *Service) snapshotRoute(vol *types.Volume) (nodeID, method string, mode types.SnapshotMode, err error) {
	if vol.Status == types.VolumeStatusInUse && vol.VMID != "" {
		vm, verr := s.manager.GetVM(vol.VMID)
		if verr == nil && vm.Status == types.VMStatusRunning {
			return vm.NodeID, "snapshot.create_live", types.SnapshotModeLive, nil
		}
	}
	pool, perr := s.manager.GetStoragePool(vol.PoolID)
	if perr != nil {
		return "", "", "", apperr.NotFound(apperr.VolumeNotFound, "storage pool %s not found", vol.PoolID)
	}
	return pool.NodeID, "snapshot.create_offline", types.SnapshotModeOffline, nil
}

// DeleteSnapshot removes a snapshot image from its volume's pool.
func (s *Service) DeleteSnapshot(ctx context.Context, userID, snapID string) error {
	snap, err := s.manager.GetSnapshot(snapID)
	if err != nil {
		return apperr.NotFound(apperr.VolumeNotFound, "snapshot %s not found", snapID)
	}
	vol, err := s.manager.GetVolume(snap.VolumeID)
	if err != nil {
		return apperr.NotFound(apperr.VolumeNotFound, "volume %s not found", snap.VolumeID)
	}
	pool, err := s.manager.GetStoragePool(vol.PoolID)
	if err != nil {
		return apperr.NotFound(apperr.VolumeNotFound, "storage pool %s not found", vol.PoolID)
	}

	snap.Status = types.SnapshotStatusDeleting
	snap.UpdatedAt = time.Now()
	if err := s.manager.UpdateSnapshot(snap); err != nil {
		return err
	}

	task, err := s.newTask("snapshot.delete", "snapshot", snap.ID, pool.NodeID, userID, nil)
	if err != nil {
		return err
	}
	outcome := s.dispatch(ctx, task, pool.NodeID, "snapshot.delete", map[string]any{"pool": pool, "volume": vol, "snapshot_id": snap.ID})
	if outcome.err != nil {
		snap.Status = types.SnapshotStatusError
		snap.UpdatedAt = time.Now()
		_ = s.manager.UpdateSnapshot(snap)
		s.audit(userID, "snapshot.delete", "snapshot", snapID, outcome.err.Error(), false)
		return outcome.err
	}

	if err := s.manager.DeleteSnapshot(snapID); err != nil {
		s.audit(userID, "snapshot.delete", "snapshot", snapID, err.Error(), false)
		return err
	}
	s.audit(userID, "snapshot.delete", "snapshot", snapID, "", true)
	s.publish(events.EventSnapshotDeleted, fmt.Sprintf("snapshot %s deleted", snap.Name), map[string]string{"snapshot_id": snapID})
	return nil
}

// RestoreSnapshot requires the parent volume to be available; restoring
// onto an in-use volume would clobber a running VM's disk out from
// under it.
func (s *Service) RestoreSnapshot(ctx context.Context, userID, snapID string) (*types.Volume, error) {
	snap, err := s.manager.GetSnapshot(snapID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VolumeNotFound, "snapshot %s not found", snapID)
	}
	vol, err := s.manager.GetVolume(snap.VolumeID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VolumeNotFound, "volume %s not found", snap.VolumeID)
	}
	if vol.Status != types.VolumeStatusAvailable {
		s.audit(userID, "snapshot.restore", "volume", vol.ID, "volume not available", false)
		return nil, apperr.Precondition("volume %s is %s, not available", vol.ID, vol.Status)
	}
	pool, err := s.manager.GetStoragePool(vol.PoolID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VolumeNotFound, "storage pool %s not found", vol.PoolID)
	}

	task, err := s.newTask("snapshot.restore", "volume", vol.ID, pool.NodeID, userID, map[string]string{"snapshot_id": snapID})
	if err != nil {
		return nil, err
	}
	outcome := s.dispatch(ctx, task, pool.NodeID, "snapshot.restore", map[string]any{"pool": pool, "volume": vol, "snapshot_id": snapID})
	if outcome.err != nil {
		s.audit(userID, "snapshot.restore", "volume", vol.ID, outcome.err.Error(), false)
		return vol, outcome.err
	}

	vol.UpdatedAt = time.Now()
	if err := s.manager.UpdateVolume(vol); err != nil {
		return nil, err
	}
	s.audit(userID, "snapshot.restore", "volume", vol.ID, "", true)
	return vol, nil
}
