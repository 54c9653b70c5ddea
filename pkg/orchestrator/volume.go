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

// volumeDispatchMethod picks the pool-type-specific agent method for
// volume creation, matching spec.md §4.4's per-pool-type dispatch (NFS
// file creation, LVM LV creation, Ceph/iSCSI pool-specific calls).
func volumeDispatchMethod(poolType types.StoragePoolType) string {
	return "volume.create_" + string(poolType)
}

// CreateVolume transitions a new row through creating -> available by
// dispatching to the volume's pool's host node. If spec carries a
// source URL, the agent fetches initial contents before returning
// available.
func (s *Service) CreateVolume(ctx context.Context, userID string, spec *types.Volume) (*types.Volume, error) {
	pool, err := s.manager.GetStoragePool(spec.PoolID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VolumeNotFound, "storage pool %s not found", spec.PoolID)
	}

	now := time.Now()
	spec.ID = uuid.NewString()
	spec.Status = types.VolumeStatusCreating
	spec.CreatedAt = now
	spec.UpdatedAt = now
	if err := s.manager.CreateVolume(spec); err != nil {
		s.audit(userID, "volume.create", "volume", spec.ID, err.Error(), false)
		return nil, err
	}

	task, err := s.newTask("volume.create", "volume", spec.ID, pool.NodeID, userID, spec)
	if err != nil {
		return nil, err
	}

	outcome := s.dispatch(ctx, task, pool.NodeID, volumeDispatchMethod(pool.Type), map[string]any{"pool": pool, "volume": spec})
	if outcome.err != nil {
		if !outcome.transportFailure {
			spec.Status = types.VolumeStatusError
			spec.UpdatedAt = time.Now()
			_ = s.manager.UpdateVolume(spec)
		}
		s.audit(userID, "volume.create", "volume", spec.ID, outcome.err.Error(), false)
		return spec, outcome.err
	}

	var created struct {
		Path string `json:"path"`
	}
	if jerr := unmarshalInto(outcome.result, &created); jerr == nil && created.Path != "" {
		spec.Path = created.Path
	}

	spec.Status = types.VolumeStatusAvailable
	spec.UpdatedAt = time.Now()
	if err := s.manager.UpdateVolume(spec); err != nil {
		return nil, err
	}
	s.audit(userID, "volume.create", "volume", spec.ID, "", true)
	s.publish(events.EventVolumeCreated, fmt.Sprintf("volume %s created", spec.Name), map[string]string{"volume_id": spec.ID})
	return spec, nil
}

// ResizeVolume requires the volume to be available.
func (s *Service) ResizeVolume(ctx context.Context, userID, volID string, newSizeGB float64) (*types.Volume, error) {
	vol, err := s.manager.GetVolume(volID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VolumeNotFound, "volume %s not found", volID)
	}
	if vol.Status != types.VolumeStatusAvailable {
		s.audit(userID, "volume.resize", "volume", volID, "volume not available", false)
		return nil, apperr.Precondition("volume %s is %s, not available", volID, vol.Status)
	}

	pool, err := s.manager.GetStoragePool(vol.PoolID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VolumeNotFound, "storage pool %s not found", vol.PoolID)
	}

	task, err := s.newTask("volume.resize", "volume", vol.ID, pool.NodeID, userID, map[string]float64{"size_gb": newSizeGB})
	if err != nil {
		return nil, err
	}
	outcome := s.dispatch(ctx, task, pool.NodeID, "volume.resize", map[string]any{"pool": pool, "volume": vol, "size_gb": newSizeGB})
	if outcome.err != nil {
		s.audit(userID, "volume.resize", "volume", volID, outcome.err.Error(), false)
		return vol, outcome.err
	}

	vol.SizeGB = newSizeGB
	vol.UpdatedAt = time.Now()
	if err := s.manager.UpdateVolume(vol); err != nil {
		return nil, err
	}
	s.audit(userID, "volume.resize", "volume", volID, "", true)
	return vol, nil
}

// CloneVolume requires the source volume to be available and produces a
// new volume in the same pool.
func (s *Service) CloneVolume(ctx context.Context, userID, sourceID, newName string) (*types.Volume, error) {
	src, err := s.manager.GetVolume(sourceID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VolumeNotFound, "volume %s not found", sourceID)
	}
	if src.Status != types.VolumeStatusAvailable {
		s.audit(userID, "volume.clone", "volume", sourceID, "source not available", false)
		return nil, apperr.Precondition("volume %s is %s, not available", sourceID, src.Status)
	}

	pool, err := s.manager.GetStoragePool(src.PoolID)
	if err != nil {
		return nil, apperr.NotFound(apperr.VolumeNotFound, "storage pool %s not found", src.PoolID)
	}

	clone := &types.Volume{
		ID:        uuid.NewString(),
		Name:      newName,
		Type:      src.Type,
		SizeGB:    src.SizeGB,
		PoolID:    src.PoolID,
		Status:    types.VolumeStatusCreating,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.manager.CreateVolume(clone); err != nil {
		s.audit(userID, "volume.clone", "volume", clone.ID, err.Error(), false)
		return nil, err
	}

	task, err := s.newTask("volume.clone", "volume", clone.ID, pool.NodeID, userID, map[string]string{"source_id": sourceID})
	if err != nil {
		return nil, err
	}
	outcome := s.dispatch(ctx, task, pool.NodeID, "volume.clone", map[string]any{"pool": pool, "source": src, "new_volume_id": clone.ID})
	if outcome.err != nil {
		if !outcome.transportFailure {
			clone.Status = types.VolumeStatusError
			clone.UpdatedAt = time.Now()
			_ = s.manager.UpdateVolume(clone)
		}
		s.audit(userID, "volume.clone", "volume", clone.ID, outcome.err.Error(), false)
		return clone, outcome.err
	}

	var cloned struct {
		Path string `json:"path"`
	}
	if jerr := unmarshalInto(outcome.result, &cloned); jerr == nil && cloned.Path != "" {
		clone.Path = cloned.Path
	}

	clone.Status = types.VolumeStatusAvailable
	clone.UpdatedAt = time.Now()
	if err := s.manager.UpdateVolume(clone); err != nil {
		return nil, err
	}
	s.audit(userID, "volume.clone", "volume", clone.ID, "", true)
	return clone, nil
}

// DeleteVolume requires available (not in_use) and dispatches deletion
// to the pool's host node before removing the row.
func (s *Service) DeleteVolume(ctx context.Context, userID, volID string) error {
	vol, err := s.manager.GetVolume(volID)
	if err != nil {
		return apperr.NotFound(apperr.VolumeNotFound, "volume %s not found", volID)
	}
	if vol.Status != types.VolumeStatusAvailable {
		s.audit(userID, "volume.delete", "volume", volID, "volume not available", false)
		return apperr.Precondition("volume %s is %s, not available", volID, vol.Status)
	}

	pool, err := s.manager.GetStoragePool(vol.PoolID)
	if err != nil {
		return apperr.NotFound(apperr.VolumeNotFound, "storage pool %s not found", vol.PoolID)
	}

	vol.Status = types.VolumeStatusDeleting
	vol.UpdatedAt = time.Now()
	if err := s.manager.UpdateVolume(vol); err != nil {
		return err
	}

	task, err := s.newTask("volume.delete", "volume", vol.ID, pool.NodeID, userID, nil)
	if err != nil {
		return err
	}
	outcome := s.dispatch(ctx, task, pool.NodeID, "volume.delete", map[string]any{"pool": pool, "volume": vol})
	if outcome.err != nil {
		if !outcome.transportFailure {
			vol.Status = types.VolumeStatusError
			vol.UpdatedAt = time.Now()
			_ = s.manager.UpdateVolume(vol)
		}
		s.audit(userID, "volume.delete", "volume", volID, outcome.err.Error(), false)
		return outcome.err
	}

	if err := s.manager.DeleteVolume(volID); err != nil {
		s.audit(userID, "volume.delete", "volume", volID, err.Error(), false)
		return err
	}
	s.audit(userID, "volume.delete", "volume", volID, "", true)
	s.publish(events.EventVolumeDeleted, fmt.Sprintf("volume %s deleted", vol.Name), map[string]string{"volume_id": volID})
	return nil
}
