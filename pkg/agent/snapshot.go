package agent

import (
	"context"
	"encoding/json"

	"github.com/cuemby/vcp/pkg/types"
)

func (a *Agent) handleSnapshotCreateLive(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		VMID       string `json:"vm_id"`
		VolumeID   string `json:"volume_id"`
		SnapshotID string `json:"snapshot_id"`
	}
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	if err := a.hypervisor.SnapshotLive(ctx, req.VMID, req.VolumeID, req.SnapshotID); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// poolSnapshotRequest is the wire shape shared by every offline
// snapshot method: pool and volume supply the storage.Driver with its
// type-specific config, snapshot_id names the capture.
type poolSnapshotRequest struct {
	Pool       *types.StoragePool `json:"pool"`
	Volume     *types.Volume      `json:"volume"`
	SnapshotID string             `json:"snapshot_id"`
}

func (a *Agent) handleSnapshotCreateOffline(ctx context.Context, payload json.RawMessage) (any, error) {
	var req poolSnapshotRequest
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	if err := a.storage.CreateSnapshotOffline(ctx, req.Pool, req.Volume, req.SnapshotID); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (a *Agent) handleSnapshotDelete(ctx context.Context, payload json.RawMessage) (any, error) {
	var req poolSnapshotRequest
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	if err := a.storage.DeleteSnapshot(ctx, req.Pool, req.Volume, req.SnapshotID); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (a *Agent) handleSnapshotRestore(ctx context.Context, payload json.RawMessage) (any, error) {
	var req poolSnapshotRequest
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	if err := a.storage.RestoreSnapshot(ctx, req.Pool, req.Volume, req.SnapshotID); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}
