package agent

import (
	"context"
	"encoding/json"

	"github.com/cuemby/vcp/pkg/types"
)

// poolVolumeRequest is the wire shape shared by every volume.* method
// except clone: the controller always supplies the full StoragePool
// alongside the Volume, since every storage.Driver method needs the
// pool's type-specific config to act.
type poolVolumeRequest struct {
	Pool   *types.StoragePool `json:"pool"`
	Volume *types.Volume      `json:"volume"`
}

func (a *Agent) handleVolumeCreate(ctx context.Context, payload json.RawMessage) (any, error) {
	var req poolVolumeRequest
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	path, err := a.storage.CreateVolume(ctx, req.Pool, req.Volume)
	if err != nil {
		return nil, err
	}
	return struct {
		Path string `json:"path"`
	}{Path: path}, nil
}

func (a *Agent) handleVolumeResize(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		poolVolumeRequest
		SizeGB float64 `json:"size_gb"`
	}
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	if err := a.storage.ResizeVolume(ctx, req.Pool, req.Volume, req.SizeGB); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (a *Agent) handleVolumeClone(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		Pool        *types.StoragePool `json:"pool"`
		Source      *types.Volume      `json:"source"`
		NewVolumeID string             `json:"new_volume_id"`
	}
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	path, err := a.storage.CloneVolume(ctx, req.Pool, req.Source, req.NewVolumeID)
	if err != nil {
		return nil, err
	}
	return struct {
		Path string `json:"path"`
	}{Path: path}, nil
}

func (a *Agent) handleVolumeDelete(ctx context.Context, payload json.RawMessage) (any, error) {
	var req poolVolumeRequest
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	if err := a.storage.DeleteVolume(ctx, req.Pool, req.Volume); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (a *Agent) handleVolumeDescribe(ctx context.Context, payload json.RawMessage) (any, error) {
	var req poolVolumeRequest
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	exists, err := a.storage.Describe(ctx, req.Pool, req.Volume)
	if err != nil {
		return nil, err
	}
	return struct {
		Exists bool `json:"exists"`
	}{Exists: exists}, nil
}
